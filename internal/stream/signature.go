package stream

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SignatureBuilder derives the thought signature of one completed turn.
// Priority: native backend signature, then reasoning text, then response text.
type SignatureBuilder struct {
	native   []byte
	thinking strings.Builder
	text     strings.Builder
}

// AddNative records a backend-supplied signature. Only the first non-empty one is kept.
func (b *SignatureBuilder) AddNative(sig []byte) {
	if len(b.native) > 0 || len(sig) == 0 {
		return
	}
	b.native = append([]byte(nil), sig...)
}

func (b *SignatureBuilder) AddThinking(s string) { b.thinking.WriteString(s) }

func (b *SignatureBuilder) AddText(s string) { b.text.WriteString(s) }

func (b *SignatureBuilder) Thinking() string { return b.thinking.String() }

func (b *SignatureBuilder) Text() string { return b.text.String() }

// Signature returns nil when nothing was produced.
func (b *SignatureBuilder) Signature() *string {
	var sig string
	switch {
	case len(b.native) > 0:
		n := len(b.native)
		if n > 16 {
			n = 16
		}
		sig = "gts_" + hex.EncodeToString(b.native[:n])
	case b.thinking.Len() > 0:
		sig = "ts_" + shortDigest(b.thinking.String())
	case b.text.Len() > 0:
		sig = "ts_" + shortDigest(b.text.String())
	default:
		return nil
	}
	return &sig
}

func shortDigest(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:16]
}
