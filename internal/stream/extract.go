package stream

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strings"
)

var fencedBlock = regexp.MustCompile("```(?:json)?\\s*([\\s\\S]*?)\\s*```")

// ExtractJSON pulls a JSON object out of model output. A fenced code block wins;
// otherwise the whole trimmed text is tried.
func ExtractJSON(text string) (json.RawMessage, bool) {
	candidate := strings.TrimSpace(text)
	if m := fencedBlock.FindStringSubmatch(text); m != nil {
		candidate = strings.TrimSpace(m[1])
	}
	if !strings.HasPrefix(candidate, "{") {
		return nil, false
	}
	if !json.Valid([]byte(candidate)) {
		return nil, false
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(candidate)); err != nil {
		return nil, false
	}
	return json.RawMessage(buf.Bytes()), true
}

// WithField returns obj with key set to value. obj must be a JSON object.
func WithField(obj json.RawMessage, key string, value any) (json.RawMessage, error) {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(obj, &m); err != nil {
		return nil, err
	}
	v, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	m[key] = v
	return json.Marshal(m)
}
