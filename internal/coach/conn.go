package coach

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrChannelClosed means the client side of the duplex channel is gone.
var ErrChannelClosed = errors.New("coach channel closed")

const (
	writeWait      = 10 * time.Second
	maxClientFrame = 1 << 20
)

// Conn is the duplex channel to one browser. Write is safe for concurrent use;
// Read must be called from a single goroutine.
type Conn interface {
	Read(ctx context.Context) (ClientMessage, error)
	Write(ctx context.Context, m ServerMessage) error
	Close() error
}

type websocketConn struct {
	ws        *websocket.Conn
	writeMu   sync.Mutex
	closeOnce sync.Once
}

func NewWebsocketConn(ws *websocket.Conn) Conn {
	ws.SetReadLimit(maxClientFrame)
	return &websocketConn{ws: ws}
}

// Read returns the next client message. Undecodable frames yield a *DecodeError and
// leave the channel usable.
func (c *websocketConn) Read(ctx context.Context) (ClientMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	_, raw, err := c.ws.ReadMessage()
	if err != nil {
		return nil, channelError(err)
	}
	return DecodeClientMessage(raw)
}

func (c *websocketConn) Write(ctx context.Context, m ServerMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := EncodeServerMessage(m)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.ws.WriteMessage(websocket.TextMessage, b); err != nil {
		return channelError(err)
	}
	return nil
}

func (c *websocketConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.ws.Close()
	})
	return err
}

// channelError marks any websocket failure as fatal: gorilla connections are unusable
// after a read or write error.
func channelError(err error) error {
	return fmt.Errorf("%w: %w", ErrChannelClosed, err)
}
