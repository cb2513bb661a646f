// Package ws is the websocket transport. It frames protocol messages as
// JSON text messages and hands each new connection to the hub.
package ws

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/DoyleJ11/werewolf-backend/internal/protocol"
)

const (
	writeTimeout = 3 * time.Second
	readLimit    = 64 << 10
)

// Conn adapts a websocket to client.Conn.
type Conn struct {
	ws   *websocket.Conn
	log  *zap.Logger
	done chan struct{}
	once sync.Once
}

func NewConn(c *websocket.Conn, log *zap.Logger) *Conn {
	c.SetReadLimit(readLimit)
	return &Conn{ws: c, log: log, done: make(chan struct{})}
}

// Read returns the next decoded message. Frames that cannot be decoded come
// back as Unrecognized so a confused client is answered instead of dropped.
// A clean close from the peer reads as io.EOF.
func (c *Conn) Read(ctx context.Context) (protocol.ClientMessage, error) {
	typ, data, err := c.ws.Read(ctx)
	if err != nil {
		switch websocket.CloseStatus(err) {
		case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			return nil, io.EOF
		}
		return nil, err
	}
	if typ != websocket.MessageText {
		c.log.Warn("binary frame ignored", zap.Int("bytes", len(data)))
		return protocol.Unrecognized{}, nil
	}
	m, err := protocol.DecodeClient(data)
	if err != nil {
		c.log.Warn("undecodable message", zap.Error(err))
		return protocol.Unrecognized{}, nil
	}
	return m, nil
}

func (c *Conn) Write(ctx context.Context, m protocol.ServerMessage) error {
	payload, err := protocol.EncodeServer(m)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return c.ws.Write(ctx, websocket.MessageText, payload)
}

// Close closes the websocket. Only the first call has an effect.
func (c *Conn) Close() error {
	var err error
	c.once.Do(func() {
		err = c.ws.Close(websocket.StatusNormalClosure, "bye")
		close(c.done)
		if errors.Is(err, net.ErrClosed) {
			err = nil
		}
	})
	return err
}

// Done is closed once Close has been called.
func (c *Conn) Done() <-chan struct{} { return c.done }
