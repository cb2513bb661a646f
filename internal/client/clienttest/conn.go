// Package clienttest provides an in-memory client.Conn for actor tests.
package clienttest

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/DoyleJ11/werewolf-backend/internal/id"
	"github.com/DoyleJ11/werewolf-backend/internal/protocol"
)

// Within bounds every wait in this package so tests never hang.
const Within = 2 * time.Second

var ErrClosed = errors.New("conn closed")

// Conn is a client.Conn whose far end is driven by the test.
type Conn struct {
	in     chan protocol.ClientMessage
	out    chan protocol.ServerMessage
	closed chan struct{}
	once   sync.Once
}

func NewConn() *Conn {
	return &Conn{
		in:     make(chan protocol.ClientMessage, 16),
		out:    make(chan protocol.ServerMessage, 64),
		closed: make(chan struct{}),
	}
}

func (c *Conn) Read(ctx context.Context) (protocol.ClientMessage, error) {
	select {
	case m, ok := <-c.in:
		if !ok {
			return nil, io.EOF
		}
		return m, nil
	case <-c.closed:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Conn) Write(ctx context.Context, m protocol.ServerMessage) error {
	select {
	case <-c.closed:
		return ErrClosed
	default:
	}
	select {
	case c.out <- m:
		return nil
	case <-c.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Conn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

// Closed is closed once the server side closed the connection.
func (c *Conn) Closed() <-chan struct{} { return c.closed }

// Push delivers a message as if the player had sent it.
func (c *Conn) Push(t testing.TB, m protocol.ClientMessage) {
	t.Helper()
	select {
	case c.in <- m:
	case <-time.After(Within):
		t.Fatalf("timed out pushing %s", m.MessageType())
	}
}

// Respond answers interaction iid.
func (c *Conn) Respond(t testing.TB, iid id.InteractionID, data protocol.ResponseData) {
	t.Helper()
	c.Push(t, protocol.InteractionResponse{ID: iid, Data: data})
}

// Hangup ends the player's side of the stream.
func (c *Conn) Hangup() { close(c.in) }

// Next returns the next message the server wrote.
func (c *Conn) Next(t testing.TB) protocol.ServerMessage {
	t.Helper()
	select {
	case m := <-c.out:
		return m
	case <-time.After(Within):
		t.Fatalf("timed out waiting for a server message")
		return nil // unreachable
	}
}

// Expect skips messages until one of type T arrives.
func Expect[T protocol.ServerMessage](t testing.TB, c *Conn) T {
	t.Helper()
	deadline := time.After(Within)
	for {
		select {
		case m := <-c.out:
			if v, ok := m.(T); ok {
				return v
			}
		case <-deadline:
			var zero T
			t.Fatalf("timed out waiting for %T", zero)
			return zero
		}
	}
}

// ExpectFollowup skips messages until a followup carrying T arrives.
func ExpectFollowup[T protocol.FollowupData](t testing.TB, c *Conn) (id.InteractionID, T) {
	t.Helper()
	deadline := time.After(Within)
	for {
		select {
		case m := <-c.out:
			if f, ok := m.(protocol.InteractionFollowup); ok {
				if v, ok := f.Data.(T); ok {
					return f.ID, v
				}
			}
		case <-deadline:
			var zero T
			t.Fatalf("timed out waiting for followup %T", zero)
			return 0, zero
		}
	}
}

// ExpectRequest skips messages until an interaction request carrying T arrives.
func ExpectRequest[T protocol.RequestData](t testing.TB, c *Conn) (id.InteractionID, T) {
	t.Helper()
	deadline := time.After(Within)
	for {
		select {
		case m := <-c.out:
			if r, ok := m.(protocol.InteractionRequest); ok {
				if v, ok := r.Data.(T); ok {
					return r.ID, v
				}
			}
		case <-deadline:
			var zero T
			t.Fatalf("timed out waiting for request %T", zero)
			return 0, zero
		}
	}
}

// Quiet asserts that nothing matching keep is written within d.
func (c *Conn) Quiet(t testing.TB, d time.Duration, keep func(protocol.ServerMessage) bool) {
	t.Helper()
	deadline := time.After(d)
	for {
		select {
		case m := <-c.out:
			if keep(m) {
				t.Fatalf("unexpected %s: %+v", m.MessageType(), m)
			}
		case <-deadline:
			return
		}
	}
}
