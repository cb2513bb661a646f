package client

import (
	"context"

	"github.com/DoyleJ11/werewolf-backend/internal/game"
	"github.com/DoyleJ11/werewolf-backend/internal/id"
	"github.com/DoyleJ11/werewolf-backend/internal/protocol"
)

// Handle is the address of a running client actor. It is safe to copy and
// to use from any goroutine.
type Handle struct {
	player id.PlayerID
	events chan event
	done   chan struct{}
}

func (h *Handle) Player() id.PlayerID { return h.player }

// Done is closed once the actor stops accepting events.
func (h *Handle) Done() <-chan struct{} { return h.done }

func (h *Handle) send(ctx context.Context, ev event) error {
	select {
	case <-h.done:
		return ErrGone
	default:
	}
	select {
	case h.events <- ev:
		return nil
	case <-h.done:
		return ErrGone
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Handle) SendState(ctx context.Context, view game.View) error {
	return h.send(ctx, stateUpdate{view: view})
}

func (h *Handle) Send(ctx context.Context, msg protocol.ServerMessage) error {
	return h.send(ctx, sendPacket{msg: msg})
}

// CreateInteraction opens an interaction with the player. Every response
// the player sends on it is delivered to replies.
func (h *Handle) CreateInteraction(ctx context.Context, data protocol.RequestData, replies chan<- Response) (id.InteractionID, error) {
	reply := make(chan id.InteractionID, 1)
	if err := h.send(ctx, createInteraction{data: data, replies: replies, reply: reply}); err != nil {
		return 0, err
	}
	select {
	case iid := <-reply:
		return iid, nil
	case <-h.done:
		return 0, ErrGone
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (h *Handle) Followup(ctx context.Context, iid id.InteractionID, data protocol.FollowupData) error {
	return h.send(ctx, followupInteraction{id: iid, data: data})
}

func (h *Handle) CloseInteraction(ctx context.Context, iid id.InteractionID) error {
	return h.send(ctx, closeInteraction{id: iid})
}

// Disconnect asks the actor to close the connection and stop.
func (h *Handle) Disconnect(ctx context.Context) error {
	return h.send(ctx, disconnect{})
}
