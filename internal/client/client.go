// Package client runs the per-connection actor. A client actor owns one live
// connection, forwards what the player sends to whoever asked for it and
// relays state and interaction traffic back out. It never touches game state.
package client

import (
	"context"
	"errors"

	"github.com/DoyleJ11/werewolf-backend/internal/game"
	"github.com/DoyleJ11/werewolf-backend/internal/id"
	"github.com/DoyleJ11/werewolf-backend/internal/protocol"
)

// ErrGone is returned when the client actor has already stopped.
var ErrGone = errors.New("client gone")

// Conn is one decoded connection as handed over by the transport.
type Conn interface {
	// Read blocks for the next message. Any error ends the connection.
	Read(ctx context.Context) (protocol.ClientMessage, error)
	Write(ctx context.Context, m protocol.ServerMessage) error
	Close() error
}

// Response is a player's answer on an interaction, delivered to the
// channel registered when the interaction was created.
type Response struct {
	From        id.PlayerID
	Interaction id.InteractionID
	Data        protocol.ResponseData
}

type NoticeKind int

const (
	NoticeStartGame NoticeKind = iota
	NoticeConfigureGame
	NoticeConnectionLost
)

func (k NoticeKind) String() string {
	switch k {
	case NoticeStartGame:
		return "start_game"
	case NoticeConfigureGame:
		return "configure_game"
	case NoticeConnectionLost:
		return "connection_lost"
	}
	return "unknown"
}

// Notice is something the session has to handle on behalf of a player.
type Notice struct {
	Player   id.PlayerID
	Kind     NoticeKind
	RolePool []game.Role // NoticeConfigureGame only
}

type event interface{ isClientEvent() }

type stateUpdate struct{ view game.View }

type createInteraction struct {
	data    protocol.RequestData
	replies chan<- Response
	reply   chan id.InteractionID
}

type followupInteraction struct {
	id   id.InteractionID
	data protocol.FollowupData
}

type closeInteraction struct{ id id.InteractionID }

type sendPacket struct{ msg protocol.ServerMessage }

type disconnect struct{}

func (stateUpdate) isClientEvent()         {}
func (createInteraction) isClientEvent()   {}
func (followupInteraction) isClientEvent() {}
func (closeInteraction) isClientEvent()    {}
func (sendPacket) isClientEvent()          {}
func (disconnect) isClientEvent()          {}
