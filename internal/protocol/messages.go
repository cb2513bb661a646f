package protocol

import (
	"github.com/DoyleJ11/werewolf-backend/internal/game"
	"github.com/DoyleJ11/werewolf-backend/internal/id"
)

// ClientMessage is anything a client may send to the server.
type ClientMessage interface {
	MessageType() string
	isClientMessage()
}

// ServerMessage is anything the server may send to a client.
type ServerMessage interface {
	MessageType() string
	isServerMessage()
}

// Client -> Server

type CreateNewLobby struct{}

type JoinLobby struct {
	LobbyID id.LobbyID `json:"lobby_id"`
}

type StartGame struct{}

type ConfigureGame struct {
	RolePool []game.Role `json:"role_pool"`
}

type InteractionResponse struct {
	ID   id.InteractionID `json:"id"`
	Data ResponseData     `json:"data"`
}

type CloseConnection struct{}

// Unrecognized stands in for any message whose type is unknown.
type Unrecognized struct{}

func (CreateNewLobby) MessageType() string      { return "create_new_lobby" }
func (JoinLobby) MessageType() string           { return "join_lobby" }
func (StartGame) MessageType() string           { return "start_game" }
func (ConfigureGame) MessageType() string       { return "configure_game" }
func (InteractionResponse) MessageType() string { return "interaction_response" }
func (CloseConnection) MessageType() string     { return "close_connection" }
func (Unrecognized) MessageType() string        { return "unrecognized" }

func (CreateNewLobby) isClientMessage()      {}
func (JoinLobby) isClientMessage()           {}
func (StartGame) isClientMessage()           {}
func (ConfigureGame) isClientMessage()       {}
func (InteractionResponse) isClientMessage() {}
func (CloseConnection) isClientMessage()     {}
func (Unrecognized) isClientMessage()        {}

// Server -> Client

type UnknownLobbyID struct{}

type JoinedLobby struct {
	LobbyID  id.LobbyID  `json:"lobby_id"`
	PlayerID id.PlayerID `json:"player_id"`
}

type StateUpdate struct {
	View game.View `json:"view"`
}

type PlayerDied struct {
	PlayerID id.PlayerID       `json:"player_id"`
	Cause    game.CauseOfDeath `json:"cause"`
	Role     game.Role         `json:"role"`
}

type InteractionRequest struct {
	ID   id.InteractionID `json:"id"`
	Data RequestData      `json:"data"`
}

type InteractionFollowup struct {
	ID   id.InteractionID `json:"id"`
	Data FollowupData     `json:"data"`
}

type InteractionClose struct {
	ID id.InteractionID `json:"id"`
}

func (UnknownLobbyID) MessageType() string      { return "unknown_lobby_id" }
func (JoinedLobby) MessageType() string         { return "joined_lobby" }
func (StateUpdate) MessageType() string         { return "state_update" }
func (PlayerDied) MessageType() string          { return "player_died" }
func (InteractionRequest) MessageType() string  { return "interaction_request" }
func (InteractionFollowup) MessageType() string { return "interaction_followup" }
func (InteractionClose) MessageType() string    { return "interaction_close" }

func (UnknownLobbyID) isServerMessage()      {}
func (JoinedLobby) isServerMessage()         {}
func (StateUpdate) isServerMessage()         {}
func (PlayerDied) isServerMessage()          {}
func (InteractionRequest) isServerMessage()  {}
func (InteractionFollowup) isServerMessage() {}
func (InteractionClose) isServerMessage()    {}
func (CloseConnection) isServerMessage()     {}
func (Unrecognized) isServerMessage()        {}
