package lobby

import (
	"github.com/DoyleJ11/werewolf-backend/internal/client"
	"github.com/DoyleJ11/werewolf-backend/internal/game"
	"github.com/DoyleJ11/werewolf-backend/internal/id"
)

// Event is anything the lobby loop consumes.
type Event interface{ isLobbyEvent() }

type NewConnection struct {
	Conn client.Conn
}

type ConnectionLost struct {
	Player id.PlayerID
}

type StartGame struct {
	RequestedBy id.PlayerID
}

type ConfigureGame struct {
	RequestedBy id.PlayerID
	RolePool    []game.Role
}

// KillPlayer queues a death; it takes effect on the next ApplyPendingDeaths.
type KillPlayer struct {
	Player id.PlayerID
	Cause  game.CauseOfDeath
}

type ApplyPendingDeaths struct{}

type BroadcastStateUpdate struct{}

// GameFinished is sent by a game runner when it stops. A nil Err means the
// game ended normally.
type GameFinished struct {
	Err error
}

type Shutdown struct{}

// accessState carries a closure to run inside the loop. The closure owns
// its own reply channel.
type accessState struct {
	fn func(*game.Data, Directory)
}

func (NewConnection) isLobbyEvent()        {}
func (ConnectionLost) isLobbyEvent()       {}
func (StartGame) isLobbyEvent()            {}
func (ConfigureGame) isLobbyEvent()        {}
func (KillPlayer) isLobbyEvent()           {}
func (ApplyPendingDeaths) isLobbyEvent()   {}
func (BroadcastStateUpdate) isLobbyEvent() {}
func (GameFinished) isLobbyEvent()         {}
func (Shutdown) isLobbyEvent()             {}
func (accessState) isLobbyEvent()          {}

func noticeEvent(n client.Notice) Event {
	switch n.Kind {
	case client.NoticeStartGame:
		return StartGame{RequestedBy: n.Player}
	case client.NoticeConfigureGame:
		return ConfigureGame{RequestedBy: n.Player, RolePool: n.RolePool}
	default:
		return ConnectionLost{Player: n.Player}
	}
}
