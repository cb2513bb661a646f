package game

import (
	"slices"

	"github.com/DoyleJ11/werewolf-backend/internal/id"
)

type Phase string

const (
	PhaseLobby Phase = "lobby"
	PhaseNight Phase = "night"
	PhaseDay   Phase = "day"
)

type Player struct {
	RoleData
	IsAlive     bool
	IsLobbyHost bool
}

type Death struct {
	Player id.PlayerID
	Cause  CauseOfDeath
}

// Config is set before a game starts and consumed by role assignment.
type Config struct {
	RolePool []Role
}

// Data is the authoritative state of one session. It is owned by the
// session's lobby actor and must only be touched from inside its loop.
type Data struct {
	Players       map[id.PlayerID]*Player
	PendingDeaths []Death
	Config        Config
	Phase         Phase
	Round         int
}

func NewData() *Data {
	return &Data{
		Players: make(map[id.PlayerID]*Player),
		Phase:   PhaseLobby,
	}
}

// AddPlayer registers a new spectator. The first player of a session
// becomes its host.
func (d *Data) AddPlayer(pid id.PlayerID) *Player {
	p := &Player{RoleData: NewRoleData(RoleSpectator)}
	p.IsLobbyHost = !d.hasHost()
	d.Players[pid] = p
	return p
}

// RemovePlayer drops a player and promotes the lowest remaining id to host
// if the host left. It returns the new host, if one was elected.
func (d *Data) RemovePlayer(pid id.PlayerID) (id.PlayerID, bool) {
	p, ok := d.Players[pid]
	if !ok {
		return 0, false
	}
	delete(d.Players, pid)
	if !p.IsLobbyHost || len(d.Players) == 0 {
		return 0, false
	}
	next := d.PlayerIDs()[0]
	d.Players[next].IsLobbyHost = true
	return next, true
}

func (d *Data) hasHost() bool {
	for _, p := range d.Players {
		if p.IsLobbyHost {
			return true
		}
	}
	return false
}

func (d *Data) IsHost(pid id.PlayerID) bool {
	p, ok := d.Players[pid]
	return ok && p.IsLobbyHost
}

// PlayerIDs returns every player id in ascending order.
func (d *Data) PlayerIDs() []id.PlayerID {
	ids := make([]id.PlayerID, 0, len(d.Players))
	for pid := range d.Players {
		ids = append(ids, pid)
	}
	slices.Sort(ids)
	return ids
}

// AlivePlayers returns the ids of living players in ascending order.
func (d *Data) AlivePlayers() []id.PlayerID {
	var ids []id.PlayerID
	for _, pid := range d.PlayerIDs() {
		if d.Players[pid].IsAlive {
			ids = append(ids, pid)
		}
	}
	return ids
}

// AliveRoles returns the distinct roles held by living players.
func (d *Data) AliveRoles() []Role {
	seen := make(map[Role]bool)
	var roles []Role
	for _, p := range d.Players {
		r := p.RoleData.Role()
		if p.IsAlive && !seen[r] {
			seen[r] = true
			roles = append(roles, r)
		}
	}
	slices.Sort(roles)
	return roles
}

func (d *Data) QueueDeath(pid id.PlayerID, cause CauseOfDeath) {
	d.PendingDeaths = append(d.PendingDeaths, Death{Player: pid, Cause: cause})
}

// FlushDeaths marks every queued player dead and clears the queue. Deaths of
// unknown or already dead players are skipped; the applied deaths are returned
// in queue order.
func (d *Data) FlushDeaths() []Death {
	var applied []Death
	for _, death := range d.PendingDeaths {
		p, ok := d.Players[death.Player]
		if !ok || !p.IsAlive {
			continue
		}
		p.IsAlive = false
		applied = append(applied, death)
	}
	d.PendingDeaths = nil
	return applied
}
