package game

import (
	"maps"

	"github.com/DoyleJ11/werewolf-backend/internal/id"
)

// PlayerView is what one player may know about another. Role is nil when
// the viewer is not allowed to see it.
type PlayerView struct {
	Role        *Role `json:"role,omitempty"`
	IsAlive     bool  `json:"is_alive"`
	IsLobbyHost bool  `json:"is_lobby_host"`
}

// View is the redacted state sent to a single player.
type View struct {
	Self     id.PlayerID                `json:"self"`
	SelfRole RoleData                   `json:"self_role"`
	Players  map[id.PlayerID]PlayerView `json:"players"`
	Phase    Phase                      `json:"phase"`
	Round    int                        `json:"round"`
	RolePool []Role                     `json:"role_pool"`
}

// ViewFor redacts the state for viewer. A viewer always sees its own role
// data; everybody sees the roles of the dead; werewolves recognise each
// other and a seer sees what it has inspected.
func (d *Data) ViewFor(viewer id.PlayerID) View {
	v := View{
		Self:     viewer,
		Players:  make(map[id.PlayerID]PlayerView, len(d.Players)),
		Phase:    d.Phase,
		Round:    d.Round,
		RolePool: append([]Role(nil), d.Config.RolePool...),
	}
	self := d.Players[viewer]
	if self != nil {
		v.SelfRole = self.RoleData
		// Views leave the session actor, so they must not alias its maps.
		v.SelfRole.Inspected = maps.Clone(self.Inspected)
	}
	for pid, p := range d.Players {
		pv := PlayerView{IsAlive: p.IsAlive, IsLobbyHost: p.IsLobbyHost}
		if r, ok := visibleRole(viewer, self, pid, p); ok {
			pv.Role = &r
		}
		v.Players[pid] = pv
	}
	return v
}

func visibleRole(viewerID id.PlayerID, viewer *Player, targetID id.PlayerID, target *Player) (Role, bool) {
	role := target.RoleData.Role()
	switch {
	case viewerID == targetID:
		return role, true
	case revealed(target):
		return role, true
	case viewer == nil:
		return "", false
	}
	switch viewer.RoleData.Role() {
	case RoleWerewolf:
		if role == RoleWerewolf {
			return role, true
		}
	case RoleSeer:
		if r, ok := viewer.RoleData.Inspected[targetID]; ok {
			return r, true
		}
	}
	return "", false
}

// revealed reports whether a player's role is public knowledge because they died.
func revealed(p *Player) bool {
	return !p.IsAlive && p.RoleData.Role().IsPlayer()
}
