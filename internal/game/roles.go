package game

import "github.com/DoyleJ11/werewolf-backend/internal/id"

type Role string

const (
	RoleSpectator Role = "spectator"
	RoleVillager  Role = "villager"
	RoleWerewolf  Role = "werewolf"
	RoleSeer      Role = "seer"
)

// DefaultRole is handed out once the configured role pool runs dry.
const DefaultRole = RoleVillager

var Roles = []Role{RoleSpectator, RoleVillager, RoleWerewolf, RoleSeer}

func (r Role) Valid() bool {
	switch r {
	case RoleSpectator, RoleVillager, RoleWerewolf, RoleSeer:
		return true
	}
	return false
}

// IsPlayer reports whether the role takes part in the game at all.
func (r Role) IsPlayer() bool {
	return r != RoleSpectator
}

// DependenciesInNight lists the roles whose night turn has to be finished
// before this role's turn may start.
func (r Role) DependenciesInNight() []Role {
	switch r {
	case RoleSeer:
		return []Role{RoleWerewolf}
	default:
		return nil
	}
}

// RoleData is the private per-player payload belonging to a Role.
type RoleData struct {
	Tag Role `json:"role"`

	// Inspected is the seer's memory of the roles it has looked at. It stays
	// nil until the first inspection.
	Inspected map[id.PlayerID]Role `json:"inspected,omitempty"`
}

func NewRoleData(r Role) RoleData {
	return RoleData{Tag: r}
}

// Remember records what an inspection revealed about target.
func (d *RoleData) Remember(target id.PlayerID, r Role) {
	if d.Inspected == nil {
		d.Inspected = make(map[id.PlayerID]Role)
	}
	d.Inspected[target] = r
}

func (d RoleData) Role() Role { return d.Tag }

type CauseOfDeath string

const (
	CauseWerewolves  CauseOfDeath = "werewolves"
	CauseVillageVote CauseOfDeath = "village_vote"
)
