package game

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/werewolf-backend/internal/id"
)

func seeded() *Data {
	d := NewData()
	roles := map[id.PlayerID]Role{1: RoleWerewolf, 2: RoleWerewolf, 3: RoleSeer, 4: RoleVillager, 5: RoleVillager}
	for pid, r := range roles {
		p := d.AddPlayer(pid)
		p.RoleData = NewRoleData(r)
		p.IsAlive = true
	}
	d.AddPlayer(6) // spectator
	d.Players[5].IsAlive = false
	d.Players[3].Remember(4, RoleVillager)
	return d
}

func roleOf(v View, pid id.PlayerID) Role {
	if r := v.Players[pid].Role; r != nil {
		return *r
	}
	return ""
}

func TestViewFor_Visibility(t *testing.T) {
	d := seeded()

	cases := []struct {
		name   string
		viewer id.PlayerID
		sees   map[id.PlayerID]Role
	}{
		{
			name:   "werewolf sees the pack and the dead",
			viewer: 1,
			sees:   map[id.PlayerID]Role{1: RoleWerewolf, 2: RoleWerewolf, 3: "", 4: "", 5: RoleVillager, 6: ""},
		},
		{
			name:   "seer sees inspected players",
			viewer: 3,
			sees:   map[id.PlayerID]Role{1: "", 2: "", 3: RoleSeer, 4: RoleVillager, 5: RoleVillager, 6: ""},
		},
		{
			name:   "villager sees only itself and the dead",
			viewer: 4,
			sees:   map[id.PlayerID]Role{1: "", 2: "", 3: "", 4: RoleVillager, 5: RoleVillager, 6: ""},
		},
		{
			name:   "spectator sees public info only",
			viewer: 6,
			sees:   map[id.PlayerID]Role{1: "", 2: "", 3: "", 4: "", 5: RoleVillager, 6: RoleSpectator},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := d.ViewFor(tc.viewer)
			require.Equal(t, tc.viewer, v.Self)
			require.Equal(t, d.Players[tc.viewer].RoleData, v.SelfRole)
			for pid, want := range tc.sees {
				require.Equal(t, want, roleOf(v, pid), "player %s", pid)
			}
		})
	}
}

func TestViewFor_CopiesRolePool(t *testing.T) {
	d := seeded()
	d.Config.RolePool = []Role{RoleSeer}
	v := d.ViewFor(1)
	v.RolePool[0] = RoleWerewolf
	require.Equal(t, RoleSeer, d.Config.RolePool[0])
}

func TestViewFor_FreshSeerHasNoMemory(t *testing.T) {
	d := NewData()
	p := d.AddPlayer(1)
	p.RoleData = NewRoleData(RoleSeer)

	require.Nil(t, d.ViewFor(1).SelfRole.Inspected)

	p.Remember(2, RoleWerewolf)
	v := d.ViewFor(1)
	require.Equal(t, map[id.PlayerID]Role{2: RoleWerewolf}, v.SelfRole.Inspected)

	v.SelfRole.Inspected[3] = RoleVillager
	require.Len(t, p.Inspected, 1, "views must not alias the seer's memory")
}
