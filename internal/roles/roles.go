// Package roles holds the night behaviour of every role. The runner looks a
// behaviour up by role tag and runs it once per night while that role has a
// living holder.
package roles

import (
	"context"
	"fmt"
	"time"

	"github.com/DoyleJ11/werewolf-backend/internal/game"
	"github.com/DoyleJ11/werewolf-backend/internal/lobby"
	"github.com/DoyleJ11/werewolf-backend/internal/vote"
)

// Behavior is one role's night turn.
type Behavior interface {
	NightTurn(ctx context.Context, l *lobby.Lobby) error
}

// BehaviorFunc adapts a function to Behavior.
type BehaviorFunc func(ctx context.Context, l *lobby.Lobby) error

func (f BehaviorFunc) NightTurn(ctx context.Context, l *lobby.Lobby) error { return f(ctx, l) }

// Registry maps role tags to their behaviour.
type Registry map[game.Role]Behavior

// Default returns the behaviour of every built-in role. timeout bounds each
// interaction-based turn; zero waits forever.
func Default(timeout time.Duration) Registry {
	return Registry{
		game.RoleSpectator: Idle,
		game.RoleVillager:  Idle,
		game.RoleWerewolf:  Werewolf{Timeout: timeout},
		game.RoleSeer:      Seer{Timeout: timeout},
	}
}

// Lookup returns the behaviour for r.
func (reg Registry) Lookup(r game.Role) (Behavior, error) {
	b, ok := reg[r]
	if !ok {
		return nil, fmt.Errorf("no behavior for role %q", r)
	}
	return b, nil
}

// Idle is the turn of roles that do nothing at night.
var Idle Behavior = BehaviorFunc(func(context.Context, *lobby.Lobby) error { return nil })

// Werewolf runs the pack's faction vote.
type Werewolf struct {
	Timeout time.Duration
}

func (w Werewolf) NightTurn(ctx context.Context, l *lobby.Lobby) error {
	_, err := vote.Faction(ctx, l, vote.FactionOptions{
		Role:    game.RoleWerewolf,
		Cause:   game.CauseWerewolves,
		Timeout: w.Timeout,
	})
	return err
}
