// Package runner drives a running game: role assignment followed by
// alternating nights and days until nobody is left alive or the game is
// cancelled.
package runner

import (
	"context"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/werewolf-backend/internal/game"
	"github.com/DoyleJ11/werewolf-backend/internal/lobby"
	"github.com/DoyleJ11/werewolf-backend/internal/roles"
	"github.com/DoyleJ11/werewolf-backend/internal/vote"
)

type Config struct {
	// Timeout bounds every interaction-based wait. Zero waits forever.
	Timeout time.Duration
	// Behaviors defaults to roles.Default(Timeout).
	Behaviors roles.Registry
	// Rand drives role assignment. Defaults to a randomly seeded source.
	Rand *rand.Rand
}

type Runner struct {
	cfg Config
}

func New(cfg Config) *Runner {
	if cfg.Behaviors == nil {
		cfg.Behaviors = roles.Default(cfg.Timeout)
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Runner{cfg: cfg}
}

// Run plays one game in l. It matches lobby.GameFunc.
func (r *Runner) Run(ctx context.Context, l *lobby.Lobby) error {
	log := l.Logger().With(zap.String("component", "runner"))

	if err := r.assignRoles(ctx, l); err != nil {
		return err
	}
	if err := l.BroadcastState(ctx); err != nil {
		return err
	}

	for round := 1; ; round++ {
		alive, err := enterPhase(ctx, l, game.PhaseNight, round)
		if err != nil || len(alive) == 0 {
			return err
		}
		log.Info("night falls", zap.Int("round", round), zap.Int("roles", len(alive)))

		err = ScheduleNight(ctx, alive, game.Role.DependenciesInNight, func(ctx context.Context, role game.Role) error {
			b, err := r.cfg.Behaviors.Lookup(role)
			if err != nil {
				return err
			}
			return b.NightTurn(ctx, l)
		})
		if err != nil {
			return err
		}
		if err := l.ApplyPendingDeaths(ctx); err != nil {
			return err
		}

		alive, err = enterPhase(ctx, l, game.PhaseDay, round)
		if err != nil || len(alive) == 0 {
			return err
		}
		log.Info("day breaks", zap.Int("round", round))

		ballots, err := vote.Nomination(ctx, l, r.cfg.Timeout)
		if err != nil {
			return err
		}
		if target, ok := vote.Tally(ballots); ok {
			if err := l.KillPlayer(ctx, target, game.CauseVillageVote); err != nil {
				return err
			}
		} else {
			log.Info("no elimination today", zap.Int("ballots", len(ballots)))
		}
		if err := l.ApplyPendingDeaths(ctx); err != nil {
			return err
		}
	}
}

// assignRoles hands every connected player a role drawn at random from the
// configured pool, falling back to the default role once the pool is empty.
// The pool is used up in the process.
func (r *Runner) assignRoles(ctx context.Context, l *lobby.Lobby) error {
	rng := r.cfg.Rand
	return lobby.Access(ctx, l, func(d *game.Data, _ lobby.Directory) {
		pids := d.PlayerIDs()
		rng.Shuffle(len(pids), func(i, j int) { pids[i], pids[j] = pids[j], pids[i] })

		pool := d.Config.RolePool
		for _, pid := range pids {
			role := game.DefaultRole
			if len(pool) > 0 {
				i := rng.IntN(len(pool))
				role = pool[i]
				pool = append(pool[:i], pool[i+1:]...)
			}
			p := d.Players[pid]
			p.RoleData = game.NewRoleData(role)
			p.IsAlive = role.IsPlayer()
		}
		d.Config.RolePool = nil
		d.PendingDeaths = nil
		d.Round = 0
	})
}

// enterPhase switches the phase, broadcasts it and reports the distinct
// roles still alive. Cancellation wins over starting a new phase.
func enterPhase(ctx context.Context, l *lobby.Lobby, phase game.Phase, round int) ([]game.Role, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	alive, err := lobby.AccessState(ctx, l, func(d *game.Data, _ lobby.Directory) []game.Role {
		d.Phase, d.Round = phase, round
		return d.AliveRoles()
	})
	if err != nil {
		return nil, err
	}
	if len(alive) == 0 {
		l.Logger().Info("nobody left alive, ending game")
		return nil, nil
	}
	return alive, l.BroadcastState(ctx)
}
