package runner

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/DoyleJ11/werewolf-backend/internal/game"
)

// SchedulingError reports night turns that can never be started. It aborts
// the game.
type SchedulingError struct {
	Blocked []game.Role
	Reason  string
}

func (e *SchedulingError) Error() string {
	names := make([]string, len(e.Blocked))
	for i, r := range e.Blocked {
		names[i] = string(r)
	}
	return fmt.Sprintf("night scheduling: %s: %s", e.Reason, strings.Join(names, ", "))
}

// TurnFunc runs one role's night turn.
type TurnFunc func(ctx context.Context, r game.Role) error

type turnDone struct {
	role game.Role
	err  error
}

// ScheduleNight runs the turn of every role in roles exactly once. A role is
// launched as soon as all of its dependencies among roles have finished, so
// independent turns run concurrently. Dependencies on roles that are not in
// play tonight count as satisfied.
//
// The first failing turn cancels the others and its error is returned. No
// turn is launched once ctx is done.
func ScheduleNight(ctx context.Context, roles []game.Role, deps func(game.Role) []game.Role, turn TurnFunc) error {
	pending := make(map[game.Role]bool, len(roles))
	for _, r := range roles {
		pending[r] = true
	}
	inPlay := make(map[game.Role]bool, len(pending))
	for r := range pending {
		inPlay[r] = true
	}
	for _, r := range sortedRoles(pending) {
		for _, d := range deps(r) {
			if !d.Valid() {
				return &SchedulingError{Blocked: []game.Role{r}, Reason: fmt.Sprintf("unknown dependency %q", d)}
			}
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	finished := make(chan turnDone, len(pending))
	done := make(map[game.Role]bool, len(pending))
	running := 0
	var firstErr error

	for {
		if firstErr == nil {
			firstErr = ctx.Err()
		}
		if firstErr == nil {
			for _, r := range sortedRoles(pending) {
				if !satisfied(deps(r), inPlay, done) {
					continue
				}
				delete(pending, r)
				running++
				go func() {
					finished <- turnDone{role: r, err: turn(ctx, r)}
				}()
			}
			if running == 0 && len(pending) > 0 {
				return &SchedulingError{Blocked: sortedRoles(pending), Reason: "dependency cycle"}
			}
		}
		if running == 0 {
			return firstErr
		}

		// Running turns see the cancellation and return on their own.
		f := <-finished
		running--
		done[f.role] = true
		if f.err != nil && firstErr == nil {
			firstErr = fmt.Errorf("%s night turn: %w", f.role, f.err)
			cancel()
		}
	}
}

func satisfied(deps []game.Role, inPlay, done map[game.Role]bool) bool {
	for _, d := range deps {
		if inPlay[d] && !done[d] {
			return false
		}
	}
	return true
}

func sortedRoles(set map[game.Role]bool) []game.Role {
	out := make([]game.Role, 0, len(set))
	for r := range set {
		out = append(out, r)
	}
	slices.Sort(out)
	return out
}
