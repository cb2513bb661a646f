package roles

import (
	"context"
	"errors"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/werewolf-backend/internal/client"
	"github.com/DoyleJ11/werewolf-backend/internal/game"
	"github.com/DoyleJ11/werewolf-backend/internal/id"
	"github.com/DoyleJ11/werewolf-backend/internal/lobby"
	"github.com/DoyleJ11/werewolf-backend/internal/protocol"
	"github.com/DoyleJ11/werewolf-backend/internal/vote"
)

var ErrAlreadyInspected = errors.New("seer already inspected someone tonight")

// Seer lets every living seer learn one other living player's role. The
// result is remembered in the seer's role data so later state updates keep
// showing it.
type Seer struct {
	Timeout time.Duration
}

func (s Seer) NightTurn(ctx context.Context, l *lobby.Lobby) error {
	log := l.Logger().With(zap.String("role", string(game.RoleSeer)))

	type setup struct {
		alive   []id.PlayerID
		handles map[id.PlayerID]*client.Handle
	}
	r, err := lobby.AccessState(ctx, l, func(d *game.Data, clients lobby.Directory) setup {
		st := setup{alive: d.AlivePlayers(), handles: make(map[id.PlayerID]*client.Handle)}
		for _, pid := range st.alive {
			if h, ok := clients[pid]; ok && d.Players[pid].Role() == game.RoleSeer {
				st.handles[pid] = h
			}
		}
		return st
	})
	if err != nil {
		return err
	}
	if len(r.handles) == 0 {
		return nil
	}

	selectable := func(seer id.PlayerID) []id.PlayerID {
		return slices.DeleteFunc(slices.Clone(r.alive), func(p id.PlayerID) bool { return p == seer })
	}
	g, err := vote.Open(ctx, log, r.handles, func(pid id.PlayerID) protocol.RequestData {
		return protocol.SeerBegin{Selectable: selectable(pid)}
	})
	if err != nil {
		return err
	}
	defer g.Close(ctx)

	deadline, stop := vote.Deadline(s.Timeout)
	defer stop()

	// Seers that still owe an inspection.
	waiting := make(map[id.PlayerID]bool)
	for _, pid := range g.Members() {
		waiting[pid] = true
	}
	for len(waiting) > 0 {
		resp, err := g.Next(ctx, deadline)
		if errors.Is(err, vote.ErrTimeout) {
			log.Info("seer turn timed out", zap.Int("pending", len(waiting)))
			break
		}
		var left *vote.LeftError
		if errors.As(err, &left) {
			delete(waiting, left.Player)
			continue
		}
		if err != nil {
			return err
		}

		req, ok := resp.Data.(protocol.SeerInspect)
		switch {
		case !ok:
			log.Warn("rejected response", zap.Stringer("player", resp.From), zap.String("type", resp.Data.MessageType()))
			continue
		case !waiting[resp.From]:
			log.Warn("rejected response", zap.Stringer("player", resp.From), zap.Error(ErrAlreadyInspected))
			continue
		case !slices.Contains(selectable(resp.From), req.Target):
			log.Warn("rejected response", zap.Stringer("player", resp.From), zap.Error(vote.ErrIllegalTarget))
			continue
		}

		seer := resp.From
		role, err := lobby.AccessState(ctx, l, func(d *game.Data, _ lobby.Directory) game.Role {
			target := d.Players[req.Target]
			self := d.Players[seer]
			if target == nil || self == nil {
				return ""
			}
			self.Remember(req.Target, target.Role())
			return target.Role()
		})
		if err != nil {
			return err
		}
		if role == "" {
			log.Warn("inspection target left", zap.Stringer("player", seer), zap.Stringer("target", req.Target))
		} else {
			g.Followup(ctx, seer, protocol.SeerResult{Target: req.Target, Role: role})
		}
		delete(waiting, seer)
	}

	return l.BroadcastState(ctx)
}
