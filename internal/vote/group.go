// Package vote implements the interaction protocols that run during a game:
// the day's nomination vote and the faction vote. Both sit on Group, which
// opens one interaction per player and funnels every answer into a single
// channel.
package vote

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/werewolf-backend/internal/client"
	"github.com/DoyleJ11/werewolf-backend/internal/id"
	"github.com/DoyleJ11/werewolf-backend/internal/protocol"
)

// ErrTimeout is returned by Next when the phase deadline passes.
var ErrTimeout = errors.New("interaction timed out")

// LeftError is returned by Next when a member's client stops. The member is
// no longer part of the group afterwards.
type LeftError struct {
	Player id.PlayerID
}

func (e *LeftError) Error() string {
	return "player " + e.Player.String() + " left the interaction"
}

const closeTimeout = 2 * time.Second

type member struct {
	handle      *client.Handle
	interaction id.InteractionID
}

// Group is a set of open interactions, one per player.
type Group struct {
	log       *zap.Logger
	members   map[id.PlayerID]member
	responses chan client.Response
	left      chan id.PlayerID
	stop      chan struct{}
	stopOnce  sync.Once
}

// Open creates an interaction with every handle, asking each player with
// the request built for it. Players whose client is already gone are left
// out.
func Open(ctx context.Context, log *zap.Logger, handles map[id.PlayerID]*client.Handle, request func(id.PlayerID) protocol.RequestData) (*Group, error) {
	g := &Group{
		log:       log,
		members:   make(map[id.PlayerID]member, len(handles)),
		responses: make(chan client.Response, len(handles)+1),
		left:      make(chan id.PlayerID, len(handles)),
		stop:      make(chan struct{}),
	}

	var mu sync.Mutex
	eg, egCtx := errgroup.WithContext(ctx)
	for pid, h := range handles {
		eg.Go(func() error {
			iid, err := h.CreateInteraction(egCtx, request(pid), g.responses)
			if errors.Is(err, client.ErrGone) {
				log.Debug("player gone before interaction opened", zap.Stringer("player", pid))
				return nil
			}
			if err != nil {
				return err
			}
			mu.Lock()
			g.members[pid] = member{handle: h, interaction: iid}
			mu.Unlock()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		g.Close(ctx)
		return nil, err
	}
	for pid, m := range g.members {
		go g.watch(pid, m.handle)
	}
	return g, nil
}

// watch reports pid once its client stops, until the group is closed.
func (g *Group) watch(pid id.PlayerID, h *client.Handle) {
	select {
	case <-h.Done():
		select {
		case g.left <- pid:
		case <-g.stop:
		}
	case <-g.stop:
	}
}

// Members lists every player holding an interaction, in id order.
func (g *Group) Members() []id.PlayerID {
	ids := make([]id.PlayerID, 0, len(g.members))
	for pid := range g.members {
		ids = append(ids, pid)
	}
	slices.Sort(ids)
	return ids
}

func (g *Group) Has(pid id.PlayerID) bool {
	_, ok := g.members[pid]
	return ok
}

// Next waits for the next response on one of the group's interactions.
// Cancellation wins over a response that is ready at the same time. A
// member whose client stops is dropped and reported as a *LeftError.
func (g *Group) Next(ctx context.Context, deadline <-chan time.Time) (client.Response, error) {
	for {
		if err := ctx.Err(); err != nil {
			return client.Response{}, err
		}
		select {
		case <-ctx.Done():
			return client.Response{}, ctx.Err()
		case <-deadline:
			return client.Response{}, ErrTimeout
		case pid := <-g.left:
			if _, ok := g.members[pid]; !ok {
				continue
			}
			delete(g.members, pid)
			g.log.Info("player left during interaction", zap.Stringer("player", pid))
			return client.Response{}, &LeftError{Player: pid}
		case r := <-g.responses:
			m, ok := g.members[r.From]
			if !ok || m.interaction != r.Interaction {
				g.log.Warn("response from outside the group",
					zap.Stringer("player", r.From),
					zap.Stringer("interaction", r.Interaction))
				continue
			}
			return r, nil
		}
	}
}

// Broadcast sends data as a followup to every member.
func (g *Group) Broadcast(ctx context.Context, data protocol.FollowupData) {
	for _, pid := range g.Members() {
		g.Followup(ctx, pid, data)
	}
}

// Followup sends data to a single member.
func (g *Group) Followup(ctx context.Context, pid id.PlayerID, data protocol.FollowupData) {
	m, ok := g.members[pid]
	if !ok {
		g.log.Warn("followup for player outside the group", zap.Stringer("player", pid))
		return
	}
	if err := m.handle.Followup(ctx, m.interaction, data); err != nil {
		g.log.Debug("followup not delivered", zap.Stringer("player", pid), zap.Error(err))
	}
}

// Close closes every interaction. It still runs when ctx is already
// cancelled so that clients are not left with dangling interactions.
func (g *Group) Close(ctx context.Context) {
	g.stopOnce.Do(func() { close(g.stop) })
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
	defer cancel()
	for pid, m := range g.members {
		if err := m.handle.CloseInteraction(ctx, m.interaction); err != nil {
			g.log.Debug("close not delivered", zap.Stringer("player", pid), zap.Error(err))
		}
	}
}

// Deadline returns a channel that fires after d, or nil for d <= 0.
func Deadline(d time.Duration) (<-chan time.Time, func()) {
	if d <= 0 {
		return nil, func() {}
	}
	t := time.NewTimer(d)
	return t.C, func() { t.Stop() }
}
