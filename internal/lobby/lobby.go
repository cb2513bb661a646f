// Package lobby runs the session actor: the single owner of one game's
// state. Every read or write of that state from outside happens through
// AccessState, which runs a closure inside the lobby's own loop.
package lobby

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/DoyleJ11/werewolf-backend/internal/client"
	"github.com/DoyleJ11/werewolf-backend/internal/game"
	"github.com/DoyleJ11/werewolf-backend/internal/id"
	"github.com/DoyleJ11/werewolf-backend/internal/journal"
	"github.com/DoyleJ11/werewolf-backend/internal/protocol"
)

// ErrClosed is returned when the lobby has stopped.
var ErrClosed = errors.New("lobby closed")

const defaultMailbox = 8

// Directory maps every connected player to its client actor.
type Directory map[id.PlayerID]*client.Handle

// GameFunc runs one game in l until it ends or ctx is cancelled.
type GameFunc func(ctx context.Context, l *Lobby) error

type Options struct {
	ID      id.LobbyID
	Logger  *zap.Logger
	Mailbox int
	RunGame GameFunc
	Journal journal.Journal
	// OnClose is called once after the loop has stopped.
	OnClose func(id.LobbyID)
}

type Lobby struct {
	id      id.LobbyID
	log     *zap.Logger
	mailbox int
	runGame GameFunc
	journal journal.Journal
	onClose func(id.LobbyID)

	inbox   chan Event
	notices chan client.Notice
	done    chan struct{}
	cancel  context.CancelFunc

	// Owned by the loop.
	data       *game.Data
	clients    Directory
	cancelGame context.CancelFunc
}

// New starts a lobby. It runs until Shutdown, until its last player leaves,
// or until parent is cancelled.
func New(parent context.Context, opts Options) *Lobby {
	ctx, cancel := context.WithCancel(parent)
	size := opts.Mailbox
	if size <= 0 {
		size = defaultMailbox
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	j := opts.Journal
	if j == nil {
		j = journal.Nop{}
	}

	l := &Lobby{
		id:      opts.ID,
		log:     log.With(zap.Stringer("lobby", opts.ID)),
		mailbox: size,
		runGame: opts.RunGame,
		journal: j,
		onClose: opts.OnClose,
		inbox:   make(chan Event, size),
		notices: make(chan client.Notice, size),
		done:    make(chan struct{}),
		cancel:  cancel,
		data:    game.NewData(),
		clients: make(Directory),
	}

	go l.loop(ctx)
	return l
}

func (l *Lobby) ID() id.LobbyID { return l.id }

func (l *Lobby) Logger() *zap.Logger { return l.log }

func (l *Lobby) Journal() journal.Journal { return l.journal }

// Done is closed once the loop has stopped.
func (l *Lobby) Done() <-chan struct{} { return l.done }

// Send queues ev. It blocks while the mailbox is full.
func (l *Lobby) Send(ctx context.Context, ev Event) error {
	select {
	case <-l.done:
		return ErrClosed
	default:
	}
	select {
	case l.inbox <- ev:
		return nil
	case <-l.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Lobby) KillPlayer(ctx context.Context, pid id.PlayerID, cause game.CauseOfDeath) error {
	return l.Send(ctx, KillPlayer{Player: pid, Cause: cause})
}

func (l *Lobby) ApplyPendingDeaths(ctx context.Context) error {
	return l.Send(ctx, ApplyPendingDeaths{})
}

func (l *Lobby) BroadcastState(ctx context.Context) error {
	return l.Send(ctx, BroadcastStateUpdate{})
}

// AccessState runs fn inside the lobby loop and returns its result. It is
// the only way to look at or change a lobby's game state from outside.
// fn must not block: the whole lobby waits for it.
func AccessState[R any](ctx context.Context, l *Lobby, fn func(*game.Data, Directory) R) (R, error) {
	var zero R
	// Buffered so the loop never waits on a caller that gave up.
	reply := make(chan R, 1)
	ev := accessState{fn: func(d *game.Data, c Directory) { reply <- fn(d, c) }}
	if err := l.Send(ctx, ev); err != nil {
		return zero, err
	}
	select {
	case r := <-reply:
		return r, nil
	case <-l.done:
		return zero, ErrClosed
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Access is AccessState for closures without a result.
func Access(ctx context.Context, l *Lobby, fn func(*game.Data, Directory)) error {
	_, err := AccessState(ctx, l, func(d *game.Data, c Directory) struct{} {
		fn(d, c)
		return struct{}{}
	})
	return err
}

func (l *Lobby) loop(ctx context.Context) {
	defer l.shutdown()
	for {
		select {
		case <-ctx.Done():
			return
		case n := <-l.notices:
			if !l.handle(ctx, noticeEvent(n)) {
				return
			}
		case ev := <-l.inbox:
			if !l.handle(ctx, ev) {
				return
			}
		}
	}
}

// handle reports false when the lobby should stop.
func (l *Lobby) handle(ctx context.Context, ev Event) bool {
	switch e := ev.(type) {
	case NewConnection:
		l.addConnection(ctx, e.Conn)

	case ConnectionLost:
		return l.removeConnection(ctx, e.Player)

	case StartGame:
		l.startGame(ctx, e.RequestedBy)

	case ConfigureGame:
		l.configure(ctx, e)

	case KillPlayer:
		l.data.QueueDeath(e.Player, e.Cause)

	case ApplyPendingDeaths:
		l.applyDeaths(ctx)

	case BroadcastStateUpdate:
		l.broadcastState(ctx)

	case GameFinished:
		l.finishGame(ctx, e.Err)

	case accessState:
		e.fn(l.data, l.clients)

	case Shutdown:
		return false
	}
	return true
}

func (l *Lobby) addConnection(ctx context.Context, conn client.Conn) {
	pid := id.Allocate(l.clients)
	h := client.Spawn(ctx, client.Options{
		Player:  pid,
		Conn:    conn,
		Notices: l.notices,
		Logger:  l.log,
		Mailbox: l.mailbox,
	})
	l.clients[pid] = h
	p := l.data.AddPlayer(pid)
	l.log.Info("player joined", zap.Stringer("player", pid), zap.Bool("host", p.IsLobbyHost))

	l.sendTo(ctx, h, protocol.JoinedLobby{LobbyID: l.id, PlayerID: pid})
	l.broadcastState(ctx)
}

func (l *Lobby) removeConnection(ctx context.Context, pid id.PlayerID) bool {
	if _, ok := l.clients[pid]; !ok {
		l.log.Warn("connection lost for unknown player", zap.Stringer("player", pid))
		return true
	}
	delete(l.clients, pid)
	host, elected := l.data.RemovePlayer(pid)
	l.log.Info("player left", zap.Stringer("player", pid))
	if elected {
		l.log.Info("host re-elected", zap.Stringer("host", host))
	}

	if len(l.clients) == 0 {
		l.log.Info("last player left, closing lobby")
		return false
	}
	l.broadcastState(ctx)
	return true
}

func (l *Lobby) startGame(ctx context.Context, requestedBy id.PlayerID) {
	switch {
	case !l.data.IsHost(requestedBy):
		l.log.Warn("start game requested by non-host", zap.Stringer("player", requestedBy))
		return
	case l.cancelGame != nil:
		l.log.Warn("start game requested while a game is running", zap.Stringer("player", requestedBy))
		return
	case l.runGame == nil:
		l.log.Warn("start game requested but no game runner is configured")
		return
	}

	gameCtx, cancel := context.WithCancel(ctx)
	l.cancelGame = cancel
	l.log.Info("game starting", zap.Int("players", len(l.data.Players)))
	l.journal.Record(journal.Entry{LobbyID: l.id.String(), Kind: journal.KindGameStarted, PlayerID: requestedBy.String()})

	go func() {
		err := l.runGame(gameCtx, l)
		if sendErr := l.Send(ctx, GameFinished{Err: err}); sendErr != nil {
			l.log.Debug("game finished after lobby closed", zap.Error(sendErr))
		}
	}()
}

func (l *Lobby) finishGame(ctx context.Context, err error) {
	if l.cancelGame == nil {
		l.log.Warn("game finished but none was running")
		return
	}
	l.cancelGame()
	l.cancelGame = nil

	detail := ""
	switch {
	case err == nil:
		l.log.Info("game finished")
	case errors.Is(err, context.Canceled):
		l.log.Info("game cancelled")
		detail = err.Error()
	default:
		l.log.Error("game aborted", zap.Error(err))
		detail = err.Error()
	}
	l.journal.Record(journal.Entry{LobbyID: l.id.String(), Kind: journal.KindGameFinished, Detail: detail})

	for _, p := range l.data.Players {
		p.RoleData = game.NewRoleData(game.RoleSpectator)
		p.IsAlive = false
	}
	l.data.PendingDeaths = nil
	l.data.Phase = game.PhaseLobby
	l.broadcastState(ctx)
}

func (l *Lobby) configure(ctx context.Context, e ConfigureGame) {
	if !l.data.IsHost(e.RequestedBy) {
		l.log.Warn("configure requested by non-host", zap.Stringer("player", e.RequestedBy))
		return
	}
	if l.cancelGame != nil {
		l.log.Warn("configure requested while a game is running", zap.Stringer("player", e.RequestedBy))
		return
	}
	for _, r := range e.RolePool {
		if !r.Valid() || !r.IsPlayer() {
			l.log.Warn("configure with invalid role", zap.String("role", string(r)))
			return
		}
	}
	l.data.Config.RolePool = append([]game.Role(nil), e.RolePool...)
	l.broadcastState(ctx)
}

func (l *Lobby) applyDeaths(ctx context.Context) {
	for _, death := range l.data.FlushDeaths() {
		role := l.data.Players[death.Player].RoleData.Role()
		l.log.Info("player died", zap.Stringer("player", death.Player), zap.String("cause", string(death.Cause)))
		l.journal.Record(journal.Entry{
			LobbyID:  l.id.String(),
			Kind:     journal.KindPlayerDied,
			PlayerID: death.Player.String(),
			Detail:   string(death.Cause),
		})
		msg := protocol.PlayerDied{PlayerID: death.Player, Cause: death.Cause, Role: role}
		for _, h := range l.clients {
			l.sendTo(ctx, h, msg)
		}
	}
	l.broadcastState(ctx)
}

func (l *Lobby) broadcastState(ctx context.Context) {
	for pid, h := range l.clients {
		if err := h.SendState(ctx, l.data.ViewFor(pid)); err != nil {
			l.log.Debug("state update not delivered", zap.Stringer("player", pid), zap.Error(err))
		}
	}
}

func (l *Lobby) sendTo(ctx context.Context, h *client.Handle, msg protocol.ServerMessage) {
	if err := h.Send(ctx, msg); err != nil {
		l.log.Debug("message not delivered",
			zap.Stringer("player", h.Player()),
			zap.String("type", msg.MessageType()),
			zap.Error(err))
	}
}

// shutdown journals a game that was still running before done closes, so
// waiters on Done see every entry the lobby will ever record.
func (l *Lobby) shutdown() {
	if l.cancelGame != nil {
		l.cancelGame()
		l.cancelGame = nil
		l.log.Info("game interrupted by lobby shutdown")
		l.journal.Record(journal.Entry{LobbyID: l.id.String(), Kind: journal.KindGameFinished, Detail: "lobby closed"})
	}
	l.cancel()
	close(l.done)
	if l.onClose != nil {
		l.onClose(l.id)
	}
}
