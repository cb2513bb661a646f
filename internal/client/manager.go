package client

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/DoyleJ11/werewolf-backend/internal/id"
	"github.com/DoyleJ11/werewolf-backend/internal/protocol"
)

const defaultMailbox = 8

type Options struct {
	Player id.PlayerID
	Conn   Conn
	// Notices receives start/configure requests and the final
	// NoticeConnectionLost. It is owned by the session.
	Notices chan<- Notice
	Logger  *zap.Logger
	Mailbox int
}

type delivery struct {
	to chan<- Response
	r  Response
}

type manager struct {
	player  id.PlayerID
	conn    Conn
	log     *zap.Logger
	events  chan event
	done    chan struct{}
	notices chan<- Notice

	inbound    chan protocol.ClientMessage
	outbound   chan protocol.ServerMessage
	writerDone chan struct{}
	closeOnce  sync.Once

	interactions map[id.InteractionID]chan<- Response
	// Queued until their receivers take them so that the actor never
	// blocks on a slow interaction owner or on the session.
	deliveries []delivery
	pending    []Notice
}

// Spawn starts a client actor for conn together with its read and write
// pumps. The actor stops when the connection ends, when the player asks to
// disconnect, or when ctx is cancelled.
func Spawn(ctx context.Context, opts Options) *Handle {
	size := opts.Mailbox
	if size <= 0 {
		size = defaultMailbox
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	m := &manager{
		player:       opts.Player,
		conn:         opts.Conn,
		log:          log.With(zap.Stringer("player", opts.Player)),
		events:       make(chan event, size),
		done:         make(chan struct{}),
		notices:      opts.Notices,
		inbound:      make(chan protocol.ClientMessage, size),
		outbound:     make(chan protocol.ServerMessage, size),
		writerDone:   make(chan struct{}),
		interactions: make(map[id.InteractionID]chan<- Response),
	}

	readCtx, stopReading := context.WithCancel(ctx)
	go m.readPump(readCtx)
	go m.writePump(ctx)
	go func() {
		defer stopReading()
		m.loop(ctx)
	}()

	return &Handle{player: m.player, events: m.events, done: m.done}
}

func (m *manager) readPump(ctx context.Context) {
	defer close(m.inbound)
	for {
		msg, err := m.conn.Read(ctx)
		if err != nil {
			m.log.Debug("read ended", zap.Error(err))
			return
		}
		select {
		case m.inbound <- msg:
		case <-ctx.Done():
			return
		}
	}
}

func (m *manager) writePump(ctx context.Context) {
	defer close(m.writerDone)
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-m.outbound:
			if _, ok := msg.(protocol.CloseConnection); ok {
				m.closeConn()
				return
			}
			if err := m.conn.Write(ctx, msg); err != nil {
				m.log.Info("write failed", zap.String("type", msg.MessageType()), zap.Error(err))
				return
			}
		}
	}
}

func (m *manager) closeConn() {
	m.closeOnce.Do(func() {
		if err := m.conn.Close(); err != nil {
			m.log.Debug("close connection", zap.Error(err))
		}
	})
}

func (m *manager) loop(ctx context.Context) {
	for {
		var deliverTo chan<- Response
		var next Response
		if len(m.deliveries) > 0 {
			deliverTo, next = m.deliveries[0].to, m.deliveries[0].r
		}
		var notify chan<- Notice
		var notice Notice
		if len(m.pending) > 0 {
			notify, notice = m.notices, m.pending[0]
		}

		select {
		case <-ctx.Done():
			close(m.done)
			m.closeConn()
			return

		case ev := <-m.events:
			if !m.handleEvent(ctx, ev) {
				m.terminate(ctx)
				return
			}

		case msg, ok := <-m.inbound:
			if !ok || !m.handleMessage(ctx, msg) {
				m.terminate(ctx)
				return
			}

		case deliverTo <- next:
			m.deliveries = m.deliveries[1:]

		case notify <- notice:
			m.pending = m.pending[1:]

		case <-m.writerDone:
			m.terminate(ctx)
			return
		}
	}
}

// handleEvent reports false when the actor should stop.
func (m *manager) handleEvent(ctx context.Context, ev event) bool {
	switch e := ev.(type) {
	case stateUpdate:
		return m.write(ctx, protocol.StateUpdate{View: e.view})

	case sendPacket:
		return m.write(ctx, e.msg)

	case createInteraction:
		iid := id.Allocate(m.interactions)
		m.interactions[iid] = e.replies
		e.reply <- iid
		return m.write(ctx, protocol.InteractionRequest{ID: iid, Data: e.data})

	case followupInteraction:
		if _, ok := m.interactions[e.id]; !ok {
			m.log.Warn("followup for unknown interaction", zap.Stringer("interaction", e.id))
			return true
		}
		return m.write(ctx, protocol.InteractionFollowup{ID: e.id, Data: e.data})

	case closeInteraction:
		if _, ok := m.interactions[e.id]; !ok {
			m.log.Warn("close for unknown interaction", zap.Stringer("interaction", e.id))
			return true
		}
		delete(m.interactions, e.id)
		m.dropDeliveries(e.id)
		return m.write(ctx, protocol.InteractionClose{ID: e.id})

	case disconnect:
		return false
	}
	return true
}

// handleMessage reports false when the player asked to leave.
func (m *manager) handleMessage(ctx context.Context, msg protocol.ClientMessage) bool {
	switch msg := msg.(type) {
	case protocol.InteractionResponse:
		to, ok := m.interactions[msg.ID]
		if !ok {
			m.log.Warn("response for unknown interaction", zap.Stringer("interaction", msg.ID))
			return true
		}
		m.deliveries = append(m.deliveries, delivery{
			to: to,
			r:  Response{From: m.player, Interaction: msg.ID, Data: msg.Data},
		})

	case protocol.StartGame:
		m.pending = append(m.pending, Notice{Player: m.player, Kind: NoticeStartGame})

	case protocol.ConfigureGame:
		m.pending = append(m.pending, Notice{Player: m.player, Kind: NoticeConfigureGame, RolePool: msg.RolePool})

	case protocol.CloseConnection:
		return false

	case protocol.Unrecognized:
		m.log.Warn("unrecognized message")
		return m.write(ctx, protocol.Unrecognized{})

	default:
		m.log.Warn("unexpected message after joining", zap.String("type", msg.MessageType()))
	}
	return true
}

func (m *manager) dropDeliveries(iid id.InteractionID) {
	kept := m.deliveries[:0]
	for _, d := range m.deliveries {
		if d.r.Interaction != iid {
			kept = append(kept, d)
		}
	}
	m.deliveries = kept
}

func (m *manager) write(ctx context.Context, msg protocol.ServerMessage) bool {
	select {
	case m.outbound <- msg:
		return true
	case <-m.writerDone:
		return false
	case <-ctx.Done():
		return false
	}
}

// terminate stops accepting events, hands the session whatever it still has
// to know (ending with NoticeConnectionLost) and closes the connection.
func (m *manager) terminate(ctx context.Context) {
	close(m.done)
	m.pending = append(m.pending, Notice{Player: m.player, Kind: NoticeConnectionLost})
	for _, n := range m.pending {
		select {
		case m.notices <- n:
		case <-ctx.Done():
			m.closeConn()
			return
		}
	}

	select {
	case m.outbound <- protocol.CloseConnection{}:
		select {
		case <-m.writerDone:
		case <-ctx.Done():
		}
	case <-m.writerDone:
	case <-ctx.Done():
	}
	m.closeConn()
}
