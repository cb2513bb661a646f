// Package hub is the lobby directory. It creates lobbies, hands them out by
// id and forgets them once they close.
package hub

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/DoyleJ11/werewolf-backend/internal/client"
	"github.com/DoyleJ11/werewolf-backend/internal/id"
	"github.com/DoyleJ11/werewolf-backend/internal/journal"
	"github.com/DoyleJ11/werewolf-backend/internal/lobby"
)

var (
	ErrUnknownLobby = errors.New("unknown lobby")
	ErrStopped      = errors.New("hub stopped")
)

type HubMsg interface{ isHubMsg() }

type CreateLobby struct {
	Reply chan *lobby.Lobby
}

type GetLobby struct {
	LobbyID id.LobbyID
	Reply   chan *lobby.Lobby
}

type RemoveLobby struct {
	LobbyID id.LobbyID
}

type CountLobbies struct {
	Reply chan int
}

// ShutdownHub closes every lobby and stops the hub. The lobbies that were
// open are sent on Reply.
type ShutdownHub struct {
	Reply chan []*lobby.Lobby
}

func (CreateLobby) isHubMsg()  {}
func (GetLobby) isHubMsg()     {}
func (RemoveLobby) isHubMsg()  {}
func (CountLobbies) isHubMsg() {}
func (ShutdownHub) isHubMsg()  {}

type Options struct {
	Logger *zap.Logger
	// Mailbox is the capacity of every lobby and client mailbox.
	Mailbox int
	RunGame lobby.GameFunc
	Journal journal.Journal
}

type Hub struct {
	inbox   chan HubMsg
	lobbies map[id.LobbyID]*lobby.Lobby
	ctx     context.Context
	cancel  context.CancelFunc
	log     *zap.Logger
	opts    Options
}

func NewHub(parent context.Context, opts Options) *Hub {
	ctx, cancel := context.WithCancel(parent)
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	h := &Hub{
		inbox:   make(chan HubMsg, 64),
		lobbies: make(map[id.LobbyID]*lobby.Lobby),
		ctx:     ctx,
		cancel:  cancel,
		log:     opts.Logger,
		opts:    opts,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

// Done is closed once the hub has stopped.
func (h *Hub) Done() <-chan struct{} { return h.ctx.Done() }

func (h *Hub) send(ctx context.Context, m HubMsg) error {
	select {
	case h.inbox <- m:
		return nil
	case <-h.ctx.Done():
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func ask[T any](ctx context.Context, h *Hub, m HubMsg, reply chan T) (T, error) {
	var zero T
	if err := h.send(ctx, m); err != nil {
		return zero, err
	}
	select {
	case v := <-reply:
		return v, nil
	case <-h.ctx.Done():
		return zero, ErrStopped
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Create opens a new, empty lobby.
func (h *Hub) Create(ctx context.Context) (*lobby.Lobby, error) {
	reply := make(chan *lobby.Lobby, 1)
	return ask(ctx, h, CreateLobby{Reply: reply}, reply)
}

// Get looks a lobby up by id.
func (h *Hub) Get(ctx context.Context, lid id.LobbyID) (*lobby.Lobby, error) {
	reply := make(chan *lobby.Lobby, 1)
	lb, err := ask(ctx, h, GetLobby{LobbyID: lid, Reply: reply}, reply)
	if err != nil {
		return nil, err
	}
	if lb == nil {
		return nil, ErrUnknownLobby
	}
	return lb, nil
}

// Count reports the number of open lobbies.
func (h *Hub) Count(ctx context.Context) (int, error) {
	reply := make(chan int, 1)
	return ask(ctx, h, CountLobbies{Reply: reply}, reply)
}

// Join hands conn to lobby lid. A lobby that closes in the meantime counts
// as unknown.
func (h *Hub) Join(ctx context.Context, lid id.LobbyID, conn client.Conn) (*lobby.Lobby, error) {
	lb, err := h.Get(ctx, lid)
	if err != nil {
		return nil, err
	}
	if err := lb.Send(ctx, lobby.NewConnection{Conn: conn}); err != nil {
		if errors.Is(err, lobby.ErrClosed) {
			return nil, ErrUnknownLobby
		}
		return nil, err
	}
	return lb, nil
}

// CreateAndJoin opens a lobby with conn as its first player and host.
func (h *Hub) CreateAndJoin(ctx context.Context, conn client.Conn) (*lobby.Lobby, error) {
	lb, err := h.Create(ctx)
	if err != nil {
		return nil, err
	}
	if err := lb.Send(ctx, lobby.NewConnection{Conn: conn}); err != nil {
		return nil, err
	}
	return lb, nil
}

// Shutdown closes every lobby and stops the hub. It returns once each lobby
// has finished closing, or when ctx ends first.
func (h *Hub) Shutdown(ctx context.Context) error {
	reply := make(chan []*lobby.Lobby, 1)
	if err := h.send(ctx, ShutdownHub{Reply: reply}); err != nil {
		return err
	}

	var lobbies []*lobby.Lobby
	select {
	case lobbies = <-reply:
	case <-h.ctx.Done():
		// The reply is sent before the hub stops.
		select {
		case lobbies = <-reply:
		default:
		}
	case <-ctx.Done():
		return ctx.Err()
	}

	for _, lb := range lobbies {
		select {
		case <-lb.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case CreateLobby:
				lid := id.Allocate(h.lobbies)
				lb := lobby.New(h.ctx, lobby.Options{
					ID:      lid,
					Logger:  h.log,
					Mailbox: h.opts.Mailbox,
					RunGame: h.opts.RunGame,
					Journal: h.opts.Journal,
					OnClose: h.forget,
				})
				h.lobbies[lid] = lb
				h.log.Info("lobby created", zap.Stringer("lobby", lid))
				msg.Reply <- lb

			case GetLobby:
				msg.Reply <- h.lobbies[msg.LobbyID] // May be nil

			case CountLobbies:
				msg.Reply <- len(h.lobbies)

			case RemoveLobby:
				if _, ok := h.lobbies[msg.LobbyID]; !ok {
					h.log.Warn("remove for unknown lobby", zap.Stringer("lobby", msg.LobbyID))
					break
				}
				delete(h.lobbies, msg.LobbyID)
				h.log.Info("lobby removed", zap.Stringer("lobby", msg.LobbyID))

			case ShutdownHub:
				h.log.Info("hub shutting down", zap.Int("lobbies", len(h.lobbies)))
				closing := make([]*lobby.Lobby, 0, len(h.lobbies))
				for _, lb := range h.lobbies {
					if err := lb.Send(h.ctx, lobby.Shutdown{}); err != nil {
						h.log.Debug("lobby already closed", zap.Stringer("lobby", lb.ID()), zap.Error(err))
					}
					closing = append(closing, lb)
				}
				clear(h.lobbies)
				msg.Reply <- closing
				h.cancel()
			}
		}
	}
}

// forget runs on a closing lobby's goroutine. It gives up if the hub is
// already gone.
func (h *Hub) forget(lid id.LobbyID) {
	select {
	case h.inbox <- RemoveLobby{LobbyID: lid}:
	case <-h.ctx.Done():
	}
}
