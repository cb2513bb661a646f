package ws

import (
	"context"
	"errors"
	"net/http"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/DoyleJ11/werewolf-backend/internal/hub"
	"github.com/DoyleJ11/werewolf-backend/internal/lobby"
	"github.com/DoyleJ11/werewolf-backend/internal/protocol"
)

type Options struct {
	// OriginPatterns lists the cross origins allowed to connect.
	OriginPatterns []string
}

// Handler upgrades the request and waits for the player to either create a
// lobby or join one. From then on the lobby owns the connection; the handler
// only returns once that connection is closed.
func Handler(h *hub.Hub, log *zap.Logger, opts Options) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		wsConn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: opts.OriginPatterns,
		})
		if err != nil {
			log.Debug("websocket accept failed", zap.Error(err))
			return
		}
		conn := NewConn(wsConn, log)
		defer conn.Close()

		lb, err := handshake(r.Context(), h, conn, log)
		if err != nil {
			log.Debug("connection ended before joining a lobby", zap.Error(err))
			return
		}
		log.Debug("connection handed to lobby", zap.Stringer("lobby", lb.ID()))

		select {
		case <-conn.Done():
		case <-h.Done():
		}
	}
}

// handshake reads until the connection has been placed in a lobby.
func handshake(ctx context.Context, h *hub.Hub, conn *Conn, log *zap.Logger) (*lobby.Lobby, error) {
	for {
		m, err := conn.Read(ctx)
		if err != nil {
			return nil, err
		}

		var lb *lobby.Lobby
		switch msg := m.(type) {
		case protocol.CreateNewLobby:
			lb, err = h.CreateAndJoin(ctx, conn)
		case protocol.JoinLobby:
			lb, err = h.Join(ctx, msg.LobbyID, conn)
			if errors.Is(err, hub.ErrUnknownLobby) {
				log.Info("join for unknown lobby", zap.Stringer("lobby", msg.LobbyID))
				if err := conn.Write(ctx, protocol.UnknownLobbyID{}); err != nil {
					return nil, err
				}
				continue
			}
		case protocol.CloseConnection:
			return nil, errors.New("closed by client")
		default:
			log.Warn("message before joining a lobby", zap.String("type", m.MessageType()))
			if err := conn.Write(ctx, protocol.Unrecognized{}); err != nil {
				return nil, err
			}
			continue
		}
		if err != nil {
			return nil, err
		}
		return lb, nil
	}
}
