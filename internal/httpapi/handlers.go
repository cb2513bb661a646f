package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/DoyleJ11/werewolf-backend/internal/hub"
	"github.com/DoyleJ11/werewolf-backend/internal/id"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func Healthz(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := h.Count(r.Context())
		if err != nil {
			http.Error(w, "hub unavailable", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, http.StatusOK, struct {
			Status  string `json:"status"`
			Lobbies int    `json:"lobbies"`
		}{Status: "ok", Lobbies: n})
	}
}

// GetLobby reports whether a lobby id can be joined.
func GetLobby(h *hub.Hub, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var lid id.LobbyID
		if err := lid.UnmarshalText([]byte(chi.URLParam(r, "id"))); err != nil {
			http.Error(w, "bad lobby id", http.StatusBadRequest)
			return
		}

		lb, err := h.Get(r.Context(), lid)
		switch {
		case errors.Is(err, hub.ErrUnknownLobby):
			http.Error(w, "lobby not found", http.StatusNotFound)
			return
		case err != nil:
			log.Warn("lobby lookup failed", zap.Stringer("lobby", lid), zap.Error(err))
			http.Error(w, "hub unavailable", http.StatusServiceUnavailable)
			return
		}

		writeJSON(w, http.StatusOK, struct {
			ID id.LobbyID `json:"id"`
		}{ID: lb.ID()})
	}
}
