package ws

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/match-setup-backend/internal/engine"
	"github.com/DoyleJ11/match-setup-backend/internal/hub"
	"github.com/DoyleJ11/match-setup-backend/internal/lobby"
	"github.com/DoyleJ11/match-setup-backend/internal/types"
)

const UserHeader = "X-User-ID"

type Memberships interface {
	TeamsForUser(ctx context.Context, userID int64) ([]engine.TeamID, error)
}

// UserID reads the caller's chat user id from the header, falling back to
// the user query parameter for browsers that cannot set headers.
func UserID(r *http.Request) (int64, bool) {
	raw := r.Header.Get(UserHeader)
	if raw == "" {
		raw = r.URL.Query().Get("user")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	return id, err == nil
}

func Handler(h *hub.Hub, members Memberships, logger *zap.Logger) http.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		matchID, err := strconv.Atoi(r.URL.Query().Get("match"))
		if err != nil {
			http.Error(w, "missing match", http.StatusBadRequest)
			return
		}
		userID, ok := UserID(r)
		if !ok {
			http.Error(w, "missing user", http.StatusUnauthorized)
			return
		}
		teams, err := members.TeamsForUser(r.Context(), userID)
		if err != nil {
			http.Error(w, "failed to resolve teams", http.StatusInternalServerError)
			return
		}

		lb, err := h.Get(r.Context(), matchID)
		if err != nil || lb == nil {
			http.Error(w, "setup not running", http.StatusNotFound)
			return
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			// In dev ONLY, you can loosen origin checks:
			// OriginPatterns: []string{"http://localhost:*", "http://127.0.0.1:*"},
		})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		out := make(chan lobby.Update, 8)
		clientID := uuid.NewString()
		log := logger.With(zap.Int("match_id", matchID), zap.Int64("user_id", userID), zap.String("client_id", clientID))

		if err := lb.Send(lobby.Join{ClientID: clientID, Outbox: out}); err != nil {
			return
		}
		defer func() { _ = lb.Send(lobby.Leave{ClientID: clientID}) }()

		// Writer goroutine
		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		write := func(u lobby.Update) error {
			payload, err := sonic.Marshal(toServerMessage(u))
			if err != nil {
				log.Error("encoding update", zap.Error(err))
				return nil
			}
			ctx, cancel := context.WithTimeout(writeCtx, 3*time.Second)
			defer cancel()
			return conn.Write(ctx, websocket.MessageText, payload)
		}
		go func() {
			defer writeCancel()
			for {
				select {
				case u, ok := <-out:
					if !ok {
						// Lobby is done with this client.
						_ = conn.Close(websocket.StatusNormalClosure, "setup finished")
						return
					}
					if err := write(u); err != nil {
						return
					}
				case <-lb.Done():
					flush(out, write)
					_ = conn.Close(websocket.StatusNormalClosure, "setup finished")
					return
				case <-writeCtx.Done():
					return
				}
			}
		}()

		// Reader loop
		for {
			_, data, err := conn.Read(writeCtx)
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				default:
					if !errors.Is(err, context.Canceled) {
						log.Debug("websocket read failed", zap.Error(err))
					}
				}
				return
			}

			var cm types.ClientMessage
			if err := sonic.Unmarshal(data, &cm); err != nil {
				writeError(writeCtx, conn, "bad json")
				continue
			}

			msg, ok := toLobbyMsg(clientID, teams, cm)
			if !ok {
				writeError(writeCtx, conn, "unknown type")
				continue
			}
			if err := lb.Send(msg); err != nil {
				return
			}
		}
	}
}

// flush writes whatever the lobby queued before it stopped.
func flush(out <-chan lobby.Update, write func(lobby.Update) error) {
	for {
		select {
		case u, ok := <-out:
			if !ok || write(u) != nil {
				return
			}
		default:
			return
		}
	}
}

func toLobbyMsg(clientID string, teams []engine.TeamID, m types.ClientMessage) (lobby.Msg, bool) {
	switch m.Type {
	case "select":
		var typ engine.CommandType
		switch m.CustomID {
		case engine.ServerSelectID:
			typ = engine.CmdPickServer
		case engine.MapSelectID:
			typ = engine.CmdSelectMap
		case engine.SidePickID:
			typ = engine.CmdPickSide
		default:
			return nil, false
		}
		return lobby.FromClient{ClientID: clientID, Cmd: engine.Command{Type: typ, Teams: teams, Value: m.Value}}, true
	case "connect_info":
		return lobby.RequestConnectInfo{ClientID: clientID}, true
	default:
		return nil, false
	}
}

func toServerMessage(u lobby.Update) types.ServerMessage {
	msg := types.ServerMessage{Type: string(u.Kind), Version: u.Version, Text: u.Text}
	switch u.Kind {
	case lobby.UpdateRejected:
		if u.Err != nil {
			msg.Error = u.Err.Error()
		}
		return msg
	case lobby.UpdateConnectInfo:
		return msg
	}
	state := u.State
	msg.State = &state
	if u.Prompt.Text != "" || u.Prompt.CustomID != "" {
		prompt := u.Prompt
		msg.Prompt = &prompt
	}
	return msg
}

func writeError(ctx context.Context, conn *websocket.Conn, reason string) {
	payload, _ := sonic.Marshal(types.ServerMessage{Type: "Error", Error: reason})
	_ = conn.Write(ctx, websocket.MessageText, payload)
}
