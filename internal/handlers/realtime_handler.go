package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/anonto42/collab-sync/backend/internal/realtime"
	"github.com/anonto42/collab-sync/backend/internal/services"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

const (
	readLimit = 4096
	pongWait  = 60 * time.Second
)

// ClientFrame is a control message sent by a websocket client
type ClientFrame struct {
	Type  string `json:"type"`
	Scope string `json:"scope"`
}

// ServerFrame acknowledges or rejects a ClientFrame
type ServerFrame struct {
	Type  string `json:"type"`
	Scope string `json:"scope,omitempty"`
	Error string `json:"error,omitempty"`
}

// RealtimeHandler streams bus events to websocket clients
type RealtimeHandler struct {
	bus        *realtime.Bus
	authorizer *services.ScopeAuthorizer
	upgrader   websocket.Upgrader
	logger     *slog.Logger
}

func NewRealtimeHandler(bus *realtime.Bus, authorizer *services.ScopeAuthorizer) *RealtimeHandler {
	return &RealtimeHandler{
		bus:        bus,
		authorizer: authorizer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: slog.Default().With("component", "realtime"),
	}
}

func (h *RealtimeHandler) RegisterRealtimeRoutes(g *echo.Group) {
	g.GET("/realtime", h.Stream)
}

// Stream upgrades the request and serves one session until the client goes
// away. The user's own notification scope is subscribed on connect.
func (h *RealtimeHandler) Stream(c echo.Context) error {
	userID, err := requireUser(c)
	if err != nil {
		return err
	}

	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return nil
	}
	conn := realtime.NewConnection(userID, ws)
	conn.Start()

	session := realtime.NewSession(h.bus, userID, func(ev realtime.Event) {
		payload, err := json.Marshal(ev)
		if err != nil {
			h.logger.Error("encode event", "scope", ev.Scope, "error", err)
			return
		}
		_ = conn.Send(payload)
	})
	defer func() {
		session.Close()
		conn.Close(websocket.CloseNormalClosure, "")
	}()

	if err := session.Subscribe(realtime.UserNotificationsScope(userID)); err != nil {
		h.logger.Error("subscribe notifications", "user_id", userID, "error", err)
		return nil
	}
	h.logger.Info("realtime session opened", "session_id", session.ID, "user_id", userID)

	ws.SetReadLimit(readLimit)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	ctx := c.Request().Context()
	for {
		var frame ClientFrame
		if err := ws.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Warn("realtime read", "session_id", session.ID, "error", err)
			}
			break
		}
		_ = ws.SetReadDeadline(time.Now().Add(pongWait))
		h.reply(conn, h.handleFrame(ctx, session, frame))
	}

	h.logger.Info("realtime session closed", "session_id", session.ID, "user_id", userID)
	return nil
}

func (h *RealtimeHandler) handleFrame(ctx context.Context, session *realtime.Session, frame ClientFrame) ServerFrame {
	switch frame.Type {
	case "subscribe":
		scope, err := h.authorizer.Authorize(ctx, session.UserID, frame.Scope)
		if err != nil {
			return ServerFrame{Type: "error", Scope: frame.Scope, Error: err.Error()}
		}
		if err := session.Subscribe(scope); err != nil {
			return ServerFrame{Type: "error", Scope: frame.Scope, Error: err.Error()}
		}
		return ServerFrame{Type: "subscribed", Scope: frame.Scope}
	case "unsubscribe":
		session.Unsubscribe(realtime.Scope(frame.Scope))
		return ServerFrame{Type: "unsubscribed", Scope: frame.Scope}
	default:
		return ServerFrame{Type: "error", Error: "unknown frame type " + frame.Type}
	}
}

func (h *RealtimeHandler) reply(conn *realtime.Connection, frame ServerFrame) {
	payload, err := json.Marshal(frame)
	if err != nil {
		return
	}
	_ = conn.Send(payload)
}
