package events

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/z-tavern-rpg/backend/internal/model/event"
	eventservice "github.com/zhouzirui/z-tavern-rpg/backend/internal/service/events"
	"github.com/zhouzirui/z-tavern-rpg/backend/pkg/utils"
)

const (
	heartbeatInterval = 15 * time.Second
	pongWait          = 60 * time.Second
	pingPeriod        = 54 * time.Second
	writeWait         = 10 * time.Second
)

// Handler streams display events over SSE and WebSocket.
type Handler struct {
	hub      *eventservice.Hub
	buffer   int
	upgrader websocket.Upgrader
}

// New 创建事件流处理器
func New(hub *eventservice.Hub) *Handler {
	return &Handler{
		hub:    hub,
		buffer: eventservice.DefaultBuffer,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes 注册事件流路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/events", h.handleSSE)
	r.Get("/events/ws", h.handleWebSocket)
}

// handleSSE 以 Server-Sent Events 推送会话事件
func (h *Handler) handleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	events, cancel := h.hub.Subscribe(h.buffer)
	defer cancel()

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	if err := utils.SendSSEComment(w, flusher, "stream established"); err != nil {
		return
	}

	ctx := r.Context()
	log.Debug().Str("component", "http").Msg("sse subscriber connected")

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("component", "http").Msg("sse subscriber disconnected")
			return
		case <-ticker.C:
			if err := utils.SendSSEComment(w, flusher, "heartbeat"); err != nil {
				return
			}
		case e, ok := <-events:
			if !ok {
				return
			}
			if err := utils.SendSSEEvent(w, flusher, string(e.Kind), e.ID, e); err != nil {
				log.Warn().Err(err).Str("component", "http").Msg("sse write failed")
				return
			}
		}
	}
}

// handleWebSocket 以 WebSocket 推送会话事件；客户端消息只用于保活。
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("component", "http").Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	events, cancel := h.hub.Subscribe(h.buffer)
	defer cancel()

	ctx, stop := context.WithCancel(r.Context())
	defer stop()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	go h.readLoop(conn, stop)

	log.Debug().Str("component", "http").Msg("websocket subscriber connected")

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case e, ok := <-events:
			if !ok {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "event stream closed"),
					time.Now().Add(writeWait))
				return
			}
			if err := h.writeEvent(conn, e); err != nil {
				log.Warn().Err(err).Str("component", "http").Msg("websocket write failed")
				return
			}
		}
	}
}

func (h *Handler) writeEvent(conn *websocket.Conn, e event.Event) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(e)
}

// readLoop drains client frames so pongs and close frames are processed.
func (h *Handler) readLoop(conn *websocket.Conn, stop context.CancelFunc) {
	defer stop()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("component", "http").Msg("websocket read error")
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))
	}
}
