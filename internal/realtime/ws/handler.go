// Package ws bridges realtime subscriptions onto websocket connections.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"anoa.com/casethreads/internal/realtime"
	"anoa.com/casethreads/pkg/response"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

type Handler struct {
	broker   realtime.Broker
	logger   *slog.Logger
	upgrader websocket.Upgrader

	writeWait  time.Duration
	pongWait   time.Duration
	pingPeriod time.Duration
}

func NewHandler(broker realtime.Broker, logger *slog.Logger, checkOrigin func(*http.Request) bool) *Handler {
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &Handler{
		broker: broker,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		writeWait:  writeWait,
		pongWait:   pongWait,
		pingPeriod: pingPeriod,
	}
}

// CaseStream pushes every event of one case to the caller.
func (h *Handler) CaseStream(c *gin.Context) {
	if _, err := response.GetUserID(c); err != nil {
		response.ResponseError(c, err)
		return
	}
	caseID, err := response.ParamUUID(c, "case_id")
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	h.stream(c, func(ctx context.Context, fn realtime.Handler) (*realtime.Subscription, error) {
		return realtime.SubscribeCase(ctx, h.broker, caseID, fn)
	})
}

// NotificationStream pushes the caller's own notification events.
func (h *Handler) NotificationStream(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	h.stream(c, func(ctx context.Context, fn realtime.Handler) (*realtime.Subscription, error) {
		return realtime.SubscribeUser(ctx, h.broker, userID, fn)
	})
}

type subscribeFunc func(ctx context.Context, fn realtime.Handler) (*realtime.Subscription, error)

func (h *Handler) stream(c *gin.Context, subscribe subscribeFunc) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	outbound := make(chan realtime.Event, 16)
	sub, err := subscribe(ctx, func(ev realtime.Event) {
		select {
		case outbound <- ev:
		case <-ctx.Done():
		}
	})
	// A stalled writer backs up into the subscription, which the broker then
	// closes, ending this stream.
	if err != nil {
		h.logger.Error("realtime subscribe failed", "error", err)
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "subscribe failed"))
		return
	}
	defer sub.Close()

	_ = conn.SetReadDeadline(time.Now().Add(h.pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.pongWait))
	})

	clientClosed := make(chan struct{})
	go func() {
		defer close(clientClosed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(h.writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.logger.Debug("websocket ping failed", "channel", sub.Channel(), "error", err)
				return
			}
		case ev := <-outbound:
			payload, err := json.Marshal(ev)
			if err != nil {
				h.logger.Error("encoding event", "type", ev.Type, "error", err)
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(h.writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				h.logger.Debug("websocket write failed", "channel", sub.Channel(), "error", err)
				return
			}
		case <-clientClosed:
			return
		case <-sub.Done():
			return
		case <-ctx.Done():
			return
		}
	}
}
