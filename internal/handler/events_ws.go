package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"arbiter/internal/bus"
)

// EventFeedHandler bridges the in-process bus to external websocket
// subscribers (dashboards, notification services). Each connection gets its
// own bus subscription; the bus's best-effort policy applies, a slow reader
// drops events rather than backing up arbitration.
type EventFeedHandler struct {
	Bus    *bus.Bus
	Logger *zap.Logger
}

func (h *EventFeedHandler) Register(r *gin.Engine) {
	r.GET("/api/v1/events/ws", h.stream)
}

func (h *EventFeedHandler) stream(c *gin.Context) {
	if h.Bus == nil {
		Error(c, http.StatusInternalServerError, "event bus unavailable", nil)
		return
	}
	conn, err := websocket.Accept(c.Writer, c.Request, nil)
	if err != nil {
		if h.Logger != nil {
			h.Logger.Warn("websocket accept failed", zap.Error(err))
		}
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "closing")

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	var types []bus.EventType
	for _, raw := range c.QueryArray("type") {
		if raw != "" {
			types = append(types, bus.EventType(raw))
		}
	}

	unsubscribe := h.Bus.Subscribe(ctx, "ws:"+c.ClientIP(), func(ctx context.Context, ev bus.Event) error {
		payload, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		return conn.Write(ctx, websocket.MessageText, payload)
	}, types...)
	defer unsubscribe()

	// Reads are discarded; the feed is one-way. A read error means the peer
	// went away and the subscription should be torn down.
	for {
		if _, _, err := conn.Read(ctx); err != nil {
			return
		}
	}
}
