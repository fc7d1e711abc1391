package handler

import (
	"net/http"
	"time"

	"procgrid/pkg/events"
	"procgrid/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins, production should use stricter checks
	},
}

const (
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 30 * time.Second
)

// EventsHandler streams lifecycle events to websocket clients. Each client
// gets its own redis subscription; there is no replay, a client sees only
// what happens while it is connected.
type EventsHandler struct {
	subscriber *events.Subscriber
}

// NewEventsHandler creates events handler. subscriber may be nil when redis
// is not configured; the endpoint then refuses connections.
func NewEventsHandler(subscriber *events.Subscriber) *EventsHandler {
	return &EventsHandler{subscriber: subscriber}
}

// Stream upgrades the connection and relays lifecycle events
// @Summary Stream lifecycle events over websocket
// @Tags events
// @Router /events/ws [get]
func (h *EventsHandler) Stream(c *gin.Context) {
	if h.subscriber == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "event streaming not configured"})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.ErrorCtx(c.Request.Context(), "failed to upgrade to websocket: %v", err)
		return
	}
	defer ws.Close()

	ctx := c.Request.Context()
	ch, err := h.subscriber.Subscribe(ctx)
	if err != nil {
		logger.ErrorCtx(ctx, "failed to subscribe to lifecycle events: %v", err)
		return
	}

	// Drain the read side so close frames and client disconnects are
	// noticed.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	pingTicker := time.NewTicker(wsPingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-pingTicker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case ev, ok := <-ch:
			if !ok {
				return
			}
			_ = ws.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := ws.WriteJSON(ev); err != nil {
				logger.DebugCtx(ctx, "websocket client gone: %v", err)
				return
			}
		}
	}
}
