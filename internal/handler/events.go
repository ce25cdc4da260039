package handler

import (
	"errors"
	"io"

	"github.com/efuayankey/aimes-sub001/internal/notify"
	"github.com/gin-gonic/gin"
)

type EventHandler struct {
	broker *notify.Broker
}

func NewEventHandler(broker *notify.Broker) *EventHandler {
	return &EventHandler{broker: broker}
}

// Stream serves request events as server-sent events. The stream starts with
// a snapshot of the active requests matching ?filter. A "lagged" event ends
// a stream that fell behind; the client reconnects for a fresh snapshot.
func (h *EventHandler) Stream(c *gin.Context) {
	ctx := c.Request.Context()
	sub, err := h.broker.Subscribe(ctx, c.Query("filter"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	events := sub.Events()
	c.Stream(func(io.Writer) bool {
		select {
		case ev, ok := <-events:
			if !ok {
				if errors.Is(sub.Err(), notify.ErrLagged) {
					c.SSEvent("lagged", gin.H{"error": notify.ErrLagged.Error()})
				}
				return false
			}
			c.SSEvent(string(ev.Type), ev)
			return true
		case <-ctx.Done():
			return false
		}
	})
}
