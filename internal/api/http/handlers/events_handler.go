package handlers

import (
	"bufio"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/spec-kit/picto-request-service/internal/live"
)

// EventsHandler serves the live server-sent event stream.
type EventsHandler struct {
	registry  *live.Registry
	heartbeat time.Duration
	logger    *zap.Logger
}

// NewEventsHandler constructs handler.
func NewEventsHandler(registry *live.Registry, heartbeat time.Duration, logger *zap.Logger) *EventsHandler {
	return &EventsHandler{registry: registry, heartbeat: heartbeat, logger: logger}
}

// Stream GET /events.
func (h *EventsHandler) Stream(c *fiber.Ctx) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	conn := h.registry.Subscribe(actor.Login)
	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		if err := h.registry.Pump(conn, w, h.heartbeat); err != nil {
			h.logger.Debug("live stream closed", zap.String("recipient", actor.Login), zap.Error(err))
		}
	}))
	return nil
}
