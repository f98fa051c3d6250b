package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/neuroscreen/ndd-risk-api/internal/dto"
	"github.com/neuroscreen/ndd-risk-api/internal/service"
)

// EventHandler streams stored-evaluation events to clients over SSE.
type EventHandler struct {
	events    service.EventService
	logger    zerolog.Logger
	keepAlive time.Duration
}

// NewEventHandler builds an event handler instance.
func NewEventHandler(events service.EventService, logger zerolog.Logger, keepAlive time.Duration) *EventHandler {
	return &EventHandler{
		events:    events,
		logger:    logger.With().Str("component", "event_handler").Logger(),
		keepAlive: keepAlive,
	}
}

// Register binds the event stream behind the guards.
func (h *EventHandler) Register(router fiber.Router, guards ...fiber.Handler) {
	router.Get("/events/evaluations", withGuards(guards, h.stream)...)
}

func (h *EventHandler) stream(c *fiber.Ctx) error {
	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)

	feed, cleanup := h.events.Subscribe()

	keepAlive := h.keepAlive
	if keepAlive <= 0 {
		keepAlive = 30 * time.Second
	}

	logger := requestLogger(h.logger, c)
	logger.Debug().Msg("evaluation event stream opened")

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer func() {
			cleanup()
			cancel()
		}()

		ticker := time.NewTicker(keepAlive / 2)
		defer ticker.Stop()

		for {
			select {
			case event, ok := <-feed:
				if !ok {
					return
				}
				if err := writeEvaluationEvent(w, event); err != nil {
					logger.Debug().Err(err).Msg("failed to write evaluation event")
					return
				}
			case <-ticker.C:
				if err := writeKeepAlive(w); err != nil {
					logger.Debug().Err(err).Msg("failed to write keepalive")
					return
				}
			case <-ctx.Done():
				return
			}
		}
	})

	return nil
}

func writeEvaluationEvent(w *bufio.Writer, event dto.EvaluationEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	if _, err := fmt.Fprintf(w, "event: evaluation\n"); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
		return err
	}
	return w.Flush()
}

func writeKeepAlive(w *bufio.Writer) error {
	if _, err := fmt.Fprintf(w, ": keep-alive %s\n\n", time.Now().UTC().Format(time.RFC3339)); err != nil {
		return err
	}
	return w.Flush()
}
