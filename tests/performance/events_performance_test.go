package performance_test

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/neuroscreen/ndd-risk-api/internal/dto"
	"github.com/neuroscreen/ndd-risk-api/internal/handler"
	"github.com/neuroscreen/ndd-risk-api/internal/middleware"
	"github.com/neuroscreen/ndd-risk-api/internal/risk"
	"github.com/neuroscreen/ndd-risk-api/internal/service"
)

func TestEvaluationStreamSSEP95Under300ms(t *testing.T) {
	app := fiber.New()
	app.Use(middleware.CorrelationID())

	events := service.NewEventService(nil, "ndd", nil, zerolog.Nop())
	eventHandler := handler.NewEventHandler(events, zerolog.Nop(), 30*time.Second)

	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Locals("subject", service.TokenSubject)
		return c.Next()
	})
	eventHandler.Register(api)

	baseURL, shutdown := startFiberServer(t, app)
	defer shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Publish continuously so every subscriber sees an event shortly after
	// connecting.
	go func() {
		ticker := time.NewTicker(5 * time.Millisecond)
		defer ticker.Stop()
		id := uint(0)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				id++
				events.PublishStored(ctx, dto.EvaluationEvent{
					EvaluationID: id,
					RiskLevel:    risk.LevelLow,
					Probability:  0.12,
					Sex:          "M",
					Age:          8,
					CreatedAt:    time.Now().UTC(),
				})
			}
		}
	}()

	client := &http.Client{Timeout: 5 * time.Second}
	clients := 100
	durations := make([]time.Duration, 0, clients)

	for i := 0; i < clients; i++ {
		req, err := http.NewRequest(http.MethodGet, baseURL+"/api/v1/events/evaluations", nil)
		if err != nil {
			t.Fatalf("build request failed: %v", err)
		}

		start := time.Now()
		resp, err := client.Do(req)
		if err != nil {
			t.Fatalf("sse request failed: %v", err)
		}

		reader := bufio.NewReader(resp.Body)
		deadline := time.Now().Add(2 * time.Second)

		for {
			if time.Now().After(deadline) {
				t.Fatalf("sse response timed out for client %d", i)
			}
			line, err := reader.ReadString('\n')
			if err != nil {
				t.Fatalf("failed to read sse line: %v", err)
			}
			if strings.HasPrefix(line, "data:") {
				durations = append(durations, time.Since(start))
				break
			}
		}

		resp.Body.Close()
	}

	if p95 := p95Of(durations); p95 > 300*time.Millisecond {
		t.Fatalf("expected SSE P95 <= 300ms, got %s", p95)
	}
}

func startFiberServer(t *testing.T, app *fiber.App) (string, func()) {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to create listener: %v", err)
	}

	done := make(chan struct{})
	go func() {
		if err := app.Listener(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			t.Logf("fiber listener stopped: %v", err)
		}
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)

	shutdown := func() {
		_ = app.Shutdown()
		_ = listener.Close()
		select {
		case <-done:
		case <-time.After(100 * time.Millisecond):
		}
	}

	return "http://" + listener.Addr().String(), shutdown
}
