package router

import (
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/neuroscreen/ndd-risk-api/internal/config"
	"github.com/neuroscreen/ndd-risk-api/internal/handler"
	"github.com/neuroscreen/ndd-risk-api/internal/middleware"
	"github.com/neuroscreen/ndd-risk-api/internal/observability"
	"github.com/neuroscreen/ndd-risk-api/internal/service"
	"github.com/neuroscreen/ndd-risk-api/pkg/classifier"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	EvaluationHandler *handler.EvaluationHandler
	AuthHandler       *handler.AuthHandler
	ModelHandler      *handler.ModelHandler
	EventHandler      *handler.EventHandler
	JWTMiddleware     fiber.Handler
	ScoringLimiter    fiber.Handler
	DB                *gorm.DB
	Model             classifier.Classifier
}

// Register wires the HTTP routes into the fiber application. Everything
// lives under a single /api/v1 group; the unversioned root and health
// endpoints mirror the original deployment's monitoring surface.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	app.Get("/", handler.RootIndex(cfg))
	app.Get("/health", handler.HealthCheck(cfg, deps.DB, deps.Model))
	app.Get("/metrics", observability.MetricsHandler())

	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.DB, deps.Model))

	// Protected routes check the token first and the role claim second. The
	// guards attach per route because public and protected paths share the
	// /api/v1 prefix.
	guards := make([]fiber.Handler, 0, 2)
	if deps.JWTMiddleware != nil {
		guards = append(guards, deps.JWTMiddleware)
	}
	guards = append(guards, middleware.RequireRole(service.TokenRole))

	if deps.EvaluationHandler != nil {
		deps.EvaluationHandler.RegisterPublic(api, deps.ScoringLimiter)
		deps.EvaluationHandler.RegisterProtected(api, guards...)
	}

	if deps.AuthHandler != nil {
		auth := api.Group("/auth")
		deps.AuthHandler.Register(auth, guards...)
	}

	if deps.ModelHandler != nil {
		deps.ModelHandler.Register(api, guards...)
	}

	if deps.EventHandler != nil {
		deps.EventHandler.Register(api, guards...)
	}
}
