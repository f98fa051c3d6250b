package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/neuroscreen/ndd-risk-api/internal/config"
	"github.com/neuroscreen/ndd-risk-api/internal/utils"
	"github.com/neuroscreen/ndd-risk-api/pkg/classifier"
)

// HealthResponse represents the payload returned by the health endpoints.
type HealthResponse struct {
	Status       string    `json:"status"`
	Service      string    `json:"service"`
	Database     string    `json:"database"`
	DatabaseType string    `json:"database_type"`
	ModelLoaded  bool      `json:"model_loaded"`
	Timestamp    time.Time `json:"timestamp"`
}

// HealthCheck returns a handler reporting service, database and classifier
// state. An unreachable database degrades the response to 503. A missing
// model artifact is reported but does not fail the check; the scoring
// endpoints surface that condition themselves.
func HealthCheck(cfg config.Config, db *gorm.DB, model classifier.Classifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		payload := HealthResponse{
			Status:    "healthy",
			Service:   cfg.AppName,
			Database:  "connected",
			Timestamp: time.Now().UTC(),
		}

		if db != nil {
			payload.DatabaseType = db.Dialector.Name()
			if sqlDB, err := db.DB(); err != nil || sqlDB.PingContext(c.UserContext()) != nil {
				payload.Status = "degraded"
				payload.Database = "unreachable"
			}
		}

		if model != nil {
			payload.ModelLoaded = model.Describe(c.UserContext()).Loaded
		}

		if payload.Status != "healthy" {
			return utils.SendError(c, fiber.StatusServiceUnavailable, "database unreachable")
		}

		return utils.SendSuccess(c, "service healthy", payload)
	}
}

// RootIndex serves the API information page at the root path.
func RootIndex(cfg config.Config) fiber.Handler {
	payload := fiber.Map{
		"service": cfg.AppName,
		"version": cfg.AppVersion,
		"status":  "operational",
		"endpoints": fiber.Map{
			"predict":     "/api/v1/predict",
			"submit":      "/api/v1/submit",
			"evaluations": "/api/v1/evaluations",
			"stats":       "/api/v1/stats",
			"health":      "/health",
			"metrics":     "/metrics",
		},
	}

	return func(c *fiber.Ctx) error {
		return utils.SendSuccess(c, "Neurodevelopmental Disorders Risk Calculator API", payload)
	}
}
