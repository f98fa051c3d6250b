package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/neuroscreen/ndd-risk-api/internal/config"
	"github.com/neuroscreen/ndd-risk-api/internal/database"
	"github.com/neuroscreen/ndd-risk-api/internal/handler"
	"github.com/neuroscreen/ndd-risk-api/internal/middleware"
	"github.com/neuroscreen/ndd-risk-api/internal/models"
	"github.com/neuroscreen/ndd-risk-api/internal/repository"
	"github.com/neuroscreen/ndd-risk-api/internal/router"
	"github.com/neuroscreen/ndd-risk-api/internal/service"
	"github.com/neuroscreen/ndd-risk-api/pkg/classifier"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := db.AutoMigrate(&models.Evaluation{}); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	// Brokers are optional: without them the evaluation feed stays node local.
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(cfg.RedisURL)
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		defer redisClient.Close()
	}

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = database.ConnectNATS(cfg.NATSURL)
		if err != nil {
			log.Fatalf("failed to connect to nats: %v", err)
		}
		defer natsConn.Close()
	}

	model, err := classifier.NewLogisticModel(classifier.Config{
		Path:   cfg.ModelPath,
		Logger: logger,
	})
	if err != nil {
		log.Fatalf("failed to configure classifier: %v", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	evaluationRepo := repository.NewEvaluationRepository(db)

	eventService := service.NewEventService(redisClient, cfg.EventChannel, natsConn, logger)
	evaluationService := service.NewEvaluationService(evaluationRepo, model, eventService, validate, logger)
	authService := service.NewAuthService(cfg.JWTSecret, cfg.APIKeys, cfg.TokenTTL, validate, logger)

	evaluationHandler := handler.NewEvaluationHandler(evaluationService, logger)
	authHandler := handler.NewAuthHandler(authService, logger)
	modelHandler := handler.NewModelHandler(model, logger)
	eventHandler := handler.NewEventHandler(eventService, logger, cfg.SSEKeepAlive)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eventService.Start(ctx)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{
		Logger:      &logger,
		CORSOrigins: cfg.CORSOrigins,
	})
	router.Register(app, cfg, router.Dependencies{
		EvaluationHandler: evaluationHandler,
		AuthHandler:       authHandler,
		ModelHandler:      modelHandler,
		EventHandler:      eventHandler,
		JWTMiddleware:     middleware.JWTProtected(cfg.JWTSecret),
		ScoringLimiter:    middleware.RateLimit("scoring", cfg.ScoringRateLimit, cfg.ScoringRateWindow),
		DB:                db,
		Model:             model,
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	logger.Info().
		Str("addr", cfg.HTTPAddress()).
		Str("database", cfg.DatabaseURL).
		Str("model", cfg.ModelPath).
		Msg("server started")

	waitForShutdown(ctx, app)
}

func waitForShutdown(ctx context.Context, app *fiber.App) {
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}
