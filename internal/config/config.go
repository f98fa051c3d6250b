package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the API service.
type Config struct {
	AppName    string
	AppEnv     string
	AppPort    string
	AppVersion string

	DatabaseURL string
	ModelPath   string

	RedisURL     string
	NATSURL      string
	EventChannel string

	JWTSecret string
	APIKeys   []string
	TokenTTL  time.Duration

	ScoringRateLimit  int
	ScoringRateWindow time.Duration
	SSEKeepAlive      time.Duration

	CORSOrigins string
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and an optional
// .env file. The jwt secret and at least one API key are required; everything
// else has a working default.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("NDD")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "NDD Risk API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("database.url", "data/ndd_calculator.db")
	v.SetDefault("model.path", "data/model.json")
	v.SetDefault("event.channel", "ndd")
	v.SetDefault("token.ttl", "1h")
	v.SetDefault("scoring.rate_limit", 60)
	v.SetDefault("scoring.rate_window", "1m")
	v.SetDefault("sse.keepalive", "30s")
	v.SetDefault("cors.origins", "*")

	tokenTTL, err := time.ParseDuration(v.GetString("token.ttl"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid token ttl: %w", err)
	}

	rateWindow, err := time.ParseDuration(v.GetString("scoring.rate_window"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid scoring rate window: %w", err)
	}

	keepAlive, err := time.ParseDuration(v.GetString("sse.keepalive"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid sse keepalive: %w", err)
	}

	cfg := Config{
		AppName:           v.GetString("app.name"),
		AppEnv:            v.GetString("app.env"),
		AppPort:           v.GetString("app.port"),
		AppVersion:        v.GetString("app.version"),
		DatabaseURL:       v.GetString("database.url"),
		ModelPath:         v.GetString("model.path"),
		RedisURL:          v.GetString("redis.url"),
		NATSURL:           v.GetString("nats.url"),
		EventChannel:      v.GetString("event.channel"),
		JWTSecret:         v.GetString("jwt.secret"),
		APIKeys:           splitAndTrim(v.GetString("api.keys")),
		TokenTTL:          tokenTTL,
		ScoringRateLimit:  v.GetInt("scoring.rate_limit"),
		ScoringRateWindow: rateWindow,
		SSEKeepAlive:      keepAlive,
		CORSOrigins:       v.GetString("cors.origins"),
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	if len(cfg.APIKeys) == 0 {
		return Config{}, fmt.Errorf("at least one api key must be configured")
	}

	return cfg, nil
}

func splitAndTrim(input string) []string {
	parts := strings.Split(input, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
