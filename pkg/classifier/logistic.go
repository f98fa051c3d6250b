package classifier

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	predictionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "ndd",
		Subsystem: "classifier",
		Name:      "prediction_duration_seconds",
		Help:      "Duration of classifier predictions",
	}, []string{"model"})

	predictionFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ndd",
		Subsystem: "classifier",
		Name:      "prediction_failures_total",
		Help:      "Number of failed classifier predictions",
	}, []string{"reason"})

	artifactLoads = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ndd",
		Subsystem: "classifier",
		Name:      "artifact_loads_total",
		Help:      "Number of classifier artifact load attempts",
	}, []string{"outcome"})
)

// artifactFormat names the artifact document format this loader understands.
const artifactFormat = "ndd-logistic/1"

// artifactSchema is validated against the decoded artifact document before the
// model is trusted. A file that parses as JSON but fails this schema is
// treated the same as a missing file: the model stays unavailable.
const artifactSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["format", "model_type", "n_features", "classes", "weights", "intercept"],
  "properties": {
    "format": {"type": "string", "const": "` + artifactFormat + `"},
    "model_type": {"type": "string", "minLength": 1},
    "version": {"type": "string"},
    "n_features": {"type": "integer", "minimum": 1},
    "classes": {
      "type": "array",
      "prefixItems": [{"const": 0}, {"const": 1}],
      "minItems": 2,
      "maxItems": 2
    },
    "weights": {"type": "array", "items": {"type": "number"}, "minItems": 1},
    "intercept": {"type": "number"},
    "trained_at": {"type": "string", "format": "date-time"}
  }
}`

var compiledArtifactSchema = jsonschema.MustCompileString("classifier/artifact.schema.json", artifactSchema)

type artifact struct {
	Format    string     `json:"format"`
	ModelType string     `json:"model_type"`
	Version   string     `json:"version"`
	NFeatures int        `json:"n_features"`
	Classes   []int      `json:"classes"`
	Weights   []float64  `json:"weights"`
	Intercept float64    `json:"intercept"`
	TrainedAt *time.Time `json:"trained_at,omitempty"`
}

// Config defines configuration options for the logistic model loader.
type Config struct {
	Path   string
	Logger zerolog.Logger
}

// LogisticModel serves predictions from a logistic-regression artifact stored
// as a JSON document on disk. The artifact is loaded lazily on first use and
// kept in memory for the lifetime of the process; a failed load is not cached,
// so a later call retries after the artifact has been fixed or deployed.
type LogisticModel struct {
	cfg    Config
	tracer trace.Tracer
	logger zerolog.Logger

	mu       sync.RWMutex
	artifact *artifact
	checksum string
	loadedAt time.Time
}

// NewLogisticModel builds a model wrapper for the artifact at cfg.Path. The
// artifact itself is not touched until the first prediction or Describe call.
func NewLogisticModel(cfg Config) (*LogisticModel, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("classifier artifact path is required")
	}

	logger := cfg.Logger
	if logger.GetLevel() == zerolog.Disabled {
		logger = zerolog.Nop()
	}

	return &LogisticModel{
		cfg:    cfg,
		tracer: otel.Tracer("github.com/neuroscreen/ndd-risk-api/pkg/classifier"),
		logger: logger.With().Str("component", "classifier").Logger(),
	}, nil
}

// PredictProba returns the [P(negative), P(positive)] pair for a feature
// vector. Scoring is pure float arithmetic over the loaded weights, so
// identical vectors yield bit-identical probabilities for the same artifact.
func (m *LogisticModel) PredictProba(ctx context.Context, values []float64) (ClassProbabilities, error) {
	_, span := m.tracer.Start(ctx, "classifier.predict_proba", trace.WithAttributes(
		attribute.Int("classifier.vector_width", len(values)),
	))
	defer span.End()

	start := time.Now()

	a, err := m.ensureLoaded()
	if err != nil {
		predictionFailures.WithLabelValues("unavailable").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return ClassProbabilities{}, err
	}

	if len(values) != a.NFeatures {
		shapeErr := &ShapeError{Expected: a.NFeatures, Got: len(values)}
		predictionFailures.WithLabelValues("shape").Inc()
		span.RecordError(shapeErr)
		span.SetStatus(codes.Error, shapeErr.Error())
		return ClassProbabilities{}, shapeErr
	}

	z := a.Intercept
	for i, weight := range a.Weights {
		z += weight * values[i]
	}
	positive := 1.0 / (1.0 + math.Exp(-z))

	predictionDuration.WithLabelValues(a.ModelType).Observe(time.Since(start).Seconds())
	span.SetAttributes(attribute.Float64("classifier.positive_probability", positive))

	return ClassProbabilities{1.0 - positive, positive}, nil
}

// FeatureCount reports the vector width the loaded artifact expects.
func (m *LogisticModel) FeatureCount(ctx context.Context) (int, error) {
	a, err := m.ensureLoaded()
	if err != nil {
		return 0, err
	}
	return a.NFeatures, nil
}

// Describe reports artifact metadata for diagnostics. It attempts a load when
// none has succeeded yet, and never fails: load problems are carried inside
// the returned Info instead.
func (m *LogisticModel) Describe(ctx context.Context) Info {
	a, err := m.ensureLoaded()
	if err != nil {
		return Info{
			Path:   m.cfg.Path,
			Loaded: false,
			Error:  err.Error(),
		}
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	return Info{
		ModelType:    a.ModelType,
		FeatureCount: a.NFeatures,
		Version:      a.Version,
		Path:         m.cfg.Path,
		Checksum:     m.checksum,
		TrainedAt:    a.TrainedAt,
		Loaded:       true,
	}
}

// ensureLoaded returns the loaded artifact, performing the one-time load under
// the write lock when necessary. Concurrent first callers serialize on the
// lock and share the outcome; once loaded, readers only take the read lock.
func (m *LogisticModel) ensureLoaded() (*artifact, error) {
	m.mu.RLock()
	a := m.artifact
	m.mu.RUnlock()
	if a != nil {
		return a, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.artifact != nil {
		return m.artifact, nil
	}

	a, checksum, err := m.readArtifact()
	if err != nil {
		artifactLoads.WithLabelValues("failure").Inc()
		m.logger.Error().Err(err).Str("path", m.cfg.Path).Msg("classifier artifact load failed")
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	m.artifact = a
	m.checksum = checksum
	m.loadedAt = time.Now().UTC()
	artifactLoads.WithLabelValues("success").Inc()
	m.logger.Info().
		Str("path", m.cfg.Path).
		Str("model_type", a.ModelType).
		Str("version", a.Version).
		Int("n_features", a.NFeatures).
		Msg("classifier artifact loaded")

	return m.artifact, nil
}

func (m *LogisticModel) readArtifact() (*artifact, string, error) {
	raw, err := os.ReadFile(m.cfg.Path)
	if err != nil {
		return nil, "", fmt.Errorf("read artifact: %v", err)
	}

	if kind := mimetype.Detect(raw); !kind.Is("application/json") {
		return nil, "", fmt.Errorf("artifact is not a JSON document (detected %s)", kind.String())
	}

	var document interface{}
	if err := json.Unmarshal(raw, &document); err != nil {
		return nil, "", fmt.Errorf("decode artifact: %v", err)
	}

	if err := compiledArtifactSchema.Validate(document); err != nil {
		return nil, "", fmt.Errorf("artifact failed format validation: %v", err)
	}

	var a artifact
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, "", fmt.Errorf("decode artifact: %v", err)
	}

	if len(a.Weights) != a.NFeatures {
		return nil, "", fmt.Errorf("artifact declares %d features but carries %d weights", a.NFeatures, len(a.Weights))
	}

	sum := sha256.Sum256(raw)

	return &a, hex.EncodeToString(sum[:]), nil
}
