// Package classifier wraps the pre-trained screening model artifact behind a
// small prediction boundary. The scoring pipeline only ever sees two facts
// about the artifact: its per-class probability output and the feature count
// it expects. Everything else about the model stays opaque.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrUnavailable indicates the artifact could not be loaded: the file is
// missing, unreadable, corrupt or fails the format schema. Scoring cannot
// proceed, but the condition is a degraded service state rather than a crash;
// a later call may retry the load.
var ErrUnavailable = errors.New("classifier artifact unavailable")

// ShapeError reports a feature-count mismatch between an input vector and the
// loaded artifact. Callers inspect it to drive the single vectorization
// fallback; a mismatch that survives the fallback is a deployment problem.
type ShapeError struct {
	Expected int
	Got      int
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("feature shape mismatch: artifact expects %d features, got %d", e.Expected, e.Got)
}

// ClassProbabilities holds the binary classifier output in predict-proba
// order: index 0 is the negative class, index 1 the positive class.
type ClassProbabilities [2]float64

// Positive returns the probability of the positive (at-risk) class.
func (p ClassProbabilities) Positive() float64 { return p[1] }

// Max returns the larger of the two class probabilities, reported to callers
// as the classifier's confidence.
func (p ClassProbabilities) Max() float64 {
	if p[0] > p[1] {
		return p[0]
	}
	return p[1]
}

// Info describes the loaded artifact for diagnostics and the model info
// endpoint. When the artifact cannot be loaded, Loaded is false and Error
// carries the reason.
type Info struct {
	ModelType    string     `json:"model_type"`
	FeatureCount int        `json:"feature_count"`
	Version      string     `json:"version"`
	Path         string     `json:"path"`
	Checksum     string     `json:"checksum,omitempty"`
	TrainedAt    *time.Time `json:"trained_at,omitempty"`
	Loaded       bool       `json:"loaded"`
	Error        string     `json:"error,omitempty"`
}

// Classifier is the boundary the scoring pipeline depends on.
type Classifier interface {
	// PredictProba returns the class probabilities for a feature vector.
	// Identical vectors against the same loaded artifact yield bit-identical
	// results. Returns ErrUnavailable when no artifact can be loaded and a
	// *ShapeError when the vector width disagrees with the artifact.
	PredictProba(ctx context.Context, values []float64) (ClassProbabilities, error)
	// FeatureCount reports how many features the loaded artifact expects.
	FeatureCount(ctx context.Context) (int, error)
	// Describe reports artifact metadata without failing; load problems are
	// carried inside the returned Info.
	Describe(ctx context.Context) Info
}
