package dto

import (
	"fmt"
	"time"

	"github.com/neuroscreen/ndd-risk-api/internal/models"
	"github.com/neuroscreen/ndd-risk-api/internal/risk"
)

// EvaluationInput is the validated submission handed to the scoring pipeline.
// Both public request shapes normalize into it before any scoring happens.
// Field order matters: the validator reports the first failing field, and a
// wrong response count outranks any demographic problem.
type EvaluationInput struct {
	Responses []bool `validate:"len=40"`
	Age       int    `validate:"min=1,max=120"`
	Sex       string `validate:"oneof=M F"`
	Consent   bool
}

// PredictRequest is the score-only payload. Field names follow the original
// prediction contract.
type PredictRequest struct {
	Responses []bool `json:"responses"`
	Age       int    `json:"age"`
	Sex       string `json:"sex"`
}

// Input converts the request into the pipeline input. Score-only calls carry
// no consent; the orchestrator ignores it on that path.
func (r PredictRequest) Input() EvaluationInput {
	return EvaluationInput{
		Age:       r.Age,
		Sex:       r.Sex,
		Responses: r.Responses,
	}
}

// SubmitRequest is the score-and-persist payload. Field names keep the
// original evaluation submission contract.
type SubmitRequest struct {
	Age       int    `json:"edad"`
	Sex       string `json:"sexo"`
	Responses []bool `json:"respuestas"`
	Consent   bool   `json:"acepto_consentimiento"`
}

// Input converts the request into the pipeline input.
func (r SubmitRequest) Input() EvaluationInput {
	return EvaluationInput{
		Age:       r.Age,
		Sex:       r.Sex,
		Responses: r.Responses,
		Consent:   r.Consent,
	}
}

// ListQuery describes the pagination window for evaluation listings.
type ListQuery struct {
	Limit  int
	Offset int
}

// PredictionResponse serializes a risk prediction for API clients.
type PredictionResponse struct {
	Probability    float64    `json:"probability"`
	RiskLevel      risk.Level `json:"risk_level"`
	Confidence     float64    `json:"confidence"`
	Interpretation string     `json:"interpretation"`
	EstimatedRisk  string     `json:"estimated_risk"`
	Status         string     `json:"status"`
}

// NewPredictionResponse converts a prediction into its response shape,
// including the original contract's percentage rendering of the probability.
func NewPredictionResponse(prediction risk.Prediction) PredictionResponse {
	return PredictionResponse{
		Probability:    prediction.Probability,
		RiskLevel:      prediction.Level,
		Confidence:     prediction.Confidence,
		Interpretation: prediction.Interpretation,
		EstimatedRisk:  fmt.Sprintf("%.2f%%", prediction.Probability*100),
		Status:         "success",
	}
}

// SubmissionResult is returned after an evaluation has been scored and stored.
type SubmissionResult struct {
	EvaluationID uint               `json:"evaluation_id"`
	Prediction   PredictionResponse `json:"prediction"`
	Timestamp    time.Time          `json:"timestamp"`
}

// EvaluationSummary is the listing view of a stored evaluation. It omits the
// questionnaire answers.
type EvaluationSummary struct {
	ID          uint       `json:"id"`
	Sex         string     `json:"sexo"`
	Age         int        `json:"edad"`
	Probability float64    `json:"riesgo_estimado"`
	RiskLevel   risk.Level `json:"risk_level"`
	CreatedAt   time.Time  `json:"fecha"`
}

// EvaluationDetail is the full view of a stored evaluation, including the
// questionnaire answers and the consent flag.
type EvaluationDetail struct {
	ID          uint       `json:"id"`
	Sex         string     `json:"sexo"`
	Age         int        `json:"edad"`
	Responses   []bool     `json:"respuestas"`
	Probability float64    `json:"riesgo_estimado"`
	RiskLevel   risk.Level `json:"risk_level"`
	Consent     bool       `json:"acepto_consentimiento"`
	CreatedAt   time.Time  `json:"fecha"`
}

// NewEvaluationSummary converts an Evaluation model into its listing view.
func NewEvaluationSummary(model models.Evaluation) EvaluationSummary {
	return EvaluationSummary{
		ID:          model.ID,
		Sex:         model.Sex,
		Age:         model.Age,
		Probability: model.Probability,
		RiskLevel:   risk.LevelFor(model.Probability),
		CreatedAt:   model.CreatedAt,
	}
}

// NewEvaluationSummarySlice converts evaluation models into listing views.
func NewEvaluationSummarySlice(evaluations []models.Evaluation) []EvaluationSummary {
	summaries := make([]EvaluationSummary, 0, len(evaluations))
	for _, evaluation := range evaluations {
		summaries = append(summaries, NewEvaluationSummary(evaluation))
	}

	return summaries
}

// NewEvaluationDetail converts an Evaluation model into its detail view. It
// fails only when the stored responses column cannot be decoded.
func NewEvaluationDetail(model models.Evaluation) (EvaluationDetail, error) {
	responses, err := model.ResponseValues()
	if err != nil {
		return EvaluationDetail{}, fmt.Errorf("decode stored responses: %w", err)
	}

	return EvaluationDetail{
		ID:          model.ID,
		Sex:         model.Sex,
		Age:         model.Age,
		Responses:   responses,
		Probability: model.Probability,
		RiskLevel:   risk.LevelFor(model.Probability),
		Consent:     model.Consent,
		CreatedAt:   model.CreatedAt,
	}, nil
}

// RiskDistribution buckets stored evaluations by risk level.
type RiskDistribution struct {
	HighRisk   int64 `json:"high_risk"`
	MediumRisk int64 `json:"medium_risk"`
	LowRisk    int64 `json:"low_risk"`
}

// SexDistribution buckets stored evaluations by sex.
type SexDistribution struct {
	Male   int64 `json:"male"`
	Female int64 `json:"female"`
}

// StatsResponse carries the aggregate counters over all stored evaluations.
// The gender_distribution key keeps the original contract's naming.
type StatsResponse struct {
	TotalEvaluations int64            `json:"total_evaluations"`
	RiskDistribution RiskDistribution `json:"risk_distribution"`
	SexDistribution  SexDistribution  `json:"gender_distribution"`
}

// PublicStatsResponse is the reduced aggregate view served without
// authentication.
type PublicStatsResponse struct {
	TotalEvaluations int64            `json:"total_evaluations"`
	RiskDistribution RiskDistribution `json:"risk_distribution"`
}

// Public reduces the full statistics to their unauthenticated view.
func (s StatsResponse) Public() PublicStatsResponse {
	return PublicStatsResponse{
		TotalEvaluations: s.TotalEvaluations,
		RiskDistribution: s.RiskDistribution,
	}
}

// EvaluationEvent is broadcast after an evaluation has been stored. It powers
// the live SSE feed and the cross-node brokers.
type EvaluationEvent struct {
	EvaluationID uint       `json:"evaluation_id"`
	RiskLevel    risk.Level `json:"risk_level"`
	Probability  float64    `json:"probability"`
	Sex          string     `json:"sexo"`
	Age          int        `json:"edad"`
	CreatedAt    time.Time  `json:"created_at"`
}
