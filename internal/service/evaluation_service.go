package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/neuroscreen/ndd-risk-api/internal/dto"
	"github.com/neuroscreen/ndd-risk-api/internal/features"
	"github.com/neuroscreen/ndd-risk-api/internal/models"
	"github.com/neuroscreen/ndd-risk-api/internal/observability"
	"github.com/neuroscreen/ndd-risk-api/internal/repository"
	"github.com/neuroscreen/ndd-risk-api/internal/risk"
	"github.com/neuroscreen/ndd-risk-api/pkg/classifier"
)

var (
	// ErrEvaluationNotFound indicates a lookup for an identifier that was
	// never assigned.
	ErrEvaluationNotFound = errors.New("evaluation not found")

	// ErrModelIncompatible indicates the deployed artifact rejected both
	// feature layouts. This is a deployment mismatch between the service and
	// the artifact, not a caller problem.
	ErrModelIncompatible = errors.New("classifier artifact incompatible with questionnaire features")

	// ErrPersistence indicates the store rejected an append after a
	// successful scoring. No record exists when this is returned.
	ErrPersistence = errors.New("evaluation could not be persisted")
)

// ValidationError reports which submission field violated its invariant.
// These are routine, caller-correctable failures.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
}

// Listing bounds. The default mirrors the original service; the cap keeps a
// single page from scanning the whole table.
const (
	defaultListLimit = 100
	maxListLimit     = 500
)

// EvaluationService orchestrates the screening pipeline: validation, feature
// encoding, scoring with the single layout fallback, stratification and
// persistence, plus the read paths over stored evaluations.
type EvaluationService interface {
	EvaluateOnly(ctx context.Context, input dto.EvaluationInput) (risk.Prediction, error)
	EvaluateAndStore(ctx context.Context, input dto.EvaluationInput) (dto.SubmissionResult, error)
	List(ctx context.Context, query dto.ListQuery) ([]dto.EvaluationSummary, error)
	Get(ctx context.Context, id uint) (dto.EvaluationDetail, error)
	Statistics(ctx context.Context) (dto.StatsResponse, error)
}

type evaluationService struct {
	evaluations repository.EvaluationRepository
	model       classifier.Classifier
	events      EventService
	validator   *validator.Validate
	logger      zerolog.Logger
	tracer      trace.Tracer
	now         func() time.Time
}

// NewEvaluationService constructs the pipeline orchestrator. The event
// service may be nil; stored-evaluation events are then skipped.
func NewEvaluationService(repo repository.EvaluationRepository, model classifier.Classifier, events EventService, validate *validator.Validate, logger zerolog.Logger) EvaluationService {
	return &evaluationService{
		evaluations: repo,
		model:       model,
		events:      events,
		validator:   validate,
		logger:      logger.With().Str("component", "evaluation_service").Logger(),
		tracer:      otel.Tracer("github.com/neuroscreen/ndd-risk-api/internal/service/evaluation"),
		now:         time.Now,
	}
}

// EvaluateOnly runs the scoring pipeline without touching the store. Consent
// is not required on this path.
func (s *evaluationService) EvaluateOnly(ctx context.Context, input dto.EvaluationInput) (risk.Prediction, error) {
	ctx, span := s.tracer.Start(ctx, "evaluation.evaluate_only")
	defer span.End()

	if err := s.validateInput(&input); err != nil {
		return risk.Prediction{}, err
	}

	prediction, err := s.score(ctx, input)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return risk.Prediction{}, err
	}

	return prediction, nil
}

// EvaluateAndStore scores the submission and appends the evaluation record.
// Consent is checked before any scoring happens. When the append fails, the
// caller receives only the persistence failure: a prediction that was never
// stored is not reported as if it had been.
func (s *evaluationService) EvaluateAndStore(ctx context.Context, input dto.EvaluationInput) (dto.SubmissionResult, error) {
	ctx, span := s.tracer.Start(ctx, "evaluation.evaluate_and_store")
	defer span.End()

	if err := s.validateInput(&input); err != nil {
		return dto.SubmissionResult{}, err
	}

	if !input.Consent {
		return dto.SubmissionResult{}, &ValidationError{
			Field:   "consent.required",
			Message: "consent must be accepted before an evaluation can be stored",
		}
	}

	prediction, err := s.score(ctx, input)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return dto.SubmissionResult{}, err
	}

	evaluation := models.Evaluation{
		Sex:         input.Sex,
		Age:         input.Age,
		Probability: prediction.Probability,
		Consent:     input.Consent,
		CreatedAt:   s.now().UTC(),
	}
	if err := evaluation.SetResponses(input.Responses); err != nil {
		return dto.SubmissionResult{}, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	if err := s.evaluations.Create(ctx, &evaluation); err != nil {
		observability.PersistenceFailures().Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "append_failed")
		s.logger.Error().Err(err).Msg("evaluation append failed after successful scoring")
		return dto.SubmissionResult{}, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	span.SetAttributes(attribute.Int("evaluation.id", int(evaluation.ID)))
	s.logger.Info().
		Uint("evaluation_id", evaluation.ID).
		Str("risk_level", string(prediction.Level)).
		Msg("evaluation stored")

	s.publishStored(ctx, evaluation, prediction)

	return dto.SubmissionResult{
		EvaluationID: evaluation.ID,
		Prediction:   dto.NewPredictionResponse(prediction),
		Timestamp:    evaluation.CreatedAt,
	}, nil
}

// List returns evaluation summaries newest first. Out-of-range paging yields
// an empty page rather than an error.
func (s *evaluationService) List(ctx context.Context, query dto.ListQuery) ([]dto.EvaluationSummary, error) {
	limit := query.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	offset := query.Offset
	if offset < 0 {
		offset = 0
	}

	evaluations, err := s.evaluations.List(ctx, limit, offset)
	if err != nil {
		return nil, err
	}

	return dto.NewEvaluationSummarySlice(evaluations), nil
}

// Get returns the full detail of one stored evaluation.
func (s *evaluationService) Get(ctx context.Context, id uint) (dto.EvaluationDetail, error) {
	evaluation, err := s.evaluations.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.EvaluationDetail{}, ErrEvaluationNotFound
		}
		return dto.EvaluationDetail{}, err
	}

	return dto.NewEvaluationDetail(evaluation)
}

// Statistics aggregates the stored evaluations at call time.
func (s *evaluationService) Statistics(ctx context.Context) (dto.StatsResponse, error) {
	ctx, span := s.tracer.Start(ctx, "evaluation.statistics")
	defer span.End()

	aggregate, err := s.evaluations.Aggregate(ctx)
	if err != nil {
		span.RecordError(err)
		return dto.StatsResponse{}, err
	}

	return dto.StatsResponse{
		TotalEvaluations: aggregate.Total,
		RiskDistribution: dto.RiskDistribution{
			HighRisk:   aggregate.HighRisk,
			MediumRisk: aggregate.MediumRisk,
			LowRisk:    aggregate.LowRisk,
		},
		SexDistribution: dto.SexDistribution{
			Male:   aggregate.Male,
			Female: aggregate.Female,
		},
	}, nil
}

// validateInput normalizes the sex field and checks the submission
// invariants, translating the first violation into its typed field error.
func (s *evaluationService) validateInput(input *dto.EvaluationInput) error {
	input.Sex = strings.ToUpper(strings.TrimSpace(input.Sex))

	if err := s.validator.Struct(input); err != nil {
		var fieldErrors validator.ValidationErrors
		if errors.As(err, &fieldErrors) && len(fieldErrors) > 0 {
			return validationErrorFor(fieldErrors[0], *input)
		}
		return err
	}

	return nil
}

func validationErrorFor(fieldError validator.FieldError, input dto.EvaluationInput) *ValidationError {
	switch fieldError.StructField() {
	case "Responses":
		return &ValidationError{
			Field:   "responses.length",
			Message: fmt.Sprintf("exactly %d questionnaire responses are required, got %d", features.ResponseCount, len(input.Responses)),
		}
	case "Age":
		return &ValidationError{
			Field:   "age.range",
			Message: fmt.Sprintf("age must be between 1 and 120, got %d", input.Age),
		}
	case "Sex":
		return &ValidationError{
			Field:   "sex.enum",
			Message: fmt.Sprintf("sex must be M or F, got %q", input.Sex),
		}
	default:
		return &ValidationError{
			Field:   strings.ToLower(fieldError.StructField()),
			Message: "invalid value",
		}
	}
}

// score encodes the submission and asks the classifier for probabilities.
// The compact layout is always tried first; a shape rejection triggers one
// retry with the extended layout, and a second rejection is surfaced as
// ErrModelIncompatible rather than retried again.
func (s *evaluationService) score(ctx context.Context, input dto.EvaluationInput) (risk.Prediction, error) {
	ctx, span := s.tracer.Start(ctx, "evaluation.score")
	defer span.End()

	vector := features.Build(input.Responses, input.Age, input.Sex, features.LayoutCompact)
	probabilities, err := s.model.PredictProba(ctx, vector.Values)

	var shapeErr *classifier.ShapeError
	if errors.As(err, &shapeErr) {
		observability.ScoringFallbacks().Inc()
		span.AddEvent("layout_fallback")
		s.logger.Warn().
			Int("expected", shapeErr.Expected).
			Int("got", shapeErr.Got).
			Msg("compact layout rejected by classifier, retrying with extended layout")

		vector = features.Build(input.Responses, input.Age, input.Sex, features.LayoutExtended)
		probabilities, err = s.model.PredictProba(ctx, vector.Values)
		if errors.As(err, &shapeErr) {
			err = fmt.Errorf("%w: artifact expects %d features", ErrModelIncompatible, shapeErr.Expected)
		}
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return risk.Prediction{}, err
	}

	level, interpretation := risk.Stratify(probabilities.Positive())
	prediction := risk.Prediction{
		Probability:    probabilities.Positive(),
		Level:          level,
		Confidence:     probabilities.Max(),
		Interpretation: interpretation,
	}

	span.SetAttributes(
		attribute.Float64("evaluation.probability", prediction.Probability),
		attribute.String("evaluation.risk_level", string(level)),
		attribute.String("evaluation.layout", string(vector.Layout)),
	)
	observability.EvaluationsTotal().WithLabelValues(string(level)).Inc()

	return prediction, nil
}

func (s *evaluationService) publishStored(ctx context.Context, evaluation models.Evaluation, prediction risk.Prediction) {
	if s.events == nil {
		return
	}

	s.events.PublishStored(ctx, dto.EvaluationEvent{
		EvaluationID: evaluation.ID,
		RiskLevel:    prediction.Level,
		Probability:  prediction.Probability,
		Sex:          evaluation.Sex,
		Age:          evaluation.Age,
		CreatedAt:    evaluation.CreatedAt,
	})
}
