package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/neuroscreen/ndd-risk-api/internal/dto"
	"github.com/neuroscreen/ndd-risk-api/internal/models"
	"github.com/neuroscreen/ndd-risk-api/internal/repository"
	"github.com/neuroscreen/ndd-risk-api/internal/risk"
	"github.com/neuroscreen/ndd-risk-api/pkg/classifier"
)

type stubClassifier struct {
	acceptedWidth int
	probability   float64
	err           error
	callWidths    []int
}

func (s *stubClassifier) PredictProba(_ context.Context, values []float64) (classifier.ClassProbabilities, error) {
	s.callWidths = append(s.callWidths, len(values))
	if s.err != nil {
		return classifier.ClassProbabilities{}, s.err
	}
	if len(values) != s.acceptedWidth {
		return classifier.ClassProbabilities{}, &classifier.ShapeError{Expected: s.acceptedWidth, Got: len(values)}
	}
	return classifier.ClassProbabilities{1 - s.probability, s.probability}, nil
}

func (s *stubClassifier) FeatureCount(context.Context) (int, error) {
	return s.acceptedWidth, nil
}

func (s *stubClassifier) Describe(context.Context) classifier.Info {
	return classifier.Info{Loaded: true, FeatureCount: s.acceptedWidth}
}

type fakeEvaluationRepo struct {
	evaluations []models.Evaluation
	createErr   error
	aggregate   repository.EvaluationAggregate
}

func (f *fakeEvaluationRepo) Create(_ context.Context, evaluation *models.Evaluation) error {
	if f.createErr != nil {
		return f.createErr
	}
	evaluation.ID = uint(len(f.evaluations) + 1)
	f.evaluations = append(f.evaluations, *evaluation)
	return nil
}

func (f *fakeEvaluationRepo) GetByID(_ context.Context, id uint) (models.Evaluation, error) {
	for _, evaluation := range f.evaluations {
		if evaluation.ID == id {
			return evaluation, nil
		}
	}
	return models.Evaluation{}, gorm.ErrRecordNotFound
}

func (f *fakeEvaluationRepo) List(_ context.Context, limit, offset int) ([]models.Evaluation, error) {
	if offset >= len(f.evaluations) {
		return []models.Evaluation{}, nil
	}
	end := offset + limit
	if end > len(f.evaluations) {
		end = len(f.evaluations)
	}
	return append([]models.Evaluation(nil), f.evaluations[offset:end]...), nil
}

func (f *fakeEvaluationRepo) Aggregate(context.Context) (repository.EvaluationAggregate, error) {
	return f.aggregate, nil
}

type capturedEvents struct {
	events []dto.EvaluationEvent
}

func (c *capturedEvents) PublishStored(_ context.Context, event dto.EvaluationEvent) {
	c.events = append(c.events, event)
}

func (c *capturedEvents) Subscribe() (<-chan dto.EvaluationEvent, func()) {
	ch := make(chan dto.EvaluationEvent)
	close(ch)
	return ch, func() {}
}

func (c *capturedEvents) Start(context.Context) {}

func validInput() dto.EvaluationInput {
	responses := make([]bool, 40)
	for i := 0; i < 40; i += 2 {
		responses[i] = true
	}
	return dto.EvaluationInput{
		Responses: responses,
		Age:       8,
		Sex:       "M",
		Consent:   true,
	}
}

func newTestEvaluationService(repo *fakeEvaluationRepo, model classifier.Classifier, events EventService) EvaluationService {
	return NewEvaluationService(repo, model, events, validator.New(), testLogger())
}

func TestEvaluateOnlyReturnsStratifiedPrediction(t *testing.T) {
	model := &stubClassifier{acceptedWidth: 40, probability: 0.85}
	svc := newTestEvaluationService(&fakeEvaluationRepo{}, model, nil)

	prediction, err := svc.EvaluateOnly(context.Background(), validInput())
	require.NoError(t, err)

	assert.InDelta(t, 0.85, prediction.Probability, 1e-12)
	assert.Equal(t, risk.LevelHigh, prediction.Level)
	assert.InDelta(t, 0.85, prediction.Confidence, 1e-12)
	assert.Equal(t, "Riesgo muy alto de trastornos del neurodesarrollo", prediction.Interpretation)
	assert.Equal(t, []int{40}, model.callWidths)
}

func TestEvaluateOnlyConfidenceUsesDominantClass(t *testing.T) {
	model := &stubClassifier{acceptedWidth: 40, probability: 0.25}
	svc := newTestEvaluationService(&fakeEvaluationRepo{}, model, nil)

	prediction, err := svc.EvaluateOnly(context.Background(), validInput())
	require.NoError(t, err)

	assert.Equal(t, risk.LevelLow, prediction.Level)
	assert.InDelta(t, 0.75, prediction.Confidence, 1e-12)
}

func TestEvaluateOnlyFallsBackToExtendedLayoutOnce(t *testing.T) {
	model := &stubClassifier{acceptedWidth: 42, probability: 0.5}
	svc := newTestEvaluationService(&fakeEvaluationRepo{}, model, nil)

	input := validInput()
	input.Age = 9
	input.Sex = "F"

	prediction, err := svc.EvaluateOnly(context.Background(), input)
	require.NoError(t, err)

	require.Equal(t, []int{40, 42}, model.callWidths)
	assert.Equal(t, risk.LevelMedium, prediction.Level)
}

func TestEvaluateOnlyIncompatibleAfterBothLayouts(t *testing.T) {
	model := &stubClassifier{acceptedWidth: 17}
	svc := newTestEvaluationService(&fakeEvaluationRepo{}, model, nil)

	_, err := svc.EvaluateOnly(context.Background(), validInput())
	require.ErrorIs(t, err, ErrModelIncompatible)

	// Exactly one fallback: compact, extended, stop.
	assert.Equal(t, []int{40, 42}, model.callWidths)
}

func TestEvaluateOnlyPropagatesUnavailableModel(t *testing.T) {
	model := &stubClassifier{acceptedWidth: 40, err: classifier.ErrUnavailable}
	svc := newTestEvaluationService(&fakeEvaluationRepo{}, model, nil)

	_, err := svc.EvaluateOnly(context.Background(), validInput())
	require.ErrorIs(t, err, classifier.ErrUnavailable)
	assert.NotErrorIs(t, err, ErrModelIncompatible)
}

func TestEvaluateOnlyValidation(t *testing.T) {
	cases := []struct {
		name     string
		mutate   func(*dto.EvaluationInput)
		field    string
	}{
		{"too few responses", func(i *dto.EvaluationInput) { i.Responses = i.Responses[:39] }, "responses.length"},
		{"too many responses", func(i *dto.EvaluationInput) { i.Responses = append(i.Responses, true) }, "responses.length"},
		{"nil responses", func(i *dto.EvaluationInput) { i.Responses = nil }, "responses.length"},
		{"age below range", func(i *dto.EvaluationInput) { i.Age = 0 }, "age.range"},
		{"age above range", func(i *dto.EvaluationInput) { i.Age = 121 }, "age.range"},
		{"sex out of enum", func(i *dto.EvaluationInput) { i.Sex = "X" }, "sex.enum"},
		{"sex empty", func(i *dto.EvaluationInput) { i.Sex = "" }, "sex.enum"},
	}

	svc := newTestEvaluationService(&fakeEvaluationRepo{}, &stubClassifier{acceptedWidth: 40, probability: 0.5}, nil)

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			input := validInput()
			tc.mutate(&input)

			_, err := svc.EvaluateOnly(context.Background(), input)

			var validationErr *ValidationError
			require.ErrorAs(t, err, &validationErr)
			assert.Equal(t, tc.field, validationErr.Field)
		})
	}
}

func TestEvaluateOnlyReportsResponseLengthBeforeDemographics(t *testing.T) {
	svc := newTestEvaluationService(&fakeEvaluationRepo{}, &stubClassifier{acceptedWidth: 40}, nil)

	input := validInput()
	input.Responses = input.Responses[:10]
	input.Age = 500
	input.Sex = "?"

	_, err := svc.EvaluateOnly(context.Background(), input)

	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "responses.length", validationErr.Field)
}

func TestEvaluateOnlyAcceptsBoundaryAges(t *testing.T) {
	svc := newTestEvaluationService(&fakeEvaluationRepo{}, &stubClassifier{acceptedWidth: 40, probability: 0.1}, nil)

	for _, age := range []int{1, 120} {
		input := validInput()
		input.Age = age

		_, err := svc.EvaluateOnly(context.Background(), input)
		require.NoError(t, err, "age %d must be accepted", age)
	}
}

func TestEvaluateOnlyNormalizesSex(t *testing.T) {
	model := &stubClassifier{acceptedWidth: 40, probability: 0.1}
	svc := newTestEvaluationService(&fakeEvaluationRepo{}, model, nil)

	input := validInput()
	input.Sex = " f "

	_, err := svc.EvaluateOnly(context.Background(), input)
	require.NoError(t, err)
}

func TestEvaluateAndStorePersistsAndPublishes(t *testing.T) {
	repo := &fakeEvaluationRepo{}
	events := &capturedEvents{}
	model := &stubClassifier{acceptedWidth: 40, probability: 0.42}
	svc := newTestEvaluationService(repo, model, events)

	input := validInput()
	result, err := svc.EvaluateAndStore(context.Background(), input)
	require.NoError(t, err)

	assert.Equal(t, uint(1), result.EvaluationID)
	assert.InDelta(t, 0.42, result.Prediction.Probability, 1e-12)
	assert.Equal(t, risk.LevelMedium, result.Prediction.RiskLevel)
	assert.Equal(t, "42.00%", result.Prediction.EstimatedRisk)
	assert.Equal(t, "success", result.Prediction.Status)
	assert.Equal(t, time.UTC, result.Timestamp.Location())

	require.Len(t, repo.evaluations, 1)
	stored := repo.evaluations[0]
	assert.Equal(t, "M", stored.Sex)
	assert.Equal(t, 8, stored.Age)
	assert.True(t, stored.Consent)
	assert.InDelta(t, 0.42, stored.Probability, 1e-12)

	responses, err := stored.ResponseValues()
	require.NoError(t, err)
	assert.Equal(t, input.Responses, responses)

	require.Len(t, events.events, 1)
	assert.Equal(t, uint(1), events.events[0].EvaluationID)
	assert.Equal(t, risk.LevelMedium, events.events[0].RiskLevel)
}

func TestEvaluateAndStoreRejectsMissingConsent(t *testing.T) {
	repo := &fakeEvaluationRepo{}
	model := &stubClassifier{acceptedWidth: 40, probability: 0.42}
	svc := newTestEvaluationService(repo, model, nil)

	input := validInput()
	input.Consent = false

	_, err := svc.EvaluateAndStore(context.Background(), input)

	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "consent.required", validationErr.Field)

	// Consent is checked before any scoring or persistence.
	assert.Empty(t, model.callWidths)
	assert.Empty(t, repo.evaluations)
}

func TestEvaluateAndStorePersistenceFailureLeavesNoRecord(t *testing.T) {
	repo := &fakeEvaluationRepo{createErr: errors.New("disk full")}
	events := &capturedEvents{}
	svc := newTestEvaluationService(repo, &stubClassifier{acceptedWidth: 40, probability: 0.42}, events)

	_, err := svc.EvaluateAndStore(context.Background(), validInput())

	require.ErrorIs(t, err, ErrPersistence)
	assert.Empty(t, repo.evaluations)
	assert.Empty(t, events.events)
}

func TestEvaluateAndStoreWithoutEventServiceStillStores(t *testing.T) {
	repo := &fakeEvaluationRepo{}
	svc := newTestEvaluationService(repo, &stubClassifier{acceptedWidth: 40, probability: 0.1}, nil)

	result, err := svc.EvaluateAndStore(context.Background(), validInput())
	require.NoError(t, err)
	assert.Equal(t, uint(1), result.EvaluationID)
}

func TestListClampsPaging(t *testing.T) {
	repo := &fakeEvaluationRepo{}
	for i := 0; i < 3; i++ {
		evaluation := models.Evaluation{Sex: "F", Age: 6 + i, Probability: 0.2}
		require.NoError(t, evaluation.SetResponses(make([]bool, 40)))
		require.NoError(t, repo.Create(context.Background(), &evaluation))
	}

	svc := newTestEvaluationService(repo, &stubClassifier{acceptedWidth: 40}, nil)

	summaries, err := svc.List(context.Background(), dto.ListQuery{Limit: 0, Offset: 0})
	require.NoError(t, err)
	assert.Len(t, summaries, 3)

	summaries, err = svc.List(context.Background(), dto.ListQuery{Limit: 2, Offset: 0})
	require.NoError(t, err)
	assert.Len(t, summaries, 2)

	summaries, err = svc.List(context.Background(), dto.ListQuery{Limit: 2, Offset: 100})
	require.NoError(t, err)
	assert.Empty(t, summaries)

	summaries, err = svc.List(context.Background(), dto.ListQuery{Limit: -5, Offset: -5})
	require.NoError(t, err)
	assert.Len(t, summaries, 3)
}

func TestListIncludesRiskLevel(t *testing.T) {
	repo := &fakeEvaluationRepo{}
	evaluation := models.Evaluation{Sex: "M", Age: 10, Probability: 0.72}
	require.NoError(t, evaluation.SetResponses(make([]bool, 40)))
	require.NoError(t, repo.Create(context.Background(), &evaluation))

	svc := newTestEvaluationService(repo, &stubClassifier{acceptedWidth: 40}, nil)

	summaries, err := svc.List(context.Background(), dto.ListQuery{})
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, risk.LevelHigh, summaries[0].RiskLevel)
}

func TestGetUnknownEvaluation(t *testing.T) {
	svc := newTestEvaluationService(&fakeEvaluationRepo{}, &stubClassifier{acceptedWidth: 40}, nil)

	_, err := svc.Get(context.Background(), 99)
	require.ErrorIs(t, err, ErrEvaluationNotFound)
}

func TestGetReturnsFullDetail(t *testing.T) {
	repo := &fakeEvaluationRepo{}
	responses := make([]bool, 40)
	responses[0] = true
	responses[39] = true

	evaluation := models.Evaluation{Sex: "F", Age: 7, Probability: 0.15, Consent: true}
	require.NoError(t, evaluation.SetResponses(responses))
	require.NoError(t, repo.Create(context.Background(), &evaluation))

	svc := newTestEvaluationService(repo, &stubClassifier{acceptedWidth: 40}, nil)

	detail, err := svc.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, responses, detail.Responses)
	assert.Equal(t, risk.LevelLow, detail.RiskLevel)
	assert.True(t, detail.Consent)
}

func TestStatisticsMapsAggregate(t *testing.T) {
	repo := &fakeEvaluationRepo{aggregate: repository.EvaluationAggregate{
		Total:      10,
		HighRisk:   2,
		MediumRisk: 3,
		LowRisk:    5,
		Male:       6,
		Female:     4,
	}}
	svc := newTestEvaluationService(repo, &stubClassifier{acceptedWidth: 40}, nil)

	stats, err := svc.Statistics(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(10), stats.TotalEvaluations)
	assert.Equal(t, int64(2), stats.RiskDistribution.HighRisk)
	assert.Equal(t, int64(3), stats.RiskDistribution.MediumRisk)
	assert.Equal(t, int64(5), stats.RiskDistribution.LowRisk)
	assert.Equal(t, int64(6), stats.SexDistribution.Male)
	assert.Equal(t, int64(4), stats.SexDistribution.Female)

	public := stats.Public()
	assert.Equal(t, int64(10), public.TotalEvaluations)
	assert.Equal(t, int64(2), public.RiskDistribution.HighRisk)
}
