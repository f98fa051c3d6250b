package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/neuroscreen/ndd-risk-api/internal/models"
	"github.com/neuroscreen/ndd-risk-api/internal/risk"
)

// EvaluationAggregate holds the counts computed over the full evaluation set.
type EvaluationAggregate struct {
	Total      int64
	HighRisk   int64
	MediumRisk int64
	LowRisk    int64
	Male       int64
	Female     int64
}

// EvaluationRepository defines data operations for stored evaluations.
type EvaluationRepository interface {
	Create(ctx context.Context, evaluation *models.Evaluation) error
	GetByID(ctx context.Context, id uint) (models.Evaluation, error)
	List(ctx context.Context, limit, offset int) ([]models.Evaluation, error)
	Aggregate(ctx context.Context) (EvaluationAggregate, error)
}

type evaluationRepository struct {
	db *gorm.DB
}

// NewEvaluationRepository instantiates the repository.
func NewEvaluationRepository(db *gorm.DB) EvaluationRepository {
	return &evaluationRepository{db: db}
}

// Create inserts the evaluation as a single statement. The database assigns
// the next identifier, so concurrent submissions never collide and a failed
// insert leaves no row behind.
func (r *evaluationRepository) Create(ctx context.Context, evaluation *models.Evaluation) error {
	return r.db.WithContext(ctx).Create(evaluation).Error
}

func (r *evaluationRepository) GetByID(ctx context.Context, id uint) (models.Evaluation, error) {
	var evaluation models.Evaluation
	if err := r.db.WithContext(ctx).First(&evaluation, id).Error; err != nil {
		return models.Evaluation{}, err
	}

	return evaluation, nil
}

// List returns evaluations newest first. Ties on the timestamp are broken by
// id so rapid successive submissions keep a stable order. An offset past the
// end of the table yields an empty slice.
func (r *evaluationRepository) List(ctx context.Context, limit, offset int) ([]models.Evaluation, error) {
	var evaluations []models.Evaluation
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Offset(offset).
		Find(&evaluations).Error
	if err != nil {
		return nil, err
	}

	return evaluations, nil
}

// Aggregate counts evaluations by risk bucket and by sex at call time. It
// always queries the committed state; nothing is cached.
func (r *evaluationRepository) Aggregate(ctx context.Context) (EvaluationAggregate, error) {
	var aggregate EvaluationAggregate

	base := func() *gorm.DB {
		return r.db.WithContext(ctx).Model(&models.Evaluation{})
	}

	if err := base().Count(&aggregate.Total).Error; err != nil {
		return EvaluationAggregate{}, err
	}

	if err := base().Where("probability >= ?", risk.HighThreshold).
		Count(&aggregate.HighRisk).Error; err != nil {
		return EvaluationAggregate{}, err
	}

	if err := base().Where("probability >= ? AND probability < ?", risk.MediumThreshold, risk.HighThreshold).
		Count(&aggregate.MediumRisk).Error; err != nil {
		return EvaluationAggregate{}, err
	}

	if err := base().Where("probability < ?", risk.MediumThreshold).
		Count(&aggregate.LowRisk).Error; err != nil {
		return EvaluationAggregate{}, err
	}

	if err := base().Where("sex = ?", "M").Count(&aggregate.Male).Error; err != nil {
		return EvaluationAggregate{}, err
	}

	if err := base().Where("sex = ?", "F").Count(&aggregate.Female).Error; err != nil {
		return EvaluationAggregate{}, err
	}

	return aggregate, nil
}
