package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-edp-api/internal/models"
)

// EdpStepRepository persists graded step attempts.
type EdpStepRepository interface {
	Create(ctx context.Context, step *models.EdpStep) error
	Update(ctx context.Context, step *models.EdpStep) error
	GetByID(ctx context.Context, id uint) (models.EdpStep, error)
	// LatestForStep returns the newest attempt at stepNumber in the project, or nil.
	LatestForStep(ctx context.Context, projectID uint, stepNumber int) (*models.EdpStep, error)
	// LatestForProject returns the newest attempt at any step in the project, or nil.
	LatestForProject(ctx context.Context, projectID uint) (*models.EdpStep, error)
	ListByProject(ctx context.Context, projectID uint) ([]models.EdpStep, error)
}

// NewEdpStepRepository constructs a GORM-backed step repository.
func NewEdpStepRepository(db *gorm.DB) EdpStepRepository {
	return &edpStepRepository{db: db}
}

type edpStepRepository struct {
	db *gorm.DB
}

func (r *edpStepRepository) Create(ctx context.Context, step *models.EdpStep) error {
	return r.db.WithContext(ctx).Create(step).Error
}

func (r *edpStepRepository) Update(ctx context.Context, step *models.EdpStep) error {
	return r.db.WithContext(ctx).Save(step).Error
}

func (r *edpStepRepository) GetByID(ctx context.Context, id uint) (models.EdpStep, error) {
	var step models.EdpStep
	if err := r.db.WithContext(ctx).First(&step, id).Error; err != nil {
		return models.EdpStep{}, err
	}
	return step, nil
}

func (r *edpStepRepository) LatestForStep(ctx context.Context, projectID uint, stepNumber int) (*models.EdpStep, error) {
	query := r.db.WithContext(ctx).
		Where("project_id = ? AND step_number = ?", projectID, stepNumber)
	return latest(query)
}

func (r *edpStepRepository) LatestForProject(ctx context.Context, projectID uint) (*models.EdpStep, error) {
	query := r.db.WithContext(ctx).
		Where("project_id = ?", projectID)
	return latest(query)
}

func (r *edpStepRepository) ListByProject(ctx context.Context, projectID uint) ([]models.EdpStep, error) {
	var steps []models.EdpStep
	err := r.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("step_number ASC").
		Order("created_at ASC").
		Order("id ASC").
		Find(&steps).Error
	if err != nil {
		return nil, err
	}
	return steps, nil
}

func latest(query *gorm.DB) (*models.EdpStep, error) {
	var step models.EdpStep
	err := query.Order("created_at DESC").Order("id DESC").Take(&step).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &step, nil
}
