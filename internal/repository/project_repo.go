package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-edp-api/internal/models"
)

// ProjectRepository exposes the project lookups needed by the submission pipeline.
type ProjectRepository interface {
	GetByID(ctx context.Context, id uint) (models.Project, error)
}

// NewProjectRepository constructs a GORM-backed project repository.
func NewProjectRepository(db *gorm.DB) ProjectRepository {
	return &projectRepository{db: db}
}

type projectRepository struct {
	db *gorm.DB
}

func (r *projectRepository) GetByID(ctx context.Context, id uint) (models.Project, error) {
	var project models.Project
	if err := r.db.WithContext(ctx).First(&project, id).Error; err != nil {
		return models.Project{}, err
	}
	return project, nil
}
