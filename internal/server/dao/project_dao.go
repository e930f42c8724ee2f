package dao

import (
	"context"

	"gorm.io/gorm"

	"slipway/internal/server/model"
)

type ProjectDao interface {
	Create(ctx context.Context, project *model.Project) error
	Update(ctx context.Context, project *model.Project) error
	Delete(ctx context.Context, slug string) error
	GetBySlug(ctx context.Context, slug string) (*model.Project, error)
	List(ctx context.Context) ([]model.Project, error)
	ListUtilities(ctx context.Context) ([]model.Project, error)
}

type projectDao struct {
	db *gorm.DB
}

func NewProjectDao(db *gorm.DB) ProjectDao {
	return &projectDao{db: db}
}

func (d *projectDao) Create(ctx context.Context, project *model.Project) error {
	return d.db.WithContext(ctx).Create(project).Error
}

func (d *projectDao) Update(ctx context.Context, project *model.Project) error {
	return d.db.WithContext(ctx).Save(project).Error
}

func (d *projectDao) Delete(ctx context.Context, slug string) error {
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var project model.Project
		if err := tx.Where("slug = ?", slug).First(&project).Error; err != nil {
			return err
		}
		if err := tx.Where("project_id = ?", project.ID).
			Delete(&model.Job{}).Error; err != nil {
			return err
		}
		return tx.Delete(&project).Error
	})
}

func (d *projectDao) GetBySlug(ctx context.Context, slug string) (*model.Project, error) {
	var project model.Project
	err := d.db.WithContext(ctx).
		Preload("TargetRegistry").
		Where("slug = ?", slug).
		First(&project).Error
	if err != nil {
		return nil, err
	}
	return &project, nil
}

func (d *projectDao) List(ctx context.Context) ([]model.Project, error) {
	var projects []model.Project
	err := d.db.WithContext(ctx).Order("slug").Find(&projects).Error
	return projects, err
}

func (d *projectDao) ListUtilities(ctx context.Context) ([]model.Project, error) {
	var projects []model.Project
	err := d.db.WithContext(ctx).
		Preload("TargetRegistry").
		Where("utility = ?", true).
		Order("slug").
		Find(&projects).Error
	return projects, err
}
