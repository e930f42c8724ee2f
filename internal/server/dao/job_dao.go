package dao

import (
	"context"

	"gorm.io/gorm"

	"slipway/internal/server/model"
)

type JobDao interface {
	Create(ctx context.Context, job *model.Job) error
	Save(ctx context.Context, job *model.Job) error
	GetByID(ctx context.Context, id uint) (*model.Job, error)
	ListByProject(ctx context.Context, projectID uint, limit int) ([]model.Job, error)
	LatestCompleted(ctx context.Context, projectID uint) (*model.Job, error)
	CompletedForCommit(ctx context.Context, projectID uint, commit string) ([]model.Job, error)
	CreateStage(ctx context.Context, stage *model.JobStage) error
	UpdateStage(ctx context.Context, stage *model.JobStage) error
	ListStages(ctx context.Context, jobID uint) ([]model.JobStage, error)
}

type jobDao struct {
	db *gorm.DB
}

func NewJobDao(db *gorm.DB) JobDao {
	return &jobDao{db: db}
}

func (d *jobDao) Create(ctx context.Context, job *model.Job) error {
	return d.db.WithContext(ctx).Create(job).Error
}

func (d *jobDao) Save(ctx context.Context, job *model.Job) error {
	return d.db.WithContext(ctx).Save(job).Error
}

func (d *jobDao) GetByID(ctx context.Context, id uint) (*model.Job, error) {
	var job model.Job
	err := d.db.WithContext(ctx).
		Preload("Project").
		Preload("Project.TargetRegistry").
		First(&job, id).Error
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (d *jobDao) ListByProject(ctx context.Context, projectID uint, limit int) ([]model.Job, error) {
	var jobs []model.Job
	query := d.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&jobs).Error
	return jobs, err
}

func (d *jobDao) LatestCompleted(ctx context.Context, projectID uint) (*model.Job, error) {
	var job model.Job
	err := d.db.WithContext(ctx).
		Where("project_id = ? AND result <> ''", projectID).
		Order("id DESC").
		First(&job).Error
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (d *jobDao) CompletedForCommit(ctx context.Context, projectID uint, commit string) ([]model.Job, error) {
	var jobs []model.Job
	err := d.db.WithContext(ctx).
		Where("project_id = ? AND `commit` = ? AND result <> ''",
			projectID, commit).
		Order("id DESC").
		Find(&jobs).Error
	return jobs, err
}

func (d *jobDao) CreateStage(ctx context.Context, stage *model.JobStage) error {
	return d.db.WithContext(ctx).Create(stage).Error
}

func (d *jobDao) UpdateStage(ctx context.Context, stage *model.JobStage) error {
	return d.db.WithContext(ctx).Save(stage).Error
}

func (d *jobDao) ListStages(ctx context.Context, jobID uint) ([]model.JobStage, error) {
	var stages []model.JobStage
	err := d.db.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("id").
		Find(&stages).Error
	return stages, err
}
