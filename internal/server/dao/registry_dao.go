package dao

import (
	"context"

	"gorm.io/gorm"

	"slipway/internal/server/model"
)

type RegistryDao interface {
	Create(ctx context.Context, registry *model.AuthenticatedRegistry) error
	Update(ctx context.Context, registry *model.AuthenticatedRegistry) error
	Delete(ctx context.Context, baseName string) error
	GetByBaseName(ctx context.Context, baseName string) (*model.AuthenticatedRegistry, error)
	List(ctx context.Context) ([]model.AuthenticatedRegistry, error)
}

type registryDao struct {
	db *gorm.DB
}

func NewRegistryDao(db *gorm.DB) RegistryDao {
	return &registryDao{db: db}
}

func (d *registryDao) Create(ctx context.Context, registry *model.AuthenticatedRegistry) error {
	return d.db.WithContext(ctx).Create(registry).Error
}

func (d *registryDao) Update(ctx context.Context, registry *model.AuthenticatedRegistry) error {
	return d.db.WithContext(ctx).Save(registry).Error
}

func (d *registryDao) Delete(ctx context.Context, baseName string) error {
	return d.db.WithContext(ctx).
		Where("base_name = ?", baseName).
		Delete(&model.AuthenticatedRegistry{}).Error
}

func (d *registryDao) GetByBaseName(ctx context.Context, baseName string) (*model.AuthenticatedRegistry, error) {
	var registry model.AuthenticatedRegistry
	err := d.db.WithContext(ctx).
		Where("base_name = ?", baseName).
		First(&registry).Error
	if err != nil {
		return nil, err
	}
	return &registry, nil
}

func (d *registryDao) List(ctx context.Context) ([]model.AuthenticatedRegistry, error) {
	var registries []model.AuthenticatedRegistry
	err := d.db.WithContext(ctx).Order("base_name").Find(&registries).Error
	return registries, err
}
