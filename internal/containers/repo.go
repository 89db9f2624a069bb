package containers

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/stocklinehq/stockline-backend/pkg/db/models"
)

// Repository persists containers and their movement history.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, container *models.Container) error
	Find(ctx context.Context, id uuid.UUID) (*models.Container, error)
	FindByCode(ctx context.Context, code string) (*models.Container, error)
	FindAtLocation(ctx context.Context, locationID uuid.UUID) (*models.Container, error)
	List(ctx context.Context, limit int) ([]models.Container, error)
	UpdateLocation(ctx context.Context, id uuid.UUID, locationID *uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) error
	CreateMove(ctx context.Context, move *models.ContainerMove) error
	ListMoves(ctx context.Context, containerID uuid.UUID, limit int) ([]models.ContainerMove, error)
	HasStock(ctx context.Context, containerID uuid.UUID) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a containers repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, container *models.Container) error {
	return r.db.WithContext(ctx).Create(container).Error
}

func (r *repository) Find(ctx context.Context, id uuid.UUID) (*models.Container, error) {
	var container models.Container
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&container).Error; err != nil {
		return nil, err
	}
	return &container, nil
}

func (r *repository) FindByCode(ctx context.Context, code string) (*models.Container, error) {
	var container models.Container
	if err := r.db.WithContext(ctx).Where("code = ?", code).First(&container).Error; err != nil {
		return nil, err
	}
	return &container, nil
}

func (r *repository) FindAtLocation(ctx context.Context, locationID uuid.UUID) (*models.Container, error) {
	var container models.Container
	err := r.db.WithContext(ctx).Where("location_id = ?", locationID).First(&container).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &container, nil
}

func (r *repository) List(ctx context.Context, limit int) ([]models.Container, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var rows []models.Container
	err := r.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) UpdateLocation(ctx context.Context, id uuid.UUID, locationID *uuid.UUID) error {
	return r.db.WithContext(ctx).Model(&models.Container{}).
		Where("id = ?", id).
		Update("location_id", locationID).Error
}

func (r *repository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Container{}).Error
}

func (r *repository) CreateMove(ctx context.Context, move *models.ContainerMove) error {
	return r.db.WithContext(ctx).Create(move).Error
}

func (r *repository) ListMoves(ctx context.Context, containerID uuid.UUID, limit int) ([]models.ContainerMove, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var rows []models.ContainerMove
	err := r.db.WithContext(ctx).
		Where("container_id = ?", containerID).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) HasStock(ctx context.Context, containerID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.ContainerInventory{}).
		Where("container_id = ? AND (quantity > 0 OR reserved > 0)", containerID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
