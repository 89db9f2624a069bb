package inventory

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/stocklinehq/stockline-backend/pkg/db/models"
	"github.com/stocklinehq/stockline-backend/pkg/enums"
	pkgerrors "github.com/stocklinehq/stockline-backend/pkg/errors"
)

// Repository covers the reference lookups and stock reads the
// inventory services need.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindMaterial(ctx context.Context, id uuid.UUID) (*models.Material, error)
	FindLocation(ctx context.Context, id uuid.UUID) (*models.Location, error)
	FindContainer(ctx context.Context, id uuid.UUID) (*models.Container, error)
	ContainerAtLocation(ctx context.Context, locationID uuid.UUID) (*models.Container, error)
	ListByLocation(ctx context.Context, locationID uuid.UUID) ([]models.Inventory, error)
	ListByMaterial(ctx context.Context, materialID uuid.UUID) ([]models.Inventory, error)
	ListContainerStock(ctx context.Context, containerID uuid.UUID) ([]models.ContainerInventory, error)
	ListMoves(ctx context.Context, filter MoveFilter) ([]models.StockMove, error)
}

// MoveFilter narrows stock move listings.
type MoveFilter struct {
	MaterialID *uuid.UUID
	OrderID    *uuid.UUID
	Limit      int
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an inventory repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindMaterial(ctx context.Context, id uuid.UUID) (*models.Material, error) {
	var material models.Material
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&material).Error; err != nil {
		return nil, err
	}
	return &material, nil
}

func (r *repository) FindLocation(ctx context.Context, id uuid.UUID) (*models.Location, error) {
	var location models.Location
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&location).Error; err != nil {
		return nil, err
	}
	return &location, nil
}

func (r *repository) FindContainer(ctx context.Context, id uuid.UUID) (*models.Container, error) {
	var container models.Container
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&container).Error; err != nil {
		return nil, err
	}
	return &container, nil
}

func (r *repository) ContainerAtLocation(ctx context.Context, locationID uuid.UUID) (*models.Container, error) {
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

func (r *repository) ListByLocation(ctx context.Context, locationID uuid.UUID) ([]models.Inventory, error) {
	var rows []models.Inventory
	err := r.db.WithContext(ctx).
		Where("location_id = ?", locationID).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) ListByMaterial(ctx context.Context, materialID uuid.UUID) ([]models.Inventory, error) {
	var rows []models.Inventory
	err := r.db.WithContext(ctx).
		Where("material_id = ?", materialID).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) ListContainerStock(ctx context.Context, containerID uuid.UUID) ([]models.ContainerInventory, error) {
	var rows []models.ContainerInventory
	err := r.db.WithContext(ctx).
		Where("container_id = ?", containerID).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) ListMoves(ctx context.Context, filter MoveFilter) ([]models.StockMove, error) {
	query := r.db.WithContext(ctx).Model(&models.StockMove{})
	if filter.MaterialID != nil {
		query = query.Where("material_id = ?", *filter.MaterialID)
	}
	if filter.OrderID != nil {
		query = query.Where("ref_order_id = ?", *filter.OrderID)
	}
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var rows []models.StockMove
	if err := query.Order("created_at DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// ActiveMaterial loads a material and rejects inactive references.
func ActiveMaterial(ctx context.Context, repo Repository, id uuid.UUID) (*models.Material, error) {
	material, err := repo.FindMaterial(ctx, id)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "material not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load material")
	}
	if !material.IsActive {
		return nil, pkgerrors.Newf(pkgerrors.CodeReferenceInactive, "material %s is inactive", material.SKU)
	}
	return material, nil
}

// ActiveLocation loads a location and rejects disabled references.
func ActiveLocation(ctx context.Context, repo Repository, id uuid.UUID) (*models.Location, error) {
	location, err := repo.FindLocation(ctx, id)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "location not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load location")
	}
	if location.Status != enums.LocationStatusActive {
		return nil, pkgerrors.Newf(pkgerrors.CodeReferenceInactive, "location %s is disabled", location.Code)
	}
	return location, nil
}
