package topology

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/stocklinehq/stockline-backend/pkg/db/models"
)

// Repository encapsulates storage-topology persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	CreateFactory(ctx context.Context, factory *models.Factory) error
	FindFactory(ctx context.Context, id uuid.UUID) (*models.Factory, error)
	ListFactories(ctx context.Context) ([]models.Factory, error)
	SaveFactory(ctx context.Context, factory *models.Factory) error
	DeleteFactory(ctx context.Context, id uuid.UUID) error
	FactoryHasChildren(ctx context.Context, id uuid.UUID) (bool, error)

	CreateWarehouse(ctx context.Context, warehouse *models.Warehouse) error
	FindWarehouse(ctx context.Context, id uuid.UUID) (*models.Warehouse, error)
	ListWarehouses(ctx context.Context, factoryID *uuid.UUID) ([]models.Warehouse, error)
	SaveWarehouse(ctx context.Context, warehouse *models.Warehouse) error
	DeleteWarehouse(ctx context.Context, id uuid.UUID) error
	WarehouseHasChildren(ctx context.Context, id uuid.UUID) (bool, error)

	CreateArea(ctx context.Context, area *models.Area) error
	FindArea(ctx context.Context, id uuid.UUID) (*models.Area, error)
	ListAreas(ctx context.Context, warehouseID *uuid.UUID) ([]models.Area, error)
	SaveArea(ctx context.Context, area *models.Area) error
	DeleteArea(ctx context.Context, id uuid.UUID) error
	AreaHasLocations(ctx context.Context, id uuid.UUID) (bool, error)

	CreateLocation(ctx context.Context, location *models.Location) error
	FindLocation(ctx context.Context, id uuid.UUID) (*models.Location, error)
	ListLocations(ctx context.Context, filter LocationFilter) ([]models.Location, error)
	SaveLocation(ctx context.Context, location *models.Location) error
	DeleteLocation(ctx context.Context, id uuid.UUID) error
	LocationHasStock(ctx context.Context, id uuid.UUID) (bool, error)
}

// LocationFilter narrows ListLocations.
type LocationFilter struct {
	WarehouseID *uuid.UUID
	AreaID      *uuid.UUID
	Status      string
	Limit       int
}

type repository struct {
	conn *gorm.DB
}

// NewRepository builds a gorm-backed topology repository.
func NewRepository(conn *gorm.DB) Repository {
	return &repository{conn: conn}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{conn: tx}
}

func (r *repository) CreateFactory(ctx context.Context, factory *models.Factory) error {
	return r.conn.WithContext(ctx).Create(factory).Error
}

func (r *repository) FindFactory(ctx context.Context, id uuid.UUID) (*models.Factory, error) {
	var factory models.Factory
	if err := r.conn.WithContext(ctx).First(&factory, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &factory, nil
}

func (r *repository) ListFactories(ctx context.Context) ([]models.Factory, error) {
	var factories []models.Factory
	if err := r.conn.WithContext(ctx).Order("code ASC").Find(&factories).Error; err != nil {
		return nil, err
	}
	return factories, nil
}

func (r *repository) SaveFactory(ctx context.Context, factory *models.Factory) error {
	return r.conn.WithContext(ctx).
		Model(&models.Factory{}).
		Where("id = ?", factory.ID).
		Updates(map[string]any{"code": factory.Code, "name": factory.Name}).Error
}

func (r *repository) DeleteFactory(ctx context.Context, id uuid.UUID) error {
	return r.conn.WithContext(ctx).Delete(&models.Factory{}, "id = ?", id).Error
}

func (r *repository) FactoryHasChildren(ctx context.Context, id uuid.UUID) (bool, error) {
	var count int64
	if err := r.conn.WithContext(ctx).
		Model(&models.Warehouse{}).
		Where("factory_id = ?", id).
		Count(&count).Error; err != nil {
		return false, err
	}
	if count > 0 {
		return true, nil
	}
	if err := r.conn.WithContext(ctx).
		Model(&models.Area{}).
		Where("factory_id = ?", id).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repository) CreateWarehouse(ctx context.Context, warehouse *models.Warehouse) error {
	return r.conn.WithContext(ctx).Create(warehouse).Error
}

func (r *repository) FindWarehouse(ctx context.Context, id uuid.UUID) (*models.Warehouse, error) {
	var warehouse models.Warehouse
	if err := r.conn.WithContext(ctx).First(&warehouse, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &warehouse, nil
}

func (r *repository) ListWarehouses(ctx context.Context, factoryID *uuid.UUID) ([]models.Warehouse, error) {
	query := r.conn.WithContext(ctx).Order("code ASC")
	if factoryID != nil {
		query = query.Where("factory_id = ?", *factoryID)
	}
	var warehouses []models.Warehouse
	if err := query.Find(&warehouses).Error; err != nil {
		return nil, err
	}
	return warehouses, nil
}

func (r *repository) SaveWarehouse(ctx context.Context, warehouse *models.Warehouse) error {
	return r.conn.WithContext(ctx).
		Model(&models.Warehouse{}).
		Where("id = ?", warehouse.ID).
		Updates(map[string]any{
			"code":       warehouse.Code,
			"name":       warehouse.Name,
			"factory_id": warehouse.FactoryID,
		}).Error
}

func (r *repository) DeleteWarehouse(ctx context.Context, id uuid.UUID) error {
	return r.conn.WithContext(ctx).Delete(&models.Warehouse{}, "id = ?", id).Error
}

func (r *repository) WarehouseHasChildren(ctx context.Context, id uuid.UUID) (bool, error) {
	var count int64
	if err := r.conn.WithContext(ctx).
		Model(&models.Location{}).
		Where("warehouse_id = ?", id).
		Count(&count).Error; err != nil {
		return false, err
	}
	if count > 0 {
		return true, nil
	}
	if err := r.conn.WithContext(ctx).
		Model(&models.Area{}).
		Where("warehouse_id = ?", id).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repository) CreateArea(ctx context.Context, area *models.Area) error {
	return r.conn.WithContext(ctx).Create(area).Error
}

func (r *repository) FindArea(ctx context.Context, id uuid.UUID) (*models.Area, error) {
	var area models.Area
	if err := r.conn.WithContext(ctx).First(&area, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &area, nil
}

func (r *repository) ListAreas(ctx context.Context, warehouseID *uuid.UUID) ([]models.Area, error) {
	query := r.conn.WithContext(ctx).Order("code ASC")
	if warehouseID != nil {
		query = query.Where("warehouse_id = ?", *warehouseID)
	}
	var areas []models.Area
	if err := query.Find(&areas).Error; err != nil {
		return nil, err
	}
	return areas, nil
}

func (r *repository) SaveArea(ctx context.Context, area *models.Area) error {
	return r.conn.WithContext(ctx).
		Model(&models.Area{}).
		Where("id = ?", area.ID).
		Updates(map[string]any{
			"code":         area.Code,
			"name":         area.Name,
			"factory_id":   area.FactoryID,
			"warehouse_id": area.WarehouseID,
		}).Error
}

func (r *repository) DeleteArea(ctx context.Context, id uuid.UUID) error {
	return r.conn.WithContext(ctx).Delete(&models.Area{}, "id = ?", id).Error
}

func (r *repository) AreaHasLocations(ctx context.Context, id uuid.UUID) (bool, error) {
	var count int64
	if err := r.conn.WithContext(ctx).
		Model(&models.Location{}).
		Where("area_id = ?", id).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repository) CreateLocation(ctx context.Context, location *models.Location) error {
	return r.conn.WithContext(ctx).Create(location).Error
}

func (r *repository) FindLocation(ctx context.Context, id uuid.UUID) (*models.Location, error) {
	var location models.Location
	if err := r.conn.WithContext(ctx).First(&location, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &location, nil
}

func (r *repository) ListLocations(ctx context.Context, filter LocationFilter) ([]models.Location, error) {
	query := r.conn.WithContext(ctx).Order("code ASC")
	if filter.WarehouseID != nil {
		query = query.Where("warehouse_id = ?", *filter.WarehouseID)
	}
	if filter.AreaID != nil {
		query = query.Where("area_id = ?", *filter.AreaID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	var locations []models.Location
	if err := query.Find(&locations).Error; err != nil {
		return nil, err
	}
	return locations, nil
}

func (r *repository) SaveLocation(ctx context.Context, location *models.Location) error {
	return r.conn.WithContext(ctx).
		Model(&models.Location{}).
		Where("id = ?", location.ID).
		Updates(map[string]any{
			"code":    location.Code,
			"name":    location.Name,
			"status":  location.Status,
			"area_id": location.AreaID,
		}).Error
}

func (r *repository) DeleteLocation(ctx context.Context, id uuid.UUID) error {
	return r.conn.WithContext(ctx).Delete(&models.Location{}, "id = ?", id).Error
}

func (r *repository) LocationHasStock(ctx context.Context, id uuid.UUID) (bool, error) {
	var count int64
	if err := r.conn.WithContext(ctx).
		Model(&models.Inventory{}).
		Where("location_id = ? AND (quantity > 0 OR reserved > 0)", id).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}
