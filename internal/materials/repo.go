package materials

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/stocklinehq/stockline-backend/pkg/db/models"
)

// Repository encapsulates material persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, material *models.Material) error
	Find(ctx context.Context, id uuid.UUID) (*models.Material, error)
	FindBySKU(ctx context.Context, sku string) (*models.Material, error)
	List(ctx context.Context, filter ListFilter) ([]models.Material, error)
	Save(ctx context.Context, material *models.Material) error
	HasStock(ctx context.Context, id uuid.UUID) (bool, error)
}

// ListFilter narrows List.
type ListFilter struct {
	Category   string
	ActiveOnly bool
	Search     string
	Limit      int
}

type repository struct {
	conn *gorm.DB
}

// NewRepository builds a gorm-backed material repository.
func NewRepository(conn *gorm.DB) Repository {
	return &repository{conn: conn}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{conn: tx}
}

func (r *repository) Create(ctx context.Context, material *models.Material) error {
	return r.conn.WithContext(ctx).Create(material).Error
}

func (r *repository) Find(ctx context.Context, id uuid.UUID) (*models.Material, error) {
	var material models.Material
	if err := r.conn.WithContext(ctx).First(&material, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &material, nil
}

func (r *repository) FindBySKU(ctx context.Context, sku string) (*models.Material, error) {
	var material models.Material
	if err := r.conn.WithContext(ctx).First(&material, "sku = ?", sku).Error; err != nil {
		return nil, err
	}
	return &material, nil
}

func (r *repository) List(ctx context.Context, filter ListFilter) ([]models.Material, error) {
	query := r.conn.WithContext(ctx).Order("sku ASC")
	if filter.Category != "" {
		query = query.Where("category = ?", filter.Category)
	}
	if filter.ActiveOnly {
		query = query.Where("is_active = ?", true)
	}
	if filter.Search != "" {
		like := "%" + filter.Search + "%"
		query = query.Where("sku LIKE ? OR name LIKE ?", like, like)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	var materials []models.Material
	if err := query.Find(&materials).Error; err != nil {
		return nil, err
	}
	return materials, nil
}

func (r *repository) Save(ctx context.Context, material *models.Material) error {
	return r.conn.WithContext(ctx).
		Model(&models.Material{}).
		Where("id = ?", material.ID).
		Updates(map[string]any{
			"sku":       material.SKU,
			"name":      material.Name,
			"unit":      material.Unit,
			"category":  material.Category,
			"is_common": material.IsCommon,
			"is_active": material.IsActive,
		}).Error
}

// HasStock reports whether any location or container ledger row still
// holds a non-zero balance for the material.
func (r *repository) HasStock(ctx context.Context, id uuid.UUID) (bool, error) {
	var count int64
	if err := r.conn.WithContext(ctx).
		Model(&models.Inventory{}).
		Where("material_id = ? AND (quantity > 0 OR reserved > 0)", id).
		Count(&count).Error; err != nil {
		return false, err
	}
	if count > 0 {
		return true, nil
	}
	if err := r.conn.WithContext(ctx).
		Model(&models.ContainerInventory{}).
		Where("material_id = ? AND (quantity > 0 OR reserved > 0)", id).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}
