package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Material is a stock-keeping unit. Deletion is a soft deactivation so
// historical moves keep a valid reference.
type Material struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	SKU       string    `gorm:"column:sku;not null;uniqueIndex"`
	Name      string    `gorm:"column:name;not null"`
	Unit      string    `gorm:"column:unit;not null;default:'pcs'"`
	Category  string    `gorm:"column:category;not null;default:'general'"`
	IsCommon  bool      `gorm:"column:is_common;not null;default:false"`
	IsActive  bool      `gorm:"column:is_active;not null;default:true"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (m *Material) BeforeCreate(*gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}
