package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Warehouse groups areas and locations under a factory.
type Warehouse struct {
	ID        uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	FactoryID *uuid.UUID `gorm:"column:factory_id;type:uuid;index"`
	Code      string     `gorm:"column:code;not null;uniqueIndex"`
	Name      string     `gorm:"column:name;not null"`
	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (w *Warehouse) BeforeCreate(*gorm.DB) error {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	return nil
}
