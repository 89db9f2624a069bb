package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Area subdivides a warehouse into picking, staging or storage zones.
type Area struct {
	ID          uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	FactoryID   *uuid.UUID `gorm:"column:factory_id;type:uuid;index"`
	WarehouseID *uuid.UUID `gorm:"column:warehouse_id;type:uuid;index"`
	Code        string     `gorm:"column:code;not null;uniqueIndex"`
	Name        string     `gorm:"column:name;not null"`
	CreatedAt   time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (a *Area) BeforeCreate(*gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
