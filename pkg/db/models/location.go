package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/stocklinehq/stockline-backend/pkg/enums"
)

// Location is the smallest addressable storage slot. Its binding status
// is derived from the container table on read and never stored here.
type Location struct {
	ID          uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	WarehouseID uuid.UUID            `gorm:"column:warehouse_id;type:uuid;not null;uniqueIndex:uq_locations_warehouse_code"`
	AreaID      *uuid.UUID           `gorm:"column:area_id;type:uuid;index"`
	Code        string               `gorm:"column:code;not null;uniqueIndex:uq_locations_warehouse_code"`
	Name        string               `gorm:"column:name;not null"`
	Status      enums.LocationStatus `gorm:"column:status;not null;default:'ACTIVE'"`
	CreatedAt   time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

func (l *Location) BeforeCreate(*gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}
