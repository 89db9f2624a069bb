package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// OrderLine carries the per-material demand of an order plus a snapshot
// of the material identity at creation time. The quantity columns obey
// 0 <= packed <= picked <= reserved <= qty at all times.
type OrderLine struct {
	ID           uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	OrderID      uuid.UUID `gorm:"column:order_id;type:uuid;not null;index"`
	MaterialID   uuid.UUID `gorm:"column:material_id;type:uuid;not null;index"`
	MaterialSKU  string    `gorm:"column:material_sku;not null;default:''"`
	MaterialName string    `gorm:"column:material_name;not null;default:''"`
	Qty          int64     `gorm:"column:qty;not null"`
	ReservedQty  int64     `gorm:"column:reserved_qty;not null;default:0"`
	PickedQty    int64     `gorm:"column:picked_qty;not null;default:0"`
	PackedQty    int64     `gorm:"column:packed_qty;not null;default:0"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (l *OrderLine) BeforeCreate(*gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}
