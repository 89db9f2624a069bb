package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Inventory is one ledger row per (material, location). The version
// column backs the optimistic concurrency check and increments by
// exactly one on every successful write.
type Inventory struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	MaterialID uuid.UUID `gorm:"column:material_id;type:uuid;not null;uniqueIndex:uq_inventory_material_location"`
	LocationID uuid.UUID `gorm:"column:location_id;type:uuid;not null;uniqueIndex:uq_inventory_material_location"`
	Quantity   int64     `gorm:"column:quantity;not null;default:0"`
	Reserved   int64     `gorm:"column:reserved;not null;default:0"`
	Version    int64     `gorm:"column:version;not null;default:0"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (i *Inventory) BeforeCreate(*gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}

// Available is the quantity not yet earmarked for an outbound order.
func (i *Inventory) Available() int64 {
	return i.Quantity - i.Reserved
}
