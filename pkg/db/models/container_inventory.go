package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ContainerInventory is the ledger row for stock carried by a container.
// It travels with the container and is never mirrored into the location
// ledger.
type ContainerInventory struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	ContainerID uuid.UUID `gorm:"column:container_id;type:uuid;not null;uniqueIndex:uq_container_inventory_container_material"`
	MaterialID  uuid.UUID `gorm:"column:material_id;type:uuid;not null;uniqueIndex:uq_container_inventory_container_material"`
	Quantity    int64     `gorm:"column:quantity;not null;default:0"`
	Reserved    int64     `gorm:"column:reserved;not null;default:0"`
	Version     int64     `gorm:"column:version;not null;default:0"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (c *ContainerInventory) BeforeCreate(*gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// Available is the quantity not yet earmarked.
func (c *ContainerInventory) Available() int64 {
	return c.Quantity - c.Reserved
}
