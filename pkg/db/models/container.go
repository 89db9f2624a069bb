package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/stocklinehq/stockline-backend/pkg/enums"
)

// Container is a mobile storage unit. LocationID is the single source
// of truth for binding: a non-nil value means bound, and the partial
// unique index keeps at most one container per location.
type Container struct {
	ID          uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	Code        string     `gorm:"column:code;not null;uniqueIndex"`
	Type        string     `gorm:"column:container_type;not null;default:'TOTE'"`
	LocationID  *uuid.UUID `gorm:"column:location_id;type:uuid;uniqueIndex"`
	Description string     `gorm:"column:description;not null;default:''"`
	CreatedAt   time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (c *Container) BeforeCreate(*gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// BindingStatus derives the bound/unbound state from LocationID.
func (c *Container) BindingStatus() enums.BindingStatus {
	return enums.BindingStatusFor(c.LocationID != nil)
}
