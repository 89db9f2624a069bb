package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ContainerMove is an append-only record of a bind, unbind or move.
// A nil from or to location marks the unbound side of the transition.
type ContainerMove struct {
	ID             uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	ContainerID    uuid.UUID  `gorm:"column:container_id;type:uuid;not null;index"`
	FromLocationID *uuid.UUID `gorm:"column:from_location_id;type:uuid"`
	ToLocationID   *uuid.UUID `gorm:"column:to_location_id;type:uuid"`
	Operator       string     `gorm:"column:operator;not null;default:''"`
	Note           string     `gorm:"column:note;not null;default:''"`
	CreatedAt      time.Time  `gorm:"column:created_at;autoCreateTime"`
}

func (c *ContainerMove) BeforeCreate(*gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
