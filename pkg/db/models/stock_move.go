package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/stocklinehq/stockline-backend/pkg/enums"
)

// StockMove is an immutable fact describing one ledger quantity change.
// Rows are only ever inserted, inside the same transaction as the
// mutation they describe.
type StockMove struct {
	ID             uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	MaterialID     uuid.UUID           `gorm:"column:material_id;type:uuid;not null;index"`
	FromLocationID *uuid.UUID          `gorm:"column:from_location_id;type:uuid"`
	ToLocationID   *uuid.UUID          `gorm:"column:to_location_id;type:uuid"`
	ContainerID    *uuid.UUID          `gorm:"column:container_id;type:uuid"`
	Qty            int64               `gorm:"column:qty;not null"`
	Type           enums.StockMoveType `gorm:"column:move_type;not null;index"`
	RefOrderID     *uuid.UUID          `gorm:"column:ref_order_id;type:uuid;index"`
	Operator       string              `gorm:"column:operator;not null;default:''"`
	CreatedAt      time.Time           `gorm:"column:created_at;autoCreateTime"`
}

func (s *StockMove) BeforeCreate(*gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}
