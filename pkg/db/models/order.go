package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/stocklinehq/stockline-backend/pkg/enums"
)

// Order is an inbound or outbound fulfillment order. Source and target
// locations are fixed at creation; transitions only move status forward
// and mutate the ledger.
type Order struct {
	ID               uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	OrderNo          string            `gorm:"column:order_no;not null;uniqueIndex"`
	Type             enums.OrderType   `gorm:"column:order_type;not null"`
	Status           enums.OrderStatus `gorm:"column:status;not null;default:'CREATED'"`
	Partner          string            `gorm:"column:partner;not null;default:''"`
	SourceLocationID *uuid.UUID        `gorm:"column:source_location_id;type:uuid"`
	TargetLocationID *uuid.UUID        `gorm:"column:target_location_id;type:uuid"`
	CreatedBy        string            `gorm:"column:created_by;not null;default:''"`
	CreatedAt        time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time         `gorm:"column:updated_at;autoUpdateTime"`

	Lines []OrderLine `gorm:"foreignKey:OrderID"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}
