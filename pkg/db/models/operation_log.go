package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// OperationLog is the append-only audit trail. Entries are written in
// the same transaction as the mutation they describe; a failed write
// rolls back the whole operation.
type OperationLog struct {
	ID            uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	Module        string     `gorm:"column:module;not null;index"`
	Action        string     `gorm:"column:action;not null"`
	Entity        string     `gorm:"column:entity;not null"`
	EntityID      *uuid.UUID `gorm:"column:entity_id;type:uuid;index"`
	Detail        string     `gorm:"column:detail;not null;default:''"`
	BeforeValue   *string    `gorm:"column:before_value"`
	AfterValue    *string    `gorm:"column:after_value"`
	Operator      string     `gorm:"column:operator;not null;default:''"`
	RequestSource string     `gorm:"column:request_source;not null;default:''"`
	TraceID       string     `gorm:"column:trace_id;not null;default:'';index"`
	CreatedAt     time.Time  `gorm:"column:created_at;autoCreateTime"`
}

func (o *OperationLog) BeforeCreate(*gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}
