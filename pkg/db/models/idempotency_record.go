package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// IdempotencyRecord is the server-side admission row for one idempotency
// key within its scope. StatusCode zero marks an in-flight request; the
// unique index makes concurrent admission of the same key atomic.
// ExpiresAt bounds how long an in-flight marker can wedge its key when
// the owning request crashes before finalizing or releasing.
type IdempotencyRecord struct {
	ID           uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	Scope        string    `gorm:"column:scope;not null;uniqueIndex:uq_idempotency_scope_key"`
	Key          string    `gorm:"column:idempotency_key;not null;uniqueIndex:uq_idempotency_scope_key"`
	RequestHash  string    `gorm:"column:request_hash;not null"`
	StatusCode   int       `gorm:"column:status_code;not null;default:0"`
	ResponseBody []byte    `gorm:"column:response_body"`
	ExpiresAt    time.Time `gorm:"column:expires_at;not null;index"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime;index"`
}

func (r *IdempotencyRecord) BeforeCreate(*gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// InFlight reports whether the original request has not finished yet.
func (r *IdempotencyRecord) InFlight() bool {
	return r.StatusCode == 0
}
