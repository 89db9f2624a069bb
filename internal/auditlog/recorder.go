package auditlog

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/stocklinehq/stockline-backend/pkg/db/models"
	pkgerrors "github.com/stocklinehq/stockline-backend/pkg/errors"
)

// Entry describes one audited mutation.
type Entry struct {
	Module        string
	Action        string
	Entity        string
	EntityID      *uuid.UUID
	Detail        string
	Before        any
	After         any
	Operator      string
	RequestSource string
	TraceID       string
}

// Recorder writes operation log rows inside the caller's transaction.
// A failed write fails the whole transaction; the audit trail is not
// best-effort.
type Recorder struct{}

// NewRecorder builds an operation log recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Record appends one operation log row using the provided transaction.
func (r *Recorder) Record(ctx context.Context, tx *gorm.DB, entry Entry) error {
	if entry.Module == "" || entry.Action == "" || entry.Entity == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "operation log entry missing module, action or entity")
	}

	row := models.OperationLog{
		Module:        entry.Module,
		Action:        entry.Action,
		Entity:        entry.Entity,
		EntityID:      entry.EntityID,
		Detail:        entry.Detail,
		Operator:      entry.Operator,
		RequestSource: entry.RequestSource,
		TraceID:       entry.TraceID,
	}

	before, err := marshalValue(entry.Before)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode before value")
	}
	after, err := marshalValue(entry.After)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode after value")
	}
	row.BeforeValue = before
	row.AfterValue = after

	if err := tx.WithContext(ctx).Create(&row).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "write operation log")
	}
	return nil
}

func marshalValue(value any) (*string, error) {
	if value == nil {
		return nil, nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	encoded := string(raw)
	return &encoded, nil
}
