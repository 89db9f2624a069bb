package auditlog

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/stocklinehq/stockline-backend/pkg/db/models"
	pkgerrors "github.com/stocklinehq/stockline-backend/pkg/errors"
)

// ListFilter narrows an operation log query.
type ListFilter struct {
	Module   string
	Action   string
	Entity   string
	EntityID *uuid.UUID
	Operator string
	TraceID  string
	Limit    int
}

const defaultListLimit = 100

// Reader serves operation log queries.
type Reader struct {
	conn *gorm.DB
}

// NewReader builds an operation log reader.
func NewReader(conn *gorm.DB) (*Reader, error) {
	if conn == nil {
		return nil, fmt.Errorf("db connection required")
	}
	return &Reader{conn: conn}, nil
}

// List returns log rows newest first.
func (r *Reader) List(ctx context.Context, filter ListFilter) ([]models.OperationLog, error) {
	query := r.conn.WithContext(ctx).Order("created_at DESC")
	if filter.Module != "" {
		query = query.Where("module = ?", filter.Module)
	}
	if filter.Action != "" {
		query = query.Where("action = ?", filter.Action)
	}
	if filter.Entity != "" {
		query = query.Where("entity = ?", filter.Entity)
	}
	if filter.EntityID != nil {
		query = query.Where("entity_id = ?", *filter.EntityID)
	}
	if filter.Operator != "" {
		query = query.Where("operator = ?", filter.Operator)
	}
	if filter.TraceID != "" {
		query = query.Where("trace_id = ?", filter.TraceID)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	query = query.Limit(limit)

	var rows []models.OperationLog
	if err := query.Find(&rows).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list operation logs")
	}
	return rows, nil
}
