package controllers

import (
	"net/http"
	"strings"

	"github.com/stocklinehq/stockline-backend/api/responses"
	"github.com/stocklinehq/stockline-backend/api/validators"
	"github.com/stocklinehq/stockline-backend/internal/auditlog"
	"github.com/stocklinehq/stockline-backend/pkg/logger"
)

// OperationLogList queries the operation log with optional filters.
func OperationLogList(reader *auditlog.Reader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entityID, err := validators.ParseQueryUUID(r, "entity_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", 100, 1, 500)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rows, err := reader.List(r.Context(), auditlog.ListFilter{
			Module:   strings.TrimSpace(r.URL.Query().Get("module")),
			Action:   strings.TrimSpace(r.URL.Query().Get("action")),
			Entity:   strings.TrimSpace(r.URL.Query().Get("entity")),
			EntityID: entityID,
			Operator: strings.TrimSpace(r.URL.Query().Get("operator")),
			TraceID:  strings.TrimSpace(r.URL.Query().Get("trace_id")),
			Limit:    limit,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, rows)
	}
}
