package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/stocklinehq/stockline-backend/api/middleware"
	"github.com/stocklinehq/stockline-backend/api/responses"
	"github.com/stocklinehq/stockline-backend/api/validators"
	"github.com/stocklinehq/stockline-backend/internal/materials"
	"github.com/stocklinehq/stockline-backend/pkg/logger"
)

type materialCreateRequest struct {
	SKU      string `json:"sku" validate:"required,max=64"`
	Name     string `json:"name" validate:"required,max=255"`
	Unit     string `json:"unit" validate:"max=16"`
	Category string `json:"category" validate:"max=64"`
	IsCommon bool   `json:"is_common"`
}

type materialUpdateRequest struct {
	Name     *string `json:"name" validate:"omitempty,max=255"`
	Unit     *string `json:"unit" validate:"omitempty,max=16"`
	Category *string `json:"category" validate:"omitempty,max=64"`
	IsCommon *bool   `json:"is_common"`
	IsActive *bool   `json:"is_active"`
}

// MaterialCreate registers a new SKU.
func MaterialCreate(svc materials.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload materialCreateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		created, err := svc.Create(r.Context(), materials.CreateInput{
			SKU:      strings.TrimSpace(payload.SKU),
			Name:     strings.TrimSpace(payload.Name),
			Unit:     strings.TrimSpace(payload.Unit),
			Category: strings.TrimSpace(payload.Category),
			IsCommon: payload.IsCommon,
			Actor:    middleware.ActorFromContext(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, created)
	}
}

// MaterialList returns the catalog with optional filters.
func MaterialList(svc materials.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := validators.ParseQueryInt(r, "limit", 100, 1, 500)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filter := materials.ListFilter{
			Category:   strings.TrimSpace(r.URL.Query().Get("category")),
			Search:     strings.TrimSpace(r.URL.Query().Get("q")),
			ActiveOnly: r.URL.Query().Get("active") == "true",
			Limit:      limit,
		}
		rows, err := svc.List(r.Context(), filter)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, rows)
	}
}

// MaterialGet returns one material.
func MaterialGet(svc materials.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParsePathUUID(chi.URLParam(r, "id"), "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		material, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, material)
	}
}

// MaterialUpdate edits mutable material fields.
func MaterialUpdate(svc materials.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParsePathUUID(chi.URLParam(r, "id"), "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload materialUpdateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		updated, err := svc.Update(r.Context(), id, materials.UpdateInput{
			Name:     payload.Name,
			Unit:     payload.Unit,
			Category: payload.Category,
			IsCommon: payload.IsCommon,
			IsActive: payload.IsActive,
			Actor:    middleware.ActorFromContext(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, updated)
	}
}

// MaterialDeactivate soft-deletes a material.
func MaterialDeactivate(svc materials.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParsePathUUID(chi.URLParam(r, "id"), "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		material, err := svc.Deactivate(r.Context(), id, middleware.ActorFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, material)
	}
}
