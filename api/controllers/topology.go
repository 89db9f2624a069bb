package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/stocklinehq/stockline-backend/api/middleware"
	"github.com/stocklinehq/stockline-backend/api/responses"
	"github.com/stocklinehq/stockline-backend/api/validators"
	"github.com/stocklinehq/stockline-backend/internal/topology"
	pkgerrors "github.com/stocklinehq/stockline-backend/pkg/errors"
	"github.com/stocklinehq/stockline-backend/pkg/logger"
)

type factoryRequest struct {
	Code string `json:"code" validate:"required,max=64"`
	Name string `json:"name" validate:"required,max=255"`
}

type warehouseRequest struct {
	Code      string `json:"code" validate:"required,max=64"`
	Name      string `json:"name" validate:"required,max=255"`
	FactoryID string `json:"factory_id" validate:"omitempty,uuid"`
}

type areaRequest struct {
	Code        string `json:"code" validate:"required,max=64"`
	Name        string `json:"name" validate:"required,max=255"`
	FactoryID   string `json:"factory_id" validate:"omitempty,uuid"`
	WarehouseID string `json:"warehouse_id" validate:"omitempty,uuid"`
}

type locationRequest struct {
	WarehouseID string `json:"warehouse_id" validate:"required,uuid"`
	AreaID      string `json:"area_id" validate:"omitempty,uuid"`
	Code        string `json:"code" validate:"required,max=64"`
	Name        string `json:"name" validate:"max=255"`
	Status      string `json:"status" validate:"omitempty,oneof=ACTIVE DISABLED"`
}

type locationUpdateRequest struct {
	AreaID string `json:"area_id" validate:"omitempty,uuid"`
	Code   string `json:"code" validate:"omitempty,max=64"`
	Name   string `json:"name" validate:"omitempty,max=255"`
	Status string `json:"status" validate:"omitempty,oneof=ACTIVE DISABLED"`
}

func optionalUUID(raw string) (*uuid.UUID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid uuid")
	}
	return &id, nil
}

// FactoryCreate adds a factory.
func FactoryCreate(svc topology.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload factoryRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		created, err := svc.CreateFactory(r.Context(), topology.FactoryInput{
			Code:  strings.TrimSpace(payload.Code),
			Name:  strings.TrimSpace(payload.Name),
			Actor: middleware.ActorFromContext(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, created)
	}
}

// FactoryList lists factories.
func FactoryList(svc topology.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rows, err := svc.ListFactories(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, rows)
	}
}

// FactoryUpdate edits a factory.
func FactoryUpdate(svc topology.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParsePathUUID(chi.URLParam(r, "id"), "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload factoryRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		updated, err := svc.UpdateFactory(r.Context(), id, topology.FactoryInput{
			Code:  strings.TrimSpace(payload.Code),
			Name:  strings.TrimSpace(payload.Name),
			Actor: middleware.ActorFromContext(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, updated)
	}
}

// FactoryDelete removes an empty factory.
func FactoryDelete(svc topology.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParsePathUUID(chi.URLParam(r, "id"), "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.DeleteFactory(r.Context(), id, middleware.ActorFromContext(r.Context())); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"deleted": true})
	}
}

// WarehouseCreate adds a warehouse.
func WarehouseCreate(svc topology.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload warehouseRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		factoryID, err := optionalUUID(payload.FactoryID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		created, err := svc.CreateWarehouse(r.Context(), topology.WarehouseInput{
			Code:      strings.TrimSpace(payload.Code),
			Name:      strings.TrimSpace(payload.Name),
			FactoryID: factoryID,
			Actor:     middleware.ActorFromContext(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, created)
	}
}

// WarehouseList lists warehouses, optionally scoped to a factory.
func WarehouseList(svc topology.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		factoryID, err := validators.ParseQueryUUID(r, "factory_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rows, err := svc.ListWarehouses(r.Context(), factoryID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, rows)
	}
}

// WarehouseUpdate edits a warehouse.
func WarehouseUpdate(svc topology.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParsePathUUID(chi.URLParam(r, "id"), "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload warehouseRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		factoryID, err := optionalUUID(payload.FactoryID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		updated, err := svc.UpdateWarehouse(r.Context(), id, topology.WarehouseInput{
			Code:      strings.TrimSpace(payload.Code),
			Name:      strings.TrimSpace(payload.Name),
			FactoryID: factoryID,
			Actor:     middleware.ActorFromContext(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, updated)
	}
}

// WarehouseDelete removes an empty warehouse.
func WarehouseDelete(svc topology.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParsePathUUID(chi.URLParam(r, "id"), "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.DeleteWarehouse(r.Context(), id, middleware.ActorFromContext(r.Context())); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"deleted": true})
	}
}

// AreaCreate adds an area.
func AreaCreate(svc topology.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload areaRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		factoryID, err := optionalUUID(payload.FactoryID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		warehouseID, err := optionalUUID(payload.WarehouseID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		created, err := svc.CreateArea(r.Context(), topology.AreaInput{
			Code:        strings.TrimSpace(payload.Code),
			Name:        strings.TrimSpace(payload.Name),
			FactoryID:   factoryID,
			WarehouseID: warehouseID,
			Actor:       middleware.ActorFromContext(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, created)
	}
}

// AreaList lists areas, optionally scoped to a warehouse.
func AreaList(svc topology.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		warehouseID, err := validators.ParseQueryUUID(r, "warehouse_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rows, err := svc.ListAreas(r.Context(), warehouseID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, rows)
	}
}

// AreaUpdate edits an area.
func AreaUpdate(svc topology.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParsePathUUID(chi.URLParam(r, "id"), "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload areaRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		factoryID, err := optionalUUID(payload.FactoryID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		warehouseID, err := optionalUUID(payload.WarehouseID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		updated, err := svc.UpdateArea(r.Context(), id, topology.AreaInput{
			Code:        strings.TrimSpace(payload.Code),
			Name:        strings.TrimSpace(payload.Name),
			FactoryID:   factoryID,
			WarehouseID: warehouseID,
			Actor:       middleware.ActorFromContext(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, updated)
	}
}

// AreaDelete removes an empty area.
func AreaDelete(svc topology.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParsePathUUID(chi.URLParam(r, "id"), "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.DeleteArea(r.Context(), id, middleware.ActorFromContext(r.Context())); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"deleted": true})
	}
}

// LocationCreate adds a storage location.
func LocationCreate(svc topology.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload locationRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		warehouseID, err := uuid.Parse(strings.TrimSpace(payload.WarehouseID))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid warehouse_id"))
			return
		}
		areaID, err := optionalUUID(payload.AreaID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		created, err := svc.CreateLocation(r.Context(), topology.LocationInput{
			WarehouseID: warehouseID,
			AreaID:      areaID,
			Code:        strings.TrimSpace(payload.Code),
			Name:        strings.TrimSpace(payload.Name),
			Status:      strings.TrimSpace(payload.Status),
			Actor:       middleware.ActorFromContext(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, created)
	}
}

// LocationList lists locations with derived binding status.
func LocationList(svc topology.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		warehouseID, err := validators.ParseQueryUUID(r, "warehouse_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		areaID, err := validators.ParseQueryUUID(r, "area_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", 200, 1, 1000)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rows, err := svc.ListLocations(r.Context(), topology.LocationFilter{
			WarehouseID: warehouseID,
			AreaID:      areaID,
			Status:      strings.TrimSpace(r.URL.Query().Get("status")),
			Limit:       limit,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, rows)
	}
}

// LocationGet returns one location with derived binding status.
func LocationGet(svc topology.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParsePathUUID(chi.URLParam(r, "id"), "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := svc.GetLocation(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// LocationUpdate edits a location.
func LocationUpdate(svc topology.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParsePathUUID(chi.URLParam(r, "id"), "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload locationUpdateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		areaID, err := optionalUUID(payload.AreaID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		updated, err := svc.UpdateLocation(r.Context(), id, topology.LocationInput{
			AreaID: areaID,
			Code:   strings.TrimSpace(payload.Code),
			Name:   strings.TrimSpace(payload.Name),
			Status: strings.TrimSpace(payload.Status),
			Actor:  middleware.ActorFromContext(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, updated)
	}
}

// LocationDelete removes an unbound, empty location.
func LocationDelete(svc topology.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParsePathUUID(chi.URLParam(r, "id"), "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.DeleteLocation(r.Context(), id, middleware.ActorFromContext(r.Context())); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"deleted": true})
	}
}
