package topology

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/stocklinehq/stockline-backend/internal/actor"
	"github.com/stocklinehq/stockline-backend/internal/auditlog"
	"github.com/stocklinehq/stockline-backend/internal/containers"
	"github.com/stocklinehq/stockline-backend/pkg/db"
	"github.com/stocklinehq/stockline-backend/pkg/db/models"
	"github.com/stocklinehq/stockline-backend/pkg/enums"
	pkgerrors "github.com/stocklinehq/stockline-backend/pkg/errors"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// FactoryInput carries factory create/update fields.
type FactoryInput struct {
	Code  string
	Name  string
	Actor actor.Actor
}

// WarehouseInput carries warehouse create/update fields.
type WarehouseInput struct {
	Code      string
	Name      string
	FactoryID *uuid.UUID
	Actor     actor.Actor
}

// AreaInput carries area create/update fields.
type AreaInput struct {
	Code        string
	Name        string
	FactoryID   *uuid.UUID
	WarehouseID *uuid.UUID
	Actor       actor.Actor
}

// LocationInput carries location create/update fields.
type LocationInput struct {
	WarehouseID uuid.UUID
	AreaID      *uuid.UUID
	Code        string
	Name        string
	Status      string
	Actor       actor.Actor
}

// LocationView is a location with its derived binding state.
type LocationView struct {
	Location      models.Location     `json:"location"`
	BindingStatus enums.BindingStatus `json:"binding_status"`
	ContainerID   *uuid.UUID          `json:"container_id,omitempty"`
}

// Service manages the factory/warehouse/area/location hierarchy.
type Service interface {
	CreateFactory(ctx context.Context, input FactoryInput) (*models.Factory, error)
	ListFactories(ctx context.Context) ([]models.Factory, error)
	UpdateFactory(ctx context.Context, id uuid.UUID, input FactoryInput) (*models.Factory, error)
	DeleteFactory(ctx context.Context, id uuid.UUID, act actor.Actor) error

	CreateWarehouse(ctx context.Context, input WarehouseInput) (*models.Warehouse, error)
	ListWarehouses(ctx context.Context, factoryID *uuid.UUID) ([]models.Warehouse, error)
	UpdateWarehouse(ctx context.Context, id uuid.UUID, input WarehouseInput) (*models.Warehouse, error)
	DeleteWarehouse(ctx context.Context, id uuid.UUID, act actor.Actor) error

	CreateArea(ctx context.Context, input AreaInput) (*models.Area, error)
	ListAreas(ctx context.Context, warehouseID *uuid.UUID) ([]models.Area, error)
	UpdateArea(ctx context.Context, id uuid.UUID, input AreaInput) (*models.Area, error)
	DeleteArea(ctx context.Context, id uuid.UUID, act actor.Actor) error

	CreateLocation(ctx context.Context, input LocationInput) (*LocationView, error)
	GetLocation(ctx context.Context, id uuid.UUID) (*LocationView, error)
	ListLocations(ctx context.Context, filter LocationFilter) ([]LocationView, error)
	UpdateLocation(ctx context.Context, id uuid.UUID, input LocationInput) (*LocationView, error)
	DeleteLocation(ctx context.Context, id uuid.UUID, act actor.Actor) error
}

type service struct {
	repo       Repository
	containers containers.Repository
	tx         txRunner
	audit      *auditlog.Recorder
}

// NewService builds the topology service.
func NewService(repo Repository, containerRepo containers.Repository, tx txRunner, audit *auditlog.Recorder) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("topology repository required")
	}
	if containerRepo == nil {
		return nil, fmt.Errorf("containers repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if audit == nil {
		return nil, fmt.Errorf("audit recorder required")
	}
	return &service{repo: repo, containers: containerRepo, tx: tx, audit: audit}, nil
}

func (s *service) CreateFactory(ctx context.Context, input FactoryInput) (*models.Factory, error) {
	if input.Code == "" || input.Name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "factory code and name required")
	}
	factory := &models.Factory{Code: input.Code, Name: input.Name}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).CreateFactory(ctx, factory); err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.Newf(pkgerrors.CodeConflict, "factory code %s already exists", input.Code)
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create factory")
		}
		return s.recordAudit(ctx, tx, "create", "factory", factory.ID, fmt.Sprintf("code=%s", factory.Code), input.Actor)
	})
	if err != nil {
		return nil, err
	}
	return factory, nil
}

func (s *service) ListFactories(ctx context.Context) ([]models.Factory, error) {
	factories, err := s.repo.ListFactories(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list factories")
	}
	return factories, nil
}

func (s *service) UpdateFactory(ctx context.Context, id uuid.UUID, input FactoryInput) (*models.Factory, error) {
	var factory *models.Factory
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		found, err := repo.FindFactory(ctx, id)
		if err != nil {
			return notFoundOr(err, "factory")
		}
		if input.Code != "" {
			found.Code = input.Code
		}
		if input.Name != "" {
			found.Name = input.Name
		}
		if err := repo.SaveFactory(ctx, found); err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.Newf(pkgerrors.CodeConflict, "factory code %s already exists", found.Code)
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update factory")
		}
		factory = found
		return s.recordAudit(ctx, tx, "update", "factory", found.ID, fmt.Sprintf("code=%s", found.Code), input.Actor)
	})
	if err != nil {
		return nil, err
	}
	return factory, nil
}

func (s *service) DeleteFactory(ctx context.Context, id uuid.UUID, act actor.Actor) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		factory, err := repo.FindFactory(ctx, id)
		if err != nil {
			return notFoundOr(err, "factory")
		}
		hasChildren, err := repo.FactoryHasChildren(ctx, id)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check factory children")
		}
		if hasChildren {
			return pkgerrors.Newf(pkgerrors.CodeConflict, "factory %s still has warehouses or areas", factory.Code)
		}
		if err := repo.DeleteFactory(ctx, id); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete factory")
		}
		return s.recordAudit(ctx, tx, "delete", "factory", id, fmt.Sprintf("code=%s", factory.Code), act)
	})
}

func (s *service) CreateWarehouse(ctx context.Context, input WarehouseInput) (*models.Warehouse, error) {
	if input.Code == "" || input.Name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "warehouse code and name required")
	}
	warehouse := &models.Warehouse{Code: input.Code, Name: input.Name, FactoryID: input.FactoryID}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if input.FactoryID != nil {
			if _, err := repo.FindFactory(ctx, *input.FactoryID); err != nil {
				return notFoundOr(err, "factory")
			}
		}
		if err := repo.CreateWarehouse(ctx, warehouse); err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.Newf(pkgerrors.CodeConflict, "warehouse code %s already exists", input.Code)
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create warehouse")
		}
		return s.recordAudit(ctx, tx, "create", "warehouse", warehouse.ID, fmt.Sprintf("code=%s", warehouse.Code), input.Actor)
	})
	if err != nil {
		return nil, err
	}
	return warehouse, nil
}

func (s *service) ListWarehouses(ctx context.Context, factoryID *uuid.UUID) ([]models.Warehouse, error) {
	warehouses, err := s.repo.ListWarehouses(ctx, factoryID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list warehouses")
	}
	return warehouses, nil
}

func (s *service) UpdateWarehouse(ctx context.Context, id uuid.UUID, input WarehouseInput) (*models.Warehouse, error) {
	var warehouse *models.Warehouse
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		found, err := repo.FindWarehouse(ctx, id)
		if err != nil {
			return notFoundOr(err, "warehouse")
		}
		if input.Code != "" {
			found.Code = input.Code
		}
		if input.Name != "" {
			found.Name = input.Name
		}
		if input.FactoryID != nil {
			if _, err := repo.FindFactory(ctx, *input.FactoryID); err != nil {
				return notFoundOr(err, "factory")
			}
			found.FactoryID = input.FactoryID
		}
		if err := repo.SaveWarehouse(ctx, found); err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.Newf(pkgerrors.CodeConflict, "warehouse code %s already exists", found.Code)
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update warehouse")
		}
		warehouse = found
		return s.recordAudit(ctx, tx, "update", "warehouse", found.ID, fmt.Sprintf("code=%s", found.Code), input.Actor)
	})
	if err != nil {
		return nil, err
	}
	return warehouse, nil
}

func (s *service) DeleteWarehouse(ctx context.Context, id uuid.UUID, act actor.Actor) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		warehouse, err := repo.FindWarehouse(ctx, id)
		if err != nil {
			return notFoundOr(err, "warehouse")
		}
		hasChildren, err := repo.WarehouseHasChildren(ctx, id)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check warehouse children")
		}
		if hasChildren {
			return pkgerrors.Newf(pkgerrors.CodeConflict, "warehouse %s still has areas or locations", warehouse.Code)
		}
		if err := repo.DeleteWarehouse(ctx, id); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete warehouse")
		}
		return s.recordAudit(ctx, tx, "delete", "warehouse", id, fmt.Sprintf("code=%s", warehouse.Code), act)
	})
}

func (s *service) CreateArea(ctx context.Context, input AreaInput) (*models.Area, error) {
	if input.Code == "" || input.Name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "area code and name required")
	}
	area := &models.Area{
		Code:        input.Code,
		Name:        input.Name,
		FactoryID:   input.FactoryID,
		WarehouseID: input.WarehouseID,
	}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if input.WarehouseID != nil {
			if _, err := repo.FindWarehouse(ctx, *input.WarehouseID); err != nil {
				return notFoundOr(err, "warehouse")
			}
		}
		if err := repo.CreateArea(ctx, area); err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.Newf(pkgerrors.CodeConflict, "area code %s already exists", input.Code)
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create area")
		}
		return s.recordAudit(ctx, tx, "create", "area", area.ID, fmt.Sprintf("code=%s", area.Code), input.Actor)
	})
	if err != nil {
		return nil, err
	}
	return area, nil
}

func (s *service) ListAreas(ctx context.Context, warehouseID *uuid.UUID) ([]models.Area, error) {
	areas, err := s.repo.ListAreas(ctx, warehouseID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list areas")
	}
	return areas, nil
}

func (s *service) UpdateArea(ctx context.Context, id uuid.UUID, input AreaInput) (*models.Area, error) {
	var area *models.Area
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		found, err := repo.FindArea(ctx, id)
		if err != nil {
			return notFoundOr(err, "area")
		}
		if input.Code != "" {
			found.Code = input.Code
		}
		if input.Name != "" {
			found.Name = input.Name
		}
		if input.WarehouseID != nil {
			if _, err := repo.FindWarehouse(ctx, *input.WarehouseID); err != nil {
				return notFoundOr(err, "warehouse")
			}
			found.WarehouseID = input.WarehouseID
		}
		if input.FactoryID != nil {
			found.FactoryID = input.FactoryID
		}
		if err := repo.SaveArea(ctx, found); err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.Newf(pkgerrors.CodeConflict, "area code %s already exists", found.Code)
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update area")
		}
		area = found
		return s.recordAudit(ctx, tx, "update", "area", found.ID, fmt.Sprintf("code=%s", found.Code), input.Actor)
	})
	if err != nil {
		return nil, err
	}
	return area, nil
}

func (s *service) DeleteArea(ctx context.Context, id uuid.UUID, act actor.Actor) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		area, err := repo.FindArea(ctx, id)
		if err != nil {
			return notFoundOr(err, "area")
		}
		hasLocations, err := repo.AreaHasLocations(ctx, id)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check area locations")
		}
		if hasLocations {
			return pkgerrors.Newf(pkgerrors.CodeConflict, "area %s still has locations", area.Code)
		}
		if err := repo.DeleteArea(ctx, id); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete area")
		}
		return s.recordAudit(ctx, tx, "delete", "area", id, fmt.Sprintf("code=%s", area.Code), act)
	})
}

func (s *service) CreateLocation(ctx context.Context, input LocationInput) (*LocationView, error) {
	if input.Code == "" || input.WarehouseID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "location code and warehouse required")
	}
	status := enums.LocationStatusActive
	if input.Status != "" {
		parsed, err := enums.ParseLocationStatus(input.Status)
		if err != nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, err.Error())
		}
		status = parsed
	}
	location := &models.Location{
		WarehouseID: input.WarehouseID,
		AreaID:      input.AreaID,
		Code:        input.Code,
		Name:        input.Name,
		Status:      status,
	}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if _, err := repo.FindWarehouse(ctx, input.WarehouseID); err != nil {
			return notFoundOr(err, "warehouse")
		}
		if input.AreaID != nil {
			if _, err := repo.FindArea(ctx, *input.AreaID); err != nil {
				return notFoundOr(err, "area")
			}
		}
		if err := repo.CreateLocation(ctx, location); err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.Newf(pkgerrors.CodeConflict, "location code %s already exists in warehouse", input.Code)
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create location")
		}
		return s.recordAudit(ctx, tx, "create", "location", location.ID, fmt.Sprintf("code=%s", location.Code), input.Actor)
	})
	if err != nil {
		return nil, err
	}
	return &LocationView{Location: *location, BindingStatus: enums.BindingStatusUnbound}, nil
}

func (s *service) GetLocation(ctx context.Context, id uuid.UUID) (*LocationView, error) {
	location, err := s.repo.FindLocation(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "location")
	}
	return s.locationView(ctx, *location)
}

func (s *service) ListLocations(ctx context.Context, filter LocationFilter) ([]LocationView, error) {
	locations, err := s.repo.ListLocations(ctx, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list locations")
	}
	views := make([]LocationView, 0, len(locations))
	for _, location := range locations {
		view, err := s.locationView(ctx, location)
		if err != nil {
			return nil, err
		}
		views = append(views, *view)
	}
	return views, nil
}

func (s *service) UpdateLocation(ctx context.Context, id uuid.UUID, input LocationInput) (*LocationView, error) {
	var view *LocationView
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		found, err := repo.FindLocation(ctx, id)
		if err != nil {
			return notFoundOr(err, "location")
		}
		if input.Code != "" {
			found.Code = input.Code
		}
		if input.Name != "" {
			found.Name = input.Name
		}
		if input.AreaID != nil {
			if _, err := repo.FindArea(ctx, *input.AreaID); err != nil {
				return notFoundOr(err, "area")
			}
			found.AreaID = input.AreaID
		}
		if input.Status != "" {
			parsed, err := enums.ParseLocationStatus(input.Status)
			if err != nil {
				return pkgerrors.New(pkgerrors.CodeValidation, err.Error())
			}
			found.Status = parsed
		}
		if err := repo.SaveLocation(ctx, found); err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.Newf(pkgerrors.CodeConflict, "location code %s already exists in warehouse", found.Code)
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update location")
		}
		occupant, err := s.containers.WithTx(tx).FindAtLocation(ctx, found.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve location binding")
		}
		view = &LocationView{Location: *found, BindingStatus: enums.BindingStatusFor(occupant != nil)}
		if occupant != nil {
			view.ContainerID = &occupant.ID
		}
		return s.recordAudit(ctx, tx, "update", "location", found.ID, fmt.Sprintf("code=%s status=%s", found.Code, found.Status), input.Actor)
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

func (s *service) DeleteLocation(ctx context.Context, id uuid.UUID, act actor.Actor) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		location, err := repo.FindLocation(ctx, id)
		if err != nil {
			return notFoundOr(err, "location")
		}
		occupant, err := s.containers.WithTx(tx).FindAtLocation(ctx, id)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve location binding")
		}
		if occupant != nil {
			return pkgerrors.Newf(pkgerrors.CodeLocationBound,
				"location %s is bound to container %s", location.Code, occupant.Code).
				WithDetails(map[string]any{"container_id": occupant.ID})
		}
		hasStock, err := repo.LocationHasStock(ctx, id)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check location stock")
		}
		if hasStock {
			return pkgerrors.Newf(pkgerrors.CodeConflict, "location %s still carries stock", location.Code)
		}
		if err := repo.DeleteLocation(ctx, id); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete location")
		}
		return s.recordAudit(ctx, tx, "delete", "location", id, fmt.Sprintf("code=%s", location.Code), act)
	})
}

func (s *service) locationView(ctx context.Context, location models.Location) (*LocationView, error) {
	occupant, err := s.containers.FindAtLocation(ctx, location.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve location binding")
	}
	view := &LocationView{Location: location, BindingStatus: enums.BindingStatusFor(occupant != nil)}
	if occupant != nil {
		view.ContainerID = &occupant.ID
	}
	return view, nil
}

func (s *service) recordAudit(ctx context.Context, tx *gorm.DB, action, entity string, entityID uuid.UUID, detail string, act actor.Actor) error {
	return s.audit.Record(ctx, tx, auditlog.Entry{
		Module:        "topology",
		Action:        action,
		Entity:        entity,
		EntityID:      &entityID,
		Detail:        detail,
		Operator:      act.Username,
		RequestSource: act.RequestSource,
		TraceID:       act.TraceID,
	})
}

func notFoundOr(err error, entity string) error {
	if err == gorm.ErrRecordNotFound {
		return pkgerrors.Newf(pkgerrors.CodeNotFound, "%s not found", entity)
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load "+entity)
}
