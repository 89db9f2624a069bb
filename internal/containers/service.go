package containers

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/stocklinehq/stockline-backend/internal/actor"
	"github.com/stocklinehq/stockline-backend/internal/auditlog"
	"github.com/stocklinehq/stockline-backend/internal/inventory"
	"github.com/stocklinehq/stockline-backend/pkg/db"
	"github.com/stocklinehq/stockline-backend/pkg/db/models"
	"github.com/stocklinehq/stockline-backend/pkg/enums"
	pkgerrors "github.com/stocklinehq/stockline-backend/pkg/errors"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// CreateInput registers a container, optionally bound immediately.
type CreateInput struct {
	Code        string
	Type        string
	Description string
	LocationID  *uuid.UUID
	Actor       actor.Actor
}

// BindInput binds a container to a free, active location.
type BindInput struct {
	ContainerID uuid.UUID
	LocationID  uuid.UUID
	Actor       actor.Actor
}

// UnbindInput detaches a container from its location. Container stock
// travels with the container.
type UnbindInput struct {
	ContainerID uuid.UUID
	Actor       actor.Actor
}

// MoveInput rebinds a container to a new location atomically.
type MoveInput struct {
	ContainerID  uuid.UUID
	ToLocationID uuid.UUID
	Note         string
	Actor        actor.Actor
}

// StockAdjustInput is a manual container-level stock correction.
type StockAdjustInput struct {
	ContainerID uuid.UUID
	MaterialID  uuid.UUID
	Delta       int64
	Reason      string
	Actor       actor.Actor
}

// View is a container with its derived binding status.
type View struct {
	Container     models.Container    `json:"container"`
	BindingStatus enums.BindingStatus `json:"binding_status"`
}

// UnbindResult flags whether the detached container still carries stock.
type UnbindResult struct {
	Container        models.Container `json:"container"`
	InventoryWarning bool             `json:"inventory_warning"`
}

// StockAdjustResult reports the post-adjustment container row state.
type StockAdjustResult struct {
	ContainerID uuid.UUID `json:"container_id"`
	MaterialID  uuid.UUID `json:"material_id"`
	NewQuantity int64     `json:"new_quantity"`
	Reserved    int64     `json:"reserved"`
	NewVersion  int64     `json:"new_version"`
}

// Service manages container lifecycle, binding and stock.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*View, error)
	Get(ctx context.Context, id uuid.UUID) (*View, error)
	List(ctx context.Context, limit int) ([]View, error)
	Delete(ctx context.Context, id uuid.UUID, act actor.Actor) error
	Bind(ctx context.Context, input BindInput) (*View, error)
	Unbind(ctx context.Context, input UnbindInput) (*UnbindResult, error)
	Move(ctx context.Context, input MoveInput) (*View, error)
	AdjustStock(ctx context.Context, input StockAdjustInput) (*StockAdjustResult, error)
	Stock(ctx context.Context, containerID uuid.UUID) ([]models.ContainerInventory, error)
	Moves(ctx context.Context, containerID uuid.UUID, limit int) ([]models.ContainerMove, error)
}

type service struct {
	repo   Repository
	refs   inventory.Repository
	tx     txRunner
	ledger *inventory.Ledger
	audit  *auditlog.Recorder
}

// NewService builds the container service.
func NewService(repo Repository, refs inventory.Repository, tx txRunner, ledger *inventory.Ledger, audit *auditlog.Recorder) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("containers repository required")
	}
	if refs == nil {
		return nil, fmt.Errorf("inventory repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if ledger == nil {
		return nil, fmt.Errorf("ledger required")
	}
	if audit == nil {
		return nil, fmt.Errorf("audit recorder required")
	}
	return &service{repo: repo, refs: refs, tx: tx, ledger: ledger, audit: audit}, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*View, error) {
	if input.Code == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "container code required")
	}
	if input.Type == "" {
		input.Type = "TOTE"
	}

	var view *View
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		if input.LocationID != nil {
			if err := s.ensureLocationFree(ctx, tx, *input.LocationID); err != nil {
				return err
			}
		}

		container := &models.Container{
			Code:        input.Code,
			Type:        input.Type,
			Description: input.Description,
			LocationID:  input.LocationID,
		}
		if err := repo.Create(ctx, container); err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.Newf(pkgerrors.CodeConflict, "container code %s already exists", input.Code)
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create container")
		}

		if input.LocationID != nil {
			if err := repo.CreateMove(ctx, &models.ContainerMove{
				ContainerID:  container.ID,
				ToLocationID: input.LocationID,
				Operator:     input.Actor.Username,
				Note:         "bind_on_create",
			}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record container move")
			}
		}

		if err := s.audit.Record(ctx, tx, auditlog.Entry{
			Module:        "containers",
			Action:        "create",
			Entity:        "container",
			EntityID:      &container.ID,
			Detail:        fmt.Sprintf("code=%s", container.Code),
			Operator:      input.Actor.Username,
			RequestSource: input.Actor.RequestSource,
			TraceID:       input.Actor.TraceID,
		}); err != nil {
			return err
		}

		view = &View{Container: *container, BindingStatus: container.BindingStatus()}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*View, error) {
	container, err := s.loadContainer(ctx, s.repo, id)
	if err != nil {
		return nil, err
	}
	return &View{Container: *container, BindingStatus: container.BindingStatus()}, nil
}

func (s *service) List(ctx context.Context, limit int) ([]View, error) {
	rows, err := s.repo.List(ctx, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list containers")
	}
	views := make([]View, 0, len(rows))
	for _, row := range rows {
		views = append(views, View{Container: row, BindingStatus: row.BindingStatus()})
	}
	return views, nil
}

func (s *service) Delete(ctx context.Context, id uuid.UUID, act actor.Actor) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		container, err := s.loadContainer(ctx, repo, id)
		if err != nil {
			return err
		}
		if container.LocationID != nil {
			return pkgerrors.Newf(pkgerrors.CodeConflict, "container %s is bound; unbind before deleting", container.Code)
		}
		hasStock, err := repo.HasStock(ctx, id)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check container stock")
		}
		if hasStock {
			return pkgerrors.Newf(pkgerrors.CodeConflict, "container %s still carries stock", container.Code)
		}

		if err := repo.Delete(ctx, id); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete container")
		}
		return s.audit.Record(ctx, tx, auditlog.Entry{
			Module:        "containers",
			Action:        "delete",
			Entity:        "container",
			EntityID:      &id,
			Detail:        fmt.Sprintf("code=%s", container.Code),
			Operator:      act.Username,
			RequestSource: act.RequestSource,
			TraceID:       act.TraceID,
		})
	})
}

func (s *service) Bind(ctx context.Context, input BindInput) (*View, error) {
	var view *View
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		container, err := s.loadContainer(ctx, repo, input.ContainerID)
		if err != nil {
			return err
		}
		if container.LocationID != nil {
			return pkgerrors.Newf(pkgerrors.CodeContainerBound,
				"container %s is already bound to a location", container.Code).
				WithDetails(map[string]any{"container_id": container.ID, "location_id": *container.LocationID})
		}
		if err := s.ensureLocationFree(ctx, tx, input.LocationID); err != nil {
			return err
		}

		if err := repo.UpdateLocation(ctx, container.ID, &input.LocationID); err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.New(pkgerrors.CodeLocationOccupied, "location already has a bound container")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "bind container")
		}
		container.LocationID = &input.LocationID

		if err := repo.CreateMove(ctx, &models.ContainerMove{
			ContainerID:  container.ID,
			ToLocationID: &input.LocationID,
			Operator:     input.Actor.Username,
			Note:         "bind",
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record container move")
		}

		if err := s.audit.Record(ctx, tx, auditlog.Entry{
			Module:        "containers",
			Action:        "bind",
			Entity:        "container",
			EntityID:      &container.ID,
			Detail:        fmt.Sprintf("code=%s location_id=%s", container.Code, input.LocationID),
			Operator:      input.Actor.Username,
			RequestSource: input.Actor.RequestSource,
			TraceID:       input.Actor.TraceID,
		}); err != nil {
			return err
		}

		view = &View{Container: *container, BindingStatus: container.BindingStatus()}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

func (s *service) Unbind(ctx context.Context, input UnbindInput) (*UnbindResult, error) {
	var result *UnbindResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		container, err := s.loadContainer(ctx, repo, input.ContainerID)
		if err != nil {
			return err
		}
		if container.LocationID == nil {
			return pkgerrors.Newf(pkgerrors.CodeValidation, "container %s is not bound", container.Code)
		}
		fromLocation := container.LocationID

		hasStock, err := repo.HasStock(ctx, container.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check container stock")
		}

		if err := repo.UpdateLocation(ctx, container.ID, nil); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "unbind container")
		}
		container.LocationID = nil

		if err := repo.CreateMove(ctx, &models.ContainerMove{
			ContainerID:    container.ID,
			FromLocationID: fromLocation,
			Operator:       input.Actor.Username,
			Note:           "unbind",
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record container move")
		}

		if err := s.audit.Record(ctx, tx, auditlog.Entry{
			Module:        "containers",
			Action:        "unbind",
			Entity:        "container",
			EntityID:      &container.ID,
			Detail:        fmt.Sprintf("code=%s from_location_id=%s", container.Code, *fromLocation),
			Operator:      input.Actor.Username,
			RequestSource: input.Actor.RequestSource,
			TraceID:       input.Actor.TraceID,
		}); err != nil {
			return err
		}

		result = &UnbindResult{Container: *container, InventoryWarning: hasStock}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *service) Move(ctx context.Context, input MoveInput) (*View, error) {
	var view *View
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		container, err := s.loadContainer(ctx, repo, input.ContainerID)
		if err != nil {
			return err
		}
		if container.LocationID == nil {
			return pkgerrors.Newf(pkgerrors.CodeValidation, "container %s is not bound", container.Code)
		}
		if *container.LocationID == input.ToLocationID {
			return pkgerrors.Newf(pkgerrors.CodeNoOpMove,
				"container %s is already at the target location", container.Code).
				WithDetails(map[string]any{"container_id": container.ID, "location_id": input.ToLocationID})
		}
		fromLocation := container.LocationID

		if err := s.ensureLocationFree(ctx, tx, input.ToLocationID); err != nil {
			return err
		}

		if err := repo.UpdateLocation(ctx, container.ID, &input.ToLocationID); err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.New(pkgerrors.CodeLocationOccupied, "location already has a bound container")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "move container")
		}
		container.LocationID = &input.ToLocationID

		if err := repo.CreateMove(ctx, &models.ContainerMove{
			ContainerID:    container.ID,
			FromLocationID: fromLocation,
			ToLocationID:   &input.ToLocationID,
			Operator:       input.Actor.Username,
			Note:           input.Note,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record container move")
		}

		if err := s.audit.Record(ctx, tx, auditlog.Entry{
			Module:        "containers",
			Action:        "move",
			Entity:        "container",
			EntityID:      &container.ID,
			Detail:        fmt.Sprintf("code=%s %s -> %s", container.Code, *fromLocation, input.ToLocationID),
			Operator:      input.Actor.Username,
			RequestSource: input.Actor.RequestSource,
			TraceID:       input.Actor.TraceID,
		}); err != nil {
			return err
		}

		view = &View{Container: *container, BindingStatus: container.BindingStatus()}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

// AdjustStock mutates the container ledger only; the location ledger is
// never mirrored.
func (s *service) AdjustStock(ctx context.Context, input StockAdjustInput) (*StockAdjustResult, error) {
	if input.Delta == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "delta must be non-zero")
	}
	if input.Reason == "" {
		input.Reason = "manual"
	}

	var result *StockAdjustResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		refs := s.refs.WithTx(tx)

		container, err := s.loadContainer(ctx, repo, input.ContainerID)
		if err != nil {
			return err
		}
		material, err := inventory.ActiveMaterial(ctx, refs, input.MaterialID)
		if err != nil {
			return err
		}

		row, err := s.ledger.ApplyContainer(ctx, tx, inventory.ContainerMutation{
			ContainerID:   container.ID,
			MaterialID:    material.ID,
			DeltaQuantity: input.Delta,
		})
		if err != nil {
			return err
		}

		move := &models.StockMove{
			MaterialID:  material.ID,
			ContainerID: &container.ID,
			Qty:         input.Delta,
			Type:        enums.StockMoveContainerAdjust(input.Reason),
			Operator:    input.Actor.Username,
		}
		if container.LocationID != nil {
			if input.Delta > 0 {
				move.ToLocationID = container.LocationID
			} else {
				move.FromLocationID = container.LocationID
			}
		}
		if err := s.ledger.RecordMove(ctx, tx, move); err != nil {
			return err
		}

		if err := s.audit.Record(ctx, tx, auditlog.Entry{
			Module:        "containers",
			Action:        "stock_adjust",
			Entity:        "container",
			EntityID:      &container.ID,
			Detail:        fmt.Sprintf("code=%s sku=%s delta=%d reason=%s", container.Code, material.SKU, input.Delta, input.Reason),
			After:         map[string]int64{"quantity": row.Quantity, "reserved": row.Reserved},
			Operator:      input.Actor.Username,
			RequestSource: input.Actor.RequestSource,
			TraceID:       input.Actor.TraceID,
		}); err != nil {
			return err
		}

		result = &StockAdjustResult{
			ContainerID: container.ID,
			MaterialID:  material.ID,
			NewQuantity: row.Quantity,
			Reserved:    row.Reserved,
			NewVersion:  row.Version,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *service) Stock(ctx context.Context, containerID uuid.UUID) ([]models.ContainerInventory, error) {
	rows, err := s.refs.ListContainerStock(ctx, containerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list container stock")
	}
	return rows, nil
}

func (s *service) Moves(ctx context.Context, containerID uuid.UUID, limit int) ([]models.ContainerMove, error) {
	rows, err := s.repo.ListMoves(ctx, containerID, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list container moves")
	}
	return rows, nil
}

func (s *service) loadContainer(ctx context.Context, repo Repository, id uuid.UUID) (*models.Container, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "container id required")
	}
	container, err := repo.Find(ctx, id)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "container not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load container")
	}
	return container, nil
}

func (s *service) ensureLocationFree(ctx context.Context, tx *gorm.DB, locationID uuid.UUID) error {
	refs := s.refs.WithTx(tx)
	if _, err := inventory.ActiveLocation(ctx, refs, locationID); err != nil {
		return err
	}
	occupant, err := s.repo.WithTx(tx).FindAtLocation(ctx, locationID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check location occupancy")
	}
	if occupant != nil {
		return pkgerrors.Newf(pkgerrors.CodeLocationOccupied,
			"location already holds container %s", occupant.Code).
			WithDetails(map[string]any{"location_id": locationID, "container_id": occupant.ID})
	}
	return nil
}
