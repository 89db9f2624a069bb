package inventory

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/stocklinehq/stockline-backend/internal/actor"
	"github.com/stocklinehq/stockline-backend/internal/auditlog"
	"github.com/stocklinehq/stockline-backend/pkg/db/models"
	"github.com/stocklinehq/stockline-backend/pkg/enums"
	pkgerrors "github.com/stocklinehq/stockline-backend/pkg/errors"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// AdjustInput is a manual location-level stock correction.
type AdjustInput struct {
	MaterialID uuid.UUID
	LocationID uuid.UUID
	Delta      int64
	Reason     string
	Actor      actor.Actor
}

// AdjustResult reports the post-adjustment row state.
type AdjustResult struct {
	MaterialID  uuid.UUID `json:"material_id"`
	LocationID  uuid.UUID `json:"location_id"`
	NewQuantity int64     `json:"new_quantity"`
	Reserved    int64     `json:"reserved"`
	NewVersion  int64     `json:"new_version"`
}

// Service exposes the manual adjustment operation and stock reads.
type Service interface {
	Adjust(ctx context.Context, input AdjustInput) (*AdjustResult, error)
	StockByLocation(ctx context.Context, locationID uuid.UUID) ([]models.Inventory, error)
	StockByMaterial(ctx context.Context, materialID uuid.UUID) ([]models.Inventory, error)
	Moves(ctx context.Context, filter MoveFilter) ([]models.StockMove, error)
}

type service struct {
	repo   Repository
	tx     txRunner
	ledger *Ledger
	audit  *auditlog.Recorder
}

// NewService builds the inventory service.
func NewService(repo Repository, tx txRunner, ledger *Ledger, audit *auditlog.Recorder) (Service, error) {
	if repo == nil {
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
	return &service{repo: repo, tx: tx, ledger: ledger, audit: audit}, nil
}

func (s *service) Adjust(ctx context.Context, input AdjustInput) (*AdjustResult, error) {
	if input.Delta == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "delta must be non-zero")
	}
	if input.Reason == "" {
		input.Reason = "manual"
	}

	var result *AdjustResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		material, err := ActiveMaterial(ctx, repo, input.MaterialID)
		if err != nil {
			return err
		}
		location, err := ActiveLocation(ctx, repo, input.LocationID)
		if err != nil {
			return err
		}

		bound, err := repo.ContainerAtLocation(ctx, input.LocationID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check location binding")
		}
		if bound != nil {
			return pkgerrors.Newf(pkgerrors.CodeLocationBound,
				"location %s is bound to container %s; adjust the container stock instead", location.Code, bound.Code)
		}

		before, err := s.ledger.Row(ctx, tx, input.MaterialID, input.LocationID)
		if err != nil {
			return err
		}

		row, err := s.ledger.Apply(ctx, tx, Mutation{
			MaterialID:    input.MaterialID,
			LocationID:    input.LocationID,
			DeltaQuantity: input.Delta,
		})
		if err != nil {
			return err
		}

		move := &models.StockMove{
			MaterialID: input.MaterialID,
			Qty:        input.Delta,
			Type:       enums.StockMoveAdjust(input.Reason),
			Operator:   input.Actor.Username,
		}
		if input.Delta > 0 {
			move.ToLocationID = &input.LocationID
		} else {
			move.FromLocationID = &input.LocationID
		}
		if err := s.ledger.RecordMove(ctx, tx, move); err != nil {
			return err
		}

		if err := s.audit.Record(ctx, tx, auditlog.Entry{
			Module:        "inventory",
			Action:        "adjust",
			Entity:        "inventory",
			EntityID:      &row.ID,
			Detail:        fmt.Sprintf("sku=%s delta=%d reason=%s", material.SKU, input.Delta, input.Reason),
			Before:        map[string]int64{"quantity": before.Quantity, "reserved": before.Reserved},
			After:         map[string]int64{"quantity": row.Quantity, "reserved": row.Reserved},
			Operator:      input.Actor.Username,
			RequestSource: input.Actor.RequestSource,
			TraceID:       input.Actor.TraceID,
		}); err != nil {
			return err
		}

		result = &AdjustResult{
			MaterialID:  input.MaterialID,
			LocationID:  input.LocationID,
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

func (s *service) StockByLocation(ctx context.Context, locationID uuid.UUID) ([]models.Inventory, error) {
	rows, err := s.repo.ListByLocation(ctx, locationID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list location stock")
	}
	return rows, nil
}

func (s *service) StockByMaterial(ctx context.Context, materialID uuid.UUID) ([]models.Inventory, error) {
	rows, err := s.repo.ListByMaterial(ctx, materialID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list material stock")
	}
	return rows, nil
}

func (s *service) Moves(ctx context.Context, filter MoveFilter) ([]models.StockMove, error) {
	rows, err := s.repo.ListMoves(ctx, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list stock moves")
	}
	return rows, nil
}
