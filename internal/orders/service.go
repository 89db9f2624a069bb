package orders

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/stocklinehq/stockline-backend/internal/auditlog"
	"github.com/stocklinehq/stockline-backend/internal/inventory"
	"github.com/stocklinehq/stockline-backend/pkg/db/models"
	"github.com/stocklinehq/stockline-backend/pkg/enums"
	pkgerrors "github.com/stocklinehq/stockline-backend/pkg/errors"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service drives the order lifecycle. Every transition runs inside one
// transaction covering the status change, all line updates, the ledger
// mutations, the stock moves and the operation log.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*TransitionResult, error)
	Get(ctx context.Context, id uuid.UUID) (*TransitionResult, error)
	List(ctx context.Context, filter ListFilter) ([]models.Order, error)
	Receive(ctx context.Context, input ReceiveInput) (*TransitionResult, error)
	Reserve(ctx context.Context, input ReserveInput) (*TransitionResult, error)
	Pick(ctx context.Context, input PickInput) (*TransitionResult, error)
	Pack(ctx context.Context, input PackInput) (*TransitionResult, error)
	Ship(ctx context.Context, input ShipInput) (*TransitionResult, error)
}

type service struct {
	repo   Repository
	refs   inventory.Repository
	tx     txRunner
	ledger *inventory.Ledger
	audit  *auditlog.Recorder
}

// NewService builds the order service.
func NewService(repo Repository, refs inventory.Repository, tx txRunner, ledger *inventory.Ledger, audit *auditlog.Recorder) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
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

func (s *service) Create(ctx context.Context, input CreateInput) (*TransitionResult, error) {
	if !input.Type.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order type must be inbound or outbound")
	}
	if len(input.Lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order requires at least one line")
	}
	for _, line := range input.Lines {
		if line.Qty <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "line qty must be positive")
		}
	}
	switch input.Type {
	case enums.OrderTypeInbound:
		if input.TargetLocationID == nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "inbound order requires a target location")
		}
	case enums.OrderTypeOutbound:
		if input.SourceLocationID == nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "outbound order requires a source location")
		}
		if input.TargetLocationID != nil && *input.TargetLocationID == *input.SourceLocationID {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "staging location must differ from the source location")
		}
	}

	orderNo := strings.TrimSpace(input.OrderNo)
	if orderNo == "" {
		orderNo = generateOrderNo(input.Type)
	}

	var result *TransitionResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		refs := s.refs.WithTx(tx)

		if input.SourceLocationID != nil {
			if _, err := inventory.ActiveLocation(ctx, refs, *input.SourceLocationID); err != nil {
				return err
			}
		}
		if input.TargetLocationID != nil {
			if _, err := inventory.ActiveLocation(ctx, refs, *input.TargetLocationID); err != nil {
				return err
			}
		}

		order := &models.Order{
			OrderNo:          orderNo,
			Type:             input.Type,
			Status:           enums.OrderStatusCreated,
			Partner:          input.Partner,
			SourceLocationID: input.SourceLocationID,
			TargetLocationID: input.TargetLocationID,
			CreatedBy:        input.Actor.Username,
		}
		if err := repo.Create(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "create order")
		}

		lines := make([]models.OrderLine, 0, len(input.Lines))
		for _, line := range input.Lines {
			material, err := inventory.ActiveMaterial(ctx, refs, line.MaterialID)
			if err != nil {
				return err
			}
			lines = append(lines, models.OrderLine{
				OrderID:      order.ID,
				MaterialID:   material.ID,
				MaterialSKU:  material.SKU,
				MaterialName: material.Name,
				Qty:          line.Qty,
			})
		}
		if err := repo.CreateLines(ctx, lines); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order lines")
		}

		if err := s.audit.Record(ctx, tx, auditlog.Entry{
			Module:        "orders",
			Action:        "create",
			Entity:        "order",
			EntityID:      &order.ID,
			Detail:        fmt.Sprintf("order_no=%s type=%s lines=%d", order.OrderNo, order.Type, len(lines)),
			Operator:      input.Actor.Username,
			RequestSource: input.Actor.RequestSource,
			TraceID:       input.Actor.TraceID,
		}); err != nil {
			return err
		}

		result = &TransitionResult{Order: order, Lines: lines}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*TransitionResult, error) {
	order, err := s.repo.FindWithLines(ctx, id)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return &TransitionResult{Order: order, Lines: order.Lines}, nil
}

func (s *service) List(ctx context.Context, filter ListFilter) ([]models.Order, error) {
	rows, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	return rows, nil
}

// Receive applies an inbound order: ledger quantity increases at the
// target location for each line.
func (s *service) Receive(ctx context.Context, input ReceiveInput) (*TransitionResult, error) {
	var result *TransitionResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		order, err := s.loadForTransition(ctx, repo, input.OrderID, enums.OrderTypeInbound, "receive")
		if err != nil {
			return err
		}
		if err := guardTransition(order, enums.OrderStatusCreated, "receive"); err != nil {
			return err
		}
		if order.TargetLocationID == nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "inbound order has no target location")
		}
		if _, err := inventory.ActiveLocation(ctx, s.refs.WithTx(tx), *order.TargetLocationID); err != nil {
			return err
		}

		for i := range order.Lines {
			line := &order.Lines[i]
			if _, err := s.ledger.Apply(ctx, tx, inventory.Mutation{
				MaterialID:    line.MaterialID,
				LocationID:    *order.TargetLocationID,
				DeltaQuantity: line.Qty,
			}); err != nil {
				return err
			}
			if err := s.ledger.RecordMove(ctx, tx, &models.StockMove{
				MaterialID:   line.MaterialID,
				ToLocationID: order.TargetLocationID,
				Qty:          line.Qty,
				Type:         enums.StockMoveInboundReceive,
				RefOrderID:   &order.ID,
				Operator:     input.Actor.Username,
			}); err != nil {
				return err
			}
		}

		if err := s.commitTransition(ctx, tx, repo, order, enums.OrderStatusCreated, enums.OrderStatusReceived, "receive", input.Actor.Username, input.Actor.RequestSource, input.Actor.TraceID); err != nil {
			return err
		}
		result = &TransitionResult{Order: order, Lines: order.Lines}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Reserve earmarks stock at the source location for every line. Without
// force, any shortfall fails the whole order; with force, each line is
// capped at the available quantity.
func (s *service) Reserve(ctx context.Context, input ReserveInput) (*TransitionResult, error) {
	var result *TransitionResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		order, err := s.loadForTransition(ctx, repo, input.OrderID, enums.OrderTypeOutbound, "reserve")
		if err != nil {
			return err
		}
		if err := guardTransition(order, enums.OrderStatusCreated, "reserve"); err != nil {
			return err
		}
		if order.SourceLocationID == nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "outbound order has no source location")
		}
		source := *order.SourceLocationID
		if _, err := inventory.ActiveLocation(ctx, s.refs.WithTx(tx), source); err != nil {
			return err
		}

		for i := range order.Lines {
			line := &order.Lines[i]

			row, err := s.ledger.Row(ctx, tx, line.MaterialID, source)
			if err != nil {
				return err
			}
			available := row.Available()

			reserveQty := line.Qty
			if available < line.Qty {
				if !input.Force {
					return pkgerrors.Newf(pkgerrors.CodeInsufficientStock,
						"sku=%s needs %d but only %d available at source", line.MaterialSKU, line.Qty, available).
						WithDetails(map[string]any{"material_id": line.MaterialID, "requested": line.Qty, "available": available})
				}
				reserveQty = available
			}
			if reserveQty <= 0 {
				line.ReservedQty = 0
				continue
			}

			if _, err := s.ledger.Apply(ctx, tx, inventory.Mutation{
				MaterialID:    line.MaterialID,
				LocationID:    source,
				DeltaReserved: reserveQty,
			}); err != nil {
				return err
			}
			if err := s.ledger.RecordMove(ctx, tx, &models.StockMove{
				MaterialID:     line.MaterialID,
				FromLocationID: &source,
				ToLocationID:   &source,
				Qty:            reserveQty,
				Type:           enums.StockMoveOutboundReserve,
				RefOrderID:     &order.ID,
				Operator:       input.Actor.Username,
			}); err != nil {
				return err
			}

			line.ReservedQty = reserveQty
			if err := repo.SaveLine(ctx, line); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save order line")
			}
		}

		if err := s.commitTransition(ctx, tx, repo, order, enums.OrderStatusCreated, enums.OrderStatusReserved, "reserve", input.Actor.Username, input.Actor.RequestSource, input.Actor.TraceID); err != nil {
			return err
		}
		result = &TransitionResult{Order: order, Lines: order.Lines}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Pick physically moves the reserved quantity from the source to the
// staging location: source quantity and reserved both drop, staging
// quantity rises.
func (s *service) Pick(ctx context.Context, input PickInput) (*TransitionResult, error) {
	var result *TransitionResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		order, err := s.loadForTransition(ctx, repo, input.OrderID, enums.OrderTypeOutbound, "pick")
		if err != nil {
			return err
		}
		if err := guardTransition(order, enums.OrderStatusReserved, "pick"); err != nil {
			return err
		}
		if order.SourceLocationID == nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "outbound order has no source location")
		}
		source := *order.SourceLocationID

		staging := order.TargetLocationID
		if input.StagingLocationID != nil {
			staging = input.StagingLocationID
		}
		if staging == nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "staging location is required")
		}
		if *staging == source {
			return pkgerrors.New(pkgerrors.CodeValidation, "staging location must differ from the source location")
		}
		if _, err := inventory.ActiveLocation(ctx, s.refs.WithTx(tx), *staging); err != nil {
			return err
		}

		for i := range order.Lines {
			line := &order.Lines[i]
			if line.ReservedQty <= 0 {
				continue
			}
			qty := line.ReservedQty

			if _, err := s.ledger.Apply(ctx, tx, inventory.Mutation{
				MaterialID:    line.MaterialID,
				LocationID:    source,
				DeltaQuantity: -qty,
				DeltaReserved: -qty,
			}); err != nil {
				return err
			}
			if _, err := s.ledger.Apply(ctx, tx, inventory.Mutation{
				MaterialID:    line.MaterialID,
				LocationID:    *staging,
				DeltaQuantity: qty,
			}); err != nil {
				return err
			}
			if err := s.ledger.RecordMove(ctx, tx, &models.StockMove{
				MaterialID:     line.MaterialID,
				FromLocationID: &source,
				ToLocationID:   staging,
				Qty:            qty,
				Type:           enums.StockMoveOutboundPick,
				RefOrderID:     &order.ID,
				Operator:       input.Actor.Username,
			}); err != nil {
				return err
			}

			line.PickedQty = qty
			if err := repo.SaveLine(ctx, line); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save order line")
			}
		}

		if order.TargetLocationID == nil || *order.TargetLocationID != *staging {
			if err := repo.UpdateTargetLocation(ctx, order.ID, *staging); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update staging location")
			}
			order.TargetLocationID = staging
		}

		if err := s.commitTransition(ctx, tx, repo, order, enums.OrderStatusReserved, enums.OrderStatusPicked, "pick", input.Actor.Username, input.Actor.RequestSource, input.Actor.TraceID); err != nil {
			return err
		}
		result = &TransitionResult{Order: order, Lines: order.Lines}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Pack labels the staged stock; no ledger mutation.
func (s *service) Pack(ctx context.Context, input PackInput) (*TransitionResult, error) {
	var result *TransitionResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		order, err := s.loadForTransition(ctx, repo, input.OrderID, enums.OrderTypeOutbound, "pack")
		if err != nil {
			return err
		}
		if err := guardTransition(order, enums.OrderStatusPicked, "pack"); err != nil {
			return err
		}

		for i := range order.Lines {
			line := &order.Lines[i]
			line.PackedQty = line.PickedQty
			if err := repo.SaveLine(ctx, line); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save order line")
			}
		}

		if err := s.commitTransition(ctx, tx, repo, order, enums.OrderStatusPicked, enums.OrderStatusPacked, "pack", input.Actor.Username, input.Actor.RequestSource, input.Actor.TraceID); err != nil {
			return err
		}
		result = &TransitionResult{Order: order, Lines: order.Lines}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Ship removes the packed quantity from the staging location. SHIPPED is
// terminal.
func (s *service) Ship(ctx context.Context, input ShipInput) (*TransitionResult, error) {
	var result *TransitionResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		order, err := s.loadForTransition(ctx, repo, input.OrderID, enums.OrderTypeOutbound, "ship")
		if err != nil {
			return err
		}
		if err := guardTransition(order, enums.OrderStatusPacked, "ship"); err != nil {
			return err
		}
		if order.TargetLocationID == nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "outbound order has no staging location")
		}
		staging := *order.TargetLocationID

		for i := range order.Lines {
			line := &order.Lines[i]
			if line.PackedQty <= 0 {
				continue
			}
			if _, err := s.ledger.Apply(ctx, tx, inventory.Mutation{
				MaterialID:    line.MaterialID,
				LocationID:    staging,
				DeltaQuantity: -line.PackedQty,
			}); err != nil {
				return err
			}
			if err := s.ledger.RecordMove(ctx, tx, &models.StockMove{
				MaterialID:     line.MaterialID,
				FromLocationID: &staging,
				Qty:            line.PackedQty,
				Type:           enums.StockMoveOutboundShip,
				RefOrderID:     &order.ID,
				Operator:       input.Actor.Username,
			}); err != nil {
				return err
			}
		}

		if err := s.commitTransition(ctx, tx, repo, order, enums.OrderStatusPacked, enums.OrderStatusShipped, "ship", input.Actor.Username, input.Actor.RequestSource, input.Actor.TraceID); err != nil {
			return err
		}
		result = &TransitionResult{Order: order, Lines: order.Lines}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *service) loadForTransition(ctx context.Context, repo Repository, id uuid.UUID, wantType enums.OrderType, action string) (*models.Order, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, err := repo.FindWithLines(ctx, id)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order.Type != wantType {
		return nil, pkgerrors.Newf(pkgerrors.CodeInvalidTransition,
			"%s applies to %s orders, order %s is %s", action, wantType, order.OrderNo, order.Type).
			WithDetails(transitionDetails(order, action))
	}
	return order, nil
}

func (s *service) commitTransition(ctx context.Context, tx *gorm.DB, repo Repository, order *models.Order, from, to enums.OrderStatus, action, operator, source, traceID string) error {
	moved, err := repo.UpdateStatus(ctx, order.ID, from, to)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
	}
	if !moved {
		// Another transaction won the transition race after our read.
		return pkgerrors.Newf(pkgerrors.CodeInvalidTransition,
			"order %s left %s concurrently", order.OrderNo, from).
			WithDetails(transitionDetails(order, action))
	}
	order.Status = to

	return s.audit.Record(ctx, tx, auditlog.Entry{
		Module:        "orders",
		Action:        action,
		Entity:        "order",
		EntityID:      &order.ID,
		Detail:        fmt.Sprintf("order_no=%s %s -> %s", order.OrderNo, from, to),
		Before:        map[string]string{"status": from.String()},
		After:         map[string]string{"status": to.String()},
		Operator:      operator,
		RequestSource: source,
		TraceID:       traceID,
	})
}

func guardTransition(order *models.Order, want enums.OrderStatus, action string) error {
	if order.Status != want {
		return pkgerrors.Newf(pkgerrors.CodeInvalidTransition,
			"cannot %s order %s in status %s (requires %s)", action, order.OrderNo, order.Status, want).
			WithDetails(transitionDetails(order, action))
	}
	return nil
}

func transitionDetails(order *models.Order, action string) map[string]any {
	return map[string]any{
		"order_id":       order.ID,
		"order_no":       order.OrderNo,
		"current_status": order.Status,
		"attempted":      action,
	}
}

func generateOrderNo(orderType enums.OrderType) string {
	prefix := "OB"
	if orderType == enums.OrderTypeInbound {
		prefix = "IB"
	}
	stamp := time.Now().UTC().Format("20060102150405")
	suffix := strings.ToUpper(uuid.NewString()[:8])
	return fmt.Sprintf("%s-%s-%s", prefix, stamp, suffix)
}
