package inventory

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/stocklinehq/stockline-backend/pkg/db"
	"github.com/stocklinehq/stockline-backend/pkg/db/models"
	pkgerrors "github.com/stocklinehq/stockline-backend/pkg/errors"
	"github.com/stocklinehq/stockline-backend/pkg/metrics"
)

// conflictRetryBudget bounds optimistic retries before a version
// conflict is surfaced to the caller.
const conflictRetryBudget = 3

// Mutation describes one delta against a (material, location) ledger row.
// Either delta may be zero; the row invariants 0 <= reserved <= quantity
// are enforced before the write.
type Mutation struct {
	MaterialID    uuid.UUID
	LocationID    uuid.UUID
	DeltaQuantity int64
	DeltaReserved int64
}

// ContainerMutation is the container-scoped counterpart of Mutation.
type ContainerMutation struct {
	ContainerID   uuid.UUID
	MaterialID    uuid.UUID
	DeltaQuantity int64
	DeltaReserved int64
}

// Ledger applies guarded, versioned mutations to inventory rows. All
// methods operate inside the caller's transaction so a whole order
// transition commits or rolls back as one unit.
type Ledger struct {
	metrics *metrics.LedgerMetrics
}

// NewLedger builds a ledger. Metrics may be nil in tests.
func NewLedger(m *metrics.LedgerMetrics) *Ledger {
	return &Ledger{metrics: m}
}

// Apply mutates one location ledger row, creating it on first touch.
// It re-reads and retries on version conflicts up to the retry budget,
// then surfaces VersionConflict.
func (l *Ledger) Apply(ctx context.Context, tx *gorm.DB, m Mutation) (*models.Inventory, error) {
	if m.MaterialID == uuid.Nil || m.LocationID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "material and location are required")
	}
	if m.DeltaQuantity == 0 && m.DeltaReserved == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "mutation has no effect")
	}

	for attempt := 0; attempt <= conflictRetryBudget; attempt++ {
		row, err := l.getOrCreateRow(ctx, tx, m.MaterialID, m.LocationID)
		if err != nil {
			return nil, err
		}

		newQuantity := row.Quantity + m.DeltaQuantity
		newReserved := row.Reserved + m.DeltaReserved
		if err := checkRowInvariants(newQuantity, newReserved, row.MaterialID, row.LocationID.String()); err != nil {
			return nil, err
		}

		res := tx.WithContext(ctx).Model(&models.Inventory{}).
			Where("id = ? AND version = ?", row.ID, row.Version).
			Updates(map[string]any{
				"quantity":   newQuantity,
				"reserved":   newReserved,
				"version":    row.Version + 1,
				"updated_at": time.Now().UTC(),
			})
		if res.Error != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "update inventory row")
		}
		if res.RowsAffected == 1 {
			row.Quantity = newQuantity
			row.Reserved = newReserved
			row.Version++
			return row, nil
		}

		l.metrics.IncConflictRetry()
	}

	l.metrics.IncConflictFailure()
	return nil, pkgerrors.Newf(pkgerrors.CodeVersionConflict,
		"inventory row material=%s location=%s changed concurrently", m.MaterialID, m.LocationID).
		WithDetails(map[string]any{"material_id": m.MaterialID, "location_id": m.LocationID})
}

// ApplyContainer mutates one container ledger row with the same
// guard and retry semantics as Apply. Container stock never mirrors
// into the location ledger.
func (l *Ledger) ApplyContainer(ctx context.Context, tx *gorm.DB, m ContainerMutation) (*models.ContainerInventory, error) {
	if m.ContainerID == uuid.Nil || m.MaterialID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "container and material are required")
	}
	if m.DeltaQuantity == 0 && m.DeltaReserved == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "mutation has no effect")
	}

	for attempt := 0; attempt <= conflictRetryBudget; attempt++ {
		row, err := l.getOrCreateContainerRow(ctx, tx, m.ContainerID, m.MaterialID)
		if err != nil {
			return nil, err
		}

		newQuantity := row.Quantity + m.DeltaQuantity
		newReserved := row.Reserved + m.DeltaReserved
		if err := checkRowInvariants(newQuantity, newReserved, row.MaterialID, row.ContainerID.String()); err != nil {
			return nil, err
		}

		res := tx.WithContext(ctx).Model(&models.ContainerInventory{}).
			Where("id = ? AND version = ?", row.ID, row.Version).
			Updates(map[string]any{
				"quantity":   newQuantity,
				"reserved":   newReserved,
				"version":    row.Version + 1,
				"updated_at": time.Now().UTC(),
			})
		if res.Error != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "update container inventory row")
		}
		if res.RowsAffected == 1 {
			row.Quantity = newQuantity
			row.Reserved = newReserved
			row.Version++
			return row, nil
		}

		l.metrics.IncConflictRetry()
	}

	l.metrics.IncConflictFailure()
	return nil, pkgerrors.Newf(pkgerrors.CodeVersionConflict,
		"container inventory row container=%s material=%s changed concurrently", m.ContainerID, m.MaterialID).
		WithDetails(map[string]any{"container_id": m.ContainerID, "material_id": m.MaterialID})
}

// RecordMove appends the immutable stock move fact for a mutation, in
// the same transaction. A failed write rolls back the mutation.
func (l *Ledger) RecordMove(ctx context.Context, tx *gorm.DB, move *models.StockMove) error {
	if move.Qty == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "stock move qty must be non-zero")
	}
	if err := tx.WithContext(ctx).Create(move).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "write stock move")
	}
	l.metrics.IncAdjustment(move.Type.String())
	return nil
}

// Row returns the ledger row for a (material, location) pair without
// creating it. A missing row reads as zero stock.
func (l *Ledger) Row(ctx context.Context, tx *gorm.DB, materialID, locationID uuid.UUID) (*models.Inventory, error) {
	var row models.Inventory
	err := tx.WithContext(ctx).
		Where("material_id = ? AND location_id = ?", materialID, locationID).
		First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return &models.Inventory{MaterialID: materialID, LocationID: locationID}, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load inventory row")
	}
	return &row, nil
}

func (l *Ledger) getOrCreateRow(ctx context.Context, tx *gorm.DB, materialID, locationID uuid.UUID) (*models.Inventory, error) {
	var row models.Inventory
	err := tx.WithContext(ctx).
		Where("material_id = ? AND location_id = ?", materialID, locationID).
		First(&row).Error
	if err == nil {
		return &row, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load inventory row")
	}

	row = models.Inventory{MaterialID: materialID, LocationID: locationID}
	createErr := tx.WithContext(ctx).Create(&row).Error
	if createErr == nil {
		return &row, nil
	}
	if !db.IsUniqueViolation(createErr, "") {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, createErr, "create inventory row")
	}

	// Lost the insert race; the winner's row is the authoritative one.
	if err := tx.WithContext(ctx).
		Where("material_id = ? AND location_id = ?", materialID, locationID).
		First(&row).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload inventory row after insert race")
	}
	return &row, nil
}

func (l *Ledger) getOrCreateContainerRow(ctx context.Context, tx *gorm.DB, containerID, materialID uuid.UUID) (*models.ContainerInventory, error) {
	var row models.ContainerInventory
	err := tx.WithContext(ctx).
		Where("container_id = ? AND material_id = ?", containerID, materialID).
		First(&row).Error
	if err == nil {
		return &row, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load container inventory row")
	}

	row = models.ContainerInventory{ContainerID: containerID, MaterialID: materialID}
	createErr := tx.WithContext(ctx).Create(&row).Error
	if createErr == nil {
		return &row, nil
	}
	if !db.IsUniqueViolation(createErr, "") {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, createErr, "create container inventory row")
	}

	if err := tx.WithContext(ctx).
		Where("container_id = ? AND material_id = ?", containerID, materialID).
		First(&row).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload container inventory row after insert race")
	}
	return &row, nil
}

func checkRowInvariants(quantity, reserved int64, materialID uuid.UUID, scope string) error {
	if quantity < 0 || reserved < 0 || reserved > quantity {
		return pkgerrors.Newf(pkgerrors.CodeInsufficientStock,
			"mutation would leave material=%s at %s with quantity=%d reserved=%d", materialID, scope, quantity, reserved).
			WithDetails(map[string]any{"quantity": quantity, "reserved": reserved})
	}
	return nil
}
