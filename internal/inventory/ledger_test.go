package inventory

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/stocklinehq/stockline-backend/pkg/db/models"
	"github.com/stocklinehq/stockline-backend/pkg/enums"
	pkgerrors "github.com/stocklinehq/stockline-backend/pkg/errors"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:inventory_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(
		&models.Material{},
		&models.Location{},
		&models.Container{},
		&models.Inventory{},
		&models.ContainerInventory{},
		&models.StockMove{},
		&models.OperationLog{},
	))
	return conn
}

func seedMaterial(t *testing.T, conn *gorm.DB, sku string) *models.Material {
	t.Helper()
	material := &models.Material{SKU: sku, Name: sku, Unit: "pcs", Category: "general", IsActive: true}
	require.NoError(t, conn.Create(material).Error)
	return material
}

func seedLocation(t *testing.T, conn *gorm.DB, code string) *models.Location {
	t.Helper()
	location := &models.Location{
		WarehouseID: uuid.New(),
		Code:        code,
		Name:        code,
		Status:      enums.LocationStatusActive,
	}
	require.NoError(t, conn.Create(location).Error)
	return location
}

func TestLedgerApplyCreatesRowOnFirstTouch(t *testing.T) {
	t.Parallel()
	conn := newTestDB(t)
	ledger := NewLedger(nil)

	material := seedMaterial(t, conn, "SKU-A")
	location := seedLocation(t, conn, "L-01")

	row, err := ledger.Apply(context.Background(), conn, Mutation{
		MaterialID:    material.ID,
		LocationID:    location.ID,
		DeltaQuantity: 25,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(25), row.Quantity)
	assert.Equal(t, int64(0), row.Reserved)
	assert.Equal(t, int64(1), row.Version)
}

func TestLedgerApplyIncrementsVersionByOne(t *testing.T) {
	t.Parallel()
	conn := newTestDB(t)
	ledger := NewLedger(nil)

	material := seedMaterial(t, conn, "SKU-A")
	location := seedLocation(t, conn, "L-01")

	var version int64
	for i := 0; i < 3; i++ {
		row, err := ledger.Apply(context.Background(), conn, Mutation{
			MaterialID:    material.ID,
			LocationID:    location.ID,
			DeltaQuantity: 10,
		})
		require.NoError(t, err)
		require.Equal(t, version+1, row.Version)
		version = row.Version
	}
}

func TestLedgerApplyRejectsNegativeQuantity(t *testing.T) {
	t.Parallel()
	conn := newTestDB(t)
	ledger := NewLedger(nil)

	material := seedMaterial(t, conn, "SKU-A")
	location := seedLocation(t, conn, "L-01")

	_, err := ledger.Apply(context.Background(), conn, Mutation{
		MaterialID:    material.ID,
		LocationID:    location.ID,
		DeltaQuantity: -5,
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInsufficientStock))

	// Failed mutation leaves no row behind with mutated state.
	row, rowErr := ledger.Row(context.Background(), conn, material.ID, location.ID)
	require.NoError(t, rowErr)
	assert.Equal(t, int64(0), row.Quantity)
}

func TestLedgerApplyRejectsReservedAboveQuantity(t *testing.T) {
	t.Parallel()
	conn := newTestDB(t)
	ledger := NewLedger(nil)

	material := seedMaterial(t, conn, "SKU-A")
	location := seedLocation(t, conn, "L-01")

	_, err := ledger.Apply(context.Background(), conn, Mutation{
		MaterialID:    material.ID,
		LocationID:    location.ID,
		DeltaQuantity: 10,
	})
	require.NoError(t, err)

	_, err = ledger.Apply(context.Background(), conn, Mutation{
		MaterialID:    material.ID,
		LocationID:    location.ID,
		DeltaReserved: 11,
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInsufficientStock))
}

func TestLedgerApplyRejectsNoOpMutation(t *testing.T) {
	t.Parallel()
	conn := newTestDB(t)
	ledger := NewLedger(nil)

	_, err := ledger.Apply(context.Background(), conn, Mutation{
		MaterialID: uuid.New(),
		LocationID: uuid.New(),
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}

func TestLedgerRowReadsZeroWhenMissing(t *testing.T) {
	t.Parallel()
	conn := newTestDB(t)
	ledger := NewLedger(nil)

	row, err := ledger.Row(context.Background(), conn, uuid.New(), uuid.New())
	require.NoError(t, err)
	assert.Equal(t, int64(0), row.Quantity)
	assert.Equal(t, int64(0), row.Reserved)
	assert.Equal(t, int64(0), row.Version)
}

func TestLedgerApplyContainer(t *testing.T) {
	t.Parallel()
	conn := newTestDB(t)
	ledger := NewLedger(nil)

	material := seedMaterial(t, conn, "SKU-A")
	container := &models.Container{Code: "C-001", Type: "TOTE"}
	require.NoError(t, conn.Create(container).Error)

	row, err := ledger.ApplyContainer(context.Background(), conn, ContainerMutation{
		ContainerID:   container.ID,
		MaterialID:    material.ID,
		DeltaQuantity: 7,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(7), row.Quantity)
	assert.Equal(t, int64(1), row.Version)

	_, err = ledger.ApplyContainer(context.Background(), conn, ContainerMutation{
		ContainerID:   container.ID,
		MaterialID:    material.ID,
		DeltaQuantity: -8,
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInsufficientStock))
}

func TestLedgerRecordMoveRejectsZeroQty(t *testing.T) {
	t.Parallel()
	conn := newTestDB(t)
	ledger := NewLedger(nil)

	err := ledger.RecordMove(context.Background(), conn, &models.StockMove{
		MaterialID: uuid.New(),
		Type:       enums.StockMoveInboundReceive,
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}

func TestLedgerRecordMoveAppends(t *testing.T) {
	t.Parallel()
	conn := newTestDB(t)
	ledger := NewLedger(nil)

	material := seedMaterial(t, conn, "SKU-A")
	location := seedLocation(t, conn, "L-01")

	require.NoError(t, ledger.RecordMove(context.Background(), conn, &models.StockMove{
		MaterialID:   material.ID,
		ToLocationID: &location.ID,
		Qty:          5,
		Type:         enums.StockMoveInboundReceive,
		Operator:     "tester",
	}))

	var count int64
	require.NoError(t, conn.Model(&models.StockMove{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

// rivalWriter mutates the ledger row through a raw statement right
// before the guarded update runs, emulating a concurrent writer that
// commits between this transaction's read and its write.
func rivalWriter(t *testing.T, conn *gorm.DB, times int, stmt string, args ...any) {
	t.Helper()
	remaining := times
	err := conn.Callback().Update().Before("gorm:update").Register("rival_writer", func(d *gorm.DB) {
		if remaining == 0 || d.Statement.Table != "inventories" {
			return
		}
		remaining--
		require.NoError(t, conn.Exec(stmt, args...).Error)
	})
	require.NoError(t, err)
}

func TestLedgerApplyRetriesPastTransientVersionConflict(t *testing.T) {
	t.Parallel()
	conn := newTestDB(t)
	ledger := NewLedger(nil)

	material := seedMaterial(t, conn, "SKU-A")
	location := seedLocation(t, conn, "L-01")

	_, err := ledger.Apply(context.Background(), conn, Mutation{
		MaterialID:    material.ID,
		LocationID:    location.ID,
		DeltaQuantity: 100,
	})
	require.NoError(t, err)

	rivalWriter(t, conn, 1,
		"UPDATE inventories SET reserved = reserved + 30, version = version + 1 WHERE material_id = ? AND location_id = ?",
		material.ID, location.ID)

	row, err := ledger.Apply(context.Background(), conn, Mutation{
		MaterialID:    material.ID,
		LocationID:    location.ID,
		DeltaReserved: 40,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(70), row.Reserved, "retry must fold in the rival's reservation")
	assert.Equal(t, int64(3), row.Version)
}

func TestLedgerApplySurfacesConflictWhenBudgetExhausted(t *testing.T) {
	t.Parallel()
	conn := newTestDB(t)
	ledger := NewLedger(nil)

	material := seedMaterial(t, conn, "SKU-A")
	location := seedLocation(t, conn, "L-01")

	_, err := ledger.Apply(context.Background(), conn, Mutation{
		MaterialID:    material.ID,
		LocationID:    location.ID,
		DeltaQuantity: 100,
	})
	require.NoError(t, err)

	// A rival that wins every race exhausts the retry budget.
	rivalWriter(t, conn, conflictRetryBudget+1,
		"UPDATE inventories SET version = version + 1 WHERE material_id = ? AND location_id = ?",
		material.ID, location.ID)

	_, err = ledger.Apply(context.Background(), conn, Mutation{
		MaterialID:    material.ID,
		LocationID:    location.ID,
		DeltaReserved: 10,
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeVersionConflict))
}

func TestLedgerConcurrentOverReserveAdmitsOneWinner(t *testing.T) {
	t.Parallel()
	conn := newTestDB(t)
	ledger := NewLedger(nil)

	material := seedMaterial(t, conn, "SKU-A")
	location := seedLocation(t, conn, "L-01")

	_, err := ledger.Apply(context.Background(), conn, Mutation{
		MaterialID:    material.ID,
		LocationID:    location.ID,
		DeltaQuantity: 100,
	})
	require.NoError(t, err)

	// The rival reserves 80 of the 100 units between this request's
	// read and write. The retry re-reads and must find nothing left.
	rivalWriter(t, conn, 1,
		"UPDATE inventories SET reserved = reserved + 80, version = version + 1 WHERE material_id = ? AND location_id = ?",
		material.ID, location.ID)

	_, err = ledger.Apply(context.Background(), conn, Mutation{
		MaterialID:    material.ID,
		LocationID:    location.ID,
		DeltaReserved: 80,
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInsufficientStock))

	row, err := ledger.Row(context.Background(), conn, material.ID, location.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(80), row.Reserved, "only the rival's reservation may stand")
	assert.Equal(t, int64(100), row.Quantity)
}
