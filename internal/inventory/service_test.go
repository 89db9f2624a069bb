package inventory

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stocklinehq/stockline-backend/internal/actor"
	"github.com/stocklinehq/stockline-backend/internal/auditlog"
	"github.com/stocklinehq/stockline-backend/pkg/db"
	"github.com/stocklinehq/stockline-backend/pkg/db/models"
	"github.com/stocklinehq/stockline-backend/pkg/enums"
	pkgerrors "github.com/stocklinehq/stockline-backend/pkg/errors"
)

func newTestService(t *testing.T) Service {
	t.Helper()
	conn := newTestDB(t)
	svc, err := NewService(NewRepository(conn), db.FromGorm(conn), NewLedger(nil), auditlog.NewRecorder())
	require.NoError(t, err)
	return svc
}

func TestAdjustIncreasesStockAndLogs(t *testing.T) {
	t.Parallel()
	conn := newTestDB(t)
	svc, err := NewService(NewRepository(conn), db.FromGorm(conn), NewLedger(nil), auditlog.NewRecorder())
	require.NoError(t, err)

	material := seedMaterial(t, conn, "SKU-A")
	location := seedLocation(t, conn, "L-01")

	result, err := svc.Adjust(context.Background(), AdjustInput{
		MaterialID: material.ID,
		LocationID: location.ID,
		Delta:      40,
		Reason:     "cycle-count",
		Actor:      actor.Actor{Username: "tester"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(40), result.NewQuantity)
	assert.Equal(t, int64(1), result.NewVersion)

	var moves []models.StockMove
	require.NoError(t, conn.Find(&moves).Error)
	require.Len(t, moves, 1)
	assert.Equal(t, enums.StockMoveAdjust("cycle-count"), moves[0].Type)
	assert.Equal(t, &location.ID, moves[0].ToLocationID)

	var logs []models.OperationLog
	require.NoError(t, conn.Find(&logs).Error)
	require.Len(t, logs, 1)
	assert.Equal(t, "inventory", logs[0].Module)
	assert.Equal(t, "adjust", logs[0].Action)
	assert.Equal(t, "tester", logs[0].Operator)
}

func TestAdjustNegativeDeltaRecordsSourceLocation(t *testing.T) {
	t.Parallel()
	conn := newTestDB(t)
	svc, err := NewService(NewRepository(conn), db.FromGorm(conn), NewLedger(nil), auditlog.NewRecorder())
	require.NoError(t, err)

	material := seedMaterial(t, conn, "SKU-A")
	location := seedLocation(t, conn, "L-01")

	_, err = svc.Adjust(context.Background(), AdjustInput{
		MaterialID: material.ID,
		LocationID: location.ID,
		Delta:      10,
		Actor:      actor.Actor{Username: "tester"},
	})
	require.NoError(t, err)

	result, err := svc.Adjust(context.Background(), AdjustInput{
		MaterialID: material.ID,
		LocationID: location.ID,
		Delta:      -4,
		Actor:      actor.Actor{Username: "tester"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(6), result.NewQuantity)

	var moves []models.StockMove
	require.NoError(t, conn.Order("created_at ASC").Find(&moves).Error)
	require.Len(t, moves, 2)
	assert.Equal(t, &location.ID, moves[1].FromLocationID)
	assert.Nil(t, moves[1].ToLocationID)
}

func TestAdjustRejectsZeroDelta(t *testing.T) {
	t.Parallel()
	svc := newTestService(t)

	_, err := svc.Adjust(context.Background(), AdjustInput{
		MaterialID: uuid.New(),
		LocationID: uuid.New(),
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}

func TestAdjustRejectsInactiveMaterial(t *testing.T) {
	t.Parallel()
	conn := newTestDB(t)
	svc, err := NewService(NewRepository(conn), db.FromGorm(conn), NewLedger(nil), auditlog.NewRecorder())
	require.NoError(t, err)

	material := &models.Material{SKU: "SKU-X", Name: "retired", IsActive: false}
	require.NoError(t, conn.Create(material).Error)
	location := seedLocation(t, conn, "L-01")

	_, err = svc.Adjust(context.Background(), AdjustInput{
		MaterialID: material.ID,
		LocationID: location.ID,
		Delta:      1,
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeReferenceInactive))
}

func TestAdjustRejectsDisabledLocation(t *testing.T) {
	t.Parallel()
	conn := newTestDB(t)
	svc, err := NewService(NewRepository(conn), db.FromGorm(conn), NewLedger(nil), auditlog.NewRecorder())
	require.NoError(t, err)

	material := seedMaterial(t, conn, "SKU-A")
	location := &models.Location{WarehouseID: uuid.New(), Code: "L-01", Name: "L-01", Status: enums.LocationStatusDisabled}
	require.NoError(t, conn.Create(location).Error)

	_, err = svc.Adjust(context.Background(), AdjustInput{
		MaterialID: material.ID,
		LocationID: location.ID,
		Delta:      1,
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeReferenceInactive))
}

func TestAdjustRejectsBoundLocation(t *testing.T) {
	t.Parallel()
	conn := newTestDB(t)
	svc, err := NewService(NewRepository(conn), db.FromGorm(conn), NewLedger(nil), auditlog.NewRecorder())
	require.NoError(t, err)

	material := seedMaterial(t, conn, "SKU-A")
	location := seedLocation(t, conn, "L-01")
	container := &models.Container{Code: "C-001", Type: "TOTE", LocationID: &location.ID}
	require.NoError(t, conn.Create(container).Error)

	_, err = svc.Adjust(context.Background(), AdjustInput{
		MaterialID: material.ID,
		LocationID: location.ID,
		Delta:      5,
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeLocationBound))
}

func TestAdjustRollsBackOnInvariantFailure(t *testing.T) {
	t.Parallel()
	conn := newTestDB(t)
	svc, err := NewService(NewRepository(conn), db.FromGorm(conn), NewLedger(nil), auditlog.NewRecorder())
	require.NoError(t, err)

	material := seedMaterial(t, conn, "SKU-A")
	location := seedLocation(t, conn, "L-01")

	_, err = svc.Adjust(context.Background(), AdjustInput{
		MaterialID: material.ID,
		LocationID: location.ID,
		Delta:      -3,
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInsufficientStock))

	// Nothing committed: no moves, no logs.
	var moveCount, logCount int64
	require.NoError(t, conn.Model(&models.StockMove{}).Count(&moveCount).Error)
	require.NoError(t, conn.Model(&models.OperationLog{}).Count(&logCount).Error)
	assert.Zero(t, moveCount)
	assert.Zero(t, logCount)
}
