package containers

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/stocklinehq/stockline-backend/internal/actor"
	"github.com/stocklinehq/stockline-backend/internal/auditlog"
	"github.com/stocklinehq/stockline-backend/internal/inventory"
	"github.com/stocklinehq/stockline-backend/pkg/db"
	"github.com/stocklinehq/stockline-backend/pkg/db/models"
	"github.com/stocklinehq/stockline-backend/pkg/enums"
	pkgerrors "github.com/stocklinehq/stockline-backend/pkg/errors"
)

type fixture struct {
	conn *gorm.DB
	svc  Service
	act  actor.Actor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	dsn := "file:containers_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(
		&models.Material{},
		&models.Location{},
		&models.Container{},
		&models.ContainerMove{},
		&models.Inventory{},
		&models.ContainerInventory{},
		&models.StockMove{},
		&models.OperationLog{},
	))

	svc, err := NewService(
		NewRepository(conn),
		inventory.NewRepository(conn),
		db.FromGorm(conn),
		inventory.NewLedger(nil),
		auditlog.NewRecorder(),
	)
	require.NoError(t, err)

	return &fixture{
		conn: conn,
		svc:  svc,
		act:  actor.Actor{UserID: uuid.New(), Username: "operator", TraceID: "trace-1"},
	}
}

func (f *fixture) location(t *testing.T, code string) *models.Location {
	t.Helper()
	location := &models.Location{WarehouseID: uuid.New(), Code: code, Name: code, Status: enums.LocationStatusActive}
	require.NoError(t, f.conn.Create(location).Error)
	return location
}

func (f *fixture) material(t *testing.T, sku string) *models.Material {
	t.Helper()
	material := &models.Material{SKU: sku, Name: sku, IsActive: true}
	require.NoError(t, f.conn.Create(material).Error)
	return material
}

func (f *fixture) container(t *testing.T, code string, locationID *uuid.UUID) *View {
	t.Helper()
	view, err := f.svc.Create(context.Background(), CreateInput{
		Code:       code,
		LocationID: locationID,
		Actor:      f.act,
	})
	require.NoError(t, err)
	return view
}

func TestCreateUnboundContainer(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	view := f.container(t, "C-001", nil)
	assert.Equal(t, "TOTE", view.Container.Type)
	assert.Equal(t, enums.BindingStatusUnbound, view.BindingStatus)
	assert.Nil(t, view.Container.LocationID)
}

func TestCreateWithInitialBind(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	location := f.location(t, "L-01")

	view := f.container(t, "C-001", &location.ID)
	assert.Equal(t, enums.BindingStatusBound, view.BindingStatus)
	require.NotNil(t, view.Container.LocationID)
	assert.Equal(t, location.ID, *view.Container.LocationID)

	var moves []models.ContainerMove
	require.NoError(t, f.conn.Find(&moves).Error)
	require.Len(t, moves, 1)
	assert.Nil(t, moves[0].FromLocationID)
	assert.Equal(t, &location.ID, moves[0].ToLocationID)
}

func TestCreateDuplicateCodeConflicts(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	f.container(t, "C-001", nil)
	_, err := f.svc.Create(context.Background(), CreateInput{Code: "C-001", Actor: f.act})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeConflict))
}

func TestBindOccupiedLocationRejected(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	location := f.location(t, "L-01")

	f.container(t, "C-001", &location.ID)
	second := f.container(t, "C-002", nil)

	_, err := f.svc.Bind(context.Background(), BindInput{
		ContainerID: second.Container.ID,
		LocationID:  location.ID,
		Actor:       f.act,
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeLocationOccupied))
}

func TestBindAlreadyBoundContainerRejected(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	first := f.location(t, "L-01")
	second := f.location(t, "L-02")

	view := f.container(t, "C-001", &first.ID)
	_, err := f.svc.Bind(context.Background(), BindInput{
		ContainerID: view.Container.ID,
		LocationID:  second.ID,
		Actor:       f.act,
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeContainerBound))
}

func TestBindDisabledLocationRejected(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	location := &models.Location{WarehouseID: uuid.New(), Code: "L-01", Name: "L-01", Status: enums.LocationStatusDisabled}
	require.NoError(t, f.conn.Create(location).Error)

	view := f.container(t, "C-001", nil)
	_, err := f.svc.Bind(context.Background(), BindInput{
		ContainerID: view.Container.ID,
		LocationID:  location.ID,
		Actor:       f.act,
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeReferenceInactive))
}

func TestUnbindFlagsRemainingStock(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	location := f.location(t, "L-01")
	material := f.material(t, "SKU-A")

	view := f.container(t, "C-001", &location.ID)
	_, err := f.svc.AdjustStock(context.Background(), StockAdjustInput{
		ContainerID: view.Container.ID,
		MaterialID:  material.ID,
		Delta:       5,
		Actor:       f.act,
	})
	require.NoError(t, err)

	result, err := f.svc.Unbind(context.Background(), UnbindInput{ContainerID: view.Container.ID, Actor: f.act})
	require.NoError(t, err)
	assert.True(t, result.InventoryWarning)
	assert.Nil(t, result.Container.LocationID)

	// Stock stays with the container after unbind.
	stock, err := f.svc.Stock(context.Background(), view.Container.ID)
	require.NoError(t, err)
	require.Len(t, stock, 1)
	assert.Equal(t, int64(5), stock[0].Quantity)
}

func TestUnbindEmptyContainerNoWarning(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	location := f.location(t, "L-01")

	view := f.container(t, "C-001", &location.ID)
	result, err := f.svc.Unbind(context.Background(), UnbindInput{ContainerID: view.Container.ID, Actor: f.act})
	require.NoError(t, err)
	assert.False(t, result.InventoryWarning)
}

func TestUnbindUnboundContainerRejected(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	view := f.container(t, "C-001", nil)
	_, err := f.svc.Unbind(context.Background(), UnbindInput{ContainerID: view.Container.ID, Actor: f.act})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}

func TestMoveToSameLocationIsNoOp(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	location := f.location(t, "L-01")

	view := f.container(t, "C-001", &location.ID)
	_, err := f.svc.Move(context.Background(), MoveInput{
		ContainerID:  view.Container.ID,
		ToLocationID: location.ID,
		Actor:        f.act,
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNoOpMove))
}

func TestMoveWritesOneHistoryRow(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	from := f.location(t, "L-01")
	to := f.location(t, "L-02")

	view := f.container(t, "C-001", &from.ID)
	moved, err := f.svc.Move(context.Background(), MoveInput{
		ContainerID:  view.Container.ID,
		ToLocationID: to.ID,
		Note:         "restage",
		Actor:        f.act,
	})
	require.NoError(t, err)
	require.NotNil(t, moved.Container.LocationID)
	assert.Equal(t, to.ID, *moved.Container.LocationID)

	history, err := f.svc.Moves(context.Background(), view.Container.ID, 10)
	require.NoError(t, err)
	require.Len(t, history, 2) // bind_on_create + move

	var moveRow *models.ContainerMove
	for i := range history {
		if history[i].Note == "restage" {
			moveRow = &history[i]
		}
	}
	require.NotNil(t, moveRow)
	assert.Equal(t, &from.ID, moveRow.FromLocationID)
	assert.Equal(t, &to.ID, moveRow.ToLocationID)
}

func TestMoveToOccupiedLocationRejected(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	first := f.location(t, "L-01")
	second := f.location(t, "L-02")

	f.container(t, "C-001", &second.ID)
	view := f.container(t, "C-002", &first.ID)

	_, err := f.svc.Move(context.Background(), MoveInput{
		ContainerID:  view.Container.ID,
		ToLocationID: second.ID,
		Actor:        f.act,
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeLocationOccupied))
}

func TestAdjustStockTracksVersion(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	material := f.material(t, "SKU-A")

	view := f.container(t, "C-001", nil)
	result, err := f.svc.AdjustStock(context.Background(), StockAdjustInput{
		ContainerID: view.Container.ID,
		MaterialID:  material.ID,
		Delta:       8,
		Reason:      "count",
		Actor:       f.act,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(8), result.NewQuantity)
	assert.Equal(t, int64(1), result.NewVersion)

	result, err = f.svc.AdjustStock(context.Background(), StockAdjustInput{
		ContainerID: view.Container.ID,
		MaterialID:  material.ID,
		Delta:       -3,
		Actor:       f.act,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(5), result.NewQuantity)
	assert.Equal(t, int64(2), result.NewVersion)

	var moves []models.StockMove
	require.NoError(t, f.conn.Find(&moves).Error)
	require.Len(t, moves, 2)
	assert.Equal(t, enums.StockMoveContainerAdjust("count"), moves[0].Type)
	assert.Equal(t, &view.Container.ID, moves[0].ContainerID)
}

func TestAdjustStockBelowZeroRejected(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	material := f.material(t, "SKU-A")

	view := f.container(t, "C-001", nil)
	_, err := f.svc.AdjustStock(context.Background(), StockAdjustInput{
		ContainerID: view.Container.ID,
		MaterialID:  material.ID,
		Delta:       -1,
		Actor:       f.act,
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInsufficientStock))
}

func TestDeleteGuards(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	location := f.location(t, "L-01")
	material := f.material(t, "SKU-A")

	bound := f.container(t, "C-001", &location.ID)
	err := f.svc.Delete(context.Background(), bound.Container.ID, f.act)
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeConflict))

	loaded := f.container(t, "C-002", nil)
	_, err = f.svc.AdjustStock(context.Background(), StockAdjustInput{
		ContainerID: loaded.Container.ID,
		MaterialID:  material.ID,
		Delta:       1,
		Actor:       f.act,
	})
	require.NoError(t, err)
	err = f.svc.Delete(context.Background(), loaded.Container.ID, f.act)
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeConflict))

	empty := f.container(t, "C-003", nil)
	require.NoError(t, f.svc.Delete(context.Background(), empty.Container.ID, f.act))
	_, err = f.svc.Get(context.Background(), empty.Container.ID)
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))
}

func TestConcurrentBindsToOneLocationAdmitOneWinner(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	location := f.location(t, "L-01")

	winner := f.container(t, "C-001", nil)
	loser := f.container(t, "C-002", nil)

	// The rival bind lands between the loser's free-location check and
	// its own write, so the unique index on location_id is the arbiter.
	fired := false
	err := f.conn.Callback().Update().Before("gorm:update").Register("rival_bind", func(d *gorm.DB) {
		if fired || d.Statement.Table != "containers" {
			return
		}
		fired = true
		session := d.Session(&gorm.Session{NewDB: true})
		require.NoError(t, session.Exec(
			"UPDATE containers SET location_id = ? WHERE id = ?",
			location.ID, winner.Container.ID).Error)
	})
	require.NoError(t, err)

	_, err = f.svc.Bind(context.Background(), BindInput{
		ContainerID: loser.Container.ID,
		LocationID:  location.ID,
		Actor:       f.act,
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeLocationOccupied))
	assert.True(t, fired, "the rival write must land before the losing bind")

	// The losing transaction rolled back as a whole, so the location is
	// free again and the rival's bind goes through cleanly.
	require.NoError(t, f.conn.Callback().Update().Remove("rival_bind"))
	view, err := f.svc.Bind(context.Background(), BindInput{
		ContainerID: winner.Container.ID,
		LocationID:  location.ID,
		Actor:       f.act,
	})
	require.NoError(t, err)
	assert.Equal(t, enums.BindingStatusBound, view.BindingStatus)
	require.NotNil(t, view.Container.LocationID)
	assert.Equal(t, location.ID, *view.Container.LocationID)
}
