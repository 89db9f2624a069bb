package orders

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
	conn     *gorm.DB
	svc      Service
	material *models.Material
	source   *models.Location
	staging  *models.Location
	act      actor.Actor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	dsn := "file:orders_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(
		&models.Material{},
		&models.Location{},
		&models.Container{},
		&models.Inventory{},
		&models.ContainerInventory{},
		&models.Order{},
		&models.OrderLine{},
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

	material := &models.Material{SKU: "SKU-1001", Name: "Widget", Unit: "pcs", Category: "general", IsActive: true}
	require.NoError(t, conn.Create(material).Error)

	warehouse := uuid.New()
	source := &models.Location{WarehouseID: warehouse, Code: "L-01", Name: "Rack 1", Status: enums.LocationStatusActive}
	staging := &models.Location{WarehouseID: warehouse, Code: "STAGE-01", Name: "Staging", Status: enums.LocationStatusActive}
	require.NoError(t, conn.Create(source).Error)
	require.NoError(t, conn.Create(staging).Error)

	return &fixture{
		conn:     conn,
		svc:      svc,
		material: material,
		source:   source,
		staging:  staging,
		act:      actor.Actor{UserID: uuid.New(), Username: "picker", TraceID: "trace-1"},
	}
}

func (f *fixture) seedStock(t *testing.T, qty int64) {
	t.Helper()
	require.NoError(t, f.conn.Create(&models.Inventory{
		MaterialID: f.material.ID,
		LocationID: f.source.ID,
		Quantity:   qty,
	}).Error)
}

func (f *fixture) createOutbound(t *testing.T, qty int64) *models.Order {
	t.Helper()
	result, err := f.svc.Create(context.Background(), CreateInput{
		Type:             enums.OrderTypeOutbound,
		Partner:          "ACME",
		SourceLocationID: &f.source.ID,
		TargetLocationID: &f.staging.ID,
		Lines:            []LineInput{{MaterialID: f.material.ID, Qty: qty}},
		Actor:            f.act,
	})
	require.NoError(t, err)
	return result.Order
}

func (f *fixture) row(t *testing.T, locationID uuid.UUID) *models.Inventory {
	t.Helper()
	var row models.Inventory
	err := f.conn.Where("material_id = ? AND location_id = ?", f.material.ID, locationID).First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return &models.Inventory{MaterialID: f.material.ID, LocationID: locationID}
	}
	require.NoError(t, err)
	return &row
}

func TestOutboundFullLifecycle(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.seedStock(t, 100)

	order := f.createOutbound(t, 40)
	assert.Equal(t, enums.OrderStatusCreated, order.Status)
	assert.NotEmpty(t, order.OrderNo)

	// Reserve: quantity untouched, reserved earmarked.
	reserved, err := f.svc.Reserve(context.Background(), ReserveInput{OrderID: order.ID, Actor: f.act})
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusReserved, reserved.Order.Status)
	row := f.row(t, f.source.ID)
	assert.Equal(t, int64(100), row.Quantity)
	assert.Equal(t, int64(40), row.Reserved)

	// Pick: stock physically leaves the source for staging.
	picked, err := f.svc.Pick(context.Background(), PickInput{OrderID: order.ID, Actor: f.act})
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPicked, picked.Order.Status)
	row = f.row(t, f.source.ID)
	assert.Equal(t, int64(60), row.Quantity)
	assert.Equal(t, int64(0), row.Reserved)
	assert.Equal(t, int64(40), f.row(t, f.staging.ID).Quantity)

	// Pack: no ledger change, packed quantity snapshots picked.
	packed, err := f.svc.Pack(context.Background(), PackInput{OrderID: order.ID, Actor: f.act})
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPacked, packed.Order.Status)
	assert.Equal(t, int64(40), packed.Lines[0].PackedQty)
	assert.Equal(t, int64(40), f.row(t, f.staging.ID).Quantity)

	// Ship: staged stock leaves the system.
	shipped, err := f.svc.Ship(context.Background(), ShipInput{OrderID: order.ID, Actor: f.act})
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusShipped, shipped.Order.Status)
	assert.Equal(t, int64(0), f.row(t, f.staging.ID).Quantity)
	assert.Equal(t, int64(60), f.row(t, f.source.ID).Quantity)

	// Every mutating step left a stock move and an operation log row.
	var moveCount, logCount int64
	require.NoError(t, f.conn.Model(&models.StockMove{}).Count(&moveCount).Error)
	require.NoError(t, f.conn.Model(&models.OperationLog{}).Count(&logCount).Error)
	assert.Equal(t, int64(3), moveCount) // reserve, pick, ship
	assert.Equal(t, int64(5), logCount)  // create + four transitions
}

func TestReserveRejectsShortfallWithoutForce(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.seedStock(t, 100)

	order := f.createOutbound(t, 150)
	_, err := f.svc.Reserve(context.Background(), ReserveInput{OrderID: order.ID, Actor: f.act})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInsufficientStock))

	// Whole-order atomicity: nothing was reserved.
	row := f.row(t, f.source.ID)
	assert.Equal(t, int64(0), row.Reserved)

	var order2 models.Order
	require.NoError(t, f.conn.First(&order2, "id = ?", order.ID).Error)
	assert.Equal(t, enums.OrderStatusCreated, order2.Status)
}

func TestReserveForceCapsAtAvailable(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.seedStock(t, 100)

	order := f.createOutbound(t, 150)
	result, err := f.svc.Reserve(context.Background(), ReserveInput{OrderID: order.ID, Force: true, Actor: f.act})
	require.NoError(t, err)
	assert.Equal(t, int64(100), result.Lines[0].ReservedQty)
	assert.Equal(t, int64(100), f.row(t, f.source.ID).Reserved)
}

func TestReserveForceWithNothingAvailable(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	order := f.createOutbound(t, 10)
	result, err := f.svc.Reserve(context.Background(), ReserveInput{OrderID: order.ID, Force: true, Actor: f.act})
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusReserved, result.Order.Status)
	assert.Equal(t, int64(0), result.Lines[0].ReservedQty)
}

func TestTransitionGuardsRejectOutOfOrderActions(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.seedStock(t, 100)

	order := f.createOutbound(t, 10)

	// Pick before reserve.
	_, err := f.svc.Pick(context.Background(), PickInput{OrderID: order.ID, Actor: f.act})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInvalidTransition))

	// Pack before pick.
	_, err = f.svc.Pack(context.Background(), PackInput{OrderID: order.ID, Actor: f.act})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInvalidTransition))

	// Ship before pack.
	_, err = f.svc.Ship(context.Background(), ShipInput{OrderID: order.ID, Actor: f.act})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInvalidTransition))

	// Double reserve.
	_, err = f.svc.Reserve(context.Background(), ReserveInput{OrderID: order.ID, Actor: f.act})
	require.NoError(t, err)
	_, err = f.svc.Reserve(context.Background(), ReserveInput{OrderID: order.ID, Actor: f.act})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInvalidTransition))
}

func TestShippedIsTerminal(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.seedStock(t, 20)

	order := f.createOutbound(t, 5)
	_, err := f.svc.Reserve(context.Background(), ReserveInput{OrderID: order.ID, Actor: f.act})
	require.NoError(t, err)
	_, err = f.svc.Pick(context.Background(), PickInput{OrderID: order.ID, Actor: f.act})
	require.NoError(t, err)
	_, err = f.svc.Pack(context.Background(), PackInput{OrderID: order.ID, Actor: f.act})
	require.NoError(t, err)
	_, err = f.svc.Ship(context.Background(), ShipInput{OrderID: order.ID, Actor: f.act})
	require.NoError(t, err)

	for _, attempt := range []func() error{
		func() error { _, err := f.svc.Reserve(context.Background(), ReserveInput{OrderID: order.ID}); return err },
		func() error { _, err := f.svc.Pick(context.Background(), PickInput{OrderID: order.ID}); return err },
		func() error { _, err := f.svc.Pack(context.Background(), PackInput{OrderID: order.ID}); return err },
		func() error { _, err := f.svc.Ship(context.Background(), ShipInput{OrderID: order.ID}); return err },
	} {
		err := attempt()
		require.Error(t, err)
		assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInvalidTransition))
	}
}

func TestInboundReceive(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	result, err := f.svc.Create(context.Background(), CreateInput{
		Type:             enums.OrderTypeInbound,
		Partner:          "Supplier",
		TargetLocationID: &f.source.ID,
		Lines:            []LineInput{{MaterialID: f.material.ID, Qty: 30}},
		Actor:            f.act,
	})
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCreated, result.Order.Status)

	received, err := f.svc.Receive(context.Background(), ReceiveInput{OrderID: result.Order.ID, Actor: f.act})
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusReceived, received.Order.Status)
	assert.Equal(t, int64(30), f.row(t, f.source.ID).Quantity)

	// Receive is per-order terminal for inbound.
	_, err = f.svc.Receive(context.Background(), ReceiveInput{OrderID: result.Order.ID, Actor: f.act})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInvalidTransition))
}

func TestReceiveRejectsOutboundOrder(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.seedStock(t, 10)

	order := f.createOutbound(t, 5)
	_, err := f.svc.Receive(context.Background(), ReceiveInput{OrderID: order.ID, Actor: f.act})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInvalidTransition))
}

func TestPickWithExplicitStagingLocation(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.seedStock(t, 50)

	other := &models.Location{WarehouseID: f.source.WarehouseID, Code: "STAGE-02", Name: "Alt Staging", Status: enums.LocationStatusActive}
	require.NoError(t, f.conn.Create(other).Error)

	result, err := f.svc.Create(context.Background(), CreateInput{
		Type:             enums.OrderTypeOutbound,
		SourceLocationID: &f.source.ID,
		Lines:            []LineInput{{MaterialID: f.material.ID, Qty: 10}},
		Actor:            f.act,
	})
	require.NoError(t, err)
	_, err = f.svc.Reserve(context.Background(), ReserveInput{OrderID: result.Order.ID, Actor: f.act})
	require.NoError(t, err)

	picked, err := f.svc.Pick(context.Background(), PickInput{OrderID: result.Order.ID, StagingLocationID: &other.ID, Actor: f.act})
	require.NoError(t, err)
	require.NotNil(t, picked.Order.TargetLocationID)
	assert.Equal(t, other.ID, *picked.Order.TargetLocationID)
	assert.Equal(t, int64(10), f.row(t, other.ID).Quantity)
}

func TestPickRejectsStagingEqualToSource(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.seedStock(t, 50)

	result, err := f.svc.Create(context.Background(), CreateInput{
		Type:             enums.OrderTypeOutbound,
		SourceLocationID: &f.source.ID,
		Lines:            []LineInput{{MaterialID: f.material.ID, Qty: 10}},
		Actor:            f.act,
	})
	require.NoError(t, err)
	_, err = f.svc.Reserve(context.Background(), ReserveInput{OrderID: result.Order.ID, Actor: f.act})
	require.NoError(t, err)

	_, err = f.svc.Pick(context.Background(), PickInput{OrderID: result.Order.ID, StagingLocationID: &f.source.ID, Actor: f.act})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}

func TestCreateValidation(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	// No lines.
	_, err := f.svc.Create(context.Background(), CreateInput{
		Type:             enums.OrderTypeOutbound,
		SourceLocationID: &f.source.ID,
		Actor:            f.act,
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))

	// Outbound without a source.
	_, err = f.svc.Create(context.Background(), CreateInput{
		Type:  enums.OrderTypeOutbound,
		Lines: []LineInput{{MaterialID: f.material.ID, Qty: 1}},
		Actor: f.act,
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))

	// Inbound without a target.
	_, err = f.svc.Create(context.Background(), CreateInput{
		Type:  enums.OrderTypeInbound,
		Lines: []LineInput{{MaterialID: f.material.ID, Qty: 1}},
		Actor: f.act,
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))

	// Non-positive line qty.
	_, err = f.svc.Create(context.Background(), CreateInput{
		Type:             enums.OrderTypeOutbound,
		SourceLocationID: &f.source.ID,
		Lines:            []LineInput{{MaterialID: f.material.ID, Qty: 0}},
		Actor:            f.act,
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))

	// Inactive material.
	retired := &models.Material{SKU: "SKU-DEAD", Name: "Retired", IsActive: false}
	require.NoError(t, f.conn.Create(retired).Error)
	_, err = f.svc.Create(context.Background(), CreateInput{
		Type:             enums.OrderTypeOutbound,
		SourceLocationID: &f.source.ID,
		Lines:            []LineInput{{MaterialID: retired.ID, Qty: 1}},
		Actor:            f.act,
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeReferenceInactive))
}

func TestGetAndList(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.seedStock(t, 10)

	order := f.createOutbound(t, 5)

	got, err := f.svc.Get(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.ID, got.Order.ID)
	require.Len(t, got.Lines, 1)

	_, err = f.svc.Get(context.Background(), uuid.New())
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))

	outbound := enums.OrderTypeOutbound
	rows, err := f.svc.List(context.Background(), ListFilter{Type: &outbound})
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestConcurrentOverReservesAdmitOneWinner(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.seedStock(t, 100)

	winner := f.createOutbound(t, 80)
	loser := f.createOutbound(t, 80)

	// The rival reservation lands between the loser's availability read
	// and its guarded write, so the versioned ledger row is the arbiter.
	fired := false
	err := f.conn.Callback().Update().Before("gorm:update").Register("rival_reserve", func(d *gorm.DB) {
		if fired || d.Statement.Table != "inventories" {
			return
		}
		fired = true
		session := d.Session(&gorm.Session{NewDB: true})
		require.NoError(t, session.Exec(
			"UPDATE inventories SET reserved = reserved + 80, version = version + 1 WHERE material_id = ? AND location_id = ?",
			f.material.ID, f.source.ID).Error)
	})
	require.NoError(t, err)

	_, err = f.svc.Reserve(context.Background(), ReserveInput{OrderID: loser.ID, Actor: f.act})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInsufficientStock))
	assert.True(t, fired, "the rival write must land before the losing reserve")

	// The losing transaction rolled back whole: the order is still
	// CREATED and not a single unit stayed earmarked.
	var reloaded models.Order
	require.NoError(t, f.conn.First(&reloaded, "id = ?", loser.ID).Error)
	assert.Equal(t, enums.OrderStatusCreated, reloaded.Status)
	assert.Equal(t, int64(0), f.row(t, f.source.ID).Reserved)

	require.NoError(t, f.conn.Callback().Update().Remove("rival_reserve"))
	result, err := f.svc.Reserve(context.Background(), ReserveInput{OrderID: winner.ID, Actor: f.act})
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusReserved, result.Order.Status)
	assert.Equal(t, int64(80), f.row(t, f.source.ID).Reserved)
}
