package topology

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
	"github.com/stocklinehq/stockline-backend/internal/containers"
	"github.com/stocklinehq/stockline-backend/pkg/db"
	"github.com/stocklinehq/stockline-backend/pkg/db/models"
	"github.com/stocklinehq/stockline-backend/pkg/enums"
	pkgerrors "github.com/stocklinehq/stockline-backend/pkg/errors"
)

func newTestService(t *testing.T) (Service, *gorm.DB) {
	t.Helper()

	dsn := "file:topology_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(
		&models.Factory{},
		&models.Warehouse{},
		&models.Area{},
		&models.Location{},
		&models.Container{},
		&models.Inventory{},
		&models.OperationLog{},
	))

	svc, err := NewService(NewRepository(conn), containers.NewRepository(conn), db.FromGorm(conn), auditlog.NewRecorder())
	require.NoError(t, err)
	return svc, conn
}

var testActor = actor.Actor{Username: "planner"}

func buildHierarchy(t *testing.T, svc Service) (*models.Factory, *models.Warehouse, *models.Area) {
	t.Helper()
	ctx := context.Background()

	factory, err := svc.CreateFactory(ctx, FactoryInput{Code: "F1", Name: "Main Plant", Actor: testActor})
	require.NoError(t, err)

	warehouse, err := svc.CreateWarehouse(ctx, WarehouseInput{Code: "WH1", Name: "Central", FactoryID: &factory.ID, Actor: testActor})
	require.NoError(t, err)

	area, err := svc.CreateArea(ctx, AreaInput{Code: "A1", Name: "Picking", FactoryID: &factory.ID, WarehouseID: &warehouse.ID, Actor: testActor})
	require.NoError(t, err)

	return factory, warehouse, area
}

func TestHierarchyCreateAndList(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)
	ctx := context.Background()

	factory, warehouse, _ := buildHierarchy(t, svc)

	factories, err := svc.ListFactories(ctx)
	require.NoError(t, err)
	assert.Len(t, factories, 1)

	warehouses, err := svc.ListWarehouses(ctx, &factory.ID)
	require.NoError(t, err)
	assert.Len(t, warehouses, 1)

	areas, err := svc.ListAreas(ctx, &warehouse.ID)
	require.NoError(t, err)
	assert.Len(t, areas, 1)
}

func TestDuplicateCodesConflict(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateFactory(ctx, FactoryInput{Code: "F1", Name: "One", Actor: testActor})
	require.NoError(t, err)
	_, err = svc.CreateFactory(ctx, FactoryInput{Code: "F1", Name: "Two", Actor: testActor})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeConflict))
}

func TestDeleteFactoryWithChildrenRejected(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)
	ctx := context.Background()

	factory, _, _ := buildHierarchy(t, svc)
	err := svc.DeleteFactory(ctx, factory.ID, testActor)
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeConflict))
}

func TestDeleteWarehouseWithLocationsRejected(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, warehouse, area := buildHierarchy(t, svc)
	_, err := svc.CreateLocation(ctx, LocationInput{
		WarehouseID: warehouse.ID,
		AreaID:      &area.ID,
		Code:        "L-01",
		Name:        "Rack 1",
		Actor:       testActor,
	})
	require.NoError(t, err)

	err = svc.DeleteWarehouse(ctx, warehouse.ID, testActor)
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeConflict))
}

func TestLocationLifecycle(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, warehouse, area := buildHierarchy(t, svc)

	view, err := svc.CreateLocation(ctx, LocationInput{
		WarehouseID: warehouse.ID,
		AreaID:      &area.ID,
		Code:        "L-01",
		Name:        "Rack 1",
		Actor:       testActor,
	})
	require.NoError(t, err)
	assert.Equal(t, enums.LocationStatusActive, view.Location.Status)
	assert.Equal(t, enums.BindingStatusUnbound, view.BindingStatus)

	updated, err := svc.UpdateLocation(ctx, view.Location.ID, LocationInput{
		Name:   "Rack 1 (renamed)",
		Status: "DISABLED",
		Actor:  testActor,
	})
	require.NoError(t, err)
	assert.Equal(t, "Rack 1 (renamed)", updated.Location.Name)
	assert.Equal(t, enums.LocationStatusDisabled, updated.Location.Status)

	require.NoError(t, svc.DeleteLocation(ctx, view.Location.ID, testActor))
	_, err = svc.GetLocation(ctx, view.Location.ID)
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))
}

func TestLocationViewReportsBinding(t *testing.T) {
	t.Parallel()
	svc, conn := newTestService(t)
	ctx := context.Background()

	_, warehouse, _ := buildHierarchy(t, svc)
	view, err := svc.CreateLocation(ctx, LocationInput{
		WarehouseID: warehouse.ID,
		Code:        "L-01",
		Name:        "Rack 1",
		Actor:       testActor,
	})
	require.NoError(t, err)

	container := &models.Container{Code: "C-001", Type: "TOTE", LocationID: &view.Location.ID}
	require.NoError(t, conn.Create(container).Error)

	got, err := svc.GetLocation(ctx, view.Location.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.BindingStatusBound, got.BindingStatus)
	require.NotNil(t, got.ContainerID)
	assert.Equal(t, container.ID, *got.ContainerID)
}

func TestDeleteBoundLocationRejected(t *testing.T) {
	t.Parallel()
	svc, conn := newTestService(t)
	ctx := context.Background()

	_, warehouse, _ := buildHierarchy(t, svc)
	view, err := svc.CreateLocation(ctx, LocationInput{
		WarehouseID: warehouse.ID,
		Code:        "L-01",
		Name:        "Rack 1",
		Actor:       testActor,
	})
	require.NoError(t, err)

	container := &models.Container{Code: "C-001", Type: "TOTE", LocationID: &view.Location.ID}
	require.NoError(t, conn.Create(container).Error)

	err = svc.DeleteLocation(ctx, view.Location.ID, testActor)
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeLocationBound))
}

func TestDeleteLocationWithStockRejected(t *testing.T) {
	t.Parallel()
	svc, conn := newTestService(t)
	ctx := context.Background()

	_, warehouse, _ := buildHierarchy(t, svc)
	view, err := svc.CreateLocation(ctx, LocationInput{
		WarehouseID: warehouse.ID,
		Code:        "L-01",
		Name:        "Rack 1",
		Actor:       testActor,
	})
	require.NoError(t, err)

	require.NoError(t, conn.Create(&models.Inventory{
		MaterialID: uuid.New(),
		LocationID: view.Location.ID,
		Quantity:   3,
	}).Error)

	err = svc.DeleteLocation(ctx, view.Location.ID, testActor)
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeConflict))
}

func TestCreateLocationRequiresExistingWarehouse(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)

	_, err := svc.CreateLocation(context.Background(), LocationInput{
		WarehouseID: uuid.New(),
		Code:        "L-01",
		Name:        "Rack 1",
		Actor:       testActor,
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))
}
