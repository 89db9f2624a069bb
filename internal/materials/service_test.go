package materials

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
	"github.com/stocklinehq/stockline-backend/pkg/db"
	"github.com/stocklinehq/stockline-backend/pkg/db/models"
	pkgerrors "github.com/stocklinehq/stockline-backend/pkg/errors"
)

func newTestService(t *testing.T) (Service, *gorm.DB) {
	t.Helper()

	dsn := "file:materials_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(
		&models.Material{},
		&models.Inventory{},
		&models.ContainerInventory{},
		&models.OperationLog{},
	))

	svc, err := NewService(NewRepository(conn), db.FromGorm(conn), auditlog.NewRecorder())
	require.NoError(t, err)
	return svc, conn
}

var testActor = actor.Actor{Username: "catalog"}

func TestCreateAppliesDefaults(t *testing.T) {
	t.Parallel()
	svc, conn := newTestService(t)

	material, err := svc.Create(context.Background(), CreateInput{SKU: "SKU-1", Name: "Widget", Actor: testActor})
	require.NoError(t, err)
	assert.Equal(t, "pcs", material.Unit)
	assert.Equal(t, "general", material.Category)
	assert.True(t, material.IsActive)

	var logs []models.OperationLog
	require.NoError(t, conn.Find(&logs).Error)
	require.Len(t, logs, 1)
	assert.Equal(t, "materials", logs[0].Module)
	assert.Equal(t, "create", logs[0].Action)
}

func TestCreateRejectsMissingFields(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)

	_, err := svc.Create(context.Background(), CreateInput{Name: "No SKU", Actor: testActor})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}

func TestCreateDuplicateSKUConflicts(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateInput{SKU: "SKU-1", Name: "Widget", Actor: testActor})
	require.NoError(t, err)
	_, err = svc.Create(ctx, CreateInput{SKU: "SKU-1", Name: "Other", Actor: testActor})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeConflict))
}

func TestUpdateTouchesOnlyProvidedFields(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)
	ctx := context.Background()

	material, err := svc.Create(ctx, CreateInput{SKU: "SKU-1", Name: "Widget", Unit: "box", Actor: testActor})
	require.NoError(t, err)

	name := "Widget v2"
	common := true
	updated, err := svc.Update(ctx, material.ID, UpdateInput{Name: &name, IsCommon: &common, Actor: testActor})
	require.NoError(t, err)
	assert.Equal(t, "Widget v2", updated.Name)
	assert.True(t, updated.IsCommon)
	assert.Equal(t, "box", updated.Unit)
	assert.True(t, updated.IsActive)
}

func TestUpdateMissingMaterial(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)

	name := "anything"
	_, err := svc.Update(context.Background(), uuid.New(), UpdateInput{Name: &name, Actor: testActor})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))
}

func TestDeactivateEmptyMaterial(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)
	ctx := context.Background()

	material, err := svc.Create(ctx, CreateInput{SKU: "SKU-1", Name: "Widget", Actor: testActor})
	require.NoError(t, err)

	deactivated, err := svc.Deactivate(ctx, material.ID, testActor)
	require.NoError(t, err)
	assert.False(t, deactivated.IsActive)
}

func TestDeactivateWithStockRejected(t *testing.T) {
	t.Parallel()
	svc, conn := newTestService(t)
	ctx := context.Background()

	material, err := svc.Create(ctx, CreateInput{SKU: "SKU-1", Name: "Widget", Actor: testActor})
	require.NoError(t, err)
	require.NoError(t, conn.Create(&models.Inventory{
		MaterialID: material.ID,
		LocationID: uuid.New(),
		Quantity:   2,
	}).Error)

	_, err = svc.Deactivate(ctx, material.ID, testActor)
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeConflict))
}

func TestDeactivateWithContainerStockRejected(t *testing.T) {
	t.Parallel()
	svc, conn := newTestService(t)
	ctx := context.Background()

	material, err := svc.Create(ctx, CreateInput{SKU: "SKU-1", Name: "Widget", Actor: testActor})
	require.NoError(t, err)
	require.NoError(t, conn.Create(&models.ContainerInventory{
		ContainerID: uuid.New(),
		MaterialID:  material.ID,
		Quantity:    1,
	}).Error)

	_, err = svc.Deactivate(ctx, material.ID, testActor)
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeConflict))
}

func TestGetAndListFilters(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)
	ctx := context.Background()

	raw, err := svc.Create(ctx, CreateInput{SKU: "RAW-1", Name: "Sheet Steel", Category: "raw", Actor: testActor})
	require.NoError(t, err)
	_, err = svc.Create(ctx, CreateInput{SKU: "FIN-1", Name: "Bracket", Category: "finished", Actor: testActor})
	require.NoError(t, err)
	_, err = svc.Deactivate(ctx, raw.ID, testActor)
	require.NoError(t, err)

	got, err := svc.Get(ctx, raw.ID)
	require.NoError(t, err)
	assert.Equal(t, "RAW-1", got.SKU)

	_, err = svc.Get(ctx, uuid.New())
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))

	active, err := svc.List(ctx, ListFilter{ActiveOnly: true})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "FIN-1", active[0].SKU)

	byCategory, err := svc.List(ctx, ListFilter{Category: "raw"})
	require.NoError(t, err)
	require.Len(t, byCategory, 1)

	bySearch, err := svc.List(ctx, ListFilter{Search: "Bracket"})
	require.NoError(t, err)
	require.Len(t, bySearch, 1)
	assert.Equal(t, "FIN-1", bySearch[0].SKU)
}
