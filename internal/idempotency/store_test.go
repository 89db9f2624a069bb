package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/stocklinehq/stockline-backend/pkg/db/models"
	pkgerrors "github.com/stocklinehq/stockline-backend/pkg/errors"
)

func newTestStore(t *testing.T) (*Store, *gorm.DB) {
	t.Helper()
	dsn := "file:idempotency_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&models.IdempotencyRecord{}))
	store, err := NewStore(conn, 15*time.Minute)
	require.NoError(t, err)
	return store, conn
}

func TestScopeBindsUserMethodAndPath(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "u1|POST|/api/v1/orders", Scope("u1", "POST", "/api/v1/orders"))
	assert.NotEqual(t, Scope("u1", "POST", "/a"), Scope("u2", "POST", "/a"))
	assert.NotEqual(t, Scope("u1", "POST", "/a"), Scope("u1", "PUT", "/a"))
}

func TestHashRequestIsKeyOrderInsensitive(t *testing.T) {
	t.Parallel()
	a := HashRequest([]byte(`{"qty": 5, "sku": "A"}`))
	b := HashRequest([]byte(`{"sku":"A","qty":5}`))
	assert.Equal(t, a, b)

	c := HashRequest([]byte(`{"sku":"A","qty":6}`))
	assert.NotEqual(t, a, c)

	// Non-JSON bodies hash byte-for-byte.
	assert.NotEqual(t, HashRequest([]byte("raw-a")), HashRequest([]byte("raw-b")))
	assert.Equal(t, HashRequest(nil), HashRequest(nil))
}

func TestAdmitFirstRequestProceeds(t *testing.T) {
	t.Parallel()
	store, _ := newTestStore(t)

	admission, err := store.Admit(context.Background(), "scope", "key-1", "hash")
	require.NoError(t, err)
	assert.Equal(t, DecisionProceed, admission.Decision)
}

func TestAdmitRejectsEmptyKey(t *testing.T) {
	t.Parallel()
	store, _ := newTestStore(t)

	_, err := store.Admit(context.Background(), "scope", "", "hash")
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}

func TestAdmitInFlightConflicts(t *testing.T) {
	t.Parallel()
	store, _ := newTestStore(t)

	_, err := store.Admit(context.Background(), "scope", "key-1", "hash")
	require.NoError(t, err)

	_, err = store.Admit(context.Background(), "scope", "key-1", "hash")
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeConflict))
}

func TestFinalizeThenReplay(t *testing.T) {
	t.Parallel()
	store, _ := newTestStore(t)
	ctx := context.Background()

	admission, err := store.Admit(ctx, "scope", "key-1", "hash")
	require.NoError(t, err)
	require.NoError(t, store.Finalize(ctx, admission, 201, []byte(`{"data":{"id":"x"}}`)))

	replay, err := store.Admit(ctx, "scope", "key-1", "hash")
	require.NoError(t, err)
	assert.Equal(t, DecisionReplay, replay.Decision)
	assert.Equal(t, 201, replay.StatusCode)
	assert.JSONEq(t, `{"data":{"id":"x"}}`, string(replay.Body))
}

func TestAdmitHashMismatchAfterFinish(t *testing.T) {
	t.Parallel()
	store, _ := newTestStore(t)
	ctx := context.Background()

	admission, err := store.Admit(ctx, "scope", "key-1", "hash-a")
	require.NoError(t, err)
	require.NoError(t, store.Finalize(ctx, admission, 200, nil))

	_, err = store.Admit(ctx, "scope", "key-1", "hash-b")
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeIdempotency))
}

func TestSameKeyDifferentScopeIsIndependent(t *testing.T) {
	t.Parallel()
	store, _ := newTestStore(t)
	ctx := context.Background()

	first, err := store.Admit(ctx, "u1|POST|/orders", "key-1", "hash")
	require.NoError(t, err)
	assert.Equal(t, DecisionProceed, first.Decision)

	second, err := store.Admit(ctx, "u2|POST|/orders", "key-1", "hash")
	require.NoError(t, err)
	assert.Equal(t, DecisionProceed, second.Decision)
}

func TestReleaseAllowsRetry(t *testing.T) {
	t.Parallel()
	store, _ := newTestStore(t)
	ctx := context.Background()

	admission, err := store.Admit(ctx, "scope", "key-1", "hash")
	require.NoError(t, err)
	require.NoError(t, store.Release(ctx, admission))

	retry, err := store.Admit(ctx, "scope", "key-1", "hash")
	require.NoError(t, err)
	assert.Equal(t, DecisionProceed, retry.Decision)
}

func TestFinalizeIgnoresReplayAdmissions(t *testing.T) {
	t.Parallel()
	store, _ := newTestStore(t)
	ctx := context.Background()

	admission, err := store.Admit(ctx, "scope", "key-1", "hash")
	require.NoError(t, err)
	require.NoError(t, store.Finalize(ctx, admission, 200, []byte("first")))

	replay, err := store.Admit(ctx, "scope", "key-1", "hash")
	require.NoError(t, err)
	require.NoError(t, store.Finalize(ctx, replay, 500, []byte("second")))

	again, err := store.Admit(ctx, "scope", "key-1", "hash")
	require.NoError(t, err)
	assert.Equal(t, 200, again.StatusCode)
	assert.Equal(t, []byte("first"), again.Body)
}

func TestFinalizeRequiresStatusCode(t *testing.T) {
	t.Parallel()
	store, _ := newTestStore(t)
	ctx := context.Background()

	admission, err := store.Admit(ctx, "scope", "key-1", "hash")
	require.NoError(t, err)
	err = store.Finalize(ctx, admission, 0, nil)
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}

func TestPurgeExpiredRemovesStaleInFlightMarkers(t *testing.T) {
	t.Parallel()
	store, conn := newTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	old := now.Add(-48 * time.Hour)
	oldFinished := models.IdempotencyRecord{Scope: "s", Key: "old-finished", RequestHash: "h", StatusCode: 200, ExpiresAt: old, CreatedAt: old}
	staleInFlight := models.IdempotencyRecord{Scope: "s", Key: "stale-inflight", RequestHash: "h", ExpiresAt: now.Add(-time.Minute), CreatedAt: old}
	liveInFlight := models.IdempotencyRecord{Scope: "s", Key: "live-inflight", RequestHash: "h", ExpiresAt: now.Add(time.Hour)}
	freshFinished := models.IdempotencyRecord{Scope: "s", Key: "fresh-finished", RequestHash: "h", StatusCode: 200, ExpiresAt: now.Add(time.Hour)}
	for _, record := range []*models.IdempotencyRecord{&oldFinished, &staleInFlight, &liveInFlight, &freshFinished} {
		require.NoError(t, conn.Create(record).Error)
	}

	deleted, err := store.PurgeExpired(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	var remaining []models.IdempotencyRecord
	require.NoError(t, conn.Order("idempotency_key").Find(&remaining).Error)
	require.Len(t, remaining, 2)
	assert.Equal(t, "fresh-finished", remaining[0].Key)
	assert.Equal(t, "live-inflight", remaining[1].Key)
}

func TestAdmitReclaimsExpiredInFlightKey(t *testing.T) {
	t.Parallel()
	store, conn := newTestStore(t)
	ctx := context.Background()

	// The owner claims the key and then crashes: no Finalize, no Release.
	_, err := store.Admit(ctx, "scope", "key-1", "hash-a")
	require.NoError(t, err)

	_, err = store.Admit(ctx, "scope", "key-1", "hash-a")
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeConflict))

	store.now = func() time.Time { return time.Now().Add(16 * time.Minute) }

	// Past the in-flight expiry the retry takes over, even with a
	// different payload: the crashed request's hash is irrelevant.
	retry, err := store.Admit(ctx, "scope", "key-1", "hash-b")
	require.NoError(t, err)
	assert.Equal(t, DecisionProceed, retry.Decision)

	var rows []models.IdempotencyRecord
	require.NoError(t, conn.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, "hash-b", rows[0].RequestHash)

	require.NoError(t, store.Finalize(ctx, retry, 201, []byte(`{"data":null}`)))
	replay, err := store.Admit(ctx, "scope", "key-1", "hash-b")
	require.NoError(t, err)
	assert.Equal(t, DecisionReplay, replay.Decision)
	assert.Equal(t, 201, replay.StatusCode)
}

func TestStaleOwnerCannotTouchReclaimedKey(t *testing.T) {
	t.Parallel()
	store, conn := newTestStore(t)
	ctx := context.Background()

	owner, err := store.Admit(ctx, "scope", "key-1", "hash")
	require.NoError(t, err)

	store.now = func() time.Time { return time.Now().Add(16 * time.Minute) }
	reclaimer, err := store.Admit(ctx, "scope", "key-1", "hash")
	require.NoError(t, err)
	require.Equal(t, DecisionProceed, reclaimer.Decision)

	// The crashed owner limps back. Its release and finalize target the
	// deleted marker, not the reclaimer's fresh one.
	require.NoError(t, store.Release(ctx, owner))
	var count int64
	require.NoError(t, conn.Model(&models.IdempotencyRecord{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	require.NoError(t, store.Finalize(ctx, owner, 500, []byte("stale")))
	require.NoError(t, store.Finalize(ctx, reclaimer, 200, []byte("fresh")))

	replay, err := store.Admit(ctx, "scope", "key-1", "hash")
	require.NoError(t, err)
	assert.Equal(t, DecisionReplay, replay.Decision)
	assert.Equal(t, 200, replay.StatusCode)
	assert.Equal(t, []byte("fresh"), replay.Body)
}
