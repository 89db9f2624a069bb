package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/stocklinehq/stockline-backend/pkg/db"
	"github.com/stocklinehq/stockline-backend/pkg/db/models"
	pkgerrors "github.com/stocklinehq/stockline-backend/pkg/errors"
)

// Decision is the outcome of admitting a request under an idempotency key.
type Decision int

const (
	// DecisionProceed means this request owns the key and must run the
	// operation, then Finalize or Release.
	DecisionProceed Decision = iota
	// DecisionReplay means an identical request already finished; serve
	// the stored response without re-running the operation.
	DecisionReplay
)

// Admission is the result of Store.Admit.
type Admission struct {
	Decision   Decision
	StatusCode int
	Body       []byte

	recordID uuid.UUID
}

// defaultInFlightTTL bounds how long a crashed request may hold its
// key before a retry is allowed to reclaim it.
const defaultInFlightTTL = 15 * time.Minute

// Store guards mutating endpoints against duplicate execution. The
// unique (scope, key) index is the arbiter: exactly one concurrent
// request wins the insert, everyone else replays or is rejected.
type Store struct {
	conn        *gorm.DB
	inFlightTTL time.Duration

	now func() time.Time
}

// NewStore builds a DB-backed idempotency store. A non-positive
// inFlightTTL falls back to the default.
func NewStore(conn *gorm.DB, inFlightTTL time.Duration) (*Store, error) {
	if conn == nil {
		return nil, fmt.Errorf("db connection required")
	}
	if inFlightTTL <= 0 {
		inFlightTTL = defaultInFlightTTL
	}
	return &Store{conn: conn, inFlightTTL: inFlightTTL, now: time.Now}, nil
}

// Scope derives the admission scope from the caller and route, so the
// same key on different endpoints or by different users never collides.
func Scope(userID, method, path string) string {
	return userID + "|" + method + "|" + path
}

// HashRequest produces the canonical fingerprint of a request body. A
// replayed key must carry the same fingerprint to be served the stored
// response.
func HashRequest(body []byte) string {
	canonical := body
	var decoded any
	if len(body) > 0 && json.Unmarshal(body, &decoded) == nil {
		if normalized, err := json.Marshal(decoded); err == nil {
			canonical = normalized
		}
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])
}

// Admit claims the (scope, key) pair. Outcomes:
//   - no record: an in-flight marker row is inserted and the caller
//     proceeds;
//   - finished record with a matching request hash: replay;
//   - finished record with a different hash: IDEMPOTENCY_KEY_REUSED;
//   - in-flight record past its expiry: the marker is reclaimed and
//     the caller proceeds as a fresh request;
//   - in-flight record within its expiry: conflict, the original
//     request is still running.
func (s *Store) Admit(ctx context.Context, scope, key, requestHash string) (*Admission, error) {
	if key == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "idempotency key must not be empty")
	}

	admission, err := s.claim(ctx, scope, key, requestHash)
	if err == nil {
		return admission, nil
	}
	if !db.IsUniqueViolation(err, "") {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim idempotency key")
	}

	existing, err := s.find(ctx, scope, key)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		// The competing row was released between our insert and read.
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "request with this idempotency key is being retried, try again")
	}
	if existing.InFlight() {
		if s.now().UTC().After(existing.ExpiresAt) {
			// The owner crashed without finalizing or releasing. Its
			// request hash no longer matters; this retry takes over.
			return s.reclaim(ctx, scope, key, requestHash, existing.ID)
		}
		if existing.RequestHash != requestHash {
			return nil, pkgerrors.New(pkgerrors.CodeIdempotency,
				"idempotency key was already used with a different request body")
		}
		return nil, pkgerrors.New(pkgerrors.CodeConflict,
			"request with this idempotency key is still in flight")
	}
	if existing.RequestHash != requestHash {
		return nil, pkgerrors.New(pkgerrors.CodeIdempotency,
			"idempotency key was already used with a different request body")
	}
	return &Admission{
		Decision:   DecisionReplay,
		StatusCode: existing.StatusCode,
		Body:       existing.ResponseBody,
		recordID:   existing.ID,
	}, nil
}

// claim inserts the in-flight marker row. The raw error is returned so
// Admit can distinguish the unique-violation loss from real failures.
func (s *Store) claim(ctx context.Context, scope, key, requestHash string) (*Admission, error) {
	record := models.IdempotencyRecord{
		Scope:       scope,
		Key:         key,
		RequestHash: requestHash,
		ExpiresAt:   s.now().UTC().Add(s.inFlightTTL),
	}
	if err := s.conn.WithContext(ctx).Create(&record).Error; err != nil {
		return nil, err
	}
	return &Admission{Decision: DecisionProceed, recordID: record.ID}, nil
}

// reclaim removes a stale in-flight marker and claims the key anew. The
// guarded delete keeps two concurrent reclaimers from both proceeding:
// only the one whose delete lands gets to insert the fresh marker.
func (s *Store) reclaim(ctx context.Context, scope, key, requestHash string, staleID uuid.UUID) (*Admission, error) {
	res := s.conn.WithContext(ctx).
		Where("id = ? AND status_code = 0 AND expires_at < ?", staleID, s.now().UTC()).
		Delete(&models.IdempotencyRecord{})
	if res.Error != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "reclaim idempotency key")
	}
	if res.RowsAffected == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "request with this idempotency key is being retried, try again")
	}
	admission, err := s.claim(ctx, scope, key, requestHash)
	if err == nil {
		return admission, nil
	}
	if db.IsUniqueViolation(err, "") {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "request with this idempotency key is being retried, try again")
	}
	return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim idempotency key")
}

// Finalize stores the response against the claimed key so later
// retries replay it. Only meaningful after DecisionProceed.
func (s *Store) Finalize(ctx context.Context, admission *Admission, statusCode int, body []byte) error {
	if admission == nil || admission.Decision != DecisionProceed {
		return nil
	}
	if statusCode == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "finalize requires a non-zero status code")
	}
	err := s.conn.WithContext(ctx).
		Model(&models.IdempotencyRecord{}).
		Where("id = ? AND status_code = 0", admission.recordID).
		Updates(map[string]any{"status_code": statusCode, "response_body": body}).Error
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "finalize idempotency record")
	}
	return nil
}

// Release drops the in-flight marker after a failed operation so the
// client can retry with the same key. Guarding on the record ID keeps a
// stale owner, reclaimed after its expiry, from dropping the marker the
// reclaiming request now holds.
func (s *Store) Release(ctx context.Context, admission *Admission) error {
	if admission == nil || admission.Decision != DecisionProceed {
		return nil
	}
	err := s.conn.WithContext(ctx).
		Where("id = ? AND status_code = 0", admission.recordID).
		Delete(&models.IdempotencyRecord{}).Error
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "release idempotency record")
	}
	return nil
}

// PurgeExpired deletes finished records older than the cutoff plus any
// in-flight marker past its expiry, so a crashed request cannot wedge
// its key forever.
func (s *Store) PurgeExpired(ctx context.Context, olderThan time.Time) (int64, error) {
	result := s.conn.WithContext(ctx).
		Where("(status_code <> 0 AND created_at < ?) OR (status_code = 0 AND expires_at < ?)",
			olderThan, s.now().UTC()).
		Delete(&models.IdempotencyRecord{})
	if result.Error != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, result.Error, "purge idempotency records")
	}
	return result.RowsAffected, nil
}

func (s *Store) find(ctx context.Context, scope, key string) (*models.IdempotencyRecord, error) {
	var record models.IdempotencyRecord
	err := s.conn.WithContext(ctx).
		First(&record, "scope = ? AND idempotency_key = ?", scope, key).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load idempotency record")
	}
	return &record, nil
}
