package responses

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/stocklinehq/stockline-backend/pkg/errors"
)

func TestWriteSuccessWrapsPayload(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	WriteSuccess(rec, map[string]string{"order_no": "OB-1"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"data":{"order_no":"OB-1"}}`, rec.Body.String())
}

func TestWriteSuccessStatus(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	WriteSuccessStatus(rec, http.StatusCreated, map[string]bool{"created": true})
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestWriteErrorMapsDomainCodes(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err    error
		status int
		code   string
	}{
		{pkgerrors.New(pkgerrors.CodeValidation, "bad input"), http.StatusBadRequest, "VALIDATION_ERROR"},
		{pkgerrors.New(pkgerrors.CodeNotFound, "missing"), http.StatusNotFound, "NOT_FOUND"},
		{pkgerrors.New(pkgerrors.CodeInsufficientStock, "short"), http.StatusConflict, "INSUFFICIENT_STOCK"},
		{pkgerrors.New(pkgerrors.CodeRateLimit, "slow down"), http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED"},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		WriteError(context.Background(), nil, rec, tc.err)
		assert.Equal(t, tc.status, rec.Code)
		assert.Contains(t, rec.Body.String(), tc.code)
	}
}

func TestWriteErrorHidesInternalDetail(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	WriteError(context.Background(), nil, rec,
		pkgerrors.Wrap(pkgerrors.CodeInternal, errors.New("pq: connection refused"), "query failed"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "connection refused")
	assert.NotContains(t, rec.Body.String(), "query failed")
}

func TestWriteErrorWrapsUntypedErrors(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	WriteError(context.Background(), nil, rec, errors.New("boom"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "INTERNAL_ERROR")
	assert.NotContains(t, rec.Body.String(), "boom")
}

func TestWriteErrorIncludesAllowedDetails(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	err := pkgerrors.New(pkgerrors.CodeInsufficientStock, "only 3 available").
		WithDetails(map[string]any{"available": 3, "requested": 10})
	WriteError(context.Background(), nil, rec, err)

	require.Equal(t, http.StatusConflict, rec.Code)
	assert.JSONEq(t, `{
		"error": {
			"code": "INSUFFICIENT_STOCK",
			"message": "only 3 available",
			"details": {"available": 3, "requested": 10}
		}
	}`, rec.Body.String())
}
