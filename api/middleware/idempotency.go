package middleware

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/stocklinehq/stockline-backend/api/responses"
	"github.com/stocklinehq/stockline-backend/internal/idempotency"
	pkgerrors "github.com/stocklinehq/stockline-backend/pkg/errors"
	"github.com/stocklinehq/stockline-backend/pkg/logger"
)

const idempotencyKeyHeader = "Idempotency-Key"

// Idempotency guards mutating endpoints with the DB-backed store. The
// header is optional: requests without a key run normally, requests
// with one are admitted exactly once and replayed afterwards.
func Idempotency(store *idempotency.Store, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := strings.TrimSpace(r.Header.Get(idempotencyKeyHeader))
			if key == "" || store == nil {
				next.ServeHTTP(w, r)
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			scope := idempotency.Scope(UserIDFromContext(r.Context()), r.Method, r.URL.Path)
			admission, err := store.Admit(r.Context(), scope, key, idempotency.HashRequest(body))
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			if admission.Decision == idempotency.DecisionReplay {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(admission.StatusCode)
				_, _ = w.Write(admission.Body)
				return
			}

			rec := &responseCapture{ResponseWriter: w}
			next.ServeHTTP(rec, r)

			status := rec.status
			if status == 0 {
				status = http.StatusOK
			}

			// Failed attempts free the key so the client can retry;
			// everything else is stored for replay.
			if status >= http.StatusInternalServerError {
				if err := store.Release(r.Context(), admission); err != nil {
					logError(r.Context(), logg, "release idempotency record", err)
				}
				return
			}
			if err := store.Finalize(r.Context(), admission, status, rec.body.Bytes()); err != nil {
				logError(r.Context(), logg, "finalize idempotency record", err)
			}
		})
	}
}

func logError(ctx context.Context, logg *logger.Logger, msg string, err error) {
	if logg == nil {
		return
	}
	logg.Error(ctx, msg, err)
}

type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (r *responseCapture) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseCapture) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}
