package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/stocklinehq/stockline-backend/pkg/logger"
)

const (
	requestIDHeader     = "X-Request-Id"
	traceIDHeader       = "X-Trace-Id"
	requestSourceHeader = "X-Request-Source"
)

func RequestID(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := r.Header.Get(requestIDHeader)
			if reqID == "" {
				reqID = uuid.NewString()
			}

			w.Header().Set(requestIDHeader, reqID)

			ctx := r.Context()
			if logg != nil {
				ctx = logg.WithRequestID(ctx, reqID)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Trace propagates the caller's trace id and request source, minting a
// trace id when the caller did not send one. The trace id is echoed
// back so clients can correlate their logs with the operation log.
func Trace(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			traceID := r.Header.Get(traceIDHeader)
			if traceID == "" {
				traceID = uuid.NewString()
			}
			source := r.Header.Get(requestSourceHeader)

			w.Header().Set(traceIDHeader, traceID)

			ctx := context.WithValue(r.Context(), ctxTraceID, traceID)
			if source != "" {
				ctx = context.WithValue(ctx, ctxRequestSource, source)
			}
			if logg != nil {
				ctx = logg.WithTraceID(ctx, traceID)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
