package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/stocklinehq/stockline-backend/api/responses"
	pkgauth "github.com/stocklinehq/stockline-backend/pkg/auth"
	"github.com/stocklinehq/stockline-backend/pkg/config"
	pkgerrors "github.com/stocklinehq/stockline-backend/pkg/errors"
	"github.com/stocklinehq/stockline-backend/pkg/logger"
)

// PermissionResolver loads the permission codes for a user on each
// request, so grants take effect without re-issuing tokens.
type PermissionResolver interface {
	ResolvePermissions(ctx context.Context, userID uuid.UUID) ([]string, error)
}

// Auth validates a bearer token and seeds the request context with the
// caller identity and resolved permissions.
func Auth(cfg config.JWTConfig, resolver PermissionResolver, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get("Authorization"))
			if raw == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			token := raw
			if strings.HasPrefix(strings.ToLower(token), "bearer ") {
				token = strings.TrimSpace(token[7:])
			}
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			claims, err := pkgauth.ParseAccessToken(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}

			ctx := context.WithValue(r.Context(), ctxUserID, claims.UserID.String())
			ctx = context.WithValue(ctx, ctxUsername, claims.Username)

			if resolver != nil {
				permissions, err := resolver.ResolvePermissions(ctx, claims.UserID)
				if err != nil {
					responses.WriteError(ctx, logg, w, err)
					return
				}
				ctx = context.WithValue(ctx, ctxPermissions, permissions)
			}

			if logg != nil {
				ctx = logg.WithFields(ctx, map[string]any{
					"user_id":  claims.UserID.String(),
					"username": claims.Username,
				})
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequirePermission gates a route on one permission code.
func RequirePermission(code string, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, granted := range PermissionsFromContext(r.Context()) {
				if granted == code {
					next.ServeHTTP(w, r)
					return
				}
			}
			responses.WriteError(r.Context(), logg, w,
				pkgerrors.Newf(pkgerrors.CodeForbidden, "missing permission %s", code))
		})
	}
}
