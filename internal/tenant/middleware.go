package tenant

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/sproutly/sproutly/internal/platform/httpx"
)

// HeaderTenant names the gateway header carrying the tenant identifier.
const HeaderTenant = "X-Tenant"

// Middleware resolves the request's tenant scope and attaches it to context.
// A request without a resolvable scope never reaches a handler.
func Middleware(resolver *Resolver, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tenantID := r.Header.Get(HeaderTenant)
			if tenantID == "" {
				httpx.Fail(w, http.StatusUnauthorized, httpx.CodeUnauthorized, "missing tenant header")
				return
			}
			scope, err := resolver.Resolve(r.Context(), tenantID)
			if err != nil {
				switch {
				case errors.Is(err, ErrScopeUnknown), errors.Is(err, ErrScopeInvalid):
					httpx.Fail(w, http.StatusBadRequest, httpx.CodeInvalidParams, "unknown tenant")
				default:
					logger.Error("resolve tenant scope", slog.String("tenant", tenantID), slog.Any("error", err))
					httpx.Fail(w, http.StatusInternalServerError, httpx.CodeServerError, "internal error")
				}
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithScope(r.Context(), scope)))
		})
	}
}
