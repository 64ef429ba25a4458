package tenant_test

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sproutly/sproutly/internal/tenant"
	_ "github.com/sproutly/sproutly/testing"
)

func serveWithTenant(t *testing.T, registry *stubRegistry, tenantID string) (*httptest.ResponseRecorder, tenant.Scope) {
	t.Helper()
	resolver := tenant.NewResolver(registry, time.Minute)

	var got tenant.Scope
	handler := tenant.Middleware(resolver, slog.Default())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = tenant.ScopeFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if tenantID != "" {
		req.Header.Set(tenant.HeaderTenant, tenantID)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec, got
}

func TestMiddlewareAttachesScope(t *testing.T) {
	registry := &stubRegistry{scopes: map[string]tenant.Scope{"sunnyside": "t_sunnyside"}}
	rec, scope := serveWithTenant(t, registry, "sunnyside")
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, tenant.Scope("t_sunnyside"), scope)
}

func TestMiddlewareMissingHeader(t *testing.T) {
	rec, _ := serveWithTenant(t, &stubRegistry{}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "UNAUTHORIZED")
}

func TestMiddlewareUnknownTenant(t *testing.T) {
	rec, _ := serveWithTenant(t, &stubRegistry{}, "nobody")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "INVALID_PARAMS")
}
