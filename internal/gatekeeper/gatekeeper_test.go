package gatekeeper_test

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sproutly/sproutly/internal/gatekeeper"
	"github.com/sproutly/sproutly/internal/shared"
	"github.com/sproutly/sproutly/internal/tenant"
	_ "github.com/sproutly/sproutly/testing"
)

func identityProbe(got *shared.Identity) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := shared.IdentityFromContext(r.Context())
		if ok {
			*got = id
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

func signedRequest(v *gatekeeper.Verifier, userID, role, tenantID string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(gatekeeper.HeaderUserID, userID)
	req.Header.Set(gatekeeper.HeaderRole, role)
	req.Header.Set(tenant.HeaderTenant, tenantID)
	req.Header.Set(gatekeeper.HeaderSignature, v.Sign(userID, role, tenantID))
	return req
}

func TestMiddlewareAcceptsValidSignature(t *testing.T) {
	verifier := gatekeeper.NewVerifier("top-secret", []string{"admin"})

	var got shared.Identity
	handler := verifier.Middleware(slog.Default())(identityProbe(&got))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, signedRequest(verifier, "101", "Teacher", "sunnyside"))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, shared.Identity{UserID: 101, Role: "teacher"}, got)
}

func TestMiddlewareFlagsAdminRole(t *testing.T) {
	verifier := gatekeeper.NewVerifier("top-secret", []string{"admin", "Principal"})

	var got shared.Identity
	handler := verifier.Middleware(slog.Default())(identityProbe(&got))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, signedRequest(verifier, "7", "principal", "sunnyside"))

	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.True(t, got.Admin)
}

func TestMiddlewareRejectsBadSignature(t *testing.T) {
	verifier := gatekeeper.NewVerifier("top-secret", nil)
	handler := verifier.Middleware(slog.Default())(identityProbe(&shared.Identity{}))

	req := signedRequest(verifier, "101", "teacher", "sunnyside")
	req.Header.Set(gatekeeper.HeaderRole, "admin") // tampered after signing

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "UNAUTHORIZED")
}

func TestMiddlewareRejectsMissingHeaders(t *testing.T) {
	verifier := gatekeeper.NewVerifier("top-secret", nil)
	handler := verifier.Middleware(slog.Default())(identityProbe(&shared.Identity{}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddlewareRejectsNonNumericUser(t *testing.T) {
	verifier := gatekeeper.NewVerifier("top-secret", nil)
	handler := verifier.Middleware(slog.Default())(identityProbe(&shared.Identity{}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, signedRequest(verifier, "not-a-number", "teacher", "sunnyside"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

type stubTokens struct {
	err error
}

func (s stubTokens) Verify(ctx context.Context, token string) error { return s.err }

func TestRequireToken(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	t.Run("valid bearer passes", func(t *testing.T) {
		handler := gatekeeper.RequireToken(stubTokens{}, slog.Default())(ok)
		req := httptest.NewRequest(http.MethodPut, "/", nil)
		req.Header.Set("Authorization", "Bearer svc.secret")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("missing header rejected", func(t *testing.T) {
		handler := gatekeeper.RequireToken(stubTokens{}, slog.Default())(ok)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("invalid token rejected", func(t *testing.T) {
		handler := gatekeeper.RequireToken(stubTokens{err: gatekeeper.ErrTokenInvalid}, slog.Default())(ok)
		req := httptest.NewRequest(http.MethodPut, "/", nil)
		req.Header.Set("Authorization", "Bearer svc.wrong")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("lookup failure is a server error", func(t *testing.T) {
		handler := gatekeeper.RequireToken(stubTokens{err: errors.New("db down")}, slog.Default())(ok)
		req := httptest.NewRequest(http.MethodPut, "/", nil)
		req.Header.Set("Authorization", "Bearer svc.secret")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}
