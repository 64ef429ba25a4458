// Package gatekeeper verifies the identity and credentials forwarded by the
// authenticating gateway. User authentication itself happens upstream; this
// package only checks that the forwarded identity is genuine.
package gatekeeper

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/sproutly/sproutly/internal/platform/httpx"
	"github.com/sproutly/sproutly/internal/shared"
	"github.com/sproutly/sproutly/internal/tenant"
)

// Gateway headers carrying the verified identity.
const (
	HeaderUserID    = "X-User-Id"
	HeaderRole      = "X-User-Role"
	HeaderSignature = "X-Gateway-Signature"
)

// Verifier checks gateway signatures and derives the admin capability flag.
type Verifier struct {
	secret     []byte
	adminRoles map[string]struct{}
}

// NewVerifier constructs a Verifier. Roles listed in adminRoles receive the
// admin capability; everything else goes through normal resolution.
func NewVerifier(secret string, adminRoles []string) *Verifier {
	admins := make(map[string]struct{}, len(adminRoles))
	for _, role := range adminRoles {
		role = strings.TrimSpace(strings.ToLower(role))
		if role != "" {
			admins[role] = struct{}{}
		}
	}
	return &Verifier{secret: []byte(secret), adminRoles: admins}
}

// Sign computes the gateway signature over the identity headers. Exported so
// tests and the gateway contract share one definition.
func (v *Verifier) Sign(userID, role, tenantID string) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(userID + "\n" + role + "\n" + tenantID))
	return hex.EncodeToString(mac.Sum(nil))
}

// Middleware verifies the forwarded identity and attaches it to context.
// Requests without a valid signature never reach a handler.
func (v *Verifier) Middleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rawUser := r.Header.Get(HeaderUserID)
			role := strings.TrimSpace(strings.ToLower(r.Header.Get(HeaderRole)))
			signature := r.Header.Get(HeaderSignature)
			if rawUser == "" || role == "" || signature == "" {
				httpx.Fail(w, http.StatusUnauthorized, httpx.CodeUnauthorized, "missing identity headers")
				return
			}
			expected := v.Sign(rawUser, r.Header.Get(HeaderRole), r.Header.Get(tenant.HeaderTenant))
			if !hmac.Equal([]byte(expected), []byte(signature)) {
				logger.Warn("gateway signature mismatch", slog.String("path", r.URL.Path))
				httpx.Fail(w, http.StatusUnauthorized, httpx.CodeUnauthorized, "invalid identity signature")
				return
			}
			userID, err := strconv.ParseInt(rawUser, 10, 64)
			if err != nil {
				httpx.Fail(w, http.StatusUnauthorized, httpx.CodeUnauthorized, "invalid user id")
				return
			}
			_, admin := v.adminRoles[role]
			id := shared.Identity{UserID: userID, Role: role, Admin: admin}
			next.ServeHTTP(w, r.WithContext(shared.ContextWithIdentity(r.Context(), id)))
		})
	}
}
