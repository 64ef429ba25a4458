package gatekeeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"

	"github.com/sproutly/sproutly/internal/platform/httpx"
)

// ErrTokenInvalid indicates a missing, unknown, or mismatched service token.
var ErrTokenInvalid = errors.New("gatekeeper: invalid service token")

// TokenStore verifies service tokens used by administrative callers. Tokens
// are issued out of band as "id.secret"; only the bcrypt hash of the secret
// is stored.
type TokenStore struct {
	pool *pgxpool.Pool
}

// NewTokenStore constructs a TokenStore.
func NewTokenStore(pool *pgxpool.Pool) *TokenStore {
	return &TokenStore{pool: pool}
}

// Verify checks a bearer token against the service_tokens table.
func (s *TokenStore) Verify(ctx context.Context, token string) error {
	id, secret, ok := strings.Cut(token, ".")
	if !ok || id == "" || secret == "" {
		return ErrTokenInvalid
	}
	var hash string
	err := s.pool.QueryRow(ctx,
		`SELECT secret_hash FROM public.service_tokens WHERE id = $1 AND active`,
		id,
	).Scan(&hash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrTokenInvalid
		}
		return fmt.Errorf("gatekeeper: verify token: %w", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) != nil {
		return ErrTokenInvalid
	}
	return nil
}

// TokenPort allows tests to stub token verification.
type TokenPort interface {
	Verify(ctx context.Context, token string) error
}

// RequireToken guards administrative mutation endpoints behind a service token.
func RequireToken(tokens TokenPort, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok {
				httpx.Fail(w, http.StatusUnauthorized, httpx.CodeUnauthorized, "service token required")
				return
			}
			if err := tokens.Verify(r.Context(), token); err != nil {
				if !errors.Is(err, ErrTokenInvalid) {
					logger.Error("verify service token", slog.Any("error", err))
					httpx.Fail(w, http.StatusInternalServerError, httpx.CodeServerError, "internal error")
					return
				}
				httpx.Fail(w, http.StatusUnauthorized, httpx.CodeUnauthorized, "invalid service token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
