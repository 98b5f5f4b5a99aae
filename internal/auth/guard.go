package auth

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/tarihci20/renewals/internal/platform/httpx"
)

// TokenGuard protects the admin surface with a single shared token.
// Configuration carries only the bcrypt hash of the token, so an
// environment dump does not expose the token itself.
type TokenGuard struct {
	hash   []byte
	logger *slog.Logger
}

// NewTokenGuard validates that hash looks like a bcrypt digest and
// returns the guard. Use cmd/hashtoken to produce the digest.
func NewTokenGuard(hash string, logger *slog.Logger) (*TokenGuard, error) {
	hash = strings.TrimSpace(hash)
	if !strings.HasPrefix(hash, "$2") {
		return nil, fmt.Errorf("admin token hash is not a bcrypt digest")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TokenGuard{hash: []byte(hash), logger: logger}, nil
}

// Require rejects requests that do not carry the admin bearer token.
func (g *TokenGuard) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			httpx.RespondError(w, fmt.Errorf("%w: missing bearer token", httpx.ErrUnauthorized))
			return
		}
		if err := bcrypt.CompareHashAndPassword(g.hash, []byte(token)); err != nil {
			g.logger.Warn("admin token rejected", "remote", r.RemoteAddr)
			httpx.RespondError(w, fmt.Errorf("%w: invalid token", httpx.ErrForbidden))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) (string, bool) {
	scheme, token, found := strings.Cut(r.Header.Get("Authorization"), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
