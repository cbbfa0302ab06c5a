package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/time/rate"

	"subwatch/internal/database"
	"subwatch/internal/metrics"
	"subwatch/internal/models"
)

type ctxKey int

const (
	ctxKeyUser ctxKey = iota
	ctxKeyAPIKey
)

// userFrom returns the account the auth middleware resolved.
func userFrom(ctx context.Context) *models.User {
	u, _ := ctx.Value(ctxKeyUser).(*models.User)
	return u
}

// apiKeyFrom returns the key the request authenticated with.
func apiKeyFrom(ctx context.Context) *models.APIKey {
	k, _ := ctx.Value(ctxKeyAPIKey).(*models.APIKey)
	return k
}

// bearerToken extracts the key secret from Authorization: Bearer or the
// X-Api-Key header.
func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(auth[len("Bearer "):])
	}
	return r.Header.Get("X-Api-Key")
}

// authenticate resolves the API key, rejects blocked accounts and applies
// the per-key rate limit before invoking next.
func (s *HTTPServer) authenticate(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		secret := bearerToken(r)
		if secret == "" {
			metrics.IncAuthFailure("missing_key")
			writeError(w, http.StatusUnauthorized, "missing API key")
			return
		}

		user, key, err := s.db.GetUserByKeyHash(r.Context(), models.HashKey(secret))
		if err != nil {
			if errors.Is(err, database.ErrNotFound) {
				metrics.IncAuthFailure("unknown_key")
				writeError(w, http.StatusUnauthorized, "invalid API key")
				return
			}
			s.log.Error().Err(err).Msg("api key lookup failed")
			writeError(w, http.StatusInternalServerError, "authentication failed")
			return
		}

		if err := s.accounts.RequireActive(user); err != nil {
			metrics.IncAuthFailure("blocked")
			writeError(w, http.StatusForbidden, err.Error())
			return
		}

		if !s.limiter.allow(key.ID) {
			metrics.IncRateLimited()
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		if err := s.db.TouchAPIKey(r.Context(), key.ID); err != nil {
			s.log.Debug().Err(err).Int64("key_id", key.ID).Msg("failed to touch api key")
		}

		ctx := context.WithValue(r.Context(), ctxKeyUser, user)
		ctx = context.WithValue(ctx, ctxKeyAPIKey, key)
		next(w, r.WithContext(ctx))
	}
}

// requireAdmin gates the /api/admin surface.
func (s *HTTPServer) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return s.authenticate(func(w http.ResponseWriter, r *http.Request) {
		if err := s.accounts.RequireAdmin(userFrom(r.Context())); err != nil {
			metrics.IncAuthFailure("not_admin")
			writeError(w, http.StatusForbidden, err.Error())
			return
		}
		next(w, r)
	})
}

// keyLimiter holds one token bucket per API key.
type keyLimiter struct {
	mu       sync.Mutex
	limiters map[int64]*rate.Limiter
	limit    rate.Limit
	burst    int
}

func newKeyLimiter(perMinute, burst int) *keyLimiter {
	if perMinute <= 0 {
		perMinute = 120
	}
	if burst <= 0 {
		burst = 20
	}
	return &keyLimiter{
		limiters: make(map[int64]*rate.Limiter),
		limit:    rate.Limit(float64(perMinute) / 60.0),
		burst:    burst,
	}
}

func (l *keyLimiter) allow(keyID int64) bool {
	l.mu.Lock()
	lim, ok := l.limiters[keyID]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[keyID] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}
