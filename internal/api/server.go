// Package api serves the REST surface used by the browser extension and
// other programmatic clients.
package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"subwatch/internal/cache"
	"subwatch/internal/config"
	"subwatch/internal/database"
	"subwatch/internal/events"
	"subwatch/internal/metrics"
	"subwatch/internal/notify"
	"subwatch/internal/secrets"
	"subwatch/shared/access"
	"subwatch/shared/audit"
	"subwatch/shared/reminders"
)

// Deps bundles everything the HTTP server talks to.
type Deps struct {
	DB        *database.DB
	Cache     *cache.Cache
	Box       *secrets.Box
	Accounts  *access.Service
	Notifier  *notify.Dispatcher
	Scheduler *reminders.Scheduler
	Exporter  *audit.Service
	Bus       *events.Bus
}

// HTTPServer is the API server. All /api/v1 routes require a user key,
// /api/admin routes additionally require the admin role.
type HTTPServer struct {
	db        *database.DB
	cache     *cache.Cache
	box       *secrets.Box
	accounts  *access.Service
	notifier  *notify.Dispatcher
	scheduler *reminders.Scheduler
	exporter  *audit.Service
	bus       *events.Bus
	limiter   *keyLimiter
	log       zerolog.Logger

	catalogMu sync.RWMutex
	catalog   *config.Catalog

	server *http.Server
}

// NewHTTPServer wires up routes and middleware.
func NewHTTPServer(cfg *config.Config, deps Deps, logger zerolog.Logger) *HTTPServer {
	s := &HTTPServer{
		db:        deps.DB,
		cache:     deps.Cache,
		box:       deps.Box,
		accounts:  deps.Accounts,
		notifier:  deps.Notifier,
		scheduler: deps.Scheduler,
		exporter:  deps.Exporter,
		bus:       deps.Bus,
		limiter:   newKeyLimiter(cfg.API.RateLimitPerMinute, cfg.API.RateLimitBurst),
		log:       logger.With().Str("component", "api").Logger(),
	}

	mux := http.NewServeMux()

	s.handle(mux, "/api/v1/subscriptions", s.authenticate(s.handleSubscriptions))
	s.handle(mux, "/api/v1/subscriptions/", s.authenticate(s.handleSubscriptionByID))
	s.handle(mux, "/api/v1/analytics/spending", s.authenticate(s.handleSpending))
	s.handle(mux, "/api/v1/settings", s.authenticate(s.handleSettings))
	s.handle(mux, "/api/v1/settings/credentials/", s.authenticate(s.handleCredentials))
	s.handle(mux, "/api/v1/notifications", s.authenticate(s.handleNotifications))
	s.handle(mux, "/api/v1/notifications/test", s.authenticate(s.handleNotificationTest))
	s.handle(mux, "/api/v1/notifications/", s.authenticate(s.handleNotificationAck))
	s.handle(mux, "/api/v1/sync", s.authenticate(s.handleSync))
	s.handle(mux, "/api/v1/catalog", s.authenticate(s.handleCatalog))
	s.handle(mux, "/api/v1/keys", s.authenticate(s.handleKeys))
	s.handle(mux, "/api/v1/keys/", s.authenticate(s.handleKeyByID))

	s.handle(mux, "/api/admin/users", s.requireAdmin(s.handleAdminUsers))
	s.handle(mux, "/api/admin/users/", s.requireAdmin(s.handleAdminUserByID))
	s.handle(mux, "/api/admin/stats", s.requireAdmin(s.handleAdminStats))
	s.handle(mux, "/api/admin/export", s.requireAdmin(s.handleAdminExport))
	s.handle(mux, "/api/admin/reminders/run", s.requireAdmin(s.handleAdminRemindersRun))

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// handle registers a route with request metrics and logging attached.
func (s *HTTPServer) handle(mux *http.ServeMux, route string, h http.HandlerFunc) {
	mux.HandleFunc(route, func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h(rec, r)

		elapsed := time.Since(start)
		metrics.ObserveRequest(r.Method, route, rec.status, elapsed.Seconds())
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("elapsed", elapsed).
			Msg("request")
	})
}

// Start begins serving and blocks until the listener stops.
func (s *HTTPServer) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("API server listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// SetCatalog swaps in a newly loaded service catalog. Hooked to the config
// watcher so edits to catalog.yaml go live without a restart.
func (s *HTTPServer) SetCatalog(cat *config.Catalog) {
	s.catalogMu.Lock()
	s.catalog = cat
	s.catalogMu.Unlock()

	// Write-through so pollers see the new catalog before the TTL expires.
	s.cache.Set(context.Background(), catalogCacheKey, buildCatalogResponse(cat))
	s.log.Info().Str("catalog", cat.String()).Msg("Service catalog updated")
}

func (s *HTTPServer) getCatalog() *config.Catalog {
	s.catalogMu.RLock()
	defer s.catalogMu.RUnlock()
	return s.catalog
}

// publish emits a domain event; a nil bus drops it.
func (s *HTTPServer) publish(t events.Type, userID, subscriptionID int64, detail string) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(events.Event{
		Type:           t,
		UserID:         userID,
		SubscriptionID: subscriptionID,
		Detail:         detail,
	})
}
