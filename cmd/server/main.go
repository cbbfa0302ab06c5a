package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"subwatch/internal/api"
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

func main() {
	// Initialize logger
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Logger()

	// .env is optional, the config file carries the real settings.
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("SUBWATCH_CONFIG_PATH"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	if cfg.Secrets.Key == "" {
		logger.Fatal().Msg("set secrets.key in config")
	}
	box, err := secrets.NewBox(cfg.Secrets.Key)
	if err != nil {
		logger.Fatal().Err(err).Msg("bad secrets.key")
	}

	db, err := database.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("open db error")
	}
	defer db.Close()

	var rdb *redis.Client
	if cfg.Redis.Address != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	}
	dataCache := cache.New(rdb, cfg.APICacheTTL(), &logger)

	accounts := access.NewService(db, logger)
	dispatcher := notify.NewDispatcher(db, logger, buildChannels(cfg, box, db, &logger)...)

	bus := events.NewBus()
	wireEvents(bus, dataCache, logger)

	var scheduler *reminders.Scheduler
	if cfg.Reminders.Enabled {
		scheduler, err = buildScheduler(cfg, db, dispatcher, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("reminder scheduler setup failed")
		}
	}

	exporter := audit.NewService(&audit.Config{
		RetentionMonths: cfg.Audit.RetentionMonths,
		ExportDir:       cfg.Audit.ExportDir,
	}, db, audit.NewExcelizeWriter, db, sharedLogger{logger.With().Str("component", "audit").Logger()})

	apiServer := api.NewHTTPServer(cfg, api.Deps{
		DB:        db,
		Cache:     dataCache,
		Box:       box,
		Accounts:  accounts,
		Notifier:  dispatcher,
		Scheduler: scheduler,
		Exporter:  exporter,
		Bus:       bus,
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The catalog loads now and reloads whenever the file changes on disk.
	// Without it the catalog endpoint answers 503 and sync skips matching.
	if err := config.WatchCatalog(ctx, cfg.Catalog.Path, cfg.CatalogReloadInterval(), apiServer.SetCatalog); err != nil {
		logger.Warn().Err(err).Str("path", cfg.Catalog.Path).Msg("catalog unavailable")
	}

	if cfg.Monitoring.HealthCheckPort == 0 {
		cfg.Monitoring.HealthCheckPort = 8090
	}
	go startHealthServer(ctx, cfg.Monitoring.HealthCheckPort, db, rdb, &logger)

	if cfg.Monitoring.PrometheusEnabled {
		if cfg.Monitoring.PrometheusPort == 0 {
			cfg.Monitoring.PrometheusPort = 9090
		}
		metrics.Register()
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger)
	}

	if cfg.Backup.Enabled {
		backup := database.NewBackupService(db, cfg.Backup.Path, cfg.BackupInterval(), cfg.Backup.RetentionDays, &logger)
		go backup.Start(ctx)
	}

	for channel, err := range dispatcher.CheckChannels(ctx) {
		if err != nil {
			logger.Warn().Err(err).Str("channel", string(channel)).Msg("channel not ready")
		} else {
			logger.Info().Str("channel", string(channel)).Msg("channel ready")
		}
	}

	if scheduler != nil {
		go scheduler.Start(ctx)
	}
	if cfg.Audit.Enabled {
		exporter.Start()
		defer exporter.Stop()
	}

	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Error().Err(err).Msg("api server error")
			stop()
		}
	}()

	logger.Info().Int("port", cfg.Server.Port).Msg("subwatch started")
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("api shutdown error")
	}
	if scheduler != nil {
		scheduler.Stop()
	}
	logger.Info().Msg("subwatch stopped")
}

// wireEvents hooks cache invalidation, counters and the audit log to
// domain events. Handlers run on the publishing goroutine, so they only
// do quick work.
func wireEvents(bus *events.Bus, dataCache *cache.Cache, logger zerolog.Logger) {
	invalidate := func(ev events.Event) {
		dataCache.InvalidateUser(context.Background(), ev.UserID)
	}

	bus.Subscribe(events.SubscriptionCreated, func(ev events.Event) {
		invalidate(ev)
		metrics.IncSubscriptionCreated(ev.Detail)
	})
	bus.Subscribe(events.SubscriptionUpdated, invalidate)
	bus.Subscribe(events.SubscriptionDeleted, func(ev events.Event) {
		invalidate(ev)
		metrics.IncSubscriptionDeleted()
	})
	bus.Subscribe(events.SettingsUpdated, invalidate)
	bus.Subscribe(events.SyncCompleted, invalidate)

	auditLog := logger.With().Str("component", "events").Logger()
	bus.SubscribeAll(func(ev events.Event) {
		auditLog.Info().
			Str("event", string(ev.Type)).
			Int64("user_id", ev.UserID).
			Int64("subscription_id", ev.SubscriptionID).
			Str("detail", ev.Detail).
			Msg("domain event")
	})
}

// buildChannels wires every delivery channel with credentials in the config.
// Push needs no setup and is always on.
func buildChannels(cfg *config.Config, box *secrets.Box, db *database.DB, logger *zerolog.Logger) []notify.Channel {
	channels := []notify.Channel{notify.NewPushChannel()}

	if cfg.Email.From != "" {
		ch, err := notify.NewEmailChannel(notify.EmailConfig{
			Transport:    cfg.Email.Transport,
			From:         cfg.Email.From,
			SMTPHost:     cfg.Email.SMTP.Host,
			SMTPPort:     cfg.Email.SMTP.Port,
			SMTPUsername: cfg.Email.SMTP.Username,
			SMTPPassword: cfg.Email.SMTP.Password,
			ResendAPIKey: cfg.Email.Resend.APIKey,
		})
		if err != nil {
			logger.Warn().Err(err).Msg("email channel disabled")
		} else {
			channels = append(channels, ch)
		}
	}

	if cfg.WhatsApp.AccessToken != "" {
		ch, err := notify.NewWhatsAppChannel(notify.WhatsAppConfig{
			BaseURL:       cfg.WhatsApp.BaseURL,
			APIVersion:    cfg.WhatsApp.APIVersion,
			PhoneNumberID: cfg.WhatsApp.PhoneNumberID,
			AccessToken:   cfg.WhatsApp.AccessToken,
		})
		if err != nil {
			logger.Warn().Err(err).Msg("whatsapp channel disabled")
		} else {
			channels = append(channels, ch)
		}
	}

	if cfg.Telegram.BotToken != "" {
		ch, err := notify.NewTelegramChannel(cfg.Telegram.BotToken, cfg.Telegram.Debug, *logger)
		if err != nil {
			logger.Warn().Err(err).Msg("telegram channel disabled")
		} else {
			channels = append(channels, ch)
		}
	}

	if cfg.Google.ClientID != "" {
		ch, err := notify.NewCalendarChannel(cfg.Google.ClientID, cfg.Google.ClientSecret,
			cfg.Google.RedirectURL, box, db)
		if err != nil {
			logger.Warn().Err(err).Msg("calendar channel disabled")
		} else {
			channels = append(channels, ch)
		}
	}

	return channels
}

func buildScheduler(cfg *config.Config, db *database.DB, dispatcher *notify.Dispatcher, logger zerolog.Logger) (*reminders.Scheduler, error) {
	hour, minute, err := reminders.ParseDailyTime(cfg.Reminders.SendTime)
	if err != nil {
		return nil, fmt.Errorf("bad reminders.send_time: %w", err)
	}

	engineLog := sharedLogger{logger.With().Str("component", "reminders").Logger()}
	engineMetrics := reminders.NewMetrics("subwatch")
	store := db.ReminderStore()

	service := reminders.NewService(store, store, store, engineLog, engineMetrics)

	senderCfg := reminders.DefaultSenderConfig()
	if cfg.Reminders.RatePerMinute > 0 {
		senderCfg.RateLimiter.Rate = float64(cfg.Reminders.RatePerMinute) / 60.0
	}
	sender := reminders.NewSender(dispatcher, store, senderCfg, engineLog, engineMetrics)

	schedCfg := reminders.DefaultSchedulerConfig()
	schedCfg.Timezone = cfg.Reminders.Timezone
	schedCfg.DailyHour = hour
	schedCfg.DailyMinute = minute
	schedCfg.SentRetention = cfg.SentReminderRetention()
	schedCfg.FailedRetention = cfg.FailedReminderRetention()

	return reminders.NewScheduler(schedCfg, service, sender, engineLog)
}

// sharedLogger adapts zerolog to the key-value logger the shared services
// expect.
type sharedLogger struct {
	log zerolog.Logger
}

func (l sharedLogger) Info(msg string, fields ...interface{})  { l.log.Info().Fields(fields).Msg(msg) }
func (l sharedLogger) Error(msg string, fields ...interface{}) { l.log.Error().Fields(fields).Msg(msg) }
func (l sharedLogger) Debug(msg string, fields ...interface{}) { l.log.Debug().Fields(fields).Msg(msg) }

func startHealthServer(ctx context.Context, port int, db *database.DB, rdb *redis.Client, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		ctxPing, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		if err := db.PingContext(ctxPing); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		if rdb != nil {
			if err := rdb.Ping(ctxPing).Err(); err != nil {
				http.Error(w, "redis not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("health server error")
	}
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
