// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/olegiv/radnice/internal/auth"
	"github.com/olegiv/radnice/internal/blob"
	"github.com/olegiv/radnice/internal/cache"
	"github.com/olegiv/radnice/internal/config"
	"github.com/olegiv/radnice/internal/geoip"
	"github.com/olegiv/radnice/internal/handler"
	"github.com/olegiv/radnice/internal/handler/api"
	"github.com/olegiv/radnice/internal/logging"
	"github.com/olegiv/radnice/internal/middleware"
	"github.com/olegiv/radnice/internal/scheduler"
	"github.com/olegiv/radnice/internal/service"
	"github.com/olegiv/radnice/internal/store"
	"github.com/olegiv/radnice/internal/version"
)

const (
	apiTimeout      = 60 * time.Second
	shutdownTimeout = 30 * time.Second
	uploadsMaxAge   = 7 * 24 * time.Hour
)

func main() {
	showVersion := flag.Bool("version", false, "Show version information")
	flag.BoolVar(showVersion, "v", false, "Show version information (shorthand)")
	showHelp := flag.Bool("help", false, "Show help information")
	flag.BoolVar(showHelp, "h", false, "Show help information (shorthand)")

	flag.Usage = func() {
		_, _ = fmt.Fprintf(os.Stderr, "radnice - municipal news and newsletter back office\n\n")
		_, _ = fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		_, _ = fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		_, _ = fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		_, _ = fmt.Fprintf(os.Stderr, "  RADNICE_TOKEN_SECRET        Token signing key (required, min 32 bytes)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  RADNICE_DB_PATH             SQLite database path (default: ./data/radnice.db)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  RADNICE_DB_DRIVER           sqlite (pure Go) or sqlite3 (cgo) (default: sqlite)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  RADNICE_SERVER_PORT         Server port (default: 8080)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  RADNICE_ENV                 Environment: development|production (default: development)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  RADNICE_REDIS_URL           Redis URL for the shared cache (optional)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  RADNICE_NEWSLETTER_BACKEND  Subscriber storage: sql|file|s3 (default: sql)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  RADNICE_DO_SEED             Create the first admin on an empty database\n")
	}

	flag.Parse()

	if *showHelp {
		flag.Usage()
		os.Exit(0)
	}

	if *showVersion {
		_, _ = fmt.Println(version.Current().String())
		os.Exit(0)
	}

	if err := run(); err != nil {
		slog.Error("application error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// Load .env if present (development)
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := logging.New(os.Stdout, cfg.LogLevel)
	slog.SetDefault(logger)
	slog.Info("starting radnice", "version", version.Current().Version, "env", cfg.Env)

	for _, dir := range []string{filepath.Dir(cfg.DBPath), cfg.UploadsDir} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}

	dbCfg := store.DefaultDBConfig()
	dbCfg.Driver = cfg.DBDriver
	slog.Info("initializing database", "path", cfg.DBPath, "driver", dbCfg.Driver)
	db, err := store.NewDBWithConfig(cfg.DBPath, dbCfg)
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	defer func(db *sql.DB) {
		if err := db.Close(); err != nil {
			slog.Error("error closing database connection", "error", err)
		}
	}(db)

	ctx := context.Background()
	applied, err := store.Migrate(ctx, db)
	if err != nil {
		return err
	}
	slog.Info("database ready", "migrations_applied", applied)

	if cfg.DoSeed {
		if err := seed(ctx, db, cfg); err != nil {
			return err
		}
	}

	appCache := cache.New(cache.Config{
		RedisURL:   cfg.RedisURL,
		Prefix:     cfg.CachePrefix,
		DefaultTTL: time.Duration(cfg.CacheTTL) * time.Second,
		MaxSize:    cfg.CacheMaxSize,
	})
	defer func() {
		if err := appCache.Close(); err != nil {
			slog.Error("error closing cache", "error", err)
		}
	}()
	if _, shared := appCache.(*cache.RedisCache); cfg.UseRedisCache() && !shared {
		slog.Warn("token revocations are local to this instance until redis is reachable")
	}

	tokens, err := auth.NewTokenManager(auth.TokenConfig{
		Secret:     cfg.TokenSecret,
		Issuer:     cfg.TokenIssuer,
		AccessTTL:  cfg.TokenTTL,
		RefreshTTL: cfg.RefreshTokenTTL,
		Revoker:    auth.NewRevoker(appCache),
	})
	if err != nil {
		return fmt.Errorf("creating token manager: %w", err)
	}

	subscribers, err := newSubscriberStore(ctx, db, cfg)
	if err != nil {
		return err
	}

	var geo *geoip.Lookup
	if cfg.GeoIPEnabled() {
		geo, err = geoip.Open(cfg.GeoIPDBPath)
		if err != nil {
			slog.Warn("geoip database unavailable, countries will not be recorded", "path", cfg.GeoIPDBPath, "error", err)
		}
	} else {
		slog.Info("geoip disabled, countries will not be recorded")
	}
	defer func() { _ = geo.Close() }()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewDBStatsCollector(db, "radnice"),
	)
	if sp, ok := appCache.(cache.StatsProvider); ok {
		registry.MustRegister(cache.NewCollector(sp))
	}
	metrics := middleware.NewMetrics(registry)

	users := service.NewUserService(db, logger)
	media := service.NewMediaService(cfg.UploadsDir, cfg.UploadsURL, cfg.MaxUploadBytes(), logger)
	analytics := service.NewAnalyticsService(db, subscribers, geo, cfg.AnalyticsRetention, logger)
	authn := middleware.NewAuthenticator(tokens, users, cfg.CookieName, logger)

	loginProtection := middleware.NewLoginProtection(middleware.DefaultLoginProtectionConfig())
	defer loginProtection.Close()

	apiHandler := api.NewHandler(api.Config{
		Articles:        service.NewArticleService(db, logger),
		Categories:      service.NewCategoryService(db, appCache, logger),
		Newsletter:      service.NewNewsletterService(subscribers, logger),
		Campaigns:       service.NewCampaignService(db, subscribers),
		Media:           media,
		Analytics:       analytics,
		Users:           users,
		Tokens:          tokens,
		Authenticator:   authn,
		LoginProtection: loginProtection,
		Metrics:         metrics,
		SecureCookies:   !cfg.IsDevelopment(),
		Logger:          logger,
	})

	sched := scheduler.New(logger)
	if err := registerJobs(sched, metrics, analytics, media, geo); err != nil {
		return fmt.Errorf("registering jobs: %w", err)
	}
	sched.Start()
	defer sched.Stop()
	for _, job := range sched.List() {
		slog.Info("job scheduled", "name", job.Name, "schedule", job.Schedule, "next_run", job.NextRun)
	}
	go func() {
		// Catch up on page views recorded while the process was down.
		if err := sched.TriggerNow(ctx, "analytics-rollup"); err != nil {
			slog.Error("initial analytics rollup failed", "error", err)
		}
	}()

	healthHandler := handler.NewHealthHandler(db, appCache, authn, cfg.UploadsDir)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.StripSlashes)
	r.Use(chimw.Compress(5, "application/json", "text/csv"))
	securityCfg := middleware.DefaultSecurityHeadersConfig(cfg.IsDevelopment())
	securityCfg.ExcludePaths = []string{"/metrics"}
	r.Use(middleware.SecurityHeaders(securityCfg))
	r.Use(metrics.Middleware)

	r.Get("/health", healthHandler.Health)
	r.Get("/health/live", healthHandler.Liveness)
	r.Get("/health/ready", healthHandler.Readiness)
	r.Handle("/metrics", metrics.Handler())

	uploads := http.StripPrefix(cfg.UploadsURL, http.FileServer(http.Dir(cfg.UploadsDir)))
	r.With(middleware.StaticCache(uploadsMaxAge)).Handle(cfg.UploadsURL+"/*", uploads)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.NoStore)
		r.Use(middleware.Timeout(apiTimeout))
		r.Use(middleware.NewRateLimiter(cfg.APIRateLimit, cfg.APIRateBurst).Middleware())
		r.Use(middleware.CSRF(middleware.DefaultCSRFConfig([]byte(cfg.TokenSecret), cfg.TrustedOrigins, cfg.IsDevelopment())))
		apiHandler.Routes(r)
	})

	srv := &http.Server{
		Addr:              cfg.ServerAddr(),
		Handler:           r,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      apiTimeout + 10*time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("starting server", "addr", cfg.ServerAddr(), "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	}

	slog.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped")
	return nil
}

// seed creates the first administrator on an empty database.
func seed(ctx context.Context, db *sql.DB, cfg *config.Config) error {
	hash, err := auth.HashPassword(cfg.AdminPassword)
	if err != nil {
		return fmt.Errorf("hashing admin password: %w", err)
	}
	if err := store.Seed(ctx, db, store.SeedParams{
		Username:     cfg.AdminUsername,
		Email:        cfg.AdminEmail,
		PasswordHash: hash,
	}); err != nil {
		return fmt.Errorf("seeding database: %w", err)
	}
	return nil
}

// newSubscriberStore selects the subscriber backend.
func newSubscriberStore(ctx context.Context, db *sql.DB, cfg *config.Config) (service.SubscriberStore, error) {
	switch cfg.NewsletterBackend {
	case config.NewsletterBackendFile:
		fs, err := blob.NewFileStore(cfg.DataDir)
		if err != nil {
			return nil, fmt.Errorf("opening newsletter data directory: %w", err)
		}
		slog.Info("newsletter subscribers stored in file", "dir", cfg.DataDir)
		return service.NewDocumentSubscriberStore(fs), nil
	case config.NewsletterBackendS3:
		s3, err := blob.NewS3Store(ctx, blob.S3Config{
			Bucket:       cfg.S3Bucket,
			Region:       cfg.S3Region,
			Endpoint:     cfg.S3Endpoint,
			AccessKey:    cfg.S3AccessKey,
			SecretKey:    cfg.S3SecretKey,
			UsePathStyle: cfg.S3UsePathStyle,
			Prefix:       cfg.S3Prefix,
		})
		if err != nil {
			return nil, fmt.Errorf("connecting to S3: %w", err)
		}
		slog.Info("newsletter subscribers stored in S3", "bucket", cfg.S3Bucket)
		return service.NewDocumentSubscriberStore(s3), nil
	default:
		return service.NewSQLSubscriberStore(db), nil
	}
}

// registerJobs schedules the maintenance jobs. Each run is counted in the
// job metrics.
func registerJobs(sched *scheduler.Scheduler, metrics *middleware.Metrics, analytics *service.AnalyticsService,
	media *service.MediaService, geo *geoip.Lookup) error {
	jobs := []scheduler.Job{
		{
			Name:        "analytics-rollup",
			Description: "Fold page views into daily totals and prune old rows",
			Schedule:    "15 * * * *",
			Run: func(ctx context.Context) error {
				rolled, pruned, err := analytics.Rollup(ctx)
				if err == nil && (rolled > 0 || pruned > 0) {
					slog.Info("page views rolled up", "rolled", rolled, "pruned", pruned)
				}
				return err
			},
		},
		{
			Name:        "media-temp-sweep",
			Description: "Remove abandoned temporary upload files",
			Schedule:    "@every 30m",
			Run: func(ctx context.Context) error {
				n, err := media.SweepTemp(ctx, service.StaleTempAge)
				if n > 0 {
					slog.Info("stale upload files removed", "count", n)
				}
				return err
			},
		},
	}
	if geo.Enabled() {
		jobs = append(jobs, scheduler.Job{
			Name:        "geoip-reload",
			Description: "Reload the GeoIP country database",
			Schedule:    "30 4 * * 3",
			Run: func(context.Context) error {
				return geo.Reload()
			},
		})
	}

	for _, job := range jobs {
		run := job.Run
		name := job.Name
		job.Run = func(ctx context.Context) error {
			err := run(ctx)
			metrics.ObserveJob(name, err)
			return err
		}
		if err := sched.Add(job); err != nil {
			return err
		}
	}
	return nil
}
