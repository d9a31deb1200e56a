// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io/fs"
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

	"github.com/sharecrate/sharecrate/internal/access"
	"github.com/sharecrate/sharecrate/internal/cache"
	"github.com/sharecrate/sharecrate/internal/comments"
	"github.com/sharecrate/sharecrate/internal/config"
	"github.com/sharecrate/sharecrate/internal/geoip"
	"github.com/sharecrate/sharecrate/internal/handler"
	"github.com/sharecrate/sharecrate/internal/logging"
	"github.com/sharecrate/sharecrate/internal/maintenance"
	"github.com/sharecrate/sharecrate/internal/middleware"
	"github.com/sharecrate/sharecrate/internal/recorder"
	"github.com/sharecrate/sharecrate/internal/seo"
	"github.com/sharecrate/sharecrate/internal/session"
	"github.com/sharecrate/sharecrate/internal/stats"
	"github.com/sharecrate/sharecrate/internal/store"
	"github.com/sharecrate/sharecrate/internal/version"
	"github.com/sharecrate/sharecrate/web"
)

// Version information - injected at build time via ldflags
var (
	appVersion   = "dev"
	appGitCommit = "unknown"
	appBuildTime = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "Show version information")
	flag.BoolVar(showVersion, "v", false, "Show version information (shorthand)")
	showHelp := flag.Bool("help", false, "Show help information")
	flag.BoolVar(showHelp, "h", false, "Show help information (shorthand)")

	flag.Usage = func() {
		_, _ = fmt.Fprintf(os.Stderr, "ShareCrate - file share pages with access control and visit analytics\n\n")
		_, _ = fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		_, _ = fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		_, _ = fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		_, _ = fmt.Fprintf(os.Stderr, "  SHARECRATE_SESSION_SECRET    Session encryption key (required, min 32 bytes)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  SHARECRATE_DB_PATH           SQLite database path (default: ./data/sharecrate.db)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  SHARECRATE_FILES_DIR         Shared files directory (default: ./data/files)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  SHARECRATE_SERVER_PORT       Server port (default: 8080)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  SHARECRATE_ENV               Environment: development|production (default: development)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  SHARECRATE_GEOIP_DB_PATH     Path to GeoLite2-City.mmdb (optional)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  SHARECRATE_REDIS_URL         Redis URL for distributed caching (optional)\n")
	}

	flag.Parse()

	if *showHelp {
		flag.Usage()
		os.Exit(0)
	}

	if *showVersion {
		info := version.Info{Version: appVersion, GitCommit: appGitCommit, BuildTime: appBuildTime}
		_, _ = fmt.Printf("sharecrate %s\n", info)
		os.Exit(0)
	}

	if err := run(); err != nil {
		slog.Error("application error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// Load .env file if present (development)
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logLevel := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Ensure data directories exist
	for _, dir := range []string{filepath.Dir(cfg.DBPath), cfg.FilesDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}

	slog.Info("initializing database", "path", cfg.DBPath)
	db, err := store.NewDB(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	defer func(db *sql.DB) {
		if err := db.Close(); err != nil {
			slog.Error("error closing database connection", "error", err)
		}
	}(db)

	slog.Info("running database migrations")
	if err := store.Migrate(db); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	slog.Info("database ready")

	// Upgrade logger to also write WARN and ERROR logs to the event log
	textHandler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	logger = slog.New(logging.NewEventLogHandler(textHandler, db))
	slog.SetDefault(logger)
	slog.Info("event log integration enabled", "min_level", "warn")

	queries := store.New(db)

	sessionManager := session.NewManager(db, cfg.IsDevelopment())
	slog.Info("session manager initialized")

	cacheBackend, err := cache.New(cache.Config{
		RedisURL:        cfg.RedisURL,
		Prefix:          cfg.CachePrefix,
		DefaultTTL:      time.Duration(cfg.CacheTTL) * time.Second,
		MaxSize:         cfg.CacheMaxSize,
		CleanupInterval: time.Minute,
	})
	if err != nil {
		return fmt.Errorf("initializing cache: %w", err)
	}
	defer func() {
		if err := cacheBackend.Close(); err != nil {
			slog.Error("error closing cache", "error", err)
		}
	}()
	if cfg.UseRedisCache() {
		slog.Info("cache initialized", "backend", "redis", "url", cfg.RedisURL)
	} else {
		slog.Info("cache initialized", "backend", "memory")
	}
	pageCache := cache.NewPageCache(cacheBackend, queries, time.Duration(cfg.CacheTTL)*time.Second)

	geo := geoip.NewResolver()
	if cfg.GeoIPEnabled() {
		if err := geo.Init(cfg.GeoIPDBPath); err != nil {
			slog.Warn("geoip disabled", "path", cfg.GeoIPDBPath, "error", err)
		} else {
			slog.Info("geoip database loaded", "path", cfg.GeoIPDBPath)
		}
	}
	defer func() {
		_ = geo.Close()
	}()

	statsStore := stats.NewStore(db)
	rec := recorder.New(statsStore, geo, cfg.VisitorSalt, logger)
	ledger := comments.NewLedger(queries, statsStore)
	gate := access.NewGate(pageCache)

	mnt := maintenance.New(db, geo, logger)
	if err := mnt.Start(); err != nil {
		return fmt.Errorf("starting maintenance: %w", err)
	}
	defer mnt.Stop()

	shareHandler := handler.NewShareHandler(
		gate, pageCache, queries, statsStore, rec, ledger,
		sessionManager, cfg.FilesDir, logger,
	)
	healthHandler := handler.NewHealthHandler(db, sessionManager, geo)
	verifyLimiter := middleware.NewVerifyRateLimiter(cfg.VerifyRateLimit, cfg.VerifyBurst)

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(middleware.SecurityHeaders)
	r.Use(sessionManager.LoadAndSave)

	r.Get("/robots.txt", seo.RobotsHandler(seo.RobotsConfig{}))

	r.Get("/health", healthHandler.Health)
	r.Get("/health/live", healthHandler.Liveness)
	r.Get("/health/ready", healthHandler.Readiness)

	r.Get("/page/{slug}", shareHandler.GetPage)
	r.With(verifyLimiter.Middleware()).Post("/page/{slug}/verify", shareHandler.VerifyPassword)
	r.Post("/page/{slug}/visit-duration", shareHandler.RecordVisitDuration)
	r.Get("/page/{slug}/files/{fileIndex}/download", shareHandler.DownloadFile)
	r.Get("/page/{slug}/files/{fileIndex}/annotations", shareHandler.ListAnnotations)
	r.Post("/page/{slug}/files/{fileIndex}/annotations", shareHandler.CreateAnnotation)
	r.Delete("/annotations/{id}", shareHandler.DeleteAnnotation)
	r.Get("/pages/{id}/analytics", shareHandler.Analytics)

	// Embedded static assets, including the visit tracker script.
	staticFS, err := fs.Sub(web.Static, "static")
	if err != nil {
		return fmt.Errorf("getting static fs: %w", err)
	}
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(staticFS))))

	srv := &http.Server{
		Addr:              cfg.ServerAddr(),
		Handler:           r,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		slog.Info("starting server", "addr", cfg.ServerAddr(), "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped")
	return nil
}
