package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"media-registry/internal/database"
	"media-registry/internal/filesystem"
	"media-registry/internal/handlers"
	"media-registry/internal/logging"
	"media-registry/internal/metrics"
	"media-registry/internal/middleware"
	"media-registry/internal/migration"
	"media-registry/internal/render"
	"media-registry/internal/scanner"
	"media-registry/internal/startup"
	"media-registry/internal/throttle"
)

const (
	shutdownTimeout         = 30 * time.Second
	metricsCollectInterval  = time.Minute
	databaseMetricsInterval = 30 * time.Second
)

func main() {
	startTime := time.Now()

	throttle.ConfigureMemoryLimit()

	// Load configuration
	config, err := startup.LoadConfig()
	if err != nil {
		startup.LogFatal("Configuration error: %v", err)
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Initialize database
	dbStart := time.Now()
	db, err := database.New(ctx, config.DatabasePath)
	if err != nil {
		startup.LogFatal("Failed to initialize database: %v", err)
	}
	defer db.Close()
	startup.LogDatabaseInit(time.Since(dbStart))

	runStartupMigration(ctx, db, config.AutoMigrate)

	// External tools and renderers
	startup.LogToolsInit(config.FFmpegPath, config.FFprobePath)
	if err := render.InitVips(); err != nil {
		logging.Warn("libvips unavailable, WebP mosaics will fail: %v", err)
	}
	defer render.ShutdownVips()

	renderer, err := render.New(render.Config{
		FFmpegPath: config.FFmpegPath,
		OutputDir:  config.OutputDir,
		Timeout:    config.GenerationTimeout,
	})
	if err != nil {
		startup.LogFatal("Failed to initialize renderer: %v", err)
	}
	extractor := scanner.NewFFprobeExtractor(config.FFprobePath, config.ProbeTimeout)

	// Concurrency controller
	throttleConfig := config.ThrottleConfig()
	ctrl := throttle.New(throttleConfig, throttle.NewSystemSampler())
	ctrl.Start(ctx)
	startup.LogThrottleInit(throttleConfig.MinPermits, throttleConfig.MaxPermits, ctrl.Capacity(), true)

	// Metrics
	var collector *metrics.Collector
	if config.MetricsEnabled {
		metrics.InitializeMetrics()
		filesystem.SetObserver(metrics.NewFilesystemObserver())
		collector = metrics.NewCollector(db, metricsCollectInterval)
		collector.Start()
		go updateDatabaseMetrics(ctx, db)
	}

	h := handlers.New(db, extractor, renderer, ctrl)
	router := setupRouter(h, config)
	startup.LogHTTPRoutes(router, config.LogHealthChecks)

	handler := middleware.Compression(middleware.DefaultCompressionConfig())(router)

	srv := &http.Server{
		Addr:              ":" + config.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      0, // POST /api/migrate runs synchronously
		IdleTimeout:       60 * time.Second,
	}

	done := make(chan struct{})
	go handleShutdown(srv, h, collector, stop, done)

	startup.LogServerStarted(startup.ServerConfig{
		Port:            config.Port,
		MetricsEnabled:  config.MetricsEnabled,
		StartupDuration: time.Since(startTime),
	})
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		startup.LogFatal("Server error: %v", err)
	}
	<-done
}

// runStartupMigration migrates a legacy store once, before anything else
// touches it. A failed migration leaves the store in its legacy state; the
// server still starts and reports the pending migration from /health.
func runStartupMigration(ctx context.Context, db *database.Database, autoMigrate bool) {
	engine := migration.NewEngine(db)
	pending, err := engine.Pending(ctx)
	if err != nil {
		startup.LogFatal("Failed to inspect schema: %v", err)
	}
	if pending && !autoMigrate {
		logging.Warn("Legacy schema present and AUTO_MIGRATE is off; run POST /api/migrate or mediactl migrate")
		return
	}

	start := time.Now()
	rows := 0
	if pending {
		var report *migration.Report
		report, err = engine.MigrateToNewSchema(ctx)
		if report != nil {
			rows = report.LegacyRows
		}
	}
	startup.LogMigrationResult(pending, rows, time.Since(start), err)
}

func setupRouter(h *handlers.Handlers, config *startup.Config) *mux.Router {
	r := mux.NewRouter()

	// Health and version routes
	r.HandleFunc("/health", h.HealthCheck).Methods("GET")
	r.HandleFunc("/livez", h.LivenessCheck).Methods("GET", "HEAD")
	r.HandleFunc("/readyz", h.ReadinessCheck).Methods("GET")
	r.HandleFunc("/version", h.GetVersion).Methods("GET")
	if config.MetricsEnabled {
		r.Handle("/metrics", h.MetricsHandler()).Methods("GET")
	}

	api := r.PathPrefix("/api").Subrouter()

	// Scans and generation jobs
	api.HandleFunc("/scans", h.StartScan).Methods("POST")
	api.HandleFunc("/scans/{id}", h.GetScan).Methods("GET")
	api.HandleFunc("/scans/{id}", h.CancelScan).Methods("DELETE")
	api.HandleFunc("/batches", h.StartBatch).Methods("POST")
	api.HandleFunc("/batches", h.ListBatches).Methods("GET")
	api.HandleFunc("/batches/{kind}/{id}", h.GetBatch).Methods("GET")
	api.HandleFunc("/jobs", h.ListJobs).Methods("GET")
	api.HandleFunc("/jobs/{id}", h.GetJob).Methods("GET")
	api.HandleFunc("/jobs/{id}", h.CancelJob).Methods("DELETE")

	// Registry
	api.HandleFunc("/movies", h.ListMovies).Methods("GET")
	api.HandleFunc("/movies/{id}", h.GetMovie).Methods("GET")
	api.HandleFunc("/library", h.GetLibrary).Methods("GET")
	api.HandleFunc("/stats", h.GetStats).Methods("GET")

	// Legacy migration
	api.HandleFunc("/migrate", h.GetMigrationStatus).Methods("GET")
	api.HandleFunc("/migrate", h.Migrate).Methods("POST")

	// Playlists
	api.HandleFunc("/playlists", h.ListPlaylists).Methods("GET")
	api.HandleFunc("/playlists", h.CreatePlaylist).Methods("POST")
	api.HandleFunc("/playlists/import", h.ImportPlaylist).Methods("POST")
	api.HandleFunc("/playlists/{id}", h.GetPlaylist).Methods("GET")
	api.HandleFunc("/playlists/{id}/items", h.AddPlaylistItem).Methods("POST")
	api.HandleFunc("/playlists/{id}/items/{position}", h.RemovePlaylistItem).Methods("DELETE")
	api.HandleFunc("/playlists/{id}/compact", h.CompactPlaylist).Methods("POST")

	loggingConfig := middleware.DefaultLoggingConfig()
	loggingConfig.LogHealthChecks = config.LogHealthChecks
	r.Use(mux.MiddlewareFunc(middleware.Logger(loggingConfig)))
	if config.MetricsEnabled {
		r.Use(mux.MiddlewareFunc(middleware.Metrics(middleware.DefaultMetricsConfig())))
	}

	return r
}

func updateDatabaseMetrics(ctx context.Context, db *database.Database) {
	ticker := time.NewTicker(databaseMetricsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			db.UpdateDBMetrics()
		}
	}
}

func handleShutdown(srv *http.Server, h *handlers.Handlers, collector *metrics.Collector, stop context.CancelFunc, done chan<- struct{}) {
	defer close(done)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	startup.LogShutdownInitiated(sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	startup.LogShutdownStep("Shutting down HTTP server")
	if err := srv.Shutdown(ctx); err != nil {
		logging.Warn("Server shutdown error: %v", err)
	} else {
		startup.LogShutdownStepComplete("HTTP server stopped")
	}

	startup.LogShutdownStep("Cancelling running jobs")
	if err := h.Shutdown(ctx); err != nil {
		logging.Warn("Jobs did not stop in time: %v", err)
	} else {
		startup.LogShutdownStepComplete("Jobs stopped")
	}

	if collector != nil {
		collector.Stop()
	}
	stop()

	startup.LogShutdownComplete()
}
