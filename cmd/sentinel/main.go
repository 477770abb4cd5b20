package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/biostream/sentinel/internal/anomaly"
	"github.com/biostream/sentinel/internal/archive"
	"github.com/biostream/sentinel/internal/privacy"
	"github.com/biostream/sentinel/internal/shared/config"
	"github.com/biostream/sentinel/internal/shared/database"
	"github.com/biostream/sentinel/internal/shared/logging"
	"github.com/biostream/sentinel/internal/shared/metrics"
	secmiddleware "github.com/biostream/sentinel/internal/shared/middleware"
	"github.com/biostream/sentinel/internal/telemetry"
)

// Ingest rate limits. Devices report on fixed intervals, so sustained load
// above this means a misconfigured fleet, not legitimate traffic.
const (
	ingestRatePerSecond = 200
	ingestBurst         = 100
)

// App holds all application dependencies
type App struct {
	Config   *config.Config
	Log      *zap.Logger
	DB       *database.DB
	Detector *anomaly.Detector
	Service  *telemetry.Service
}

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logging.New(cfg.Logging.Level, cfg.Logging.Format, "biostream-sentinel")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	app := &App{Config: cfg, Log: log}

	// Hot store
	db, err := database.New(ctx, cfg.Database)
	if err != nil {
		log.Fatal("hot store not available", zap.Error(err))
	}
	app.DB = db
	defer db.Close()

	if err := database.Migrate(ctx, db.Pool, log); err != nil {
		log.Fatal("migration failed", zap.Error(err))
	}

	// Cold store
	objStore, err := archive.NewClient(cfg.ObjectStore)
	if err != nil {
		log.Fatal("object store client failed", zap.Error(err))
	}
	archiver := archive.NewArchiver(objStore, cfg.ObjectStore.Bucket, log)
	if err := archiver.EnsureBucket(ctx); err != nil {
		// Archive is best effort; the first successful flush will still
		// need the bucket, so surface this loudly.
		log.Error("archive bucket check failed", zap.Error(err))
	}

	// Anomaly model: train before serving so concurrent scoring only ever
	// sees a frozen model.
	app.Detector = anomaly.NewDetector(log, cfg.Anomaly.HighThreshold, cfg.Anomaly.MediumThreshold)
	app.Detector.TrainBaseline()
	metrics.SetModelReady(true)

	repo := telemetry.NewPostgresRepository(db.Pool)
	anonymizer := privacy.NewAnonymizer(cfg.Privacy.PIISalt)
	app.Service = telemetry.NewService(log, repo, app.Detector, anonymizer, archiver, cfg.Anomaly.BatchSize)

	handler := telemetry.NewHandler(app.Service, repo)

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(secmiddleware.SecurityHeaders)
	r.Use(metrics.Middleware)

	// Health checks (unauthenticated)
	r.Get("/health", healthHandler(app))
	r.Get("/ready", readyHandler(app))
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(secmiddleware.RateLimiter(ingestRatePerSecond, ingestBurst))
		api.Mount("/", handler.Routes())
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info("server listening",
			zap.Int("port", cfg.Server.Port),
			zap.String("env", cfg.Server.Env),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown failed", zap.Error(err))
	}
	// Drain the archive buffer after the server stops accepting readings.
	if err := app.Service.Close(shutdownCtx); err != nil {
		log.Error("final archive drain failed", zap.Error(err))
	}
}

func healthHandler(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func readyHandler(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !app.Detector.Ready() {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"reason": "anomaly model not trained",
			})
			return
		}
		if err := app.DB.Health(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"reason": "hot store unreachable",
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
