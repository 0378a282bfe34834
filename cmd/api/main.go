package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/your-org/mpf/internal/alerting"
	"github.com/your-org/mpf/internal/api"
	"github.com/your-org/mpf/internal/api/handlers"
	"github.com/your-org/mpf/internal/api/ws"
	"github.com/your-org/mpf/internal/config"
	"github.com/your-org/mpf/internal/ledger"
	"github.com/your-org/mpf/internal/matching"
	"github.com/your-org/mpf/internal/models"
	"github.com/your-org/mpf/internal/observability"
	"github.com/your-org/mpf/internal/queue"
	"github.com/your-org/mpf/internal/storage"
	"github.com/your-org/mpf/internal/vision"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("starting MPF API service", "port", cfg.Server.Port, "db", cfg.Database.Driver)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := storage.Open(ctx, cfg.Database)
	if err != nil {
		slog.Error("open database", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	checks := map[string]handlers.Check{"database": store.Ping}

	// Photo storage is optional; without it submissions carry no photo.
	var blobs storage.BlobStore
	if cfg.MinIO.Endpoint != "" {
		minioStore, err := storage.NewMinIOStore(cfg.MinIO)
		if err != nil {
			slog.Error("connect to minio", "error", err)
			os.Exit(1)
		}
		if err := minioStore.EnsureBucket(ctx); err != nil {
			slog.Warn("ensure minio bucket", "error", err)
		}
		blobs = minioStore
		checks["minio"] = minioStore.Ping
	} else {
		slog.Warn("minio not configured, photo uploads disabled")
	}

	hub := ws.NewHub()
	go hub.Run(ctx)

	var tasks handlers.TaskPublisher
	var publisher alerting.Publisher = hub
	if cfg.NATS.URL != "" {
		producer, err := queue.NewProducer(cfg.NATS.URL)
		if err != nil {
			slog.Error("connect to nats", "error", err)
			os.Exit(1)
		}
		defer producer.Close()

		if err := producer.EnsureStreams(ctx); err != nil {
			slog.Warn("ensure nats streams", "error", err)
		}
		tasks = producer
		publisher = producer
		checks["nats"] = func(context.Context) error { return producer.Ping() }

		// Alerts raised by workers and by this process reach WebSocket clients through ALERTS.
		consumer, err := queue.NewConsumer(cfg.NATS.URL)
		if err != nil {
			slog.Error("create alert consumer", "error", err)
			os.Exit(1)
		}
		defer consumer.Close()

		err = consumer.ConsumeAlerts(ctx, "api-alerts", func(_ context.Context, n models.Notification) error {
			return hub.Broadcast(&n)
		})
		if err != nil {
			slog.Warn("start alert consumer", "error", err)
		}
	} else {
		slog.Warn("nats not configured, matching runs will not be queued")
	}

	hook := alerting.NewHook(store, publisher)
	matchLedger := ledger.New(store, hook)

	var estimator handlers.AgeGenderEstimator
	var searcher handlers.PhotoSearcher
	if err := vision.InitRuntime(cfg.Vision.ONNXLibrary); err != nil {
		slog.Warn("onnx runtime unavailable, age and gender estimation disabled", "error", err)
	} else {
		defer vision.ShutdownRuntime()
		faces, err := vision.NewFaceService(cfg.Vision)
		if err != nil {
			slog.Warn("face models unavailable, age and gender estimation disabled", "error", err)
		} else {
			defer faces.Close()
			estimator = faces
			searcher = matching.NewEngine(matching.Config{
				FaceTolerance:    cfg.Matching.FaceTolerance,
				ContextThreshold: cfg.Matching.ContextThreshold,
				PendingStatus:    models.RecordStatus(cfg.Matching.PendingStatus),
			}, matching.Deps{
				Faces:      faces,
				Candidates: storage.NewCandidateGateway(store, blobs, models.RecordStatus(cfg.Matching.ActiveStatus)),
				Cache:      store,
			})
		}
	}

	router := api.NewRouter(api.RouterConfig{
		APIKey:   cfg.Server.APIKey,
		Store:    store,
		Blobs:    blobs,
		Ledger:   matchLedger,
		Alerts:   hook,
		Hub:      hub,
		Checks:   checks,
		Searcher: searcher,
		Records: handlers.RecordOptions{
			Tasks:         tasks,
			Estimator:     estimator,
			ActiveStatus:  models.RecordStatus(cfg.Matching.ActiveStatus),
			PendingStatus: models.RecordStatus(cfg.Matching.PendingStatus),
		},
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("API server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down API server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("API server stopped")
}
