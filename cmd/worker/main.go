package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/mpf/internal/alerting"
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

	slog.Info("starting MPF matching worker",
		"workers", cfg.Vision.WorkerCount,
		"cpu_cores", runtime.NumCPU(),
	)

	if cfg.NATS.URL == "" {
		slog.Error("nats url is required for the worker")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := storage.Open(ctx, cfg.Database)
	if err != nil {
		slog.Error("open database", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	var blobs storage.BlobStore
	if cfg.MinIO.Endpoint != "" {
		minioStore, err := storage.NewMinIOStore(cfg.MinIO)
		if err != nil {
			slog.Error("connect to minio", "error", err)
			os.Exit(1)
		}
		blobs = minioStore
	} else {
		slog.Warn("minio not configured, matching on context only")
	}

	producer, err := queue.NewProducer(cfg.NATS.URL)
	if err != nil {
		slog.Error("connect to nats producer", "error", err)
		os.Exit(1)
	}
	defer producer.Close()

	if err := producer.EnsureStreams(ctx); err != nil {
		slog.Warn("ensure nats streams", "error", err)
	}

	hook := alerting.NewHook(store, producer)
	gateway := storage.NewCandidateGateway(store, blobs, models.RecordStatus(cfg.Matching.ActiveStatus))

	deps := matching.Deps{
		Candidates: gateway,
		Statuses:   gateway,
		Ledger:     ledger.New(store, hook),
		Alerts:     hook,
		Cache:      store,
	}

	if err := vision.InitRuntime(cfg.Vision.ONNXLibrary); err != nil {
		slog.Warn("onnx runtime unavailable, facial matching disabled", "error", err)
	} else {
		defer vision.ShutdownRuntime()
		faces, err := vision.NewFaceService(cfg.Vision)
		if err != nil {
			slog.Warn("face models unavailable, facial matching disabled", "error", err)
		} else {
			defer faces.Close()
			deps.Faces = faces
		}
	}

	eng := matching.NewEngine(matching.Config{
		FaceTolerance:    cfg.Matching.FaceTolerance,
		ContextThreshold: cfg.Matching.ContextThreshold,
		PendingStatus:    models.RecordStatus(cfg.Matching.PendingStatus),
	}, deps)

	handler := newTaskHandler(store, blobs, eng,
		models.RecordStatus(cfg.Matching.ActiveStatus),
		models.RecordStatus(cfg.Matching.PendingStatus))

	consumer, err := queue.NewConsumer(cfg.NATS.URL)
	if err != nil {
		slog.Error("create consumer", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()

	if err := consumer.ConsumeMatchTasks(ctx, "matching-workers", handler.handle, cfg.Vision.WorkerCount); err != nil {
		slog.Error("start match task consumer", "error", err)
		os.Exit(1)
	}

	// Metrics endpoint
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		})
		slog.Info("worker metrics listening", "addr", ":8082")
		if err := http.ListenAndServe(":8082", mux); err != nil {
			slog.Error("metrics server error", "error", err)
		}
	}()

	// Periodically report queue depth
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				depth, err := producer.QueueDepth(ctx)
				if err == nil {
					observability.QueueDepth.Set(float64(depth))
				}
			}
		}
	}()

	// Wait for shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down worker...")
	cancel()
	time.Sleep(2 * time.Second)
	slog.Info("worker stopped")
}
