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

	"github.com/your-org/dermascan/internal/analysis"
	"github.com/your-org/dermascan/internal/api"
	"github.com/your-org/dermascan/internal/api/handlers"
	"github.com/your-org/dermascan/internal/api/ws"
	"github.com/your-org/dermascan/internal/barcode"
	"github.com/your-org/dermascan/internal/camera"
	"github.com/your-org/dermascan/internal/capture"
	"github.com/your-org/dermascan/internal/config"
	"github.com/your-org/dermascan/internal/observability"
	"github.com/your-org/dermascan/internal/profile"
	"github.com/your-org/dermascan/internal/queue"
	"github.com/your-org/dermascan/internal/scanner"
	"github.com/your-org/dermascan/internal/storage"
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

	slog.Info("starting DermaScan station", "port", cfg.Server.Port, "storage", cfg.Storage.Driver)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := storage.Open(ctx, cfg)
	if err != nil {
		slog.Error("open store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	checks := []handlers.Check{{Name: "store", Ping: store.Ping}}

	// Snapshots are optional
	var minioStore *storage.MinIOStore
	if cfg.MinIO.Enabled() {
		minioStore, err = storage.NewMinIOStore(cfg.MinIO)
		if err != nil {
			slog.Error("connect to minio", "error", err)
			os.Exit(1)
		}
		if err := minioStore.EnsureBucket(ctx); err != nil {
			slog.Warn("ensure minio bucket", "error", err)
		}
		checks = append(checks, handlers.Check{Name: "minio", Ping: minioStore.Ping})
	}

	// WebSocket hub
	hub := ws.NewHub()
	go hub.Run()

	record := api.ScanRecorder(store, hub)

	// Scan history goes through NATS when configured, straight to the store otherwise.
	var publisher scanner.Publisher
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

		consumer, err := queue.NewConsumer(cfg.NATS.URL)
		if err != nil {
			slog.Error("create scan consumer", "error", err)
			os.Exit(1)
		}
		defer consumer.Close()

		if err := consumer.ConsumeScans(ctx, "api-history", record); err != nil {
			slog.Warn("start scan consumer", "error", err)
		}

		publisher = producer
		checks = append(checks, handlers.Check{Name: "nats", Ping: func(context.Context) error { return producer.Ping() }})
	} else {
		publisher = queue.NewLocal(record)
	}

	decoder, err := barcode.NewDecoder(cfg.Decoder.Formats, cfg.Decoder.TryHarder)
	if err != nil {
		slog.Error("create barcode decoder", "error", err)
		os.Exit(1)
	}
	cam := camera.NewFFmpegCamera(cfg.Camera)

	deps := scanner.Deps{
		Profiles:  store,
		Publisher: publisher,
		OnChange:  api.StateBroadcaster(hub),
	}
	if minioStore != nil {
		deps.Snapshots = minioStore
	}

	build := func(id profile.Identity) (*scanner.Flow, error) {
		d := deps
		d.Capture = capture.NewController(cam, decoder, camera.Facing(cfg.Camera.Facing))
		d.Analyzer = analysis.NewClient(cfg.Analysis)
		return scanner.New(id, d), nil
	}

	identity, err := profile.NewIdentity(cfg.Identity.UserID)
	if err != nil {
		slog.Error("station identity", "error", err)
		os.Exit(1)
	}
	station, err := scanner.NewStation(identity, build)
	if err != nil {
		slog.Error("create station", "error", err)
		os.Exit(1)
	}

	probe := analysis.NewClient(cfg.Analysis)
	checks = append(checks, handlers.Check{Name: "analysis", Ping: probe.Health})

	router := api.NewRouter(api.RouterConfig{
		APIKey:  cfg.Server.APIKey,
		Station: station,
		Store:   store,
		MinIO:   minioStore,
		Hub:     hub,
		Checks:  checks,
	})

	// Manual analysis blocks on the remote service, so the write timeout
	// leaves room for a slow analysis.
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
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

	slog.Info("shutting down station...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	// Releases the camera before the store and queue close.
	station.Close()
	hub.Close()
	cancel()

	slog.Info("station stopped")
}
