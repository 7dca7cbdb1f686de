package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/inkvault/inkvault/internal/logger"
	"github.com/inkvault/inkvault/pkg/api"
	"github.com/inkvault/inkvault/pkg/blob"
	"github.com/inkvault/inkvault/pkg/config"
	"github.com/inkvault/inkvault/pkg/coordination"
	"github.com/inkvault/inkvault/pkg/events"
	"github.com/inkvault/inkvault/pkg/fileservice"
	"github.com/inkvault/inkvault/pkg/inference"
	"github.com/inkvault/inkvault/pkg/integrity"
	"github.com/inkvault/inkvault/pkg/metrics"
	"github.com/inkvault/inkvault/pkg/processor"
	"github.com/inkvault/inkvault/pkg/search"
	"github.com/inkvault/inkvault/pkg/signer"
	"github.com/inkvault/inkvault/pkg/store"
	"github.com/inkvault/inkvault/pkg/syncsvc"
	"github.com/inkvault/inkvault/pkg/userservice"
	"github.com/inkvault/inkvault/pkg/vfs"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the InkVault server",
	Long: `Start the InkVault server with the specified configuration.

The server hosts the device sync API, the web API and the signed-URL
transfer routes on a single port, and runs the content pipeline in the
background when a notebook rasterizer is configured.

Use --config to specify a custom configuration file, or it will use the
default location at $XDG_CONFIG_HOME/inkvault/config.yaml.

Examples:
  # Start with default config location
  inkvault serve

  # Start with custom config file
  inkvault serve --config /etc/inkvault/config.yaml

  # Start with environment variable overrides
  INKVAULT_LOGGING_LEVEL=DEBUG inkvault serve`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	if err := InitLogger(cfg); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger.Info("configuration loaded", "source", getConfigSource(GetConfigFile()))

	s, err := store.New(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer func() {
		if err := s.Close(); err != nil {
			logger.Error("store close error", logger.Err(err))
		}
	}()

	coord := coordination.NewSQL(s)

	blobs, err := blob.NewStore(blob.Config{Root: cfg.Storage.Root})
	if err != nil {
		return fmt.Errorf("failed to initialize blob store: %w", err)
	}
	chunks, err := blob.NewChunkStore(blob.Config{Root: cfg.Storage.Root}, blobs)
	if err != nil {
		return fmt.Errorf("failed to initialize chunk store: %w", err)
	}
	logger.Info("storage initialized", "root", cfg.Storage.Root, "allocation", cfg.Storage.Allocation.String())

	sgn := signer.New(cfg.Signer.Secret, coord, cfg.Signer.MaxAge)
	bus := events.NewBus()

	files := fileservice.New(fileservice.Config{
		Allocation: int64(cfg.Storage.Allocation),
	}, vfs.New(s), blobs, chunks, sgn, bus)

	users := userservice.New(cfg.Users, s, coord, files)
	syncCoord := syncsvc.New(coord, files, cfg.Sync.LeaseTTL)

	var infer inference.Client
	if cfg.Inference.BaseURL != "" {
		infer = inference.NewLimited(inference.NewHTTP(cfg.Inference), cfg.Inference.MaxConcurrent)
		logger.Info("inference client configured",
			"base_url", cfg.Inference.BaseURL,
			"max_concurrent", cfg.Inference.MaxConcurrent)
	} else {
		logger.Info("inference disabled, pages will not be transcribed or indexed")
	}

	metricsEnabled := cfg.Metrics.IsEnabled()

	var proc *processor.Service
	if cfg.Processor.RenderCommand != "" {
		var procMetrics *processor.Metrics
		if metricsEnabled {
			procMetrics = processor.NewMetrics(prometheus.DefaultRegisterer)
		}
		renderer := processor.NewCommandRenderer(cfg.Processor.RenderCommand)
		proc = processor.New(cfg.Processor, s, blobs, renderer, infer, bus, procMetrics)
		if err := proc.Start(ctx); err != nil {
			return fmt.Errorf("failed to start processor: %w", err)
		}
		logger.Info("content pipeline started",
			"render_command", cfg.Processor.RenderCommand,
			"workers", cfg.Processor.Concurrency)
	} else {
		logger.Info("content pipeline disabled, no render command configured")
	}

	var httpMetrics *metrics.HTTPMetrics
	if metricsEnabled {
		httpMetrics = metrics.NewHTTPMetrics(prometheus.DefaultRegisterer)
		logger.Info("metrics enabled")
	} else {
		logger.Info("metrics collection disabled")
	}

	apiServer := api.NewServer(cfg.HTTP, api.Deps{
		Users:     users,
		Files:     files,
		Sync:      syncCoord,
		Search:    search.New(s, infer),
		Integrity: integrity.New(s, blobs),
		Metrics:   httpMetrics,
	})

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- apiServer.Start(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("server is running, press Ctrl+C to stop")

	select {
	case <-sigChan:
		signal.Stop(sigChan)
		logger.Info("shutdown signal received, initiating graceful shutdown")
		cancel()
		if err := <-serverDone; err != nil {
			logger.Error("server shutdown error", logger.Err(err))
		}
	case err := <-serverDone:
		signal.Stop(sigChan)
		if err != nil {
			cancel()
			drainProcessor(proc, cfg.ShutdownTimeout)
			return err
		}
	}

	// The HTTP side is drained; let in-flight pipeline work settle
	// before releasing the store. Interrupted files are recovered on
	// the next start.
	drainProcessor(proc, cfg.ShutdownTimeout)

	logger.Info("server stopped gracefully")
	return nil
}

func drainProcessor(proc *processor.Service, timeout time.Duration) {
	if proc == nil {
		return
	}
	done := make(chan struct{})
	go func() {
		proc.Shutdown()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		logger.Warn("processor drain timed out", "timeout", timeout.String())
	}
}
