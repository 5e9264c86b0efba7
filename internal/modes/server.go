package modes

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"vigilstream/internal/vigil/catalog"
	"vigilstream/internal/vigil/classifier"
	"vigilstream/internal/vigil/objectstore"
	"vigilstream/internal/vigil/pipeline"
	"vigilstream/internal/vigil/pubsub"
	"vigilstream/internal/vigil/server"
	"vigilstream/internal/vigil/service"
	"vigilstream/internal/vigil/supervisor"
	"vigilstream/pkg/clock"
	"vigilstream/pkg/config"
	"vigilstream/pkg/logger"
)

// RunServer wires every component from cfg and serves gRPC and HTTP until
// SIGINT or SIGTERM.
func RunServer(cfg *config.Config) error {
	if err := SetupLogger(cfg.Logging); err != nil {
		return err
	}
	log := logger.WithField("mode", "server")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := catalog.Open(cfg.Catalog)
	if err != nil {
		return fmt.Errorf("failed to open catalog: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warn("failed to close catalog", "error", err)
		}
	}()

	objects, err := objectstore.Open(ctx, cfg.ObjectStore)
	if err != nil {
		return fmt.Errorf("failed to open object store: %w", err)
	}

	bus := pubsub.New(pubsub.Options{
		SendTimeout: cfg.Bus.SendTimeout,
		Buffer:      cfg.Bus.SubscriberBuffer,
	})

	manager := pipeline.NewManager(pipeline.Dependencies{
		Catalog:    store,
		Metadata:   objects,
		Classifier: classifier.NewKeyword(cfg.Classifier.Denylist),
		Publisher:  bus,
		Clock:      clock.Real(),
	}, pipeline.Options{
		Step:              cfg.Pipeline.Step,
		Interval:          cfg.Pipeline.Interval,
		PersistEvery:      cfg.Pipeline.PersistEvery,
		MaxConcurrentJobs: cfg.Pipeline.MaxConcurrentJobs,
		MetadataTimeout:   cfg.Pipeline.MetadataTimeout,
	})

	svc := service.New(service.Dependencies{
		Catalog: store,
		Users:   store,
		Store:   objects,
		Jobs:    manager,
		Bus:     bus,
	})

	var sup *supervisor.Supervisor
	if cfg.Supervisor.Enabled {
		sup, err = supervisor.New(store, manager, cfg.Supervisor.Schedule)
		if err != nil {
			return err
		}
		if err := sup.Start(ctx); err != nil {
			return fmt.Errorf("failed to start supervisor: %w", err)
		}
	}

	// watch streams end on this context, before the listeners drain
	streams, stopStreams := context.WithCancel(context.Background())
	defer stopStreams()

	grpcServer, err := server.NewGRPCServer(cfg.Security,
		server.NewMediaServiceServer(streams, svc, bus, cfg.Server.KeepAliveEvery))
	if err != nil {
		return fmt.Errorf("failed to create gRPC server: %w", err)
	}
	lis, err := net.Listen("tcp", cfg.Server.GRPCAddress)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.Server.GRPCAddress, err)
	}

	mediaDir := ""
	if local, ok := objects.(*objectstore.Local); ok {
		mediaDir = local.Root()
	}
	handler := server.NewHandler(streams, svc, bus, cfg.Server.KeepAliveEvery)
	httpServer := &http.Server{
		Addr:              cfg.Server.HTTPAddress,
		Handler:           server.WithCORS(server.NewRouter(handler, mediaDir), cfg.Server.AllowedOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("starting gRPC server", "address", cfg.Server.GRPCAddress, "tlsEnabled", cfg.Security.EnableTLS)
		if err := grpcServer.Serve(lis); err != nil {
			return fmt.Errorf("gRPC server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		log.Info("starting HTTP server", "address", cfg.Server.HTTPAddress, "mediaDir", mediaDir)
		if err := httpServer.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("received shutdown signal, stopping server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if sup != nil {
			if err := sup.Stop(shutdownCtx); err != nil {
				log.Warn("supervisor did not stop in time", "error", err)
			}
		}

		grpcServer.Drain()
		stopStreams()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Warn("HTTP server shutdown incomplete", "error", err)
		}
		gracefulStop(shutdownCtx, grpcServer, log)

		if err := manager.Shutdown(shutdownCtx); err != nil {
			log.Warn("processing jobs did not stop in time", "error", err)
		}
		bus.Close()

		log.Info("server stopped gracefully")
		return nil
	})

	log.Info("server started successfully",
		"httpAddress", cfg.Server.HTTPAddress,
		"grpcAddress", cfg.Server.GRPCAddress,
		"catalog", cfg.Catalog.Driver,
		"objectStore", cfg.ObjectStore.Driver)

	return g.Wait()
}

func gracefulStop(ctx context.Context, s *server.GRPCServer, log *logger.Logger) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.GracefulStop()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		log.Warn("graceful stop timed out, forcing gRPC server stop")
		s.Stop()
	}
}

// SetupLogger applies the logging section to the global logger.
func SetupLogger(cfg config.LoggingConfig) error {
	level := logger.INFO
	if cfg.Level != "" {
		parsed, err := logger.ParseLevel(cfg.Level)
		if err != nil {
			return err
		}
		level = parsed
	}

	out := os.Stdout
	switch cfg.Output {
	case "", "stdout":
	case "stderr":
		out = os.Stderr
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open log file %s: %w", cfg.Output, err)
		}
		out = f
	}

	logger.Configure(logger.Config{Level: level, Output: out, Format: cfg.Format})
	return nil
}
