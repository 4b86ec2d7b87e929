package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hkuds/ugate/internal/config"
	"github.com/hkuds/ugate/internal/cron"
	"github.com/hkuds/ugate/internal/server"
	"github.com/hkuds/ugate/internal/telemetry"
	"github.com/hkuds/ugate/internal/transports"
	"github.com/spf13/cobra"
)

const shutdownGrace = 10 * time.Second

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Start the vendor gateway",
	Long:  "Start the HTTP gateway that serves the enabled vendor transports and bridges them to the message bus.",
	RunE:  runGateway,
}

func runGateway(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config:\n%w", err)
	}

	logger, logCloser, err := telemetry.InitLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to init logging: %w", err)
	}
	defer logCloser.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tracer, shutdownTracing, err := telemetry.InitTracing(ctx, cfg.Tracing, Version)
	if err != nil {
		return fmt.Errorf("failed to init tracing: %w", err)
	}
	defer shutdownTracing()

	broker, closeBroker, err := openBroker(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to open %s bus: %w", cfg.Bus.Type, err)
	}
	defer closeBroker()

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open %s session store: %w", cfg.Sessions.Store, err)
	}
	defer closeStore()

	manager := transports.NewManager(cfg, broker, store, tracer, logger)
	if err := manager.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize transports: %w", err)
	}
	if err := manager.StartAll(ctx); err != nil {
		manager.StopAll()
		return err
	}

	scheduler := cron.NewScheduler(logger)
	if cfg.Sessions.SweepSchedule != "" {
		if err := scheduler.Add(housekeeping(cfg.Sessions.SweepSchedule, store, manager)); err != nil {
			manager.StopAll()
			return err
		}
	}
	if err := scheduler.Start(ctx); err != nil {
		manager.StopAll()
		return err
	}
	defer scheduler.Stop()

	srv := server.New(cfg, manager, logger)

	// Handle signals for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.ListenAndServe()
	}()

	logger.Info("gateway running",
		"addr", srv.Addr(),
		"bus", broker.Type(),
		"sessions", cfg.Sessions.Store,
		"transports", manager.List())

	select {
	case sig := <-sigChan:
		logger.Info("shutting down gateway", "signal", sig.String())
	case err := <-serveErr:
		manager.StopAll()
		return err
	}

	// Drain in-flight requests first so pending USSD replies can still be
	// consumed, then stop the consumers.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("gateway shutdown timed out", "err", err)
	}
	if err := manager.StopAll(); err != nil {
		logger.Error("failed to stop transports", "err", err)
	}
	cancel()

	logger.Info("gateway stopped")
	return nil
}
