// Package app wires the gauge link, write coordinator, history backends, and
// management API together and owns the process lifecycle.
package app

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/boxboy523/inzi/internal/aggregator"
	"github.com/boxboy523/inzi/internal/controller"
	"github.com/boxboy523/inzi/internal/controllers/management"
	"github.com/boxboy523/inzi/internal/gauge"
	"github.com/boxboy523/inzi/internal/log"
	"github.com/boxboy523/inzi/internal/managers"
	"github.com/boxboy523/inzi/internal/types"
	"github.com/boxboy523/inzi/pkg/config"
	"github.com/boxboy523/inzi/pkg/focas"
	"go.uber.org/zap"
)

// App represents the main application
type App struct {
	configProvider config.ConfigProvider
	driver         focas.Driver
	logger         *zap.SugaredLogger
}

// New creates a new application instance
func New(configProvider config.ConfigProvider, driver focas.Driver, logger *zap.SugaredLogger) *App {
	return &App{
		configProvider: configProvider,
		driver:         driver,
		logger:         logger,
	}
}

// Run starts the application and blocks until shutdown
func (a *App) Run(ctx context.Context) error {
	var wg sync.WaitGroup

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Initialize the history manager
	historyManager, err := managers.NewHistoryManager(ctx, &wg, a.configProvider)
	if err != nil {
		return err
	}

	// Initialize the machine manager and its controller sessions
	machineManager, err := managers.NewMachineManager(ctx, a.configProvider, managers.DriverForMachine(a.driver), a.logger)
	if err != nil {
		return err
	}

	// Initialize the write coordinator and batch aggregator
	coordinator := controller.NewCoordinator(ctx, &wg, machineManager.Sessions(), machineManager.Profiles(), historyManager.RecordDistributor, a.logger)
	agg := aggregator.New(machineManager.Machines(), coordinator, a.logger)
	coordinator.SetAggregator(agg)

	measurements := make(chan types.Measurement, 20)
	coordinator.Run(measurements)

	// Initialize the gauge link
	link, err := gauge.NewLink(ctx, &wg, a.configProvider, measurements, a.logger)
	if err != nil {
		return err
	}
	if err := link.Start(); err != nil {
		return err
	}

	// Start the out-of-band offset change poller
	poller := controller.NewDiffPoller(ctx, &wg, coordinator, historyManager.RecordDistributor, a.logger)
	poller.Run()

	// Initialize the management API when configured
	mgmt, err := a.configProvider.GetManagement()
	if err != nil {
		return err
	}
	if mgmt != nil {
		mc, err := management.NewController(ctx, &wg, *mgmt, management.Deps{
			ConfigProvider: a.configProvider,
			Link:           link,
			Sessions:       machineManager.Sessions(),
			Coordinator:    coordinator,
			Aggregator:     agg,
			Querier:        historyManager.Querier(),
		}, a.logger)
		if err != nil {
			return err
		}
		if err := mc.StartController(); err != nil {
			return err
		}
	}

	log.Info("Application started successfully")

	// Set up signal handling
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	// Wait for shutdown signal
	select {
	case <-sigs:
		log.Info("shutdown signal received, initiating graceful shutdown...")
	case <-ctx.Done():
		log.Info("context cancelled, shutting down...")
	}

	// Cancel context to signal all goroutines to stop
	cancel()

	// Wait for all workers to terminate
	log.Info("waiting for all workers to terminate...")
	wg.Wait()

	// Release controller handles after all writers have stopped
	machineManager.Close()
	log.Info("shutdown complete")

	return nil
}
