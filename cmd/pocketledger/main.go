// Command pocketledger serves the ledger over HTTP. Depending on
// configuration it also relays ledger events to RabbitMQ and syncs
// snapshots to the configured cloud provider on a cron schedule.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"sync"

	"golang.org/x/sync/errgroup"

	"pocketledger/internal/amqp"
	"pocketledger/internal/backend"
	"pocketledger/internal/cli"
	"pocketledger/internal/cloudsync"
	apphttp "pocketledger/internal/http"
	"pocketledger/internal/ledger"
	applog "pocketledger/internal/log"
	"pocketledger/internal/security"
	"pocketledger/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger)

	logger.Info("Starting pocketledger",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"sync_provider", cfg.SyncProvider,
		"messaging", cfg.MessagingEnabled())

	initCtx := context.Background()
	factory := backend.NewFactory(logger.WithComponent(applog.ComponentBackend).Slog())

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", applog.FieldError, err)
		os.Exit(1)
	}
	storeRes, err := factory.CreateBackend(initCtx, backendCfg)
	if err != nil {
		logger.Error("Failed to initialize storage backend", applog.FieldError, err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	defer storeRes.Close()

	store := ledger.New(storeRes.Backend, ledger.WithLogger(logger.Logger))
	if cfg.SeedDefaultWallets {
		if err := store.SeedIfEmpty(initCtx); err != nil {
			logger.Error("Failed to seed default wallets", applog.FieldError, err)
			os.Exit(1)
		}
	}
	if drifts, err := store.Reconcile(initCtx); err != nil {
		logger.Error("Failed to load ledger", applog.FieldError, err)
		os.Exit(1)
	} else if len(drifts) > 0 {
		logger.Warn("Wallet balances disagree with transaction history", "wallets", len(drifts))
	}

	transform := security.NewTransform(cfg.BackupPassphrase)
	pins := security.NewPINVault(storeRes.Backend)

	syncCfg, err := backend.SyncFromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid sync configuration", applog.FieldError, err)
		os.Exit(1)
	}
	uploaderRes, err := factory.CreateUploader(initCtx, syncCfg)
	if err != nil {
		logger.Error("Failed to initialize sync provider", applog.FieldError, err, "provider", cfg.SyncProvider)
		os.Exit(1)
	}
	defer uploaderRes.Close()

	syncer := cloudsync.NewSyncer(store, storeRes.Backend, transform, uploaderRes.Uploader,
		cloudsync.WithLogger(logger.Logger))

	var scheduler *cloudsync.Scheduler
	if cfg.SyncSchedule != "" {
		scheduler, err = cloudsync.NewScheduler(syncer, cfg.SyncSchedule)
		if err != nil {
			logger.Error("Failed to create sync scheduler", applog.FieldError, err)
			os.Exit(1)
		}
	}

	var relay *services.EventRelay
	if cfg.MessagingEnabled() {
		eventsClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPEventsQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", applog.FieldError, err)
			os.Exit(1)
		}
		defer eventsClient.Close()
		relay = services.NewEventRelay(store, eventsClient, services.DefaultEventRelayConfig())
	} else {
		logger.Info("Messaging disabled - no AMQP_URL provided")
	}

	srv := apphttp.NewServer(apphttp.Config{
		Addr:            ":" + cfg.Port,
		RateLimitRPM:    cfg.RateLimitRPM,
		ReportCacheSize: cfg.ReportCacheSize,
		ReportCacheTTL:  cfg.ReportCacheTTL,
	}, apphttp.Deps{
		Ledger:    store,
		Logger:    logger,
		Sync:      syncer,
		PINs:      pins,
		Transform: transform,
	})

	var stopOnce sync.Once
	stopAll := func(ctx context.Context) {
		stopOnce.Do(func() {
			if err := srv.Shutdown(ctx); err != nil {
				logger.Error("Server shutdown error", applog.FieldError, err)
			}
			if scheduler != nil {
				if err := scheduler.Stop(ctx); err != nil {
					logger.Warn("Sync scheduler did not stop in time", applog.FieldError, err)
				}
			}
			if relay != nil {
				if err := relay.Stop(ctx); err != nil {
					logger.Warn("Event relay did not stop in time", applog.FieldError, err)
				}
			}
		})
	}

	ctx, done := cli.GracefulShutdown(logger.Slog(), cfg.ShutdownTimeout, stopAll)

	if relay != nil {
		if err := relay.Start(ctx); err != nil {
			logger.Error("Failed to start event relay", applog.FieldError, err)
			os.Exit(1)
		}
	}
	if scheduler != nil {
		scheduler.Start()
	}

	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("HTTP server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server error", applog.FieldError, err, "port", cfg.Port)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		stopAll(shutdownCtx)
		cancel()
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
