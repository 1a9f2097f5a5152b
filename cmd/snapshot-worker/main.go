// Command snapshot-worker consumes ledger snapshots published by the amqp
// sync provider and keeps the newest ones on disk.
package main

import (
	"context"
	"errors"
	"os"

	"golang.org/x/sync/errgroup"

	"pocketledger/internal/amqp"
	"pocketledger/internal/cli"
	applog "pocketledger/internal/log"
	"pocketledger/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentWorker)
	cfg := cli.LoadAndValidateConfig(logger)

	if !cfg.MessagingEnabled() {
		logger.Error("snapshot-worker requires AMQP_URL")
		os.Exit(1)
	}

	archiver, err := worker.NewSnapshotArchiver(cfg.ArchiveDir, cfg.ArchiveKeep)
	if err != nil {
		logger.Error("Failed to initialize snapshot archive", applog.FieldError, err, "dir", cfg.ArchiveDir)
		os.Exit(1)
	}

	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPSnapshotsQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", applog.FieldError, err)
		os.Exit(1)
	}
	defer client.Close()

	logger.Info("Starting snapshot-worker",
		"queue", cfg.AMQPSnapshotsQueue,
		"archive_dir", cfg.ArchiveDir,
		"keep", cfg.ArchiveKeep)

	ctx, done := cli.GracefulShutdown(logger.Slog(), cfg.ShutdownTimeout, nil)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := client.ConsumeSnapshots(gctx, archiver.HandleSnapshotMessage)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	if err := g.Wait(); err != nil {
		logger.Error("Snapshot consumption failed", applog.FieldError, err)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("snapshot-worker stopped")
}
