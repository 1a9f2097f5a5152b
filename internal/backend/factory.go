package backend

import (
	"context"
	"fmt"
	"log/slog"

	"pocketledger/internal/amqp"
	"pocketledger/internal/cloudsync"
	gsheet "pocketledger/internal/sheets/google"
	"pocketledger/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{logger: logger}
}

func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case MemoryBackend:
		f.logger.InfoContext(ctx, "Initialized memory backend")
		return &BackendResult{Backend: storage.NewMemoryStore()}, nil

	case FileBackend:
		store, err := storage.NewFileStore(config.DataDirectory)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize file backend: %w", err)
		}
		f.logger.InfoContext(ctx, "Initialized file backend", "data_directory", config.DataDirectory)
		return &BackendResult{Backend: store}, nil

	case SQLiteBackend:
		store, err := storage.NewSQLiteStore(config.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite backend: %w", err)
		}
		f.logger.InfoContext(ctx, "Initialized SQLite backend", "db_path", config.SQLiteDBPath)
		return &BackendResult{Backend: store, Cleanup: store.Close}, nil

	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) CreateUploader(ctx context.Context, config SyncConfig) (*UploaderResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Provider {
	case "", cloudsync.ProviderLocal:
		f.logger.InfoContext(ctx, "Cloud sync keeps a local shadow only")
		return &UploaderResult{Uploader: cloudsync.LocalUploader{}}, nil

	case cloudsync.ProviderAMQP:
		client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize AMQP client: %w", err)
		}
		f.logger.InfoContext(ctx, "Cloud sync publishes snapshots over AMQP",
			"exchange", config.AMQPExchange,
			"queue", config.AMQPQueue)
		return &UploaderResult{Uploader: cloudsync.NewAMQPUploader(client), Cleanup: client.Close}, nil

	case cloudsync.ProviderSheets:
		client, err := gsheet.New(ctx, gsheet.Config{
			SpreadsheetID:   config.GoogleSpreadsheetID,
			SheetName:       config.GoogleSheetName,
			CredentialsJSON: config.GoogleServiceAccountJSON,
			CredentialsFile: config.GoogleServiceAccountFile,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
		}
		f.logger.InfoContext(ctx, "Cloud sync writes to Google Sheets", "sheet", config.GoogleSheetName)
		return &UploaderResult{Uploader: cloudsync.NewSheetsUploader(client, config.SheetLocation)}, nil

	default:
		return nil, fmt.Errorf("unsupported sync provider: %s", config.Provider)
	}
}
