package backend

import (
	"fmt"
	"time"

	"pocketledger/internal/cloudsync"
	"pocketledger/internal/config"
)

// Config holds configuration for backend creation
type Config struct {
	Type          BackendType
	DataDirectory string
	SQLiteDBPath  string
}

// SyncConfig holds configuration for uploader creation
type SyncConfig struct {
	Provider string

	AMQPURL       string
	AMQPExchange  string
	AMQPQueue     string
	SheetLocation *time.Location

	GoogleSpreadsheetID      string
	GoogleSheetName          string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string
}

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	backendType := BackendType(appConfig.DataBackend)
	if !backendType.IsValid() {
		return Config{}, fmt.Errorf("invalid backend type in config: %s", appConfig.DataBackend)
	}

	return Config{
		Type:          backendType,
		DataDirectory: appConfig.DataDir,
		SQLiteDBPath:  appConfig.SQLiteDBPath,
	}, nil
}

// SyncFromAppConfig converts the application config to uploader config.
// The snapshot queue carries sync payloads.
func SyncFromAppConfig(appConfig *config.Config) (SyncConfig, error) {
	if appConfig == nil {
		return SyncConfig{}, fmt.Errorf("app config is nil")
	}
	return SyncConfig{
		Provider:                 appConfig.SyncProvider,
		AMQPURL:                  appConfig.AMQPURL,
		AMQPExchange:             appConfig.AMQPExchange,
		AMQPQueue:                appConfig.AMQPSnapshotsQueue,
		SheetLocation:            time.Local,
		GoogleSpreadsheetID:      appConfig.GoogleSpreadsheetID,
		GoogleSheetName:          appConfig.GoogleSheetName,
		GoogleServiceAccountJSON: appConfig.GoogleServiceAccountJSON,
		GoogleServiceAccountFile: appConfig.GoogleServiceAccountFile,
	}, nil
}

func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid backend type: %s", c.Type)
	}

	switch c.Type {
	case FileBackend:
		if c.DataDirectory == "" {
			return fmt.Errorf("data directory is required for file backend")
		}
	case SQLiteBackend:
		if c.SQLiteDBPath == "" {
			return fmt.Errorf("SQLite database path is required for sqlite backend")
		}
	}
	return nil
}

func (c SyncConfig) Validate() error {
	switch c.Provider {
	case "", cloudsync.ProviderLocal:
	case cloudsync.ProviderAMQP:
		if c.AMQPURL == "" {
			return fmt.Errorf("AMQP URL is required for amqp sync provider")
		}
		if c.AMQPExchange == "" || c.AMQPQueue == "" {
			return fmt.Errorf("AMQP exchange and queue are required for amqp sync provider")
		}
	case cloudsync.ProviderSheets:
		if c.GoogleSpreadsheetID == "" {
			return fmt.Errorf("Google Spreadsheet ID is required for sheets sync provider")
		}
	default:
		return fmt.Errorf("invalid sync provider: %s", c.Provider)
	}
	return nil
}

// GetBackendTypes returns all valid backend types
func GetBackendTypes() []BackendType {
	return []BackendType{MemoryBackend, FileBackend, SQLiteBackend}
}

func GetBackendTypeStrings() []string {
	types := GetBackendTypes()
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = t.String()
	}
	return out
}
