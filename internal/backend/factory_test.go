package backend

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"pocketledger/internal/cloudsync"
	"pocketledger/internal/config"
	"pocketledger/internal/storage"
)

func TestBackendType_IsValid(t *testing.T) {
	for _, bt := range GetBackendTypes() {
		if !bt.IsValid() {
			t.Errorf("%s should be valid", bt)
		}
	}
	if BackendType("sheets").IsValid() {
		t.Error("sheets is not a storage backend")
	}
	if got := strings.Join(GetBackendTypeStrings(), ","); got != "memory,file,sqlite" {
		t.Errorf("GetBackendTypeStrings() = %s", got)
	}
}

func TestFromAppConfig(t *testing.T) {
	if _, err := FromAppConfig(nil); err == nil {
		t.Error("expected error for nil config")
	}
	if _, err := FromAppConfig(&config.Config{DataBackend: "csv"}); err == nil {
		t.Error("expected error for invalid backend")
	}

	cfg, err := FromAppConfig(&config.Config{DataBackend: "sqlite", SQLiteDBPath: "x.db", DataDir: "d"})
	if err != nil {
		t.Fatalf("FromAppConfig: %v", err)
	}
	if cfg.Type != SQLiteBackend || cfg.SQLiteDBPath != "x.db" || cfg.DataDirectory != "d" {
		t.Errorf("unexpected config: %+v", cfg)
	}

	sc, err := SyncFromAppConfig(&config.Config{SyncProvider: "amqp", AMQPSnapshotsQueue: "snaps", AMQPEventsQueue: "events"})
	if err != nil {
		t.Fatalf("SyncFromAppConfig: %v", err)
	}
	if sc.AMQPQueue != "snaps" {
		t.Errorf("sync uploads must use the snapshot queue, got %s", sc.AMQPQueue)
	}
}

func TestCreateBackend(t *testing.T) {
	ctx := context.Background()
	f := NewFactory(nil)
	dir := t.TempDir()

	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"memory", Config{Type: MemoryBackend}, false},
		{"file", Config{Type: FileBackend, DataDirectory: filepath.Join(dir, "files")}, false},
		{"sqlite", Config{Type: SQLiteBackend, SQLiteDBPath: filepath.Join(dir, "db", "ledger.db")}, false},
		{"file without directory", Config{Type: FileBackend}, true},
		{"sqlite without path", Config{Type: SQLiteBackend}, true},
		{"unknown", Config{Type: "redis"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := f.CreateBackend(ctx, tt.config)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("CreateBackend: %v", err)
			}
			defer res.Close()

			if err := res.Backend.Put(ctx, storage.KeyLedger, []byte("{}")); err != nil {
				t.Fatalf("Put: %v", err)
			}
			got, err := res.Backend.Get(ctx, storage.KeyLedger)
			if err != nil || string(got) != "{}" {
				t.Fatalf("Get = %q, %v", got, err)
			}
		})
	}
}

func TestCreateUploader(t *testing.T) {
	ctx := context.Background()
	f := NewFactory(nil)

	res, err := f.CreateUploader(ctx, SyncConfig{})
	if err != nil {
		t.Fatalf("CreateUploader: %v", err)
	}
	if res.Uploader.Name() != cloudsync.ProviderLocal {
		t.Errorf("default provider = %s, want local", res.Uploader.Name())
	}
	if err := res.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}

	tests := []struct {
		name   string
		config SyncConfig
	}{
		{"amqp without url", SyncConfig{Provider: cloudsync.ProviderAMQP}},
		{"amqp without queue", SyncConfig{Provider: cloudsync.ProviderAMQP, AMQPURL: "amqp://localhost/", AMQPExchange: "x"}},
		{"sheets without spreadsheet", SyncConfig{Provider: cloudsync.ProviderSheets}},
		{"unknown provider", SyncConfig{Provider: "icloud"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.CreateUploader(ctx, tt.config); err == nil {
				t.Error("expected error")
			}
		})
	}
}
