// Package cloudsync pushes ledger backups off the device and keeps a local
// shadow of the last payload sent.
package cloudsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"pocketledger/internal/core"
	"pocketledger/internal/ledger"
	applog "pocketledger/internal/log"
	"pocketledger/internal/security"
	"pocketledger/internal/storage"
)

// Provider names accepted in configuration.
const (
	ProviderLocal  = "local"
	ProviderAMQP   = "amqp"
	ProviderSheets = "sheets"
)

var ErrNoShadow = errors.New("no cloud shadow to restore")

// State is persisted under storage.KeySyncState.
type State struct {
	Provider string     `json:"provider"`
	LastSync *time.Time `json:"lastSync,omitempty"`
}

// Payload is what an Uploader receives. Data is the (possibly encrypted)
// backup document; Snapshot is the decoded plaintext it was produced from.
type Payload struct {
	Revision  uint64
	Encrypted bool
	Data      []byte
	Snapshot  core.Snapshot
}

type Uploader interface {
	Name() string
	Upload(ctx context.Context, p Payload) error
}

// Source is satisfied by *ledger.Store.
type Source interface {
	ExportBackup(ctx context.Context) ([]byte, error)
	ImportBackup(ctx context.Context, data []byte) error
	Revision() uint64
}

type Syncer struct {
	source    Source
	backend   storage.Backend
	transform security.Transform
	uploader  Uploader
	now       func() time.Time
	logger    *slog.Logger

	mu sync.Mutex
}

type Option func(*Syncer)

func WithClock(now func() time.Time) Option {
	return func(s *Syncer) { s.now = now }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Syncer) { s.logger = logger }
}

// NewSyncer wires a syncer. A nil transform means Passthrough and a nil
// uploader means the local provider.
func NewSyncer(source Source, backend storage.Backend, transform security.Transform, uploader Uploader, opts ...Option) *Syncer {
	if transform == nil {
		transform = security.Passthrough{}
	}
	if uploader == nil {
		uploader = LocalUploader{}
	}
	s := &Syncer{
		source:    source,
		backend:   backend,
		transform: transform,
		uploader:  uploader,
		now:       time.Now,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(applog.FieldComponent, applog.ComponentSync, applog.FieldProvider, uploader.Name())
	return s
}

func (s *Syncer) Provider() string { return s.uploader.Name() }

// SyncToCloud exports the ledger, seals it, hands it to the uploader and
// records the payload as the cloud shadow together with the sync time.
// Nothing is recorded when the upload fails.
func (s *Syncer) SyncToCloud(ctx context.Context) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := s.now()
	data, err := s.source.ExportBackup(ctx)
	if err != nil {
		return State{}, fmt.Errorf("export backup: %w", err)
	}
	revision := s.source.Revision()
	snap, err := ledger.DecodeSnapshot(data)
	if err != nil {
		return State{}, fmt.Errorf("decode backup: %w", err)
	}

	sealed, err := s.transform.Seal(data)
	if err != nil {
		return State{}, fmt.Errorf("seal backup: %w", err)
	}
	_, plain := s.transform.(security.Passthrough)

	payload := Payload{Revision: revision, Encrypted: !plain, Data: sealed, Snapshot: snap}
	if err := s.uploader.Upload(ctx, payload); err != nil {
		s.logger.ErrorContext(ctx, "Cloud upload failed", applog.FieldRevision, revision, applog.FieldError, err)
		return State{}, fmt.Errorf("upload via %s: %w", s.uploader.Name(), err)
	}

	if err := s.backend.Put(ctx, storage.KeyCloudShadow, sealed); err != nil {
		return State{}, fmt.Errorf("store cloud shadow: %w", err)
	}
	synced := s.now().UTC()
	state := State{Provider: s.uploader.Name(), LastSync: &synced}
	raw, err := json.Marshal(state)
	if err != nil {
		return State{}, fmt.Errorf("encode sync state: %w", err)
	}
	if err := s.backend.Put(ctx, storage.KeySyncState, raw); err != nil {
		return State{}, fmt.Errorf("store sync state: %w", err)
	}

	s.logger.InfoContext(ctx, "Synced to cloud",
		applog.FieldRevision, revision,
		"encrypted", payload.Encrypted,
		"bytes", len(sealed),
		"transactions", len(snap.Transactions),
		"duration", s.now().Sub(start))
	return state, nil
}

// State returns the persisted sync state, or the configured provider with
// no lastSync when nothing has been synced yet.
func (s *Syncer) State(ctx context.Context) (State, error) {
	raw, err := s.backend.Get(ctx, storage.KeySyncState)
	if errors.Is(err, storage.ErrNotFound) {
		return State{Provider: s.uploader.Name()}, nil
	}
	if err != nil {
		return State{}, fmt.Errorf("read sync state: %w", err)
	}
	var st State
	if err := json.Unmarshal(raw, &st); err != nil {
		return State{}, fmt.Errorf("decode sync state: %w", err)
	}
	return st, nil
}

// RestoreFromShadow replaces the ledger with the last payload synced.
func (s *Syncer) RestoreFromShadow(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sealed, err := s.backend.Get(ctx, storage.KeyCloudShadow)
	if errors.Is(err, storage.ErrNotFound) {
		return ErrNoShadow
	}
	if err != nil {
		return fmt.Errorf("read cloud shadow: %w", err)
	}
	data, err := s.transform.Open(sealed)
	if err != nil {
		return err
	}
	if err := s.source.ImportBackup(ctx, data); err != nil {
		return fmt.Errorf("restore backup: %w", err)
	}
	s.logger.InfoContext(ctx, "Ledger restored from cloud shadow", "bytes", len(sealed))
	return nil
}
