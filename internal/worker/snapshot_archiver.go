package worker

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"pocketledger/internal/amqp"
	"pocketledger/internal/ledger"
	applog "pocketledger/internal/log"
)

const (
	archivePrefix = "snapshot-"
	// lexical order of names equals chronological order
	archiveStampLayout = "20060102T150405.000000000Z"
)

// SnapshotArchiver stores snapshot messages as files in dir and keeps the
// newest keep of them.
type SnapshotArchiver struct {
	dir  string
	keep int
}

func NewSnapshotArchiver(dir string, keep int) (*SnapshotArchiver, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create archive directory: %w", err)
	}
	if keep <= 0 {
		keep = 1
	}
	return &SnapshotArchiver{dir: dir, keep: keep}, nil
}

// HandleSnapshotMessage archives one snapshot. Plain payloads that are not
// a valid backup are logged and dropped rather than requeued.
func (a *SnapshotArchiver) HandleSnapshotMessage(ctx context.Context, msg *amqp.SnapshotMessage) error {
	slog.InfoContext(ctx, "Archiving snapshot",
		applog.FieldRevision, msg.Revision,
		"encrypted", msg.Encrypted,
		"bytes", len(msg.Payload))

	if msg.Payload == "" {
		slog.WarnContext(ctx, "Dropping empty snapshot", applog.FieldRevision, msg.Revision)
		return nil
	}
	ext := ".enc"
	if !msg.Encrypted {
		ext = ".json"
		if _, err := ledger.DecodeSnapshot([]byte(msg.Payload)); err != nil {
			slog.WarnContext(ctx, "Dropping invalid snapshot",
				applog.FieldRevision, msg.Revision,
				applog.FieldError, err)
			return nil
		}
	}

	stamp := msg.Timestamp
	if stamp.IsZero() {
		stamp = time.Now()
	}
	name := fmt.Sprintf("%s%s-r%010d%s", archivePrefix, stamp.UTC().Format(archiveStampLayout), msg.Revision, ext)
	if err := writeFileAtomic(filepath.Join(a.dir, name), []byte(msg.Payload)); err != nil {
		return fmt.Errorf("write archive: %w", err)
	}

	removed, err := a.prune()
	if err != nil {
		slog.WarnContext(ctx, "Failed to prune snapshot archive", applog.FieldError, err)
	}
	slog.InfoContext(ctx, "Snapshot archived", "file", name, "pruned", removed)
	return nil
}

// Files lists archived snapshots oldest first.
func (a *SnapshotArchiver) Files() ([]string, error) {
	entries, err := os.ReadDir(a.dir)
	if err != nil {
		return nil, fmt.Errorf("read archive directory: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), archivePrefix) || strings.HasSuffix(e.Name(), ".tmp") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

func (a *SnapshotArchiver) prune() (int, error) {
	names, err := a.Files()
	if err != nil {
		return 0, err
	}
	removed := 0
	for len(names)-removed > a.keep {
		if err := os.Remove(filepath.Join(a.dir, names[removed])); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
