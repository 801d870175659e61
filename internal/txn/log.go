package txn

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/vimarsh/guidance/internal/domain"
)

const (
	maxLogEntries  = 1000
	logLockTimeout = 5 * time.Second
)

// Log is the persistent transaction outcome log: a rolling file keeping the
// most recent maxLogEntries entries, oldest-first eviction, per
// SPEC_FULL.md §4.3.
type Log struct {
	path string
	mu   sync.Mutex
}

// NewLog creates a Log persisted at <dir>/transaction_log.json.
func NewLog(dir string) (*Log, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	return &Log{path: filepath.Join(dir, "transaction_log.json")}, nil
}

// Append adds an entry, evicting the oldest entry first if the log is at
// capacity.
func (l *Log) Append(entry domain.TransactionLogEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	fl := flock.New(l.path + ".lock")
	ctx, cancel := context.WithTimeout(context.Background(), logLockTimeout)
	defer cancel()
	locked, err := fl.TryLockContext(ctx, 50*time.Millisecond)
	if err != nil || !locked {
		return domain.ErrStorageUnavailable
	}
	defer fl.Unlock()

	entries, err := l.readLocked()
	if err != nil {
		return err
	}

	entries = append(entries, entry)
	if len(entries) > maxLogEntries {
		entries = entries[len(entries)-maxLogEntries:]
	}

	return l.writeLocked(entries)
}

// Entries returns a copy of every currently retained log entry, oldest first.
func (l *Log) Entries() ([]domain.TransactionLogEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.readLocked()
}

func (l *Log) readLocked() ([]domain.TransactionLogEntry, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading transaction log: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	var entries []domain.TransactionLogEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decoding transaction log: %w", err)
	}
	return entries, nil
}

func (l *Log) writeLocked(entries []domain.TransactionLogEntry) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding transaction log: %w", err)
	}
	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing transaction log temp file: %w", err)
	}
	return os.Rename(tmp, l.path)
}
