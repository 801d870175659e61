package store

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
	writerBufferSize = 256
	lockTimeout      = 5 * time.Second
)

// LocalStore persists collections as whole-file JSON arrays under dir, one
// file per collection, read whole and rewritten whole. Each rewrite is queued
// to a single async writer goroutine and protected by a per-file OS lock so concurrent
// processes never interleave partial writes, adapted from the async batched
// writer pattern used for session files elsewhere in the corpus.
type LocalStore struct {
	dir string

	mu    sync.RWMutex
	cache map[string][]Record // collection -> records, lazily loaded

	writeCh chan writeOp
	done    chan struct{}
}

type writeOp struct {
	collection string
	snapshot   []Record
	errCh      chan error
}

// NewLocalStore creates a LocalStore rooted at dir, creating it if needed.
func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating local store directory: %w", err)
	}

	ls := &LocalStore{
		dir:     dir,
		cache:   make(map[string][]Record),
		writeCh: make(chan writeOp, writerBufferSize),
		done:    make(chan struct{}),
	}
	go ls.run()
	return ls, nil
}

func (ls *LocalStore) collectionPath(collection string) string {
	return filepath.Join(ls.dir, collection+".json")
}

// load reads a collection from disk into the cache if not already present.
func (ls *LocalStore) load(collection string) ([]Record, error) {
	ls.mu.RLock()
	if recs, ok := ls.cache[collection]; ok {
		ls.mu.RUnlock()
		return recs, nil
	}
	ls.mu.RUnlock()

	path := ls.collectionPath(collection)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			ls.mu.Lock()
			ls.cache[collection] = nil
			ls.mu.Unlock()
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var recs []Record
	if len(data) > 0 {
		if err := json.Unmarshal(data, &recs); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", path, err)
		}
	}

	ls.mu.Lock()
	ls.cache[collection] = recs
	ls.mu.Unlock()
	return recs, nil
}

// Get returns a single record by document id, or domain.ErrNotFound.
func (ls *LocalStore) Get(_ context.Context, collection, docID string) (*Record, error) {
	recs, err := ls.load(collection)
	if err != nil {
		return nil, err
	}
	for i := range recs {
		if recs[i].DocID == docID {
			r := recs[i]
			return &r, nil
		}
	}
	return nil, domain.ErrNotFound
}

// List returns every record in a collection.
func (ls *LocalStore) List(_ context.Context, collection string) ([]Record, error) {
	recs, err := ls.load(collection)
	if err != nil {
		return nil, err
	}
	out := make([]Record, len(recs))
	copy(out, recs)
	return out, nil
}

// Upsert inserts or replaces a record by (collection, docID) and enqueues an
// async rewrite of the whole collection file.
func (ls *LocalStore) Upsert(ctx context.Context, rec Record) error {
	if _, err := ls.load(rec.Collection); err != nil {
		return err
	}

	ls.mu.Lock()
	recs := ls.cache[rec.Collection]
	replaced := false
	for i := range recs {
		if recs[i].DocID == rec.DocID {
			recs[i] = rec
			replaced = true
			break
		}
	}
	if !replaced {
		recs = append(recs, rec)
	}
	ls.cache[rec.Collection] = recs
	snapshot := make([]Record, len(recs))
	copy(snapshot, recs)
	ls.mu.Unlock()

	return ls.enqueueWrite(ctx, rec.Collection, snapshot)
}

// Delete removes a record by (collection, docID) and enqueues an async
// rewrite of the whole collection file.
func (ls *LocalStore) Delete(ctx context.Context, collection, docID string) error {
	if _, err := ls.load(collection); err != nil {
		return err
	}

	ls.mu.Lock()
	recs := ls.cache[collection]
	out := recs[:0]
	for _, r := range recs {
		if r.DocID != docID {
			out = append(out, r)
		}
	}
	ls.cache[collection] = out
	snapshot := make([]Record, len(out))
	copy(snapshot, out)
	ls.mu.Unlock()

	return ls.enqueueWrite(ctx, collection, snapshot)
}

func (ls *LocalStore) enqueueWrite(ctx context.Context, collection string, snapshot []Record) error {
	errCh := make(chan error, 1)
	op := writeOp{collection: collection, snapshot: snapshot, errCh: errCh}

	select {
	case ls.writeCh <- op:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (ls *LocalStore) run() {
	defer close(ls.done)
	for op := range ls.writeCh {
		err := ls.rewrite(op.collection, op.snapshot)
		op.errCh <- err
	}
}

// rewrite serializes snapshot and writes it atomically under a cross-process
// file lock: write to a temp file, fsync, then rename over the target.
func (ls *LocalStore) rewrite(collection string, snapshot []Record) error {
	path := ls.collectionPath(collection)

	fl := flock.New(path + ".lock")
	lockCtx, cancel := context.WithTimeout(context.Background(), lockTimeout)
	defer cancel()

	locked, err := fl.TryLockContext(lockCtx, 50*time.Millisecond)
	if err != nil || !locked {
		return domain.ErrStorageUnavailable
	}
	defer fl.Unlock()

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", collection, err)
	}

	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("writing temp file for %s: %w", collection, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("writing temp file for %s: %w", collection, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("syncing temp file for %s: %w", collection, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing temp file for %s: %w", collection, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("renaming temp file for %s: %w", collection, err)
	}
	return nil
}

// Close stops the async writer, flushing any queued rewrites first.
func (ls *LocalStore) Close() error {
	close(ls.writeCh)
	<-ls.done
	return nil
}
