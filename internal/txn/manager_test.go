package txn

import (
	"context"
	"errors"
	"testing"

	"github.com/vimarsh/guidance/internal/domain"
	"github.com/vimarsh/guidance/internal/store"
)

// failingBackend wraps a store.Backend and fails every Upsert/Delete whose
// DocID is in failOn, so tests can force a mid-transaction apply failure.
type failingBackend struct {
	store.Backend
	failOn map[string]bool
}

var errForcedFailure = errors.New("forced failure")

func (f *failingBackend) Upsert(ctx context.Context, rec store.Record) error {
	if f.failOn[rec.DocID] {
		return errForcedFailure
	}
	return f.Backend.Upsert(ctx, rec)
}

func (f *failingBackend) Delete(ctx context.Context, collection, docID string) error {
	if f.failOn[docID] {
		return errForcedFailure
	}
	return f.Backend.Delete(ctx, collection, docID)
}

func newTestManager(t *testing.T, local store.Backend) *Manager {
	t.Helper()
	s := store.New(store.ModeLocalOnly, local, nil)
	log, err := NewLog(t.TempDir())
	if err != nil {
		t.Fatalf("NewLog() error: %v", err)
	}
	return NewManager(s, log)
}

func TestManagerCommitsAllOperationsInOrder(t *testing.T) {
	ls, err := store.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStore() error: %v", err)
	}
	defer ls.Close()

	mgr := newTestManager(t, ls)
	ctx := context.Background()

	err = mgr.Run(ctx, func(txn *Txn) {
		txn.Enqueue(domain.TxnOperation{
			Collection: "conversations",
			DocID:      "c1",
			Intent:     domain.OpCreate,
			Payload:    map[string]any{"type": "conversation", "question": "hi"},
		})
		txn.Enqueue(domain.TxnOperation{
			Collection: "usage",
			DocID:      "u1",
			Intent:     domain.OpCreate,
			Payload:    map[string]any{"type": "usage", "cost": 0.01},
		})
	})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if _, err := ls.Get(ctx, "conversations", "c1"); err != nil {
		t.Errorf("expected conversation c1 to be committed, got error: %v", err)
	}
	if _, err := ls.Get(ctx, "usage", "u1"); err != nil {
		t.Errorf("expected usage u1 to be committed, got error: %v", err)
	}
}

// TestManagerRollsBackOnFailureRestoresPreImage mirrors the "atomic token
// write" scenario: a transaction that updates an existing record and then
// fails on a later operation must restore the existing record's pre-image,
// not leave the partial update in place.
func TestManagerRollsBackOnFailureRestoresPreImage(t *testing.T) {
	ls, err := store.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStore() error: %v", err)
	}
	defer ls.Close()

	ctx := context.Background()
	if err := ls.Upsert(ctx, store.Record{
		Collection: "usage_stats",
		DocID:      "user-1",
		Type:       "user_stats",
		Body:       map[string]any{"total_cost": 1.0},
	}); err != nil {
		t.Fatalf("seed Upsert() error: %v", err)
	}

	failing := &failingBackend{Backend: ls, failOn: map[string]bool{"new-usage-record": true}}
	s := store.New(store.ModeLocalOnly, failing, nil)
	log, err := NewLog(t.TempDir())
	if err != nil {
		t.Fatalf("NewLog() error: %v", err)
	}
	mgr := NewManager(s, log)

	err = mgr.Run(ctx, func(txn *Txn) {
		txn.Enqueue(domain.TxnOperation{
			Collection: "usage_stats",
			DocID:      "user-1",
			Intent:     domain.OpUpdate,
			Payload:    map[string]any{"type": "user_stats", "total_cost": 2.0},
		})
		txn.Enqueue(domain.TxnOperation{
			Collection: "usage",
			DocID:      "new-usage-record",
			Intent:     domain.OpCreate,
			Payload:    map[string]any{"type": "usage", "cost": 1.0},
		})
	})
	if !errors.Is(err, errForcedFailure) {
		t.Fatalf("expected Run() to surface forced failure, got %v", err)
	}

	restored, err := ls.Get(ctx, "usage_stats", "user-1")
	if err != nil {
		t.Fatalf("Get() after rollback error: %v", err)
	}
	if restored.Body["total_cost"] != 1.0 {
		t.Errorf("expected rollback to restore total_cost=1.0, got %v", restored.Body["total_cost"])
	}

	if _, err := ls.Get(ctx, "usage", "new-usage-record"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected new-usage-record to never exist after rollback, got %v", err)
	}

	entries, err := log.Entries()
	if err != nil {
		t.Fatalf("Entries() error: %v", err)
	}
	if len(entries) != 1 || entries[0].State != domain.TxnRolledBack {
		t.Errorf("expected one rolled_back log entry, got %+v", entries)
	}
}
