package store

import (
	"context"
	"errors"
	"testing"

	"github.com/vimarsh/guidance/internal/domain"
)

func TestLocalStoreUpsertAndGetRoundTrip(t *testing.T) {
	ls, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStore() error: %v", err)
	}
	defer ls.Close()

	ctx := context.Background()
	rec := Record{
		Collection: "spiritual-texts",
		DocID:      "chunk-1",
		Partition:  "krishna",
		Type:       "spiritual_text",
		Body:       map[string]any{"text": "hello"},
	}

	if err := ls.Upsert(ctx, rec); err != nil {
		t.Fatalf("Upsert() error: %v", err)
	}

	got, err := ls.Get(ctx, "spiritual-texts", "chunk-1")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got.Body["text"] != "hello" {
		t.Errorf("got body %v, want text=hello", got.Body)
	}
}

func TestLocalStoreGetMissingReturnsNotFound(t *testing.T) {
	ls, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStore() error: %v", err)
	}
	defer ls.Close()

	_, err = ls.Get(context.Background(), "conversations", "missing")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestLocalStoreDeleteRemovesRecord(t *testing.T) {
	ls, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStore() error: %v", err)
	}
	defer ls.Close()

	ctx := context.Background()
	rec := Record{Collection: "conversations", DocID: "c1", Type: "conversation", Body: map[string]any{"q": "hi"}}
	if err := ls.Upsert(ctx, rec); err != nil {
		t.Fatalf("Upsert() error: %v", err)
	}
	if err := ls.Delete(ctx, "conversations", "c1"); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if _, err := ls.Get(ctx, "conversations", "c1"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestLocalStoreListReturnsAllRecords(t *testing.T) {
	ls, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStore() error: %v", err)
	}
	defer ls.Close()

	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		rec := Record{Collection: "conversations", DocID: id, Type: "conversation", Body: map[string]any{"id": id}}
		if err := ls.Upsert(ctx, rec); err != nil {
			t.Fatalf("Upsert(%s) error: %v", id, err)
		}
	}

	recs, err := ls.List(ctx, "conversations")
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(recs) != 3 {
		t.Errorf("got %d records, want 3", len(recs))
	}
}
