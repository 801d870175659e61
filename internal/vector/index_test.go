package vector

import (
	"context"
	"testing"

	"github.com/vimarsh/guidance/internal/domain"
)

func TestFlatIndexSearchRanksByCosineSimilarity(t *testing.T) {
	fi := NewFlatIndex()
	ctx := context.Background()

	chunks := []domain.Chunk{
		{ID: "a", Partition: "krishna", Embedding: []float32{1, 0}, Text: "duty"},
		{ID: "b", Partition: "krishna", Embedding: []float32{0, 1}, Text: "unrelated"},
		{ID: "c", Partition: "krishna", Embedding: []float32{0.9, 0.1}, Text: "near duty"},
	}
	for _, c := range chunks {
		if err := fi.Add(ctx, c); err != nil {
			t.Fatalf("Add(%s) error: %v", c.ID, err)
		}
	}

	results, err := fi.Search(ctx, []float32{1, 0}, 2, "krishna", 0)
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].Chunk.ID != "a" {
		t.Errorf("got top result %q, want a", results[0].Chunk.ID)
	}
	if results[1].Chunk.ID != "c" {
		t.Errorf("got second result %q, want c", results[1].Chunk.ID)
	}
}

func TestFlatIndexSearchNeverCrossesPartitions(t *testing.T) {
	fi := NewFlatIndex()
	ctx := context.Background()

	if err := fi.Add(ctx, domain.Chunk{ID: "a", Partition: "krishna", Embedding: []float32{1, 0}}); err != nil {
		t.Fatalf("Add() error: %v", err)
	}
	if err := fi.Add(ctx, domain.Chunk{ID: "b", Partition: "einstein", Embedding: []float32{1, 0}}); err != nil {
		t.Fatalf("Add() error: %v", err)
	}

	results, err := fi.Search(ctx, []float32{1, 0}, 10, "krishna", 0)
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	for _, r := range results {
		if r.Chunk.Partition != "krishna" {
			t.Errorf("search for partition krishna returned chunk from partition %s", r.Chunk.Partition)
		}
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
}

func TestFlatIndexRejectsDuplicateChunkID(t *testing.T) {
	fi := NewFlatIndex()
	ctx := context.Background()

	chunk := domain.Chunk{ID: "dup", Partition: "krishna", Embedding: []float32{1, 0}}
	if err := fi.Add(ctx, chunk); err != nil {
		t.Fatalf("first Add() error: %v", err)
	}
	if err := fi.Add(ctx, chunk); err == nil {
		t.Error("expected second Add() with the same chunk id to be rejected")
	}
}

func TestFlatIndexSearchAppliesMinScore(t *testing.T) {
	fi := NewFlatIndex()
	ctx := context.Background()

	if err := fi.Add(ctx, domain.Chunk{ID: "a", Partition: "krishna", Embedding: []float32{1, 0}}); err != nil {
		t.Fatalf("Add() error: %v", err)
	}
	if err := fi.Add(ctx, domain.Chunk{ID: "b", Partition: "krishna", Embedding: []float32{0, 1}}); err != nil {
		t.Fatalf("Add() error: %v", err)
	}

	results, err := fi.Search(ctx, []float32{1, 0}, 10, "krishna", 0.5)
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if len(results) != 1 || results[0].Chunk.ID != "a" {
		t.Fatalf("expected only chunk a to pass minScore, got %+v", results)
	}
}
