// Package vector implements VectorIndex: a partitioned nearest-neighbor
// search over pre-embedded text chunks, grounded in the original Faiss-based
// local_vector_storage (IndexFlatIP over unit-normalized embeddings), with a
// pgx-backed alternative sharing the same search contract.
package vector

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/vimarsh/guidance/internal/domain"
)

// Result pairs a retrieved chunk with its similarity score.
type Result struct {
	Chunk domain.Chunk
	Score float64
}

// Index is the shared search contract both FlatIndex and RemoteIndex
// implement; GuidancePipeline depends only on this interface.
type Index interface {
	Add(ctx context.Context, chunk domain.Chunk) error
	Search(ctx context.Context, query []float32, k int, partition string, minScore float64) ([]Result, error)
}

// FlatIndex is an in-process, partitioned flat index suitable for up to
// roughly 10^5 chunks per partition, equivalent to faiss.IndexFlatIP over
// unit-normalized vectors: scoring by dot product equals cosine similarity.
type FlatIndex struct {
	mu         sync.RWMutex
	partitions map[string]*partition
}

type partition struct {
	mu       sync.RWMutex
	ids      map[string]struct{}
	vectors  [][]float32
	chunks   []domain.Chunk
}

// NewFlatIndex creates an empty FlatIndex.
func NewFlatIndex() *FlatIndex {
	return &FlatIndex{partitions: make(map[string]*partition)}
}

// Add normalizes chunk.Embedding and inserts it into its partition. Adding a
// chunk id that already exists in its partition is rejected.
func (fi *FlatIndex) Add(ctx context.Context, chunk domain.Chunk) error {
	if len(chunk.Embedding) == 0 {
		return fmt.Errorf("vector: chunk %s has no embedding", chunk.ID)
	}

	fi.mu.Lock()
	p, ok := fi.partitions[chunk.Partition]
	if !ok {
		p = &partition{ids: make(map[string]struct{})}
		fi.partitions[chunk.Partition] = p
	}
	fi.mu.Unlock()

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.ids[chunk.ID]; exists {
		return fmt.Errorf("vector: chunk %s already exists in partition %s", chunk.ID, chunk.Partition)
	}

	normalized := normalize(chunk.Embedding)
	p.ids[chunk.ID] = struct{}{}
	p.vectors = append(p.vectors, normalized)
	p.chunks = append(p.chunks, chunk)
	return nil
}

// Search returns the top-k chunks in partition ranked by cosine similarity
// to query, filtering out results below minScore.
func (fi *FlatIndex) Search(ctx context.Context, query []float32, k int, partitionName string, minScore float64) ([]Result, error) {
	fi.mu.RLock()
	p, ok := fi.partitions[partitionName]
	fi.mu.RUnlock()
	if !ok {
		return nil, nil
	}

	q := normalize(query)

	p.mu.RLock()
	defer p.mu.RUnlock()

	results := make([]Result, 0, len(p.vectors))
	for i, vec := range p.vectors {
		score := dot(q, vec)
		if float64(score) < minScore {
			continue
		}
		results = append(results, Result{Chunk: p.chunks[i], Score: float64(score)})
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if k > 0 && len(results) > k {
		results = results[:k]
	}
	return results, nil
}

func normalize(v []float32) []float32 {
	var sumSquares float64
	for _, x := range v {
		sumSquares += float64(x) * float64(x)
	}
	if sumSquares == 0 {
		return v
	}
	norm := float32(1.0 / math.Sqrt(sumSquares))
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = x * norm
	}
	return out
}

func dot(a, b []float32) float32 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float32
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}

// RemoteIndex issues the same search contract over a pgx-backed table using
// pgvector cosine-distance ordering, for deployments with a managed vector
// store behind Postgres. The concrete vector database is not fixed by the
// contract; this is one interface-compatible implementation of it.
type RemoteIndex struct {
	pool *pgxpool.Pool
}

// NewRemoteIndex wraps an existing connection pool. The table is assumed to
// already exist with columns (id text, partition text, embedding vector,
// source_doc text, section text, key_terms text[], citations text[], quality
// float8, text text).
func NewRemoteIndex(pool *pgxpool.Pool) *RemoteIndex {
	return &RemoteIndex{pool: pool}
}

// Add inserts one chunk's row, keyed by (partition, id). Adding a chunk id
// that already exists in its partition is rejected, as in FlatIndex.Add.
func (ri *RemoteIndex) Add(ctx context.Context, chunk domain.Chunk) error {
	tag, err := ri.pool.Exec(ctx, `
		INSERT INTO chunk_embeddings (id, partition, embedding, source_doc, section, key_terms, citations, quality, text)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (partition, id) DO NOTHING`,
		chunk.ID, chunk.Partition, pgvector.NewVector(chunk.Embedding),
		chunk.SourceDoc, chunk.Section, chunk.KeyTerms, chunk.Citations, chunk.Quality, chunk.Text)
	if err != nil {
		return fmt.Errorf("inserting chunk %s: %w", chunk.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("vector: chunk %s already exists in partition %s", chunk.ID, chunk.Partition)
	}
	return nil
}

// Search ranks rows in partitionName by pgvector cosine distance, closest
// first, filtering client-side on minScore since the distance operator
// cannot be reliably combined with a similarity threshold across pgvector
// versions.
func (ri *RemoteIndex) Search(ctx context.Context, query []float32, k int, partitionName string, minScore float64) ([]Result, error) {
	rows, err := ri.pool.Query(ctx, `
		SELECT id, source_doc, section, key_terms, citations, quality, text,
		       1 - (embedding <=> $1) AS score
		FROM chunk_embeddings
		WHERE partition = $2
		ORDER BY embedding <=> $1
		LIMIT $3`,
		pgvector.NewVector(query), partitionName, k)
	if err != nil {
		return nil, fmt.Errorf("querying chunk_embeddings: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var c domain.Chunk
		var score float64
		if err := rows.Scan(&c.ID, &c.SourceDoc, &c.Section, &c.KeyTerms, &c.Citations, &c.Quality, &c.Text, &score); err != nil {
			return nil, fmt.Errorf("scanning chunk row: %w", err)
		}
		if score < minScore {
			continue
		}
		c.Partition = partitionName
		results = append(results, Result{Chunk: c, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunk_embeddings: %w", err)
	}
	return results, nil
}
