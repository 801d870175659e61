package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vimarsh/guidance/internal/domain"
)

// RemoteStore persists documents in a single JSONB-backed Postgres table,
// partitioned by collection and keyed by document id, matching
// SPEC_FULL.md §4.2's "partitioned document collection" contract.
type RemoteStore struct {
	pool *pgxpool.Pool
}

// NewRemoteStore wraps an existing connection pool.
func NewRemoteStore(pool *pgxpool.Pool) *RemoteStore {
	return &RemoteStore{pool: pool}
}

// Get reads one record by (collection, docID).
func (rs *RemoteStore) Get(ctx context.Context, collection, docID string) (*Record, error) {
	row := rs.pool.QueryRow(ctx,
		`SELECT doc_id, partition, type, body FROM documents WHERE collection = $1 AND doc_id = $2`,
		collection, docID)

	var rec Record
	var body []byte
	rec.Collection = collection
	if err := row.Scan(&rec.DocID, &rec.Partition, &rec.Type, &body); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("querying document %s/%s: %w", collection, docID, domain.ErrStorageUnavailable)
	}

	if err := json.Unmarshal(body, &rec.Body); err != nil {
		return nil, fmt.Errorf("decoding body for %s/%s: %w", collection, docID, err)
	}
	return &rec, nil
}

// List reads every record in a collection.
func (rs *RemoteStore) List(ctx context.Context, collection string) ([]Record, error) {
	rows, err := rs.pool.Query(ctx,
		`SELECT doc_id, partition, type, body FROM documents WHERE collection = $1 ORDER BY doc_id`,
		collection)
	if err != nil {
		return nil, fmt.Errorf("listing collection %s: %w", collection, domain.ErrStorageUnavailable)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		var body []byte
		rec.Collection = collection
		if err := rows.Scan(&rec.DocID, &rec.Partition, &rec.Type, &body); err != nil {
			return nil, fmt.Errorf("scanning row in %s: %w", collection, err)
		}
		if err := json.Unmarshal(body, &rec.Body); err != nil {
			return nil, fmt.Errorf("decoding body in %s: %w", collection, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading rows in %s: %w", collection, domain.ErrStorageUnavailable)
	}
	return out, nil
}

// Upsert writes a record by (collection, docID), replacing any existing body.
func (rs *RemoteStore) Upsert(ctx context.Context, rec Record) error {
	body, err := json.Marshal(rec.Body)
	if err != nil {
		return fmt.Errorf("encoding body for %s/%s: %w", rec.Collection, rec.DocID, err)
	}

	_, err = rs.pool.Exec(ctx, `
		INSERT INTO documents (collection, doc_id, partition, type, body, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (collection, doc_id) DO UPDATE
		SET partition = EXCLUDED.partition,
		    type = EXCLUDED.type,
		    body = EXCLUDED.body,
		    updated_at = now()
	`, rec.Collection, rec.DocID, rec.Partition, rec.Type, body)
	if err != nil {
		return fmt.Errorf("upserting %s/%s: %w", rec.Collection, rec.DocID, domain.ErrStorageUnavailable)
	}
	return nil
}

// Delete removes a record by (collection, docID).
func (rs *RemoteStore) Delete(ctx context.Context, collection, docID string) error {
	_, err := rs.pool.Exec(ctx, `DELETE FROM documents WHERE collection = $1 AND doc_id = $2`, collection, docID)
	if err != nil {
		return fmt.Errorf("deleting %s/%s: %w", collection, docID, domain.ErrStorageUnavailable)
	}
	return nil
}
