// Package store implements TokenStore: one logical collection API backed by
// a local JSON file store and a remote Postgres-backed document store,
// reconciled through the txn package's TransactionManager.
package store

import (
	"context"
)

// Mode selects how the dual store durability is resolved.
type Mode string

const (
	// ModeLocalOnly is the development mode: every write lands only in the
	// local JSON files, never in the remote store.
	ModeLocalOnly Mode = "local-only"
	// ModeRemotePrimary is the production mode: a write is durable once the
	// remote store accepts it; the local mirror is best-effort.
	ModeRemotePrimary Mode = "remote-primary"
)

// Record is one document within a collection. Type discriminates
// heterogeneous collections so callers can filter after a bulk read.
type Record struct {
	Collection string
	DocID      string
	Partition  string
	Type       string
	Body       map[string]any
}

// Backend is the physical-store contract both Local and Remote implement.
// TransactionManager drives both through this interface.
type Backend interface {
	Get(ctx context.Context, collection, docID string) (*Record, error)
	List(ctx context.Context, collection string) ([]Record, error)
	Upsert(ctx context.Context, rec Record) error
	Delete(ctx context.Context, collection, docID string) error
}

// Store is TokenStore's public surface: one logical collection API over the
// configured mode's backend combination.
type Store struct {
	mode   Mode
	local  Backend
	remote Backend // nil in ModeLocalOnly
}

// New creates a Store. remote may be nil when mode is ModeLocalOnly.
func New(mode Mode, local Backend, remote Backend) *Store {
	return &Store{mode: mode, local: local, remote: remote}
}

// Mode reports the store's configured durability mode.
func (s *Store) Mode() Mode { return s.mode }

// Primary returns the backend writes must durably land in before a caller
// may consider them committed: remote in ModeRemotePrimary, local otherwise.
// TransactionManager applies operations to Local() and then, in
// ModeRemotePrimary, to Remote(), so a development deployment with no remote
// configured still works.
func (s *Store) Primary() Backend {
	if s.mode == ModeRemotePrimary && s.remote != nil {
		return s.remote
	}
	return s.local
}

// Local returns the local mirror backend.
func (s *Store) Local() Backend { return s.local }

// Remote returns the remote backend, or nil when none is configured.
func (s *Store) Remote() Backend { return s.remote }

// Get reads a single record, preferring the primary backend.
func (s *Store) Get(ctx context.Context, collection, docID string) (*Record, error) {
	return s.Primary().Get(ctx, collection, docID)
}

// List reads every record in a collection from the primary backend.
func (s *Store) List(ctx context.Context, collection string) ([]Record, error) {
	return s.Primary().List(ctx, collection)
}
