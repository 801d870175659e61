// Package txn implements TransactionManager: scoped multi-store writes that
// commit in enqueue order and compensate via captured pre-images on failure.
//
// The original Python source's rollback path only logs a warning and never
// actually undoes applied writes. This implementation performs real
// compensating rollback, which SPEC_FULL.md §4.3 requires.
package txn

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vimarsh/guidance/internal/domain"
	"github.com/vimarsh/guidance/internal/store"
	"github.com/vimarsh/guidance/internal/telemetry"
)

// Txn accumulates operations within one transaction scope. Callers only
// enqueue; Manager.Run applies them once the scope function returns.
type Txn struct {
	ID  string
	ops []domain.TxnOperation
}

// Enqueue adds one create/update/delete operation, applied in enqueue order.
func (t *Txn) Enqueue(op domain.TxnOperation) {
	t.ops = append(t.ops, op)
}

// Manager owns the dual store and the persistent transaction log.
type Manager struct {
	store *store.Store
	log   *Log
}

// NewManager creates a Manager over s, logging outcomes to log.
func NewManager(s *store.Store, log *Log) *Manager {
	return &Manager{store: s, log: log}
}

// applied records one operation that has already landed in a specific
// backend, along with the pre-image captured before it was applied, so it
// can be compensated in reverse order if a later operation fails.
type applied struct {
	backend  store.Backend
	op       domain.TxnOperation
	preImage *store.Record // nil means the record did not exist before this op
}

// Run collects operations enqueued by fn, then applies them atomically to
// the local store followed by the remote store (skipped when the store runs
// in local-only mode). On any apply failure, every already-applied operation
// is rolled back in reverse order from its captured pre-image and the
// transaction is marked rolled_back; a rollback that itself fails marks the
// transaction failed and returns the rollback error so the caller can
// escalate to the operator.
func (m *Manager) Run(ctx context.Context, fn func(*Txn)) error {
	txn := &Txn{ID: uuid.New().String()}
	fn(txn)
	return m.commit(ctx, txn)
}

func (m *Manager) commit(ctx context.Context, txn *Txn) error {
	entry := domain.TransactionLogEntry{
		ID:          txn.ID,
		State:       domain.TxnPending,
		Collections: collectionsOf(txn.ops),
		CreatedAt:   time.Now().UTC(),
	}

	backends := []store.Backend{m.store.Local()}
	if m.store.Mode() == store.ModeRemotePrimary && m.store.Remote() != nil {
		backends = append(backends, m.store.Remote())
	}

	var done []applied

	for _, backend := range backends {
		for _, op := range txn.ops {
			pre, getErr := backend.Get(ctx, op.Collection, op.DocID)
			if getErr != nil && getErr != domain.ErrNotFound {
				return m.fail(entry, done, fmt.Errorf("capturing pre-image for %s/%s: %w", op.Collection, op.DocID, getErr))
			}
			if getErr == domain.ErrNotFound {
				pre = nil
			}

			if err := applyOp(ctx, backend, op); err != nil {
				return m.fail(entry, done, fmt.Errorf("applying %s on %s/%s: %w", op.Intent, op.Collection, op.DocID, err))
			}
			done = append(done, applied{backend: backend, op: op, preImage: pre})
		}
	}

	entry.State = domain.TxnCommitted
	entry.CommittedAt = time.Now().UTC()
	telemetry.TransactionOutcomesTotal.WithLabelValues(string(entry.State)).Inc()
	if err := m.log.Append(entry); err != nil {
		return fmt.Errorf("logging committed transaction %s: %w", txn.ID, err)
	}
	return nil
}

// fail rolls back every already-applied operation in reverse order and logs
// the outcome. Returns the original error on a successful rollback, or the
// rollback error (with the transaction marked failed) if compensation itself
// cannot complete.
func (m *Manager) fail(entry domain.TransactionLogEntry, done []applied, cause error) error {
	for i := len(done) - 1; i >= 0; i-- {
		a := done[i]
		var rbErr error
		switch {
		case a.preImage == nil:
			// The operation created a record that didn't exist before; undo
			// by deleting it.
			rbErr = a.backend.Delete(context.Background(), a.op.Collection, a.op.DocID)
		default:
			// The operation mutated or deleted an existing record; undo by
			// restoring the captured pre-image.
			rbErr = a.backend.Upsert(context.Background(), *a.preImage)
		}
		if rbErr != nil {
			entry.State = domain.TxnFailed
			entry.Error = fmt.Sprintf("rollback failed: %v (original error: %v)", rbErr, cause)
			telemetry.TransactionOutcomesTotal.WithLabelValues(string(entry.State)).Inc()
			_ = m.log.Append(entry)
			return fmt.Errorf("transaction %s rollback failed: %w (original error: %v)", entry.ID, rbErr, cause)
		}
	}

	entry.State = domain.TxnRolledBack
	entry.Error = cause.Error()
	telemetry.TransactionOutcomesTotal.WithLabelValues(string(entry.State)).Inc()
	_ = m.log.Append(entry)
	return cause
}

func applyOp(ctx context.Context, backend store.Backend, op domain.TxnOperation) error {
	switch op.Intent {
	case domain.OpCreate, domain.OpUpdate:
		return backend.Upsert(ctx, store.Record{
			Collection: op.Collection,
			DocID:      op.DocID,
			Type:       payloadString(op.Payload, "type"),
			Partition:  payloadString(op.Payload, "partition"),
			Body:       op.Payload,
		})
	case domain.OpDelete:
		return backend.Delete(ctx, op.Collection, op.DocID)
	default:
		return fmt.Errorf("unknown operation intent %q", op.Intent)
	}
}

func payloadString(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

func collectionsOf(ops []domain.TxnOperation) []string {
	seen := make(map[string]struct{}, len(ops))
	var out []string
	for _, op := range ops {
		if _, ok := seen[op.Collection]; !ok {
			seen[op.Collection] = struct{}{}
			out = append(out, op.Collection)
		}
	}
	return out
}
