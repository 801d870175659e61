package cost

import (
	"context"
	"testing"

	"github.com/vimarsh/guidance/internal/domain"
	"github.com/vimarsh/guidance/internal/store"
	"github.com/vimarsh/guidance/internal/txn"
)

func TestCostUsesModelRateAndFallsBackForUnknownModel(t *testing.T) {
	known := Cost("gemini-2.5-flash", 1000, 1000)
	if known != 0.00015+0.0006 {
		t.Errorf("got %v, want %v", known, 0.00015+0.0006)
	}

	unknown := Cost("some-future-model", 1000, 1000)
	if unknown != known {
		t.Errorf("expected unknown model to use default rate, got %v want %v", unknown, known)
	}
}

func newTestAccountant(t *testing.T) *Accountant {
	t.Helper()
	ls, err := store.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStore() error: %v", err)
	}
	t.Cleanup(func() { ls.Close() })

	s := store.New(store.ModeLocalOnly, ls, nil)
	log, err := txn.NewLog(t.TempDir())
	if err != nil {
		t.Fatalf("NewLog() error: %v", err)
	}
	mgr := txn.NewManager(s, log)
	return NewAccountant(s, mgr)
}

func TestRecordUsageRecomputesStatsFromPersistedRecords(t *testing.T) {
	a := newTestAccountant(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		rec := domain.UsageRecord{
			UserID:       "user-1",
			Email:        "user1@example.com",
			Model:        "gemini-2.5-flash",
			InputTokens:  100,
			OutputTokens: 200,
			Quality:      domain.QualityHigh,
			Personality:  "krishna",
		}
		if err := a.RecordUsage(ctx, rec); err != nil {
			t.Fatalf("RecordUsage() error: %v", err)
		}
	}

	stats, err := a.Stats(ctx, "user-1")
	if err != nil {
		t.Fatalf("Stats() error: %v", err)
	}
	if stats.TotalRequests != 3 {
		t.Errorf("got TotalRequests %d, want 3", stats.TotalRequests)
	}
	if stats.TotalTokens != 900 {
		t.Errorf("got TotalTokens %d, want 900", stats.TotalTokens)
	}
	if stats.PersonalityUse["krishna"] != 3 {
		t.Errorf("got krishna uses %d, want 3", stats.PersonalityUse["krishna"])
	}
	if stats.MostUsedModel != "gemini-2.5-flash" {
		t.Errorf("got MostUsedModel %q, want gemini-2.5-flash", stats.MostUsedModel)
	}
}
