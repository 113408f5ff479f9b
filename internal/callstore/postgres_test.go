package callstore_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/phonio-ai/phonio/internal/callstore"
)

// testDSN returns the test database DSN from the environment, or skips the
// test if PHONIO_TEST_POSTGRES_DSN is not set.
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("PHONIO_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("PHONIO_TEST_POSTGRES_DSN not set — skipping PostgreSQL integration tests")
	}
	return dsn
}

func newTestStore(t *testing.T) *callstore.Postgres {
	t.Helper()
	ctx := context.Background()

	store, err := callstore.NewPostgres(ctx, testDSN(t))
	if err != nil {
		t.Fatalf("NewPostgres: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestPostgres_RecordAndRecent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Microsecond)
	rec := callstore.CallRecord{
		CallID:        "11111111-1111-1111-1111-111111111111",
		CarrierCallID: "CA123",
		PeerNumber:    "+15550002222",
		Direction:     "outbound",
		Status:        "completed",
		StartedAt:     now.Add(-time.Minute),
		EndedAt:       now,
		Commands:      []string{"open spotify", "play jazz"},
		Summary:       "dispatched: open spotify; play jazz",
	}
	if err := store.Record(ctx, rec); err != nil {
		t.Fatalf("Record: %v", err)
	}

	records, err := store.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(records) == 0 {
		t.Fatal("no records returned")
	}

	got := records[0]
	if got.CallID != rec.CallID {
		t.Errorf("call id = %q; want %q", got.CallID, rec.CallID)
	}
	if got.Status != "completed" || got.Direction != "outbound" {
		t.Errorf("status/direction = %q/%q", got.Status, got.Direction)
	}
	if len(got.Commands) != 2 || got.Commands[0] != "open spotify" {
		t.Errorf("commands = %v", got.Commands)
	}
}

func TestPostgres_RecentOrdersNewestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	for i := range 3 {
		rec := callstore.CallRecord{
			CallID:    "order-test-" + string(rune('a'+i)),
			Direction: "inbound",
			Status:    "completed",
			StartedAt: base.Add(time.Duration(i) * time.Minute),
			EndedAt:   base.Add(time.Duration(i)*time.Minute + 30*time.Second),
		}
		if err := store.Record(ctx, rec); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	records, err := store.Recent(ctx, 3)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("record count = %d; want 3", len(records))
	}
	for i := 1; i < len(records); i++ {
		if records[i].StartedAt.After(records[i-1].StartedAt) {
			t.Errorf("records not ordered newest first: %v before %v",
				records[i-1].StartedAt, records[i].StartedAt)
		}
	}
}
