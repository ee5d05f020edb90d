package worker

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"advancebot/internal/amqp"
	"advancebot/internal/core"
	"advancebot/internal/ledger/memory"
)

func seedTx(t *testing.T, store *memory.Store, employeeID, token string, day int, dir core.Direction, cents int64) {
	t.Helper()
	err := store.Append(context.Background(), employeeID, core.Transaction{
		Date:        time.Date(2025, 3, day, 12, 0, 0, 0, time.UTC),
		Direction:   dir,
		Category:    "Transport",
		Type:        "Taxi",
		Description: "ride",
		Amount:      core.Money{Cents: cents},
		Token:       token,
	})
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
}

func commitMsg(employeeID, token string) *amqp.CommitMessage {
	return &amqp.CommitMessage{
		Token:       token,
		EmployeeID:  employeeID,
		Collection:  "Mara Rossi (" + employeeID + ")",
		Month:       "03.2025",
		Direction:   "OUT",
		AmountCents: 12550,
		Category:    "Transport",
		Type:        "Taxi",
		OccurredAt:  "14.03.2025",
	}
}

func TestHandleCommitMessageRecomputesRow(t *testing.T) {
	store := memory.NewSeeded()
	w := NewSummaryWorker(store, store)

	seedTx(t, store, "emp-1", "tok-1", 3, core.In, 100000)
	seedTx(t, store, "emp-1", "tok-2", 14, core.Out, 12550)

	if err := w.HandleCommitMessage(context.Background(), commitMsg("emp-1", "tok-2")); err != nil {
		t.Fatalf("HandleCommitMessage() error = %v", err)
	}

	month := core.Month{Year: 2025, Month: time.March}
	sum, ok := store.Summary("emp-1", month)
	if !ok {
		t.Fatal("no summary row written")
	}
	if sum.TotalIn.Cents != 100000 || sum.TotalOut.Cents != 12550 || sum.Count != 2 {
		t.Errorf("summary = in %d out %d count %d, want in 100000 out 12550 count 2",
			sum.TotalIn.Cents, sum.TotalOut.Cents, sum.Count)
	}
	if sum.Net().Cents != 87450 {
		t.Errorf("Net() = %d, want 87450", sum.Net().Cents)
	}
}

func TestHandleCommitMessageIsIdempotent(t *testing.T) {
	store := memory.NewSeeded()
	w := NewSummaryWorker(store, store)

	seedTx(t, store, "emp-1", "tok-1", 14, core.Out, 12550)

	// A redelivered event must not double anything.
	msg := commitMsg("emp-1", "tok-1")
	for i := 0; i < 3; i++ {
		if err := w.HandleCommitMessage(context.Background(), msg); err != nil {
			t.Fatalf("HandleCommitMessage() #%d error = %v", i+1, err)
		}
	}

	sum, ok := store.Summary("emp-1", core.Month{Year: 2025, Month: time.March})
	if !ok {
		t.Fatal("no summary row written")
	}
	if sum.TotalOut.Cents != 12550 || sum.Count != 1 {
		t.Errorf("summary = out %d count %d, want out 12550 count 1", sum.TotalOut.Cents, sum.Count)
	}
}

func TestHandleCommitMessageBadMonthIsDropped(t *testing.T) {
	store := memory.NewSeeded()
	w := NewSummaryWorker(store, store)

	msg := commitMsg("emp-1", "tok-1")
	msg.Month = "2025-03"

	// No error, so the delivery is acked instead of requeued forever.
	if err := w.HandleCommitMessage(context.Background(), msg); err != nil {
		t.Fatalf("HandleCommitMessage() error = %v, want nil for malformed month", err)
	}

	if _, ok := store.Summary("emp-1", core.Month{Year: 2025, Month: time.March}); ok {
		t.Error("summary row written despite malformed month")
	}
}

type failingSink struct {
	calls int
	fail  int
}

func (s *failingSink) Upsert(_ context.Context, _ core.MonthlySummary) error {
	s.calls++
	if s.calls <= s.fail {
		return errors.New("upsert refused")
	}
	return nil
}

func TestHandleCommitMessageSinkFailureRequeues(t *testing.T) {
	store := memory.NewSeeded()
	sink := &failingSink{fail: 1}
	w := NewSummaryWorker(store, sink)

	seedTx(t, store, "emp-1", "tok-1", 14, core.Out, 12550)

	msg := commitMsg("emp-1", "tok-1")
	err := w.HandleCommitMessage(context.Background(), msg)
	if err == nil {
		t.Fatal("HandleCommitMessage() error = nil, want upsert failure")
	}
	if !strings.Contains(err.Error(), "upsert") {
		t.Errorf("error = %v, want mention of upsert", err)
	}

	// The redelivery succeeds once the sink recovers.
	if err := w.HandleCommitMessage(context.Background(), msg); err != nil {
		t.Fatalf("HandleCommitMessage() retry error = %v", err)
	}
	if sink.calls != 2 {
		t.Errorf("sink calls = %d, want 2", sink.calls)
	}
}

func TestRefreshRecentHealsMissedCommit(t *testing.T) {
	store := memory.NewSeeded()
	w := NewSummaryWorker(store, store)

	seedTx(t, store, "emp-1", "tok-1", 3, core.In, 100000)
	if err := w.HandleCommitMessage(context.Background(), commitMsg("emp-1", "tok-1")); err != nil {
		t.Fatalf("HandleCommitMessage() error = %v", err)
	}

	// A second entry lands in the ledger but its event never arrives.
	seedTx(t, store, "emp-1", "tok-2", 14, core.Out, 12550)

	if err := w.RefreshRecent(context.Background()); err != nil {
		t.Fatalf("RefreshRecent() error = %v", err)
	}

	sum, ok := store.Summary("emp-1", core.Month{Year: 2025, Month: time.March})
	if !ok {
		t.Fatal("no summary row written")
	}
	if sum.Count != 2 || sum.TotalOut.Cents != 12550 {
		t.Errorf("summary = count %d out %d, want count 2 out 12550", sum.Count, sum.TotalOut.Cents)
	}
}

func TestRefreshRecentForgetsStalePairs(t *testing.T) {
	store := memory.NewSeeded()
	w := NewSummaryWorker(store, store)
	w.retention = time.Millisecond

	seedTx(t, store, "emp-1", "tok-1", 3, core.In, 100000)
	if err := w.HandleCommitMessage(context.Background(), commitMsg("emp-1", "tok-1")); err != nil {
		t.Fatalf("HandleCommitMessage() error = %v", err)
	}

	time.Sleep(5 * time.Millisecond)

	if err := w.RefreshRecent(context.Background()); err != nil {
		t.Fatalf("RefreshRecent() error = %v", err)
	}
	if got := len(w.recentPairs()); got != 0 {
		t.Errorf("recent pairs after retention = %d, want 0", got)
	}
}
