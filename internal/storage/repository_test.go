package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"advancebot/internal/core"
	"advancebot/internal/ledger"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := NewRepository(filepath.Join(t.TempDir(), "ledger.db"), time.UTC)
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func testTx(day int, dir core.Direction, cents int64, token string) core.Transaction {
	return core.Transaction{
		Date:        time.Date(2025, 3, day, 9, 30, 0, 0, time.UTC),
		Direction:   dir,
		Category:    "Transport",
		Type:        "Taxi",
		Description: "client visit",
		Amount:      core.Money{Cents: cents},
		Token:       token,
	}
}

func TestAppendAndListMonth(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if err := repo.Append(ctx, "1001", testTx(3, core.Out, 12550, "t1")); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := repo.Append(ctx, "1001", testTx(4, core.In, 500000, "t2")); err != nil {
		t.Fatalf("append: %v", err)
	}

	got, err := repo.ListMonth(ctx, "1001", core.Month{Year: 2025, Month: time.March})
	if err != nil {
		t.Fatalf("list month: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(got))
	}
	if got[0].Direction != core.Out || got[0].Amount.Cents != 12550 {
		t.Fatalf("unexpected first row: %+v", got[0])
	}
	if got[0].Date.Day() != 3 || got[0].Date.Hour() != 9 {
		t.Fatalf("timestamp did not round-trip: %v", got[0].Date)
	}

	empty, err := repo.ListMonth(ctx, "1001", core.Month{Year: 2025, Month: time.April})
	if err != nil || len(empty) != 0 {
		t.Fatalf("expected empty month, got %d err=%v", len(empty), err)
	}
}

func TestAppendTokenDedupe(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	tx := testTx(3, core.Out, 1000, "same")
	if err := repo.Append(ctx, "1001", tx); err != nil {
		t.Fatalf("first append: %v", err)
	}
	if err := repo.Append(ctx, "1001", tx); err != nil {
		t.Fatalf("re-sent append must succeed quietly: %v", err)
	}
	got, _ := repo.ListMonth(ctx, "1001", core.Month{Year: 2025, Month: time.March})
	if len(got) != 1 {
		t.Fatalf("expected one row, got %d", len(got))
	}
	// Another employee may reuse the token value.
	if err := repo.Append(ctx, "1002", tx); err != nil {
		t.Fatalf("append for other employee: %v", err)
	}
}

func TestBalanceAndMonths(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	repo.Append(ctx, "1001", testTx(3, core.In, 500000, "t1"))
	repo.Append(ctx, "1001", testTx(5, core.Out, 125050, "t2"))
	older := testTx(1, core.Out, 4950, "t3")
	older.Date = time.Date(2024, 12, 31, 18, 0, 0, 0, time.UTC)
	repo.Append(ctx, "1001", older)

	bal, err := repo.Balance(ctx, "1001")
	if err != nil || bal.Cents != 370000 {
		t.Fatalf("balance: %v err=%v", bal, err)
	}

	months, err := repo.Months(ctx, "1001")
	if err != nil || len(months) != 2 {
		t.Fatalf("months: %v err=%v", months, err)
	}
	if months[0].String() != "12.2024" || months[1].String() != "03.2025" {
		t.Fatalf("months not chronological: %v", months)
	}

	otherBal, err := repo.Balance(ctx, "1002")
	if err != nil || otherBal.Cents != 0 {
		t.Fatalf("other employee balance: %v err=%v", otherBal, err)
	}
}

func TestSeededCatalog(t *testing.T) {
	repo := newTestRepo(t)
	entries, err := repo.Entries(context.Background())
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	if len(entries) == 0 {
		t.Fatalf("expected seeded reference entries")
	}
	if !core.TripleActive(entries, core.Out, "Transport", "Taxi") {
		t.Fatalf("seed catalog missing OUT/Transport/Taxi: %v", entries)
	}
}

func TestDirectoryRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if _, err := repo.Lookup(ctx, "nobody"); !errors.Is(err, ledger.ErrUnknownEmployee) {
		t.Fatalf("expected ErrUnknownEmployee, got %v", err)
	}

	emp := core.Employee{ID: "1001", Name: "Dana", Collection: "Dana", Active: true}
	if err := repo.Register(ctx, emp); err != nil {
		t.Fatalf("register: %v", err)
	}
	got, err := repo.Lookup(ctx, "1001")
	if err != nil || got.Name != "Dana" || got.Collection != "Dana" {
		t.Fatalf("lookup: %+v err=%v", got, err)
	}

	// Deactivation hides the employee from lookups.
	emp.Active = false
	if err := repo.Register(ctx, emp); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if _, err := repo.Lookup(ctx, "1001"); !errors.Is(err, ledger.ErrUnknownEmployee) {
		t.Fatalf("expected ErrUnknownEmployee after deactivation, got %v", err)
	}
}

func TestAuditAndSummary(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	rec := core.AuditRecord{
		Actor:      "1001",
		Collection: "Dana",
		Action:     core.ActionAddTransaction,
		New:        "03.03.2025 | OUT | Transport | Taxi | 125.50",
	}
	if err := repo.Record(ctx, rec); err != nil {
		t.Fatalf("audit record: %v", err)
	}

	m := core.Month{Year: 2025, Month: time.March}
	sum := core.MonthlySummary{EmployeeID: "1001", Month: m, TotalIn: core.Money{Cents: 100}, Count: 1}
	if err := repo.Upsert(ctx, sum); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	sum.TotalIn.Cents = 900
	sum.Count = 3
	if err := repo.Upsert(ctx, sum); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	var totalIn, count int64
	err := repo.db.QueryRow(`SELECT total_in_cents, tx_count FROM monthly_summaries WHERE employee_id = ? AND month = ?`,
		"1001", m.String()).Scan(&totalIn, &count)
	if err != nil || totalIn != 900 || count != 3 {
		t.Fatalf("summary row: in=%d count=%d err=%v", totalIn, count, err)
	}
}
