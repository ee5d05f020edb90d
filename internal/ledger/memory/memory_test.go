package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"advancebot/internal/core"
	"advancebot/internal/ledger"
)

func tx(day int, dir core.Direction, cents int64, token string) core.Transaction {
	return core.Transaction{
		Date:        time.Date(2025, 3, day, 10, 0, 0, 0, time.UTC),
		Direction:   dir,
		Category:    "Transport",
		Type:        "Taxi",
		Description: "ride",
		Amount:      core.Money{Cents: cents},
		Token:       token,
	}
}

func TestAppendAndListMonth(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()
	if err := s.Append(ctx, "a", tx(1, core.Out, 1000, "t1")); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := s.Append(ctx, "a", tx(2, core.In, 5000, "t2")); err != nil {
		t.Fatalf("append: %v", err)
	}
	got, err := s.ListMonth(ctx, "a", core.Month{Year: 2025, Month: time.March})
	if err != nil || len(got) != 2 {
		t.Fatalf("unexpected list: %d rows err=%v", len(got), err)
	}
	empty, err := s.ListMonth(ctx, "a", core.Month{Year: 2025, Month: time.April})
	if err != nil || len(empty) != 0 {
		t.Fatalf("expected empty month, got %d rows err=%v", len(empty), err)
	}
}

func TestAppendRejectsInvalid(t *testing.T) {
	s := NewSeeded()
	bad := tx(1, core.Out, 0, "t")
	if err := s.Append(context.Background(), "a", bad); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestAppendTokenDedupe(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()
	one := tx(1, core.Out, 1000, "same-token")
	if err := s.Append(ctx, "a", one); err != nil {
		t.Fatalf("first append: %v", err)
	}
	if err := s.Append(ctx, "a", one); err != nil {
		t.Fatalf("re-sent append must be a no-op success, got %v", err)
	}
	got, _ := s.ListMonth(ctx, "a", core.Month{Year: 2025, Month: time.March})
	if len(got) != 1 {
		t.Fatalf("expected exactly one row, got %d", len(got))
	}
	// Same token for a different employee is a different write.
	if err := s.Append(ctx, "b", one); err != nil {
		t.Fatalf("append other employee: %v", err)
	}
	other, _ := s.ListMonth(ctx, "b", core.Month{Year: 2025, Month: time.March})
	if len(other) != 1 {
		t.Fatalf("expected one row for b, got %d", len(other))
	}
}

func TestEmployeeIsolation(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()
	if err := s.Append(ctx, "a", tx(1, core.In, 100, "ta")); err != nil {
		t.Fatalf("append: %v", err)
	}
	got, _ := s.ListMonth(ctx, "b", core.Month{Year: 2025, Month: time.March})
	if len(got) != 0 {
		t.Fatalf("employee b must not see a's rows, got %d", len(got))
	}
	bal, err := s.Balance(ctx, "b")
	if err != nil || bal.Cents != 0 {
		t.Fatalf("unexpected balance for b: %v err=%v", bal, err)
	}
}

func TestBalance(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()
	s.Append(ctx, "a", tx(1, core.In, 500000, "t1"))
	s.Append(ctx, "a", tx(2, core.Out, 125050, "t2"))
	bal, err := s.Balance(ctx, "a")
	if err != nil || bal.Cents != 374950 {
		t.Fatalf("unexpected balance: %v err=%v", bal, err)
	}
}

func TestMonthsSorted(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()
	later := tx(1, core.Out, 100, "t1")
	later.Date = time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	earlier := tx(1, core.In, 100, "t2")
	earlier.Date = time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)
	s.Append(ctx, "a", later)
	s.Append(ctx, "a", earlier)
	s.Append(ctx, "a", tx(3, core.Out, 100, "t3"))
	months, err := s.Months(ctx, "a")
	if err != nil || len(months) != 3 {
		t.Fatalf("unexpected months: %v err=%v", months, err)
	}
	if months[0].String() != "12.2024" || months[1].String() != "03.2025" || months[2].String() != "05.2025" {
		t.Fatalf("months not sorted: %v", months)
	}
}

func TestDirectory(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()
	if _, err := s.Lookup(ctx, "nobody"); !errors.Is(err, ledger.ErrUnknownEmployee) {
		t.Fatalf("expected ErrUnknownEmployee, got %v", err)
	}
	emp := core.Employee{ID: "1001", Name: "Dana", Collection: "Dana", Registered: time.Now(), Active: true}
	if err := s.Register(ctx, emp); err != nil {
		t.Fatalf("register: %v", err)
	}
	got, err := s.Lookup(ctx, "1001")
	if err != nil || got.Name != "Dana" {
		t.Fatalf("lookup after register: %+v err=%v", got, err)
	}
}

func TestSummaryUpsert(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()
	m := core.Month{Year: 2025, Month: time.March}
	sum := core.MonthlySummary{EmployeeID: "a", Month: m, TotalIn: core.Money{Cents: 100}, Count: 1}
	if err := s.Upsert(ctx, sum); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	sum.TotalIn.Cents = 300
	sum.Count = 2
	if err := s.Upsert(ctx, sum); err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	got, ok := s.Summary("a", m)
	if !ok || got.TotalIn.Cents != 300 || got.Count != 2 {
		t.Fatalf("upsert must replace, got %+v ok=%v", got, ok)
	}
}
