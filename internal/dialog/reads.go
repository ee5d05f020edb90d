package dialog

import (
	"context"
	"fmt"
	"log/slog"

	"advancebot/internal/core"
	"advancebot/internal/ledger"
)

// Read paths retry on ledger.ErrUnavailable; writes never do.

func (e *Engine) entries(ctx context.Context) ([]core.ReferenceEntry, error) {
	var out []core.ReferenceEntry
	err := ledger.Retry(ctx, e.attempts, e.backoff, func() error {
		var err error
		out, err = e.catalog.Entries(ctx)
		return err
	})
	if err != nil {
		slog.ErrorContext(ctx, "Catalog read failed", "error", err)
	}
	return out, err
}

func (e *Engine) lookup(ctx context.Context, employeeID string) (core.Employee, error) {
	var emp core.Employee
	err := ledger.Retry(ctx, e.attempts, e.backoff, func() error {
		var err error
		emp, err = e.directory.Lookup(ctx, employeeID)
		return err
	})
	return emp, err
}

func (e *Engine) months(ctx context.Context, employeeID string) ([]core.Month, error) {
	var out []core.Month
	err := ledger.Retry(ctx, e.attempts, e.backoff, func() error {
		var err error
		out, err = e.store.Months(ctx, employeeID)
		return err
	})
	if err != nil {
		slog.ErrorContext(ctx, "Month listing failed", "employee_id", employeeID, "error", err)
	}
	return out, err
}

func (e *Engine) balance(ctx context.Context, employeeID string) (core.Money, error) {
	var b core.Money
	err := ledger.Retry(ctx, e.attempts, e.backoff, func() error {
		var err error
		b, err = e.store.Balance(ctx, employeeID)
		return err
	})
	if err != nil {
		slog.ErrorContext(ctx, "Balance read failed", "employee_id", employeeID, "error", err)
	}
	return b, err
}

// summaryFor serves month totals from the summary cache, recomputing
// from the ledger on a miss. Commits invalidate the affected key.
func (e *Engine) summaryFor(ctx context.Context, employeeID string, m core.Month) (core.MonthlySummary, error) {
	key := summaryCacheKey(employeeID, m)
	if sum, ok := e.summaries.Get(key); ok {
		return sum, nil
	}
	var txs []core.Transaction
	err := ledger.Retry(ctx, e.attempts, e.backoff, func() error {
		var err error
		txs, err = e.store.ListMonth(ctx, employeeID, m)
		return err
	})
	if err != nil {
		slog.ErrorContext(ctx, "Month listing failed", "employee_id", employeeID, "month", m.String(), "error", err)
		return core.MonthlySummary{}, err
	}
	sum := core.Summarize(employeeID, m, txs)
	e.summaries.Set(key, sum)
	return sum, nil
}

func summaryCacheKey(employeeID string, m core.Month) string {
	return fmt.Sprintf("%s|%s", employeeID, m)
}
