// Package worker keeps the monthly-summary projection in step with the
// ledger by consuming commit events.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"advancebot/internal/amqp"
	"advancebot/internal/core"
	"advancebot/internal/ledger"
	"advancebot/internal/log"
)

// SummaryWorker recomputes the (employee, month) projection row from
// the full month listing whenever a commit event arrives. Rebuilding
// from the ledger rather than applying deltas makes the worker
// idempotent: redelivered and duplicate events converge on the same
// row.
type SummaryWorker struct {
	store ledger.Store
	sink  ledger.SummarySink

	mu     sync.Mutex
	recent map[projectionKey]time.Time

	retention time.Duration
}

type projectionKey struct {
	employeeID string
	month      core.Month
}

func NewSummaryWorker(store ledger.Store, sink ledger.SummarySink) *SummaryWorker {
	return &SummaryWorker{
		store:     store,
		sink:      sink,
		recent:    make(map[projectionKey]time.Time),
		retention: 48 * time.Hour,
	}
}

// HandleCommitMessage recomputes the summary row touched by one commit.
// Returning an error requeues the delivery.
func (w *SummaryWorker) HandleCommitMessage(ctx context.Context, msg *amqp.CommitMessage) error {
	month, err := core.ParseMonth(msg.Month)
	if err != nil {
		// A requeue cannot fix the body, so ack and move on.
		slog.ErrorContext(ctx, "Commit event carries an invalid month",
			log.FieldToken, msg.Token,
			log.FieldMonth, msg.Month,
			log.FieldError, err)
		return nil
	}

	if err := w.RecomputeMonth(ctx, msg.EmployeeID, month); err != nil {
		return fmt.Errorf("recompute %s %s: %w", msg.EmployeeID, month, err)
	}

	w.markRecent(msg.EmployeeID, month)
	return nil
}

// RecomputeMonth rebuilds one projection row from the month's ledger
// rows.
func (w *SummaryWorker) RecomputeMonth(ctx context.Context, employeeID string, month core.Month) error {
	txs, err := w.store.ListMonth(ctx, employeeID, month)
	if err != nil {
		return fmt.Errorf("list month: %w", err)
	}

	summary := core.Summarize(employeeID, month, txs)
	if err := w.sink.Upsert(ctx, summary); err != nil {
		return fmt.Errorf("upsert summary: %w", err)
	}

	fields := log.NewFields().
		WithComponent(log.ComponentWorker).
		WithOperation("recompute").
		WithEmployee(employeeID, "").
		WithMonth(month.String())
	slog.InfoContext(ctx, "Summary row recomputed", fields.ToSlice()...)

	return nil
}

// RefreshRecent re-runs every recompute seen within the retention
// window, so a lost upsert heals on the next pass. Pairs untouched for
// longer than the retention are forgotten.
func (w *SummaryWorker) RefreshRecent(ctx context.Context) error {
	pairs := w.recentPairs()
	if len(pairs) == 0 {
		return nil
	}

	slog.InfoContext(ctx, "Refreshing recent summary rows", "count", len(pairs))

	var failures int
	for _, p := range pairs {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := w.RecomputeMonth(ctx, p.employeeID, p.month); err != nil {
			failures++
			slog.ErrorContext(ctx, "Summary refresh failed",
				log.FieldEmployeeID, p.employeeID,
				log.FieldMonth, p.month.String(),
				log.FieldError, err)
		}
	}

	if failures > 0 {
		return fmt.Errorf("%d of %d summary refreshes failed", failures, len(pairs))
	}
	return nil
}

func (w *SummaryWorker) markRecent(employeeID string, month core.Month) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.recent[projectionKey{employeeID, month}] = time.Now()
}

func (w *SummaryWorker) recentPairs() []projectionKey {
	w.mu.Lock()
	defer w.mu.Unlock()

	cutoff := time.Now().Add(-w.retention)
	pairs := make([]projectionKey, 0, len(w.recent))
	for k, touched := range w.recent {
		if touched.Before(cutoff) {
			delete(w.recent, k)
			continue
		}
		pairs = append(pairs, k)
	}
	return pairs
}
