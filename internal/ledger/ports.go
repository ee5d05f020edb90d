// Package ledger defines the ports between the dialog engine and the
// system of record, plus the shared transient-failure policy.
package ledger

import (
	"context"
	"errors"

	"advancebot/internal/core"
)

var (
	// ErrUnavailable wraps transport and backend failures that may pass
	// on a later attempt. Reads are retried on it; writes are not.
	ErrUnavailable = errors.New("ledger unavailable")

	// ErrUnknownEmployee is returned by Directory.Lookup for IDs that
	// never registered.
	ErrUnknownEmployee = errors.New("unknown employee")
)

// Ports for outbound adapters.
type (
	// Store is the per-employee transaction ledger. Append consults the
	// transaction's commit token first, so a re-sent append after an
	// ambiguous failure lands at most one row.
	Store interface {
		Append(ctx context.Context, employeeID string, tx core.Transaction) error
		ListMonth(ctx context.Context, employeeID string, month core.Month) ([]core.Transaction, error)
		// Months lists the months with recorded activity, oldest first.
		Months(ctx context.Context, employeeID string) ([]core.Month, error)
		// Balance reads the derived running balance. Display only.
		Balance(ctx context.Context, employeeID string) (core.Money, error)
	}

	// AuditLog is append-only; no update or delete exists on purpose.
	AuditLog interface {
		Record(ctx context.Context, rec core.AuditRecord) error
	}

	// Catalog reads reference entries. Implementations return all rows;
	// filtering to active ones happens in core helpers.
	Catalog interface {
		Entries(ctx context.Context) ([]core.ReferenceEntry, error)
	}

	// Directory maps transport employee IDs to registered employees.
	Directory interface {
		Lookup(ctx context.Context, employeeID string) (core.Employee, error)
		Register(ctx context.Context, emp core.Employee) error
	}

	// SummarySink upserts the monthly-summary projection row for
	// (employee, month). Fed by the summary worker.
	SummarySink interface {
		Upsert(ctx context.Context, s core.MonthlySummary) error
	}
)
