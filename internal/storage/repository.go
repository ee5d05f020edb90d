// Package storage is the sqlite backend. One file on disk implements
// every ledger port for single-host deployments.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"advancebot/internal/core"
	"advancebot/internal/ledger"

	_ "modernc.org/sqlite"
)

// timeLayout matches the audit trail's wire format.
const timeLayout = "2006-01-02 15:04:05"

type Repository struct {
	db  *sql.DB
	loc *time.Location
}

func NewRepository(dbPath string, loc *time.Location) (*Repository, error) {
	if loc == nil {
		loc = time.UTC
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Repository{db: db, loc: loc}, nil
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Append implements ledger.Store. A commit token already present for
// the employee turns the insert into a no-op success.
func (r *Repository) Append(ctx context.Context, employeeID string, tx core.Transaction) error {
	if err := tx.Validate(); err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO transactions (employee_id, recorded_at, month, direction, category, type, description, amount_cents, token)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (employee_id, token) WHERE token <> '' DO NOTHING`,
		employeeID,
		tx.Date.Format(timeLayout),
		core.MonthOf(tx.Date).String(),
		string(tx.Direction),
		tx.Category,
		tx.Type,
		tx.Description,
		tx.Amount.Cents,
		tx.Token,
	)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		slog.InfoContext(ctx, "Duplicate commit token, append skipped",
			"employee_id", employeeID,
			"token", tx.Token)
		return nil
	}

	slog.InfoContext(ctx, "Transaction saved to SQLite",
		"employee_id", employeeID,
		"direction", tx.Direction,
		"amount_cents", tx.Amount.Cents,
		"category", tx.Category)
	return nil
}

func (r *Repository) ListMonth(ctx context.Context, employeeID string, month core.Month) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT recorded_at, direction, category, type, description, amount_cents, token
		FROM transactions
		WHERE employee_id = ? AND month = ?
		ORDER BY id`,
		employeeID, month.String())
	if err != nil {
		return nil, fmt.Errorf("query month transactions: %w", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		var (
			recordedAt string
			direction  string
			tx         core.Transaction
		)
		if err := rows.Scan(&recordedAt, &direction, &tx.Category, &tx.Type, &tx.Description, &tx.Amount.Cents, &tx.Token); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		tx.Direction = core.Direction(direction)
		tx.Date, err = time.ParseInLocation(timeLayout, recordedAt, r.loc)
		if err != nil {
			return nil, fmt.Errorf("parse recorded_at %q: %w", recordedAt, err)
		}
		out = append(out, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return out, nil
}

func (r *Repository) Months(ctx context.Context, employeeID string) ([]core.Month, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT month FROM transactions WHERE employee_id = ?`,
		employeeID)
	if err != nil {
		return nil, fmt.Errorf("query months: %w", err)
	}
	defer rows.Close()

	var out []core.Month
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan month: %w", err)
		}
		m, err := core.ParseMonth(key)
		if err != nil {
			return nil, fmt.Errorf("parse month key %q: %w", key, err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate months: %w", err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out, nil
}

func (r *Repository) Balance(ctx context.Context, employeeID string) (core.Money, error) {
	var cents int64
	err := r.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(CASE WHEN direction = 'IN' THEN amount_cents ELSE -amount_cents END), 0)
		FROM transactions WHERE employee_id = ?`,
		employeeID).Scan(&cents)
	if err != nil {
		return core.Money{}, fmt.Errorf("query balance: %w", err)
	}
	return core.Money{Cents: cents}, nil
}

// Record implements ledger.AuditLog.
func (r *Repository) Record(ctx context.Context, rec core.AuditRecord) error {
	when := rec.Time
	if when.IsZero() {
		when = time.Now().In(r.loc)
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO audit_log (recorded_at, actor, collection, action, field, old_value, new_value)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		when.Format(timeLayout), rec.Actor, rec.Collection, rec.Action, rec.Field, rec.Old, rec.New)
	if err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}
	return nil
}

// Entries implements ledger.Catalog. The catalog is maintained directly
// in the reference_entries table; migrations seed the starter set.
func (r *Repository) Entries(ctx context.Context) ([]core.ReferenceEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT direction, category, type, active FROM reference_entries ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query reference entries: %w", err)
	}
	defer rows.Close()

	var out []core.ReferenceEntry
	for rows.Next() {
		var (
			direction string
			active    int64
			e         core.ReferenceEntry
		)
		if err := rows.Scan(&direction, &e.Category, &e.Type, &active); err != nil {
			return nil, fmt.Errorf("scan reference entry: %w", err)
		}
		e.Direction = core.Direction(direction)
		e.Active = active != 0
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reference entries: %w", err)
	}
	return out, nil
}

// Lookup implements ledger.Directory. Deactivated employees read as
// unknown so the conversation re-registers them deliberately.
func (r *Repository) Lookup(ctx context.Context, employeeID string) (core.Employee, error) {
	var (
		emp          core.Employee
		registeredAt string
		active       int64
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, collection, registered_at, active FROM employees WHERE id = ?`,
		employeeID).Scan(&emp.ID, &emp.Name, &emp.Collection, &registeredAt, &active)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Employee{}, ledger.ErrUnknownEmployee
	}
	if err != nil {
		return core.Employee{}, fmt.Errorf("query employee: %w", err)
	}
	emp.Active = active != 0
	if !emp.Active {
		return core.Employee{}, ledger.ErrUnknownEmployee
	}
	if t, err := time.ParseInLocation(timeLayout, registeredAt, r.loc); err == nil {
		emp.Registered = t
	}
	return emp, nil
}

func (r *Repository) Register(ctx context.Context, emp core.Employee) error {
	if err := emp.Validate(); err != nil {
		return err
	}
	registered := emp.Registered
	if registered.IsZero() {
		registered = time.Now().In(r.loc)
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO employees (id, name, collection, registered_at, active)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			collection = excluded.collection,
			active = excluded.active`,
		emp.ID, emp.Name, emp.Collection, registered.Format(timeLayout), boolToInt(emp.Active))
	if err != nil {
		return fmt.Errorf("upsert employee: %w", err)
	}

	slog.InfoContext(ctx, "Employee registered in SQLite",
		"employee_id", emp.ID,
		"collection", emp.Collection)
	return nil
}

// Upsert implements ledger.SummarySink.
func (r *Repository) Upsert(ctx context.Context, s core.MonthlySummary) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO monthly_summaries (employee_id, month, total_in_cents, total_out_cents, tx_count, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (employee_id, month) DO UPDATE SET
			total_in_cents = excluded.total_in_cents,
			total_out_cents = excluded.total_out_cents,
			tx_count = excluded.tx_count,
			updated_at = excluded.updated_at`,
		s.EmployeeID, s.Month.String(), s.TotalIn.Cents, s.TotalOut.Cents, s.Count,
		time.Now().In(r.loc).Format(timeLayout))
	if err != nil {
		return fmt.Errorf("upsert monthly summary: %w", err)
	}
	return nil
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
