// Package memory implements every ledger port with mutex-guarded maps.
// It backs dev runs and tests; nothing survives a restart.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"advancebot/internal/core"
	"advancebot/internal/ledger"
)

type Store struct {
	mu        sync.RWMutex
	entries   []core.ReferenceEntry
	employees map[string]core.Employee
	ledgers   map[string][]core.Transaction
	tokens    map[string]map[string]struct{}
	audits    []core.AuditRecord
	summaries map[string]core.MonthlySummary
}

func New(entries []core.ReferenceEntry) *Store {
	return &Store{
		entries:   append([]core.ReferenceEntry(nil), entries...),
		employees: map[string]core.Employee{},
		ledgers:   map[string][]core.Transaction{},
		tokens:    map[string]map[string]struct{}{},
		summaries: map[string]core.MonthlySummary{},
	}
}

// NewSeeded returns a store with a small default catalog so a dev
// gateway answers menus without any provisioning.
func NewSeeded() *Store {
	return New([]core.ReferenceEntry{
		{Direction: core.In, Category: "Advance", Type: "Cash", Active: true},
		{Direction: core.In, Category: "Advance", Type: "Transfer", Active: true},
		{Direction: core.Out, Category: "Transport", Type: "Taxi", Active: true},
		{Direction: core.Out, Category: "Transport", Type: "Fuel", Active: true},
		{Direction: core.Out, Category: "Office", Type: "Supplies", Active: true},
		{Direction: core.Out, Category: "Meals", Type: "Business lunch", Active: true},
	})
}

// Append stores the transaction. A token seen before for the same
// employee makes the call a no-op success, so a re-sent commit cannot
// produce a second row.
func (s *Store) Append(_ context.Context, employeeID string, tx core.Transaction) error {
	if err := tx.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if tx.Token != "" {
		set, ok := s.tokens[employeeID]
		if !ok {
			set = map[string]struct{}{}
			s.tokens[employeeID] = set
		}
		if _, dup := set[tx.Token]; dup {
			return nil
		}
		set[tx.Token] = struct{}{}
	}
	s.ledgers[employeeID] = append(s.ledgers[employeeID], tx)
	return nil
}

func (s *Store) ListMonth(_ context.Context, employeeID string, month core.Month) ([]core.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.Transaction
	for _, tx := range s.ledgers[employeeID] {
		if month.Contains(tx.Date) {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (s *Store) Months(_ context.Context, employeeID string) ([]core.Month, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := map[core.Month]struct{}{}
	var out []core.Month
	for _, tx := range s.ledgers[employeeID] {
		m := core.MonthOf(tx.Date)
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out, nil
}

func (s *Store) Balance(_ context.Context, employeeID string) (core.Money, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var cents int64
	for _, tx := range s.ledgers[employeeID] {
		switch tx.Direction {
		case core.In:
			cents += tx.Amount.Cents
		case core.Out:
			cents -= tx.Amount.Cents
		}
	}
	return core.Money{Cents: cents}, nil
}

func (s *Store) Record(_ context.Context, rec core.AuditRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.Time.IsZero() {
		rec.Time = time.Now()
	}
	s.audits = append(s.audits, rec)
	return nil
}

// AuditRecords returns a copy of the trail, oldest first. Test hook.
func (s *Store) AuditRecords() []core.AuditRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]core.AuditRecord(nil), s.audits...)
}

func (s *Store) Entries(_ context.Context) ([]core.ReferenceEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]core.ReferenceEntry(nil), s.entries...), nil
}

// SetEntries replaces the catalog. Test hook for staleness scenarios.
func (s *Store) SetEntries(entries []core.ReferenceEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append([]core.ReferenceEntry(nil), entries...)
}

func (s *Store) Lookup(_ context.Context, employeeID string) (core.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	emp, ok := s.employees[employeeID]
	if !ok || !emp.Active {
		return core.Employee{}, ledger.ErrUnknownEmployee
	}
	return emp, nil
}

func (s *Store) Register(_ context.Context, emp core.Employee) error {
	if err := emp.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.employees[emp.ID] = emp
	if _, ok := s.ledgers[emp.ID]; !ok {
		s.ledgers[emp.ID] = nil
	}
	return nil
}

func (s *Store) Upsert(_ context.Context, sum core.MonthlySummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summaries[summaryKey(sum.EmployeeID, sum.Month)] = sum
	return nil
}

// Summary returns the stored projection row, if any. Test hook.
func (s *Store) Summary(employeeID string, month core.Month) (core.MonthlySummary, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sum, ok := s.summaries[summaryKey(employeeID, month)]
	return sum, ok
}

func summaryKey(employeeID string, month core.Month) string {
	return strings.Join([]string{employeeID, month.String()}, "|")
}
