// Package session keeps per-employee conversation state in memory.
// One record per employee, exclusive access through With, TTL expiry
// through the sweeper. Nothing here survives a restart; committed
// ledger data never lives in a session.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"advancebot/internal/core"
)

type State string

const (
	StateIdle                 State = "idle"
	StateAwaitingName         State = "awaiting_name"
	StateAwaitingDirection    State = "awaiting_direction"
	StateAwaitingCategory     State = "awaiting_category"
	StateAwaitingType         State = "awaiting_type"
	StateAwaitingAmount       State = "awaiting_amount"
	StateAwaitingDescription  State = "awaiting_description"
	StateAwaitingConfirmation State = "awaiting_confirmation"
	StateAwaitingSummaryMonth State = "awaiting_summary_month"
)

// Draft accumulates one transaction entry, one field per step. Token
// is minted when the draft reaches confirmation.
type Draft struct {
	Direction   core.Direction
	Category    string
	Type        string
	Amount      core.Money
	Description string
	Token       string
}

type Session struct {
	EmployeeID string
	Name       string
	State      State
	Draft      Draft
	UpdatedAt  time.Time
}

// Reset discards the conversational state, keeping only the identity.
func (s *Session) Reset() {
	s.Name = ""
	s.State = StateIdle
	s.Draft = Draft{}
}

// ClearDraft ends an entry flow, back to the menu state.
func (s *Session) ClearDraft() {
	s.State = StateIdle
	s.Draft = Draft{}
}

type Store struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]*entry
}

type entry struct {
	mu   sync.Mutex
	sess Session
}

func NewStore(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Store{ttl: ttl, entries: map[string]*entry{}}
}

// With runs fn holding the employee's session slot exclusively, so
// concurrent messages from the same employee are serialized while
// distinct employees proceed in parallel. A record idle past the TTL
// is reset before fn sees it.
func (st *Store) With(employeeID string, fn func(s *Session) error) error {
	st.mu.Lock()
	e, ok := st.entries[employeeID]
	if !ok {
		e = &entry{sess: Session{EmployeeID: employeeID, State: StateIdle, UpdatedAt: time.Now()}}
		st.entries[employeeID] = e
	}
	st.mu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	if time.Since(e.sess.UpdatedAt) > st.ttl {
		e.sess.Reset()
	}
	err := fn(&e.sess)
	e.sess.UpdatedAt = time.Now()
	return err
}

// Get returns a copy of the session, if one exists.
func (st *Store) Get(employeeID string) (Session, bool) {
	st.mu.Lock()
	e, ok := st.entries[employeeID]
	st.mu.Unlock()
	if !ok {
		return Session{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sess, true
}

func (st *Store) Drop(employeeID string) {
	st.mu.Lock()
	delete(st.entries, employeeID)
	st.mu.Unlock()
}

func (st *Store) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.entries)
}

// Sweep evicts records idle past the TTL and returns how many went.
// Records mid-Handle are skipped; the next sweep gets them.
func (st *Store) Sweep(now time.Time) int {
	st.mu.Lock()
	defer st.mu.Unlock()
	evicted := 0
	for id, e := range st.entries {
		if !e.mu.TryLock() {
			continue
		}
		idle := now.Sub(e.sess.UpdatedAt)
		e.mu.Unlock()
		if idle > st.ttl {
			delete(st.entries, id)
			evicted++
		}
	}
	return evicted
}

// Run sweeps on the given interval until the context ends. Meant to be
// supervised alongside the other long-lived loops.
func (st *Store) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			if n := st.Sweep(now); n > 0 {
				slog.Debug("Expired sessions evicted", "count", n)
			}
		}
	}
}
