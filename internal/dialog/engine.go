// Package dialog drives the guided conversation that turns employee
// messages into validated ledger entries. Each message advances a
// per-employee state machine; every step is validated against the
// reference catalog before the next one is offered, and nothing is
// written until the employee confirms.
package dialog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"advancebot/internal/cache"
	"advancebot/internal/core"
	"advancebot/internal/ledger"
	"advancebot/internal/session"
)

// EventPublisher pushes commit notifications to interested consumers.
// A nil publisher disables events without disabling commits.
type EventPublisher interface {
	PublishTransactionCommitted(ctx context.Context, ev CommitEvent) error
}

// CommitEvent describes one committed ledger entry. It is emitted
// after the append succeeds and carries the commit token so consumers
// can deduplicate redeliveries.
type CommitEvent struct {
	Token       string `json:"token"`
	EmployeeID  string `json:"employee_id"`
	Collection  string `json:"collection"`
	Month       string `json:"month"`
	Direction   string `json:"direction"`
	AmountCents int64  `json:"amount_cents"`
	Category    string `json:"category"`
	Type        string `json:"type"`
	OccurredAt  string `json:"occurred_at"`
}

// Options carries the engine's collaborators. Sessions, Store, Audit,
// Catalog and Directory are required; the rest have working defaults.
type Options struct {
	Sessions  *session.Store
	Store     ledger.Store
	Audit     ledger.AuditLog
	Catalog   ledger.Catalog
	Directory ledger.Directory

	// Events may be nil when no broker is configured.
	Events EventPublisher

	// Location localizes transaction dates. Defaults to UTC.
	Location *time.Location

	// ReadAttempts and ReadBackoff bound retries of catalog and
	// summary reads. Ledger appends are never retried blindly.
	ReadAttempts int
	ReadBackoff  time.Duration

	// SummaryTTL and SummarySize bound the monthly summary cache.
	SummaryTTL  time.Duration
	SummarySize int
}

// Stats is a snapshot of the engine's counters.
type Stats struct {
	Commits         int64
	AuditFailures   int64
	PublishFailures int64
	ActiveSessions  int64
}

// Engine is the conversation state machine. It is safe for concurrent
// use; messages from the same employee are handled one at a time.
type Engine struct {
	sessions  *session.Store
	store     ledger.Store
	audit     ledger.AuditLog
	catalog   ledger.Catalog
	directory ledger.Directory
	events    EventPublisher
	summaries *cache.Cache[core.MonthlySummary]
	loc       *time.Location

	attempts int
	backoff  time.Duration
	newToken func() string
	now      func() time.Time

	commits         atomic.Int64
	auditFailures   atomic.Int64
	publishFailures atomic.Int64
}

// New builds an Engine from opts, applying defaults for the optional
// fields.
func New(opts Options) *Engine {
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	attempts := opts.ReadAttempts
	if attempts <= 0 {
		attempts = 3
	}
	backoff := opts.ReadBackoff
	if backoff <= 0 {
		backoff = 250 * time.Millisecond
	}
	ttl := opts.SummaryTTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	size := opts.SummarySize
	if size <= 0 {
		size = 256
	}
	return &Engine{
		sessions:  opts.Sessions,
		store:     opts.Store,
		audit:     opts.Audit,
		catalog:   opts.Catalog,
		directory: opts.Directory,
		events:    opts.Events,
		summaries: cache.New[core.MonthlySummary](size, ttl),
		loc:       loc,
		attempts:  attempts,
		backoff:   backoff,
		newToken:  uuid.NewString,
		now:       time.Now,
	}
}

// Stats returns the current counter values.
func (e *Engine) Stats() Stats {
	return Stats{
		Commits:         e.commits.Load(),
		AuditFailures:   e.auditFailures.Load(),
		PublishFailures: e.publishFailures.Load(),
		ActiveSessions:  int64(e.sessions.Len()),
	}
}

// Run evicts expired summary cache entries on the given interval until
// the context ends.
func (e *Engine) Run(ctx context.Context, interval time.Duration) error {
	return e.summaries.Run(ctx, interval)
}

// Handle processes one message from an employee and returns the next
// reply. Concurrent messages from the same employee are serialized;
// the later one sees the state the earlier one left behind.
func (e *Engine) Handle(ctx context.Context, employeeID, text string) (Reply, error) {
	employeeID = strings.TrimSpace(employeeID)
	if employeeID == "" {
		return Reply{}, &core.ValidationError{Field: "employee_id", Reason: "must not be empty"}
	}
	var reply Reply
	err := e.sessions.With(employeeID, func(s *session.Session) error {
		var err error
		reply, err = e.dispatch(ctx, s, strings.TrimSpace(text))
		return err
	})
	return reply, err
}

func (e *Engine) dispatch(ctx context.Context, s *session.Session, input string) (Reply, error) {
	if s.State == session.StateIdle && s.Name == "" {
		emp, err := e.lookup(ctx, s.EmployeeID)
		switch {
		case err == nil:
			s.Name = emp.Name
		case errors.Is(err, ledger.ErrUnknownEmployee):
			s.State = session.StateAwaitingName
			return askNameReply(), nil
		default:
			slog.ErrorContext(ctx, "Directory lookup failed", "employee_id", s.EmployeeID, "error", err)
			return storeTroubleReply("look you up"), nil
		}
	}

	switch s.State {
	case session.StateAwaitingName:
		return e.handleName(ctx, s, input)
	case session.StateIdle:
		return e.handleIdle(ctx, s, input)
	case session.StateAwaitingDirection:
		return e.handleDirection(ctx, s, input)
	case session.StateAwaitingCategory:
		return e.handleCategory(ctx, s, input)
	case session.StateAwaitingType:
		return e.handleType(ctx, s, input)
	case session.StateAwaitingAmount:
		return e.handleAmount(ctx, s, input)
	case session.StateAwaitingDescription:
		return e.handleDescription(ctx, s, input)
	case session.StateAwaitingConfirmation:
		return e.handleConfirmation(ctx, s, input)
	case session.StateAwaitingSummaryMonth:
		return e.handleSummaryMonth(ctx, s, input)
	default:
		s.Reset()
		return menuReply(s.Name), nil
	}
}

func (e *Engine) handleIdle(ctx context.Context, s *session.Session, input string) (Reply, error) {
	switch normalize(input) {
	case "", "menu", "start", "/start", "help", "hi", "hello":
		return menuReply(s.Name), nil
	case "add", "/add", "new", "record":
		return e.beginEntry(ctx, s)
	case "balance", "/balance":
		return e.balanceReply(ctx, s.EmployeeID)
	case "summary", "/summary", "months":
		return e.beginSummary(ctx, s)
	case "cancel", "/cancel":
		r := menuReply(s.Name)
		r.Text = "Nothing in progress. " + r.Text
		return r, nil
	default:
		return unknownCommandReply(s.Name), nil
	}
}

func (e *Engine) beginEntry(ctx context.Context, s *session.Session) (Reply, error) {
	entries, err := e.entries(ctx)
	if err != nil {
		return storeTroubleReply("start a new entry"), nil
	}
	dirs := core.Directions(entries)
	if len(dirs) == 0 {
		return Reply{Text: "The reference catalog is empty; nothing can be recorded yet.", Options: menuOptions()}, nil
	}
	s.State = session.StateAwaitingDirection
	return directionPrompt(dirs), nil
}

func (e *Engine) handleDirection(ctx context.Context, s *session.Session, input string) (Reply, error) {
	if isCancel(input) {
		return e.cancelEntry(s), nil
	}
	if isBack(input) {
		s.ClearDraft()
		s.State = session.StateIdle
		return menuReply(s.Name), nil
	}
	entries, err := e.entries(ctx)
	if err != nil {
		return storeTroubleReply("check the catalog"), nil
	}
	dirs := core.Directions(entries)
	dir, perr := core.ParseDirection(input)
	if perr != nil || !containsDirection(dirs, dir) {
		return rejectedReply("Pick one of the offered directions.", directionPrompt(dirs)), nil
	}
	s.Draft.Direction = dir
	s.State = session.StateAwaitingCategory
	return categoryPrompt(core.CategoriesFor(entries, dir)), nil
}

func (e *Engine) handleCategory(ctx context.Context, s *session.Session, input string) (Reply, error) {
	if isCancel(input) {
		return e.cancelEntry(s), nil
	}
	entries, err := e.entries(ctx)
	if err != nil {
		return storeTroubleReply("check the catalog"), nil
	}
	if isBack(input) {
		s.Draft.Direction = ""
		s.State = session.StateAwaitingDirection
		return directionPrompt(core.Directions(entries)), nil
	}
	cats := core.CategoriesFor(entries, s.Draft.Direction)
	cat, ok := matchOption(input, cats)
	if !ok {
		return rejectedReply("Pick one of the listed categories.", categoryPrompt(cats)), nil
	}
	s.Draft.Category = cat
	s.State = session.StateAwaitingType
	return typePrompt(core.TypesFor(entries, s.Draft.Direction, cat)), nil
}

func (e *Engine) handleType(ctx context.Context, s *session.Session, input string) (Reply, error) {
	if isCancel(input) {
		return e.cancelEntry(s), nil
	}
	entries, err := e.entries(ctx)
	if err != nil {
		return storeTroubleReply("check the catalog"), nil
	}
	if isBack(input) {
		s.Draft.Category = ""
		s.State = session.StateAwaitingCategory
		return categoryPrompt(core.CategoriesFor(entries, s.Draft.Direction)), nil
	}
	types := core.TypesFor(entries, s.Draft.Direction, s.Draft.Category)
	typ, ok := matchOption(input, types)
	if !ok {
		return rejectedReply("Pick one of the listed types.", typePrompt(types)), nil
	}
	s.Draft.Type = typ
	s.State = session.StateAwaitingAmount
	return amountPrompt(), nil
}

func (e *Engine) handleAmount(ctx context.Context, s *session.Session, input string) (Reply, error) {
	if isCancel(input) {
		return e.cancelEntry(s), nil
	}
	if isBack(input) {
		s.Draft.Type = ""
		s.State = session.StateAwaitingType
		entries, err := e.entries(ctx)
		if err != nil {
			return storeTroubleReply("check the catalog"), nil
		}
		return typePrompt(core.TypesFor(entries, s.Draft.Direction, s.Draft.Category)), nil
	}
	cents, err := core.ParseDecimalToCents(input)
	if err != nil {
		return rejectedReply("That is not a valid amount.", amountPrompt()), nil
	}
	s.Draft.Amount = core.Money{Cents: cents}
	s.State = session.StateAwaitingDescription
	return descriptionPrompt(), nil
}

func (e *Engine) handleDescription(ctx context.Context, s *session.Session, input string) (Reply, error) {
	if isCancel(input) {
		return e.cancelEntry(s), nil
	}
	if isBack(input) {
		s.Draft.Amount = core.Money{}
		s.State = session.StateAwaitingAmount
		return amountPrompt(), nil
	}
	desc := strings.TrimSpace(input)
	if desc == "" {
		return rejectedReply("The description must not be empty.", descriptionPrompt()), nil
	}
	if utf8.RuneCountInString(desc) > core.MaxDescriptionRunes {
		return rejectedReply(fmt.Sprintf("The description is too long (max %d characters).", core.MaxDescriptionRunes), descriptionPrompt()), nil
	}
	s.Draft.Description = desc
	s.Draft.Token = e.newToken()
	s.State = session.StateAwaitingConfirmation
	return confirmationPrompt(s.Draft), nil
}

func (e *Engine) handleConfirmation(ctx context.Context, s *session.Session, input string) (Reply, error) {
	switch {
	case isAffirm(input):
		return e.commit(ctx, s)
	case isCancel(input):
		return e.cancelEntry(s), nil
	default:
		return rejectedReply("Answer \"confirm\" or \"cancel\".", confirmationPrompt(s.Draft)), nil
	}
}

func (e *Engine) beginSummary(ctx context.Context, s *session.Session) (Reply, error) {
	months, err := e.months(ctx, s.EmployeeID)
	if err != nil {
		return storeTroubleReply("list your months"), nil
	}
	if len(months) == 0 {
		return Reply{Text: "No recorded activity yet.", Options: menuOptions()}, nil
	}
	s.State = session.StateAwaitingSummaryMonth
	return monthPrompt(months), nil
}

func (e *Engine) handleSummaryMonth(ctx context.Context, s *session.Session, input string) (Reply, error) {
	if isCancel(input) || isBack(input) {
		s.State = session.StateIdle
		return menuReply(s.Name), nil
	}
	m, err := core.ParseMonth(input)
	if err != nil {
		return Reply{Text: "Use the MM.YYYY form, e.g. 03.2025, or send \"cancel\".", Options: []string{"cancel"}}, nil
	}
	sum, err := e.summaryFor(ctx, s.EmployeeID, m)
	if err != nil {
		return storeTroubleReply("compute the summary"), nil
	}
	s.State = session.StateIdle
	return summaryReply(sum), nil
}

func (e *Engine) handleName(ctx context.Context, s *session.Session, input string) (Reply, error) {
	name := strings.TrimSpace(input)
	if name == "" || isCancel(name) || isBack(name) {
		return Reply{Text: "Registration is required before recording transactions. What name should the ledger use?"}, nil
	}
	if utf8.RuneCountInString(name) < core.MinNameRunes {
		return nameRejectedReply("it must have at least 2 characters"), nil
	}
	now := e.now().In(e.loc)
	emp := core.Employee{
		ID:         s.EmployeeID,
		Name:       name,
		Collection: collectionName(name, s.EmployeeID),
		Registered: now,
		Active:     true,
	}
	if err := emp.Validate(); err != nil {
		var verr *core.ValidationError
		if errors.As(err, &verr) {
			return nameRejectedReply(verr.Reason), nil
		}
		return nameRejectedReply(err.Error()), nil
	}
	if err := e.directory.Register(ctx, emp); err != nil {
		slog.ErrorContext(ctx, "Employee registration failed", "employee_id", s.EmployeeID, "error", err)
		return storeTroubleReply("register you"), nil
	}
	e.recordAudit(ctx, core.AuditRecord{
		Time:       now,
		Actor:      s.EmployeeID,
		Collection: emp.Collection,
		Action:     core.ActionCreateCollection,
		New:        emp.Collection,
	})
	e.recordAudit(ctx, core.AuditRecord{
		Time:       now,
		Actor:      s.EmployeeID,
		Collection: emp.Collection,
		Action:     core.ActionRegisterEmployee,
		New:        name,
	})
	s.Name = name
	s.State = session.StateIdle
	r := menuReply(name)
	r.Text = fmt.Sprintf("Welcome, %s. Your ledger is ready. ", name) + "Send \"add\" to record a transaction, \"balance\" for your balance, \"summary\" for month totals."
	return r, nil
}

func (e *Engine) cancelEntry(s *session.Session) Reply {
	s.ClearDraft()
	s.State = session.StateIdle
	return cancelledReply()
}

func (e *Engine) balanceReply(ctx context.Context, employeeID string) (Reply, error) {
	b, err := e.balance(ctx, employeeID)
	if err != nil {
		return storeTroubleReply("read your balance"), nil
	}
	return balanceReplyText(b), nil
}

// collectionName derives a per-employee collection label that stays
// readable and unique even when two employees share a name.
func collectionName(name, employeeID string) string {
	return fmt.Sprintf("%s (%s)", name, employeeID)
}

func containsDirection(dirs []core.Direction, d core.Direction) bool {
	for _, x := range dirs {
		if x == d {
			return true
		}
	}
	return false
}
