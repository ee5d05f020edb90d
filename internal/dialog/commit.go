package dialog

import (
	"context"
	"fmt"
	"log/slog"

	"advancebot/internal/core"
	"advancebot/internal/session"
)

const auditDateLayout = "02.01.2006"

// commit runs the confirmation sequence: re-check the draft against
// the current catalog, append to the ledger, then audit, invalidate
// and publish. Only the append decides success; everything after it
// is best effort and must not undo a committed entry.
func (e *Engine) commit(ctx context.Context, s *session.Session) (Reply, error) {
	entries, err := e.entries(ctx)
	if err != nil {
		// Draft and token survive; the employee can confirm again.
		return storeTroubleReply("confirm the entry"), nil
	}
	if !core.TripleActive(entries, s.Draft.Direction, s.Draft.Category, s.Draft.Type) {
		slog.WarnContext(ctx, "Draft no longer matches the catalog, entry cancelled",
			"employee_id", s.EmployeeID,
			"direction", s.Draft.Direction,
			"category", s.Draft.Category,
			"type", s.Draft.Type,
		)
		s.ClearDraft()
		return catalogChangedReply(), nil
	}

	tx := core.Transaction{
		Date:        e.now().In(e.loc),
		Direction:   s.Draft.Direction,
		Category:    s.Draft.Category,
		Type:        s.Draft.Type,
		Description: s.Draft.Description,
		Amount:      s.Draft.Amount,
		Token:       s.Draft.Token,
	}
	if err := tx.Validate(); err != nil {
		slog.ErrorContext(ctx, "Confirmed draft failed validation", "employee_id", s.EmployeeID, "error", err)
		s.ClearDraft()
		return rejectedReply("The entry is no longer valid: "+err.Error()+".", menuReply(s.Name)), nil
	}

	if err := e.store.Append(ctx, s.EmployeeID, tx); err != nil {
		slog.ErrorContext(ctx, "Ledger append failed", "employee_id", s.EmployeeID, "token", tx.Token, "error", err)
		// Same draft, same token; a retry cannot double-post.
		return commitRetryReply(), nil
	}
	e.commits.Add(1)
	e.summaries.Delete(summaryCacheKey(s.EmployeeID, core.MonthOf(tx.Date)))

	collection := s.EmployeeID
	if emp, lerr := e.directory.Lookup(ctx, s.EmployeeID); lerr == nil {
		collection = emp.Collection
	}
	e.recordAudit(ctx, core.AuditRecord{
		Time:       tx.Date,
		Actor:      s.EmployeeID,
		Collection: collection,
		Action:     core.ActionAddTransaction,
		New:        auditRow(tx),
	})
	e.publishCommitted(ctx, s.EmployeeID, collection, tx)

	s.ClearDraft()

	var balance *core.Money
	if b, berr := e.balance(ctx, s.EmployeeID); berr == nil {
		balance = &b
	}
	return committedReply(tx, balance), nil
}

// recordAudit appends to the trail and only logs on failure. The
// ledger entry is already committed at this point, so an audit error
// must never surface as a conversation failure.
func (e *Engine) recordAudit(ctx context.Context, rec core.AuditRecord) {
	if err := e.audit.Record(ctx, rec); err != nil {
		e.auditFailures.Add(1)
		slog.ErrorContext(ctx, "Audit append failed after a committed write, trail is incomplete",
			"actor", rec.Actor,
			"action", rec.Action,
			"error", err,
		)
	}
}

func (e *Engine) publishCommitted(ctx context.Context, employeeID, collection string, tx core.Transaction) {
	if e.events == nil {
		slog.DebugContext(ctx, "Event publisher not configured, skipping commit event")
		return
	}
	ev := CommitEvent{
		Token:       tx.Token,
		EmployeeID:  employeeID,
		Collection:  collection,
		Month:       core.MonthOf(tx.Date).String(),
		Direction:   string(tx.Direction),
		AmountCents: tx.Amount.Cents,
		Category:    tx.Category,
		Type:        tx.Type,
		OccurredAt:  tx.Date.Format("2006-01-02 15:04:05"),
	}
	if err := e.events.PublishTransactionCommitted(ctx, ev); err != nil {
		e.publishFailures.Add(1)
		// Don't fail the conversation over a broker hiccup.
		slog.ErrorContext(ctx, "Failed to publish commit event", "token", tx.Token, "error", err)
	}
}

// auditRow serializes the appended ledger row for the trail's New
// column, pipes between fields.
func auditRow(tx core.Transaction) string {
	return fmt.Sprintf("%s | %s | %s | %s | %s | %s",
		tx.Date.Format(auditDateLayout),
		tx.Direction,
		tx.Category,
		tx.Type,
		tx.Amount,
		tx.Description,
	)
}
