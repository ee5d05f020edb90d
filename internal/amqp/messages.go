package amqp

import (
	"encoding/json"
	"time"

	"advancebot/internal/dialog"
)

// CommitMessage is the wire form of a committed ledger entry. It
// carries the commit token so consumers can deduplicate redelivered
// messages, and enough of the entry to recompute the affected month.
type CommitMessage struct {
	Token       string    `json:"token"`
	EmployeeID  string    `json:"employee_id"`
	Collection  string    `json:"collection"`
	Month       string    `json:"month"`
	Direction   string    `json:"direction"`
	AmountCents int64     `json:"amount_cents"`
	Category    string    `json:"category"`
	Type        string    `json:"type"`
	OccurredAt  string    `json:"occurred_at"`
	Timestamp   time.Time `json:"timestamp"`
}

// NewCommitMessage wraps an engine event for publishing.
func NewCommitMessage(ev dialog.CommitEvent) *CommitMessage {
	return &CommitMessage{
		Token:       ev.Token,
		EmployeeID:  ev.EmployeeID,
		Collection:  ev.Collection,
		Month:       ev.Month,
		Direction:   ev.Direction,
		AmountCents: ev.AmountCents,
		Category:    ev.Category,
		Type:        ev.Type,
		OccurredAt:  ev.OccurredAt,
		Timestamp:   time.Now(),
	}
}

// ToJSON converts the message to JSON bytes.
func (m *CommitMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// CommitMessageFromJSON parses a message from JSON bytes.
func CommitMessageFromJSON(data []byte) (*CommitMessage, error) {
	var msg CommitMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
