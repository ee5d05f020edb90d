package core

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	In  Direction = "IN"
	Out Direction = "OUT"
)

// Audit actions recorded alongside ledger writes.
const (
	ActionAddTransaction   = "ADD_TRANSACTION"
	ActionRegisterEmployee = "REGISTER_EMPLOYEE"
	ActionCreateCollection = "CREATE_COLLECTION"
)

// Entry limits shared by validation and the conversation prompts.
const (
	MaxDescriptionRunes = 256
	MinNameRunes        = 2
)

type (
	// Direction tells whether money moved to the employee (In) or was
	// spent by the employee on the company's behalf (Out).
	Direction string

	Money struct {
		Cents int64
	}

	// Transaction is one confirmed ledger entry. Token is the commit
	// token minted when the entry reached confirmation; stores use it
	// to recognize a re-sent append.
	Transaction struct {
		Date        time.Time
		Direction   Direction
		Category    string
		Type        string
		Description string
		Amount      Money
		Token       string
	}

	// Employee is a directory row. Collection names the employee's
	// ledger collection (sheet tab, table scope).
	Employee struct {
		ID         string
		Name       string
		Collection string
		Registered time.Time
		Active     bool
	}

	// ReferenceEntry is one catalog row; only active entries take part
	// in menus and validation.
	ReferenceEntry struct {
		Direction Direction
		Category  string
		Type      string
		Active    bool
	}

	// AuditRecord is one append-only trail row. For appends New carries
	// the serialized ledger row and Old stays empty.
	AuditRecord struct {
		Time       time.Time
		Actor      string
		Collection string
		Action     string
		Field      string
		Old        string
		New        string
	}
)

var (
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidDirection = errors.New("invalid direction")
	ErrInvalidMonth     = errors.New("invalid month")
	ErrEmptyDescription = errors.New("empty description")
	ErrEmptyCategory    = errors.New("empty category")
	ErrEmptyType        = errors.New("empty type")
	ErrEmptyName        = errors.New("empty name")
)

// ValidationError reports employee input rejected by an entry rule.
// The conversation shows Reason and stays on the same step.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Reason
}

// ParseDirection accepts the canonical IN/OUT labels in any case.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case string(In):
		return In, nil
	case string(Out):
		return Out, nil
	}
	return "", ErrInvalidDirection
}

func (d Direction) Validate() error {
	if d != In && d != Out {
		return ErrInvalidDirection
	}
	return nil
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (t Transaction) Validate() error {
	if t.Date.IsZero() {
		return errors.New("transaction date cannot be zero")
	}
	if err := t.Direction.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(t.Category) == "" {
		return ErrEmptyCategory
	}
	if strings.TrimSpace(t.Type) == "" {
		return ErrEmptyType
	}
	if len(strings.TrimSpace(t.Description)) == 0 {
		return ErrEmptyDescription
	}
	if utf8.RuneCountInString(t.Description) > MaxDescriptionRunes {
		return errors.New("description too long (max 256 characters)")
	}
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	return nil
}

func (e Employee) Validate() error {
	if strings.TrimSpace(e.ID) == "" {
		return errors.New("empty employee id")
	}
	if utf8.RuneCountInString(strings.TrimSpace(e.Name)) < MinNameRunes {
		return ErrEmptyName
	}
	if strings.TrimSpace(e.Collection) == "" {
		return errors.New("empty collection name")
	}
	return nil
}
