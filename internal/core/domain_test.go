package core

import (
	"strings"
	"testing"
	"time"
)

func TestMoneyValidate(t *testing.T) {
	if err := (Money{Cents: 1}).Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if err := (Money{Cents: 0}).Validate(); err == nil {
		t.Fatalf("expected error for zero")
	}
	if err := (Money{Cents: -5}).Validate(); err == nil {
		t.Fatalf("expected error for negative")
	}
}

func TestParseDirection(t *testing.T) {
	cases := []struct {
		in   string
		want Direction
		ok   bool
	}{
		{"IN", In, true},
		{"out", Out, true},
		{" In ", In, true},
		{"sideways", "", false},
		{"", "", false},
	}
	for i, tc := range cases {
		got, err := ParseDirection(tc.in)
		if tc.ok && (err != nil || got != tc.want) {
			t.Fatalf("case %d: got %q err=%v", i, got, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("case %d: expected error", i)
		}
	}
}

func TestTransactionValidate(t *testing.T) {
	good := Transaction{
		Date:        time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC),
		Direction:   Out,
		Category:    "Transport",
		Type:        "Taxi",
		Description: "airport ride",
		Amount:      Money{Cents: 12550},
		Token:       "tok-1",
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected valid, got %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Transaction)
	}{
		{"zero date", func(tx *Transaction) { tx.Date = time.Time{} }},
		{"bad direction", func(tx *Transaction) { tx.Direction = "UP" }},
		{"empty category", func(tx *Transaction) { tx.Category = "  " }},
		{"empty type", func(tx *Transaction) { tx.Type = "" }},
		{"empty description", func(tx *Transaction) { tx.Description = " " }},
		{"long description", func(tx *Transaction) { tx.Description = strings.Repeat("x", 257) }},
		{"zero amount", func(tx *Transaction) { tx.Amount = Money{} }},
	}
	for _, tc := range cases {
		tx := good
		tc.mutate(&tx)
		if err := tx.Validate(); err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}
}

func TestEmployeeValidate(t *testing.T) {
	good := Employee{ID: "1001", Name: "Dana", Collection: "Dana", Registered: time.Now(), Active: true}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected valid, got %v", err)
	}
	cases := []struct {
		name   string
		mutate func(*Employee)
	}{
		{"empty id", func(e *Employee) { e.ID = "" }},
		{"short name", func(e *Employee) { e.Name = "D" }},
		{"empty collection", func(e *Employee) { e.Collection = "" }},
	}
	for _, tc := range cases {
		e := good
		tc.mutate(&e)
		if err := e.Validate(); err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}
}

func TestValidationErrorMessage(t *testing.T) {
	err := &ValidationError{Field: "amount", Reason: "must be a positive number"}
	if err.Error() != "amount: must be a positive number" {
		t.Fatalf("unexpected message: %q", err.Error())
	}
}
