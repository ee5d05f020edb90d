package core

import "testing"

func refEntries() []ReferenceEntry {
	return []ReferenceEntry{
		{Direction: In, Category: "Advance", Type: "Cash", Active: true},
		{Direction: In, Category: "Advance", Type: "Card", Active: true},
		{Direction: In, Category: "Refund", Type: "Cash", Active: false},
		{Direction: Out, Category: "Transport", Type: "Taxi", Active: true},
		{Direction: Out, Category: "Transport", Type: "Fuel", Active: true},
		{Direction: Out, Category: "Office", Type: "Supplies", Active: true},
		{Direction: Out, Category: "Office", Type: "Courier", Active: false},
	}
}

func TestDirections(t *testing.T) {
	got := Directions(refEntries())
	if len(got) != 2 || got[0] != In || got[1] != Out {
		t.Fatalf("unexpected directions: %v", got)
	}
	onlyOut := []ReferenceEntry{{Direction: Out, Category: "A", Type: "B", Active: true}}
	if got := Directions(onlyOut); len(got) != 1 || got[0] != Out {
		t.Fatalf("unexpected directions: %v", got)
	}
}

func TestCategoriesFor(t *testing.T) {
	got := CategoriesFor(refEntries(), Out)
	if len(got) != 2 || got[0] != "Transport" || got[1] != "Office" {
		t.Fatalf("unexpected categories: %v", got)
	}
	// Inactive-only category must not appear.
	in := CategoriesFor(refEntries(), In)
	if len(in) != 1 || in[0] != "Advance" {
		t.Fatalf("unexpected categories: %v", in)
	}
}

func TestTypesFor(t *testing.T) {
	got := TypesFor(refEntries(), Out, "Transport")
	if len(got) != 2 || got[0] != "Taxi" || got[1] != "Fuel" {
		t.Fatalf("unexpected types: %v", got)
	}
	// Case-insensitive category match.
	if got := TypesFor(refEntries(), Out, "transport"); len(got) != 2 {
		t.Fatalf("case-insensitive lookup failed: %v", got)
	}
	// Inactive types are hidden.
	if got := TypesFor(refEntries(), Out, "Office"); len(got) != 1 || got[0] != "Supplies" {
		t.Fatalf("unexpected types: %v", got)
	}
}

func TestTripleActive(t *testing.T) {
	entries := refEntries()
	cases := []struct {
		dir  Direction
		cat  string
		typ  string
		want bool
	}{
		{Out, "Transport", "Taxi", true},
		{Out, "transport", "taxi", true}, // case-insensitive
		{Out, "Office", "Courier", false},
		{In, "Refund", "Cash", false},
		{In, "Advance", "Cash", true},
		{Out, "Advance", "Cash", false}, // wrong direction
	}
	for i, tc := range cases {
		if got := TripleActive(entries, tc.dir, tc.cat, tc.typ); got != tc.want {
			t.Fatalf("case %d: expected %v, got %v", i, tc.want, got)
		}
	}
}
