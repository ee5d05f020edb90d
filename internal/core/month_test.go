package core

import (
	"testing"
	"time"
)

func TestParseMonth(t *testing.T) {
	cases := []struct {
		in   string
		want Month
		ok   bool
	}{
		{"03.2025", Month{Year: 2025, Month: time.March}, true},
		{"12.2024", Month{Year: 2024, Month: time.December}, true},
		{" 01.2030 ", Month{Year: 2030, Month: time.January}, true},
		{"13.2025", Month{}, false},
		{"00.2025", Month{}, false},
		{"3.199", Month{}, false},
		{"2025-03", Month{}, false},
		{"march", Month{}, false},
		{"", Month{}, false},
	}
	for i, tc := range cases {
		got, err := ParseMonth(tc.in)
		if tc.ok && (err != nil || got != tc.want) {
			t.Fatalf("case %d: got %+v err=%v", i, got, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("case %d: expected error", i)
		}
	}
}

func TestMonthString(t *testing.T) {
	m := Month{Year: 2025, Month: time.March}
	if m.String() != "03.2025" {
		t.Fatalf("unexpected format: %q", m.String())
	}
	if out, err := ParseMonth(m.String()); err != nil || out != m {
		t.Fatalf("round trip failed: %+v err=%v", out, err)
	}
}

func TestMonthContainsBoundary(t *testing.T) {
	m := Month{Year: 2025, Month: time.March}
	lastMinute := time.Date(2025, 3, 31, 23, 59, 0, 0, time.UTC)
	firstMinute := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	if !m.Contains(lastMinute) {
		t.Fatalf("23:59 on the last day should belong to the month")
	}
	if m.Contains(firstMinute) {
		t.Fatalf("first minute of next month should not belong")
	}
}

func TestMonthBefore(t *testing.T) {
	a := Month{Year: 2024, Month: time.December}
	b := Month{Year: 2025, Month: time.January}
	c := Month{Year: 2025, Month: time.February}
	if !a.Before(b) || !b.Before(c) || c.Before(a) {
		t.Fatalf("ordering broken: %v %v %v", a, b, c)
	}
}
