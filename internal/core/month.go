package core

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Month identifies a calendar month. The wire and display form is
// "MM.YYYY", the key used by the summary collection.
type Month struct {
	Year  int
	Month time.Month
}

// MonthOf buckets t by calendar month in t's location. Callers convert
// to the configured timezone before bucketing.
func MonthOf(t time.Time) Month {
	return Month{Year: t.Year(), Month: t.Month()}
}

// ParseMonth parses the "MM.YYYY" form, e.g. "03.2025".
func ParseMonth(s string) (Month, error) {
	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) != 2 {
		return Month{}, ErrInvalidMonth
	}
	mm, err := strconv.Atoi(parts[0])
	if err != nil || mm < 1 || mm > 12 {
		return Month{}, ErrInvalidMonth
	}
	yyyy, err := strconv.Atoi(parts[1])
	if err != nil || yyyy < 2000 || yyyy > 9999 {
		return Month{}, ErrInvalidMonth
	}
	return Month{Year: yyyy, Month: time.Month(mm)}, nil
}

func (m Month) String() string {
	return fmt.Sprintf("%02d.%04d", int(m.Month), m.Year)
}

func (m Month) IsZero() bool {
	return m.Year == 0 && m.Month == 0
}

// Contains reports whether t falls inside m. Timestamps are localized
// when the transaction is built, so t's own location is authoritative.
func (m Month) Contains(t time.Time) bool {
	return t.Year() == m.Year && t.Month() == m.Month
}

// Before orders months chronologically.
func (m Month) Before(o Month) bool {
	if m.Year != o.Year {
		return m.Year < o.Year
	}
	return m.Month < o.Month
}
