package google

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"advancebot/internal/core"
)

// Employee collection layout, columns A..G. G holds the running-balance
// formula and is never written by this adapter.
const (
	colDate = iota
	colIn
	colOut
	colCategory
	colType
	colDescription
	colBalance
)

const dateLayout = "02.01.2006"

// ledgerRow renders the writable part of a row, columns A..F.
// Exactly one of the amount cells carries a number.
func ledgerRow(tx core.Transaction) []any {
	amount := float64(tx.Amount.Cents) / 100.0
	in, out := any(""), any("")
	if tx.Direction == core.In {
		in = amount
	} else {
		out = amount
	}
	return []any{tx.Date.Format(dateLayout), in, out, tx.Category, tx.Type, tx.Description}
}

// parseLedgerRow reads one sheet row back into a transaction. Header
// rows and decorative rows fail the date parse and report ok=false.
func parseLedgerRow(cols []string, loc *time.Location) (core.Transaction, bool) {
	if len(cols) <= colDescription {
		return core.Transaction{}, false
	}
	date, err := time.ParseInLocation(dateLayout, strings.TrimSpace(cols[colDate]), loc)
	if err != nil {
		return core.Transaction{}, false
	}
	inCents, inOK := parseAmountCents(cols[colIn])
	outCents, outOK := parseAmountCents(cols[colOut])
	tx := core.Transaction{
		Date:        date,
		Category:    strings.TrimSpace(cols[colCategory]),
		Type:        strings.TrimSpace(cols[colType]),
		Description: strings.TrimSpace(cols[colDescription]),
	}
	switch {
	case inOK && inCents > 0:
		tx.Direction = core.In
		tx.Amount = core.Money{Cents: inCents}
	case outOK && outCents > 0:
		tx.Direction = core.Out
		tx.Amount = core.Money{Cents: outCents}
	default:
		return core.Transaction{}, false
	}
	return tx, true
}

// parseAmountCents converts a sheet cell to cents. Cells come back with
// locale decoration: digit-group spaces, NBSP, narrow NBSP, decimal
// comma. Negative values pass through for balance cells.
func parseAmountCents(s string) (int64, bool) {
	s = strings.Map(func(r rune) rune {
		switch r {
		case ' ', ' ', ' ':
			return -1
		}
		return r
	}, strings.TrimSpace(s))
	if s == "" {
		return 0, false
	}
	s = strings.ReplaceAll(s, ",", ".")
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	if f < 0 {
		return int64(f*100.0 - 0.5), true
	}
	return int64(f*100.0 + 0.5), true
}

func parseActive(s string) bool {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRUE", "1", "YES", "Y", "ACTIVE":
		return true
	}
	return false
}

func toStrings(in []any) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(strFromCell(v))
	}
	return out
}

// strFromCell formats one cell. float64 goes through FormatFloat so
// large numbers never come back in scientific notation.
func strFromCell(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		if t {
			return "TRUE"
		}
		return "FALSE"
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func safeGet(arr []string, idx int) string {
	if idx < 0 || idx >= len(arr) {
		return ""
	}
	return arr[idx]
}
