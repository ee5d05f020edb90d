package core

// MonthlySummary aggregates one employee's ledger activity for one month.
// Net is derived, never stored as input.
type MonthlySummary struct {
	EmployeeID string
	Month      Month
	TotalIn    Money
	TotalOut   Money
	Count      int
}

func (s MonthlySummary) Net() Money {
	return Money{Cents: s.TotalIn.Cents - s.TotalOut.Cents}
}

// Summarize folds the month's transactions into totals. Rows outside
// the month are skipped, so callers may pass unfiltered lists. An empty
// month yields a zero summary.
func Summarize(employeeID string, month Month, txs []Transaction) MonthlySummary {
	s := MonthlySummary{EmployeeID: employeeID, Month: month}
	for _, tx := range txs {
		if !month.Contains(tx.Date) {
			continue
		}
		switch tx.Direction {
		case In:
			s.TotalIn.Cents += tx.Amount.Cents
		case Out:
			s.TotalOut.Cents += tx.Amount.Cents
		default:
			continue
		}
		s.Count++
	}
	return s
}
