/*
balance.go - Balance calculation

PURPOSE:
  Pure aggregation over one user's statements. No I/O, no clock, no
  ordering assumptions: the same multiset of statements always yields the
  same balance.

FORMULA:
  balance = sum(deposit + transfer_received) - sum(withdraw + transfer_sent)

EXAMPLE:
  deposit 1500, withdraw 1000   -> 500
  deposit 1000, withdraw 999    -> 1
  (no statements)               -> 0
*/
package ledger

import "github.com/shopspring/decimal"

// Totals splits a balance into its credit and debit sides.
type Totals struct {
	Credits decimal.Decimal
	Debits  decimal.Decimal
}

// Balance returns credits minus debits.
func (t Totals) Balance() decimal.Decimal {
	return t.Credits.Sub(t.Debits)
}

// Summarize sums credit and debit amounts separately.
func Summarize(sts []Statement) Totals {
	totals := Totals{Credits: decimal.Zero, Debits: decimal.Zero}
	for _, st := range sts {
		switch {
		case st.Type.IsCredit():
			totals.Credits = totals.Credits.Add(st.Amount)
		case st.Type.IsDebit():
			totals.Debits = totals.Debits.Add(st.Amount)
		}
	}
	return totals
}

// Calculate returns the balance of a set of statements, in any order.
func Calculate(sts []Statement) decimal.Decimal {
	return Summarize(sts).Balance()
}
