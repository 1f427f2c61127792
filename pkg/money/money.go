// Package money formats rupee amounts and derives payment status.
package money

import (
	"strings"

	"github.com/shopspring/decimal"
)

const RupeeSign = "₹"

// Payment statuses of a discharge bill.
const (
	StatusPending = "pending"
	StatusPartial = "partial"
	StatusPaid    = "paid"
)

// FormatINR renders d with two decimals and Indian digit grouping:
// 1234567.5 becomes "12,34,567.50".
func FormatINR(d decimal.Decimal) string {
	fixed := d.Abs().StringFixed(2)
	intPart, frac, _ := strings.Cut(fixed, ".")

	var groups []string
	if len(intPart) > 3 {
		head, tail := intPart[:len(intPart)-3], intPart[len(intPart)-3:]
		for len(head) > 2 {
			groups = append([]string{head[len(head)-2:]}, groups...)
			head = head[:len(head)-2]
		}
		groups = append([]string{head}, groups...)
		groups = append(groups, tail)
	} else {
		groups = []string{intPart}
	}

	out := strings.Join(groups, ",") + "." + frac
	if d.IsNegative() && !d.Round(2).IsZero() {
		out = "-" + out
	}
	return out
}

// Rupees is FormatINR with the rupee sign.
func Rupees(d decimal.Decimal) string {
	return RupeeSign + FormatINR(d)
}

// Status derives the payment status of a bill from what has been paid.
// A zero bill counts as paid.
func Status(total, paid decimal.Decimal) string {
	switch {
	case paid.GreaterThanOrEqual(total):
		return StatusPaid
	case paid.IsPositive():
		return StatusPartial
	default:
		return StatusPending
	}
}

// Balance is what remains to be paid, never negative.
func Balance(total, paid decimal.Decimal) decimal.Decimal {
	b := total.Sub(paid)
	if b.IsNegative() {
		return decimal.Zero
	}
	return b
}
