package checks

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/zombor/receipt-validator/internal/receipt"
)

var (
	largeAmount = decimal.NewFromInt(10000)
	roundAmount = decimal.NewFromInt(10)
)

// Fields sanity-checks the user's declared amount and date on their own.
// now is the validation time; dates are compared by calendar day.
func Fields(in receipt.Input, now time.Time) receipt.Assessment {
	a := receipt.NewAssessment()

	if !in.Amount.IsPositive() {
		a.Raise(receipt.Error(receipt.CodeInvalidAmount,
			"Receipt amount must be greater than zero", receipt.SeverityHigh), 1, 0.5)
	}
	if in.Amount.GreaterThan(largeAmount) {
		a.Raise(receipt.Warning(receipt.CodeLargeAmount,
			"Receipt amount is unusually large", receipt.SeverityMedium), 1, 0.2)
	}
	if in.Amount.IsInteger() && in.Amount.GreaterThan(roundAmount) {
		a.Raise(receipt.Warning(receipt.CodeRoundAmount,
			"Receipt amount is a round number (may indicate fake receipt)", receipt.SeverityLow), 1, 0.1)
	}

	if in.Date.IsZero() {
		return a
	}
	date := receipt.Day(in.Date)
	today := receipt.Day(now)
	if date.After(today) {
		a.Raise(receipt.Error(receipt.CodeFutureDate,
			"Receipt date cannot be in the future", receipt.SeverityHigh), 1, 0.5)
	}
	if date.Before(today.AddDate(0, 0, -365)) {
		a.Raise(receipt.Warning(receipt.CodeOldDate,
			"Receipt date is more than one year old", receipt.SeverityMedium), 1, 0.2)
	}

	return a
}
