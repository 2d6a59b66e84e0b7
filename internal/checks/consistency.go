package checks

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zombor/receipt-validator/internal/receipt"
)

const (
	// MerchantSimilarityThreshold is the lowest similarity accepted as the same merchant
	MerchantSimilarityThreshold = 0.7
	dateTolerance               = 24 * time.Hour
)

var amountTolerance = decimal.RequireFromString("0.01")

// Consistency compares what the user declared with what was read off the receipt.
// A field is only compared when both sides have it.
func Consistency(in receipt.Input, ex *receipt.Extracted) receipt.Assessment {
	a := receipt.NewAssessment()
	if ex == nil {
		return a
	}

	userMerchant := strings.TrimSpace(in.Merchant)
	if userMerchant != "" && ex.Merchant != "" {
		if Similarity(userMerchant, ex.Merchant) < MerchantSimilarityThreshold {
			a.Raise(receipt.Warning(receipt.CodeMerchantMismatch,
				fmt.Sprintf("Merchant name doesn't match OCR extraction: %q", ex.Merchant),
				receipt.SeverityMedium), 1, 0.2)
		}
	}

	if extracted := ex.Amount(); extracted != nil {
		if in.Amount.Sub(*extracted).Abs().GreaterThan(amountTolerance) {
			a.Raise(receipt.Warning(receipt.CodeAmountMismatch,
				fmt.Sprintf("Amount doesn't match OCR extraction: %s", extracted.StringFixed(2)),
				receipt.SeverityMedium), 1, 0.3)
		}
	}

	if ex.Date != nil && !in.Date.IsZero() {
		diff := receipt.Day(in.Date).Sub(receipt.Day(*ex.Date))
		if diff < 0 {
			diff = -diff
		}
		if diff > dateTolerance {
			a.Raise(receipt.Warning(receipt.CodeDateMismatch,
				fmt.Sprintf("Date doesn't match OCR extraction: %s", ex.Date.Format(time.DateOnly)),
				receipt.SeverityMedium), 1, 0.2)
		}
	}

	return a
}
