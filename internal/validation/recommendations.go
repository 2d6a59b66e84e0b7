package validation

import "github.com/zombor/receipt-validator/internal/receipt"

const (
	highRiskRecommendation = "This receipt has a high risk score. Please verify the information."
	passedRecommendation   = "Receipt validation passed successfully!"
)

var recommendationTemplates = map[string]string{
	receipt.CodeDuplicateReceipt: "This receipt appears to be a duplicate. Please check if you have already uploaded it.",
	receipt.CodeOCRFailed:        "Please ensure the receipt image is clear and readable.",
	receipt.CodeInsufficientText: "Please ensure the receipt image is clear and readable.",
	receipt.CodeMerchantMismatch: "Please verify the merchant name matches the receipt.",
	receipt.CodeAmountMismatch:   "Please verify the amount matches the receipt total.",
	receipt.CodeDateMismatch:     "Please verify the date matches the receipt.",
	receipt.CodeInvalidAmount:    "Please enter an amount greater than zero.",
	receipt.CodeFutureDate:       "Please check the receipt date; it cannot be in the future.",
}

// Recommendations turns flags into human-readable guidance. Sentences follow
// flag order and are never repeated.
func Recommendations(flags []receipt.Flag, risk float64) []string {
	var out []string
	if risk > RiskThreshold {
		out = append(out, highRiskRecommendation)
	}

	seen := make(map[string]bool)
	for _, f := range flags {
		msg, ok := recommendationTemplates[f.Code]
		if !ok || seen[msg] {
			continue
		}
		seen[msg] = true
		out = append(out, msg)
	}

	if len(out) == 0 {
		out = append(out, passedRecommendation)
	}
	return out
}
