package checks

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/zombor/receipt-validator/internal/receipt"
)

const minReceiptKeywords = 3

var (
	receiptKeywords = []string{"receipt", "total", "subtotal", "tax", "thank you", "date", "time"}

	merchantLine        = regexp.MustCompile(`^[A-Za-z\s]+$`)
	merchantBoilerplate = regexp.MustCompile(`(?i)receipt|invoice|total|subtotal|tax|date|time|thank`)
	anyDigit            = regexp.MustCompile(`\d`)
)

// Patterns looks for the generic shape of a receipt in the raw text
func Patterns(raw string) receipt.Assessment {
	a := receipt.NewAssessment()
	lower := strings.ToLower(raw)

	found := 0
	for _, kw := range receiptKeywords {
		if strings.Contains(lower, kw) {
			found++
		}
	}
	if found < minReceiptKeywords {
		a.Raise(receipt.Warning(receipt.CodeInsufficientPatterns,
			"Text does not contain typical receipt patterns", receipt.SeverityMedium), 0.7, 0.3)
	}

	if !strings.ContainsAny(raw, "$€£") {
		a.Raise(receipt.Warning(receipt.CodeNoCurrencySymbol,
			"No currency symbol found in receipt", receipt.SeverityLow), 0.9, 0.1)
	}

	return a
}

// Elements checks that a merchant name and an amount appear somewhere in the text
func Elements(raw string) receipt.Assessment {
	a := receipt.NewAssessment()

	if !hasMerchantLine(raw) {
		a.Raise(receipt.Warning(receipt.CodeNoMerchantName,
			"Could not identify merchant name in receipt", receipt.SeverityMedium), 0.8, 0.2)
	}

	if !anyDigit.MatchString(raw) {
		a.Raise(receipt.Error(receipt.CodeNoAmount,
			"Could not identify receipt amount", receipt.SeverityHigh), 0.5, 0.5)
	}

	return a
}

func hasMerchantLine(raw string) bool {
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if utf8.RuneCountInString(line) <= 3 {
			continue
		}
		if merchantBoilerplate.MatchString(line) {
			continue
		}
		if merchantLine.MatchString(line) {
			return true
		}
	}
	return false
}
