// Package extraction parses raw recognized receipt text into structured fields.
//
// Every function here is pure: the same text always yields the same fields.
// Extraction is best effort, a field that cannot be found is left empty.
package extraction

import (
	"strings"

	"github.com/zombor/receipt-validator/internal/receipt"
)

// Extract derives merchant, amounts, date and line items from raw text
func Extract(raw string) *receipt.Extracted {
	lines := splitLines(raw)

	out := &receipt.Extracted{
		Merchant: Merchant(lines),
		Date:     Date(raw),
		Items:    Items(lines),
	}

	amounts := Amounts(raw)
	if len(amounts) > 0 {
		out.Total = &amounts[0]
	}
	if len(amounts) > 1 {
		out.Subtotal = &amounts[1]
	}
	if len(amounts) > 2 {
		out.Tax = &amounts[2]
	}

	return out
}

// splitLines returns the trimmed, non-empty lines of raw
func splitLines(raw string) []string {
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	var lines []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
