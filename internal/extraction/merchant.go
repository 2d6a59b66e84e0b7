package extraction

import (
	"regexp"
	"unicode"
	"unicode/utf8"
)

const (
	merchantScanLines     = 5
	merchantFallbackLines = 3
	minMerchantLength     = 4
)

var (
	merchantBoilerplate = regexp.MustCompile(`(?i)receipt|invoice|thank you|date|time|total|subtotal|tax|cash|change`)

	// Business-name shapes, tried in order on every candidate line
	merchantShapes = []*regexp.Regexp{
		regexp.MustCompile(`^[A-Z][A-Z0-9\s&'.,-]+$`),
		regexp.MustCompile(`^[A-Z][a-z0-9'&.,-]*(?:\s+[A-Z&][A-Za-z0-9'&.,-]*)*$`),
		regexp.MustCompile(`(?i)^[a-z][a-z\s&'.-]*\s(?:coffee|store|market|restaurant|cafe|shop|bakery|deli)$`),
	}
)

// Merchant picks the most business-like line from the top of the receipt
func Merchant(lines []string) string {
	head := lines
	if len(head) > merchantScanLines {
		head = head[:merchantScanLines]
	}

	for _, line := range head {
		if utf8.RuneCountInString(line) < minMerchantLength || merchantBoilerplate.MatchString(line) {
			continue
		}
		for _, shape := range merchantShapes {
			if shape.MatchString(line) {
				return line
			}
		}
	}

	if len(head) > merchantFallbackLines {
		head = head[:merchantFallbackLines]
	}
	for _, line := range head {
		if utf8.RuneCountInString(line) < minMerchantLength || merchantBoilerplate.MatchString(line) {
			continue
		}
		first, _ := utf8.DecodeRuneInString(line)
		if unicode.IsDigit(first) {
			continue
		}
		return line
	}

	return ""
}
