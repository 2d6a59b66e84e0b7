package extraction

import "regexp"

const maxItems = 10

var (
	itemBoilerplate = regexp.MustCompile(`(?i)total|subtotal|tax|cash|change|thank|date|time`)
	itemShape       = regexp.MustCompile(`^[A-Za-z].*?\s+[$€£]?\s*\d+[.,]\d{2}$`)
)

// Items keeps lines shaped like "description amount", in order, at most 10
func Items(lines []string) []string {
	var items []string
	for _, line := range lines {
		if len(items) == maxItems {
			break
		}
		if len(line) < minMerchantLength || itemBoilerplate.MatchString(line) {
			continue
		}
		if itemShape.MatchString(line) {
			items = append(items, line)
		}
	}
	return items
}
