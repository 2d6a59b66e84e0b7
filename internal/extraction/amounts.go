package extraction

import (
	"regexp"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	maxAmount = decimal.NewFromInt(10000)

	amountPatterns = []*regexp.Regexp{
		// $12.34, € 5, £1,234.50
		regexp.MustCompile(`[$€£]\s*(\d{1,3}(?:,\d{3})+(?:\.\d+)?|\d+(?:\.\d+)?)`),
		// Total: 12.34, SUBTOTAL $10, Tax 0.80
		regexp.MustCompile(`(?i)\b(?:sub[\s-]?total|total|tax)\b[:\s]*[$€£]?\s*(\d{1,3}(?:,\d{3})+(?:\.\d+)?|\d+(?:\.\d+)?)`),
	}
)

// Amounts returns every distinct monetary value in (0, 10000), largest first.
// The largest is taken as the total, the next as the subtotal and the third
// as the tax; labels are only used to find candidates.
func Amounts(raw string) []decimal.Decimal {
	var found []decimal.Decimal
	for _, pattern := range amountPatterns {
		for _, m := range pattern.FindAllStringSubmatch(raw, -1) {
			v, err := decimal.NewFromString(strings.ReplaceAll(m[1], ",", ""))
			if err != nil {
				continue
			}
			if !v.IsPositive() || v.GreaterThanOrEqual(maxAmount) {
				continue
			}
			if containsAmount(found, v) {
				continue
			}
			found = append(found, v)
		}
	}

	sort.SliceStable(found, func(i, j int) bool {
		return found[i].GreaterThan(found[j])
	})
	return found
}

func containsAmount(list []decimal.Decimal, v decimal.Decimal) bool {
	for _, a := range list {
		if a.Equal(v) {
			return true
		}
	}
	return false
}
