package extraction

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	// 03/15/2024, 15-03-24, 3.15.2024
	numericDate = regexp.MustCompile(`\b(\d{1,2})[/.-](\d{1,2})[/.-](\d{4}|\d{2})\b`)
	// 2024-03-15, 2024/3/15
	isoDate = regexp.MustCompile(`\b(\d{4})[/.-](\d{1,2})[/.-](\d{1,2})\b`)
	// 15 March 2024, 15 Mar. 2024
	dayMonthDate = regexp.MustCompile(`(?i)\b(\d{1,2})\s+(jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\.?,?\s+(\d{4})\b`)
	// March 15, 2024, Mar 15th 2024
	monthDayDate = regexp.MustCompile(`(?i)\b(jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\.?\s+(\d{1,2})(?:st|nd|rd|th)?,?\s+(\d{4})\b`)
)

var months = map[string]time.Month{
	"jan": time.January,
	"feb": time.February,
	"mar": time.March,
	"apr": time.April,
	"may": time.May,
	"jun": time.June,
	"jul": time.July,
	"aug": time.August,
	"sep": time.September,
	"oct": time.October,
	"nov": time.November,
	"dec": time.December,
}

// Date returns the first valid transaction date found in raw, trying numeric
// day/month forms, then ISO order, then the two month-name forms.
func Date(raw string) *time.Time {
	for _, m := range numericDate.FindAllStringSubmatch(raw, -1) {
		first, second, year := atoi(m[1]), atoi(m[2]), expandYear(m[3])
		month, day := first, second
		if first > 12 {
			month, day = second, first
		}
		if t, ok := makeDate(year, month, day); ok {
			return &t
		}
	}

	for _, m := range isoDate.FindAllStringSubmatch(raw, -1) {
		if t, ok := makeDate(atoi(m[1]), atoi(m[2]), atoi(m[3])); ok {
			return &t
		}
	}

	for _, m := range dayMonthDate.FindAllStringSubmatch(raw, -1) {
		month := months[strings.ToLower(m[2])]
		if t, ok := makeDate(atoi(m[3]), int(month), atoi(m[1])); ok {
			return &t
		}
	}

	for _, m := range monthDayDate.FindAllStringSubmatch(raw, -1) {
		month := months[strings.ToLower(m[1])]
		if t, ok := makeDate(atoi(m[3]), int(month), atoi(m[2])); ok {
			return &t
		}
	}

	return nil
}

// makeDate rejects values that time.Date would silently normalise
func makeDate(year, month, day int) (time.Time, bool) {
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Year() != year || int(t.Month()) != month || t.Day() != day {
		return time.Time{}, false
	}
	return t, true
}

func expandYear(s string) int {
	y := atoi(s)
	if len(s) == 2 {
		y += 2000
	}
	return y
}

// atoi is only called on regexp digit groups
func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
