// Package dates converts the date spellings found on scanned documents into
// the DD-MM-YYYY form used for identity comparison.
package dates

import (
	"strconv"
	"strings"
)

var separatorReplacer = strings.NewReplacer("/", "-", ".", "-", " ", "-")

// Normalize returns s as DD-MM-YYYY. Inputs that do not split into exactly
// three parts are returned unchanged.
func Normalize(s string) string {
	if s == "" {
		return s
	}
	parts := strings.Split(separatorReplacer.Replace(s), "-")
	if len(parts) != 3 {
		return s
	}

	if len(parts[0]) == 4 && isDigits(parts[0]) {
		year, month, day := parts[0], parts[1], parts[2]
		return pad2(day) + "-" + pad2(month) + "-" + year
	}

	day, month, year := parts[0], parts[1], parts[2]
	if len(year) == 2 {
		year = expandYear(year)
	}
	return pad2(day) + "-" + pad2(month) + "-" + year
}

// expandYear pivots two-digit years at 50: 51..99 are 19xx, 00..50 are 20xx.
func expandYear(yy string) string {
	n, err := strconv.Atoi(yy)
	if err != nil {
		return yy
	}
	if n > 50 {
		return "19" + yy
	}
	return "20" + yy
}

func pad2(s string) string {
	if len(s) == 1 {
		return "0" + s
	}
	return s
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
