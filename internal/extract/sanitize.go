package extract

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"docverify/internal/dates"
	"docverify/internal/domain"
)

// Sanitize turns a decoded model reply into ExtractedFields for category.
// Every field of the category is present in the result; values the model
// omitted, left empty, or spelled as "null"/"None" become nil. Keys outside
// the category's field set are dropped.
func Sanitize(raw map[string]any, category domain.DocumentCategory) domain.ExtractedFields {
	out := make(domain.ExtractedFields, len(category.Fields()))
	for _, key := range category.Fields() {
		out[key] = coerceValue(raw[key])
	}

	if dob, ok := out.Get("dob"); ok {
		out.Set("dob", dates.Normalize(dob))
	}
	if category == domain.CategoryEducational {
		if qual, ok := out.Get("qualification"); ok {
			out.Set("qualification", NormalizeQualification(qual))
		}
	}
	return out
}

// UnknownKeys lists keys in raw that Sanitize drops, sorted.
func UnknownKeys(raw map[string]any, category domain.DocumentCategory) []string {
	known := make(map[string]bool)
	for _, key := range category.Fields() {
		known[key] = true
	}
	var extra []string
	for key := range raw {
		if !known[key] {
			extra = append(extra, key)
		}
	}
	sort.Strings(extra)
	return extra
}

// NormalizeQualification maps roman/arabic class labels onto "Class 10" and
// "Class 12". Anything else is returned unchanged.
func NormalizeQualification(q string) string {
	upper := strings.ToUpper(q)
	twelfth := strings.Contains(upper, "12") || strings.Contains(upper, "XII")
	switch {
	case strings.Contains(upper, "X") && !twelfth:
		return "Class 10"
	case twelfth:
		return "Class 12"
	}
	return q
}

func IsNullSentinel(s string) bool {
	return strings.EqualFold(s, "null") || s == "None"
}

func coerceValue(v any) *string {
	var s string
	switch x := v.(type) {
	case nil:
		return nil
	case string:
		s = x
	case float64:
		s = strconv.FormatFloat(x, 'f', -1, 64)
	case json.Number:
		s = x.String()
	case bool:
		s = strconv.FormatBool(x)
	default:
		b, err := json.Marshal(x)
		if err != nil {
			s = fmt.Sprint(x)
		} else {
			s = string(b)
		}
	}
	s = strings.TrimSpace(s)
	if s == "" || IsNullSentinel(s) {
		return nil
	}
	return &s
}
