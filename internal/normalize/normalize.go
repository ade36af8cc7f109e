// Package normalize turns raw source strings into typed column values.
//
// Every helper treats surrounding whitespace as noise and the literal
// NULL (any case) or an empty string as "absent". Absent values are
// reported with ok=false so callers can substitute a column default or
// store SQL NULL.
package normalize

import (
	"strconv"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// NullSentinel is the literal used by exports to mark a missing value.
const NullSentinel = "NULL"

// String trims raw and reports whether a value is present.
func String(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	if s == "" || strings.EqualFold(s, NullSentinel) {
		return "", false
	}
	return s, true
}

// Int parses raw as a base-10 integer. Decimal strings with a zero
// fraction ("12.0") are accepted since spreadsheet exports produce them.
func Int(raw string) (int64, bool) {
	s, ok := String(raw)
	if !ok {
		return 0, false
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, true
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f == float64(int64(f)) {
		return int64(f), true
	}
	return 0, false
}


// Bool accepts TRUE/true/1 (also t and yes); everything else is false.
func Bool(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "true", "1", "t", "yes":
		return true
	default:
		return false
	}
}

// Bucket maps raw onto a named bucket via table (keys lower-case).
// Unrecognized or absent values yield def.
func Bucket(raw string, table map[string]string, def string) string {
	s, ok := String(raw)
	if !ok {
		return def
	}
	if b, ok := table[strings.ToLower(s)]; ok {
		return b
	}
	return def
}

// List splits raw on ';', '|' or ',' and drops empty items.
func List(raw string) []string {
	s, ok := String(raw)
	if !ok {
		return nil
	}
	parts := strings.FieldsFunc(s, func(r rune) bool {
		return r == ';' || r == '|' || r == ','
	})
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Phone formats raw as E.164 when it parses as a valid number for
// region. Anything else is returned trimmed and unchanged.
func Phone(raw, region string) (string, bool) {
	s, ok := String(raw)
	if !ok {
		return "", false
	}
	if region == "" {
		region = "US"
	}
	num, err := phonenumbers.Parse(s, strings.ToUpper(region))
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return s, true
	}
	return phonenumbers.Format(num, phonenumbers.E164), true
}

// Website prefixes https:// when raw carries no scheme.
func Website(raw string) (string, bool) {
	s, ok := String(raw)
	if !ok {
		return "", false
	}
	lower := strings.ToLower(s)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return s, true
	}
	return "https://" + strings.TrimPrefix(s, "//"), true
}

// Email lower-cases and trims raw.
func Email(raw string) (string, bool) {
	s, ok := String(raw)
	if !ok {
		return "", false
	}
	return strings.ToLower(s), true
}
