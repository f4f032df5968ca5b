package etl

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ── Canonical form ─────────────────────────────────────────
// Two cells are equal for diffing when their canonical strings match.
// Numbers render in fixed decimal notation without trailing fractional
// zeros, so 42, "42", 42.0 and "42.00" all collapse to "42".

// TimestampLayout is the canonical rendering of time values.
const TimestampLayout = "2006-01-02 15:04:05.999999999"

var (
	decimalRe  = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)$`)
	exponentRe = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)[eE][+-]?\d+$`)
)

// Canonical returns the comparison form of a cell value.
func Canonical(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return canonicalString(val)
	case []byte:
		return canonicalString(string(val))
	case bool:
		return strconv.FormatBool(val)
	case int:
		return strconv.FormatInt(int64(val), 10)
	case int8:
		return strconv.FormatInt(int64(val), 10)
	case int16:
		return strconv.FormatInt(int64(val), 10)
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case int64:
		return strconv.FormatInt(val, 10)
	case uint:
		return strconv.FormatUint(uint64(val), 10)
	case uint8:
		return strconv.FormatUint(uint64(val), 10)
	case uint16:
		return strconv.FormatUint(uint64(val), 10)
	case uint32:
		return strconv.FormatUint(uint64(val), 10)
	case uint64:
		return strconv.FormatUint(val, 10)
	case float32:
		return formatFloat(float64(val))
	case float64:
		return formatFloat(val)
	case time.Time:
		return val.Format(TimestampLayout)
	case fmt.Stringer:
		return canonicalString(val.String())
	default:
		return canonicalString(fmt.Sprint(val))
	}
}

// Equal reports whether two cells have the same canonical form.
func Equal(a, b any) bool {
	return Canonical(a) == Canonical(b)
}

func formatFloat(f float64) string {
	if f == 0 {
		return "0" // also -0
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func canonicalString(s string) string {
	if decimalRe.MatchString(s) {
		return normalizeDecimal(s)
	}
	if exponentRe.MatchString(s) {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return formatFloat(f)
		}
	}
	return s
}

// normalizeDecimal rewrites a plain decimal literal without going through
// float64, so long literals keep every digit.
func normalizeDecimal(s string) string {
	neg := false
	switch s[0] {
	case '+':
		s = s[1:]
	case '-':
		neg = true
		s = s[1:]
	}

	intPart, frac, _ := strings.Cut(s, ".")
	intPart = strings.TrimLeft(intPart, "0")
	frac = strings.TrimRight(frac, "0")
	if intPart == "" {
		intPart = "0"
	}

	out := intPart
	if frac != "" {
		out += "." + frac
	}
	if neg && out != "0" {
		out = "-" + out
	}
	return out
}

// KeyString returns the identity of a primary-key value. Strings are kept
// verbatim; numbers, times and booleans use their canonical rendering so a
// typed spreadsheet cell matches the text it was stored as. The second
// result is false when the key is missing (nil or empty).
func KeyString(v any) (string, bool) {
	var s string
	switch val := v.(type) {
	case nil:
		return "", false
	case string:
		s = val
	case []byte:
		s = string(val)
	default:
		s = Canonical(val)
	}
	if s == "" {
		return "", false
	}
	return s, true
}

// WriteValue converts a cell to the value bound into destination
// statements: its canonical string, or nil for NULL.
func WriteValue(v any) any {
	if v == nil {
		return nil
	}
	switch val := v.(type) {
	case string:
		return val
	case []byte:
		return string(val)
	}
	return Canonical(v)
}
