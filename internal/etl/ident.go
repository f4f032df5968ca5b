package etl

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// ── Identifiers ────────────────────────────────────────────
// Column and table names come from spreadsheet headers, so they are
// normalized and then checked against a strict allow-list before any
// statement embeds them.

const maxIdentifierLen = 63

var identifierRe = regexp.MustCompile(`^[a-z0-9_]+$`)

var lower = cases.Lower(language.Und)

// NormalizeColumnName trims a header, lower-cases it and replaces each
// whitespace rune with an underscore: "Max Temp" → "max_temp".
func NormalizeColumnName(name string) string {
	name = strings.TrimSpace(norm.NFKC.String(name))
	name = lower.String(name)
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return '_'
		}
		return r
	}, name)
}

// ValidateIdentifier checks a normalized name against the allow-list
// (ASCII lower-case letters, digits, underscore; 1–63 bytes).
func ValidateIdentifier(name string) error {
	if name == "" {
		return &SchemaError{Message: "empty identifier"}
	}
	if len(name) > maxIdentifierLen {
		return &SchemaError{Column: name, Message: "identifier longer than 63 bytes"}
	}
	if !identifierRe.MatchString(name) {
		return &SchemaError{Column: name, Message: "identifier may only contain a-z, 0-9 and _"}
	}
	return nil
}
