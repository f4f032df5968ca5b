package etl

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeColumnName(t *testing.T) {
	tests := map[string]string{
		"City":                "city",
		"  Max Temp  ":        "max_temp",
		"Ingestion Timestamp": "ingestion_timestamp",
		"a\tb":                "a_b",
		"Two  Spaces":         "two__spaces",
		"ＦＵＬＬ":                "full", // NFKC folds full-width letters
		"already_ok":          "already_ok",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeColumnName(in), in)
	}
}

func TestValidateIdentifier(t *testing.T) {
	valid := []string{"city", "max_temp", "col_1", "2024_data", strings.Repeat("a", 63)}
	for _, name := range valid {
		assert.NoError(t, ValidateIdentifier(name), name)
	}

	invalid := []string{"", "Max", "max-temp", "a b", `x"; drop table t; --`, "é", strings.Repeat("a", 64)}
	for _, name := range invalid {
		err := ValidateIdentifier(name)
		assert.Error(t, err, name)
		assert.True(t, errors.Is(err, ErrSchema), name)
	}
}
