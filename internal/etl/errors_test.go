package etl

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorKinds(t *testing.T) {
	cause := errors.New("boom")
	tests := []struct {
		name     string
		err      error
		sentinel error
	}{
		{"connection", &ConnectionError{Driver: "postgres", Err: cause}, ErrConnection},
		{"schema", &SchemaError{Message: "no columns"}, ErrSchema},
		{"data", &DataError{Key: "Pune", Message: "duplicate primary key"}, ErrData},
		{"write", &WriteError{Op: "insert", Table: "t", Err: cause}, ErrWrite},
		{"annotation", &AnnotationError{Source: "a.csv", Err: cause}, ErrAnnotation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("run: %w", tt.err)
			assert.True(t, errors.Is(wrapped, tt.sentinel))
			for _, other := range []error{ErrConnection, ErrSchema, ErrData, ErrWrite, ErrAnnotation} {
				if other != tt.sentinel {
					assert.False(t, errors.Is(wrapped, other))
				}
			}
		})
	}
}

func TestErrorUnwrapAndContext(t *testing.T) {
	cause := errors.New("disk full")
	err := fmt.Errorf("apply: %w", &WriteError{Op: "update", Table: "weather", Key: "Pune", Err: cause})

	assert.True(t, errors.Is(err, cause))
	var we *WriteError
	require.True(t, errors.As(err, &we))
	assert.Equal(t, "Pune", we.Key)
	assert.Equal(t, `write update weather key "Pune": disk full`, we.Error())
}

func TestDataErrorMessage(t *testing.T) {
	err := &DataError{Key: "Pune", Column: "city", Row: 5, OtherRow: 2, Message: "duplicate primary key"}
	assert.Equal(t, `data: duplicate primary key (key "Pune") (column "city") (rows 2 and 5)`, err.Error())

	err = &DataError{Column: "city", Row: 3, Message: "missing primary key"}
	assert.Equal(t, `data: missing primary key (column "city") (row 3)`, err.Error())
}
