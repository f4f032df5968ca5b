package etl

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCanonical(t *testing.T) {
	ts := time.Date(2024, 3, 15, 9, 30, 0, 0, time.UTC)
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"nil", nil, ""},
		{"empty string", "", ""},
		{"int", 42, "42"},
		{"int64", int64(-7), "-7"},
		{"uint8", uint8(200), "200"},
		{"float integral", 42.0, "42"},
		{"float fraction", 42.5, "42.5"},
		{"float32", float32(0.5), "0.5"},
		{"negative zero", -0.0, "0"},
		{"large float", 1e21, "1000000000000000000000"},
		{"decimal string", "42.50", "42.5"},
		{"integer string", "42", "42"},
		{"leading zeros", "007", "7"},
		{"plus sign", "+3.10", "3.1"},
		{"bare dot", "5.", "5"},
		{"leading dot", ".5", "0.5"},
		{"negative zero string", "-0.00", "0"},
		{"exponent string", "1.5e3", "1500"},
		{"long literal keeps digits", "12345678901234567890.10", "12345678901234567890.1"},
		{"text", "Pune", "Pune"},
		{"text not trimmed", " Pune ", " Pune "},
		{"bytes", []byte("3.0"), "3"},
		{"bool", true, "true"},
		{"time", ts, "2024-03-15 09:30:00"},
		{"time fraction", ts.Add(1500 * time.Millisecond), "2024-03-15 09:30:01.5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Canonical(tt.in))
		})
	}
}

func TestEqual_NumericStringEquivalence(t *testing.T) {
	assert.True(t, Equal(42, "42"))
	assert.True(t, Equal(42.50, "42.5"))
	assert.True(t, Equal("42.50", "42.5"))
	assert.True(t, Equal(1.0, "1"))
	assert.False(t, Equal(42.51, "42.5"))
	assert.False(t, Equal("42.51", 42.5))
	assert.True(t, Equal(nil, ""))
	assert.False(t, Equal(nil, "0"))
}

func TestKeyString(t *testing.T) {
	tests := []struct {
		name   string
		in     any
		want   string
		wantOK bool
	}{
		{"string verbatim", "007", "007", true},
		{"decimal string verbatim", "1.50", "1.50", true},
		{"int", int64(7), "7", true},
		{"float integral", 7.0, "7", true},
		{"float", 1.5, "1.5", true},
		{"bool", false, "false", true},
		{"nil", nil, "", false},
		{"empty", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := KeyString(tt.in)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWriteValue(t *testing.T) {
	assert.Nil(t, WriteValue(nil))
	assert.Equal(t, "42.50", WriteValue("42.50"))
	assert.Equal(t, "42.5", WriteValue(42.5))
	assert.Equal(t, "42", WriteValue(int64(42)))
	assert.Equal(t, "true", WriteValue(true))
	assert.Equal(t, "abc", WriteValue([]byte("abc")))
}
