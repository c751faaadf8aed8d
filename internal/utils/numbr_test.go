package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseFloatBR(t *testing.T) {
	cases := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"", 0, false},
		{"   ", 0, false},
		{"abc", 0, false},
		{"-", 0, false},
		{"100", 100, true},
		{"12,50", 12.50, true},
		{"1.234,56", 1234.56, true},
		{"1.234.567,89", 1234567.89, true},
		{"12.50", 12.50, true}, // already dot-decimal
		{"R$ 12,30", 12.30, true},
		{"(500,00)", -500, true},
		{"-42", -42, true},
		{"1\u00A0234,56", 1234.56, true}, // NBSP grouping
		{"1\u202F234,56", 1234.56, true}, // narrow NBSP grouping
		{"  99 ,  5  ", 99.5, true},
	}
	for _, tc := range cases {
		got, ok := ParseFloatBR(tc.in)
		assert.Equal(t, tc.ok, ok, "input %q", tc.in)
		if tc.ok {
			assert.InDelta(t, tc.want, got, 1e-9, "input %q", tc.in)
		}
	}
}
