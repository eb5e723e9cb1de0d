package numeric

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"(1,234)", -1234, true},
		{"-", 0, true},
		{"--", 0, true},
		{"—", 0, true},
		{"", 0, true},
		{"NA", 0, true},
		{"N/A", 0, true},
		{"Nil", 0, true},
		{"NIL", 0, true},
		{"1,234.50", 1234.50, true},
		{"  12,34,567 ", 1234567, true},
		{"₹ 2,000", 2000, true},
		{"Rs. 450.25", 450.25, true},
		{"$ (12.5)", 0, false},
		{"(₹ 12.5)", -12.5, true},
		{"-42.1", -42.1, true},
		{"1 234", 1234, true},
		{"abc", 0, false},
		{"12.3.4", 0, false},
		{"()", 0, false},
		{"1,234 Cr", 1234, true},
		{"1,234.5 Cr.", 1234.5, true},
		{"12 L", 12, true},
		{"(45.5)Cr", -45.5, true},
		{"3 crores", 3, true},
		{"Cr", 0, false},
	}
	for _, tt := range tests {
		got, ok := Parse(tt.in)
		assert.Equal(t, tt.ok, ok, "input: %q", tt.in)
		if tt.ok {
			assert.InDelta(t, tt.want, got, 1e-9, "input: %q", tt.in)
		}
	}
}

func TestParseDecimal_Exact(t *testing.T) {
	d, ok := ParseDecimal("1,234.50")
	assert.True(t, ok)
	assert.Equal(t, "1234.5", d.String())
}

func TestRound2(t *testing.T) {
	assert.Equal(t, 25.99, Round2(25.992104989))
	assert.Equal(t, 0.5, Round2(0.5))
	assert.Equal(t, -1.24, Round2(-1.235))
	assert.Equal(t, 1.0, Round2(1.005))
	assert.Equal(t, 3.142, Round(3.14159, 3))
}

func TestRound2_BinaryTies(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{0.125, 0.12},
		{0.375, 0.38},
		{2.675, 2.67},
		{1.005, 1.0},
		{-0.125, -0.12},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Round2(tt.in), "input: %v", tt.in)
	}
}
