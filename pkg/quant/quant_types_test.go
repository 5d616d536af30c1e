package quant

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"1", "1"},
		{"0.25", "0.25"},
		{".5", "0.5"},
		{"2.", "2"},
		{" 10.000 ", "10"},
	}

	for _, tt := range tests {
		got, err := ParseAmount(tt.input)
		if err != nil {
			t.Errorf("ParseAmount(%q) unexpected error: %v", tt.input, err)
			continue
		}
		if !got.Equal(decimal.RequireFromString(tt.expected)) {
			t.Errorf("ParseAmount(%q) = %s; want %s", tt.input, got, tt.expected)
		}
	}
}

func TestParseAmount_Rejects(t *testing.T) {
	tests := []struct {
		input string
		want  error
	}{
		{"", ErrEmptyAmount},
		{"   ", ErrEmptyAmount},
		{"abc", ErrMalformedAmount},
		{"1e5", ErrMalformedAmount},
		{"-1", ErrMalformedAmount},
		{"1.2.3", ErrMalformedAmount},
		{".", ErrMalformedAmount},
		{"1,000", ErrMalformedAmount},
		{"0", ErrNonPositive},
		{"0.000", ErrNonPositive},
	}

	for _, tt := range tests {
		_, err := ParseAmount(tt.input)
		if !errors.Is(err, tt.want) {
			t.Errorf("ParseAmount(%q) error = %v; want %v", tt.input, err, tt.want)
		}
	}
}

func TestParseAmountWithDecimals(t *testing.T) {
	if _, err := ParseAmountWithDecimals("1.123456", 6); err != nil {
		t.Errorf("6 decimals should be accepted: %v", err)
	}
	if _, err := ParseAmountWithDecimals("1.1234567", 6); !errors.Is(err, ErrTooPrecise) {
		t.Errorf("7 decimals should be rejected, got %v", err)
	}
}

func TestToSats(t *testing.T) {
	tests := []struct {
		input    string
		expected QtySats
	}{
		{"1", 100000000},
		{"0.00000001", 1},
		{"0.005", 500000},
		{"0.000000005", 1},
		{"0", 0},
	}

	for _, tt := range tests {
		got, err := ToSats(decimal.RequireFromString(tt.input))
		if err != nil {
			t.Errorf("ToSats(%s) unexpected error: %v", tt.input, err)
			continue
		}
		if got != tt.expected {
			t.Errorf("ToSats(%s) = %d; want %d", tt.input, got, tt.expected)
		}
	}

	if _, err := ToSats(decimal.RequireFromString("100000000000000")); !errors.Is(err, ErrSatsOverflow) {
		t.Errorf("expected overflow, got %v", err)
	}
}

func TestQtySats_String(t *testing.T) {
	q := QtySats(123000000)
	expected := "1.23000000"
	if q.String() != expected {
		t.Errorf("QtySats(123000000).String() = %s; want %s", q.String(), expected)
	}
}
