package money

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestFormatINR(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"0", "0.00"},
		{"5", "5.00"},
		{"999.5", "999.50"},
		{"1000", "1,000.00"},
		{"1100", "1,100.00"},
		{"110000", "1,10,000.00"},
		{"1234567.891", "12,34,567.89"},
		{"100000000", "10,00,00,000.00"},
		{"-2500", "-2,500.00"},
		{"-0.001", "0.00"},
	}
	for _, tt := range tests {
		got := FormatINR(decimal.RequireFromString(tt.in))
		if got != tt.want {
			t.Errorf("FormatINR(%s) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRupees(t *testing.T) {
	if got := Rupees(decimal.NewFromInt(1100)); got != "₹1,100.00" {
		t.Errorf("unexpected %q", got)
	}
}

func TestStatus(t *testing.T) {
	d := decimal.RequireFromString
	tests := []struct {
		total, paid string
		want        string
	}{
		{"1100", "0", StatusPending},
		{"1100", "100", StatusPartial},
		{"1100", "1100", StatusPaid},
		{"1100", "1200", StatusPaid},
		{"0", "0", StatusPaid},
	}
	for _, tt := range tests {
		if got := Status(d(tt.total), d(tt.paid)); got != tt.want {
			t.Errorf("Status(%s, %s) = %s, want %s", tt.total, tt.paid, got, tt.want)
		}
	}
}

func TestBalance(t *testing.T) {
	d := decimal.RequireFromString
	if got := Balance(d("1100"), d("100.50")); !got.Equal(d("999.50")) {
		t.Errorf("expected 999.50, got %s", got)
	}
	if got := Balance(d("100"), d("150")); !got.IsZero() {
		t.Errorf("expected 0, got %s", got)
	}
}
