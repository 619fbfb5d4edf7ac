package money_test

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/hatid/hatid-api/internal/pkg/money"
)

func TestParse(t *testing.T) {
	d, err := money.Parse(" 50.25 ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !d.Equal(decimal.RequireFromString("50.25")) {
		t.Fatalf("expected 50.25, got %s", d)
	}

	for _, raw := range []string{"", "abc", "1.005", "1e-3"} {
		if _, err := money.Parse(raw); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}

func TestFormat(t *testing.T) {
	if got := money.Format(decimal.NewFromInt(450)); got != "450.00" {
		t.Fatalf("expected 450.00, got %s", got)
	}
}

func TestSameCurrency(t *testing.T) {
	if !money.SameCurrency("") || !money.SameCurrency("php") {
		t.Fatal("expected PHP and empty to match")
	}
	if money.SameCurrency("USD") {
		t.Fatal("USD must not match")
	}
}
