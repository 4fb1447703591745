package store

import "testing"

func TestFormatAmount(t *testing.T) {
	tests := []struct {
		cents int64
		want  string
	}{
		{0, "0.00"},
		{5, "0.05"},
		{99, "0.99"},
		{100, "1.00"},
		{15000, "150.00"},
		{123456789, "1234567.89"},
	}

	for _, tt := range tests {
		if got := FormatAmount(tt.cents); got != tt.want {
			t.Errorf("FormatAmount(%d) = %q, want %q", tt.cents, got, tt.want)
		}
	}
}

func TestPaymentStatusTerminal(t *testing.T) {
	if PaymentPending.Terminal() {
		t.Error("pending must not be terminal")
	}
	for _, s := range []PaymentStatus{PaymentCompleted, PaymentFailed, PaymentCancelled} {
		if !s.Terminal() {
			t.Errorf("%s must be terminal", s)
		}
	}
}
