package validator_test

import (
	"math"
	"testing"

	"github.com/emilyjiji/simple-price-oracle-avs-example/internal/validator"
)

func TestReconcilePrices(t *testing.T) {
	tests := []struct {
		name      string
		primary   float64
		secondary float64
		tolerance float64
		want      bool
	}{
		{"identical prices", 2500, 2500, 0.05, true},
		{"within tolerance", 2500, 2450, 0.05, true},
		{"exactly at tolerance", 105, 100, 0.05, true},
		{"just beyond tolerance", 105.01, 100, 0.05, false},
		{"far apart", 1000, 1500, 0.05, false},
		{"zero tolerance equal", 100, 100, 0, true},
		{"zero tolerance unequal", 100.01, 100, 0, false},
		{"tight tolerance", 100.004, 100, 0.0001, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := validator.ReconcilePrices(tt.primary, tt.secondary, tt.tolerance)
			if res.Success != tt.want {
				t.Errorf("ReconcilePrices(%v, %v, %v).Success = %v, want %v",
					tt.primary, tt.secondary, tt.tolerance, res.Success, tt.want)
			}
		})
	}
}

func TestReconcilePricesFailureDetails(t *testing.T) {
	res := validator.ReconcilePrices(1000, 1500, 0.05)
	if res.Success {
		t.Fatal("expected failure for 33% disagreement")
	}
	if res.Reason == "" {
		t.Error("failure result missing reason")
	}

	wantDiff := math.Abs(1000.0-1500.0) / 1500.0
	if got := res.Details["diff"]; got != wantDiff {
		t.Errorf("details diff = %v, want %v", got, wantDiff)
	}
	if got := res.Details["primary"]; got != 1000.0 {
		t.Errorf("details primary = %v, want 1000", got)
	}
	if got := res.Details["secondary"]; got != 1500.0 {
		t.Errorf("details secondary = %v, want 1500", got)
	}
	if got := res.Details["tolerance"]; got != 0.05 {
		t.Errorf("details tolerance = %v, want 0.05", got)
	}
}

// Swapping which source is primary changes the diff base but must not
// change the outcome for pairs clearly inside or clearly outside the
// tolerance band.
func TestReconcilePricesSymmetry(t *testing.T) {
	pairs := []struct {
		a, b      float64
		tolerance float64
	}{
		{100, 102, 0.05},
		{2500, 2510, 0.01},
		{100, 150, 0.05},
		{3000, 1000, 0.10},
	}
	for _, p := range pairs {
		fwd := validator.ReconcilePrices(p.a, p.b, p.tolerance)
		rev := validator.ReconcilePrices(p.b, p.a, p.tolerance)
		if fwd.Success != rev.Success {
			t.Errorf("asymmetric outcome for (%v, %v, tol %v): %v vs %v",
				p.a, p.b, p.tolerance, fwd.Success, rev.Success)
		}
	}
}

// A zero or degenerate secondary must produce a failure, never a panic.
func TestReconcilePricesDegenerate(t *testing.T) {
	if res := validator.ReconcilePrices(100, 0, 0.05); res.Success {
		t.Error("zero secondary must not reconcile")
	}
	if res := validator.ReconcilePrices(0, 0, 0.05); res.Success {
		t.Error("zero prices must not reconcile")
	}
}
