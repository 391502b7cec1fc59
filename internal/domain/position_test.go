package domain_test

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/emilyjiji/simple-price-oracle-avs-example/internal/domain"
	"github.com/emilyjiji/simple-price-oracle-avs-example/internal/ticks"
)

func TestParseAction(t *testing.T) {
	tests := []struct {
		in      string
		want    domain.Action
		wantErr bool
	}{
		{in: "Restake", want: domain.ActionRestake},
		{in: "ReturnToPool", want: domain.ActionReturnToPool},
		{in: "restake", wantErr: true},
		{in: "Withdraw", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		got, err := domain.ParseAction(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseAction(%q): expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseAction(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseAction(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPositionInRange(t *testing.T) {
	pos := domain.Position{
		ID:           common.HexToHash("0x01"),
		LowerTick:    ticks.PriceToTick(2000),
		UpperTick:    ticks.PriceToTick(3000),
		LastActiveAt: time.Now(),
	}
	lower := ticks.TickToPrice(pos.LowerTick)
	upper := ticks.TickToPrice(pos.UpperTick)

	tests := []struct {
		name  string
		price float64
		want  bool
	}{
		{name: "mid range", price: 2500, want: true},
		{name: "at lower bound", price: lower, want: true},
		{name: "at upper bound", price: upper, want: true},
		{name: "below range", price: 1500, want: false},
		{name: "above range", price: 3500, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := pos.InRange(tt.price); got != tt.want {
				t.Errorf("InRange(%v) = %v, want %v", tt.price, got, tt.want)
			}
		})
	}
}
