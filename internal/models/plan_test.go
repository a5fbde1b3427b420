package models

import (
	"testing"
	"time"
)

func validPlan() WatchPlan {
	return WatchPlan{
		Symbol:     "AAPL",
		UserID:     "u1",
		BuyLow:     170,
		BuyHigh:    172,
		TakeProfit: 185,
		StopLoss:   165,
		Budget:     1000,
		AddedAt:    time.Now(),
	}
}

func TestWatchPlanValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*WatchPlan)
		wantErr bool
	}{
		{"valid budget plan", func(p *WatchPlan) {}, false},
		{"valid qty plan", func(p *WatchPlan) { p.Budget = 0; p.FixedQty = 5 }, false},
		{"missing symbol", func(p *WatchPlan) { p.Symbol = "" }, true},
		{"missing user", func(p *WatchPlan) { p.UserID = "" }, true},
		{"negative price", func(p *WatchPlan) { p.StopLoss = -1 }, true},
		{"zero price", func(p *WatchPlan) { p.BuyLow = 0 }, true},
		{"low equals high", func(p *WatchPlan) { p.BuyLow = 172 }, true},
		{"low above high", func(p *WatchPlan) { p.BuyLow = 173 }, true},
		{"tp inside zone", func(p *WatchPlan) { p.TakeProfit = 171 }, true},
		{"tp equals high", func(p *WatchPlan) { p.TakeProfit = 172 }, true},
		{"sl inside zone", func(p *WatchPlan) { p.StopLoss = 171 }, true},
		{"sl equals low", func(p *WatchPlan) { p.StopLoss = 170 }, true},
		{"no sizing mode", func(p *WatchPlan) { p.Budget = 0 }, true},
		{"both sizing modes", func(p *WatchPlan) { p.FixedQty = 5 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validPlan()
			tt.mutate(&p)
			err := p.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestWatchPlanInZone(t *testing.T) {
	p := validPlan()

	tests := []struct {
		price float64
		want  bool
	}{
		{169.99, false},
		{170, true}, // zone is inclusive at both ends
		{171, true},
		{172, true},
		{172.01, false},
	}
	for _, tt := range tests {
		if got := p.InZone(tt.price); got != tt.want {
			t.Errorf("InZone(%.2f) = %v, want %v", tt.price, got, tt.want)
		}
	}
}

func TestWatchPlanQuantity(t *testing.T) {
	p := validPlan() // budget 1000

	if got := p.Quantity(171); got != 5 {
		t.Errorf("Quantity(171) = %d, want 5", got)
	}
	if got := p.Quantity(1001); got != 0 {
		t.Errorf("Quantity(1001) = %d, want 0", got)
	}
	if got := p.Quantity(1000); got != 1 {
		t.Errorf("Quantity(1000) = %d, want 1", got)
	}

	p.Budget = 0
	p.FixedQty = 7
	if got := p.Quantity(171); got != 7 {
		t.Errorf("fixed Quantity(171) = %d, want 7", got)
	}
}
