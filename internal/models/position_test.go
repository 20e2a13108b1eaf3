package models

import (
	"math"
	"testing"
	"time"
)

func newOpenPosition(t *testing.T) *Position {
	t.Helper()
	p := NewPosition("test-id", "NSE_FO|12345", "NIFTY24AUG24500CE", SideCall)
	p.EntryPrice = 100
	p.LimitPrice = 100.5
	p.StopLoss = 90
	p.Target = 125
	p.Quantity = 200
	p.LastPrice = 100
	p.MaxPriceSeen = 100
	p.UnderlyingEntry = 24500
	if err := p.TransitionState(StateOpen, ConditionSignalConfirmed); err != nil {
		t.Fatalf("open transition failed: %v", err)
	}
	return p
}

func TestPosition_Lifecycle(t *testing.T) {
	p := newOpenPosition(t)

	if !p.IsOpen() {
		t.Error("position should report open")
	}
	if p.EntryTime.IsZero() {
		t.Error("EntryTime should be set on open transition")
	}
	if err := p.ValidateState(); err != nil {
		t.Errorf("open position failed validation: %v", err)
	}

	p.LastPrice = 125
	if err := p.TransitionState(StateClosed, ReasonTargetHit); err != nil {
		t.Fatalf("close transition failed: %v", err)
	}
	if p.ExitTime.IsZero() {
		t.Error("ExitTime should be set on close transition")
	}
	if p.ExitReason != ReasonTargetHit {
		t.Errorf("ExitReason = %q, want %q", p.ExitReason, ReasonTargetHit)
	}
	if err := p.ValidateState(); err != nil {
		t.Errorf("closed position failed validation: %v", err)
	}
}

func TestPosition_GainRatio(t *testing.T) {
	tests := []struct {
		name  string
		entry float64
		last  float64
		want  float64
	}{
		{"ten percent up", 100, 110, 0.10},
		{"flat", 100, 100, 0},
		{"down", 100, 85, -0.15},
		{"zero entry guarded", 0, 50, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &Position{EntryPrice: tt.entry, LastPrice: tt.last}
			if got := p.GainRatio(); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("GainRatio() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPosition_UnrealizedPnL(t *testing.T) {
	p := &Position{EntryPrice: 100, LastPrice: 112.5, Quantity: 200}
	if got := p.UnrealizedPnL(); math.Abs(got-2500) > 1e-9 {
		t.Errorf("UnrealizedPnL() = %v, want 2500", got)
	}
}

func TestPosition_Elapsed(t *testing.T) {
	p := &Position{EntryTime: time.Now().Add(-3 * time.Minute)}
	if got := p.Elapsed(time.Now()); got < 3*time.Minute || got > 4*time.Minute {
		t.Errorf("Elapsed() = %v, want ~3m", got)
	}

	empty := &Position{}
	if got := empty.Elapsed(time.Now()); got != 0 {
		t.Errorf("Elapsed() on zero EntryTime = %v, want 0", got)
	}
}

func TestPosition_ValidateState_Violations(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Position)
	}{
		{"open without quantity", func(p *Position) { p.Quantity = 0 }},
		{"open without entry price", func(p *Position) { p.EntryPrice = 0 }},
		{"open with exit reason", func(p *Position) { p.ExitReason = ReasonStopHit }},
		{"open with exit time", func(p *Position) { p.ExitTime = time.Now().UTC() }},
		{"negative quantity", func(p *Position) { p.Quantity = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newOpenPosition(t)
			tt.mutate(p)
			if err := p.ValidateState(); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

func TestPosition_IdleInvariants(t *testing.T) {
	p := NewPosition("id", "key", "SYM", SidePut)
	if err := p.ValidateState(); err != nil {
		t.Errorf("fresh idle position failed validation: %v", err)
	}

	p.Quantity = 5
	if err := p.ValidateState(); err == nil {
		t.Error("idle position with quantity should fail validation")
	}
}

func TestPosition_SideRole(t *testing.T) {
	if SideCall.Role() != RoleATMCall {
		t.Errorf("SideCall.Role() = %s, want %s", SideCall.Role(), RoleATMCall)
	}
	if SidePut.Role() != RoleATMPut {
		t.Errorf("SidePut.Role() = %s, want %s", SidePut.Role(), RoleATMPut)
	}
}

func TestPosition_EnsureMachineFromPersistedState(t *testing.T) {
	// A position rebuilt from JSON has no runtime machine; the first
	// transition must seed it from the canonical state.
	p := &Position{
		ID:         "restored",
		Side:       SideCall,
		State:      StateOpen,
		EntryPrice: 100,
		Quantity:   1,
		EntryTime:  time.Now().UTC().Add(-time.Minute),
	}

	if err := p.TransitionState(StateClosed, ReasonShutdown); err != nil {
		t.Fatalf("transition from persisted open state failed: %v", err)
	}
	if p.State != StateClosed {
		t.Errorf("state = %s, want closed", p.State)
	}
}
