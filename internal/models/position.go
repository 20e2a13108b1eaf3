package models

import (
	"fmt"
	"strings"
	"time"
)

// Position represents the single simulated long-option position with state
// management. At most one position is open at any time.
type Position struct {
	StateMachine *StateMachine `json:"-"`     // Runtime only, excluded from JSON
	State        PositionState `json:"state"` // Canonical persisted state

	ID            string     `json:"id"`
	InstrumentKey string     `json:"instrument_key"`
	Symbol        string     `json:"symbol"`
	Side          OptionSide `json:"side"`
	ExitReason    string     `json:"exit_reason,omitempty"`

	EntryTime time.Time `json:"entry_time,omitempty"`
	ExitTime  time.Time `json:"exit_time,omitempty"`

	EntryPrice      float64 `json:"entry_price"`
	LimitPrice      float64 `json:"limit_price"`
	StopLoss        float64 `json:"stop_loss"`
	Target          float64 `json:"target"`
	LastPrice       float64 `json:"last_price"`
	MaxPriceSeen    float64 `json:"max_price_seen"`
	UnderlyingEntry float64 `json:"underlying_entry"`
	ExitPrice       float64 `json:"exit_price,omitempty"`
	PnL             float64 `json:"pnl"`

	Quantity       int  `json:"quantity"`
	BreakevenMoved bool `json:"breakeven_moved"`
}

// NewPosition creates a new position with an initialized state machine.
// Pricing and sizing fields are filled in by the risk manager before the
// position transitions to open.
func NewPosition(id, instrumentKey, symbol string, side OptionSide) *Position {
	return &Position{
		ID:            id,
		InstrumentKey: instrumentKey,
		Symbol:        symbol,
		Side:          side,
		StateMachine:  NewStateMachine(),
		State:         StateIdle,
	}
}

// TransitionState moves the position to a new state
func (p *Position) TransitionState(to PositionState, condition string) error {
	if err := p.ensureMachine().Transition(to, condition); err != nil {
		return fmt.Errorf("position %s state transition failed: %w", p.ID, err)
	}

	p.State = to

	if to == StateOpen && p.EntryTime.IsZero() {
		p.EntryTime = time.Now().UTC()
	}
	if to == StateClosed {
		if p.ExitTime.IsZero() {
			p.ExitTime = time.Now().UTC()
		}
		if p.ExitReason == "" {
			p.ExitReason = condition
		}
	}
	return nil
}

// GetCurrentState returns the canonical persisted state
func (p *Position) GetCurrentState() PositionState {
	return p.State
}

// ensureMachine ensures the StateMachine is initialized from persisted state
func (p *Position) ensureMachine() *StateMachine {
	if p.StateMachine == nil {
		p.StateMachine = NewStateMachineFromState(p.State)
	}
	return p.StateMachine
}

// IsOpen reports whether the position is live.
func (p *Position) IsOpen() bool {
	return p.State == StateOpen
}

// GainRatio returns the unrealized gain of the option leg relative to entry.
func (p *Position) GainRatio() float64 {
	if p.EntryPrice == 0 {
		return 0
	}
	return (p.LastPrice - p.EntryPrice) / p.EntryPrice
}

// UnrealizedPnL returns the mark-to-market profit at the last seen price.
func (p *Position) UnrealizedPnL() float64 {
	return (p.LastPrice - p.EntryPrice) * float64(p.Quantity)
}

// Elapsed returns the holding time at the supplied instant.
func (p *Position) Elapsed(now time.Time) time.Duration {
	if p.EntryTime.IsZero() {
		return 0
	}
	return now.Sub(p.EntryTime)
}

// ValidateState ensures the position state is consistent with strong invariants
func (p *Position) ValidateState() error {
	if err := p.ensureMachine().ValidateStateConsistency(); err != nil {
		return fmt.Errorf("position %s state validation failed: %w", p.ID, err)
	}

	currentState := p.State

	if p.Quantity < 0 {
		return fmt.Errorf("position %s in state %s: Quantity cannot be negative (current: %d)",
			p.ID, currentState, p.Quantity)
	}

	switch currentState {
	case StateIdle:
		if !p.EntryTime.IsZero() {
			return fmt.Errorf("position %s in state %s: EntryTime must be zero for idle positions (current: %v)",
				p.ID, currentState, p.EntryTime)
		}
		if !p.ExitTime.IsZero() {
			return fmt.Errorf("position %s in state %s: ExitTime must be zero for idle positions (current: %v)",
				p.ID, currentState, p.ExitTime)
		}
		if strings.TrimSpace(p.ExitReason) != "" {
			return fmt.Errorf("position %s in state %s: ExitReason must be empty for idle positions (current: %s)",
				p.ID, currentState, p.ExitReason)
		}
		if p.Quantity != 0 {
			return fmt.Errorf("position %s in state %s: Quantity must be zero for idle positions (current: %d)",
				p.ID, currentState, p.Quantity)
		}
	case StateOpen:
		if p.EntryTime.IsZero() {
			return fmt.Errorf("position %s in state %s: EntryTime must be set for open positions",
				p.ID, currentState)
		}
		if !p.ExitTime.IsZero() {
			return fmt.Errorf("position %s in state %s: ExitTime must be zero for open positions (current: %v)",
				p.ID, currentState, p.ExitTime)
		}
		if strings.TrimSpace(p.ExitReason) != "" {
			return fmt.Errorf("position %s in state %s: ExitReason must be empty for open positions (current: %s)",
				p.ID, currentState, p.ExitReason)
		}
		if p.EntryPrice <= 0 {
			return fmt.Errorf("position %s in state %s: EntryPrice must be positive for open positions (current: %.2f)",
				p.ID, currentState, p.EntryPrice)
		}
		if p.Quantity <= 0 {
			return fmt.Errorf("position %s in state %s: Quantity must be > 0 for open positions (current: %d)",
				p.ID, currentState, p.Quantity)
		}
	case StateClosed:
		if p.EntryTime.IsZero() {
			return fmt.Errorf("position %s in state %s: EntryTime must be set for closed positions",
				p.ID, currentState)
		}
		if p.ExitTime.IsZero() {
			return fmt.Errorf("position %s in state %s: ExitTime must be set for closed positions",
				p.ID, currentState)
		}
		if strings.TrimSpace(p.ExitReason) == "" {
			return fmt.Errorf("position %s in state %s: ExitReason must be set for closed positions", p.ID, currentState)
		}
		if p.Quantity <= 0 {
			return fmt.Errorf("position %s in state %s: Quantity must be > 0 for closed positions (current: %d)",
				p.ID, currentState, p.Quantity)
		}
		if p.ExitTime.Before(p.EntryTime) {
			return fmt.Errorf("position %s in state %s: ExitTime (%v) must not precede EntryTime (%v)",
				p.ID, currentState, p.ExitTime, p.EntryTime)
		}
	}

	return nil
}

// GetStateDescription returns a human-readable state description
func (p *Position) GetStateDescription() string {
	return p.ensureMachine().GetStateDescription()
}
