// Package models provides the shared market data structures and position
// state management for the scalper.
package models

import "time"

// InstrumentRole identifies which slot of the watch set an instrument
// currently occupies. Exactly one live instrument is mapped per role.
type InstrumentRole string

const (
	// RoleUnderlying is the index being scalped.
	RoleUnderlying InstrumentRole = "underlying"
	// RoleATMCall is the at-the-money call leg.
	RoleATMCall InstrumentRole = "atm_call"
	// RoleATMPut is the at-the-money put leg.
	RoleATMPut InstrumentRole = "atm_put"
)

// Valid returns true if the role is one of the defined constants.
func (r InstrumentRole) Valid() bool {
	switch r {
	case RoleUnderlying, RoleATMCall, RoleATMPut:
		return true
	default:
		return false
	}
}

// IsOption returns true for the two option legs.
func (r InstrumentRole) IsOption() bool {
	return r == RoleATMCall || r == RoleATMPut
}

// OptionSide is the direction of a bought option position.
type OptionSide string

const (
	// SideCall marks a long call position.
	SideCall OptionSide = "CALL"
	// SidePut marks a long put position.
	SidePut OptionSide = "PUT"
)

// Role returns the watch-set role that trades this side.
func (s OptionSide) Role() InstrumentRole {
	if s == SidePut {
		return RoleATMPut
	}
	return RoleATMCall
}

// OptionType is the contract type as reported by the option chain.
type OptionType string

const (
	// OptionCall is a call contract row.
	OptionCall OptionType = "call"
	// OptionPut is a put contract row.
	OptionPut OptionType = "put"
)

// Tick is a single trade print.
type Tick struct {
	Timestamp time.Time `json:"timestamp"`
	Price     float64   `json:"price"`
	Size      int64     `json:"size"`
}

// Candle is one bar of one-minute OHLCV data.
type Candle struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    int64     `json:"volume"`
}

// ChainRow is a single strike/side row of the option chain, validated at the
// provider boundary.
type ChainRow struct {
	Strike     float64    `json:"strike"`
	OptionType OptionType `json:"option_type"`
	OI         int64      `json:"oi"`
	OIChange   int64      `json:"oi_change"`
	Volume     int64      `json:"volume"`
	IV         float64    `json:"iv"`
	Delta      float64    `json:"delta"`
	LastPrice  float64    `json:"last_price"`
}

// ChainSnapshot is one fetch of the full option chain plus the spot the
// provider observed alongside it.
type ChainSnapshot struct {
	Chain     []ChainRow `json:"chain"`
	SpotPrice float64    `json:"spot_price"`
}

// StrikeLevel is an open-interest derived support or resistance strike.
type StrikeLevel struct {
	Strike float64 `json:"strike"`
}

// SupportResistance carries the OI-derived strike levels for an underlying.
type SupportResistance struct {
	Support    []StrikeLevel `json:"support_levels"`
	Resistance []StrikeLevel `json:"resistance_levels"`
}

// LevelKind classifies a derived price level.
type LevelKind string

const (
	LevelSwingHigh       LevelKind = "swing_high"
	LevelSwingLow        LevelKind = "swing_low"
	LevelHVN             LevelKind = "hvn"
	LevelORBHigh         LevelKind = "orb_high"
	LevelORBLow          LevelKind = "orb_low"
	LevelPrevWindowHigh  LevelKind = "prev_window_high"
	LevelPrevWindowLow   LevelKind = "prev_window_low"
	LevelRecentSwingHigh LevelKind = "recent_swing_high"
	LevelRecentSwingLow  LevelKind = "recent_swing_low"
)

// Level is a derived reference price owned by one instrument role.
type Level struct {
	Price float64        `json:"price"`
	Kind  LevelKind      `json:"kind"`
	Role  InstrumentRole `json:"role"`
}

// OptionLevels holds the reference levels tracked per option instrument,
// recomputed wholesale from its one-minute candle buffer.
type OptionLevels struct {
	ORBHigh         float64 `json:"orb_high"`
	ORBLow          float64 `json:"orb_low"`
	PrevWindowHigh  float64 `json:"prev_window_high"`
	PrevWindowLow   float64 `json:"prev_window_low"`
	RecentSwingHigh float64 `json:"recent_swing_high"`
	RecentSwingLow  float64 `json:"recent_swing_low"`
}
