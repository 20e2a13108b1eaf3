package levels

import (
	"math"
	"testing"

	"niftyscalp/internal/models"
)

func chainAround(spot float64) []models.ChainRow {
	strikes := []float64{spot - 200, spot - 100, spot, spot + 100, spot + 200}
	var chain []models.ChainRow
	for _, k := range strikes {
		chain = append(chain,
			models.ChainRow{Strike: k, OptionType: models.OptionCall, OI: 1000},
			models.ChainRow{Strike: k, OptionType: models.OptionPut, OI: 1500},
		)
	}
	return chain
}

func TestCalculatePCR_NearestStrikes(t *testing.T) {
	spot := 24500.0
	chain := chainAround(spot)
	// A distant strike with enormous OI must not enter the ten-row window.
	chain = append(chain,
		models.ChainRow{Strike: spot + 300, OptionType: models.OptionCall, OI: 10000000},
		models.ChainRow{Strike: spot + 300, OptionType: models.OptionPut, OI: 10000000},
	)
	firstStrike := chain[0].Strike

	e := NewEngine()
	pcr := e.CalculatePCR(chain, spot)

	if math.Abs(pcr-1.5) > 1e-9 {
		t.Errorf("CalculatePCR() = %v, want 1.5", pcr)
	}
	if chain[0].Strike != firstStrike {
		t.Error("CalculatePCR() reordered the caller's chain")
	}
	if h := e.PCRHistory(); len(h) != 1 || math.Abs(h[0]-1.5) > 1e-9 {
		t.Errorf("PCRHistory() = %v, want [1.5]", h)
	}
}

func TestCalculatePCR_NoCalls(t *testing.T) {
	chain := []models.ChainRow{
		{Strike: 24500, OptionType: models.OptionPut, OI: 5000},
	}
	e := NewEngine()
	if pcr := e.CalculatePCR(chain, 24500); pcr != 0 {
		t.Errorf("CalculatePCR() with no call OI = %v, want 0", pcr)
	}
}

func TestCalculatePCR_EmptyChain(t *testing.T) {
	e := NewEngine()
	if pcr := e.CalculatePCR(nil, 24500); pcr != 0 {
		t.Errorf("CalculatePCR(nil) = %v, want 0", pcr)
	}
	if h := e.PCRHistory(); len(h) != 0 {
		t.Errorf("empty chain recorded history: %v", h)
	}
}

func TestPCRHistoryCap(t *testing.T) {
	e := NewEngine()
	chain := chainAround(24500)
	for i := 0; i < pcrHistoryCap+5; i++ {
		e.CalculatePCR(chain, 24500)
	}
	if h := e.PCRHistory(); len(h) != pcrHistoryCap {
		t.Errorf("PCRHistory() length = %d, want %d", len(h), pcrHistoryCap)
	}
}

func TestPCRRising(t *testing.T) {
	e := NewEngine()
	if e.PCRRising() {
		t.Error("PCRRising() with no history = true, want false")
	}

	low := []models.ChainRow{
		{Strike: 24500, OptionType: models.OptionCall, OI: 1000},
		{Strike: 24500, OptionType: models.OptionPut, OI: 1000},
	}
	high := []models.ChainRow{
		{Strike: 24500, OptionType: models.OptionCall, OI: 1000},
		{Strike: 24500, OptionType: models.OptionPut, OI: 2000},
	}

	e.CalculatePCR(low, 24500)
	if e.PCRRising() {
		t.Error("PCRRising() with one observation = true, want false")
	}
	e.CalculatePCR(high, 24500)
	if !e.PCRRising() {
		t.Error("PCRRising() after 1.0 -> 2.0 = false, want true")
	}
	e.CalculatePCR(low, 24500)
	if e.PCRRising() {
		t.Error("PCRRising() after 2.0 -> 1.0 = true, want false")
	}
}

func TestOISpurt(t *testing.T) {
	previous := []models.ChainRow{
		{Strike: 24500, OptionType: models.OptionCall, OI: 1000},
		{Strike: 24500, OptionType: models.OptionPut, OI: 2000},
		{Strike: 24600, OptionType: models.OptionCall, OI: 500},
	}
	current := []models.ChainRow{
		{Strike: 24500, OptionType: models.OptionCall, OI: 1500},
		{Strike: 24500, OptionType: models.OptionPut, OI: 1800},
		{Strike: 24600, OptionType: models.OptionCall, OI: 900},
		// No previous row for this strike, so it contributes nothing.
		{Strike: 24700, OptionType: models.OptionPut, OI: 99999},
	}

	callSpurt, putSpurt := OISpurt(current, previous)
	if callSpurt != 900 {
		t.Errorf("callSpurt = %d, want 900", callSpurt)
	}
	if putSpurt != -200 {
		t.Errorf("putSpurt = %d, want -200", putSpurt)
	}
}

func TestOISpurt_EmptyPrevious(t *testing.T) {
	current := []models.ChainRow{
		{Strike: 24500, OptionType: models.OptionCall, OI: 1500},
	}
	if c, p := OISpurt(current, nil); c != 0 || p != 0 {
		t.Errorf("OISpurt() with empty previous = (%d, %d), want (0, 0)", c, p)
	}
}

func TestNetSpurtPower(t *testing.T) {
	tests := []struct {
		netSpurt int64
		want     OIPower
	}{
		{600000, OIPowerStrong},
		{-600000, OIPowerStrong},
		{500001, OIPowerStrong},
		{500000, OIPowerModerate},
		{200000, OIPowerModerate},
		{-150000, OIPowerModerate},
		{100000, OIPowerWeak},
		{50000, OIPowerWeak},
		{0, OIPowerWeak},
	}
	for _, tt := range tests {
		if got := NetSpurtPower(tt.netSpurt); got != tt.want {
			t.Errorf("NetSpurtPower(%d) = %v, want %v", tt.netSpurt, got, tt.want)
		}
	}
}

func TestBuildupStatus(t *testing.T) {
	tests := []struct {
		name        string
		priceChange float64
		oiChange    int64
		want        Buildup
	}{
		{"price up oi up", 1.5, 10000, BuildupLong},
		{"price up oi down", 1.5, -10000, BuildupShortCovering},
		{"price down oi up", -1.5, 10000, BuildupShort},
		{"price down oi down", -1.5, -10000, BuildupUnwinding},
		{"flat price", 0, 10000, BuildupNeutral},
		{"flat oi", 1.5, 0, BuildupNeutral},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BuildupStatus(tt.priceChange, tt.oiChange); got != tt.want {
				t.Errorf("BuildupStatus(%v, %d) = %v, want %v", tt.priceChange, tt.oiChange, got, tt.want)
			}
		})
	}
}
