// Package mock provides an offline market simulator and in-process
// implementations of the provider interfaces. Mock mode and the orchestrator
// tests run the full loop against it without touching the network.
package mock

import (
	"crypto/rand"
	"fmt"
	"math"
	"math/big"
	"strings"
	"sync"
	"time"

	"niftyscalp/internal/models"
	"niftyscalp/internal/util"
)

// chainSpan is how many strike steps the simulated chain covers on each
// side of the ATM strike.
const chainSpan = 5

// secureFloat64 generates a cryptographically secure random float64 between 0 and 1
func secureFloat64() float64 {
	n, err := rand.Int(rand.Reader, big.NewInt(1<<53))
	if err != nil {
		// Fallback to a reasonable default if crypto/rand fails
		return 0.5
	}
	return float64(n.Int64()) / (1 << 53)
}

// secureInt63n generates a cryptographically secure random int64 between 0 and n-1
func secureInt63n(n int64) int64 {
	max := big.NewInt(n)
	r, err := rand.Int(rand.Reader, max)
	if err != nil {
		// Fallback to a reasonable default if crypto/rand fails
		return n / 2
	}
	return r.Int64()
}

type contract struct {
	strike float64
	side   models.OptionSide
	symbol string
}

// Market is the shared simulator state: a random-walk spot plus the option
// contracts minted so far. Premiums are an intrinsic-plus-decay
// approximation off the simulated spot, so every consumer of the same
// Market sees a consistent price surface.
type Market struct {
	mu            sync.Mutex
	underlying    string
	underlyingKey string
	strikeStep    float64
	spot          float64
	iv            float64
	contracts     map[string]contract
}

// NewMarket seeds a simulator for one underlying. A non-positive strikeStep
// falls back to the name-based step, a non-positive spot to a plausible
// index level.
func NewMarket(underlying, instrumentKey string, spot, strikeStep float64) *Market {
	if strikeStep <= 0 {
		strikeStep = util.StrikeStep(underlying)
	}
	if spot <= 0 {
		spot = 24000 + secureFloat64()*1000
	}
	return &Market{
		underlying:    underlying,
		underlyingKey: instrumentKey,
		strikeStep:    strikeStep,
		spot:          spot,
		iv:            11 + secureFloat64()*6,
		contracts:     make(map[string]contract),
	}
}

// UnderlyingKey returns the instrument key the simulator streams the index
// under.
func (m *Market) UnderlyingKey() string {
	return m.underlyingKey
}

// Spot returns the current simulated index level.
func (m *Market) Spot() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.spot
}

// SetSpot pins the index to an exact level. Tests use this to steer the
// walk deterministically.
func (m *Market) SetSpot(price float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.spot = price
}

// Advance moves the index one random-walk step and returns the new level.
func (m *Market) Advance() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.spot += (secureFloat64() - 0.5) * m.spot * 0.0004
	return m.spot
}

// Resolve mints a stable instrument key and contract symbol for a strike
// and side, registering it so later Premium lookups price it.
func (m *Market) Resolve(strike float64, side models.OptionSide) (key, symbol string) {
	code := "CE"
	if side == models.SidePut {
		code = "PE"
	}
	compact := strings.ReplaceAll(m.underlying, " ", "")
	key = fmt.Sprintf("MOCK_FO|%s%.0f%s", compact, strike, code)
	symbol = fmt.Sprintf("%s %.0f %s", m.underlying, strike, code)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.contracts[key] = contract{strike: strike, side: side, symbol: symbol}
	return key, symbol
}

// Premium prices a previously resolved contract off the current spot.
func (m *Market) Premium(instrumentKey string) (float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.contracts[instrumentKey]
	if !ok {
		return 0, false
	}
	return m.premiumLocked(c.strike, c.side), true
}

// premiumLocked approximates an option premium as intrinsic value plus a
// time value that decays exponentially with distance from spot.
func (m *Market) premiumLocked(strike float64, side models.OptionSide) float64 {
	var intrinsic float64
	if side == models.SideCall {
		intrinsic = math.Max(0, m.spot-strike)
	} else {
		intrinsic = math.Max(0, strike-m.spot)
	}
	timeValue := m.spot * (m.iv / 100) * 0.04
	return math.Max(0.5, intrinsic+timeValue*m.decayLocked(strike))
}

// decayLocked is the distance decay shared by premiums and deltas, 1 at the
// money and falling exponentially per strike step away.
func (m *Market) decayLocked(strike float64) float64 {
	distance := math.Abs(strike - m.spot)
	return math.Exp(-distance / (3 * m.strikeStep))
}

// Chain builds a snapshot covering chainSpan strike steps on each side of
// the ATM strike, one call and one put row per strike.
func (m *Market) Chain() *models.ChainSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	atm := util.ATMStrike(m.spot, m.strikeStep)
	start := atm - chainSpan*m.strikeStep
	end := atm + chainSpan*m.strikeStep

	var chain []models.ChainRow
	for strike := start; strike <= end; strike += m.strikeStep {
		decay := m.decayLocked(strike)

		callDelta := 0.5 * decay
		if strike < m.spot {
			callDelta = 0.5 + 0.5*(1-decay)
		}
		putDelta := callDelta - 1

		baseOI := int64((0.4 + 0.6*decay) * 1_800_000)
		iv := m.iv + math.Abs(strike-m.spot)/m.strikeStep*0.3 + (secureFloat64() - 0.5)

		chain = append(chain,
			models.ChainRow{
				Strike:     strike,
				OptionType: models.OptionCall,
				OI:         baseOI + secureInt63n(400_000),
				OIChange:   secureInt63n(500_001) - 250_000,
				Volume:     secureInt63n(3_000_000),
				IV:         iv,
				Delta:      callDelta,
				LastPrice:  m.premiumLocked(strike, models.SideCall),
			},
			models.ChainRow{
				Strike:     strike,
				OptionType: models.OptionPut,
				OI:         baseOI + secureInt63n(400_000),
				OIChange:   secureInt63n(500_001) - 250_000,
				Volume:     secureInt63n(3_000_000),
				IV:         iv,
				Delta:      putDelta,
				LastPrice:  m.premiumLocked(strike, models.SidePut),
			},
		)
	}

	return &models.ChainSnapshot{Chain: chain, SpotPrice: m.spot}
}

// SupportResistance derives strike levels around the current ATM strike,
// three below as support and three above as resistance.
func (m *Market) SupportResistance() *models.SupportResistance {
	m.mu.Lock()
	defer m.mu.Unlock()

	atm := util.ATMStrike(m.spot, m.strikeStep)
	sr := &models.SupportResistance{}
	for i := 1; i <= 3; i++ {
		sr.Support = append(sr.Support, models.StrikeLevel{Strike: atm - float64(i)*m.strikeStep})
		sr.Resistance = append(sr.Resistance, models.StrikeLevel{Strike: atm + float64(i)*m.strikeStep})
	}
	return sr
}

// History synthesizes count one-minute candles that drift up into the given
// level, oldest first, ending at the last completed minute.
func (m *Market) History(level float64, count int) []models.Candle {
	end := time.Now().Truncate(time.Minute)
	candles := make([]models.Candle, 0, count)

	price := level * 0.996
	for i := 0; i < count; i++ {
		frac := float64(i+1) / float64(count)
		base := level * (0.996 + 0.004*frac)
		wave := level * 0.0025 * math.Sin(float64(i)/6)
		closePx := base + wave + (secureFloat64()-0.5)*level*0.0008

		open := price
		high := math.Max(open, closePx) + secureFloat64()*level*0.0004
		low := math.Min(open, closePx) - secureFloat64()*level*0.0004

		candles = append(candles, models.Candle{
			Timestamp: end.Add(-time.Duration(count-i) * time.Minute),
			Open:      open,
			High:      high,
			Low:       low,
			Close:     closePx,
			Volume:    40_000 + secureInt63n(160_000),
		})
		price = closePx
	}
	return candles
}
