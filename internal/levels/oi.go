package levels

import (
	"math"
	"sort"

	"niftyscalp/internal/models"
)

const (
	// pcrStrikes is how many chain rows nearest the spot feed the ratio.
	pcrStrikes = 10
	// pcrHistoryCap bounds the retained ratio history.
	pcrHistoryCap = 60
	// oiSpurtStrong and oiSpurtModerate grade the net OI spurt magnitude.
	oiSpurtStrong   = 500000
	oiSpurtModerate = 100000
)

// Buildup labels the price/OI quadrant of a chain side.
type Buildup string

const (
	BuildupLong          Buildup = "LONG_BUILDUP"
	BuildupShortCovering Buildup = "SHORT_COVERING"
	BuildupShort         Buildup = "SHORT_BUILDUP"
	BuildupUnwinding     Buildup = "LONG_UNWINDING"
	BuildupNeutral       Buildup = "NEUTRAL"
)

// OIPower grades the absolute net spurt between the chain sides.
type OIPower string

const (
	OIPowerStrong   OIPower = "STRONG"
	OIPowerModerate OIPower = "MODERATE"
	OIPowerWeak     OIPower = "WEAK"
)

// CalculatePCR computes the put/call open-interest ratio over the ten strikes
// nearest the spot and appends it to the retained history. The caller's chain
// slice is left untouched. An empty chain returns 0 without recording.
func (e *Engine) CalculatePCR(chain []models.ChainRow, spot float64) float64 {
	if len(chain) == 0 {
		return 0
	}

	nearest := make([]models.ChainRow, len(chain))
	copy(nearest, chain)
	sort.SliceStable(nearest, func(i, j int) bool {
		return math.Abs(nearest[i].Strike-spot) < math.Abs(nearest[j].Strike-spot)
	})
	if len(nearest) > pcrStrikes {
		nearest = nearest[:pcrStrikes]
	}

	var callOI, putOI int64
	for _, row := range nearest {
		switch row.OptionType {
		case models.OptionCall:
			callOI += row.OI
		case models.OptionPut:
			putOI += row.OI
		}
	}

	pcr := 0.0
	if callOI > 0 {
		pcr = float64(putOI) / float64(callOI)
	}

	e.mu.Lock()
	e.pcrHistory = append(e.pcrHistory, pcr)
	if len(e.pcrHistory) > pcrHistoryCap {
		e.pcrHistory = e.pcrHistory[len(e.pcrHistory)-pcrHistoryCap:]
	}
	e.mu.Unlock()

	return pcr
}

// PCRHistory returns a copy of the retained ratio history, oldest first.
func (e *Engine) PCRHistory() []float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]float64, len(e.pcrHistory))
	copy(out, e.pcrHistory)
	return out
}

// PCRRising reports whether the last recorded ratio exceeds the one before
// it. Fewer than two observations report false.
func (e *Engine) PCRRising() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	n := len(e.pcrHistory)
	if n < 2 {
		return false
	}
	return e.pcrHistory[n-1] > e.pcrHistory[n-2]
}

// OISpurt totals the per-strike open-interest deltas between two chain
// snapshots, split by side. Strikes absent from the previous snapshot are
// skipped.
func OISpurt(current, previous []models.ChainRow) (callSpurt, putSpurt int64) {
	type key struct {
		strike float64
		typ    models.OptionType
	}
	prev := make(map[key]int64, len(previous))
	for _, row := range previous {
		prev[key{row.Strike, row.OptionType}] = row.OI
	}

	for _, row := range current {
		prevOI, ok := prev[key{row.Strike, row.OptionType}]
		if !ok {
			continue
		}
		delta := row.OI - prevOI
		switch row.OptionType {
		case models.OptionCall:
			callSpurt += delta
		case models.OptionPut:
			putSpurt += delta
		}
	}
	return callSpurt, putSpurt
}

// NetSpurtPower grades the put-minus-call spurt imbalance.
func NetSpurtPower(netSpurt int64) OIPower {
	abs := netSpurt
	if abs < 0 {
		abs = -abs
	}
	switch {
	case abs > oiSpurtStrong:
		return OIPowerStrong
	case abs > oiSpurtModerate:
		return OIPowerModerate
	default:
		return OIPowerWeak
	}
}

// BuildupStatus classifies a side's price move against its OI change.
func BuildupStatus(priceChange float64, oiChange int64) Buildup {
	switch {
	case priceChange > 0 && oiChange > 0:
		return BuildupLong
	case priceChange > 0 && oiChange < 0:
		return BuildupShortCovering
	case priceChange < 0 && oiChange > 0:
		return BuildupShort
	case priceChange < 0 && oiChange < 0:
		return BuildupUnwinding
	default:
		return BuildupNeutral
	}
}
