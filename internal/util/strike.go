package util

import "strings"

// DefaultStrikeStep is the strike spacing assumed when nothing better is known.
const DefaultStrikeStep = 50.0

// StrikeStep returns the option strike spacing for an underlying by name.
// Bank index contracts trade on a 100-point grid, the headline indices on 50.
func StrikeStep(underlying string) float64 {
	if strings.Contains(strings.ToUpper(underlying), "BANK") {
		return 100
	}
	return DefaultStrikeStep
}

// ATMStrike snaps a spot price to the nearest strike on the given grid.
// A non-positive step falls back to DefaultStrikeStep.
func ATMStrike(spot, step float64) float64 {
	if step <= 0 {
		step = DefaultStrikeStep
	}
	return RoundToTick(spot, step)
}
