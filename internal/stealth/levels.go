package stealth

import "fmt"

// Level is the configured protection tier scaling all perturbation
// magnitudes together.
type Level string

const (
	LevelLow    Level = "low"
	LevelMedium Level = "medium"
	LevelHigh   Level = "high"
	LevelGhost  Level = "ghost"
)

// levelParams holds every perturbation range selected by a protection level.
type levelParams struct {
	skipProb     float64 // ghost-skip probability
	delayMult    float64 // entry delay multiplier
	jitterMinPct float64 // size jitter band, percent
	jitterMaxPct float64
	priceMult    float64 // price offset multiplier
}

var levelTable = map[Level]levelParams{
	LevelLow:    {skipProb: 0.05, delayMult: 0.5, jitterMinPct: 1, jitterMaxPct: 3, priceMult: 0.5},
	LevelMedium: {skipProb: 0.12, delayMult: 1.0, jitterMinPct: 3, jitterMaxPct: 7, priceMult: 1.0},
	LevelHigh:   {skipProb: 0.22, delayMult: 1.5, jitterMinPct: 5, jitterMaxPct: 10, priceMult: 1.5},
	LevelGhost:  {skipProb: 0.33, delayMult: 2.0, jitterMinPct: 8, jitterMaxPct: 15, priceMult: 2.0},
}

// ParseLevel validates a configured protection level.
func ParseLevel(s string) (Level, error) {
	l := Level(s)
	if _, ok := levelTable[l]; !ok {
		return "", fmt.Errorf("unknown protection level %q", s)
	}
	return l, nil
}

// DelayMultiplier exposes the per-level entry delay multiplier.
func DelayMultiplier(l Level) float64 { return levelTable[l].delayMult }

// SkipProbability exposes the per-level ghost-skip probability.
func SkipProbability(l Level) float64 { return levelTable[l].skipProb }
