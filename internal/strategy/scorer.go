package strategy

import (
	"sort"

	"TradeVeil/internal/domain/models"
	"TradeVeil/internal/market"
)

// Scorer ranks the strategy library against the current market structure.
// Each strategy accumulates points from independent checks; the highest
// score goes first, ties broken by declaration order.
type Scorer struct {
	stats Stats
}

func NewScorer(stats Stats) *Scorer {
	return &Scorer{stats: stats}
}

// activeWindows maps each strategy to the sessions it prefers to trade.
var activeWindows = map[models.StrategyTag][]market.Session{
	models.StrategyBreakout:      {market.SessionLondon, market.SessionOverlap},
	models.StrategyLevelReaction: {market.SessionLondon, market.SessionOverlap, market.SessionNewYork},
	models.StrategyTrend:         {market.SessionLondon, market.SessionOverlap, market.SessionNewYork},
	models.StrategyReversion:     {market.SessionAsian, market.SessionNewYork, market.SessionDead},
}

func inWindow(tag models.StrategyTag, s market.Session) bool {
	for _, w := range activeWindows[tag] {
		if w == s {
			return true
		}
	}
	return false
}

// Rank returns all strategy tags ordered best-first for this structure.
func (s *Scorer) Rank(ms models.MarketStructure) []models.StrategyTag {
	session := market.SessionAt(ms.Timestamp)
	scores := make(map[models.StrategyTag]int, len(declarationOrder))
	for _, tag := range declarationOrder {
		scores[tag] = s.score(tag, ms, session)
	}

	ranked := make([]models.StrategyTag, len(declarationOrder))
	copy(ranked, declarationOrder)
	sort.SliceStable(ranked, func(i, j int) bool {
		return scores[ranked[i]] > scores[ranked[j]]
	})
	return ranked
}

func (s *Scorer) score(tag models.StrategyTag, ms models.MarketStructure, session market.Session) int {
	pts := 0
	winBonus := s.stats.WinRate(tag) > 0.7

	switch tag {
	case models.StrategyBreakout:
		if inWindow(tag, session) {
			pts += 40
		}
		if ms.Volatility == models.VolNormal || ms.Volatility == models.VolHigh {
			pts += 20
		}
		if ms.SessionQuality > 0.8 {
			pts += 20
		}
	case models.StrategyLevelReaction:
		if len(ms.KeyLevels) > 0 && ms.KeyLevels[0].Strength > 0.5 {
			pts += 40
		}
		if ms.Volatility == models.VolLow || ms.Volatility == models.VolNormal {
			pts += 20
		}
		if ms.LiquidityScore > 0.6 {
			pts += 20
		}
	case models.StrategyTrend:
		if ms.Trend != models.TrendRanging && ms.TrendStrength > 40 {
			pts += 40
		}
		if ms.Volatility == models.VolNormal || ms.Volatility == models.VolHigh {
			pts += 20
		}
		if ms.SessionQuality > 0.6 {
			pts += 20
		}
	case models.StrategyReversion:
		if ms.Trend == models.TrendRanging {
			pts += 40
		}
		if ms.Volatility == models.VolLow {
			pts += 30
		}
		if ms.LiquidityScore > 0.4 {
			pts += 10
		}
	}

	if winBonus {
		pts += 20
	}
	return pts
}
