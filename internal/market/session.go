package market

import "time"

// Session identifies the active trading session window by UTC hour.
type Session string

const (
	SessionAsian   Session = "asian"
	SessionLondon  Session = "london"
	SessionOverlap Session = "overlap" // London/New York
	SessionNewYork Session = "newyork"
	SessionDead    Session = "dead"
)

// sessionQuality is the base quality per session; highest during the
// London/NY overlap, lowest in the late-day dead zone.
var sessionQuality = map[Session]float64{
	SessionAsian:   0.5,
	SessionLondon:  0.8,
	SessionOverlap: 1.0,
	SessionNewYork: 0.7,
	SessionDead:    0.2,
}

// SessionAt returns the trading session for a timestamp.
func SessionAt(t time.Time) Session {
	switch h := t.UTC().Hour(); {
	case h < 7:
		return SessionAsian
	case h < 12:
		return SessionLondon
	case h < 16:
		return SessionOverlap
	case h < 21:
		return SessionNewYork
	default:
		return SessionDead
	}
}

// QualityAt returns the base session quality for a timestamp.
func QualityAt(t time.Time) float64 {
	return sessionQuality[SessionAt(t)]
}
