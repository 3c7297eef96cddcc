package gate

import (
	"testing"
	"time"

	"TradeVeil/internal/domain/models"
	"TradeVeil/pkg/config"
)

func testEngineConfig() config.EngineConfig {
	return config.EngineConfig{
		MinConfidence:     60,
		OvertradingMax:    3,
		OvertradingWindow: time.Hour,
		SpreadGuardMult:   3,
		Correlated:        map[string][]string{"EURUSD": {"GBPUSD"}},
	}
}

func cand(instrument string, conf float64, at time.Time) *models.CandidateSignal {
	return &models.CandidateSignal{
		Instrument: instrument,
		Direction:  models.DirLong,
		Strategy:   models.StrategyBreakout,
		Confidence: conf,
		Entry:      1.1000,
		Stop:       1.0980,
		Target:     1.1040,
		CreatedAt:  at,
		ExpiresAt:  at.Add(5 * time.Minute),
	}
}

func TestValidateConfidenceFloor(t *testing.T) {
	v := NewValidator(testEngineConfig())
	now := time.Date(2025, 3, 3, 13, 0, 0, 0, time.UTC)

	res := v.Validate(cand("EURUSD", 45, now), 0.0001, 0.0001, now)
	if res.IsValid {
		t.Fatalf("confidence 45 must fail the 60 floor")
	}
	if res.Reasons[0] != models.ReasonConfidenceFloor {
		t.Fatalf("want confidence_floor, got %v", res.Reasons)
	}

	if res := v.Validate(cand("EURUSD", 75, now), 0.0001, 0.0001, now); !res.IsValid {
		t.Fatalf("confidence 75 must pass, got %v", res.Reasons)
	}
}

func TestValidateOvertradingGuard(t *testing.T) {
	v := NewValidator(testEngineConfig())
	now := time.Date(2025, 3, 3, 13, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		v.NoteAccepted(&models.Signal{
			Instrument: "EURUSD",
			Direction:  models.DirLong,
			CreatedAt:  now.Add(time.Duration(i) * time.Minute),
		})
	}

	res := v.Validate(cand("EURUSD", 90, now.Add(10*time.Minute)), 0.0001, 0.0001, now.Add(10*time.Minute))
	if res.IsValid {
		t.Fatalf("third accepted signal in the hour must trip the guard")
	}
	found := false
	for _, r := range res.Reasons {
		if r == models.ReasonOvertrading {
			found = true
		}
	}
	if !found {
		t.Fatalf("want overtrading reason, got %v", res.Reasons)
	}

	// Outside the trailing hour the guard resets.
	later := now.Add(2 * time.Hour)
	if res := v.Validate(cand("EURUSD", 90, later), 0.0001, 0.0001, later); !res.IsValid {
		t.Fatalf("guard must reset after the window, got %v", res.Reasons)
	}
}

func TestValidateSpreadGuard(t *testing.T) {
	v := NewValidator(testEngineConfig())
	now := time.Date(2025, 3, 3, 13, 0, 0, 0, time.UTC)

	res := v.Validate(cand("EURUSD", 90, now), 0.0005, 0.0001, now)
	if res.IsValid {
		t.Fatalf("5x normal spread must trip the liquidity guard")
	}
	if res.Reasons[0] != models.ReasonSpreadGuard {
		t.Fatalf("want spread_guard, got %v", res.Reasons)
	}

	// Unknown normal spread disables the guard.
	if res := v.Validate(cand("EURUSD", 90, now), 0.0005, 0, now); !res.IsValid {
		t.Fatalf("guard must be disabled without a baseline, got %v", res.Reasons)
	}
}

func TestValidateCorrelationDeltaBounded(t *testing.T) {
	v := NewValidator(testEngineConfig())
	now := time.Date(2025, 3, 3, 13, 0, 0, 0, time.UTC)

	// Several same-direction peer acceptances: delta must clamp at +10.
	for i := 0; i < 5; i++ {
		v.NoteAccepted(&models.Signal{
			Instrument: "GBPUSD",
			Direction:  models.DirLong,
			CreatedAt:  now.Add(time.Duration(i) * time.Minute),
		})
	}
	res := v.Validate(cand("EURUSD", 55, now.Add(10*time.Minute)), 0.0001, 0.0001, now.Add(10*time.Minute))
	if res.ConfidenceDelta != 10 {
		t.Fatalf("want clamped +10 delta, got %v", res.ConfidenceDelta)
	}
	// 55 + 10 = 65 clears the floor.
	if !res.IsValid {
		t.Fatalf("agreement bonus should rescue the candidate, got %v", res.Reasons)
	}
}
