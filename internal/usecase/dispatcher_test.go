package usecase

import (
	"context"
	"testing"
	"time"

	"TradeVeil/internal/domain/models"
	"TradeVeil/internal/gate"
)

func directiveAt(executionID string, dispatchAt, expiresAt time.Time) *models.ExecutionDirective {
	return &models.ExecutionDirective{
		SignalID:    "sig-" + executionID,
		ExecutionID: executionID,
		Instrument:  "EURUSD",
		Direction:   models.DirLong,
		Size:        1.0,
		Entry:       1.1000,
		CreatedAt:   dispatchAt.Add(-time.Second),
		DispatchAt:  dispatchAt,
		ExpiresAt:   expiresAt,
	}
}

func TestFlushEmitsDueDirectives(t *testing.T) {
	sched := &stubScheduler{}
	journal := &memJournal{}
	publisher := &memPublisher{}
	ledger := gate.NewConcurrencyLedger(5, 10, nil)
	d := NewDispatcher(sched, ledger, publisher, journal, noopMetrics{}, testLogger(t))

	now := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	d.Enqueue(directiveAt("due", now.Add(-time.Second), now.Add(time.Minute)))
	d.Enqueue(directiveAt("later", now.Add(time.Hour), now.Add(2*time.Hour)))

	d.flush(context.Background(), now)
	if len(publisher.directives) != 1 {
		t.Fatalf("published %d directives, want 1", len(publisher.directives))
	}
	if publisher.directives[0].ExecutionID != "due" {
		t.Fatalf("published %s, want the due directive", publisher.directives[0].ExecutionID)
	}
	if d.Pending() != 1 {
		t.Fatalf("pending = %d, want the later directive held", d.Pending())
	}

	// the held directive fires once its time arrives
	d.flush(context.Background(), now.Add(2*time.Hour))
	if len(publisher.directives) != 2 {
		t.Fatalf("later directive never fired")
	}
}

func TestExpiredDirectiveDroppedAndReleased(t *testing.T) {
	sched := &stubScheduler{}
	journal := &memJournal{}
	publisher := &memPublisher{}
	ledger := gate.NewConcurrencyLedger(5, 10, nil)
	d := NewDispatcher(sched, ledger, publisher, journal, noopMetrics{}, testLogger(t))

	now := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	if !ledger.Admit("EURUSD", "stale") {
		t.Fatalf("admit failed")
	}
	d.Enqueue(directiveAt("stale", now, now.Add(-time.Second)))

	d.flush(context.Background(), now)
	if len(publisher.directives) != 0 {
		t.Fatalf("expired directive was published")
	}
	if len(journal.rejections) != 1 || journal.rejections[0].Reason != models.ReasonExpired {
		t.Fatalf("expiry not journaled as expired")
	}
	if ledger.Active("EURUSD") != 0 {
		t.Fatalf("expired directive kept its concurrency slot")
	}
}

func TestBatchFlushShuffles(t *testing.T) {
	sched := &stubScheduler{}
	journal := &memJournal{}
	publisher := &memPublisher{}
	ledger := gate.NewConcurrencyLedger(5, 10, nil)
	d := NewDispatcher(sched, ledger, publisher, journal, noopMetrics{}, testLogger(t))

	now := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	d.Enqueue(directiveAt("a", now, now.Add(time.Minute)))
	d.flush(context.Background(), now)
	if sched.shuffled != 0 {
		t.Fatalf("single directive was shuffled")
	}

	d.Enqueue(directiveAt("b", now, now.Add(time.Minute)))
	d.Enqueue(directiveAt("c", now, now.Add(time.Minute)))
	d.flush(context.Background(), now)
	if sched.shuffled != 1 {
		t.Fatalf("batch of two not staggered, shuffle calls = %d", sched.shuffled)
	}
}
