package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"TradeVeil/internal/domain/models"
	"TradeVeil/internal/gate"
	"TradeVeil/pkg/logger"
)

type fakeJournal struct {
	signals    []*models.Signal
	rejections []*models.Rejection
	healthy    bool
}

func (j *fakeJournal) RecordSignal(context.Context, *models.Signal) error                { return nil }
func (j *fakeJournal) RecordDirective(context.Context, *models.ExecutionDirective) error { return nil }
func (j *fakeJournal) RecordRejection(context.Context, *models.Rejection) error          { return nil }

func (j *fakeJournal) RecentSignals(_ context.Context, instrument string, since time.Time, limit int) ([]*models.Signal, error) {
	out := []*models.Signal{}
	for _, s := range j.signals {
		if (instrument == "" || s.Instrument == instrument) && !s.CreatedAt.Before(since) {
			out = append(out, s)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (j *fakeJournal) RecentRejections(_ context.Context, instrument, reason string, since time.Time, limit int) ([]*models.Rejection, error) {
	out := []*models.Rejection{}
	for _, r := range j.rejections {
		if (instrument == "" || r.Instrument == instrument) && (reason == "" || string(r.Reason) == reason) && !r.Timestamp.Before(since) {
			out = append(out, r)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (j *fakeJournal) Health(context.Context) error {
	if !j.healthy {
		return context.DeadlineExceeded
	}
	return nil
}
func (j *fakeJournal) Close() error { return nil }

type alwaysConnected struct{}

func (alwaysConnected) IsConnected() bool { return true }

func testHandler(t *testing.T, journal *fakeJournal, ledger *gate.ConcurrencyLedger) (*ExportHandler, *echo.Echo) {
	t.Helper()
	log, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stderr"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	h := NewExportHandler(log, journal, ledger, gate.NewCooldownRegistry(15*time.Minute), alwaysConnected{})
	e := echo.New()
	h.RegisterRoutes(e)
	return h, e
}

func TestSignalsEndpoint(t *testing.T) {
	journal := &fakeJournal{healthy: true, signals: []*models.Signal{
		{ID: "a", Instrument: "EURUSD", Strategy: models.StrategyBreakout, Confidence: 80},
		{ID: "b", Instrument: "GBPUSD", Strategy: models.StrategyTrend, Confidence: 72},
	}}
	_, e := testHandler(t, journal, gate.NewConcurrencyLedger(1, 5, nil))

	req := httptest.NewRequest(http.MethodGet, "/api/signals?instrument=EURUSD", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Data []models.Signal `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Data) != 1 || resp.Data[0].ID != "a" {
		t.Fatalf("got %+v, want only the EURUSD signal", resp.Data)
	}
}

func TestSignalsLimitValidated(t *testing.T) {
	_, e := testHandler(t, &fakeJournal{healthy: true}, gate.NewConcurrencyLedger(1, 5, nil))

	req := httptest.NewRequest(http.MethodGet, "/api/signals?limit=9999", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for limit over cap", rec.Code)
	}
}

func TestRejectionsReasonValidated(t *testing.T) {
	_, e := testHandler(t, &fakeJournal{healthy: true}, gate.NewConcurrencyLedger(1, 5, nil))

	req := httptest.NewRequest(http.MethodGet, "/api/rejections?reason=bogus", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for unknown reason", rec.Code)
	}
}

func TestReleaseEndpoint(t *testing.T) {
	ledger := gate.NewConcurrencyLedger(1, 5, nil)
	execID := "6b1e6d52-7b2a-4c9e-9a1f-2d3c4b5a6978"
	if !ledger.Admit("GBPUSD", execID) {
		t.Fatalf("admit failed")
	}
	_, e := testHandler(t, &fakeJournal{healthy: true}, ledger)

	body := `{"instrument":"GBPUSD","execution_id":"` + execID + `"}`
	req := httptest.NewRequest(http.MethodPost, "/api/release", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if ledger.Active("GBPUSD") != 0 {
		t.Fatalf("slot not released")
	}

	// releasing again is a 404
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/release", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 for unknown execution", rec.Code)
	}
}

func TestHealthEndpoint(t *testing.T) {
	journal := &fakeJournal{healthy: false}
	_, e := testHandler(t, journal, gate.NewConcurrencyLedger(1, 5, nil))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503 with journal down", rec.Code)
	}

	journal.healthy = true
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}
