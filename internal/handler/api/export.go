package api

import (
	"encoding/json"
	"time"

	"github.com/labstack/echo/v4"

	models "TradeVeil/internal/domain/models"
	domrepo "TradeVeil/internal/domain/repository"
	"TradeVeil/internal/gate"
	icache "TradeVeil/internal/service/cache"
	"TradeVeil/internal/service/metrics"
	"TradeVeil/internal/service/ratelimit"
	pkgcache "TradeVeil/pkg/cache"
	xhttp "TradeVeil/pkg/http"
	xlogger "TradeVeil/pkg/logger"
)

// readCacheTTL is how long journal reads are served from cache.
const readCacheTTL = 5 * time.Second

// HealthChecker reports whether the feed side of the system is alive.
type HealthChecker interface {
	IsConnected() bool
}

// ExportHandler serves the decision journal and the runtime gate state over
// HTTP. Read endpoints are cached and rate limited; the release endpoint is
// the operator's escape hatch for slots whose fills never arrived.
type ExportHandler struct {
	log      *xlogger.Logger
	journal  domrepo.Journal
	ledger   *gate.ConcurrencyLedger
	cooldown *gate.CooldownRegistry
	health   HealthChecker
	cache    icache.BytesCache
	rl       *ratelimit.Limiter
}

func NewExportHandler(
	log *xlogger.Logger,
	journal domrepo.Journal,
	ledger *gate.ConcurrencyLedger,
	cooldown *gate.CooldownRegistry,
	health HealthChecker,
) *ExportHandler {
	metrics.Register()
	return &ExportHandler{
		log:      log,
		journal:  journal,
		ledger:   ledger,
		cooldown: cooldown,
		health:   health,
		rl:       ratelimit.New(),
	}
}

// SetCache injects a response cache for the journal read endpoints.
func (h *ExportHandler) SetCache(c icache.BytesCache) { h.cache = c }

func (h *ExportHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)
	g := e.Group("/api")
	g.GET("/signals", h.Signals)
	g.GET("/rejections", h.Rejections)
	g.GET("/ledger", h.Ledger)
	g.GET("/cooldowns", h.Cooldowns)
	g.POST("/release", h.Release)
}

func (h *ExportHandler) Health(c echo.Context) error {
	status := map[string]interface{}{
		"feed_connected": h.health != nil && h.health.IsConnected(),
	}
	if err := h.journal.Health(c.Request().Context()); err != nil {
		status["journal"] = "down"
		h.log.Warn("journal health check failed", xlogger.Error(err))
		return xhttp.DataResponse(c, 503, status)
	}
	status["journal"] = "ok"
	return xhttp.SuccessResponse(c, status)
}

func (h *ExportHandler) Signals(c echo.Context) error {
	start := time.Now()
	defer func() { metrics.ExportLatency.WithLabelValues("signals").Observe(time.Since(start).Seconds()) }()
	req := &models.SignalsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if !h.rl.Allow(c.RealIP()+":signals", 5, 2) {
		return xhttp.DataResponse(c, 429, map[string]string{"error": "rate limited"})
	}

	since := xhttp.ParseTimeDefault(req.Since, time.Time{})
	cacheKey := pkgcache.GenerateKeyWithParams("signals", req.Instrument, req.Since, req.Limit)
	if b, ok := h.cached(cacheKey); ok {
		return c.JSONBlob(200, b)
	}
	rows, err := h.journal.RecentSignals(c.Request().Context(), req.Instrument, since, req.Limit)
	if err != nil {
		metrics.ExportErrors.WithLabelValues("signals").Inc()
		h.log.Error("signals read error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("journal read failed"))
	}
	return h.respondCached(c, cacheKey, rows)
}

func (h *ExportHandler) Rejections(c echo.Context) error {
	start := time.Now()
	defer func() { metrics.ExportLatency.WithLabelValues("rejections").Observe(time.Since(start).Seconds()) }()
	req := &models.RejectionsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if !h.rl.Allow(c.RealIP()+":rejections", 5, 2) {
		return xhttp.DataResponse(c, 429, map[string]string{"error": "rate limited"})
	}

	since := xhttp.ParseTimeDefault(req.Since, time.Time{})
	cacheKey := pkgcache.GenerateKeyWithParams("rejections", req.Instrument, req.Reason, req.Since, req.Limit)
	if b, ok := h.cached(cacheKey); ok {
		return c.JSONBlob(200, b)
	}
	rows, err := h.journal.RecentRejections(c.Request().Context(), req.Instrument, req.Reason, since, req.Limit)
	if err != nil {
		metrics.ExportErrors.WithLabelValues("rejections").Inc()
		h.log.Error("rejections read error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("journal read failed"))
	}
	return h.respondCached(c, cacheKey, rows)
}

func (h *ExportHandler) Ledger(c echo.Context) error {
	snap := h.ledger.Snapshot()
	active := make(map[string]int, len(snap))
	for inst, ids := range snap {
		active[inst] = len(ids)
	}
	return xhttp.SuccessResponse(c, map[string]interface{}{
		"active":       active,
		"total_active": h.ledger.TotalActive(),
	})
}

func (h *ExportHandler) Cooldowns(c echo.Context) error {
	now := time.Now()
	out := make(map[string]interface{})
	for inst, accepted := range h.cooldown.Snapshot() {
		remaining := h.cooldown.Remaining(inst, now)
		out[inst] = map[string]interface{}{
			"last_accepted": accepted,
			"remaining_ms":  remaining.Milliseconds(),
			"available":     remaining == 0,
		}
	}
	return xhttp.SuccessResponse(c, out)
}

// Release frees a concurrency slot by hand. Meant for operators when a fill
// report was lost and an instrument stays blocked.
func (h *ExportHandler) Release(c echo.Context) error {
	req := &models.ReleaseRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if !h.ledger.Release(req.Instrument, req.ExecutionID) {
		return xhttp.NotFoundResponse(c, map[string]string{
			"error": "no active execution " + req.ExecutionID + " for " + req.Instrument,
		})
	}
	h.log.Info("slot released via api",
		xlogger.String("instrument", req.Instrument),
		xlogger.String("execution_id", req.ExecutionID))
	return xhttp.SuccessResponse(c, map[string]interface{}{
		"instrument": req.Instrument,
		"active":     h.ledger.Active(req.Instrument),
	})
}

func (h *ExportHandler) cached(key string) ([]byte, bool) {
	if h.cache == nil {
		return nil, false
	}
	b, ok, err := h.cache.GetBytes(key)
	if err != nil {
		h.log.Warn("cache get error", xlogger.Error(err))
		return nil, false
	}
	return b, ok
}

func (h *ExportHandler) respondCached(c echo.Context, key string, rows interface{}) error {
	resp := xhttp.APIResponse{Status: 200, Message: "OK", Data: rows}
	b, err := json.Marshal(resp)
	if err != nil {
		return xhttp.InternalServerErrorResponse(c)
	}
	if h.cache != nil {
		if err := h.cache.SetBytes(key, b, readCacheTTL); err != nil {
			h.log.Warn("cache set error", xlogger.Error(err))
		}
	}
	return c.JSONBlob(200, b)
}
