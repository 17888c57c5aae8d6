package api

import (
	"fmt"
	"net/http"
	"time"

	"MacroPull/internal/domain/models"
	domrepo "MacroPull/internal/domain/repository"
	"MacroPull/internal/service/metrics"
	xhttp "MacroPull/pkg/http"
	xlogger "MacroPull/pkg/logger"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
)

// SnapshotEchoHandler serves the current snapshot over JSON.
type SnapshotEchoHandler struct {
	logger          *xlogger.Logger
	snapshots       domrepo.SnapshotProvider
	fallbackVersion string
	ttl             time.Duration
	limiter         echomw.RateLimiterStore
	now             func() time.Time
}

// NewSnapshotEchoHandler wires the handler. limiter buckets /api requests
// per client address; nil disables rate limiting.
func NewSnapshotEchoHandler(logger *xlogger.Logger, snapshots domrepo.SnapshotProvider, fallbackVersion string, ttl time.Duration, limiter echomw.RateLimiterStore) *SnapshotEchoHandler {
	metrics.Register()
	return &SnapshotEchoHandler{
		logger:          logger,
		snapshots:       snapshots,
		fallbackVersion: fallbackVersion,
		ttl:             ttl,
		limiter:         limiter,
		now:             time.Now,
	}
}

func (h *SnapshotEchoHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Healthz)

	g := e.Group("/api")
	if h.limiter != nil {
		g.Use(h.rateLimit())
	}
	g.GET("/snapshot", h.Snapshot)
	g.GET("/quote", h.Quote)
}

func (h *SnapshotEchoHandler) Healthz(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

// Snapshot always answers 200. A FALLBACK snapshot is still displayable;
// provenance tells the client which values are stale.
func (h *SnapshotEchoHandler) Snapshot(c echo.Context) error {
	start := time.Now()
	defer observe("snapshot", start)

	snap := h.snapshots.Get(c.Request().Context())
	now := h.now()
	h.setCacheHeader(c, snap, now)
	return xhttp.SuccessResponse(c, toSnapshotResponse(snap, h.fallbackVersion, now))
}

func (h *SnapshotEchoHandler) Quote(c echo.Context) error {
	start := time.Now()
	defer observe("quote", start)

	req := &models.QuoteRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		metrics.APIErrors.WithLabelValues("quote").Inc()
		return xhttp.BadRequestResponse(c, verr)
	}

	field, ok := models.ParseField(req.Field)
	if !ok {
		metrics.APIErrors.WithLabelValues("quote").Inc()
		return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("unknown field %q", req.Field))
	}

	snap := h.snapshots.Get(c.Request().Context())
	v, _ := snap.Value(field)
	p := int32(req.Precision)

	h.setCacheHeader(c, snap, h.now())
	return xhttp.SuccessResponse(c, QuoteResponse{
		Field:      string(field),
		Value:      v.Round(p).InexactFloat64(),
		Display:    v.StringFixed(p),
		Provenance: string(snap.Origin(field)),
		FetchedAt:  snap.FetchedAt,
	})
}

func (h *SnapshotEchoHandler) rateLimit() echo.MiddlewareFunc {
	return echomw.RateLimiterWithConfig(echomw.RateLimiterConfig{
		Store: h.limiter,
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return xhttp.AppErrorResponse(c, xhttp.BadRequestError("client address unavailable").WithError(err))
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			metrics.APIErrors.WithLabelValues("rate_limited").Inc()
			h.logger.Debug("request rate limited", xlogger.String("client", identifier))
			c.Response().Header().Set("Retry-After", "1")
			return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError("too many requests"))
		},
	})
}

// setCacheHeader lets browsers reuse the response until the server-side
// entry would expire anyway.
func (h *SnapshotEchoHandler) setCacheHeader(c echo.Context, snap models.Snapshot, now time.Time) {
	remaining := h.ttl - now.Sub(snap.FetchedAt)
	if remaining < 0 {
		remaining = 0
	}
	c.Response().Header().Set(echo.HeaderCacheControl, fmt.Sprintf("private, max-age=%d", int(remaining.Seconds())))
}

func observe(endpoint string, start time.Time) {
	metrics.APILatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
}
