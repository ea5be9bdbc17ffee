package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"MarketPulse/internal/domain/models"
	domrepo "MarketPulse/internal/domain/repository"
	"MarketPulse/internal/usecase"
	xhttp "MarketPulse/pkg/http"
	applogger "MarketPulse/pkg/logger"

	"github.com/labstack/echo/v4"
)

// HealthCheck probes one dependency.
type HealthCheck func(ctx context.Context) error

// MarketHandler serves the read API and the manual alert trigger.
type MarketHandler struct {
	logger *applogger.Logger
	query  *usecase.MarketQuery
	alerts *usecase.AlertScheduler
	checks map[string]HealthCheck
}

func NewMarketHandler(l *applogger.Logger, query *usecase.MarketQuery, alerts *usecase.AlertScheduler, checks map[string]HealthCheck) *MarketHandler {
	return &MarketHandler{
		logger: l.With(applogger.Component("api")),
		query:  query,
		alerts: alerts,
		checks: checks,
	}
}

func (h *MarketHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/health", h.Health)
	g.GET("/overview", h.Overview)
	g.GET("/market", h.Market)
	g.GET("/market/tick", h.Tick)
	g.GET("/market/price", h.Price)
	g.GET("/market/series", h.Series)
	g.GET("/signals", h.Signals)
	g.GET("/alerts/triggered", h.TriggeredAlerts)
	g.POST("/alerts/:id/trigger", h.TriggerAlert)
	g.GET("/events/history", h.EventHistory)
}

func (h *MarketHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	status := map[string]string{}
	healthy := true
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			status[name] = err.Error()
			healthy = false
			continue
		}
		status[name] = "ok"
	}
	if !healthy {
		return xhttp.DataResponse(c, http.StatusServiceUnavailable, status)
	}
	return xhttp.SuccessResponse(c, status)
}

func (h *MarketHandler) Overview(c echo.Context) error {
	req := &models.ListRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	return xhttp.SuccessResponse(c, h.query.Overview(c.Request().Context(), req.Limit))
}

func (h *MarketHandler) Market(c echo.Context) error {
	ticks := h.query.Market()
	return xhttp.ListResponse(c, ticks, int64(len(ticks)))
}

func (h *MarketHandler) Tick(c echo.Context) error {
	req := &models.TickRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	inst, err := instrumentOf(req.Symbol, req.Segment, req.Venue)
	if err != nil {
		return xhttp.AppErrorResponse(c, err)
	}

	tick, err := h.query.Tick(inst)
	if err != nil {
		return xhttp.AppErrorResponse(c, h.appError(err))
	}
	return xhttp.SuccessResponse(c, tick)
}

// Price serves the upstream's current price for any instrument, not only the
// tracked universe.
func (h *MarketHandler) Price(c echo.Context) error {
	req := &models.TickRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	inst, err := instrumentOf(req.Symbol, req.Segment, req.Venue)
	if err != nil {
		return xhttp.AppErrorResponse(c, err)
	}

	res, err := h.query.Price(c.Request().Context(), inst)
	if err != nil {
		return xhttp.AppErrorResponse(c, h.appError(err))
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *MarketHandler) Series(c echo.Context) error {
	req := &models.SeriesRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	inst, err := instrumentOf(req.Symbol, req.Segment, req.Venue)
	if err != nil {
		return xhttp.AppErrorResponse(c, err)
	}

	res, err := h.query.GetSeries(c.Request().Context(), usecase.SeriesParams{
		Instrument: inst,
		Interval:   models.NormalizeInterval(req.Interval),
		Limit:      req.Limit,
	})
	if err != nil {
		return xhttp.AppErrorResponse(c, h.appError(err))
	}
	if !res.Degraded {
		c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=15")
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *MarketHandler) Signals(c echo.Context) error {
	req := &models.ListRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	sigs, err := h.query.Signals(c.Request().Context(), req.Limit)
	if err != nil {
		return xhttp.AppErrorResponse(c, h.appError(err))
	}
	return xhttp.ListResponse(c, sigs, int64(len(sigs)))
}

func (h *MarketHandler) TriggeredAlerts(c echo.Context) error {
	req := &models.ListRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	alerts, err := h.query.TriggeredAlerts(c.Request().Context(), req.Limit)
	if err != nil {
		return xhttp.AppErrorResponse(c, h.appError(err))
	}
	return xhttp.ListResponse(c, alerts, int64(len(alerts)))
}

func (h *MarketHandler) TriggerAlert(c echo.Context) error {
	req := &models.TriggerAlertRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	a, err := h.alerts.TriggerManual(c.Request().Context(), req.ID)
	if err != nil {
		return xhttp.AppErrorResponse(c, h.appError(err))
	}
	return xhttp.SuccessResponse(c, a)
}

func (h *MarketHandler) EventHistory(c echo.Context) error {
	req := &models.EventHistoryRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	events, err := h.query.History(c.Request().Context(), models.EventType(req.Type), req.Limit)
	if err != nil {
		return xhttp.AppErrorResponse(c, h.appError(err))
	}
	return xhttp.ListResponse(c, events, int64(len(events)))
}

func instrumentOf(symbol, segment, venue string) (models.Instrument, error) {
	seg, err := models.ParseSegment(segment)
	if err != nil {
		return models.Instrument{}, xhttp.BadRequestError(err.Error()).WithError(err)
	}
	return models.NewInstrument(symbol, seg, venue), nil
}

// appError maps domain errors onto HTTP statuses. Anything unknown is logged
// and rendered as a 500.
func (h *MarketHandler) appError(err error) error {
	switch {
	case errors.Is(err, domrepo.ErrNotFound):
		return xhttp.NotFoundError(err.Error()).WithError(err)
	case errors.Is(err, domrepo.ErrInvalidSymbol):
		return xhttp.BadRequestError(err.Error()).WithError(err)
	case errors.Is(err, domrepo.ErrStoreConflict):
		return xhttp.ConflictError(err.Error()).WithError(err)
	case errors.Is(err, domrepo.ErrUpstreamUnavailable),
		errors.Is(err, domrepo.ErrRateLimited):
		return xhttp.UnavailableError(err.Error()).
			WithParam("upstream", string(domrepo.FailureKind(err))).
			WithError(err)
	case errors.Is(err, domrepo.ErrNoPrice),
		errors.Is(err, usecase.ErrHistoryDisabled):
		return xhttp.UnavailableError(err.Error()).WithError(err)
	}
	h.logger.Error("api request failed", applogger.Error(err))
	return err
}
