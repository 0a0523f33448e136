package http

import (
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/fyrsmithlabs/voyaged/internal/http"

// Metrics holds the HTTP and negotiation instruments. Instrument creation
// failures are logged and leave the instrument nil; recording through a nil
// instrument is skipped.
type Metrics struct {
	meter  metric.Meter
	logger *zap.Logger

	requestsTotal metric.Int64Counter
	requestDur    metric.Float64Histogram

	sessionsStarted metric.Int64Counter
	decisionsTotal  metric.Int64Counter
	sessionsEnded   metric.Int64Counter
}

// NewMetrics creates the instruments against the global meter provider.
func NewMetrics(logger *zap.Logger) *Metrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Metrics{
		meter:  otel.Meter(instrumentationName),
		logger: logger,
	}

	var err error
	m.requestsTotal, err = m.meter.Int64Counter(
		"voyaged.http.requests_total",
		metric.WithDescription("Total HTTP requests labeled by method, route, and status code."),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		logger.Warn("failed to create requests counter", zap.Error(err))
	}

	m.requestDur, err = m.meter.Float64Histogram(
		"voyaged.http.request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds, labeled by method, route, and status."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.025, 0.1, 0.5, 1, 5, 15, 60, 300),
	)
	if err != nil {
		logger.Warn("failed to create duration histogram", zap.Error(err))
	}

	m.sessionsStarted, err = m.meter.Int64Counter(
		"voyaged.sessions.started_total",
		metric.WithDescription("Negotiation sessions started."),
		metric.WithUnit("{session}"),
	)
	if err != nil {
		logger.Warn("failed to create sessions counter", zap.Error(err))
	}

	m.decisionsTotal, err = m.meter.Int64Counter(
		"voyaged.sessions.decisions_total",
		metric.WithDescription("Plan decisions recorded, labeled by decision (approved, rejected)."),
		metric.WithUnit("{decision}"),
	)
	if err != nil {
		logger.Warn("failed to create decisions counter", zap.Error(err))
	}

	m.sessionsEnded, err = m.meter.Int64Counter(
		"voyaged.sessions.ended_total",
		metric.WithDescription("Sessions reaching a terminal state, labeled by state and reason."),
		metric.WithUnit("{session}"),
	)
	if err != nil {
		logger.Warn("failed to create ended counter", zap.Error(err))
	}
	return m
}

// Middleware instruments every request.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			attrs := metric.WithAttributes(
				attribute.String("method", c.Request().Method),
				attribute.String("route", c.Path()),
				attribute.Int("status", c.Response().Status),
			)
			ctx := c.Request().Context()
			if m.requestsTotal != nil {
				m.requestsTotal.Add(ctx, 1, attrs)
			}
			if m.requestDur != nil {
				m.requestDur.Record(ctx, time.Since(start).Seconds(), attrs)
			}
			return err
		}
	}
}

// SessionStarted records a session start.
func (m *Metrics) SessionStarted(c echo.Context) {
	if m.sessionsStarted != nil {
		m.sessionsStarted.Add(c.Request().Context(), 1)
	}
}

// DecisionRecorded records one approval or rejection.
func (m *Metrics) DecisionRecorded(c echo.Context, decision string) {
	if m.decisionsTotal != nil {
		m.decisionsTotal.Add(c.Request().Context(), 1,
			metric.WithAttributes(attribute.String("decision", decision)))
	}
}

// SessionEnded records a terminal state.
func (m *Metrics) SessionEnded(c echo.Context, state, reason string) {
	if m.sessionsEnded != nil {
		m.sessionsEnded.Add(c.Request().Context(), 1,
			metric.WithAttributes(
				attribute.String("state", state),
				attribute.String("reason", reason),
			))
	}
}
