// Package http exposes the negotiation engine over a JSON API: start a
// session, decide on plans, read status and transcript.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/voyaged/internal/negotiation"
	"github.com/fyrsmithlabs/voyaged/internal/registry"
	"github.com/fyrsmithlabs/voyaged/internal/transcript"
)

// Server serves the voyaged HTTP API.
type Server struct {
	echo    *echo.Echo
	service *Service
	metrics *Metrics
	logger  *zap.Logger
	addr    string
}

// NewServer creates the HTTP server around the session service.
func NewServer(service *Service, metrics *Metrics, logger *zap.Logger, addr string) (*Server, error) {
	if service == nil {
		return nil, fmt.Errorf("service is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = NewMetrics(logger)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(metrics.Middleware())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return err
		}
	})

	s := &Server{
		echo:    e,
		service: service,
		metrics: metrics,
		logger:  logger,
		addr:    addr,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/sessions", s.handleStart)
	v1.GET("/sessions", s.handleList)
	v1.GET("/sessions/:id", s.handleStatus)
	v1.GET("/sessions/:id/messages", s.handleMessages)
	v1.POST("/sessions/:id/approve", s.handleApprove)
	v1.POST("/sessions/:id/reject", s.handleReject)
	v1.DELETE("/sessions/:id", s.handleCancel)
}

// StartRequest is the body for POST /api/v1/sessions. Omitting participants
// starts a session over the server's configured default profiles; omitting
// messages_per_volley keeps the server's configured quota.
type StartRequest struct {
	Participants      []registry.Participant `json:"participants,omitempty"`
	MessagesPerVolley int                    `json:"messages_per_volley,omitempty"`
}

// DecisionRequest is the body for approve and reject calls.
type DecisionRequest struct {
	ParticipantID string `json:"participant_id"`
	Feedback      string `json:"feedback,omitempty"`
}

// MessagesResponse is the body for GET /api/v1/sessions/:id/messages.
type MessagesResponse struct {
	SessionID string               `json:"session_id"`
	Messages  []transcript.Message `json:"messages"`
}

// ListResponse is the body for GET /api/v1/sessions.
type ListResponse struct {
	Sessions []string `json:"sessions"`
}

// HealthResponse is the body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleStart(c echo.Context) error {
	var req StartRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.MessagesPerVolley < 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "messages_per_volley must be positive")
	}

	sess, err := s.service.Start(c.Request().Context(), req.Participants, req.MessagesPerVolley)
	if err != nil {
		if errors.Is(err, negotiation.ErrTooFewParticipants) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		if sess == nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		// The session exists but failed during its first round; surface the
		// failed status rather than hiding the session.
		s.metrics.SessionStarted(c)
		st := sess.Status()
		s.metrics.SessionEnded(c, string(st.State), string(st.Reason))
		return c.JSON(http.StatusCreated, st)
	}

	s.metrics.SessionStarted(c)
	return c.JSON(http.StatusCreated, sess.Status())
}

func (s *Server) handleList(c echo.Context) error {
	return c.JSON(http.StatusOK, ListResponse{Sessions: s.service.List()})
}

func (s *Server) handleStatus(c echo.Context) error {
	sess, err := s.service.Get(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return c.JSON(http.StatusOK, sess.Status())
}

func (s *Server) handleMessages(c echo.Context) error {
	sess, err := s.service.Get(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return c.JSON(http.StatusOK, MessagesResponse{
		SessionID: sess.ID,
		Messages:  sess.Messages(),
	})
}

func (s *Server) handleApprove(c echo.Context) error {
	req, httpErr := bindDecision(c)
	if httpErr != nil {
		return httpErr
	}

	sess, err := s.service.Approve(c.Request().Context(), c.Param("id"), req.ParticipantID)
	if err != nil {
		return s.decisionError(err, sess, c)
	}
	s.metrics.DecisionRecorded(c, "approved")
	s.recordTerminal(c, sess)
	return c.JSON(http.StatusOK, sess.Status())
}

func (s *Server) handleReject(c echo.Context) error {
	req, httpErr := bindDecision(c)
	if httpErr != nil {
		return httpErr
	}

	sess, err := s.service.Reject(c.Request().Context(), c.Param("id"), req.ParticipantID, req.Feedback)
	if err != nil {
		return s.decisionError(err, sess, c)
	}
	s.metrics.DecisionRecorded(c, "rejected")
	s.recordTerminal(c, sess)
	return c.JSON(http.StatusOK, sess.Status())
}

func (s *Server) handleCancel(c echo.Context) error {
	sess, err := s.service.Cancel(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	s.recordTerminal(c, sess)
	return c.JSON(http.StatusOK, sess.Status())
}

func (s *Server) recordTerminal(c echo.Context, sess *negotiation.Session) {
	st := sess.Status()
	if st.State.Terminal() {
		s.metrics.SessionEnded(c, string(st.State), string(st.Reason))
	}
}

func bindDecision(c echo.Context) (DecisionRequest, *echo.HTTPError) {
	var req DecisionRequest
	if err := c.Bind(&req); err != nil {
		return req, echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.ParticipantID == "" {
		return req, echo.NewHTTPError(http.StatusBadRequest, "participant_id is required")
	}
	return req, nil
}

// decisionError maps engine errors onto HTTP status codes. A decision that
// validated fine but drove the session into a terminal failure (synthesis
// gave up, negotiation limit hit) is not an HTTP error: the failed status is
// the answer.
func (s *Server) decisionError(err error, sess *negotiation.Session, c echo.Context) error {
	switch {
	case errors.Is(err, ErrSessionNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, negotiation.ErrUnknownParticipant),
		errors.Is(err, negotiation.ErrUnknownPlan):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, negotiation.ErrDuplicateDecision),
		errors.Is(err, negotiation.ErrInvalidState):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, negotiation.ErrFeedbackRequired):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if sess != nil {
		if st := sess.Status(); st.State.Terminal() {
			s.metrics.SessionEnded(c, string(st.State), string(st.Reason))
			return c.JSON(http.StatusOK, st)
		}
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

// Start starts the HTTP listener.
func (s *Server) Start() error {
	s.logger.Info("starting http server", zap.String("addr", s.addr))
	return s.echo.Start(s.addr)
}

// Shutdown gracefully drains the server, then joins the service's
// persistence watchers so no session record is written after it returns.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	err := s.echo.Shutdown(ctx)
	s.service.Close()
	return err
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}
