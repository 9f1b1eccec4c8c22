// Package server exposes the question-answering pipeline over HTTP.
//
// The server wraps an Echo router with request logging, recovery, and
// request IDs, and shuts down gracefully when its context is cancelled.
package server

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

	"github.com/fyrsmithlabs/evidenced/internal/drugevents"
	"github.com/fyrsmithlabs/evidenced/internal/expand"
	"github.com/fyrsmithlabs/evidenced/internal/summarize"
)

// Answerer runs the answer pipeline for one question.
type Answerer interface {
	Answer(ctx context.Context, sessionID, question string) (summarize.Answer, error)
}

// DrugEventSource reports adverse-event summaries for a drug.
type DrugEventSource interface {
	Summarize(ctx context.Context, drug, start, end string) (drugevents.Report, error)
}

// Config holds HTTP server configuration.
type Config struct {
	Port            int
	ShutdownTimeout time.Duration
}

// Server provides the HTTP API.
type Server struct {
	echo       *echo.Echo
	answerer   Answerer
	drugEvents DrugEventSource
	logger     *zap.Logger
	config     Config
}

// New creates the HTTP server. The drug-event source is optional; without
// it the drug-events route answers 503.
func New(answerer Answerer, drugEvents DrugEventSource, logger *zap.Logger, cfg Config) (*Server, error) {
	if answerer == nil {
		return nil, fmt.Errorf("answerer is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if cfg.Port == 0 {
		cfg.Port = 8086
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
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
		echo:       e,
		answerer:   answerer,
		drugEvents: drugEvents,
		logger:     logger,
		config:     cfg,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/v1")
	v1.POST("/answer", s.handleAnswer)
	v1.GET("/drug-events/:drug", s.handleDrugEvents)
}

// AnswerRequest is the body for POST /v1/answer.
type AnswerRequest struct {
	SessionID string `json:"session_id"`
	Question  string `json:"question"`
}

// HealthResponse is the body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleAnswer(c echo.Context) error {
	var req AnswerRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid answer request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Question == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "question field is required")
	}
	if req.SessionID == "" {
		req.SessionID = "default"
	}

	answer, err := s.answerer.Answer(c.Request().Context(), req.SessionID, req.Question)
	if err != nil {
		if errors.Is(err, expand.ErrEmptyQuestion) || errors.Is(err, expand.ErrQuestionTooLong) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		s.logger.Error("answer pipeline failed",
			zap.String("session_id", req.SessionID),
			zap.Error(err),
		)
		return echo.NewHTTPError(http.StatusInternalServerError, "answer pipeline failed")
	}

	return c.JSON(http.StatusOK, answer)
}

func (s *Server) handleDrugEvents(c echo.Context) error {
	if s.drugEvents == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "drug events are not configured")
	}

	drug := c.Param("drug")
	start := c.QueryParam("start")
	end := c.QueryParam("end")

	report, err := s.drugEvents.Summarize(c.Request().Context(), drug, start, end)
	if err != nil {
		s.logger.Error("drug event query failed",
			zap.String("drug", drug),
			zap.Error(err),
		)
		return echo.NewHTTPError(http.StatusBadGateway, "drug event query failed")
	}

	return c.JSON(http.StatusOK, report)
}

// Start runs the server and blocks until ctx is cancelled, then shuts
// down gracefully within the configured timeout. Returns
// http.ErrServerClosed on graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))

	errCh := make(chan error, 1)
	go func() {
		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server start: %w", err)
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()

		s.logger.Info("shutting down http server")
		if err := s.echo.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return http.ErrServerClosed
	}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}
