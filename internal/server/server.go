// Package server exposes the orchestrator's control surface over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/forgeworks/squadron/internal/registry"
	"github.com/forgeworks/squadron/pkg/models"
)

// Core is the orchestrator surface the server needs. Satisfied by
// *orchestrator.Orchestrator.
type Core interface {
	Submit(req models.SubmitRequest) (string, error)
	GetStatus(id string) (*models.Task, error)
	ListTasks(limit int) ([]*models.Task, error)
	Cancel(id string) error
	Subscribe(id string) (<-chan models.ProgressEvent, func(), error)
	RunGate(ctx context.Context, artifacts []models.Artifact, req models.GateRequirements) (models.GateResult, error)
}

// Server provides HTTP endpoints for squadron.
type Server struct {
	echo     *echo.Echo
	core     Core
	registry *registry.Registry
	logger   *zap.Logger
	config   *Config
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// NewServer creates a new HTTP server around the orchestrator core.
func NewServer(core Core, reg *registry.Registry, logger *zap.Logger, cfg *Config) (*Server, error) {
	if core == nil {
		return nil, fmt.Errorf("orchestrator core cannot be nil")
	}
	if reg == nil {
		return nil, fmt.Errorf("registry cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 8337,
		}
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
			duration := time.Since(start)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			return err
		}
	})

	s := &Server{
		echo:     e,
		core:     core,
		registry: reg,
		logger:   logger,
		config:   cfg,
	}
	s.registerRoutes()

	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)

	v1 := s.echo.Group("/api/v1")
	v1.POST("/tasks", s.handleSubmit)
	v1.GET("/tasks", s.handleListTasks)
	v1.GET("/tasks/:id", s.handleGetTask)
	v1.POST("/tasks/:id/cancel", s.handleCancel)
	v1.GET("/tasks/:id/events", s.handleEvents)
	v1.GET("/squads", s.handleListSquads)
	v1.GET("/agents", s.handleListAgents)
	v1.GET("/workflows", s.handleListWorkflows)
	v1.POST("/gate", s.handleGate)
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// SubmitResponse is the response body for POST /api/v1/tasks.
type SubmitResponse struct {
	TaskID string           `json:"task_id"`
	State  models.TaskState `json:"state"`
}

// CancelResponse acknowledges a cancellation request.
type CancelResponse struct {
	TaskID    string `json:"task_id"`
	Cancelled bool   `json:"cancelled"`
}

// GateRequest is the request body for POST /api/v1/gate.
type GateRequest struct {
	Artifacts    []models.Artifact       `json:"artifacts"`
	Requirements models.GateRequirements `json:"requirements"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleSubmit(c echo.Context) error {
	var req models.SubmitRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid submit request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	id, err := s.core.Submit(req)
	if err != nil {
		return httpError(err)
	}

	task, err := s.core.GetStatus(id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusAccepted, SubmitResponse{TaskID: id, State: task.State})
}

func (s *Server) handleListTasks(c echo.Context) error {
	limit := 50
	if raw := c.QueryParam("limit"); raw != "" {
		if _, err := fmt.Sscanf(raw, "%d", &limit); err != nil || limit <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
	}
	tasks, err := s.core.ListTasks(limit)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, tasks)
}

func (s *Server) handleGetTask(c echo.Context) error {
	task, err := s.core.GetStatus(c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, task)
}

func (s *Server) handleCancel(c echo.Context) error {
	id := c.Param("id")
	if err := s.core.Cancel(id); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, CancelResponse{TaskID: id, Cancelled: true})
}

// handleEvents streams a task's progress events as server-sent events
// until the task reaches a terminal state or the client disconnects.
func (s *Server) handleEvents(c echo.Context) error {
	events, unsubscribe, err := s.core.Subscribe(c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	defer unsubscribe()

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")
	res.WriteHeader(http.StatusOK)
	res.Flush()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			data, err := json.Marshal(ev)
			if err != nil {
				s.logger.Warn("failed to encode event", zap.Error(err))
				continue
			}
			fmt.Fprintf(res, "event: %s\ndata: %s\n\n", ev.Kind, data)
			res.Flush()
			switch ev.Kind {
			case models.EventTaskCompleted, models.EventTaskFailed, models.EventTaskCancelled:
				return nil
			}
		}
	}
}

func (s *Server) handleListSquads(c echo.Context) error {
	return c.JSON(http.StatusOK, s.registry.Squads())
}

func (s *Server) handleListAgents(c echo.Context) error {
	return c.JSON(http.StatusOK, s.registry.Agents())
}

func (s *Server) handleListWorkflows(c echo.Context) error {
	return c.JSON(http.StatusOK, s.registry.Workflows())
}

func (s *Server) handleGate(c echo.Context) error {
	var req GateRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid gate request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if len(req.Artifacts) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "artifacts field is required")
	}

	result, err := s.core.RunGate(c.Request().Context(), req.Artifacts, req.Requirements)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, result)
}

// httpError maps core sentinel errors onto HTTP status codes.
func httpError(err error) error {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, models.ErrInvalidState):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, models.ErrInvalidRequest), errors.Is(err, models.ErrInvalidWorkflow):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
