// Package http provides the HTTP API for contextsync.
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

	"github.com/fyrsmithlabs/contextsync/internal/autosync"
	"github.com/fyrsmithlabs/contextsync/internal/config"
	"github.com/fyrsmithlabs/contextsync/internal/gitops"
	"github.com/fyrsmithlabs/contextsync/internal/logging"
	"github.com/fyrsmithlabs/contextsync/internal/project"
)

// SyncService is the part of the coordinator the API drives.
type SyncService interface {
	Status() autosync.Status
	ProjectsWithUpdates() []string
	RunCycleAsync(ctx context.Context, trigger autosync.Trigger) bool
	Start(ctx context.Context) error
	Stop() error
	Pull(ctx context.Context, name string) (*gitops.PullResult, error)
}

// ProjectLister lists registered projects.
type ProjectLister interface {
	List(ctx context.Context) ([]*project.Project, error)
}

// NoticeSource serves recorded notices to polling clients.
type NoticeSource interface {
	Since(seq uint64) []autosync.Notice
}

// Server provides HTTP endpoints for contextsync.
type Server struct {
	echo     *echo.Echo
	sync     SyncService
	projects ProjectLister
	notices  NoticeSource
	logger   *logging.Logger
	config   *Config

	webhookLimiter *webhookLimiter

	// baseCtx outlives requests. Timer loops and async cycles started
	// through the API run under it.
	baseCtx context.Context
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int

	// WebhookSecret signs GitHub push webhooks. The webhook route is only
	// registered when it is set.
	WebhookSecret config.Secret
}

// NewServer creates a new HTTP server.
func NewServer(svc SyncService, projects ProjectLister, notices NoticeSource, logger *logging.Logger, cfg *Config) (*Server, error) {
	if svc == nil {
		return nil, fmt.Errorf("sync service cannot be nil")
	}
	if projects == nil {
		return nil, fmt.Errorf("project lister cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "127.0.0.1",
			Port: 9191,
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler(e, logger)

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(NewHTTPMetrics(logger).MetricsMiddleware())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			reqID := c.Response().Header().Get(echo.HeaderXRequestID)
			ctx := logging.WithRequestID(c.Request().Context(), reqID)
			c.SetRequest(c.Request().WithContext(ctx))

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			logger.Debug(ctx, "http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
			)
			return nil
		}
	})

	s := &Server{
		echo:     e,
		sync:     svc,
		projects: projects,
		notices:  notices,
		logger:   logger,
		config:   cfg,
		baseCtx:  context.Background(),

		webhookLimiter: newWebhookLimiter(),
	}

	s.registerRoutes()

	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")

	sync := v1.Group("/sync")
	sync.GET("/status", s.handleStatus)
	sync.GET("/pending", s.handlePending)
	sync.POST("/check", s.handleCheck)
	sync.POST("/start", s.handleStart)
	sync.POST("/stop", s.handleStop)
	sync.GET("/notices", s.handleNotices)

	v1.GET("/projects", s.handleListProjects)
	v1.POST("/projects/:name/pull", s.handlePull)

	if webhookEnabled(s.config) {
		v1.POST("/webhooks/github", s.handleGitHubWebhook)
	}
}

// Echo returns the underlying echo instance.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// Start starts the HTTP server and blocks until ctx is cancelled or the
// listener fails.
func (s *Server) Start(ctx context.Context) error {
	s.baseCtx = ctx
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info(ctx, "starting http server", zap.String("addr", addr))

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.echo.Start(addr)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		return nil
	}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	return s.echo.Shutdown(ctx)
}

// errorHandler renders errors as ErrorResponse and maps domain sentinels to
// status codes.
func errorHandler(e *echo.Echo, logger *logging.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code := http.StatusInternalServerError
		msg := "internal server error"

		var he *echo.HTTPError
		switch {
		case errors.As(err, &he):
			code = he.Code
			msg = fmt.Sprint(he.Message)
		case errors.Is(err, project.ErrProjectNotFound):
			code, msg = http.StatusNotFound, err.Error()
		case errors.Is(err, gitops.ErrNotARepository),
			errors.Is(err, gitops.ErrNoUpstream):
			code, msg = http.StatusUnprocessableEntity, err.Error()
		case errors.Is(err, gitops.ErrMergeConflict),
			errors.Is(err, autosync.ErrAlreadyRunning),
			errors.Is(err, autosync.ErrNotRunning),
			errors.Is(err, autosync.ErrDisabled):
			code, msg = http.StatusConflict, err.Error()
		case errors.Is(err, gitops.ErrNetwork),
			errors.Is(err, gitops.ErrGitUnavailable):
			code, msg = http.StatusBadGateway, err.Error()
		default:
			logger.Error(c.Request().Context(), "unhandled api error", zap.Error(err))
		}

		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(code)
			return
		}
		_ = c.JSON(code, ErrorResponse{Error: msg})
	}
}
