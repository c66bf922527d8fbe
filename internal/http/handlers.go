package http

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/contextsync/internal/autosync"
	"github.com/fyrsmithlabs/contextsync/internal/logging"
)

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, s.sync.Status())
}

func (s *Server) handlePending(c echo.Context) error {
	names := s.sync.ProjectsWithUpdates()
	return c.JSON(http.StatusOK, PendingResponse{Count: len(names), Projects: names})
}

// handleCheck triggers a cycle without waiting for it. A trigger that
// arrives while a cycle is running is coalesced into it. Callers relaying a
// chat or command request identify themselves with ?trigger=.
func (s *Server) handleCheck(c echo.Context) error {
	trigger := autosync.TriggerAPI
	switch t := autosync.Trigger(c.QueryParam("trigger")); t {
	case "", autosync.TriggerAPI:
	case autosync.TriggerChat, autosync.TriggerManual:
		trigger = t
	default:
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("unknown trigger %q", t))
	}

	ctx := logging.WithRequestID(s.baseCtx, c.Response().Header().Get(echo.HeaderXRequestID))
	if s.sync.RunCycleAsync(ctx, trigger) {
		return c.JSON(http.StatusAccepted, CheckResponse{Triggered: true})
	}
	return c.JSON(http.StatusOK, CheckResponse{Triggered: false, Message: "an update check is already in progress"})
}

func (s *Server) handleStart(c echo.Context) error {
	if err := s.sync.Start(s.baseCtx); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, s.sync.Status())
}

func (s *Server) handleStop(c echo.Context) error {
	if err := s.sync.Stop(); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, s.sync.Status())
}

func (s *Server) handleNotices(c echo.Context) error {
	if s.notices == nil {
		return c.JSON(http.StatusOK, NoticesResponse{Notices: []autosync.Notice{}})
	}

	var since uint64
	if raw := c.QueryParam("since"); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "since must be a non-negative integer")
		}
		since = v
	}

	notices := s.notices.Since(since)
	latest := since
	if n := len(notices); n > 0 {
		latest = notices[n-1].Seq
	}
	return c.JSON(http.StatusOK, NoticesResponse{Notices: notices, Latest: latest})
}

func (s *Server) handleListProjects(c echo.Context) error {
	ctx := c.Request().Context()
	projects, err := s.projects.List(ctx)
	if err != nil {
		return err
	}

	pending := make(map[string]bool)
	for _, name := range s.sync.ProjectsWithUpdates() {
		pending[name] = true
	}

	out := make([]ProjectResponse, 0, len(projects))
	for _, p := range projects {
		out = append(out, ProjectResponse{
			Name:         p.Name,
			Path:         p.Path,
			Enabled:      p.Enabled,
			RemoteURL:    logging.SanitizeURL(p.RemoteURL),
			LastSyncedAt: p.LastSyncedAt,
			HasUpdates:   pending[p.Name],
		})
	}
	return c.JSON(http.StatusOK, ProjectsResponse{Projects: out})
}

func (s *Server) handlePull(c echo.Context) error {
	name := c.Param("name")
	// A pull interrupted midway can leave the folder mid-merge, so it
	// finishes even if the client goes away.
	ctx := context.WithoutCancel(c.Request().Context())

	res, err := s.sync.Pull(ctx, name)
	if err != nil {
		s.logger.Warn(ctx, "pull request failed", zap.String("project", name), zap.Error(err))
		return err
	}
	return c.JSON(http.StatusOK, PullResponse{
		Project:          name,
		ChangedFileCount: res.ChangedFileCount,
		ChangedFiles:     res.ChangedFiles,
	})
}
