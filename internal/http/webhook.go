package http

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/go-github/v57/github"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/contextsync/internal/autosync"
	"github.com/fyrsmithlabs/contextsync/internal/logging"
	"github.com/fyrsmithlabs/contextsync/internal/project"
)

const maxWebhookBody = 1 << 20

// webhookLimiter hands out one token bucket per client address.
// 60 requests per minute per address, with a burst of 10.
type webhookLimiter struct {
	mu          sync.Mutex
	limiters    map[string]*rate.Limiter
	lastCleanup time.Time
	now         func() time.Time
}

func newWebhookLimiter() *webhookLimiter {
	return &webhookLimiter{
		limiters:    make(map[string]*rate.Limiter),
		lastCleanup: time.Now(),
		now:         time.Now,
	}
}

func (l *webhookLimiter) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	// Forget idle addresses every hour.
	if l.now().Sub(l.lastCleanup) > time.Hour {
		l.limiters = make(map[string]*rate.Limiter)
		l.lastCleanup = l.now()
	}

	limiter, ok := l.limiters[ip]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(1), 10)
		l.limiters[ip] = limiter
	}
	return limiter.Allow()
}

// handleGitHubWebhook starts a cycle when GitHub reports a push to a
// repository that a registered, enabled project tracks. The payload must be
// signed with the configured secret. Pushes to other repositories, branch
// deletions and other event types are acknowledged and ignored.
func (s *Server) handleGitHubWebhook(c echo.Context) error {
	ctx := c.Request().Context()

	ip := c.RealIP()
	if !s.webhookLimiter.allow(ip) {
		s.logger.Warn(ctx, "webhook rate limit exceeded", zap.String("ip", ip))
		return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
	}

	r := c.Request()
	r.Body = http.MaxBytesReader(c.Response(), r.Body, maxWebhookBody)

	payload, err := github.ValidatePayload(r, []byte(s.config.WebhookSecret.Value()))
	if err != nil {
		s.logger.Warn(ctx, "invalid webhook signature", zap.Error(err))
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid signature")
	}

	event, err := github.ParseWebHook(github.WebHookType(r), payload)
	if err != nil {
		s.logger.Warn(ctx, "failed to parse webhook", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}

	switch e := event.(type) {
	case *github.PingEvent:
		return c.JSON(http.StatusOK, WebhookResponse{Message: "pong"})
	case *github.PushEvent:
		return s.handlePush(c, e)
	default:
		s.logger.Debug(ctx, "ignoring webhook event", zap.String("type", fmt.Sprintf("%T", event)))
		return c.JSON(http.StatusOK, WebhookResponse{Message: "event ignored"})
	}
}

func (s *Server) handlePush(c echo.Context, e *github.PushEvent) error {
	ctx := c.Request().Context()

	if e.GetDeleted() {
		return c.JSON(http.StatusOK, WebhookResponse{Message: "branch deletion ignored"})
	}

	matched, err := s.projectsTracking(c, e.GetRepo())
	if err != nil {
		return err
	}
	if len(matched) == 0 {
		s.logger.Debug(ctx, "push for untracked repository",
			zap.String("repo", e.GetRepo().GetFullName()))
		return c.JSON(http.StatusOK, WebhookResponse{Message: "no enabled project tracks this repository"})
	}

	s.logger.Info(ctx, "push webhook received",
		zap.String("repo", e.GetRepo().GetFullName()),
		zap.String("ref", e.GetRef()),
		zap.Strings("projects", matched))

	cycleCtx := logging.WithRequestID(s.baseCtx, c.Response().Header().Get(echo.HeaderXRequestID))
	if s.sync.RunCycleAsync(cycleCtx, autosync.TriggerWebhook) {
		return c.JSON(http.StatusAccepted, WebhookResponse{Triggered: true, Projects: matched})
	}
	return c.JSON(http.StatusOK, WebhookResponse{
		Projects: matched,
		Message:  "an update check is already in progress",
	})
}

// projectsTracking returns the names of enabled projects whose origin is
// one of repo's URLs.
func (s *Server) projectsTracking(c echo.Context, repo *github.PushEventRepository) ([]string, error) {
	if repo == nil {
		return nil, nil
	}
	urls := []string{repo.GetCloneURL(), repo.GetSSHURL(), repo.GetGitURL(), repo.GetHTMLURL()}

	projects, err := s.projects.List(c.Request().Context())
	if err != nil {
		return nil, err
	}

	var names []string
	for _, p := range projects {
		if !p.Enabled || p.RemoteURL == "" {
			continue
		}
		for _, u := range urls {
			if project.SameRemote(p.RemoteURL, u) {
				names = append(names, p.Name)
				break
			}
		}
	}
	return names, nil
}

// webhookEnabled reports whether the webhook route should be registered.
func webhookEnabled(cfg *Config) bool {
	return cfg != nil && cfg.WebhookSecret.IsSet()
}

