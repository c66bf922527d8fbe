package autosync

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/contextsync/internal/gitops"
	"github.com/fyrsmithlabs/contextsync/internal/logging"
	"github.com/fyrsmithlabs/contextsync/internal/project"
)

// Checker probes one project for upstream commits without touching its
// working tree.
type Checker struct {
	adapter gitops.Adapter
	logger  *logging.Logger
	metrics *Metrics
	limiter *rate.Limiter

	gitMissing sync.Once
}

// NewChecker creates a checker with unlimited fetch rate.
func NewChecker(adapter gitops.Adapter, logger *logging.Logger, metrics *Metrics) *Checker {
	return &Checker{
		adapter: adapter,
		logger:  logger,
		metrics: metrics,
		limiter: rate.NewLimiter(rate.Inf, 1),
	}
}

// SetRate paces fetches to perSecond across all projects. Zero or less
// removes the limit.
func (c *Checker) SetRate(perSecond float64) {
	if perSecond <= 0 {
		c.limiter.SetLimit(rate.Inf)
		return
	}
	c.limiter.SetLimit(rate.Limit(perSecond))
}

// Check fetches and counts commits behind. Failures are logged and yield a
// result with HasUpdate false; they never propagate.
func (c *Checker) Check(ctx context.Context, p project.Ref) CheckResult {
	res := CheckResult{Project: p.Name}

	if err := c.limiter.Wait(ctx); err != nil {
		c.logger.Warn(ctx, "update check cancelled", zap.Error(err))
		return res
	}

	err := c.adapter.Fetch(ctx, p.Path)
	c.metrics.gitOp("fetch", err)
	if err != nil {
		c.report(ctx, "fetch", err)
		return res
	}

	behind, err := c.adapter.CommitsBehind(ctx, p.Path)
	c.metrics.gitOp("rev_list", err)
	if err != nil {
		c.report(ctx, "count commits behind", err)
		return res
	}

	res.CommitsBehind = behind
	res.HasUpdate = behind > 0
	c.logger.Debug(ctx, "checked project", zap.Int("commits_behind", behind))
	return res
}

func (c *Checker) report(ctx context.Context, op string, err error) {
	switch {
	case errors.Is(err, gitops.ErrNotARepository):
		c.logger.Debug(ctx, "skipping folder that is no longer a repository")
	case errors.Is(err, gitops.ErrGitUnavailable):
		c.gitMissing.Do(func() {
			c.logger.Warn(ctx, "git is not available; update checks will fail until it is installed", zap.Error(err))
		})
	default:
		c.logger.Warn(ctx, op+" failed", zap.Error(err))
	}
}
