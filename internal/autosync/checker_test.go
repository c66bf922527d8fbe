package autosync

import (
	"context"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap/zapcore"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/contextsync/internal/gitops"
	"github.com/fyrsmithlabs/contextsync/internal/gitops/mocks"
	"github.com/fyrsmithlabs/contextsync/internal/logging"
	"github.com/fyrsmithlabs/contextsync/internal/project"
)

func newTestChecker(t *testing.T) (*Checker, *mocks.MockAdapter, *logging.TestLogger, *Metrics) {
	t.Helper()
	ctrl := gomock.NewController(t)
	adapter := mocks.NewMockAdapter(ctrl)
	logger := logging.NewTestLogger()
	metrics := newMetrics(prometheus.NewRegistry())
	return NewChecker(adapter, logger.Logger, metrics), adapter, logger, metrics
}

func TestChecker_Check(t *testing.T) {
	ref := project.Ref{Name: "notes", Path: "/work/notes", Enabled: true}

	tests := []struct {
		name     string
		setup    func(m *mocks.MockAdapter)
		want     CheckResult
		warnMsg  string
		debugMsg string
	}{
		{
			name: "behind",
			setup: func(m *mocks.MockAdapter) {
				m.EXPECT().Fetch(gomock.Any(), ref.Path).Return(nil)
				m.EXPECT().CommitsBehind(gomock.Any(), ref.Path).Return(3, nil)
			},
			want: CheckResult{Project: "notes", CommitsBehind: 3, HasUpdate: true},
		},
		{
			name: "up to date",
			setup: func(m *mocks.MockAdapter) {
				m.EXPECT().Fetch(gomock.Any(), ref.Path).Return(nil)
				m.EXPECT().CommitsBehind(gomock.Any(), ref.Path).Return(0, nil)
			},
			want: CheckResult{Project: "notes"},
		},
		{
			name: "fetch network failure",
			setup: func(m *mocks.MockAdapter) {
				m.EXPECT().Fetch(gomock.Any(), ref.Path).Return(fmt.Errorf("%w: timeout", gitops.ErrNetwork))
			},
			want:    CheckResult{Project: "notes"},
			warnMsg: "fetch failed",
		},
		{
			name: "no upstream",
			setup: func(m *mocks.MockAdapter) {
				m.EXPECT().Fetch(gomock.Any(), ref.Path).Return(nil)
				m.EXPECT().CommitsBehind(gomock.Any(), ref.Path).Return(0, gitops.ErrNoUpstream)
			},
			want:    CheckResult{Project: "notes"},
			warnMsg: "count commits behind failed",
		},
		{
			name: "no longer a repository",
			setup: func(m *mocks.MockAdapter) {
				m.EXPECT().Fetch(gomock.Any(), ref.Path).Return(gitops.ErrNotARepository)
			},
			want:     CheckResult{Project: "notes"},
			debugMsg: "no longer a repository",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker, adapter, logger, _ := newTestChecker(t)
			tt.setup(adapter)

			got := checker.Check(context.Background(), ref)
			assert.Equal(t, tt.want, got)
			if tt.warnMsg != "" {
				logger.AssertLogged(t, zapcore.WarnLevel, tt.warnMsg)
			}
			if tt.debugMsg != "" {
				logger.AssertLogged(t, zapcore.DebugLevel, tt.debugMsg)
				assert.Zero(t, logger.Count(zapcore.WarnLevel, "fetch failed"))
			}
		})
	}
}

func TestChecker_GitUnavailableWarnsOnce(t *testing.T) {
	checker, adapter, logger, metrics := newTestChecker(t)
	adapter.EXPECT().Fetch(gomock.Any(), gomock.Any()).Return(gitops.ErrGitUnavailable).Times(3)

	for _, name := range []string{"a", "b", "c"} {
		res := checker.Check(context.Background(), project.Ref{Name: name, Path: "/work/" + name})
		assert.False(t, res.HasUpdate)
	}

	assert.Equal(t, 1, logger.Count(zapcore.WarnLevel, "git is not available; update checks will fail until it is installed"))
	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.GitOperationsTotal.WithLabelValues("fetch", "error")))
}

func TestChecker_CancelledContext(t *testing.T) {
	checker, _, logger, _ := newTestChecker(t)
	checker.SetRate(0.001)
	// Drain the single burst token so the next Wait must block.
	checker.limiter.Allow()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := checker.Check(ctx, project.Ref{Name: "a", Path: "/work/a"})
	assert.False(t, res.HasUpdate)
	logger.AssertLogged(t, zapcore.WarnLevel, "update check cancelled")
}

func TestChecker_SetRate(t *testing.T) {
	checker, _, _, _ := newTestChecker(t)

	checker.SetRate(2)
	assert.InDelta(t, 2.0, float64(checker.limiter.Limit()), 0.0001)

	checker.SetRate(0)
	assert.Equal(t, rate.Inf, checker.limiter.Limit())
}
