package mcp

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/contextsync/internal/autosync"
	"github.com/fyrsmithlabs/contextsync/internal/gitops"
	"github.com/fyrsmithlabs/contextsync/internal/logging"
	"github.com/fyrsmithlabs/contextsync/internal/project"
)

type fakeBackend struct {
	status    autosync.Status
	triggered bool
	pending   []string
	pull      *gitops.PullResult
	err       error
	pulled    string
}

func (f *fakeBackend) Status(context.Context) (autosync.Status, error) { return f.status, f.err }
func (f *fakeBackend) Check(context.Context) (bool, error)             { return f.triggered, f.err }
func (f *fakeBackend) Pending(context.Context) ([]string, error)       { return f.pending, f.err }

func (f *fakeBackend) Pull(_ context.Context, name string) (*gitops.PullResult, error) {
	f.pulled = name
	return f.pull, f.err
}

func newTestServer(t *testing.T, backend Backend) (*Server, *logging.TestLogger) {
	t.Helper()
	logger := logging.NewTestLogger()
	cfg := DefaultConfig()
	cfg.Logger = logger.Logger
	s, err := NewServer(cfg, backend)
	require.NoError(t, err)
	return s, logger
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	require.Len(t, res.Content, 1)
	tc, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	return tc.Text
}

func TestNewServer(t *testing.T) {
	_, err := NewServer(nil, nil)
	assert.Error(t, err)

	s, err := NewServer(nil, &fakeBackend{})
	require.NoError(t, err)
	assert.NotNil(t, s.mcp)
}

func TestHandleStatus(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	last := now.Add(-5 * time.Minute)
	s, _ := newTestServer(t, &fakeBackend{status: autosync.Status{
		Enabled:             true,
		IntervalMinutes:     30,
		State:               autosync.StateIdle,
		LastCheckTime:       &last,
		PendingProjectNames: []string{"a", "b"},
	}})
	s.now = func() time.Time { return now }

	res, out, err := s.handleStatus(context.Background(), nil, syncStatusInput{})
	require.NoError(t, err)
	assert.IsType(t, autosync.Status{}, out)
	assert.Equal(t,
		"Auto-sync is enabled (notify only, every 30 min), state: idle\nLast check: 5m0s ago\nPending updates: a, b",
		resultText(t, res))
}

func TestHandleCheck(t *testing.T) {
	s, _ := newTestServer(t, &fakeBackend{triggered: true})
	res, _, err := s.handleCheck(context.Background(), nil, syncCheckInput{})
	require.NoError(t, err)
	assert.Contains(t, resultText(t, res), "Update check started")

	s, _ = newTestServer(t, &fakeBackend{triggered: false})
	res, _, err = s.handleCheck(context.Background(), nil, syncCheckInput{})
	require.NoError(t, err)
	assert.Contains(t, resultText(t, res), "already running")
}

func TestHandlePending(t *testing.T) {
	s, _ := newTestServer(t, &fakeBackend{})
	res, _, err := s.handlePending(context.Background(), nil, syncPendingInput{})
	require.NoError(t, err)
	assert.Equal(t, "All context projects are up to date.", resultText(t, res))

	s, _ = newTestServer(t, &fakeBackend{pending: []string{"a"}})
	res, _, err = s.handlePending(context.Background(), nil, syncPendingInput{})
	require.NoError(t, err)
	assert.Contains(t, resultText(t, res), "1 project: a")
}

func TestHandlePull(t *testing.T) {
	backend := &fakeBackend{pull: &gitops.PullResult{ChangedFileCount: 2, ChangedFiles: []string{"a.md", "b.md"}}}
	s, _ := newTestServer(t, backend)

	res, _, err := s.handlePull(context.Background(), nil, projectPullInput{Name: " notes "})
	require.NoError(t, err)
	assert.Equal(t, "notes", backend.pulled)
	assert.Equal(t, "Pulled notes: 2 file(s) changed\n  a.md\n  b.md", resultText(t, res))

	_, _, err = s.handlePull(context.Background(), nil, projectPullInput{})
	assert.Error(t, err)
}

func TestInstrument_LogsFailures(t *testing.T) {
	s, logger := newTestServer(t, &fakeBackend{err: project.ErrProjectNotFound})
	h := instrument(s, "project_pull", s.handlePull)

	_, _, err := h(context.Background(), nil, projectPullInput{Name: "x"})
	assert.ErrorIs(t, err, project.ErrProjectNotFound)
	logger.AssertLogged(t, zapcore.WarnLevel, "tool call failed")
	logger.AssertField(t, "tool call failed", "tool", "project_pull")
}

func TestCategorizeError(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{ErrDaemonUnavailable, "daemon_unavailable"},
		{project.ErrProjectNotFound, "not_found"},
		{gitops.ErrMergeConflict, "merge_conflict"},
		{gitops.ErrNetwork, "network"},
		{gitops.ErrNoUpstream, "not_syncable"},
		{autosync.ErrDisabled, "disabled"},
		{context.DeadlineExceeded, "timeout"},
		{errors.New("other"), "internal_error"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, categorizeError(tt.err))
	}
}

func TestServer_ToolsOverTransport(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestServer(t, &fakeBackend{pending: []string{"a"}})

	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	serverSession, err := s.mcp.Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = serverSession.Close() })

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = session.Close() })

	tools, err := session.ListTools(ctx, nil)
	require.NoError(t, err)
	var names []string
	for _, tool := range tools.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{"sync_status", "sync_check", "sync_pending", "project_pull"}, names)

	res, err := session.CallTool(ctx, &mcp.CallToolParams{Name: "sync_pending", Arguments: map[string]any{}})
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Contains(t, resultText(t, res), "a")
}
