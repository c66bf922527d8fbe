package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/contextsync/internal/autosync"
	"github.com/fyrsmithlabs/contextsync/internal/config"
	"github.com/fyrsmithlabs/contextsync/internal/gitops/gitopstest"
)

// writeConfig writes a config using the go-git backend, so tests do not
// need a git binary.
func writeConfig(t *testing.T, serverEnabled bool) string {
	t.Helper()
	dir := t.TempDir()
	body := "workspace:\n  root: " + dir + "\n" +
		"sync:\n  backend: gogit\n  run_on_startup: false\n" +
		"server:\n  enabled: " + map[bool]string{true: "true", false: "false"}[serverEnabled] + "\n" +
		"log:\n  level: warn\n"
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	root := newRootCmd()
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return buf.String(), err
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "Version:    dev")
}

func TestProjectCommands(t *testing.T) {
	cfgPath := writeConfig(t, false)
	pair := gitopstest.NewPair(t)

	out, err := execute(t, "--config", cfgPath, "project", "add", "handbook", pair.Local)
	require.NoError(t, err)
	assert.Contains(t, out, "Added handbook")
	assert.NotContains(t, out, "Warning")

	out, err = execute(t, "--config", cfgPath, "project", "add", "scratch", gitopstest.PlainDir(t), "--disabled")
	require.NoError(t, err)
	assert.Contains(t, out, "Warning")

	out, err = execute(t, "--config", cfgPath, "project", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "handbook")
	assert.Contains(t, out, "scratch")
	assert.Contains(t, out, "disabled")

	out, err = execute(t, "--config", cfgPath, "project", "enable", "scratch")
	require.NoError(t, err)
	assert.Contains(t, out, "Enabled auto-sync for scratch")

	out, err = execute(t, "--config", cfgPath, "project", "remove", "scratch")
	require.NoError(t, err)
	assert.Contains(t, out, "Removed scratch")

	_, err = execute(t, "--config", cfgPath, "project", "remove", "scratch")
	assert.Error(t, err)
}

func TestProjectList_Empty(t *testing.T) {
	out, err := execute(t, "--config", writeConfig(t, false), "project", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No projects registered")
}

func TestCheckCmd(t *testing.T) {
	cfgPath := writeConfig(t, false)
	pair := gitopstest.NewPair(t)
	pair.AdvanceUpstream(t, 2)

	_, err := execute(t, "--config", cfgPath, "project", "add", "handbook", pair.Local)
	require.NoError(t, err)

	out, err := execute(t, "--config", cfgPath, "check")
	require.NoError(t, err)
	assert.Contains(t, out, "Updates available for 1 project: handbook")
	assert.Contains(t, out, "1 project(s) with updates:")
}

func TestCheckCmd_UpToDate(t *testing.T) {
	cfgPath := writeConfig(t, false)
	pair := gitopstest.NewPair(t)

	_, err := execute(t, "--config", cfgPath, "project", "add", "handbook", pair.Local)
	require.NoError(t, err)

	out, err := execute(t, "--config", cfgPath, "check")
	require.NoError(t, err)
	assert.Contains(t, out, "All projects are up to date.")
}

func TestPullCmd_FallsBackWithoutDaemon(t *testing.T) {
	cfgPath := writeConfig(t, false)
	pair := gitopstest.NewPair(t)
	pair.AdvanceUpstream(t, 2)

	_, err := execute(t, "--config", cfgPath, "project", "add", "handbook", pair.Local)
	require.NoError(t, err)

	out, err := execute(t, "--config", cfgPath, "--server", "http://127.0.0.1:1", "pull", "handbook")
	require.NoError(t, err)
	assert.Contains(t, out, "Pulled handbook: 2 file(s) changed")

	out, err = execute(t, "--config", cfgPath, "--server", "http://127.0.0.1:1", "pull", "handbook")
	require.NoError(t, err)
	assert.Contains(t, out, "handbook is already up to date.")
}

func TestPullCmd_UnknownProject(t *testing.T) {
	_, err := execute(t, "--config", writeConfig(t, false), "--server", "http://127.0.0.1:1", "pull", "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `no project named "missing"`)
}

func TestStatusCmd_DaemonUnavailable(t *testing.T) {
	_, err := execute(t, "--config", writeConfig(t, false), "--server", "http://127.0.0.1:1", "status")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "contextsync serve")
}

func TestStatusCmd_AgainstDaemon(t *testing.T) {
	configPath = writeConfig(t, true)
	cfg, err := config.Load(configPath)
	require.NoError(t, err)

	d, err := newDaemon(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		if d.watcher != nil {
			d.watcher.Stop()
		}
	})

	ts := httptest.NewServer(d.server.Echo())
	defer ts.Close()

	out, err := execute(t, "--config", configPath, "--server", ts.URL, "status", "--json")
	require.NoError(t, err)

	var st autosync.Status
	require.NoError(t, json.Unmarshal([]byte(out), &st))
	assert.True(t, st.Enabled)
	assert.Equal(t, autosync.StateStopped, st.State)
	assert.Empty(t, st.PendingProjectNames)
}

func TestDaemon_RunStopsOnCancel(t *testing.T) {
	configPath = writeConfig(t, false)
	cfg, err := config.Load(configPath)
	require.NoError(t, err)

	d, err := newDaemon(context.Background(), cfg)
	require.NoError(t, err)
	assert.Nil(t, d.server)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- d.run(ctx)
	}()

	require.Eventually(t, d.coord.Running, 2*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not shut down in time")
	}
	assert.False(t, d.coord.Running())
}

func TestNewAdapter(t *testing.T) {
	for _, backend := range []string{config.BackendCLI, config.BackendGoGit} {
		assert.NotNil(t, newAdapter(backend))
	}
}

func TestMonitorCmd_RejectsShortInterval(t *testing.T) {
	_, err := execute(t, "--config", writeConfig(t, false), "monitor", "--interval", "10ms")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least 1s")
}
