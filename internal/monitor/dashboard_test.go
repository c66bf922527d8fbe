package monitor

import (
	"context"
	"fmt"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/contextsync/internal/autosync"
	api "github.com/fyrsmithlabs/contextsync/internal/http"
)

type fakeSource struct {
	status   autosync.Status
	projects []api.ProjectResponse
	notices  []autosync.Notice
	busy     bool
	err      error

	since   uint64
	trigger autosync.Trigger
}

func (f *fakeSource) Status(context.Context) (autosync.Status, error) { return f.status, f.err }

func (f *fakeSource) Projects(context.Context) ([]api.ProjectResponse, error) {
	return f.projects, f.err
}

func (f *fakeSource) Notices(_ context.Context, since uint64) (*api.NoticesResponse, error) {
	f.since = since
	if f.err != nil {
		return nil, f.err
	}
	resp := &api.NoticesResponse{Latest: since}
	for _, n := range f.notices {
		if n.Seq > since {
			resp.Notices = append(resp.Notices, n)
			resp.Latest = n.Seq
		}
	}
	return resp, nil
}

func (f *fakeSource) Trigger(_ context.Context, trigger autosync.Trigger) (bool, error) {
	f.trigger = trigger
	return !f.busy, f.err
}

func newTestModel(src *fakeSource) Model {
	m := NewModel(src, 5*time.Second)
	m.now = func() time.Time { return time.Date(2026, 3, 1, 12, 34, 56, 0, time.UTC) }
	return m
}

func TestNewModel(t *testing.T) {
	model := newTestModel(&fakeSource{})
	assert.Equal(t, 5*time.Second, model.interval)
	assert.False(t, model.quitting)
	assert.NotNil(t, model.Init())
}

func TestModel_Update_QuitKey(t *testing.T) {
	updated, cmd := newTestModel(&fakeSource{}).Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})

	assert.True(t, updated.(Model).quitting)
	assert.NotNil(t, cmd)
	assert.Empty(t, updated.View())
}

func TestModel_Update_RefreshKeyFetches(t *testing.T) {
	src := &fakeSource{status: autosync.Status{State: autosync.StateIdle}}
	_, cmd := newTestModel(src).Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'r'}})
	require.NotNil(t, cmd)

	msg := cmd()
	snap, ok := msg.(snapshotMsg)
	require.True(t, ok)
	assert.Equal(t, autosync.StateIdle, snap.Status.State)
}

func TestModel_Update_CheckKeyTriggersManualCheck(t *testing.T) {
	src := &fakeSource{}
	model := newTestModel(src)

	_, cmd := model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'c'}})
	require.NotNil(t, cmd)
	assert.Equal(t, checkMsg(true), cmd())
	assert.Equal(t, autosync.TriggerManual, src.trigger)

	updated, cmd := model.Update(checkMsg(true))
	assert.Equal(t, "Update check started", updated.(Model).flash)
	assert.NotNil(t, cmd)

	updated, _ = model.Update(checkMsg(false))
	assert.Contains(t, updated.(Model).flash, "already in progress")
}

func TestModel_Update_TickMsg(t *testing.T) {
	updated, cmd := newTestModel(&fakeSource{}).Update(tickMsg(time.Now()))
	assert.False(t, updated.(Model).quitting)
	assert.NotNil(t, cmd)
}

func TestModel_Update_SnapshotMsg(t *testing.T) {
	model := newTestModel(&fakeSource{})

	updated, cmd := model.Update(snapshotMsg(Snapshot{
		Status:  autosync.Status{State: autosync.StateIdle, PendingProjectNames: []string{"a", "b"}},
		Notices: []autosync.Notice{{Seq: 1, Message: "first"}, {Seq: 2, Message: "second"}},
		Latest:  2,
	}))
	assert.Nil(t, cmd)

	m := updated.(Model)
	assert.Equal(t, uint64(2), m.since)
	assert.Equal(t, []float64{2}, m.history)
	assert.Len(t, m.notices, 2)
	assert.False(t, m.lastUpdate.IsZero())
	assert.Nil(t, m.err)
}

func TestModel_NoticesBounded(t *testing.T) {
	var m tea.Model = newTestModel(&fakeSource{})
	for i := 1; i <= noticeLimit+3; i++ {
		m, _ = m.Update(snapshotMsg(Snapshot{
			Notices: []autosync.Notice{{Seq: uint64(i), Message: fmt.Sprintf("n%d", i)}},
			Latest:  uint64(i),
		}))
	}

	notices := m.(Model).notices
	require.Len(t, notices, noticeLimit)
	assert.Equal(t, uint64(noticeLimit+3), notices[len(notices)-1].Seq)
}

func TestModel_Update_ErrMsg(t *testing.T) {
	updated, cmd := newTestModel(&fakeSource{}).Update(errMsg(fmt.Errorf("connection refused")))

	m := updated.(Model)
	require.Error(t, m.err)
	assert.Contains(t, m.err.Error(), "connection refused")
	assert.Nil(t, cmd)
}

func TestModel_View_WithSnapshot(t *testing.T) {
	synced := time.Date(2026, 3, 1, 10, 4, 56, 0, time.UTC)
	model := newTestModel(&fakeSource{})
	model.snapshot = Snapshot{
		Status: autosync.Status{
			Enabled:             true,
			IntervalMinutes:     30,
			AutoMerge:           true,
			State:               autosync.StateIdle,
			LastCheckTime:       &synced,
			PendingProjectNames: []string{"handbook"},
		},
		Projects: []api.ProjectResponse{
			{Name: "handbook", Enabled: true, HasUpdates: true, LastSyncedAt: &synced},
			{Name: "drafts", Enabled: false},
		},
	}
	model.notices = []autosync.Notice{{
		Seq:     1,
		Time:    synced,
		Kind:    autosync.NoticeConflict,
		Message: "Could not merge upstream changes into handbook: resolve the conflict manually",
	}}
	model.lastUpdate = time.Date(2026, 3, 1, 12, 34, 56, 0, time.UTC)

	view := model.View()

	assert.Contains(t, view, "contextsync Monitor")
	assert.Contains(t, view, "IDLE")
	assert.Contains(t, view, "every 30m")
	assert.Contains(t, view, "12:34:56")
	assert.Contains(t, view, "2h 30m ago")
	assert.Contains(t, view, "1 of 1")
	assert.Contains(t, view, "handbook")
	assert.Contains(t, view, "drafts")
	assert.Contains(t, view, "synced never")
	assert.Contains(t, view, "Could not merge upstream changes into handbook")
	assert.Contains(t, view, "[c]")
	assert.Contains(t, view, "[q]")
}

func TestModel_View_WithError(t *testing.T) {
	model := newTestModel(&fakeSource{})
	model.err = fmt.Errorf("connection refused")

	view := model.View()

	assert.Contains(t, view, "Cannot reach the contextsync daemon")
	assert.Contains(t, view, "connection refused")
	assert.Contains(t, view, "contextsync serve")
	assert.Contains(t, view, "[r]")
}

func TestModel_View_NoData(t *testing.T) {
	view := newTestModel(&fakeSource{}).View()

	assert.Contains(t, view, "contextsync Monitor")
	assert.Contains(t, view, "No projects registered")
	assert.Contains(t, view, "no data")
}

func TestGetStateBadge(t *testing.T) {
	assert.Contains(t, getStateBadge(autosync.StateIdle), "IDLE")
	assert.Contains(t, getStateBadge(autosync.StateChecking), "CHECKING")
	assert.Contains(t, getStateBadge(autosync.StateStopped), "STOPPED")
}

func TestAppendToHistory(t *testing.T) {
	var h []float64
	for i := 0; i < historySize+5; i++ {
		h = appendToHistory(h, float64(i))
	}
	require.Len(t, h, historySize)
	assert.Equal(t, float64(5), h[0])
}
