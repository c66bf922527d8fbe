// Package monitor implements a terminal dashboard for a running contextsync
// daemon.
package monitor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/NimbleMarkets/ntcharts/sparkline"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/fyrsmithlabs/contextsync/internal/autosync"
)

const (
	sparklineWidth  = 30
	sparklineHeight = 3
	historySize     = 30
	noticeLimit     = 6
)

// Model is the BubbleTea dashboard model.
type Model struct {
	source     Source
	interval   time.Duration
	now        func() time.Time
	lastUpdate time.Time
	snapshot   Snapshot
	notices    []autosync.Notice
	since      uint64
	history    []float64
	flash      string
	err        error
	quitting   bool

	pendingProgress progress.Model
}

// Palette shared by every panel.
const (
	accent  = lipgloss.Color("39")
	muted   = lipgloss.Color("244")
	bright  = lipgloss.Color("255")
	success = lipgloss.Color("42")
	caution = lipgloss.Color("214")
	failure = lipgloss.Color("160")
)

var (
	bold = lipgloss.NewStyle().Bold(true)

	headerStyle    = bold.Foreground(lipgloss.Color("16")).Background(accent).Padding(0, 1)
	sectionStyle   = bold.Foreground(accent).MarginTop(1)
	labelStyle     = lipgloss.NewStyle().Foreground(accent)
	valueStyle     = bold.Foreground(bright)
	dimStyle       = lipgloss.NewStyle().Foreground(muted)
	healthyStyle   = bold.Foreground(success)
	warningStyle   = bold.Foreground(caution)
	errorStyle     = bold.Foreground(failure)
	footerStyle    = dimStyle.MarginTop(1)
	footerKeyStyle = bold.Foreground(accent)
	sparklineStyle = lipgloss.NewStyle().Foreground(accent)
	containerStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("237")).
			Padding(1, 2)
)

// NewModel creates a dashboard polling src every interval.
func NewModel(src Source, interval time.Duration) Model {
	return Model{
		source:   src,
		interval: interval,
		now:      time.Now,
		history:  make([]float64, 0, historySize),
		pendingProgress: progress.New(
			progress.WithGradient("#00ff00", "#ff0000"),
			progress.WithWidth(40),
		),
	}
}

// getStateBadge returns a colored badge for the coordinator state.
func getStateBadge(state autosync.State) string {
	switch state {
	case autosync.StateIdle:
		return healthyStyle.Render("✓ IDLE")
	case autosync.StateChecking:
		return warningStyle.Render("⟳ CHECKING")
	default:
		return dimStyle.Render("■ STOPPED")
	}
}

// getProjectBadge returns the marker shown next to a project.
func getProjectBadge(enabled, hasUpdates bool) string {
	switch {
	case !enabled:
		return dimStyle.Render("[-]")
	case hasUpdates:
		return warningStyle.Render("[↓]")
	default:
		return healthyStyle.Render("[✓]")
	}
}

// appendToHistory appends a value to history, maintaining max size
func appendToHistory(history []float64, value float64) []float64 {
	history = append(history, value)
	if len(history) > historySize {
		history = history[1:]
	}
	return history
}

// createSparkline creates a sparkline chart from historical data
func createSparkline(data []float64) string {
	if len(data) == 0 {
		return dimStyle.Render(fmt.Sprintf("%*s", sparklineWidth, "no data"))
	}

	spark := sparkline.New(sparklineWidth, sparklineHeight)
	for _, v := range data {
		spark.Push(v)
	}
	spark.Draw()

	return sparklineStyle.Render(spark.View())
}

// Message types
type tickMsg time.Time
type snapshotMsg Snapshot
type checkMsg bool
type errMsg error

// Init starts auto-refresh and fetches the first snapshot.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		tick(m.interval),
		m.fetch(),
	)
}

// tick creates a tick command for auto-refresh
func tick(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) fetch() tea.Cmd {
	src, since := m.source, m.since
	return func() tea.Msg {
		snap, err := Fetch(context.Background(), src, since)
		if err != nil {
			return errMsg(err)
		}
		return snapshotMsg(snap)
	}
}

func (m Model) check() tea.Cmd {
	src := m.source
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
		defer cancel()
		triggered, err := src.Trigger(ctx, autosync.TriggerManual)
		if err != nil {
			return errMsg(err)
		}
		return checkMsg(triggered)
	}
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "r":
			return m, m.fetch()
		case "c":
			return m, m.check()
		}

	case tickMsg:
		return m, tea.Batch(
			tick(m.interval),
			m.fetch(),
		)

	case snapshotMsg:
		snap := Snapshot(msg)
		m.snapshot = snap
		m.since = snap.Latest
		m.history = appendToHistory(m.history, float64(len(snap.Status.PendingProjectNames)))

		m.notices = append(m.notices, snap.Notices...)
		if len(m.notices) > noticeLimit {
			m.notices = m.notices[len(m.notices)-noticeLimit:]
		}

		m.lastUpdate = m.now()
		m.err = nil
		return m, nil

	case checkMsg:
		if msg {
			m.flash = "Update check started"
		} else {
			m.flash = "An update check is already in progress"
		}
		return m, m.fetch()

	case errMsg:
		m.err = error(msg)
		return m, nil
	}

	return m, nil
}

// View renders the dashboard
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if m.err != nil {
		return m.renderError()
	}
	return m.renderDashboard()
}

func (m Model) renderError() string {
	header := headerStyle.Render("contextsync Monitor")

	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(errorStyle.Render("⚠ Cannot reach the contextsync daemon") + "\n\n")
	b.WriteString(dimStyle.Render("Error: ") + errorStyle.Render(m.err.Error()) + "\n\n")
	b.WriteString(dimStyle.Render("Start it with: contextsync serve") + "\n")
	b.WriteString(footerStyle.Render("[q] quit  [r] retry") + "\n")

	return containerStyle.Render(header + "\n" + b.String())
}

func (m Model) renderDashboard() string {
	st := m.snapshot.Status
	now := m.now()

	var b strings.Builder

	lastUpdate := "Never"
	if !m.lastUpdate.IsZero() {
		lastUpdate = m.lastUpdate.Format("3:04:05 PM")
	}
	b.WriteString(headerStyle.Render(" contextsync Monitor ") + "\n")
	b.WriteString(fmt.Sprintf("%s   %s %s   %s %s   %s\n",
		getStateBadge(st.State),
		dimStyle.Render("Interval:"), valueStyle.Render(FormatInterval(st.IntervalMinutes)),
		dimStyle.Render("Auto-merge:"), valueStyle.Render(onOff(st.AutoMerge)),
		dimStyle.Render(lastUpdate)))
	b.WriteString(labelStyle.Render("Last check: ") + valueStyle.Render(FormatAge(st.LastCheckTime, now)) + "\n")

	pending := len(st.PendingProjectNames)
	enabled := m.snapshot.EnabledCount()
	ratio := 0.0
	if enabled > 0 {
		ratio = float64(pending) / float64(enabled)
		if ratio > 1 {
			ratio = 1
		}
	}

	b.WriteString("\n" + sectionStyle.Render("┃ Pending Updates") + "\n")
	b.WriteString(labelStyle.Render("  Projects: ") +
		valueStyle.Render(FormatRatio(pending, enabled)) +
		"   " + createSparkline(m.history) + "\n")
	b.WriteString(labelStyle.Render("  Behind: ") + m.pendingProgress.ViewAs(ratio) + "\n")

	b.WriteString("\n" + sectionStyle.Render("┃ Projects") + "\n")
	if len(m.snapshot.Projects) == 0 {
		b.WriteString(dimStyle.Render("  No projects registered") + "\n")
	}
	for _, p := range m.snapshot.Projects {
		b.WriteString(fmt.Sprintf("  %s %s  %s\n",
			getProjectBadge(p.Enabled, p.HasUpdates),
			valueStyle.Render(p.Name),
			dimStyle.Render("synced "+FormatAge(p.LastSyncedAt, now))))
	}

	b.WriteString("\n" + sectionStyle.Render("┃ Recent Notices") + "\n")
	if len(m.notices) == 0 {
		b.WriteString(dimStyle.Render("  None") + "\n")
	}
	for i := len(m.notices) - 1; i >= 0; i-- {
		n := m.notices[i]
		style := valueStyle
		if n.Kind == autosync.NoticeConflict {
			style = errorStyle
		}
		b.WriteString("  " + dimStyle.Render(n.Time.Format("15:04")) + " " + style.Render(n.Message) + "\n")
	}

	if m.flash != "" {
		b.WriteString("\n" + warningStyle.Render(m.flash) + "\n")
	}

	footer := footerKeyStyle.Render("[q]") + footerStyle.Render(" quit  ") +
		footerKeyStyle.Render("[r]") + footerStyle.Render(" refresh  ") +
		footerKeyStyle.Render("[c]") + footerStyle.Render(" check now  ") +
		footerStyle.Render(fmt.Sprintf("Auto: %v", m.interval))
	b.WriteString("\n" + footer)

	return containerStyle.Render(b.String())
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}
