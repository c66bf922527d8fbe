package autosync

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

var (
	labelStyle   = lipgloss.NewStyle().Bold(true).Width(14)
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	pendingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	boxStyle     = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

// RenderStatus formats st for a terminal. now is used for the relative
// last-check time.
func RenderStatus(st Status, now time.Time) string {
	var b strings.Builder

	row := func(label, value string) {
		b.WriteString(labelStyle.Render(label))
		b.WriteString(value)
		b.WriteString("\n")
	}

	state := st.State.String()
	switch st.State {
	case StateIdle:
		state = okStyle.Render(state)
	case StateChecking:
		state = warnStyle.Render(state)
	default:
		state = mutedStyle.Render(state)
	}
	row("State", state)

	enabled := mutedStyle.Render("no")
	if st.Enabled {
		enabled = okStyle.Render("yes")
	}
	row("Enabled", enabled)
	row("Interval", fmt.Sprintf("%d min", st.IntervalMinutes))

	mode := "notify only"
	if st.AutoMerge {
		mode = "auto-merge"
	}
	row("Mode", mode)

	last := mutedStyle.Render("never")
	if st.LastCheckTime != nil {
		ago := now.Sub(*st.LastCheckTime).Truncate(time.Second)
		last = fmt.Sprintf("%s (%s ago)", st.LastCheckTime.Format(time.RFC3339), ago)
	}
	row("Last check", last)

	if len(st.PendingProjectNames) == 0 {
		row("Pending", mutedStyle.Render("none"))
	} else {
		row("Pending", pendingStyle.Render(fmt.Sprintf("%d", len(st.PendingProjectNames))))
		for _, name := range st.PendingProjectNames {
			b.WriteString("  • " + name + "\n")
		}
	}

	return boxStyle.Render(strings.TrimRight(b.String(), "\n"))
}
