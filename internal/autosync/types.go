package autosync

import (
	"fmt"
	"strings"
	"time"
)

// State is the coordinator lifecycle state.
type State int

const (
	StateStopped State = iota
	StateIdle
	StateChecking
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateIdle:
		return "idle"
	case StateChecking:
		return "checking"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(b []byte) error {
	switch string(b) {
	case "stopped":
		*s = StateStopped
	case "idle":
		*s = StateIdle
	case "checking":
		*s = StateChecking
	default:
		return fmt.Errorf("unknown state %q", b)
	}
	return nil
}

// Trigger names what started a cycle.
type Trigger string

const (
	TriggerStartup  Trigger = "startup"
	TriggerInterval Trigger = "interval"
	TriggerManual   Trigger = "manual"
	TriggerChat     Trigger = "chat"
	TriggerAPI      Trigger = "api"
	TriggerWebhook  Trigger = "webhook"
)

// CheckResult is the outcome of checking one project in one cycle.
type CheckResult struct {
	Project       string `json:"project"`
	CommitsBehind int    `json:"commits_behind"`
	HasUpdate     bool   `json:"has_update"`
}

// UpdateNotice is the single aggregated notification of a cycle.
type UpdateNotice struct {
	Count        int      `json:"count"`
	ProjectNames []string `json:"project_names"`
	AutoMerged   bool     `json:"auto_merged"`
}

// Message renders the notice for humans.
func (n UpdateNotice) Message() string {
	noun := "projects"
	if n.Count == 1 {
		noun = "project"
	}
	names := strings.Join(n.ProjectNames, ", ")
	if n.AutoMerged {
		return fmt.Sprintf("Synced updates into %d %s: %s", n.Count, noun, names)
	}
	return fmt.Sprintf("Updates available for %d %s: %s. Run a sync to pull them.", n.Count, noun, names)
}

// ConflictNotice reports a pull that could not merge automatically.
type ConflictNotice struct {
	Project string `json:"project"`
	Err     error  `json:"-"`
}

// Message renders the notice for humans.
func (n ConflictNotice) Message() string {
	return fmt.Sprintf("Could not merge upstream changes into %s: resolve the conflict manually", n.Project)
}

// Status is a point-in-time view of the coordinator.
type Status struct {
	Enabled             bool       `json:"enabled"`
	IntervalMinutes     int        `json:"interval_minutes"`
	AutoMerge           bool       `json:"auto_merge"`
	State               State      `json:"state"`
	LastCheckTime       *time.Time `json:"last_check_time,omitempty"`
	PendingProjectNames []string   `json:"pending_project_names"`
}
