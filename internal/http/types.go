package http

import (
	"time"

	"github.com/fyrsmithlabs/contextsync/internal/autosync"
)

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// PendingResponse is the response body for GET /api/v1/sync/pending.
type PendingResponse struct {
	Count    int      `json:"count"`
	Projects []string `json:"projects"`
}

// CheckResponse is the response body for POST /api/v1/sync/check.
type CheckResponse struct {
	Triggered bool   `json:"triggered"`
	Message   string `json:"message,omitempty"`
}

// NoticesResponse is the response body for GET /api/v1/sync/notices.
// Clients pass Latest back as ?since= on the next poll.
type NoticesResponse struct {
	Notices []autosync.Notice `json:"notices"`
	Latest  uint64            `json:"latest"`
}

// ProjectResponse describes one registered project.
type ProjectResponse struct {
	Name         string     `json:"name"`
	Path         string     `json:"path"`
	Enabled      bool       `json:"enabled"`
	RemoteURL    string     `json:"remote_url,omitempty"`
	LastSyncedAt *time.Time `json:"last_synced_at,omitempty"`
	HasUpdates   bool       `json:"has_updates"`
}

// ProjectsResponse is the response body for GET /api/v1/projects.
type ProjectsResponse struct {
	Projects []ProjectResponse `json:"projects"`
}

// PullResponse is the response body for POST /api/v1/projects/:name/pull.
type PullResponse struct {
	Project          string   `json:"project"`
	ChangedFileCount int      `json:"changed_file_count"`
	ChangedFiles     []string `json:"changed_files,omitempty"`
}

// WebhookResponse is the response body for POST /api/v1/webhooks/github.
type WebhookResponse struct {
	Triggered bool     `json:"triggered"`
	Projects  []string `json:"projects,omitempty"`
	Message   string   `json:"message,omitempty"`
}
