package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/fyrsmithlabs/contextsync/internal/autosync"
	"github.com/fyrsmithlabs/contextsync/internal/gitops"
	api "github.com/fyrsmithlabs/contextsync/internal/http"
	"github.com/fyrsmithlabs/contextsync/internal/project"
)

// ErrDaemonUnavailable is returned when the daemon cannot be reached.
var ErrDaemonUnavailable = errors.New("contextsync daemon unavailable")

// Backend is what the tools call into.
type Backend interface {
	Status(ctx context.Context) (autosync.Status, error)
	Check(ctx context.Context) (triggered bool, err error)
	Pending(ctx context.Context) ([]string, error)
	Pull(ctx context.Context, name string) (*gitops.PullResult, error)
}

// DaemonClient is a Backend talking to the daemon's HTTP API.
type DaemonClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewDaemonClient creates a client for the daemon at baseURL, e.g.
// "http://127.0.0.1:9191".
func NewDaemonClient(baseURL string) *DaemonClient {
	return &DaemonClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			// Pulls of large projects can take a while.
			Timeout: 2 * time.Minute,
		},
	}
}

// Status returns the daemon's sync status.
func (c *DaemonClient) Status(ctx context.Context) (autosync.Status, error) {
	var st autosync.Status
	err := c.do(ctx, http.MethodGet, "/api/v1/sync/status", &st)
	return st, err
}

// Check asks the daemon to start a chat-triggered update check.
func (c *DaemonClient) Check(ctx context.Context) (bool, error) {
	return c.Trigger(ctx, autosync.TriggerChat)
}

// Trigger asks the daemon to start an update check attributed to trigger.
// It returns false when a check was already in progress.
func (c *DaemonClient) Trigger(ctx context.Context, trigger autosync.Trigger) (bool, error) {
	var resp api.CheckResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/sync/check?trigger="+url.QueryEscape(string(trigger)), &resp); err != nil {
		return false, err
	}
	return resp.Triggered, nil
}

// Notices returns notices recorded after since.
func (c *DaemonClient) Notices(ctx context.Context, since uint64) (*api.NoticesResponse, error) {
	var resp api.NoticesResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/sync/notices?since="+strconv.FormatUint(since, 10), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Projects lists registered projects with their pending flag.
func (c *DaemonClient) Projects(ctx context.Context) ([]api.ProjectResponse, error) {
	var resp api.ProjectsResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/projects", &resp); err != nil {
		return nil, err
	}
	return resp.Projects, nil
}

// Pending returns the names of projects with updates.
func (c *DaemonClient) Pending(ctx context.Context) ([]string, error) {
	var resp api.PendingResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/sync/pending", &resp); err != nil {
		return nil, err
	}
	return resp.Projects, nil
}

// Pull pulls one project through the daemon.
func (c *DaemonClient) Pull(ctx context.Context, name string) (*gitops.PullResult, error) {
	var resp api.PullResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/projects/"+url.PathEscape(name)+"/pull", &resp); err != nil {
		return nil, err
	}
	return &gitops.PullResult{ChangedFileCount: resp.ChangedFileCount, ChangedFiles: resp.ChangedFiles}, nil
}

func (c *DaemonClient) do(ctx context.Context, method, path string, result any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDaemonUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(resp)
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}

// statusError maps an API error response back to the sentinel the daemon
// reported, so callers can use errors.Is across the process boundary.
func statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var er api.ErrorResponse
	msg := strings.TrimSpace(string(body))
	if json.Unmarshal(body, &er) == nil && er.Error != "" {
		msg = er.Error
	}

	var sentinel error
	switch resp.StatusCode {
	case http.StatusNotFound:
		sentinel = project.ErrProjectNotFound
	case http.StatusConflict:
		sentinel = gitops.ErrMergeConflict
		for _, e := range []error{autosync.ErrAlreadyRunning, autosync.ErrNotRunning, autosync.ErrDisabled} {
			if strings.Contains(msg, e.Error()) {
				sentinel = e
			}
		}
	case http.StatusUnprocessableEntity:
		sentinel = gitops.ErrNotARepository
		if strings.Contains(msg, gitops.ErrNoUpstream.Error()) {
			sentinel = gitops.ErrNoUpstream
		}
	case http.StatusBadGateway:
		sentinel = gitops.ErrNetwork
		if strings.Contains(msg, gitops.ErrGitUnavailable.Error()) {
			sentinel = gitops.ErrGitUnavailable
		}
	}

	if sentinel != nil {
		return fmt.Errorf("%w (daemon: %s)", sentinel, msg)
	}
	return fmt.Errorf("daemon returned status %d: %s", resp.StatusCode, msg)
}
