package mcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/fyrsmithlabs/contextsync/internal/autosync"
)

type syncStatusInput struct{}

type syncCheckInput struct{}

type syncPendingInput struct{}

type projectPullInput struct {
	Name string `json:"name" jsonschema:"Name of the registered project to pull"`
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "sync_status",
		Description: "Show auto-sync status: whether it is enabled, the check interval, merge mode, current state, last check time and projects with pending upstream updates.",
	}, instrument(s, "sync_status", s.handleStatus))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "sync_check",
		Description: "Check all enabled context projects for upstream updates now. Returns immediately; use sync_pending or sync_status to see the outcome.",
	}, instrument(s, "sync_check", s.handleCheck))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "sync_pending",
		Description: "List context projects that have upstream commits not yet merged locally.",
	}, instrument(s, "sync_pending", s.handlePending))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "project_pull",
		Description: "Pull upstream changes into one context project by name.",
	}, instrument(s, "project_pull", s.handlePull))
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

func (s *Server) handleStatus(ctx context.Context, _ *mcp.CallToolRequest, _ syncStatusInput) (*mcp.CallToolResult, any, error) {
	st, err := s.backend.Status(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("sync status failed: %w", err)
	}
	return textResult(formatStatus(st, s.now())), st, nil
}

func (s *Server) handleCheck(ctx context.Context, _ *mcp.CallToolRequest, _ syncCheckInput) (*mcp.CallToolResult, any, error) {
	triggered, err := s.backend.Check(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("sync check failed: %w", err)
	}
	if !triggered {
		return textResult("An update check is already running. Its results will include all projects."), nil, nil
	}
	return textResult("Update check started. Call sync_pending in a moment to see projects with updates."), nil, nil
}

func (s *Server) handlePending(ctx context.Context, _ *mcp.CallToolRequest, _ syncPendingInput) (*mcp.CallToolResult, any, error) {
	names, err := s.backend.Pending(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("listing pending projects failed: %w", err)
	}
	if len(names) == 0 {
		return textResult("All context projects are up to date."), nil, nil
	}
	n := autosync.UpdateNotice{Count: len(names), ProjectNames: names}
	return textResult(n.Message()), nil, nil
}

func (s *Server) handlePull(ctx context.Context, _ *mcp.CallToolRequest, in projectPullInput) (*mcp.CallToolResult, any, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, nil, fmt.Errorf("name is required")
	}

	res, err := s.backend.Pull(ctx, name)
	if err != nil {
		return nil, nil, fmt.Errorf("pulling %s failed: %w", name, err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Pulled %s: %d file(s) changed", name, res.ChangedFileCount)
	for _, f := range res.ChangedFiles {
		b.WriteString("\n  " + f)
	}
	return textResult(b.String()), nil, nil
}

// formatStatus renders st as plain text for the assistant.
func formatStatus(st autosync.Status, now time.Time) string {
	var b strings.Builder

	enabled := "disabled"
	if st.Enabled {
		enabled = "enabled"
	}
	mode := "notify only"
	if st.AutoMerge {
		mode = "auto-merge"
	}
	fmt.Fprintf(&b, "Auto-sync is %s (%s, every %d min), state: %s\n", enabled, mode, st.IntervalMinutes, st.State)

	if st.LastCheckTime == nil {
		b.WriteString("Last check: never\n")
	} else {
		fmt.Fprintf(&b, "Last check: %s ago\n", now.Sub(*st.LastCheckTime).Truncate(time.Second))
	}

	if len(st.PendingProjectNames) == 0 {
		b.WriteString("Pending updates: none")
	} else {
		fmt.Fprintf(&b, "Pending updates: %s", strings.Join(st.PendingProjectNames, ", "))
	}
	return b.String()
}
