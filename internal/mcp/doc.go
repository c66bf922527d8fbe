// Package mcp exposes auto-sync to AI chat assistants over the Model
// Context Protocol.
//
// The server speaks MCP on stdio and delegates every tool call to a running
// contextsync daemon over its HTTP API, so the chat session and the daemon
// share one coordinator and one pending-updates set:
//
//	assistant → stdio (this server) → DaemonClient → contextsync serve
//
// Tools:
//   - sync_status: enabled flag, interval, mode, state, last check, pending
//   - sync_check: trigger an update check (coalesced if one is running)
//   - sync_pending: names of projects with unmerged upstream commits
//   - project_pull: pull one project now
package mcp
