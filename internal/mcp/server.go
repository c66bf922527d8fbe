package mcp

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/contextsync/internal/logging"
)

// Server is the MCP server for auto-sync tools.
type Server struct {
	mcp     *mcp.Server
	backend Backend
	metrics *Metrics
	logger  *logging.Logger
	now     func() time.Time
}

// Config configures the MCP server.
type Config struct {
	// Name is the server implementation name (default: "contextsync").
	Name string

	// Version is the server version (default: "dev").
	Version string

	// Logger for structured logging. Must not write to stdout, which
	// carries the protocol.
	Logger *logging.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Name:    "contextsync",
		Version: "dev",
		Logger:  logging.NewNop(),
	}
}

// NewServer creates an MCP server whose tools call backend.
func NewServer(cfg *Config, backend Backend) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if backend == nil {
		return nil, fmt.Errorf("backend is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNop()
	}

	s := &Server{
		mcp: mcp.NewServer(&mcp.Implementation{
			Name:    cfg.Name,
			Version: cfg.Version,
		}, nil),
		backend: backend,
		metrics: NewMetrics(cfg.Logger),
		logger:  cfg.Logger,
		now:     time.Now,
	}
	s.registerTools()
	return s, nil
}

// Run serves MCP on stdin/stdout until ctx is cancelled or the client
// disconnects.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info(ctx, "starting MCP server on stdio transport")
	if err := s.mcp.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("server run failed: %w", err)
	}
	return nil
}

// instrument wraps a tool handler with metrics and error logging.
func instrument[In any](s *Server, tool string, h mcp.ToolHandlerFor[In, any]) mcp.ToolHandlerFor[In, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, in In) (*mcp.CallToolResult, any, error) {
		start := time.Now()
		res, out, err := h(ctx, req, in)
		s.metrics.RecordInvocation(ctx, tool, time.Since(start), err)
		if err != nil {
			s.logger.Warn(ctx, "tool call failed", zap.String("tool", tool), zap.Error(err))
		}
		return res, out, err
	}
}
