// Package mcp provides an MCP (Model Context Protocol) server for tieralloc.
package mcp

import (
	"context"
	"fmt"
	"log/slog"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nvandessel/tier-alloc/internal/logging"
	"github.com/nvandessel/tier-alloc/internal/ratelimit"
	"github.com/nvandessel/tier-alloc/internal/store"
	"github.com/nvandessel/tier-alloc/internal/strategy"
)

// Server wraps the MCP SDK server and exposes allocation tools.
type Server struct {
	server       *sdk.Server
	manager      *strategy.Manager
	store        store.Store
	toolLimiters ratelimit.ToolLimiters
	auditLogger  *AuditLogger
	logger       *slog.Logger
}

// Config holds server configuration.
type Config struct {
	Name    string // Server name (e.g., "tieralloc")
	Version string // Server version

	Manager *strategy.Manager
	Store   store.Store

	// AuditDir receives audit.jsonl. Empty disables auditing.
	AuditDir string

	Logger *slog.Logger
}

// NewServer creates a new MCP server with tieralloc tools.
func NewServer(cfg *Config) (*Server, error) {
	if cfg.Manager == nil || cfg.Store == nil {
		return nil, fmt.Errorf("mcp server needs a strategy manager and a store")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	mcpServer := sdk.NewServer(&sdk.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, &sdk.ServerOptions{
		InitializedHandler: func(ctx context.Context, req *sdk.InitializedRequest) {
			logger.Debug("mcp client initialized")
		},
	})

	s := &Server{
		server:       mcpServer,
		manager:      cfg.Manager,
		store:        cfg.Store,
		toolLimiters: ratelimit.NewToolLimiters(),
		logger:       logger,
	}
	if cfg.AuditDir != "" {
		s.auditLogger = NewAuditLogger(cfg.AuditDir)
	}

	s.registerTools()
	s.registerResources()

	return s, nil
}

// Run serves over stdio until the client disconnects or ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	err := s.server.Run(ctx, &sdk.StdioTransport{})
	s.Close()
	return err
}

// Close flushes the audit log. The store belongs to the caller.
func (s *Server) Close() error {
	return s.auditLogger.Close()
}
