package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nvandessel/tier-alloc/internal/mcp"
	"github.com/nvandessel/tier-alloc/internal/server"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the allocation API over HTTP",
		Long: `Start the HTTP API and Prometheus metrics endpoint.

Routes:
  GET  /api/delivery-types
  GET  /api/weights/:type         PUT /api/weights/:type
  POST /api/weights/:type/import  (multipart workbook upload)
  POST /api/allocations           GET /api/allocations
  GET  /api/allocations/:id[/encoded|/export]
  GET  /metrics, /healthz`,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			cfg := e.cfg.Server
			if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
				cfg.Addr = addr
			}

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			return server.NewServer(cfg, e.manager, e.store, e.logger).Run(ctx)
		},
	}
	cmd.Flags().String("addr", "", "Listen address (overrides server.addr)")
	return cmd
}

func newMCPServerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp-server",
		Short: "Serve allocation tools over MCP (stdio)",
		Long: `Start an MCP server on stdin/stdout exposing the tools
tieralloc_allocate, tieralloc_delivery_types, tieralloc_decode and
tieralloc_history. Tool calls are audited to audit.jsonl next to the database.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			srv, err := mcp.NewServer(&mcp.Config{
				Name:     "tieralloc",
				Version:  version,
				Manager:  e.manager,
				Store:    e.store,
				AuditDir: filepath.Dir(e.store.Path()),
				Logger:   e.logger,
			})
			if err != nil {
				return fmt.Errorf("failed to create MCP server: %w", err)
			}
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			fmt.Fprintln(os.Stderr, "tieralloc MCP server listening on stdio")
			return srv.Run(ctx)
		},
	}
}

// signalContext is cancelled on interrupt or termination.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, shutdownSignals...)
}
