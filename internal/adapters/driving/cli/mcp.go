package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/sercha-rank/internal/adapters/driving/mcp"
	"github.com/custodia-labs/sercha-rank/internal/logger"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "MCP server commands",
	Long:  `Commands for the Model Context Protocol (MCP) server integration.`,
}

var mcpServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server",
	Long: `Start the Model Context Protocol server for AI assistant integration.

By default, the server communicates over stdio using JSON-RPC and can be
used with Claude Desktop and other MCP-compatible AI assistants.

Use --port to start an HTTP server instead, which enables:
  - Testing with MCP Inspector web UI
  - Remote access via HTTP

Examples:
  # Stdio mode (default, for Claude Desktop)
  sercha-rank mcp serve --vault ~/notes

  # HTTP mode (for MCP Inspector, remote access)
  sercha-rank mcp serve --vault ~/notes --port 8080

Claude Desktop configuration (claude_desktop_config.json):
  {
    "mcpServers": {
      "sercha-rank": {
        "command": "/path/to/sercha-rank",
        "args": ["mcp", "serve", "--vault", "/path/to/notes"]
      }
    }
  }`,
	RunE: runMCPServe,
}

func init() {
	mcpServeCmd.Flags().IntP("port", "p", 0, "HTTP port (0 = use stdio)")
	mcpCmd.AddCommand(mcpServeCmd)
	rootCmd.AddCommand(mcpCmd)
}

func runMCPServe(cmd *cobra.Command, _ []string) error {
	port, err := cmd.Flags().GetInt("port")
	if err != nil {
		return fmt.Errorf("getting port flag: %w", err)
	}

	ports := &mcp.Ports{
		Search:    searchService,
		Usage:     usageService,
		Graph:     graphService,
		Documents: documentReader,
	}

	server, err := mcp.NewServer(ports)
	if err != nil {
		return err
	}

	// Keep the index live while serving. Stdout belongs to the protocol, so
	// progress goes to the logger.
	if indexService != nil {
		stats, err := indexService.Rebuild(cmd.Context())
		if err != nil {
			return fmt.Errorf("indexing vault: %w", err)
		}
		logger.Info("indexed %d documents, %d links", stats.Documents, stats.Links)
		if err := indexService.Start(cmd.Context()); err != nil {
			return fmt.Errorf("starting watcher: %w", err)
		}
		defer func() {
			if err := indexService.Stop(); err != nil {
				logger.Warn("stopping watcher: %v", err)
			}
		}()
	}

	if port > 0 {
		addr := fmt.Sprintf(":%d", port)
		fmt.Fprintf(cmd.OutOrStdout(), "MCP server listening on http://localhost%s\n", addr)
		return server.RunHTTP(cmd.Context(), addr)
	}

	return server.Run(cmd.Context())
}
