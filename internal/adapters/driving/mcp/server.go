package mcp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/sercha-rank/internal/logger"
)

// Version is the MCP server version.
const Version = "0.1.0"

// shutdownTimeout bounds how long RunHTTP waits for open requests on exit.
const shutdownTimeout = 5 * time.Second

// Server exposes ranked vault search to MCP clients.
type Server struct {
	ports  *Ports
	server *mcp.Server
}

// NewServer creates a server offering the tools and resources its ports allow.
func NewServer(ports *Ports) (*Server, error) {
	if err := ports.Validate(); err != nil {
		return nil, fmt.Errorf("validating ports: %w", err)
	}

	impl := &mcp.Implementation{
		Name:    "sercha-rank",
		Version: Version,
	}

	s := &Server{
		ports: ports,
		server: mcp.NewServer(impl, &mcp.ServerOptions{
			Instructions: instructions(ports),
		}),
	}

	s.registerTools()
	s.registerResources()

	return s, nil
}

// instructions tells the client which tools and resources this server has.
func instructions(p *Ports) string {
	var b strings.Builder
	b.WriteString("Ranked search over a markdown vault. Results blend keyword and semantic ")
	b.WriteString("retrieval and are re-ranked by title match, recency, usage, link importance and term proximity.\n")
	b.WriteString("- search: query the vault. Filters such as tag:x, path:~dir or modified:>=2024-01 may be mixed into the query.\n")
	if p.Usage != nil {
		b.WriteString("- record_access: report that a result was opened, with how long it was read. This improves later rankings.\n")
	}
	if p.Graph != nil {
		b.WriteString("- " + uriScheme + "graph/top: the most linked-to documents.\n")
	}
	if p.Documents != nil {
		b.WriteString("- " + uriScheme + "documents/{documentId}: the full markdown of a result.\n")
	}
	return b.String()
}

// Run serves MCP over stdio until ctx ends or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	logger.Debug("mcp: serving over stdio")
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// RunHTTP serves streamable HTTP on addr until ctx ends.
func (s *Server) RunHTTP(ctx context.Context, addr string) error {
	handler := mcp.NewStreamableHTTPHandler(func(_ *http.Request) *mcp.Server {
		return s.server
	}, nil)

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("mcp: shutdown: %v", err)
		}
	}()

	logger.Info("mcp: listening on %s", addr)
	err := httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
