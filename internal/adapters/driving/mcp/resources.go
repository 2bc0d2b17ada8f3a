package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/sercha-rank/internal/core/domain"
)

const (
	// uriScheme is the custom URI scheme for vault resources.
	uriScheme = "sercha-rank://"

	topDocumentsLimit = 25
)

// registerResources registers all resource handlers with the MCP server.
func (s *Server) registerResources() {
	if s.ports.Graph != nil {
		s.server.AddResource(&mcp.Resource{
			URI:         uriScheme + "graph/top",
			Name:        "top-documents",
			Description: "The most linked-to notes by PageRank importance",
			MIMEType:    "application/json",
		}, s.handleTopResource)
	}

	if s.ports.Documents != nil {
		s.server.AddResourceTemplate(&mcp.ResourceTemplate{
			URITemplate: uriScheme + "documents/{documentId}",
			Name:        "document-content",
			Description: "Content of a note",
			MIMEType:    "text/markdown",
		}, s.handleDocumentContentResource)
	}
}

// handleTopResource returns the highest ranked documents of the link graph.
func (s *Server) handleTopResource(
	_ context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	data, err := json.MarshalIndent(s.ports.Graph.Top(topDocumentsLimit), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling scores: %w", err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}

// handleDocumentContentResource returns the content of a specific document.
func (s *Server) handleDocumentContentResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	docID := extractDocumentID(req.Params.URI)
	if docID == "" {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	doc, err := s.ports.Documents.Get(ctx, docID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}
	if err != nil {
		return nil, fmt.Errorf("getting document content: %w", err)
	}

	text := doc.Content
	if title := doc.DisplayTitle(); title != "" {
		text = "# " + title + "\n\n" + text
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      req.Params.URI,
			MIMEType: "text/markdown",
			Text:     text,
		}},
	}, nil
}

// documentURI builds the resource URI of a document. Ids are vault paths,
// so each segment is escaped.
func documentURI(id string) string {
	parts := strings.Split(id, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return uriScheme + "documents/" + strings.Join(parts, "/")
}

// extractDocumentID extracts the document ID from a URI like sercha-rank://documents/{documentId}.
func extractDocumentID(uri string) string {
	const prefix = uriScheme + "documents/"

	if !strings.HasPrefix(uri, prefix) {
		return ""
	}

	id, err := url.PathUnescape(strings.TrimPrefix(uri, prefix))
	if err != nil {
		return ""
	}
	return id
}
