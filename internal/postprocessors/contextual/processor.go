// Package contextual prefixes chunks with their document's title and tags so
// that each chunk embeds with the context of the whole document.
package contextual

import (
	"context"
	"strings"

	"github.com/custodia-labs/sercha-rank/internal/core/domain"
)

// Processor rewrites chunk content as "<title> #tag1 #tag2\n\n<text>".
// It implements the PostProcessor interface.
type Processor struct {
	includeTags bool
}

// Option configures the contextual processor.
type Option func(*Processor)

// WithTags controls whether tags are part of the prefix.
func WithTags(include bool) Option {
	return func(p *Processor) {
		p.includeTags = include
	}
}

// New creates a new contextual processor.
func New(opts ...Option) *Processor {
	p := &Processor{includeTags: true}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the processor name.
func (p *Processor) Name() string {
	return "contextual"
}

// Process prefixes each chunk. The input chunks are modified and returned.
func (p *Processor) Process(_ context.Context, doc *domain.Document, chunks []domain.Chunk) ([]domain.Chunk, error) {
	prefix := p.prefix(doc)
	if prefix == "" {
		return chunks, nil
	}
	for i := range chunks {
		chunks[i].Content = prefix + "\n\n" + chunks[i].Content
	}
	return chunks, nil
}

func (p *Processor) prefix(doc *domain.Document) string {
	parts := []string{}
	if title := doc.DisplayTitle(); title != "" {
		parts = append(parts, title)
	}
	if p.includeTags {
		for _, tag := range doc.Metadata.Tags.Sorted() {
			parts = append(parts, "#"+tag)
		}
	}
	return strings.Join(parts, " ")
}
