// Package postprocessors turns documents into the chunks the embedding index
// stores.
package postprocessors

import (
	"context"
	"fmt"
	"strings"

	"github.com/custodia-labs/sercha-rank/internal/core/domain"
	"github.com/custodia-labs/sercha-rank/internal/core/ports/driven"
)

// Pipeline runs chunk processors in order. The first processor creates
// chunks from the document; later ones rewrite them.
//
// After the last processor, chunks with blank content are dropped and the
// rest carry the document id and are numbered from 0, so stored positions
// always follow chunk order.
type Pipeline struct {
	processors []driven.PostProcessor
}

// NewPipeline creates a pipeline running processors in the order given.
func NewPipeline(processors ...driven.PostProcessor) *Pipeline {
	return &Pipeline{
		processors: processors,
	}
}

// Process chunks one document. It stops between processors when ctx ends.
func (p *Pipeline) Process(ctx context.Context, doc *domain.Document) ([]domain.Chunk, error) {
	if doc == nil {
		return nil, fmt.Errorf("chunk pipeline: nil document: %w", domain.ErrInvalidInput)
	}

	var chunks []domain.Chunk
	for _, processor := range p.processors {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var err error
		chunks, err = processor.Process(ctx, doc, chunks)
		if err != nil {
			return nil, fmt.Errorf("processor %s on %s: %w", processor.Name(), doc.ID, err)
		}
	}

	return finalizeChunks(doc.ID, chunks), nil
}

func finalizeChunks(docID string, chunks []domain.Chunk) []domain.Chunk {
	if chunks == nil {
		return nil
	}
	out := make([]domain.Chunk, 0, len(chunks))
	for _, c := range chunks {
		if strings.TrimSpace(c.Content) == "" {
			continue
		}
		if c.DocumentID == "" {
			c.DocumentID = docID
		}
		c.Position = len(out)
		out = append(out, c)
	}
	return out
}

// Add appends a processor to the pipeline.
func (p *Pipeline) Add(processor driven.PostProcessor) {
	p.processors = append(p.processors, processor)
}

// Len returns the number of processors in the pipeline.
func (p *Pipeline) Len() int {
	return len(p.processors)
}

// Names returns the processor names in run order.
func (p *Pipeline) Names() []string {
	names := make([]string, len(p.processors))
	for i, processor := range p.processors {
		names[i] = processor.Name()
	}
	return names
}
