// Package chunker provides a sentence-grouping text chunking processor.
package chunker

import (
	"context"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/custodia-labs/sercha-rank/internal/core/domain"
)

// DefaultTargetChars is the default character budget per chunk.
const DefaultTargetChars = 800

// Default sentence bounds per chunk.
const (
	DefaultMinSentences = 2
	DefaultMaxSentences = 4
)

// TextKey is the chunk metadata key holding the chunk text before any
// later processor rewrites Content.
const TextKey = "text"

// Processor groups sentences into chunks.
// It implements the PostProcessor interface.
type Processor struct {
	targetChars  int
	minSentences int
	maxSentences int
}

// Option configures the chunker processor.
type Option func(*Processor)

// WithTargetChars sets the character budget per chunk.
func WithTargetChars(n int) Option {
	return func(p *Processor) {
		if n > 0 {
			p.targetChars = n
		}
	}
}

// WithSentenceBounds sets the minimum and maximum sentences per chunk.
func WithSentenceBounds(minSentences, maxSentences int) Option {
	return func(p *Processor) {
		if minSentences > 0 {
			p.minSentences = minSentences
		}
		if maxSentences > 0 {
			p.maxSentences = maxSentences
		}
	}
}

// New creates a new chunker processor with the given options.
func New(opts ...Option) *Processor {
	p := &Processor{
		targetChars:  DefaultTargetChars,
		minSentences: DefaultMinSentences,
		maxSentences: DefaultMaxSentences,
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.maxSentences < p.minSentences {
		p.maxSentences = p.minSentences
	}

	return p
}

// Name returns the processor name.
func (p *Processor) Name() string {
	return "chunker"
}

// Process splits the document content into chunks of whole sentences.
// A chunk closes at maxSentences, or once it holds minSentences and the next
// sentence would exceed the budget. Sentences longer than the budget are
// hard-split on their own. Non-blank content always yields at least one chunk.
func (p *Processor) Process(ctx context.Context, doc *domain.Document, _ []domain.Chunk) ([]domain.Chunk, error) {
	if strings.TrimSpace(doc.Content) == "" {
		return nil, nil
	}

	var texts []string
	var current []string
	currentLen := 0

	closeChunk := func() {
		if len(current) > 0 {
			texts = append(texts, strings.Join(current, " "))
			current = current[:0]
			currentLen = 0
		}
	}

	for _, sentence := range SplitSentences(doc.Content) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n := utf8.RuneCountInString(sentence)

		if n > p.targetChars {
			closeChunk()
			texts = append(texts, hardSplit(sentence, p.targetChars)...)
			continue
		}

		if len(current) >= p.maxSentences ||
			(len(current) >= p.minSentences && currentLen+1+n > p.targetChars) {
			closeChunk()
		}
		current = append(current, sentence)
		currentLen += n
		if len(current) > 1 {
			currentLen++
		}
	}
	closeChunk()

	chunks := make([]domain.Chunk, 0, len(texts))
	for i, text := range texts {
		chunks = append(chunks, domain.Chunk{
			ID:         uuid.New().String(),
			DocumentID: doc.ID,
			Content:    text,
			Position:   i,
			Metadata:   map[string]any{TextKey: text},
		})
	}

	return chunks, nil
}

// SplitSentences splits text at sentence terminators followed by whitespace
// and at line breaks. Empty sentences are dropped.
func SplitSentences(text string) []string {
	var sentences []string
	var b strings.Builder

	flush := func() {
		if s := strings.TrimSpace(b.String()); s != "" {
			sentences = append(sentences, strings.Join(strings.Fields(s), " "))
		}
		b.Reset()
	}

	runes := []rune(text)
	for i, r := range runes {
		if r == '\n' {
			flush()
			continue
		}
		b.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			if i+1 == len(runes) || unicode.IsSpace(runes[i+1]) {
				flush()
			}
		}
	}
	flush()

	return sentences
}

// hardSplit cuts text into pieces of at most limit runes, preferring the last
// space inside each window.
func hardSplit(text string, limit int) []string {
	var pieces []string
	runes := []rune(text)
	for len(runes) > 0 {
		if len(runes) <= limit {
			if piece := strings.TrimSpace(string(runes)); piece != "" {
				pieces = append(pieces, piece)
			}
			break
		}
		cut := limit
		for i := limit; i > limit/2; i-- {
			if unicode.IsSpace(runes[i]) {
				cut = i
				break
			}
		}
		if piece := strings.TrimSpace(string(runes[:cut])); piece != "" {
			pieces = append(pieces, piece)
		}
		runes = runes[cut:]
	}
	return pieces
}
