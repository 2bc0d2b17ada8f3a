package services

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/custodia-labs/sercha-rank/internal/core/domain"
	"github.com/custodia-labs/sercha-rank/internal/core/ports/driven"
)

// --- Mock implementations ---

// testVocabulary gives each word one vector dimension in keywordVector.
var testVocabulary = []string{"alpha", "beta", "gamma", "delta"}

// keywordVector counts vocabulary words in text. The last component is a
// constant so no vector has zero norm.
func keywordVector(text string) []float32 {
	vec := make([]float32, len(testVocabulary)+1)
	for _, word := range tokenize(text) {
		for i, v := range testVocabulary {
			if word == v {
				vec[i]++
			}
		}
	}
	vec[len(testVocabulary)] = 0.1
	return vec
}

// mockEmbeddingService implements driven.EmbeddingService for testing.
type mockEmbeddingService struct {
	mu       sync.Mutex
	vectorOf func(text string) ([]float32, error)
	model    string
	calls    int
	texts    []string
}

func newMockEmbedder() *mockEmbeddingService {
	return &mockEmbeddingService{
		vectorOf: func(text string) ([]float32, error) { return keywordVector(text), nil },
		model:    "mock-embed",
	}
}

func (m *mockEmbeddingService) Embed(_ context.Context, text string) ([]float32, error) {
	m.mu.Lock()
	m.calls++
	m.texts = append(m.texts, text)
	fn := m.vectorOf
	m.mu.Unlock()
	return fn(text)
}

func (m *mockEmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := m.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (m *mockEmbeddingService) Dimensions() int {
	return len(testVocabulary) + 1
}

func (m *mockEmbeddingService) ModelName() string {
	return m.model
}

func (m *mockEmbeddingService) Ping(_ context.Context) error {
	return nil
}

func (m *mockEmbeddingService) Close() error {
	return nil
}

func (m *mockEmbeddingService) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// mockEmbeddingStore implements driven.EmbeddingStore for testing.
type mockEmbeddingStore struct {
	snapshot *domain.EmbeddingSnapshot
	saveErr  error
	cleared  int
}

func (m *mockEmbeddingStore) Load(_ context.Context) (*domain.EmbeddingSnapshot, error) {
	if m.snapshot == nil {
		return nil, domain.ErrNotFound
	}
	return m.snapshot, nil
}

func (m *mockEmbeddingStore) Save(_ context.Context, s *domain.EmbeddingSnapshot) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.snapshot = s
	return nil
}

func (m *mockEmbeddingStore) Clear(_ context.Context) error {
	m.snapshot = nil
	m.cleared++
	return nil
}

// mockGraphStore implements driven.GraphStore for testing.
type mockGraphStore struct {
	snapshot *domain.GraphSnapshot
}

func (m *mockGraphStore) Load(_ context.Context) (*domain.GraphSnapshot, error) {
	if m.snapshot == nil {
		return nil, domain.ErrNotFound
	}
	return m.snapshot, nil
}

func (m *mockGraphStore) Save(_ context.Context, s *domain.GraphSnapshot) error {
	m.snapshot = s
	return nil
}

func (m *mockGraphStore) Clear(_ context.Context) error {
	m.snapshot = nil
	return nil
}

// mockSearchEngine implements driven.SearchEngine for testing. Without
// fixed hits it returns indexed documents containing every query word,
// scored by occurrence count.
type mockSearchEngine struct {
	mu        sync.Mutex
	docs      map[string]string
	hits      []driven.SearchHit
	searchErr error
	queries   []string
}

func newMockSearchEngine() *mockSearchEngine {
	return &mockSearchEngine{docs: make(map[string]string)}
}

func (m *mockSearchEngine) Index(_ context.Context, doc domain.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[doc.ID] = doc.Title + " " + doc.Content
	return nil
}

func (m *mockSearchEngine) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, id)
	return nil
}

func (m *mockSearchEngine) Search(_ context.Context, query string, limit int) ([]driven.SearchHit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries = append(m.queries, query)
	if m.searchErr != nil {
		return nil, m.searchErr
	}
	hits := m.hits
	if hits == nil {
		terms := tokenize(query)
		for id, text := range m.docs {
			words := tokenize(text)
			score := 0.0
			matched := true
			for _, term := range terms {
				n := 0
				for _, w := range words {
					if w == term {
						n++
					}
				}
				if n == 0 {
					matched = false
					break
				}
				score += float64(n)
			}
			if matched && len(terms) > 0 {
				hits = append(hits, driven.SearchHit{DocumentID: id, Score: score, MatchedTerms: terms})
			}
		}
		sort.Slice(hits, func(i, j int) bool {
			if hits[i].Score != hits[j].Score {
				return hits[i].Score > hits[j].Score
			}
			return hits[i].DocumentID < hits[j].DocumentID
		})
	}
	if limit > 0 && limit < len(hits) {
		hits = hits[:limit]
	}
	return hits, nil
}

func (m *mockSearchEngine) Close() error {
	return nil
}

// mockCorpus implements driven.Corpus for testing.
type mockCorpus struct {
	mu     sync.Mutex
	docs   map[string]*domain.Document
	events chan domain.ChangeEvent
	gets   int
}

func newMockCorpus(docs ...*domain.Document) *mockCorpus {
	c := &mockCorpus{
		docs:   make(map[string]*domain.Document),
		events: make(chan domain.ChangeEvent, 16),
	}
	for _, d := range docs {
		c.docs[d.ID] = d
	}
	return c
}

func (m *mockCorpus) List(_ context.Context) ([]domain.DocumentInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	infos := make([]domain.DocumentInfo, 0, len(m.docs))
	for _, d := range m.docs {
		infos = append(infos, d.DocumentInfo)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos, nil
}

func (m *mockCorpus) Get(_ context.Context, id string) (*domain.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	d, ok := m.docs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (m *mockCorpus) Subscribe(ctx context.Context) (<-chan domain.ChangeEvent, error) {
	out := make(chan domain.ChangeEvent)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-m.events:
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (m *mockCorpus) put(d *domain.Document) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[d.ID] = d
}

func (m *mockCorpus) remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, id)
}

func (m *mockCorpus) getCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gets
}

// mockUsageProvider implements driven.UsageProvider and driven.UsageRecorder.
type mockUsageProvider struct {
	mu       sync.Mutex
	signals  map[string]domain.UsageSignals
	err      error
	accesses []string
}

func (m *mockUsageProvider) Signals(_ context.Context, id string) (domain.UsageSignals, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return domain.UsageSignals{}, m.err
	}
	return m.signals[id], nil
}

func (m *mockUsageProvider) RecordAccess(_ context.Context, id string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id == "" {
		return errors.New("empty id")
	}
	m.accesses = append(m.accesses, id)
	return nil
}

// testDoc builds a document with a title, content and optional tags.
func testDoc(id, title, content string, tags ...string) *domain.Document {
	md := domain.NewMetadata()
	for _, tag := range tags {
		md.Tags.Add(tag)
	}
	return &domain.Document{
		DocumentInfo: domain.DocumentInfo{
			ID:         id,
			Title:      title,
			ModifiedAt: testEpoch,
			Size:       int64(len(content)),
			Metadata:   md,
		},
		Content: content,
	}
}

// joinSentences builds content with one sentence per word group.
func joinSentences(sentences ...string) string {
	return strings.Join(sentences, ". ") + "."
}
