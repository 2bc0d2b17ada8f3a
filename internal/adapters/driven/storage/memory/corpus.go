package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/custodia-labs/sercha-rank/internal/core/domain"
	"github.com/custodia-labs/sercha-rank/internal/core/ports/driven"
)

// Ensure Corpus implements the interface.
var _ driven.Corpus = (*Corpus)(nil)

const subscriberBuffer = 64

// Corpus is an in-memory implementation of driven.Corpus. Mutations are
// broadcast to every subscriber in order.
type Corpus struct {
	mu          sync.RWMutex
	documents   map[string]domain.Document
	subscribers map[*subscriber]struct{}
}

type subscriber struct {
	ch  chan domain.ChangeEvent
	ctx context.Context
}

// NewCorpus creates a corpus holding the given documents.
func NewCorpus(docs ...domain.Document) *Corpus {
	c := &Corpus{
		documents:   make(map[string]domain.Document, len(docs)),
		subscribers: make(map[*subscriber]struct{}),
	}
	for _, d := range docs {
		c.documents[d.ID] = d
	}
	return c
}

// List returns every document without content, ordered by ID.
func (c *Corpus) List(_ context.Context) ([]domain.DocumentInfo, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	infos := make([]domain.DocumentInfo, 0, len(c.documents))
	for _, d := range c.documents {
		infos = append(infos, d.DocumentInfo)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos, nil
}

// Get retrieves a document by ID.
func (c *Corpus) Get(_ context.Context, id string) (*domain.Document, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	doc, ok := c.documents[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &doc, nil
}

// Subscribe returns a channel of changes made after the call. The channel
// closes when ctx ends.
func (c *Corpus) Subscribe(ctx context.Context) (<-chan domain.ChangeEvent, error) {
	sub := &subscriber{ch: make(chan domain.ChangeEvent, subscriberBuffer), ctx: ctx}
	c.mu.Lock()
	c.subscribers[sub] = struct{}{}
	c.mu.Unlock()

	go func() {
		<-ctx.Done()
		c.mu.Lock()
		delete(c.subscribers, sub)
		close(sub.ch)
		c.mu.Unlock()
	}()
	return sub.ch, nil
}

// Put creates or replaces a document.
func (c *Corpus) Put(doc domain.Document) {
	c.mu.Lock()
	defer c.mu.Unlock()
	event := domain.ChangeEvent{Type: domain.ChangeCreated, DocumentID: doc.ID}
	if _, exists := c.documents[doc.ID]; exists {
		event.Type = domain.ChangeModified
	}
	c.documents[doc.ID] = doc
	c.publishLocked(event)
}

// Delete removes a document. Unknown IDs return domain.ErrNotFound.
func (c *Corpus) Delete(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.documents[id]; !ok {
		return domain.ErrNotFound
	}
	delete(c.documents, id)
	c.publishLocked(domain.ChangeEvent{Type: domain.ChangeDeleted, DocumentID: id})
	return nil
}

// Rename moves a document to a new ID.
func (c *Corpus) Rename(oldID, newID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	doc, ok := c.documents[oldID]
	if !ok {
		return domain.ErrNotFound
	}
	if _, taken := c.documents[newID]; taken {
		return domain.ErrInvalidInput
	}
	delete(c.documents, oldID)
	doc.ID = newID
	c.documents[newID] = doc
	c.publishLocked(domain.ChangeEvent{Type: domain.ChangeRenamed, DocumentID: newID, OldID: oldID})
	return nil
}

// publishLocked delivers an event to every live subscriber. A full
// subscriber buffer blocks the writer until it drains or unsubscribes.
func (c *Corpus) publishLocked(event domain.ChangeEvent) {
	for sub := range c.subscribers {
		select {
		case sub.ch <- event:
		case <-sub.ctx.Done():
		}
	}
}
