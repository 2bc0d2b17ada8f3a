package filesystem

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/custodia-labs/sercha-rank/internal/core/domain"
	"github.com/custodia-labs/sercha-rank/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-rank/internal/logger"
)

// Ensure Corpus implements the interface.
var _ driven.Corpus = (*Corpus)(nil)

// DefaultRenameWindow is how long a moved-away file waits for its new name
// before it is reported as deleted.
const DefaultRenameWindow = 250 * time.Millisecond

// DefaultExtensions are the file extensions read as documents.
var DefaultExtensions = []string{".md", ".markdown"}

// Option configures a Corpus.
type Option func(*Corpus)

// WithExtensions overrides the document file extensions.
func WithExtensions(exts ...string) Option {
	return func(c *Corpus) {
		c.extensions = make(map[string]bool, len(exts))
		for _, ext := range exts {
			c.extensions[strings.ToLower(ext)] = true
		}
	}
}

// WithRenameWindow sets how long a rename waits for its target.
func WithRenameWindow(d time.Duration) Option {
	return func(c *Corpus) { c.renameWindow = d }
}

// Corpus is a folder of markdown notes (a vault). Document ids are
// slash-separated paths relative to the root. Hidden files and folders are
// ignored.
type Corpus struct {
	root         string
	extensions   map[string]bool
	renameWindow time.Duration
	parser       *parser

	mu     sync.RWMutex
	docs   map[string]*entry
	loaded bool
}

type entry struct {
	doc  *domain.Document
	hash [sha256.Size]byte
}

// New creates a corpus rooted at root. Nothing is read until the first call.
func New(root string, opts ...Option) *Corpus {
	c := &Corpus{
		root:         filepath.Clean(root),
		renameWindow: DefaultRenameWindow,
		parser:       newParser(),
		docs:         make(map[string]*entry),
	}
	WithExtensions(DefaultExtensions...)(c)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Root returns the vault folder.
func (c *Corpus) Root() string {
	return c.root
}

// Load scans the vault, replacing any cached state. Files that fail to parse
// are logged and skipped.
func (c *Corpus) Load(ctx context.Context) error {
	info, err := os.Stat(c.root)
	if err != nil {
		return fmt.Errorf("root path error: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("root path error: %s is not a directory", c.root)
	}

	docs := make(map[string]*entry)
	err = filepath.WalkDir(c.root, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if p != c.root && isHidden(d.Name()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !c.isDocument(p) {
			return nil
		}
		e, err := c.read(p)
		if err != nil {
			logger.Warn("corpus: skipping %s: %v", p, err)
			return nil
		}
		docs[e.doc.ID] = e
		return nil
	})
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.docs = docs
	c.loaded = true
	c.mu.Unlock()
	logger.Debug("corpus: loaded %d documents from %s", len(docs), c.root)
	return nil
}

func (c *Corpus) ensureLoaded(ctx context.Context) error {
	c.mu.RLock()
	loaded := c.loaded
	c.mu.RUnlock()
	if loaded {
		return nil
	}
	return c.Load(ctx)
}

// List returns content-free snapshots of every document, sorted by id.
func (c *Corpus) List(ctx context.Context) ([]domain.DocumentInfo, error) {
	if err := c.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	infos := make([]domain.DocumentInfo, 0, len(c.docs))
	for _, e := range c.docs {
		infos = append(infos, e.doc.DocumentInfo)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos, nil
}

// Get returns a copy of a document with its content.
func (c *Corpus) Get(ctx context.Context, id string) (*domain.Document, error) {
	if err := c.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.docs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	doc := *e.doc
	return &doc, nil
}

// Subscribe watches the vault and streams change events until ctx is done.
// The cached documents are updated before each event is sent.
func (c *Corpus) Subscribe(ctx context.Context) (<-chan domain.ChangeEvent, error) {
	if err := c.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := c.watchTree(watcher, c.root); err != nil {
		watcher.Close()
		return nil, err
	}

	out := make(chan domain.ChangeEvent, 64)
	go c.watchLoop(ctx, watcher, out)
	return out, nil
}

// watchTree adds dir and its visible subfolders; fsnotify is not recursive.
func (c *Corpus) watchTree(watcher *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != c.root && isHidden(d.Name()) {
			return filepath.SkipDir
		}
		if err := watcher.Add(p); err != nil {
			return fmt.Errorf("watch %s: %w", p, err)
		}
		return nil
	})
}

// pendingRename is a document whose file moved away and whose new name is
// not known yet.
type pendingRename struct {
	id   string
	hash [sha256.Size]byte
}

func (c *Corpus) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, out chan<- domain.ChangeEvent) {
	defer close(out)
	defer watcher.Close()

	var pending []pendingRename
	timer := time.NewTimer(c.renameWindow)
	timer.Stop()
	defer timer.Stop()

	emit := func(events ...domain.ChangeEvent) bool {
		for _, ev := range events {
			select {
			case out <- ev:
			case <-ctx.Done():
				return false
			}
		}
		return true
	}
	flushPending := func() bool {
		events := make([]domain.ChangeEvent, 0, len(pending))
		for _, p := range pending {
			events = append(events, domain.ChangeEvent{Type: domain.ChangeDeleted, DocumentID: p.id})
		}
		pending = nil
		return emit(events...)
	}

	for {
		select {
		case <-ctx.Done():
			return

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("corpus: watcher error: %v", err)

		case <-timer.C:
			if !flushPending() {
				return
			}

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			events, moved := c.handleFsEvent(watcher, event, &pending)
			if moved {
				timer.Reset(c.renameWindow)
			}
			if !emit(events...) {
				return
			}
		}
	}
}

// handleFsEvent applies one filesystem event to the cache and returns the
// resulting change events. moved reports that a document was parked in
// pending waiting for its new name.
func (c *Corpus) handleFsEvent(watcher *fsnotify.Watcher, event fsnotify.Event, pending *[]pendingRename) ([]domain.ChangeEvent, bool) {
	rel, err := filepath.Rel(c.root, event.Name)
	if err != nil || hasHiddenPart(rel) {
		return nil, false
	}
	id := filepath.ToSlash(rel)

	switch {
	case event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename):
		if event.Has(fsnotify.Rename) {
			if e := c.evict(id); e != nil {
				*pending = append(*pending, pendingRename{id: id, hash: e.hash})
				return nil, true
			}
		}
		return c.removeTree(id), false

	case event.Has(fsnotify.Create):
		info, err := os.Stat(event.Name)
		if err != nil {
			return nil, false
		}
		if info.IsDir() {
			if watcher != nil {
				if err := c.watchTree(watcher, event.Name); err != nil {
					logger.Warn("corpus: %v", err)
				}
			}
			return c.scanNew(event.Name), false
		}
		return c.upsert(event.Name, pending), false

	case event.Has(fsnotify.Write):
		return c.upsert(event.Name, pending), false
	}
	return nil, false
}

// upsert reads a document file and reports it as created, modified or
// renamed from a pending move with identical content.
func (c *Corpus) upsert(p string, pending *[]pendingRename) []domain.ChangeEvent {
	if !c.isDocument(p) {
		return nil
	}
	e, err := c.read(p)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			logger.Warn("corpus: skipping %s: %v", p, err)
		}
		return nil
	}

	c.mu.Lock()
	prev, existed := c.docs[e.doc.ID]
	c.docs[e.doc.ID] = e
	c.mu.Unlock()

	if existed {
		if prev.hash == e.hash && prev.doc.ModifiedAt.Equal(e.doc.ModifiedAt) {
			return nil
		}
		return []domain.ChangeEvent{{Type: domain.ChangeModified, DocumentID: e.doc.ID}}
	}
	for i, p := range *pending {
		if p.id == e.doc.ID {
			// Moved away and back, as editors do when saving through a backup file.
			*pending = append((*pending)[:i], (*pending)[i+1:]...)
			return []domain.ChangeEvent{{Type: domain.ChangeModified, DocumentID: e.doc.ID}}
		}
	}
	for i, p := range *pending {
		if p.hash == e.hash {
			*pending = append((*pending)[:i], (*pending)[i+1:]...)
			return []domain.ChangeEvent{{Type: domain.ChangeRenamed, DocumentID: e.doc.ID, OldID: p.id}}
		}
	}
	return []domain.ChangeEvent{{Type: domain.ChangeCreated, DocumentID: e.doc.ID}}
}

// scanNew reports every document under a newly created folder.
func (c *Corpus) scanNew(dir string) []domain.ChangeEvent {
	var events []domain.ChangeEvent
	_ = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if isHidden(d.Name()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() {
			events = append(events, c.upsert(p, new([]pendingRename))...)
		}
		return nil
	})
	return events
}

// removeTree drops id, or every document below it when id was a folder.
func (c *Corpus) removeTree(id string) []domain.ChangeEvent {
	c.mu.Lock()
	defer c.mu.Unlock()

	var events []domain.ChangeEvent
	prefix := id + "/"
	for docID := range c.docs {
		if docID == id || strings.HasPrefix(docID, prefix) {
			delete(c.docs, docID)
			events = append(events, domain.ChangeEvent{Type: domain.ChangeDeleted, DocumentID: docID})
		}
	}
	sort.Slice(events, func(i, j int) bool { return events[i].DocumentID < events[j].DocumentID })
	return events
}

func (c *Corpus) evict(id string) *entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.docs[id]
	if !ok {
		return nil
	}
	delete(c.docs, id)
	return e
}

func (c *Corpus) read(p string) (*entry, error) {
	info, err := os.Stat(p)
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(p)
	if err != nil {
		return nil, err
	}
	rel, err := filepath.Rel(c.root, p)
	if err != nil {
		return nil, err
	}
	doc, err := c.parser.Parse(filepath.ToSlash(rel), raw, info.ModTime())
	if err != nil {
		return nil, err
	}
	return &entry{doc: doc, hash: sha256.Sum256(raw)}, nil
}

func (c *Corpus) isDocument(p string) bool {
	return c.extensions[strings.ToLower(filepath.Ext(p))]
}

// isHidden reports whether a file or folder name starts with a dot.
func isHidden(name string) bool {
	return name != "." && name != ".." && strings.HasPrefix(name, ".")
}

func hasHiddenPart(rel string) bool {
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if isHidden(part) {
			return true
		}
	}
	return false
}
