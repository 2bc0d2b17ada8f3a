package domain

import (
	"sort"
	"strings"
	"time"
)

// StringSet is an unordered set of strings.
type StringSet map[string]struct{}

// NewStringSet builds a set from the given values.
func NewStringSet(values ...string) StringSet {
	s := make(StringSet, len(values))
	for _, v := range values {
		s.Add(v)
	}
	return s
}

// Add inserts a value. Empty strings are ignored.
func (s StringSet) Add(v string) {
	if v == "" {
		return
	}
	s[v] = struct{}{}
}

// Has reports whether v is in the set.
func (s StringSet) Has(v string) bool {
	_, ok := s[v]
	return ok
}

// Sorted returns the members in lexicographic order.
func (s StringSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for v := range s {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// Link is a declared outbound reference from one document to another.
type Link struct {
	// Target is the raw link target as written (path, name or alias).
	Target string

	// DisplayText is the visible label of the link, if any.
	DisplayText string
}

// Metadata is the structured metadata the corpus exposes for a document.
// Collections are never nil when built with NewMetadata.
type Metadata struct {
	// Tags are the document tags without a leading '#'.
	Tags StringSet

	// Aliases are alternate titles for the document.
	Aliases []string

	// Headings are the section headings in document order.
	Headings []string

	// Links are the declared outbound links.
	Links []Link

	// Fields holds custom frontmatter fields.
	Fields map[string]any
}

// NewMetadata returns metadata with empty collections.
func NewMetadata() Metadata {
	return Metadata{
		Tags:     make(StringSet),
		Aliases:  []string{},
		Headings: []string{},
		Links:    []Link{},
		Fields:   make(map[string]any),
	}
}

// DocumentInfo is a content-free snapshot of a corpus document.
type DocumentInfo struct {
	// ID is the unique identifier (vault-relative path for file corpora).
	ID string

	// Title is the human-readable title.
	Title string

	// ModifiedAt is the last modification time reported by the corpus.
	ModifiedAt time.Time

	// Size is the content size in bytes.
	Size int64

	// Metadata is the structured metadata.
	Metadata Metadata
}

// Document is a full corpus document including its text.
// It is owned by the corpus; the core only reads snapshots.
type Document struct {
	DocumentInfo

	// Content is the full text content.
	Content string
}

// DisplayTitle returns the title, falling back to the base name of the ID.
func (d DocumentInfo) DisplayTitle() string {
	if d.Title != "" {
		return d.Title
	}
	name := d.ID
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	if i := strings.LastIndex(name, "."); i > 0 {
		name = name[:i]
	}
	return name
}

// ChangeType represents the type of document change.
type ChangeType int

const (
	// ChangeCreated indicates a new document.
	ChangeCreated ChangeType = iota

	// ChangeModified indicates a modified document.
	ChangeModified

	// ChangeDeleted indicates a removed document.
	ChangeDeleted

	// ChangeRenamed indicates a document moved to a new ID.
	ChangeRenamed
)

// String returns the change type name.
func (c ChangeType) String() string {
	switch c {
	case ChangeCreated:
		return "created"
	case ChangeModified:
		return "modified"
	case ChangeDeleted:
		return "deleted"
	case ChangeRenamed:
		return "renamed"
	default:
		return unknownDescription
	}
}

// ChangeEvent is a corpus change notification.
type ChangeEvent struct {
	// Type is the kind of change.
	Type ChangeType

	// DocumentID is the affected document (the new ID for renames).
	DocumentID string

	// OldID is the previous ID for renames.
	OldID string
}
