package services

import (
	"sort"
	"strings"
	"sync"

	"github.com/custodia-labs/sercha-rank/internal/core/domain"
)

// minPhraseWords is the shortest lexicon phrase.
const minPhraseWords = 2

// QuerySegmenter splits queries into phrase segments using a lexicon of
// multi-word names found in the corpus: titles, aliases, link labels and
// headings.
type QuerySegmenter struct {
	mu sync.RWMutex

	// byFirst maps a first word to its phrases, longest first.
	byFirst map[string][][]string

	// refs counts the documents contributing each phrase.
	refs map[string]int

	// contributed records each document's phrase keys.
	contributed map[string][]string
}

// NewQuerySegmenter creates a segmenter with an empty lexicon.
func NewQuerySegmenter() *QuerySegmenter {
	return &QuerySegmenter{
		byFirst:     make(map[string][][]string),
		refs:        make(map[string]int),
		contributed: make(map[string][]string),
	}
}

// BuildLexicon replaces the lexicon with the phrases of docs.
func (s *QuerySegmenter) BuildLexicon(docs []domain.DocumentInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.byFirst = make(map[string][][]string)
	s.refs = make(map[string]int)
	s.contributed = make(map[string][]string, len(docs))
	for i := range docs {
		s.addLocked(docs[i])
	}
}

// AddDocument adds or refreshes the phrases of one document.
func (s *QuerySegmenter) AddDocument(info domain.DocumentInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(info.ID)
	s.addLocked(info)
}

// RemoveDocument drops the phrases only this document contributed.
func (s *QuerySegmenter) RemoveDocument(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(id)
}

// Len returns the number of distinct phrases.
func (s *QuerySegmenter) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.refs)
}

// HasPhrase reports whether text is a lexicon phrase.
func (s *QuerySegmenter) HasPhrase(text string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.refs[strings.Join(tokenize(text), " ")]
	return ok
}

func (s *QuerySegmenter) addLocked(info domain.DocumentInfo) {
	keys := make([]string, 0)
	seen := make(map[string]struct{})
	for _, candidate := range phraseCandidates(info) {
		words := tokenize(candidate)
		if len(words) < minPhraseWords {
			continue
		}
		key := strings.Join(words, " ")
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)

		s.refs[key]++
		if s.refs[key] == 1 {
			s.insertLocked(words)
		}
	}
	if len(keys) > 0 {
		s.contributed[info.ID] = keys
	}
}

func (s *QuerySegmenter) removeLocked(id string) {
	for _, key := range s.contributed[id] {
		s.refs[key]--
		if s.refs[key] > 0 {
			continue
		}
		delete(s.refs, key)

		words := strings.Split(key, " ")
		phrases := s.byFirst[words[0]]
		for i, p := range phrases {
			if strings.Join(p, " ") == key {
				phrases = append(phrases[:i], phrases[i+1:]...)
				break
			}
		}
		if len(phrases) == 0 {
			delete(s.byFirst, words[0])
		} else {
			s.byFirst[words[0]] = phrases
		}
	}
	delete(s.contributed, id)
}

func (s *QuerySegmenter) insertLocked(words []string) {
	phrases := append(s.byFirst[words[0]], words)
	sort.SliceStable(phrases, func(i, j int) bool {
		if len(phrases[i]) != len(phrases[j]) {
			return len(phrases[i]) > len(phrases[j])
		}
		return strings.Join(phrases[i], " ") < strings.Join(phrases[j], " ")
	})
	s.byFirst[words[0]] = phrases
}

// phraseCandidates lists the names a document contributes to the lexicon.
func phraseCandidates(info domain.DocumentInfo) []string {
	md := info.Metadata
	out := make([]string, 0, 1+len(md.Aliases)+len(md.Links)+len(md.Headings))
	out = append(out, info.DisplayTitle())
	out = append(out, md.Aliases...)
	for _, l := range md.Links {
		if l.DisplayText != "" {
			out = append(out, l.DisplayText)
		}
	}
	out = append(out, md.Headings...)
	return out
}

// Segment splits a query left to right, greedily taking the longest lexicon
// phrase that starts at each word.
func (s *QuerySegmenter) Segment(query string) domain.Segmentation {
	spans := wordSpans(query)
	seg := domain.Segmentation{
		Segments: make([]domain.Segment, 0, len(spans)),
		Terms:    make([]string, len(spans)),
	}
	for i, sp := range spans {
		seg.Terms[i] = sp.Word
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := 0; i < len(spans); {
		n := s.longestMatchLocked(seg.Terms[i:])
		if n >= minPhraseWords {
			seg.Segments = append(seg.Segments, domain.Segment{
				Text:   query[spans[i].Start:spans[i+n-1].End],
				Words:  append([]string(nil), seg.Terms[i:i+n]...),
				Phrase: true,
			})
			i += n
			continue
		}
		seg.Segments = append(seg.Segments, domain.Segment{
			Text:  query[spans[i].Start:spans[i].End],
			Words: []string{seg.Terms[i]},
		})
		i++
	}
	return seg
}

// longestMatchLocked returns the length of the longest phrase that prefixes
// words, or 0.
func (s *QuerySegmenter) longestMatchLocked(words []string) int {
outer:
	for _, phrase := range s.byFirst[words[0]] {
		if len(phrase) > len(words) {
			continue
		}
		for j := range phrase {
			if phrase[j] != words[j] {
				continue outer
			}
		}
		return len(phrase)
	}
	return 0
}
