package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"unicode"

	"github.com/custodia-labs/sercha-rank/internal/core/domain"
	"github.com/custodia-labs/sercha-rank/internal/core/ports/driven"
)

// Column weights for bm25(): document_id, title, content, tags.
const bm25Weights = "0.0, 5.0, 1.0, 2.0"

// SearchEngine is the keyword source, an FTS5 index ranked by BM25.
type SearchEngine struct {
	store *Store
}

var _ driven.SearchEngine = (*SearchEngine)(nil)

// Index adds or replaces a document.
func (e *SearchEngine) Index(ctx context.Context, doc domain.Document) error {
	return e.store.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM documents_fts WHERE document_id = ?", doc.ID); err != nil {
			return fmt.Errorf("removing %s from keyword index: %w", doc.ID, err)
		}
		tags := strings.Join(doc.Metadata.Tags.Sorted(), " ")
		title := doc.DisplayTitle()
		if len(doc.Metadata.Aliases) > 0 {
			title += " " + strings.Join(doc.Metadata.Aliases, " ")
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO documents_fts (document_id, title, content, tags) VALUES (?, ?, ?, ?)",
			doc.ID, title, doc.Content, tags); err != nil {
			return fmt.Errorf("indexing %s: %w", doc.ID, err)
		}
		return nil
	})
}

// Delete removes a document. Unknown IDs are ignored.
func (e *SearchEngine) Delete(ctx context.Context, documentID string) error {
	if _, err := e.store.db.ExecContext(ctx, "DELETE FROM documents_fts WHERE document_id = ?", documentID); err != nil {
		return fmt.Errorf("removing %s from keyword index: %w", documentID, err)
	}
	return nil
}

// Search returns documents containing every query term, best first.
// Scores are negated BM25 values, so higher is better.
func (e *SearchEngine) Search(ctx context.Context, query string, limit int) ([]driven.SearchHit, error) {
	terms := queryTerms(query)
	if len(terms) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := e.store.db.QueryContext(ctx, `
		SELECT document_id, -bm25(documents_fts, `+bm25Weights+`) AS score,
		       snippet(documents_fts, 2, '', '', '…', 12)
		FROM documents_fts
		WHERE documents_fts MATCH ?
		ORDER BY score DESC, document_id
		LIMIT ?
	`, matchExpression(terms), limit)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}
	defer rows.Close()

	var hits []driven.SearchHit //nolint:prealloc // size unknown from query
	for rows.Next() {
		var hit driven.SearchHit
		if err := rows.Scan(&hit.DocumentID, &hit.Score, &hit.Snippet); err != nil {
			return nil, fmt.Errorf("scanning keyword hit: %w", err)
		}
		hit.MatchedTerms = terms
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating keyword hits: %w", err)
	}
	return hits, nil
}

// Count returns the number of indexed documents.
func (e *SearchEngine) Count(ctx context.Context) (int, error) {
	var n int
	if err := e.store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents_fts").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting keyword index: %w", err)
	}
	return n, nil
}

// Close is a no-op; the owning Store closes the database.
func (e *SearchEngine) Close() error {
	return nil
}

// queryTerms splits a query into lower-cased letter and digit runs.
func queryTerms(query string) []string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]struct{}, len(fields))
	terms := fields[:0]
	for _, f := range fields {
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		terms = append(terms, f)
	}
	return terms
}

// matchExpression quotes every term so FTS5 operators in user input are
// treated as text. Adjacent strings are ANDed.
func matchExpression(terms []string) string {
	quoted := make([]string, len(terms))
	for i, t := range terms {
		quoted[i] = `"` + strings.ReplaceAll(t, `"`, `""`) + `"`
	}
	return strings.Join(quoted, " ")
}
