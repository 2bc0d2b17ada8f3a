package services

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"go.uber.org/multierr"

	"github.com/custodia-labs/sercha-rank/internal/core/domain"
)

// filterPattern matches a `field:rest` token. The field starts with a letter.
var filterPattern = regexp.MustCompile(`^([A-Za-z][A-Za-z0-9_.-]*):(.*)$`)

// dateLayouts are tried in order when comparing dates.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006-01",
	"2006",
}

// ParsedQuery is a query split into free text and filters.
type ParsedQuery struct {
	// Residual is the query with all filter clauses removed.
	Residual string

	Filters []domain.Filter
}

// ParseQuery strips `field:value` clauses out of a query.
//
// Malformed clauses are dropped from both the residual and the filters; the
// returned error combines one domain.ErrInvalidFilter per clause and is
// informational only.
func ParseQuery(query string) (ParsedQuery, error) {
	var parsed ParsedQuery
	var errs error
	var residual []string

	for _, token := range splitQuery(query) {
		m := filterPattern.FindStringSubmatch(token)
		if m == nil || strings.HasPrefix(m[2], "//") {
			residual = append(residual, token)
			continue
		}

		f, err := parseFilter(m[1], m[2])
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%q: %w", token, err))
			continue
		}
		f.Raw = token
		parsed.Filters = append(parsed.Filters, f)
	}

	parsed.Residual = strings.Join(residual, " ")
	return parsed, errs
}

// splitQuery splits on whitespace outside double quotes.
func splitQuery(query string) []string {
	var tokens []string
	var b strings.Builder
	quoted := false
	for _, r := range query {
		switch {
		case r == '"':
			quoted = !quoted
			b.WriteRune(r)
		case unicode.IsSpace(r) && !quoted:
			if b.Len() > 0 {
				tokens = append(tokens, b.String())
				b.Reset()
			}
		default:
			b.WriteRune(r)
		}
	}
	if b.Len() > 0 {
		tokens = append(tokens, b.String())
	}
	return tokens
}

func parseFilter(field, rest string) (domain.Filter, error) {
	f := domain.Filter{Field: strings.ToLower(field), Op: domain.FilterEquals}
	for _, op := range []domain.FilterOp{
		domain.FilterGreaterEqual, domain.FilterLessEqual,
		domain.FilterGreater, domain.FilterLess,
		domain.FilterContains, domain.FilterNot,
	} {
		if strings.HasPrefix(rest, string(op)) {
			f.Op = op
			rest = rest[len(op):]
			break
		}
	}

	value, err := unquote(rest)
	if err != nil {
		return f, err
	}
	if strings.TrimSpace(value) == "" {
		return f, fmt.Errorf("empty value: %w", domain.ErrInvalidFilter)
	}
	f.Value = value
	return f, nil
}

func unquote(s string) (string, error) {
	if !strings.Contains(s, `"`) {
		return s, nil
	}
	if len(s) >= 2 && strings.HasPrefix(s, `"`) && strings.HasSuffix(s, `"`) &&
		!strings.Contains(s[1:len(s)-1], `"`) {
		return s[1 : len(s)-1], nil
	}
	return "", fmt.Errorf("unbalanced quotes: %w", domain.ErrInvalidFilter)
}

// MatchFilters reports whether a document satisfies every filter.
func MatchFilters(filters []domain.Filter, info domain.DocumentInfo) bool {
	for i := range filters {
		if !MatchFilter(filters[i], info) {
			return false
		}
	}
	return true
}

// MatchFilter evaluates one filter. Multi-valued fields match when any value
// does, except negation which requires that none does. A missing field
// satisfies only negation.
func MatchFilter(f domain.Filter, info domain.DocumentInfo) bool {
	values, ok := fieldValues(f.Field, info)
	if f.Op == domain.FilterNot {
		if !ok {
			return true
		}
		for _, v := range values {
			if strings.EqualFold(v, normalizeFilterValue(f)) {
				return false
			}
		}
		return true
	}
	if !ok {
		return false
	}

	want := normalizeFilterValue(f)
	for _, v := range values {
		switch f.Op {
		case domain.FilterEquals:
			if strings.EqualFold(v, want) {
				return true
			}
			// modified:2026-01-05 matches any time that day.
			if f.Field == "modified" && strings.HasPrefix(v, want) {
				return true
			}
		case domain.FilterContains:
			if strings.Contains(foldCase(v), foldCase(want)) {
				return true
			}
		default:
			if c, ok := compareValues(v, want); ok && satisfies(f.Op, c) {
				return true
			}
		}
	}
	return false
}

func normalizeFilterValue(f domain.Filter) string {
	if f.Field == "tag" || f.Field == "tags" {
		return strings.TrimPrefix(f.Value, "#")
	}
	return f.Value
}

func satisfies(op domain.FilterOp, cmp int) bool {
	switch op {
	case domain.FilterGreater:
		return cmp > 0
	case domain.FilterLess:
		return cmp < 0
	case domain.FilterGreaterEqual:
		return cmp >= 0
	case domain.FilterLessEqual:
		return cmp <= 0
	default:
		return false
	}
}

// compareValues compares numerically, then as dates, then as case-folded
// strings.
func compareValues(a, b string) (int, bool) {
	if x, err := strconv.ParseFloat(a, 64); err == nil {
		if y, err := strconv.ParseFloat(b, 64); err == nil {
			switch {
			case x < y:
				return -1, true
			case x > y:
				return 1, true
			default:
				return 0, true
			}
		}
	}
	if x, ok := parseDate(a); ok {
		if y, ok := parseDate(b); ok {
			return x.Compare(y), true
		}
	}
	return strings.Compare(foldCase(a), foldCase(b)), true
}

func parseDate(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// fieldValues returns the string values of a document field. ok is false
// when the document does not have the field.
func fieldValues(field string, info domain.DocumentInfo) ([]string, bool) {
	md := info.Metadata
	switch field {
	case "tag", "tags":
		return md.Tags.Sorted(), len(md.Tags) > 0
	case "title":
		return []string{info.DisplayTitle()}, true
	case "path", "id":
		return []string{info.ID}, true
	case "alias", "aliases":
		return md.Aliases, len(md.Aliases) > 0
	case "heading", "headings":
		return md.Headings, len(md.Headings) > 0
	case "modified":
		if info.ModifiedAt.IsZero() {
			return nil, false
		}
		return []string{info.ModifiedAt.UTC().Format(time.RFC3339)}, true
	case "size":
		return []string{strconv.FormatInt(info.Size, 10)}, true
	}

	for key, v := range md.Fields {
		if strings.EqualFold(key, field) {
			values := stringValues(v)
			return values, len(values) > 0
		}
	}
	return nil, false
}

// stringValues flattens a frontmatter value into strings.
func stringValues(v any) []string {
	switch x := v.(type) {
	case nil:
		return nil
	case string:
		return []string{x}
	case []string:
		return x
	case []any:
		var out []string
		for _, item := range x {
			out = append(out, stringValues(item)...)
		}
		return out
	case time.Time:
		return []string{x.UTC().Format(time.RFC3339)}
	case int:
		return []string{strconv.Itoa(x)}
	case int64:
		return []string{strconv.FormatInt(x, 10)}
	case float64:
		return []string{strconv.FormatFloat(x, 'f', -1, 64)}
	case bool:
		return []string{strconv.FormatBool(x)}
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return keys
	default:
		return []string{fmt.Sprint(x)}
	}
}
