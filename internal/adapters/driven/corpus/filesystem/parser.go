package filesystem

import (
	"bytes"
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"gopkg.in/yaml.v3"

	"github.com/custodia-labs/sercha-rank/internal/core/domain"
)

var (
	// [[target]], [[target|display]], [[target#heading]] and embeds ![[target]].
	wikilinkPattern = regexp.MustCompile(`!?\[\[([^\[\]|]+)(?:\|([^\[\]]*))?\]\]`)

	// #tag at a word boundary. Tags may nest with '/'.
	inlineTagPattern = regexp.MustCompile(`(?:^|\s)#([\p{L}\p{N}_\-/]+)`)

	frontmatterDelim = []byte("---")
)

// parser turns markdown files into corpus documents.
type parser struct {
	md goldmark.Markdown
}

func newParser() *parser {
	return &parser{md: goldmark.New()}
}

// Parse builds a document from a file's raw bytes.
// The title comes from the frontmatter title field, then the first level-1
// heading; otherwise it is left empty and the file name is displayed.
func (p *parser) Parse(id string, raw []byte, modTime time.Time) (*domain.Document, error) {
	front, body, err := splitFrontmatter(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", id, err)
	}

	meta := domain.NewMetadata()
	title := applyFrontmatter(front, &meta)

	w := &markdownWalker{source: body, dir: path.Dir(id), meta: &meta}
	root := p.md.Parser().Parse(text.NewReader(body))
	if err := ast.Walk(root, w.visit); err != nil {
		return nil, fmt.Errorf("%s: walk markdown: %w", id, err)
	}
	if title == "" {
		title = w.firstH1
	}

	return &domain.Document{
		DocumentInfo: domain.DocumentInfo{
			ID:         id,
			Title:      title,
			ModifiedAt: modTime,
			Size:       int64(len(raw)),
			Metadata:   meta,
		},
		Content: strings.Join(w.blocks, "\n\n"),
	}, nil
}

// splitFrontmatter separates a leading YAML block delimited by "---" lines.
func splitFrontmatter(raw []byte) (map[string]any, []byte, error) {
	raw = bytes.TrimPrefix(raw, []byte("\ufeff"))
	if !bytes.HasPrefix(raw, frontmatterDelim) {
		return nil, raw, nil
	}
	rest := raw[len(frontmatterDelim):]
	nl := bytes.IndexByte(rest, '\n')
	if nl < 0 || len(bytes.TrimSpace(rest[:nl])) != 0 {
		return nil, raw, nil
	}
	rest = rest[nl+1:]

	end := bytes.Index(rest, append([]byte("\n"), frontmatterDelim...))
	var block []byte
	switch {
	case bytes.HasPrefix(rest, frontmatterDelim):
		block, rest = nil, rest[len(frontmatterDelim):]
	case end >= 0:
		block, rest = rest[:end], rest[end+1+len(frontmatterDelim):]
	default:
		// Unterminated block: treat the whole file as body.
		return nil, raw, nil
	}
	if nl := bytes.IndexByte(rest, '\n'); nl >= 0 {
		rest = rest[nl+1:]
	} else {
		rest = nil
	}

	front := make(map[string]any)
	if err := yaml.Unmarshal(block, &front); err != nil {
		return nil, nil, fmt.Errorf("parse frontmatter: %w", err)
	}
	return front, rest, nil
}

// applyFrontmatter copies tags and aliases into meta, stores the remaining
// fields and returns the title field.
func applyFrontmatter(front map[string]any, meta *domain.Metadata) string {
	var title string
	for key, value := range front {
		switch strings.ToLower(key) {
		case "title":
			title, _ = value.(string)
		case "tags", "tag":
			for _, tag := range stringList(value) {
				meta.Tags.Add(strings.TrimPrefix(tag, "#"))
			}
		case "aliases", "alias":
			meta.Aliases = append(meta.Aliases, stringList(value)...)
		default:
			meta.Fields[key] = value
		}
	}
	return strings.TrimSpace(title)
}

// stringList accepts a scalar, a comma-separated string or a YAML sequence.
func stringList(v any) []string {
	var out []string
	add := func(s string) {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	switch x := v.(type) {
	case string:
		for _, part := range strings.Split(x, ",") {
			add(part)
		}
	case []any:
		for _, item := range x {
			if s, ok := item.(string); ok {
				add(s)
			} else if item != nil {
				add(fmt.Sprint(item))
			}
		}
	case nil:
	default:
		add(fmt.Sprint(x))
	}
	return out
}

// markdownWalker collects plain text blocks, headings, links and inline tags.
type markdownWalker struct {
	source  []byte
	dir     string
	meta    *domain.Metadata
	blocks  []string
	firstH1 string
}

func (w *markdownWalker) visit(node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}

	switch n := node.(type) {
	case *ast.Heading:
		heading := w.inlineText(n)
		if heading == "" {
			return ast.WalkSkipChildren, nil
		}
		w.meta.Headings = append(w.meta.Headings, heading)
		if n.Level == 1 && w.firstH1 == "" {
			w.firstH1 = heading
		}
		w.blocks = append(w.blocks, heading)
		return ast.WalkSkipChildren, nil

	case *ast.Paragraph, *ast.TextBlock:
		if block := w.inlineText(n); block != "" {
			w.blocks = append(w.blocks, block)
		}
		return ast.WalkSkipChildren, nil

	case *ast.FencedCodeBlock, *ast.CodeBlock:
		if block := strings.TrimSpace(w.lines(n)); block != "" {
			w.blocks = append(w.blocks, block)
		}
		return ast.WalkSkipChildren, nil

	case *ast.HTMLBlock:
		return ast.WalkSkipChildren, nil
	}
	return ast.WalkContinue, nil
}

// inlineText renders the inline children of a block as plain text. Markdown
// links, wikilinks and inline tags found on the way are recorded.
func (w *markdownWalker) inlineText(block ast.Node) string {
	var buf strings.Builder
	_ = ast.Walk(block, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering || n == block {
			return ast.WalkContinue, nil
		}
		switch v := n.(type) {
		case *ast.Text:
			buf.Write(v.Segment.Value(w.source))
			if v.SoftLineBreak() || v.HardLineBreak() {
				buf.WriteByte(' ')
			}
		case *ast.String:
			buf.Write(v.Value)
		case *ast.Link:
			label := w.inlineText(v)
			w.addMarkdownLink(string(v.Destination), label)
			buf.WriteString(label)
			return ast.WalkSkipChildren, nil
		case *ast.Image, *ast.RawHTML:
			return ast.WalkSkipChildren, nil
		case *ast.AutoLink:
			buf.Write(v.Label(w.source))
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})

	plain := wikilinkPattern.ReplaceAllStringFunc(buf.String(), func(match string) string {
		m := wikilinkPattern.FindStringSubmatch(match)
		target, display := strings.TrimSpace(m[1]), strings.TrimSpace(m[2])
		w.meta.Links = append(w.meta.Links, domain.Link{Target: target, DisplayText: display})
		if display != "" {
			return display
		}
		return target
	})

	for _, m := range inlineTagPattern.FindAllStringSubmatch(plain, -1) {
		if tag := strings.Trim(m[1], "/"); hasLetter(tag) {
			w.meta.Tags.Add(tag)
		}
	}
	return strings.TrimSpace(plain)
}

func (w *markdownWalker) lines(n ast.Node) string {
	var buf strings.Builder
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		buf.Write(seg.Value(w.source))
	}
	return buf.String()
}

// addMarkdownLink records a local link. Relative destinations are resolved
// against the linking document's folder.
func (w *markdownWalker) addMarkdownLink(dest, label string) {
	if dest == "" || strings.HasPrefix(dest, "#") || strings.Contains(dest, "://") || strings.HasPrefix(dest, "mailto:") {
		return
	}
	if unescaped, err := url.PathUnescape(dest); err == nil {
		dest = unescaped
	}
	if !strings.HasPrefix(dest, "/") && w.dir != "." {
		dest = path.Join(w.dir, dest)
	}
	w.meta.Links = append(w.meta.Links, domain.Link{Target: path.Clean(dest), DisplayText: label})
}

func hasLetter(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			if r != '_' && r != '-' && r != '/' {
				return true
			}
		}
	}
	return false
}
