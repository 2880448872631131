// Package document models the persisted output artifact for one resource:
// YAML frontmatter (title, description, canonical URL, content summary) plus
// a markdown body cleaned of scrape artifacts.
package document

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/chirag2653/website-to-skill-folder/internal/firecrawl"
)

// summaryWrapWidth is the word-wrap column for the summary block. The files
// are meant to be grepped and read raw, so long single-line summaries are
// avoided.
const summaryWrapWidth = 80

var (
	brTag   = regexp.MustCompile(`(?i)<br\s*/?>`)
	anyTag  = regexp.MustCompile(`<[^>]+>`)
	spaces  = regexp.MustCompile(`\s+`)
	capital = regexp.MustCompile(`[A-Z]`)
)

// Frontmatter is the searchable header of a document.
type Frontmatter struct {
	Title       string
	Description string
	URL         string
	Summary     string
}

// Document is one renderable output file.
type Document struct {
	Slug  string
	Front Frontmatter
	Body  string
}

// FromPage builds a Document from one batch scrape result. It returns false
// when the page carries no usable markdown body.
//
// Title and description prefer the page's own SEO metadata over the
// structured extraction: when a site ships meta tags, that copy is
// authoritative. Extraction output may carry HTML fragments from the source,
// so fields that came from the extractor are tag-stripped.
func FromPage(p firecrawl.Page, slug string) (Document, bool) {
	if strings.TrimSpace(p.Markdown) == "" {
		return Document{}, false
	}

	title := p.Metadata.Title
	if title == "" {
		title = StripTags(p.JSON.Title)
	}
	if title == "" {
		title = "Untitled"
	}

	description := p.Metadata.Description
	if description == "" {
		description = p.Metadata.OGDescription
	}
	if description == "" {
		description = StripTags(p.JSON.Description)
	}

	return Document{
		Slug: slug,
		Front: Frontmatter{
			Title:       title,
			Description: description,
			URL:         p.CanonicalURL(),
			Summary:     StripTags(p.JSON.Summary),
		},
		Body: CleanMarkdown(brTag.ReplaceAllString(p.Markdown, "\n")),
	}, true
}

// Filename is the document's name within the pages directory.
func (d Document) Filename() string {
	return d.Slug + ".md"
}

// Render serializes the document: YAML frontmatter between --- fences, blank
// line, body. The output is deterministic for a given Document, which is
// what makes re-applying the same batch result idempotent.
func (d Document) Render() ([]byte, error) {
	front := &yaml.Node{Kind: yaml.MappingNode}
	front.Content = append(front.Content,
		scalar("title", d.Front.Title, yaml.DoubleQuotedStyle)...)
	front.Content = append(front.Content,
		scalar("description", d.Front.Description, yaml.DoubleQuotedStyle)...)
	front.Content = append(front.Content,
		scalar("url", d.Front.URL, yaml.DoubleQuotedStyle)...)
	front.Content = append(front.Content,
		scalar("summary", Wrap(d.Front.Summary, summaryWrapWidth), yaml.LiteralStyle)...)

	var buf bytes.Buffer
	buf.WriteString("---\n")
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(front); err != nil {
		return nil, fmt.Errorf("encode frontmatter: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("close frontmatter encoder: %w", err)
	}
	buf.WriteString("---\n\n")
	buf.WriteString(d.Body)
	if !strings.HasSuffix(d.Body, "\n") {
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

func scalar(key, value string, style yaml.Style) []*yaml.Node {
	k := &yaml.Node{Kind: yaml.ScalarNode, Value: key}
	v := &yaml.Node{Kind: yaml.ScalarNode, Value: value, Style: style}
	if value == "" {
		// An empty literal block renders awkwardly; plain style is cleaner.
		v.Style = 0
	}
	return []*yaml.Node{k, v}
}

// StripTags removes HTML from extractor output, turning <br> into spaces to
// preserve word boundaries, then collapsing runs of whitespace.
func StripTags(text string) string {
	if text == "" {
		return text
	}
	text = brTag.ReplaceAllString(text, " ")
	text = anyTag.ReplaceAllString(text, "")
	return strings.TrimSpace(spaces.ReplaceAllString(text, " "))
}

// CleanMarkdown strips leading empty lines and obvious technical artifacts.
// Content quality is mostly the scraper's job (main-content extraction, tag
// exclusion); the only lines dropped here are concatenated icon-font or SVG
// class-name runs that are clearly not prose.
func CleanMarkdown(md string) string {
	lines := strings.Split(md, "\n")
	cleaned := make([]string, 0, len(lines))
	for _, line := range lines {
		stripped := strings.TrimSpace(line)
		if stripped == "" && len(cleaned) == 0 {
			continue
		}
		if isArtifactLine(stripped) {
			continue
		}
		cleaned = append(cleaned, line)
	}
	return strings.TrimSpace(strings.Join(cleaned, "\n"))
}

// isArtifactLine matches things like
// "Book-Open-1--Streamline-UltimatesvgCheck-Circle...": very long, no
// spaces, heavy on separators, camel-cased.
func isArtifactLine(stripped string) bool {
	if len(stripped) <= 100 || strings.Contains(stripped, " ") {
		return false
	}
	if strings.Count(stripped, "-") <= 10 && strings.Count(stripped, "_") <= 10 {
		return false
	}
	return capital.MatchString(stripped)
}

// Wrap word-wraps text to the given width, one line per slice entry joined
// by newlines. Existing line breaks are not preserved; the input is treated
// as one paragraph.
func Wrap(text string, width int) string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return ""
	}
	var lines []string
	line := words[0]
	for _, word := range words[1:] {
		if len(line)+1+len(word) > width {
			lines = append(lines, line)
			line = word
			continue
		}
		line += " " + word
	}
	lines = append(lines, line)
	return strings.Join(lines, "\n")
}
