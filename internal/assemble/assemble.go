// Package assemble renders the skill folder's index document (SKILL.md) from
// a fixed template and derives the one-line site description it needs.
package assemble

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"strings"
	"text/template"

	"github.com/chirag2653/website-to-skill-folder/internal/document"
	"github.com/chirag2653/website-to-skill-folder/internal/firecrawl"
	"github.com/chirag2653/website-to-skill-folder/internal/site"
	"github.com/chirag2653/website-to-skill-folder/internal/storage"
)

// IndexName is the file the index document is written to.
const IndexName = "SKILL.md"

// maxDescriptionLen bounds a description condensed out of a page summary.
const maxDescriptionLen = 250

//go:embed skill-md.template
var skillTemplate string

var tmpl = template.Must(template.New("skill-md").Parse(skillTemplate))

// Vars are the only substitutions the template receives. The template file
// is the single source of truth for SKILL.md content.
type Vars struct {
	Domain          string
	SkillName       string
	SiteDescription string
}

// Render produces the SKILL.md contents.
func Render(vars Vars) ([]byte, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, vars); err != nil {
		return nil, fmt.Errorf("render index template: %w", err)
	}
	return buf.Bytes(), nil
}

// Write renders the index document and stores it at the folder root.
func Write(ctx context.Context, store storage.Store, s site.Site, description string) error {
	data, err := Render(Vars{
		Domain:          s.Domain,
		SkillName:       s.SkillName,
		SiteDescription: description,
	})
	if err != nil {
		return err
	}
	if err := store.Put(ctx, IndexName, data); err != nil {
		return fmt.Errorf("write %s: %w", IndexName, err)
	}
	return nil
}

// DescribeSite derives the one-line site description with tiered fallback:
// a manual override wins, then homepage metadata, then a guess from page
// titles, then a generic placeholder.
func DescribeSite(pages map[string]firecrawl.Page, s site.Site, manual string) string {
	if d := strings.TrimSpace(manual); d != "" {
		return d
	}
	if home, ok := findHomepage(pages, s.Domain); ok {
		if d := describeFromHomepage(home); d != "" {
			return d
		}
	}
	if d := describeFromTitles(pages); d != "" {
		return d
	}
	return "a website at " + s.Domain
}

func findHomepage(pages map[string]firecrawl.Page, domain string) (firecrawl.Page, bool) {
	want := map[string]bool{
		"https://" + domain: true,
		"http://" + domain:  true,
	}
	for _, p := range pages {
		if want[strings.TrimRight(p.CanonicalURL(), "/")] {
			return p, true
		}
	}
	return firecrawl.Page{}, false
}

// describeFromHomepage prefers the extractor's description (already sized to
// a sentence or two), then a condensed extractor summary, then SEO metadata.
func describeFromHomepage(p firecrawl.Page) string {
	if d := strings.TrimSpace(document.StripTags(p.JSON.Description)); len(d) > 20 {
		return d
	}
	if d := condenseSummary(document.StripTags(p.JSON.Summary)); d != "" {
		return d
	}
	if d := strings.TrimSpace(p.Metadata.Description); len(d) > 20 {
		return d
	}
	if d := strings.TrimSpace(p.Metadata.OGDescription); len(d) > 20 {
		return d
	}
	return ""
}

// condenseSummary squeezes a multi-sentence page summary into a short site
// description. Summaries describe page content rather than the site itself,
// so sentences about page structure are filtered out first.
func condenseSummary(summary string) string {
	summary = strings.TrimSpace(summary)
	if len(summary) <= 50 {
		return ""
	}
	sentences := splitSentences(summary)
	kept := make([]string, 0, len(sentences))
	for _, sentence := range sentences {
		if isPageStructureSentence(sentence) {
			continue
		}
		kept = append(kept, sentence)
	}
	if len(kept) == 0 {
		kept = sentences
	}
	if len(kept) > 3 {
		kept = kept[:3]
	}

	var out string
	for _, sentence := range kept {
		candidate := out
		if candidate != "" {
			candidate += " "
		}
		candidate += sentence + "."
		if len(candidate) > maxDescriptionLen {
			break
		}
		out = candidate
	}
	return out
}

var structurePhrases = []string{
	"this page", "the page", "additional resources", "includes links",
	"provides links", "contains links", "links to", "page also",
}

func isPageStructureSentence(sentence string) bool {
	lower := strings.ToLower(sentence)
	for _, phrase := range structurePhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

func splitSentences(text string) []string {
	parts := strings.Split(text, ". ")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSuffix(strings.TrimSpace(part), ".")
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// titleHints maps title keywords to a category description, checked in order.
var titleHints = []struct {
	terms []string
	desc  string
}{
	{[]string{"api", "reference", "documentation", "docs", "guide"}, "API documentation and developer resources"},
	{[]string{"service", "treatment", "procedure", "services"}, "Service-based business"},
	{[]string{"doctor", "surgeon", "clinic", "medical", "healthcare", "patient"}, "Medical practice or healthcare provider"},
	{[]string{"product", "feature", "saas", "platform", "software"}, "Product or SaaS platform"},
	{[]string{"portfolio", "work", "projects", "agency", "design"}, "Creative agency or service provider"},
}

func describeFromTitles(pages map[string]firecrawl.Page) string {
	var titles []string
	for _, p := range pages {
		title := p.JSON.Title
		if title == "" {
			title = p.Metadata.Title
		}
		if title != "" {
			titles = append(titles, strings.ToLower(title))
		}
		if len(titles) >= 20 {
			break
		}
	}
	all := strings.Join(titles, " ")
	for _, hint := range titleHints {
		for _, term := range hint.terms {
			if strings.Contains(all, term) {
				return hint.desc
			}
		}
	}
	return ""
}
