package firecrawl

import (
	_ "embed"
	"encoding/json"
)

// extractPrompt tells the remote extraction model what to produce. The
// summary field is the one that matters for search quality: it must be a
// keyword-rich content manifest, not a recap, so literal keyword matching
// finds the page under term variations.
const extractPrompt = `Extract structured metadata from this web page. This metadata will serve ` +
	`as frontmatter in a reference file that AI agents search through using ` +
	`literal keyword matching to find relevant pages.

IMPORTANT: Return ONLY plain text. Do NOT include any HTML tags, markdown ` +
	`syntax, or formatting codes in your extracted values. Convert HTML tags ` +
	`like <br> to spaces or newlines as appropriate.

The summary field is critical for search quality. It must:
1. Describe WHAT INFORMATION IS ON THIS PAGE (content manifest, not recap)
2. Be keyword-rich with multiple term variations for literal matching
3. Include synonyms, formal/informal terms, and related concepts
4. Mention specific searchable terms users might use

For example, if a page covers 'pricing', the summary should mention ` +
	`'pricing', 'price', 'cost', 'fees', 'rates', 'how much', 'payment' ` +
	`so searches for any of these terms will match.

If a page covers 'rhinoplasty', mention both 'rhinoplasty' and 'nose job'. ` +
	`If a page covers 'contact', mention 'contact', 'reach', 'phone', 'email', ` +
	`'address', 'get in touch', 'location'.

Use 3-5 sentences. Be specific about topics, data points, and unique ` +
	`content. An AI agent reading only the summary should be able to decide ` +
	`whether this page is relevant to their search query.`

//go:embed extract_schema.json
var extractSchemaJSON []byte

// excludedTags strips navigation chrome the scrape should never carry.
var excludedTags = []string{
	"nav", "aside", "header", "footer", "sidebar", "menu",
	"navigation", "filter", "widget", "widget-area", "sidebar-widget",
}

func extractSchema() map[string]any {
	var schema map[string]any
	// The embedded schema is part of the build; a decode failure is a
	// programming error, not a runtime condition.
	if err := json.Unmarshal(extractSchemaJSON, &schema); err != nil {
		panic(err)
	}
	return schema
}
