package firecrawl

// mapRequest is the discovery request payload for POST /v1/map.
type mapRequest struct {
	URL                   string `json:"url"`
	IncludeSubdomains     bool   `json:"includeSubdomains"`
	IgnoreQueryParameters bool   `json:"ignoreQueryParameters"`
	Limit                 int    `json:"limit"`
	IgnoreCache           bool   `json:"ignoreCache"`
}

type mapResponse struct {
	Success bool     `json:"success"`
	Links   []string `json:"links"`
}

// jsonFormat asks the scrape job for structured extraction alongside markdown.
type jsonFormat struct {
	Type   string         `json:"type"`
	Prompt string         `json:"prompt"`
	Schema map[string]any `json:"schema"`
}

type batchSubmitRequest struct {
	URLs               []string `json:"urls"`
	Formats            []any    `json:"formats"`
	OnlyMainContent    bool     `json:"onlyMainContent"`
	ExcludeTags        []string `json:"excludeTags"`
	RemoveBase64Images bool     `json:"removeBase64Images"`
	BlockAds           bool     `json:"blockAds"`
}

type batchSubmitResponse struct {
	Success bool   `json:"success"`
	ID      string `json:"id"`
}

// Remote batch job status values.
const (
	JobStatusScraping  = "scraping"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
	JobStatusCancelled = "cancelled"
)

// BatchStatus is one page of the poll response for a batch scrape job.
type BatchStatus struct {
	Status      string `json:"status"`
	Completed   int    `json:"completed"`
	Total       int    `json:"total"`
	CreditsUsed int    `json:"creditsUsed"`
	// Next is the continuation URL for further result pages, empty when the
	// provider has no more pages to deliver.
	Next string `json:"next"`
	Data []Page `json:"data"`
}

// BatchPage is a continuation page of batch results.
type BatchPage struct {
	Next string `json:"next"`
	Data []Page `json:"data"`
}

// Page is one per-identifier scrape result.
type Page struct {
	Markdown string       `json:"markdown"`
	JSON     Extract      `json:"json"`
	Metadata PageMetadata `json:"metadata"`
}

// Extract holds the structured fields the remote LLM extraction produced.
type Extract struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Summary     string `json:"summary"`
}

// PageMetadata carries page metadata scraped from the source document.
type PageMetadata struct {
	Title         string `json:"title"`
	Description   string `json:"description"`
	OGDescription string `json:"ogDescription"`
	OGURL         string `json:"ogUrl"`
	SourceURL     string `json:"sourceURL"`
}

// CanonicalURL returns the locator to publish for the page: the og:url
// signal from page metadata when present, otherwise the source URL.
func (p Page) CanonicalURL() string {
	if p.Metadata.OGURL != "" {
		return p.Metadata.OGURL
	}
	return p.Metadata.SourceURL
}
