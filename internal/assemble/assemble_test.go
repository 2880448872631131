package assemble

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chirag2653/website-to-skill-folder/internal/firecrawl"
	"github.com/chirag2653/website-to-skill-folder/internal/site"
	"github.com/chirag2653/website-to-skill-folder/internal/storage/memory"
)

func exampleSite() site.Site {
	return site.Site{
		Domain:    "example.com",
		RootURL:   "https://example.com",
		SkillName: "example-com-website-search-skill",
	}
}

func homepage(jsonDesc, summary, metaDesc string) firecrawl.Page {
	return firecrawl.Page{
		Markdown: "# Home",
		JSON:     firecrawl.Extract{Description: jsonDesc, Summary: summary},
		Metadata: firecrawl.PageMetadata{
			Description: metaDesc,
			SourceURL:   "https://example.com/",
		},
	}
}

func TestRenderSubstitutesVars(t *testing.T) {
	out, err := Render(Vars{
		Domain:          "example.com",
		SkillName:       "example-com-website-search-skill",
		SiteDescription: "A demo site.",
	})
	require.NoError(t, err)

	text := string(out)
	assert.Contains(t, text, "name: example-com-website-search-skill")
	assert.Contains(t, text, "# example.com website search")
	assert.Contains(t, text, "A demo site.")
	assert.NotContains(t, text, "{{")
}

func TestWriteStoresIndex(t *testing.T) {
	store := memory.New()
	err := Write(context.Background(), store, exampleSite(), "A demo site.")
	require.NoError(t, err)

	data, ok := store.Get(IndexName)
	require.True(t, ok)
	assert.Contains(t, string(data), "example.com")
}

func TestDescribeSiteManualOverrideWins(t *testing.T) {
	pages := map[string]firecrawl.Page{
		"https://example.com/": homepage("Extracted description of the site.", "", ""),
	}
	got := DescribeSite(pages, exampleSite(), "  Manual copy.  ")
	assert.Equal(t, "Manual copy.", got)
}

func TestDescribeSiteUsesHomepageExtraction(t *testing.T) {
	pages := map[string]firecrawl.Page{
		"https://example.com/": homepage("Extracted description of the site.", "", ""),
		"https://example.com/other": {
			Metadata: firecrawl.PageMetadata{SourceURL: "https://example.com/other"},
		},
	}
	got := DescribeSite(pages, exampleSite(), "")
	assert.Equal(t, "Extracted description of the site.", got)
}

func TestDescribeSiteCondensesSummary(t *testing.T) {
	summary := "Acme sells industrial fasteners to aerospace manufacturers. " +
		"The company operates from three warehouses across Europe. " +
		"This page also includes links to additional resources and contact forms."
	pages := map[string]firecrawl.Page{
		"https://example.com/": homepage("", summary, ""),
	}

	got := DescribeSite(pages, exampleSite(), "")
	assert.Contains(t, got, "Acme sells industrial fasteners")
	assert.NotContains(t, got, "links")
	assert.LessOrEqual(t, len(got), 250)
}

func TestDescribeSiteFallsBackToMetadata(t *testing.T) {
	pages := map[string]firecrawl.Page{
		"https://example.com/": homepage("", "", "Meta description of the site."),
	}
	got := DescribeSite(pages, exampleSite(), "")
	assert.Equal(t, "Meta description of the site.", got)
}

func TestDescribeSiteTitleHeuristics(t *testing.T) {
	pages := map[string]firecrawl.Page{
		"https://example.com/docs": {
			JSON:     firecrawl.Extract{Title: "API Reference"},
			Metadata: firecrawl.PageMetadata{SourceURL: "https://example.com/docs"},
		},
	}
	got := DescribeSite(pages, exampleSite(), "")
	assert.Equal(t, "API documentation and developer resources", got)
}

func TestDescribeSiteGenericFallback(t *testing.T) {
	got := DescribeSite(nil, exampleSite(), "")
	assert.Equal(t, "a website at example.com", got)
}

func TestTemplateIsValidYAMLFrontmatter(t *testing.T) {
	out, err := Render(Vars{
		Domain:          "example.com",
		SkillName:       "example-com-website-search-skill",
		SiteDescription: "A demo site.",
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(out), "---\n"))
}
