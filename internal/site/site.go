// Package site resolves user input into the canonical site identity that keys
// everything else: run state, the discovery request, and the output folder.
package site

import (
	"fmt"
	"net/url"
	"strings"
)

// SkillSuffix is appended to the flattened domain to form the skill name.
const SkillSuffix = "-website-search-skill"

// Site is the canonical identity of one website.
//
// Subdomains are distinct sites: example.com and blog.example.com produce two
// independent skill folders. "www." is the only prefix that gets stripped.
type Site struct {
	// Domain is the lowercased host with www., port, and trailing dot removed.
	Domain string
	// RootURL is https://{Domain}, used as the discovery request locator.
	RootURL string
	// SkillName is the domain with dots flattened to hyphens plus SkillSuffix.
	SkillName string
}

// Resolve normalizes any URL-like input into a Site.
//
// It accepts real-world input from UI text fields: bare domains, full page
// URLs, stray whitespace, and trailing copy-paste punctuation. Any scheme is
// accepted but https is always used. Multi-word input and strings without a
// TLD are rejected.
func Resolve(raw string) (Site, error) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return Site{}, fmt.Errorf("site locator is empty: pass a website URL or domain, e.g. example.com")
	}

	// URLs never carry unencoded spaces in the host portion.
	hostPart := v
	if i := strings.Index(hostPart, "//"); i >= 0 {
		hostPart = hostPart[i+2:]
	}
	if i := strings.IndexAny(hostPart, "/"); i >= 0 {
		hostPart = hostPart[:i]
	}
	if strings.Contains(hostPart, " ") {
		return Site{}, fmt.Errorf("%q looks like text, not a URL", raw)
	}

	v = strings.TrimRight(v, ".,;:!? ")
	if i := strings.Index(v, "://"); i >= 0 {
		v = "https://" + v[i+3:]
	} else {
		v = "https://" + v
	}

	u, err := url.Parse(v)
	if err != nil {
		return Site{}, fmt.Errorf("parse site locator %q: %w", raw, err)
	}
	host := strings.ToLower(u.Hostname())
	host = strings.TrimSuffix(host, ".")
	host = strings.TrimPrefix(host, "www.")
	if host == "" {
		return Site{}, fmt.Errorf("could not parse a domain from %q", raw)
	}
	if !strings.Contains(host, ".") {
		return Site{}, fmt.Errorf("%q is not a valid domain (no TLD)", host)
	}

	return Site{
		Domain:    host,
		RootURL:   "https://" + host,
		SkillName: strings.ReplaceAll(host, ".", "-") + SkillSuffix,
	}, nil
}
