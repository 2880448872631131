// Package slug maps resource locators to stable, filesystem-safe names.
package slug

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// DefaultMaxLen bounds slug length so that output paths stay clear of the
// Windows MAX_PATH limit even for long blog and docs URLs.
const DefaultMaxLen = 80

var nonSlugChars = regexp.MustCompile(`[^a-z0-9\-]`)

// CollisionError reports two distinct identifiers normalizing to one slug.
// It is fatal for the run: two resources cannot share a document file.
type CollisionError struct {
	Slug string
	A    string
	B    string
}

func (e *CollisionError) Error() string {
	return fmt.Sprintf("slug collision: %q and %q both normalize to %q", e.A, e.B, e.Slug)
}

// FromURL derives the slug for a resource locator. It is a pure function of
// the identifier: the URL path with slashes flattened to double hyphens,
// lowercased, non-slug characters removed. The root path maps to "index".
// Slugs longer than maxLen are truncated and suffixed with an 8-hex-char hash
// of the full URL, which keeps truncated slugs unique.
func FromURL(rawURL string, maxLen int) string {
	if maxLen <= 0 {
		maxLen = DefaultMaxLen
	}
	path := ""
	if u, err := url.Parse(strings.TrimRight(rawURL, "/")); err == nil {
		path = strings.Trim(u.Path, "/")
	}
	if path == "" {
		return "index"
	}
	s := strings.ReplaceAll(path, "/", "--")
	s = nonSlugChars.ReplaceAllString(strings.ToLower(s), "")
	if s == "" {
		return "index"
	}
	if len(s) > maxLen {
		sum := sha256.Sum256([]byte(rawURL))
		s = s[:maxLen] + "-" + hex.EncodeToString(sum[:])[:8]
	}
	return s
}

// Assign computes slugs for every identifier and fails on the first collision.
// The returned map is keyed by identifier.
func Assign(identifiers []string, maxLen int) (map[string]string, error) {
	slugs := make(map[string]string, len(identifiers))
	owners := make(map[string]string, len(identifiers))
	for _, id := range identifiers {
		s := FromURL(id, maxLen)
		if prev, ok := owners[s]; ok && prev != id {
			return nil, &CollisionError{Slug: s, A: prev, B: id}
		}
		owners[s] = id
		slugs[id] = s
	}
	return slugs, nil
}
