package discuss

import (
	"fmt"
	"net/url"
	"regexp"

	"github.com/PuerkitoBio/purell"
)

// matches a topic path with a non-numeric slug segment in front of the numeric
// topic id. All-digit segments are left alone: "/t/<id>/<post>" must keep its
// post number.
var topicSlugRegex = regexp.MustCompile(`/t/[^/]*[^/0-9][^/]*/([0-9]+)`)

const canonicalFlags = purell.FlagsSafe | purell.FlagRemoveFragment | purell.FlagRemoveDuplicateSlashes | purell.FlagRemoveTrailingSlash

// CanonicalURL normalizes a topic locator so that two URLs which only differ
// in slug text map to the same string: "/t/<slug>/123" becomes "/t/123".
// Applying it to its own output is a no-op.
func CanonicalURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parsing topic URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("topic URL is not absolute: %q", raw)
	}
	clean := purell.NormalizeURL(u, canonicalFlags)
	return topicSlugRegex.ReplaceAllString(clean, "/t/$1"), nil
}

// resolves a possibly-relative href against the page it was found on
func resolveURL(base, href string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	h, err := url.Parse(href)
	if err != nil {
		return "", err
	}
	return b.ResolveReference(h).String(), nil
}
