// Package post holds the record type shared by the ingestion pipeline and the
// dedup store, and the content key derivation used to identify records.
package post

import (
	"encoding/hex"

	"github.com/minio/sha256-simd"
)

// Post is a single discussion topic discovered in the feed.
//
// ID is always ContentKey(URL), and URL is always the canonical form of the
// topic locator. Published is only set once the post has been published
// upstream; after that a record is never modified apart from metadata refresh.
type Post struct {
	ID        string        `json:"id"`
	Title     string        `json:"title"`
	URL       string        `json:"url"`
	Category  string        `json:"topic_category"`
	Published *PublishedRef `json:"published,omitempty"`
}

// PublishedRef points at the status which announced a Post.
type PublishedRef struct {
	RemoteID  string `json:"status_id"`
	RemoteURL string `json:"status_url"`
	RemoteURI string `json:"status_uri"`
}

// IsPublished reports whether the post has a remote reference.
func (p *Post) IsPublished() bool {
	return p.Published != nil && p.Published.RemoteID != ""
}

// ContentKey derives the fixed-length hex key for a canonical URL.
//
// Callers must canonicalize first: two locators which only differ by slug text
// hash to different keys otherwise.
func ContentKey(canonicalURL string) string {
	sum := sha256.Sum256([]byte(canonicalURL))
	return hex.EncodeToString(sum[:])
}

// TemplateData is the field set consumed by the discuss_post template.
func (p *Post) TemplateData() map[string]any {
	return map[string]any{
		"id":             p.ID,
		"title":          p.Title,
		"url":            p.URL,
		"topic_category": p.Category,
	}
}
