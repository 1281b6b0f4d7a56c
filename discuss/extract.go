// Package discuss extracts topic records from the server-rendered pages of a
// Discourse forum (such as discuss.python.org).
//
// Pages are parsed with golang.org/x/net/html and queried with CSS selectors.
// Records leave this package in canonical form: the URL has had its slug
// collapsed and the ID is the content key of that canonical URL.
package discuss

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/e-dreyer/discussbot/post"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

var (
	selTopicListLink = cascadia.MustCompile("tr.topic-list-item a.title")
	selTopicTitle    = cascadia.MustCompile("#topic-title")
	selAnchor        = cascadia.MustCompile("a")
	selCategoryName  = cascadia.MustCompile("span.category-name")
	selCategoryCell  = cascadia.MustCompile("td.category")
	selSpan          = cascadia.MustCompile("span")
	selTagBox        = cascadia.MustCompile("div.tag-box")
)

// Listing is a category or tag entry from the forum's index pages.
type Listing struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Hashtag string `json:"hashtag"`
}

func parseDocument(body []byte) (*html.Node, error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parsing HTML: %w", err)
	}
	return doc, nil
}

// ParseTopicList returns the absolute URLs of every topic linked from a topic
// list page (eg, "/latest"), in page order. Relative links are resolved
// against base. URLs are returned as found, not canonicalized.
func ParseTopicList(base string, body []byte) ([]string, error) {
	doc, err := parseDocument(body)
	if err != nil {
		return nil, err
	}
	out := []string{}
	for _, a := range selTopicListLink.MatchAll(doc) {
		href := attr(a, "href")
		if href == "" {
			continue
		}
		u, err := resolveURL(base, href)
		if err != nil {
			continue
		}
		out = append(out, u)
	}
	return out, nil
}

// ParseTopic builds a Post from a topic page fetched from rawURL.
//
// Returns an *ExtractionError if the title container, the title, or the
// category are missing.
func ParseTopic(rawURL string, body []byte) (*post.Post, error) {
	canonical, err := CanonicalURL(rawURL)
	if err != nil {
		return nil, err
	}
	doc, err := parseDocument(body)
	if err != nil {
		return nil, err
	}

	container := selTopicTitle.MatchFirst(doc)
	if container == nil {
		return nil, &ExtractionError{URL: rawURL, Field: "topic-title"}
	}

	var title string
	if a := selAnchor.MatchFirst(container); a != nil {
		title = textContent(a)
	}
	if title == "" {
		return nil, &ExtractionError{URL: rawURL, Field: "title"}
	}

	var category string
	if span := selCategoryName.MatchFirst(container); span != nil {
		category = PascalCase(textContent(span))
	}
	if category == "" {
		return nil, &ExtractionError{URL: rawURL, Field: "category"}
	}

	return &post.Post{
		ID:       post.ContentKey(canonical),
		Title:    title,
		URL:      canonical,
		Category: category,
	}, nil
}

// ParseCategories lists the categories on the forum's "/categories" page.
func ParseCategories(base string, body []byte) ([]Listing, error) {
	doc, err := parseDocument(body)
	if err != nil {
		return nil, err
	}
	out := []Listing{}
	for _, cell := range selCategoryCell.MatchAll(doc) {
		span := selSpan.MatchFirst(cell)
		a := selAnchor.MatchFirst(cell)
		if span == nil || a == nil {
			continue
		}
		l, ok := newListing(base, textContent(span), attr(a, "href"))
		if ok {
			out = append(out, l)
		}
	}
	return out, nil
}

// ParseTags lists the tags on the forum's "/tags" page.
func ParseTags(base string, body []byte) ([]Listing, error) {
	doc, err := parseDocument(body)
	if err != nil {
		return nil, err
	}
	out := []Listing{}
	for _, box := range selTagBox.MatchAll(doc) {
		a := selAnchor.MatchFirst(box)
		if a == nil {
			continue
		}
		l, ok := newListing(base, textContent(a), attr(a, "href"))
		if ok {
			out = append(out, l)
		}
	}
	return out, nil
}

func newListing(base, title, href string) (Listing, bool) {
	if title == "" || href == "" {
		return Listing{}, false
	}
	u, err := resolveURL(base, href)
	if err != nil {
		return Listing{}, false
	}
	return Listing{
		Title:   title,
		URL:     u,
		Hashtag: Hashtag(title),
	}, true
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// concatenated text of all descendant text nodes, whitespace collapsed
func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			sb.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(sb.String()), " ")
}
