package dispatch

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// reportMarker matches "$report" at the start of the content or after
// whitespace, capturing the rest of that paragraph as the message.
var reportMarker = regexp.MustCompile(`(?:^|\s)\$report\b\s*(.*?)</p>`)

// parseReport reports whether content contains a moderation report marker,
// and returns the accompanying message as plain text.
func parseReport(content string) (string, bool) {
	m := reportMarker.FindStringSubmatch(content)
	if m == nil {
		return "", false
	}
	return plainText(m[1]), true
}

// plainText strips markup from an HTML fragment, keeping line breaks.
func plainText(fragment string) string {
	var sb strings.Builder
	z := html.NewTokenizer(strings.NewReader(fragment))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.TrimSpace(sb.String())
		case html.TextToken:
			sb.Write(z.Text())
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			if string(name) == "br" {
				sb.WriteByte('\n')
			}
		}
	}
}
