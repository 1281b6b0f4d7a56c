// Package fetch retrieves feed documents over HTTP.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/e-dreyer/discussbot/util"

	"github.com/carlmjohnson/versioninfo"
)

// documents larger than this are truncated
const maxBodySize = 8 << 20

// Document is the result of a successful fetch.
type Document struct {
	URL        string
	StatusCode int
	Body       []byte
}

// Error is returned for any fetch that did not produce a 200 response.
// StatusCode is zero when the request never got a response.
type Error struct {
	URL        string
	StatusCode int
	Wrapped    error
}

func (e *Error) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("fetching %s: %s", e.URL, e.Wrapped)
	}
	return fmt.Sprintf("fetching %s: unexpected status %d", e.URL, e.StatusCode)
}

func (e *Error) Unwrap() error {
	return e.Wrapped
}

// IsGone reports whether the remote document no longer exists.
func (e *Error) IsGone() bool {
	return e.StatusCode == http.StatusNotFound || e.StatusCode == http.StatusGone
}

type Fetcher struct {
	// Client is an HTTP client to use. If not set, defaults to util.RobustHTTPClient().
	Client    *http.Client
	UserAgent string
}

func (f *Fetcher) getClient() *http.Client {
	if f.Client == nil {
		f.Client = util.RobustHTTPClient()
	}
	return f.Client
}

// Fetch issues a GET request for url. Any non-200 response is returned as an *Error.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &Error{URL: url, Wrapped: err}
	}
	ua := f.UserAgent
	if ua == "" {
		ua = "discussbot/" + versioninfo.Short()
	}
	req.Header.Set("User-Agent", ua)
	req.Header.Set("Accept", "text/html")

	resp, err := f.getClient().Do(req)
	if err != nil {
		return nil, &Error{URL: url, Wrapped: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodySize))
		return nil, &Error{URL: url, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, &Error{URL: url, StatusCode: resp.StatusCode, Wrapped: err}
	}
	return &Document{
		URL:        url,
		StatusCode: resp.StatusCode,
		Body:       body,
	}, nil
}
