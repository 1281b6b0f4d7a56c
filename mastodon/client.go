// Package mastodon is a small client for the subset of the Mastodon REST API
// the bot needs: notifications, statuses, accounts, and relationships.
package mastodon

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/e-dreyer/discussbot/util"

	"github.com/carlmjohnson/versioninfo"
	"github.com/google/go-querystring/query"
)

type Client struct {
	// Client is an HTTP client to use. If not set, defaults to util.RobustHTTPClient().
	Client *http.Client
	// Host is the instance base URL, eg "https://mastodon.social"
	Host        string
	AccessToken string
	UserAgent   *string
	Headers     map[string]string
}

func (c *Client) getClient() *http.Client {
	if c.Client == nil {
		return util.RobustHTTPClient()
	}
	return c.Client
}

// APIError is the error body returned by the API on failures.
type APIError struct {
	ErrStr      string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

func (ae *APIError) Error() string {
	if ae.Description != "" {
		return fmt.Sprintf("%s: %s", ae.ErrStr, ae.Description)
	}
	return ae.ErrStr
}

type Error struct {
	StatusCode int
	Wrapped    error
	Ratelimit  *RatelimitInfo
}

func (e *Error) Error() string {
	if e.Wrapped == nil {
		return fmt.Sprintf("mastodon API error %d", e.StatusCode)
	}
	if e.IsThrottled() && e.Ratelimit != nil {
		return fmt.Sprintf("mastodon API error %d: %s (throttled until %s)", e.StatusCode, e.Wrapped, e.Ratelimit.Reset.Local())
	}
	return fmt.Sprintf("mastodon API error %d: %s", e.StatusCode, e.Wrapped)
}

func (e *Error) Unwrap() error {
	return e.Wrapped
}

func (e *Error) IsThrottled() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

type RatelimitInfo struct {
	Limit     int
	Remaining int
	Reset     time.Time
}

func errorFromHTTPResponse(resp *http.Response, err error) error {
	r := &Error{
		StatusCode: resp.StatusCode,
		Wrapped:    err,
	}
	if resp.Header.Get("X-RateLimit-Limit") != "" {
		r.Ratelimit = &RatelimitInfo{}
		if t, err := time.Parse(time.RFC3339, resp.Header.Get("X-RateLimit-Reset")); err == nil {
			r.Ratelimit.Reset = t
		}
		if n, err := strconv.Atoi(resp.Header.Get("X-RateLimit-Limit")); err == nil {
			r.Ratelimit.Limit = n
		}
		if n, err := strconv.Atoi(resp.Header.Get("X-RateLimit-Remaining")); err == nil {
			r.Ratelimit.Remaining = n
		}
	}
	return r
}

// encodeParams encodes a query parameter struct described by "url" field tags.
// Slices use the Rails array convention ("key[]=a&key[]=b") when tagged with
// the brackets option.
func encodeParams(params any) (string, error) {
	if params == nil {
		return "", nil
	}
	vals, err := query.Values(params)
	if err != nil {
		return "", fmt.Errorf("encoding query parameters: %w", err)
	}
	return vals.Encode(), nil
}

// Do performs an API request. path is relative to the host (eg,
// "/api/v1/statuses"). params, if not nil, is a struct encoded into the query
// string. bodyobj, if not nil, is sent as JSON. out, if not nil,
// receives the decoded JSON response.
func (c *Client) Do(ctx context.Context, method, path string, params any, bodyobj any, out any) error {
	return c.do(ctx, method, path, params, bodyobj, nil, out)
}

func (c *Client) do(ctx context.Context, method, path string, params any, bodyobj any, extraHeaders map[string]string, out any) error {
	var body io.Reader
	if bodyobj != nil {
		b, err := json.Marshal(bodyobj)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	var paramStr string
	encoded, err := encodeParams(params)
	if err != nil {
		return err
	}
	if encoded != "" {
		paramStr = "?" + encoded
	}
	uri := strings.TrimSuffix(c.Host, "/") + path + paramStr

	req, err := http.NewRequestWithContext(ctx, method, uri, body)
	if err != nil {
		return err
	}
	if bodyobj != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.UserAgent != nil {
		req.Header.Set("User-Agent", *c.UserAgent)
	} else {
		req.Header.Set("User-Agent", "discussbot/"+versioninfo.Short())
	}
	for k, v := range c.Headers {
		req.Header.Set(k, v)
	}
	for k, v := range extraHeaders {
		req.Header.Set(k, v)
	}
	if c.AccessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.AccessToken)
	}

	resp, err := c.getClient().Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var ae APIError
		if err := json.NewDecoder(resp.Body).Decode(&ae); err != nil || ae.ErrStr == "" {
			return errorFromHTTPResponse(resp, fmt.Errorf("%s", http.StatusText(resp.StatusCode)))
		}
		return errorFromHTTPResponse(resp, &ae)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding mastodon response: %w", err)
		}
	}
	return nil
}
