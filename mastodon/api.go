package mastodon

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

type notificationsParams struct {
	Limit int `url:"limit,omitempty"`
}

type relationshipsParams struct {
	IDs []string `url:"id,brackets"`
}

// Notifications fetches the most recent outstanding notifications, newest
// first. limit is capped by the server (80 at time of writing).
func (c *Client) Notifications(ctx context.Context, limit int) ([]Notification, error) {
	params := notificationsParams{Limit: limit}
	var out []Notification
	if err := c.Do(ctx, http.MethodGet, "/api/v1/notifications", params, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DismissNotification removes a single notification from the outstanding set.
func (c *Client) DismissNotification(ctx context.Context, id string) error {
	return c.Do(ctx, http.MethodPost, "/api/v1/notifications/"+url.PathEscape(id)+"/dismiss", nil, nil, nil)
}

func (c *Client) GetStatus(ctx context.Context, id string) (*Status, error) {
	var out Status
	if err := c.Do(ctx, http.MethodGet, "/api/v1/statuses/"+url.PathEscape(id), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetAccount(ctx context.Context, id string) (*Account, error) {
	var out Account
	if err := c.Do(ctx, http.MethodGet, "/api/v1/accounts/"+url.PathEscape(id), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyCredentials returns the account the access token belongs to.
func (c *Client) VerifyCredentials(ctx context.Context) (*Account, error) {
	var out Account
	if err := c.Do(ctx, http.MethodGet, "/api/v1/accounts/verify_credentials", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetRelationship returns the authenticated account's relationship to another account.
func (c *Client) GetRelationship(ctx context.Context, accountID string) (*Relationship, error) {
	var out []Relationship
	params := relationshipsParams{IDs: []string{accountID}}
	if err := c.Do(ctx, http.MethodGet, "/api/v1/accounts/relationships", params, nil, &out); err != nil {
		return nil, err
	}
	for _, rel := range out {
		if rel.ID == accountID {
			return &rel, nil
		}
	}
	return nil, fmt.Errorf("no relationship returned for account %s", accountID)
}

// PostStatus publishes a new status.
func (c *Client) PostStatus(ctx context.Context, in *StatusInput) (*Status, error) {
	if in.Status == "" {
		return nil, fmt.Errorf("refusing to post empty status")
	}
	var headers map[string]string
	if in.IdempotencyKey != "" {
		headers = map[string]string{"Idempotency-Key": in.IdempotencyKey}
	}
	var out Status
	if err := c.do(ctx, http.MethodPost, "/api/v1/statuses", nil, in, headers, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Reblog(ctx context.Context, statusID string) error {
	return c.Do(ctx, http.MethodPost, "/api/v1/statuses/"+url.PathEscape(statusID)+"/reblog", nil, nil, nil)
}

func (c *Client) Favourite(ctx context.Context, statusID string) error {
	return c.Do(ctx, http.MethodPost, "/api/v1/statuses/"+url.PathEscape(statusID)+"/favourite", nil, nil, nil)
}

func (c *Client) DeleteStatus(ctx context.Context, statusID string) error {
	return c.Do(ctx, http.MethodDelete, "/api/v1/statuses/"+url.PathEscape(statusID), nil, nil, nil)
}
