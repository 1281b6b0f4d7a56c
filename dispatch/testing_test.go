package dispatch

import (
	"context"
	"fmt"
	"sync"

	"github.com/e-dreyer/discussbot/mastodon"
)

// fakeClient records calls and fails those listed in failures.
type fakeClient struct {
	lk sync.Mutex

	statuses      map[string]*mastodon.Status
	accounts      map[string]*mastodon.Account
	relationships map[string]*mastodon.Relationship
	failures      map[string]error

	posted       []*mastodon.StatusInput
	reblogged    []string
	favourited   []string
	dismissed    []string
	relLookups   int
	panicOnFetch bool
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		statuses:      make(map[string]*mastodon.Status),
		accounts:      make(map[string]*mastodon.Account),
		relationships: make(map[string]*mastodon.Relationship),
		failures:      make(map[string]error),
	}
}

func (c *fakeClient) fail(method string) error {
	return c.failures[method]
}

func (c *fakeClient) GetStatus(ctx context.Context, id string) (*mastodon.Status, error) {
	c.lk.Lock()
	defer c.lk.Unlock()
	if c.panicOnFetch {
		panic("fetch exploded")
	}
	if err := c.fail("GetStatus"); err != nil {
		return nil, err
	}
	st, ok := c.statuses[id]
	if !ok {
		return nil, &mastodon.Error{StatusCode: 404}
	}
	return st, nil
}

func (c *fakeClient) GetAccount(ctx context.Context, id string) (*mastodon.Account, error) {
	c.lk.Lock()
	defer c.lk.Unlock()
	if err := c.fail("GetAccount"); err != nil {
		return nil, err
	}
	acc, ok := c.accounts[id]
	if !ok {
		return nil, &mastodon.Error{StatusCode: 404}
	}
	return acc, nil
}

func (c *fakeClient) GetRelationship(ctx context.Context, accountID string) (*mastodon.Relationship, error) {
	c.lk.Lock()
	defer c.lk.Unlock()
	c.relLookups++
	if err := c.fail("GetRelationship"); err != nil {
		return nil, err
	}
	rel, ok := c.relationships[accountID]
	if !ok {
		return &mastodon.Relationship{ID: accountID}, nil
	}
	return rel, nil
}

func (c *fakeClient) PostStatus(ctx context.Context, in *mastodon.StatusInput) (*mastodon.Status, error) {
	c.lk.Lock()
	defer c.lk.Unlock()
	if err := c.fail("PostStatus"); err != nil {
		return nil, err
	}
	c.posted = append(c.posted, in)
	id := fmt.Sprintf("posted-%d", len(c.posted))
	return &mastodon.Status{ID: id, URL: "https://bot.example/@bot/" + id, URI: "https://bot.example/users/bot/statuses/" + id}, nil
}

func (c *fakeClient) Reblog(ctx context.Context, statusID string) error {
	c.lk.Lock()
	defer c.lk.Unlock()
	if err := c.fail("Reblog"); err != nil {
		return err
	}
	c.reblogged = append(c.reblogged, statusID)
	return nil
}

func (c *fakeClient) Favourite(ctx context.Context, statusID string) error {
	c.lk.Lock()
	defer c.lk.Unlock()
	if err := c.fail("Favourite"); err != nil {
		return err
	}
	c.favourited = append(c.favourited, statusID)
	return nil
}

func (c *fakeClient) DismissNotification(ctx context.Context, id string) error {
	c.lk.Lock()
	defer c.lk.Unlock()
	// the call counts as made even when it fails
	c.dismissed = append(c.dismissed, id)
	return c.fail("DismissNotification")
}

// fakeRenderer records render calls and returns "rendered <name>".
type fakeRenderer struct {
	calls []renderCall
	err   error
}

type renderCall struct {
	name string
	data map[string]any
}

func (r *fakeRenderer) Render(name string, data map[string]any) (string, error) {
	r.calls = append(r.calls, renderCall{name: name, data: data})
	if r.err != nil {
		return "", r.err
	}
	return "rendered " + name, nil
}
