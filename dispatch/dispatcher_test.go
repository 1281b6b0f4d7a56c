package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/e-dreyer/discussbot/cachestore"
	"github.com/e-dreyer/discussbot/mastodon"
	"github.com/e-dreyer/discussbot/policy"
	"github.com/e-dreyer/discussbot/render"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testPolicy = policy.Config{
	Reblog:   policy.ActionConfig{RootPosts: true, Replies: false, FollowersOnly: true},
	Favorite: policy.ActionConfig{RootPosts: true, Replies: true, FollowersOnly: false},
}

func testDispatcher(t *testing.T, c *fakeClient, r *fakeRenderer) *Dispatcher {
	d, err := NewDispatcher(c, r, DispatcherConfig{
		Policy: testPolicy,
		Cache:  cachestore.NewMemCacheStore(100, time.Minute),
	})
	require.NoError(t, err)
	return d
}

func strPtr(s string) *string {
	return &s
}

func mentionEvent(id string, st *mastodon.Status) Event {
	return EventFromNotification(&mastodon.Notification{
		ID:      id,
		Type:    "mention",
		Account: mastodon.Account{ID: "a1", Acct: "alice@example.com"},
		Status:  st,
	})
}

func TestMentionRootByFollowedAuthor(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	c := newFakeClient()
	c.statuses["s1"] = &mastodon.Status{ID: "s1", Content: "<p>hello @bot</p>", Account: mastodon.Account{ID: "a1", Acct: "alice"}}
	c.relationships["a1"] = &mastodon.Relationship{ID: "a1", Following: true}
	d := testDispatcher(t, c, &fakeRenderer{})

	out := d.Handle(ctx, mentionEvent("n1", &mastodon.Status{ID: "s1"}))
	assert.True(out.Dispatched)
	assert.True(out.Acked)
	assert.Empty(out.Failed())
	assert.Equal([]string{"s1"}, c.reblogged)
	assert.Equal([]string{"s1"}, c.favourited)
	assert.Empty(c.posted)
	assert.Equal([]string{"n1"}, c.dismissed)
}

func TestMentionReplyNotReblogged(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	c := newFakeClient()
	c.statuses["s2"] = &mastodon.Status{ID: "s2", InReplyToID: strPtr("s1"), Account: mastodon.Account{ID: "a1"}}
	c.relationships["a1"] = &mastodon.Relationship{ID: "a1", Following: true}
	d := testDispatcher(t, c, &fakeRenderer{})

	out := d.Handle(ctx, mentionEvent("n2", &mastodon.Status{ID: "s2"}))
	assert.True(out.Acked)
	assert.Empty(c.reblogged)
	assert.Equal([]string{"s2"}, c.favourited)
}

func TestMentionActionFailureStillAcknowledged(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	c := newFakeClient()
	c.statuses["s1"] = &mastodon.Status{ID: "s1", Account: mastodon.Account{ID: "a1"}}
	c.relationships["a1"] = &mastodon.Relationship{ID: "a1", Following: true}
	c.failures["Reblog"] = errors.New("boom")
	d := testDispatcher(t, c, &fakeRenderer{})

	out := d.Handle(ctx, mentionEvent("n3", &mastodon.Status{ID: "s1"}))
	assert.True(out.Acked)
	failed := out.Failed()
	require.Len(t, failed, 1)
	assert.Equal(ActionReblog, failed[0].Action)
	var ae *ActionError
	assert.True(errors.As(failed[0].Err, &ae))
	assert.Equal("n3", ae.EventID)

	// favorite still ran
	assert.Equal([]string{"s1"}, c.favourited)
	assert.Equal([]string{"n3"}, c.dismissed)
}

func TestMentionAltTextWarning(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	c := newFakeClient()
	c.statuses["s1"] = &mastodon.Status{
		ID:      "s1",
		URL:     "https://m.example/@carol/s1",
		Account: mastodon.Account{ID: "a9", Acct: "carol"},
		MediaAttachments: []mastodon.MediaAttachment{
			{ID: "m1", Description: strPtr("a cat")},
			{ID: "m2"},
		},
	}
	r := &fakeRenderer{}
	d := testDispatcher(t, c, r)

	// author is not followed, so no reblog, so the warning applies
	out := d.Handle(ctx, mentionEvent("n4", &mastodon.Status{ID: "s1"}))
	assert.True(out.Acked)
	assert.Empty(out.Failed())
	assert.Empty(c.reblogged)
	assert.Equal([]string{"s1"}, c.favourited)

	require.Len(t, c.posted, 1)
	assert.Equal(mastodon.VisibilityDirect, c.posted[0].Visibility)
	assert.Equal("s1", c.posted[0].InReplyToID)
	require.Len(t, r.calls, 1)
	assert.Equal(render.MissingAltText, r.calls[0].name)
	assert.Equal("carol", r.calls[0].data["account"])
	assert.Equal(1, r.calls[0].data["missing_count"])
}

func TestMentionReport(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	c := newFakeClient()
	c.statuses["s1"] = &mastodon.Status{
		ID:      "s1",
		URL:     "https://m.example/@bob/s1",
		Content: `<p><span class="h-card"><a href="https://bot.example/@bot">@bot</a></span> $report this is <b>spam</b></p>`,
		Account: mastodon.Account{ID: "a1"},
	}
	c.relationships["a1"] = &mastodon.Relationship{ID: "a1", Following: true}
	r := &fakeRenderer{}
	d := testDispatcher(t, c, r)

	out := d.Handle(ctx, mentionEvent("n5", &mastodon.Status{ID: "s1"}))
	assert.True(out.Acked)
	require.Len(t, out.Results, 1)
	assert.Equal(ActionReport, out.Results[0].Action)
	assert.NoError(out.Results[0].Err)

	// the policy engine is bypassed
	assert.Empty(c.reblogged)
	assert.Empty(c.favourited)
	assert.Equal(0, c.relLookups)

	require.Len(t, c.posted, 1)
	assert.Equal(mastodon.VisibilityDirect, c.posted[0].Visibility)
	require.Len(t, r.calls, 1)
	assert.Equal(render.Report, r.calls[0].name)
	assert.Equal(map[string]any{
		"creator":           "alice@example.com",
		"reported_post_id":  "s1",
		"reported_post_url": "https://m.example/@bob/s1",
		"report_message":    "this is spam",
	}, r.calls[0].data)
}

func TestMentionLookupFailure(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	c := newFakeClient()
	d := testDispatcher(t, c, &fakeRenderer{})

	out := d.Handle(ctx, mentionEvent("n6", &mastodon.Status{ID: "missing"}))
	assert.True(out.Acked)
	require.Len(t, out.Failed(), 1)
	assert.Equal(ActionLookup, out.Failed()[0].Action)

	out = d.Handle(ctx, mentionEvent("n7", nil))
	assert.True(out.Acked)
	require.Len(t, out.Failed(), 1)
	assert.Equal([]string{"n6", "n7"}, c.dismissed)
}

func TestRelationshipCached(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	c := newFakeClient()
	c.statuses["s1"] = &mastodon.Status{ID: "s1", Account: mastodon.Account{ID: "a1"}}
	c.relationships["a1"] = &mastodon.Relationship{ID: "a1", Following: true}
	d := testDispatcher(t, c, &fakeRenderer{})

	d.Handle(ctx, mentionEvent("n1", &mastodon.Status{ID: "s1"}))
	d.Handle(ctx, mentionEvent("n2", &mastodon.Status{ID: "s1"}))
	assert.Equal(1, c.relLookups)
	assert.Equal([]string{"s1", "s1"}, c.reblogged)
}

func TestRelationshipFailureTreatedAsNotFollowed(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	c := newFakeClient()
	c.statuses["s1"] = &mastodon.Status{ID: "s1", Account: mastodon.Account{ID: "a1"}}
	c.failures["GetRelationship"] = errors.New("unavailable")
	d := testDispatcher(t, c, &fakeRenderer{})

	out := d.Handle(ctx, mentionEvent("n1", &mastodon.Status{ID: "s1"}))
	assert.True(out.Acked)
	assert.Empty(c.reblogged)
	assert.Equal([]string{"s1"}, c.favourited)
	require.Len(t, out.Failed(), 1)
	assert.Equal(ActionLookup, out.Failed()[0].Action)
}

func TestFollowWelcome(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	c := newFakeClient()
	r := &fakeRenderer{}
	d := testDispatcher(t, c, r)

	out := d.Handle(ctx, EventFromNotification(&mastodon.Notification{
		ID:      "n8",
		Type:    "follow",
		Account: mastodon.Account{ID: "a2", Acct: "dave@example.net"},
	}))
	assert.True(out.Acked)
	assert.Empty(out.Failed())
	require.Len(t, c.posted, 1)
	assert.Equal(mastodon.VisibilityDirect, c.posted[0].Visibility)
	assert.Equal("rendered new_follow", c.posted[0].Status)
	assert.Equal("dave@example.net", r.calls[0].data["account"])
}

func TestFollowRefreshesAccount(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	c := newFakeClient()
	c.accounts["a2"] = &mastodon.Account{ID: "a2", Acct: "dave@new.example.net"}
	c.statuses["s1"] = &mastodon.Status{ID: "s1", Account: mastodon.Account{ID: "a2"}}
	c.relationships["a2"] = &mastodon.Relationship{ID: "a2", Following: true}
	r := &fakeRenderer{}
	d := testDispatcher(t, c, r)

	// warm the relationship cache
	d.Handle(ctx, mentionEvent("n1", &mastodon.Status{ID: "s1"}))
	assert.Equal(1, c.relLookups)

	out := d.Handle(ctx, EventFromNotification(&mastodon.Notification{
		ID:      "n2",
		Type:    "follow",
		Account: mastodon.Account{ID: "a2", Acct: "dave@example.net"},
	}))
	assert.Empty(out.Failed())
	require.Len(t, r.calls, 1)
	assert.Equal("dave@new.example.net", r.calls[0].data["account"])

	// the follow dropped the cached relationship
	d.Handle(ctx, mentionEvent("n3", &mastodon.Status{ID: "s1"}))
	assert.Equal(2, c.relLookups)
}

func TestTemplateFailureStillAcknowledged(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	c := newFakeClient()
	d := testDispatcher(t, c, &fakeRenderer{err: errors.New("bad template")})

	out := d.Handle(ctx, EventFromNotification(&mastodon.Notification{ID: "n9", Type: "follow"}))
	assert.True(out.Acked)
	require.Len(t, out.Failed(), 1)
	assert.Equal(ActionWelcome, out.Failed()[0].Action)
	assert.Empty(c.posted)
}

func TestPassiveKindsAcknowledged(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	c := newFakeClient()
	d := testDispatcher(t, c, &fakeRenderer{})

	kinds := []string{"reblog", "favourite", "poll", "follow_request", "update", "admin.sign_up"}
	for i, k := range kinds {
		out := d.Handle(ctx, EventFromNotification(&mastodon.Notification{ID: k, Type: k}))
		assert.True(out.Dispatched, k)
		assert.True(out.Acked, k)
		assert.Empty(out.Results, k)
		assert.Len(c.dismissed, i+1)
	}
	assert.Equal(KindUnknown, ParseKind("admin.sign_up"))
	assert.Empty(c.posted)
}

func TestHandlerPanicRecovered(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	c := newFakeClient()
	c.panicOnFetch = true
	d := testDispatcher(t, c, &fakeRenderer{})

	out := d.Handle(ctx, mentionEvent("n10", &mastodon.Status{ID: "s1"}))
	assert.True(out.Acked)
	require.Len(t, out.Failed(), 1)
	assert.Equal(ActionHandler, out.Failed()[0].Action)
	assert.Equal([]string{"n10"}, c.dismissed)
}

func TestReplayOnlyRetriesAcknowledgment(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	c := newFakeClient()
	c.statuses["s1"] = &mastodon.Status{ID: "s1", Account: mastodon.Account{ID: "a1"}}
	c.failures["DismissNotification"] = errors.New("timeout")
	d := testDispatcher(t, c, &fakeRenderer{})

	out := d.Handle(ctx, mentionEvent("n11", &mastodon.Status{ID: "s1"}))
	assert.True(out.Dispatched)
	assert.False(out.Acked)
	assert.Error(out.AckErr)
	assert.Equal([]string{"s1"}, c.favourited)

	// re-delivered after the failed acknowledgment
	delete(c.failures, "DismissNotification")
	out = d.Handle(ctx, mentionEvent("n11", &mastodon.Status{ID: "s1"}))
	assert.False(out.Dispatched)
	assert.True(out.Acked)
	assert.Equal([]string{"s1"}, c.favourited)
	assert.Equal([]string{"n11", "n11"}, c.dismissed)
}
