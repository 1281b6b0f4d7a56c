package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEvaluateReblogTruthTable(t *testing.T) {
	assert := assert.New(t)

	cfg := Config{
		Reblog: ActionConfig{RootPosts: true, Replies: false, FollowersOnly: true},
	}

	testCases := []struct {
		root     bool
		followed bool
		reblog   bool
	}{
		{root: true, followed: true, reblog: true},
		{root: true, followed: false, reblog: false},
		{root: false, followed: true, reblog: false},
		{root: false, followed: false, reblog: false},
	}

	for _, tc := range testCases {
		d := Evaluate(cfg, Target{IsRootPost: tc.root, IsFollowedAuthor: tc.followed})
		assert.Equal(tc.reblog, d.Reblog, "root=%v followed=%v", tc.root, tc.followed)
		assert.False(d.Favorite)
	}
}

func TestEvaluateIndependentActions(t *testing.T) {
	assert := assert.New(t)

	cfg := Config{
		Reblog:   ActionConfig{RootPosts: true, Replies: false, FollowersOnly: true},
		Favorite: ActionConfig{RootPosts: true, Replies: true, FollowersOnly: false},
	}

	d := Evaluate(cfg, Target{IsRootPost: false, IsFollowedAuthor: false})
	assert.False(d.Reblog)
	assert.True(d.Favorite)

	d = Evaluate(cfg, Target{IsRootPost: true, IsFollowedAuthor: true})
	assert.True(d.Reblog)
	assert.True(d.Favorite)
}

func TestEvaluateAltText(t *testing.T) {
	assert := assert.New(t)

	cfg := Config{
		Reblog:   ActionConfig{RootPosts: true, FollowersOnly: true},
		Favorite: ActionConfig{RootPosts: true},
	}

	// not reblogged, undescribed media: warn, favorite unaffected
	d := Evaluate(cfg, Target{IsRootPost: true, MediaCount: 2, UndescribedMedia: 1})
	assert.Equal(Decision{Reblog: false, Favorite: true, AltTextWarning: true}, d)

	// all media described
	d = Evaluate(cfg, Target{IsRootPost: true, MediaCount: 2})
	assert.False(d.AltTextWarning)

	// no media
	d = Evaluate(cfg, Target{IsRootPost: true})
	assert.False(d.AltTextWarning)

	// reblogged statuses are never warned about
	d = Evaluate(cfg, Target{IsRootPost: true, IsFollowedAuthor: true, MediaCount: 1, UndescribedMedia: 1})
	assert.True(d.Reblog)
	assert.False(d.AltTextWarning)
}

func TestNeedsFollowState(t *testing.T) {
	assert := assert.New(t)

	assert.False(Config{}.NeedsFollowState())
	assert.False(Config{Reblog: ActionConfig{FollowersOnly: true}}.NeedsFollowState())
	assert.True(Config{Reblog: ActionConfig{Replies: true, FollowersOnly: true}}.NeedsFollowState())
	assert.True(Config{Favorite: ActionConfig{RootPosts: true, FollowersOnly: true}}.NeedsFollowState())
	assert.False(Config{Favorite: ActionConfig{RootPosts: true}}.NeedsFollowState())
}
