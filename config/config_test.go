package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/e-dreyer/discussbot/mastodon"
	"github.com/e-dreyer/discussbot/policy"

	"github.com/adrg/xdg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	assert := assert.New(t)

	path := filepath.Join(t.TempDir(), "config.yml")
	doc := `
reblog:
  root_posts: true
  replies: false
  followers_only: true
favorite:
  root_posts: true
  replies: true
feed:
  index_url: https://discuss.example.org/latest
  visibility: public
  publish_interval: 45s
  pace_per_item: false
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(policy.ActionConfig{RootPosts: true, FollowersOnly: true}, cfg.Policy.Reblog)
	assert.Equal(policy.ActionConfig{RootPosts: true, Replies: true}, cfg.Policy.Favorite)
	assert.Equal("https://discuss.example.org/latest", cfg.Feed.IndexURL)
	assert.Equal(mastodon.VisibilityPublic, cfg.Feed.Visibility)
	assert.Equal(45*time.Second, cfg.Feed.PublishInterval)
	assert.False(cfg.Feed.PacePerItem)
}

func TestParseLegacyKeys(t *testing.T) {
	assert := assert.New(t)

	cfg, err := Parse([]byte(`
boosts:
  parents: true
  children: false
  followers_only: true
favorites:
  parents: true
  children: true
  followers_only: false
`))
	require.NoError(t, err)
	assert.Equal(policy.ActionConfig{RootPosts: true, FollowersOnly: true}, cfg.Policy.Reblog)
	assert.Equal(policy.ActionConfig{RootPosts: true, Replies: true}, cfg.Policy.Favorite)

	// feed defaults apply
	assert.Equal(DefaultIndexURL, cfg.Feed.IndexURL)
	assert.Equal(mastodon.VisibilityUnlisted, cfg.Feed.Visibility)
	assert.Equal(DefaultPublishInterval, cfg.Feed.PublishInterval)
	assert.True(cfg.Feed.PacePerItem)
}

func TestParseNewKeysWin(t *testing.T) {
	assert := assert.New(t)

	cfg, err := Parse([]byte(`
reblog: {root_posts: false, replies: true}
boosts: {parents: true}
`))
	require.NoError(t, err)
	assert.Equal(policy.ActionConfig{Replies: true}, cfg.Policy.Reblog)
}

func TestParseInvalid(t *testing.T) {
	assert := assert.New(t)

	_, err := Parse([]byte(`feed: {visibility: everyone}`))
	assert.Error(err)

	_, err = Parse([]byte(`feed: {index_url: "/latest"}`))
	assert.Error(err)

	_, err = Parse([]byte(`feed: {publish_interval: -5s}`))
	assert.Error(err)

	_, err = Parse([]byte(`reblog: [1, 2]`))
	assert.Error(err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(err)
}

func TestPublishIntervalDisabled(t *testing.T) {
	assert := assert.New(t)

	cfg, err := Parse([]byte(`feed: {publish_interval: 0s}`))
	require.NoError(t, err)
	assert.Equal(time.Duration(0), cfg.Feed.PublishInterval)

	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(Default(), cfg)
}

func TestMaxStatusLength(t *testing.T) {
	assert := assert.New(t)

	cfg, err := Parse([]byte(`feed: {index_url: "https://discuss.python.org/latest"}`))
	require.NoError(t, err)
	assert.Equal(DefaultMaxStatusLength, cfg.Feed.MaxStatusLength)

	cfg, err = Parse([]byte(`feed: {max_status_length: 5000}`))
	require.NoError(t, err)
	assert.Equal(5000, cfg.Feed.MaxStatusLength)

	_, err = Parse([]byte(`feed: {max_status_length: -1}`))
	assert.Error(err)
}

func TestFind(t *testing.T) {
	assert := assert.New(t)

	cfgHome := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", cfgHome)
	t.Setenv("XDG_CONFIG_DIRS", t.TempDir())
	xdg.Reload()
	defer xdg.Reload()
	t.Chdir(t.TempDir())

	assert.Equal("", Find("config.yml"))

	p := filepath.Join(cfgHome, "discussbot", "config.yml")
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte("{}"), 0o644))
	assert.Equal(p, Find("config.yml"))

	// the working directory wins
	require.NoError(t, os.WriteFile("config.yml", []byte("{}"), 0o644))
	assert.Equal("config.yml", Find("config.yml"))
}
