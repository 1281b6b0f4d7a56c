// Package config loads the bot's static behaviour settings from a YAML file.
//
// Credentials and process-level settings (store URL, intervals, log level)
// are flags or environment variables and never live in this file.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/e-dreyer/discussbot/mastodon"
	"github.com/e-dreyer/discussbot/policy"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"
)

const (
	DefaultIndexURL        = "https://discuss.python.org/latest"
	DefaultPublishInterval = 20 * time.Second
	// Mastodon's stock status length limit
	DefaultMaxStatusLength = 500
)

type Config struct {
	Policy policy.Config
	Feed   Feed
}

type Feed struct {
	// IndexURL is the topic list page scanned each ingestion cycle.
	IndexURL   string              `yaml:"index_url"`
	Visibility mastodon.Visibility `yaml:"visibility"`
	// PublishInterval is the minimum spacing between published statuses.
	// Zero disables pacing.
	PublishInterval time.Duration `yaml:"publish_interval"`
	// PacePerItem spaces every publish in a drain. When false, the interval
	// is waited once before each drain instead.
	PacePerItem bool `yaml:"pace_per_item"`
	// MaxStatusLength is the instance's status limit in characters (grapheme
	// clusters). Topic titles are shortened to fit. Zero means no limit.
	MaxStatusLength int `yaml:"max_status_length"`
}

// legacyAction is the old boosts/favorites block layout.
type legacyAction struct {
	Parents       *bool `yaml:"parents"`
	Children      *bool `yaml:"children"`
	FollowersOnly *bool `yaml:"followers_only"`
}

type fileFeed struct {
	IndexURL        string              `yaml:"index_url"`
	Visibility      mastodon.Visibility `yaml:"visibility"`
	PublishInterval *time.Duration      `yaml:"publish_interval"`
	PacePerItem     *bool               `yaml:"pace_per_item"`
	MaxStatusLength *int                `yaml:"max_status_length"`
}

type file struct {
	Reblog    *policy.ActionConfig `yaml:"reblog"`
	Favorite  *policy.ActionConfig `yaml:"favorite"`
	Boosts    *legacyAction        `yaml:"boosts"`
	Favorites *legacyAction        `yaml:"favorites"`
	Feed      fileFeed             `yaml:"feed"`
}

// Default returns the configuration used when no file is given: reactions
// disabled and the feed published unlisted.
func Default() *Config {
	return &Config{
		Feed: Feed{
			IndexURL:        DefaultIndexURL,
			Visibility:      mastodon.VisibilityUnlisted,
			PublishInterval: DefaultPublishInterval,
			PacePerItem:     true,
			MaxStatusLength: DefaultMaxStatusLength,
		},
	}
}

// Load reads and validates the YAML document at path. An empty path yields Default().
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg, err := Parse(b)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Find resolves the config file to use when none was named explicitly: name
// itself if it exists in the working directory, else discussbot/<name> in the
// XDG config directories. Returns "" if neither exists.
func Find(name string) string {
	if _, err := os.Stat(name); err == nil {
		return name
	}
	p, err := xdg.SearchConfigFile(filepath.Join("discussbot", name))
	if err != nil {
		return ""
	}
	return p
}

// Parse decodes a YAML config document, applying defaults for omitted fields.
func Parse(b []byte) (*Config, error) {
	var f file
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, err
	}

	cfg := Default()
	switch {
	case f.Reblog != nil:
		cfg.Policy.Reblog = *f.Reblog
	case f.Boosts != nil:
		cfg.Policy.Reblog = f.Boosts.actionConfig()
	}
	switch {
	case f.Favorite != nil:
		cfg.Policy.Favorite = *f.Favorite
	case f.Favorites != nil:
		cfg.Policy.Favorite = f.Favorites.actionConfig()
	}

	if f.Feed.IndexURL != "" {
		cfg.Feed.IndexURL = f.Feed.IndexURL
	}
	if f.Feed.Visibility != "" {
		cfg.Feed.Visibility = f.Feed.Visibility
	}
	if f.Feed.PublishInterval != nil {
		cfg.Feed.PublishInterval = *f.Feed.PublishInterval
	}
	if f.Feed.PacePerItem != nil {
		cfg.Feed.PacePerItem = *f.Feed.PacePerItem
	}
	if f.Feed.MaxStatusLength != nil {
		cfg.Feed.MaxStatusLength = *f.Feed.MaxStatusLength
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (la *legacyAction) actionConfig() policy.ActionConfig {
	var ac policy.ActionConfig
	if la.Parents != nil {
		ac.RootPosts = *la.Parents
	}
	if la.Children != nil {
		ac.Replies = *la.Children
	}
	if la.FollowersOnly != nil {
		ac.FollowersOnly = *la.FollowersOnly
	}
	return ac
}

func (c *Config) Validate() error {
	u, err := url.Parse(c.Feed.IndexURL)
	if err != nil {
		return fmt.Errorf("feed.index_url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("feed.index_url must be an absolute http(s) URL: %q", c.Feed.IndexURL)
	}
	if !c.Feed.Visibility.Valid() {
		return fmt.Errorf("feed.visibility: unknown visibility %q", c.Feed.Visibility)
	}
	if c.Feed.PublishInterval < 0 {
		return fmt.Errorf("feed.publish_interval must not be negative")
	}
	if c.Feed.MaxStatusLength < 0 {
		return fmt.Errorf("feed.max_status_length must not be negative")
	}
	return nil
}
