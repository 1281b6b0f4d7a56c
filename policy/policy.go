// Package policy decides how the bot reacts to a status that mentions it.
package policy

// ActionConfig enables one action (reblog or favorite) by thread position,
// optionally restricted to authors the bot follows.
type ActionConfig struct {
	RootPosts     bool `yaml:"root_posts" json:"root_posts"`
	Replies       bool `yaml:"replies" json:"replies"`
	FollowersOnly bool `yaml:"followers_only" json:"followers_only"`
}

// allows evaluates the rule for a single action.
func (ac ActionConfig) allows(t Target) bool {
	enabled := ac.Replies
	if t.IsRootPost {
		enabled = ac.RootPosts
	}
	return enabled && (!ac.FollowersOnly || t.IsFollowedAuthor)
}

type Config struct {
	Reblog   ActionConfig `yaml:"reblog" json:"reblog"`
	Favorite ActionConfig `yaml:"favorite" json:"favorite"`
}

// NeedsFollowState reports whether any enabled action depends on the author's
// follow status. Callers can skip the relationship lookup when it doesn't.
func (c Config) NeedsFollowState() bool {
	return (c.Reblog.FollowersOnly && (c.Reblog.RootPosts || c.Reblog.Replies)) ||
		(c.Favorite.FollowersOnly && (c.Favorite.RootPosts || c.Favorite.Replies))
}

// Target is what the engine knows about the status being considered.
type Target struct {
	IsRootPost       bool
	IsFollowedAuthor bool
	// MediaCount is the number of attachments; UndescribedMedia how many of
	// those carry no alt text.
	MediaCount       int
	UndescribedMedia int
}

type Decision struct {
	Reblog         bool
	Favorite       bool
	AltTextWarning bool
}

// Evaluate computes the decision for t. The alt text warning is only
// considered when the status is not going to be reblogged.
func Evaluate(cfg Config, t Target) Decision {
	d := Decision{
		Reblog:   cfg.Reblog.allows(t),
		Favorite: cfg.Favorite.allows(t),
	}
	if !d.Reblog && t.MediaCount > 0 && t.UndescribedMedia > 0 {
		d.AltTextWarning = true
	}
	return d
}
