package dispatch

import (
	"time"

	"github.com/e-dreyer/discussbot/mastodon"
)

// Kind is the type of an inbound event.
type Kind string

const (
	KindMention       Kind = "mention"
	KindReblog        Kind = "reblog"
	KindFavorite      Kind = "favourite"
	KindFollow        Kind = "follow"
	KindPoll          Kind = "poll"
	KindFollowRequest Kind = "follow_request"
	KindUpdate        Kind = "update"
	// KindUnknown covers notification types the bot has no handler for.
	KindUnknown Kind = "unknown"
)

var knownKinds = map[string]Kind{
	string(KindMention):       KindMention,
	string(KindReblog):        KindReblog,
	string(KindFavorite):      KindFavorite,
	string(KindFollow):        KindFollow,
	string(KindPoll):          KindPoll,
	string(KindFollowRequest): KindFollowRequest,
	string(KindUpdate):        KindUpdate,
}

// ParseKind maps a notification type to a Kind. Unrecognized types map to KindUnknown.
func ParseKind(s string) Kind {
	if k, ok := knownKinds[s]; ok {
		return k
	}
	return KindUnknown
}

// Event is a single inbound notification awaiting dispatch.
type Event struct {
	ID   string
	Kind Kind
	// RawKind is the type string as delivered, kept for logging unknown kinds.
	RawKind   string
	CreatedAt time.Time
	// Actor is the account that caused the event.
	Actor mastodon.Account
	// Target is the status the event refers to, if any.
	Target *mastodon.Status
}

func EventFromNotification(n *mastodon.Notification) Event {
	return Event{
		ID:        n.ID,
		Kind:      ParseKind(n.Type),
		RawKind:   n.Type,
		CreatedAt: n.CreatedAt,
		Actor:     n.Account,
		Target:    n.Status,
	}
}
