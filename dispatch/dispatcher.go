// Package dispatch routes inbound notifications to per-kind handlers and
// acknowledges every one of them.
//
// Handling is at-most-once: a handler runs at most once per event ID within
// the lifetime of a Dispatcher, and the event is acknowledged after the
// handler returns whether or not its actions succeeded. Failed actions are
// logged and never retried for the same event.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/e-dreyer/discussbot/cachestore"
	"github.com/e-dreyer/discussbot/mastodon"
	"github.com/e-dreyer/discussbot/policy"
	"github.com/e-dreyer/discussbot/render"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("dispatch")

// Client is the subset of the social network API used by handlers.
type Client interface {
	GetStatus(ctx context.Context, id string) (*mastodon.Status, error)
	GetAccount(ctx context.Context, id string) (*mastodon.Account, error)
	GetRelationship(ctx context.Context, accountID string) (*mastodon.Relationship, error)
	PostStatus(ctx context.Context, in *mastodon.StatusInput) (*mastodon.Status, error)
	Reblog(ctx context.Context, statusID string) error
	Favourite(ctx context.Context, statusID string) error
	DismissNotification(ctx context.Context, id string) error
}

type Renderer interface {
	Render(name string, data map[string]any) (string, error)
}

const (
	ActionLookup         = "lookup"
	ActionReport         = "report"
	ActionWelcome        = "welcome"
	ActionReblog         = "reblog"
	ActionFavorite       = "favorite"
	ActionAltTextWarning = "alt_text_warning"
	ActionHandler        = "handler"
)

// ActionResult is the outcome of one side effect. Err is nil on success.
type ActionResult struct {
	Action string
	Err    error
}

// Outcome summarizes the handling of one event.
type Outcome struct {
	EventID string
	Kind    Kind
	// Dispatched is false when the event had already been handled and only
	// the acknowledgment was retried.
	Dispatched bool
	Results    []ActionResult
	Acked      bool
	AckErr     error
}

// Failed returns the results that carry an error.
func (o *Outcome) Failed() []ActionResult {
	var out []ActionResult
	for _, r := range o.Results {
		if r.Err != nil {
			out = append(out, r)
		}
	}
	return out
}

type handlerFunc func(ctx context.Context, logger *slog.Logger, evt Event) []ActionResult

type DispatcherConfig struct {
	Policy policy.Config
	// Cache holds relationship lookups. Optional.
	Cache  cachestore.CacheStore
	Logger *slog.Logger
	// ReplayWindow is how many recently dispatched event IDs are remembered.
	ReplayWindow int
}

type Dispatcher struct {
	Client   Client
	Renderer Renderer
	Policy   policy.Config
	Cache    cachestore.CacheStore
	Logger   *slog.Logger

	handlers map[Kind]handlerFunc
	seen     *lru.Cache[string, struct{}]
}

func NewDispatcher(client Client, renderer Renderer, config DispatcherConfig) (*Dispatcher, error) {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.ReplayWindow <= 0 {
		config.ReplayWindow = 4096
	}
	seen, err := lru.New[string, struct{}](config.ReplayWindow)
	if err != nil {
		return nil, err
	}
	d := &Dispatcher{
		Client:   client,
		Renderer: renderer,
		Policy:   config.Policy,
		Cache:    config.Cache,
		Logger:   config.Logger.With("component", "dispatch"),
		seen:     seen,
	}
	d.handlers = map[Kind]handlerFunc{
		KindMention:       d.handleMention,
		KindFollow:        d.handleFollow,
		KindReblog:        d.handleReblog,
		KindFavorite:      d.handleFavorite,
		KindPoll:          d.handlePoll,
		KindFollowRequest: d.handleFollowRequest,
		KindUpdate:        d.handleUpdate,
	}
	return d, nil
}

// Handle runs the handler for evt (unless it already ran) and then
// acknowledges it. It never returns early: acknowledgment is attempted
// exactly once per call.
func (d *Dispatcher) Handle(ctx context.Context, evt Event) Outcome {
	ctx, span := tracer.Start(ctx, "Handle")
	defer span.End()
	span.SetAttributes(
		attribute.String("event_id", evt.ID),
		attribute.String("kind", string(evt.Kind)),
	)

	start := time.Now()
	logger := d.Logger.With("event", evt.ID, "kind", evt.RawKind)
	out := Outcome{
		EventID: evt.ID,
		Kind:    evt.Kind,
	}

	if d.seen.Contains(evt.ID) {
		eventReplayCount.Inc()
		logger.Info("event already dispatched, retrying acknowledgment")
	} else {
		out.Results = d.dispatch(ctx, logger, evt)
		out.Dispatched = true
		d.seen.Add(evt.ID, struct{}{})
		eventProcessCount.WithLabelValues(string(evt.Kind)).Inc()
	}

	for _, r := range out.Results {
		if r.Err != nil {
			actionCount.WithLabelValues(r.Action, "error").Inc()
			logger.Error("event action failed", "action", r.Action, "err", r.Err)
		} else {
			actionCount.WithLabelValues(r.Action, "ok").Inc()
		}
	}

	if err := d.Client.DismissNotification(ctx, evt.ID); err != nil {
		eventAckErrorCount.Inc()
		out.AckErr = err
		logger.Error("failed to acknowledge event", "err", err)
	} else {
		out.Acked = true
	}

	eventProcessDuration.WithLabelValues(string(evt.Kind)).Observe(time.Since(start).Seconds())
	span.SetAttributes(attribute.Int("failed_actions", len(out.Failed())))
	logger.Debug("event processed", "actions", len(out.Results), "acked", out.Acked)
	return out
}

// dispatch invokes the handler for the event kind, converting a panic into a
// failed action.
func (d *Dispatcher) dispatch(ctx context.Context, logger *slog.Logger, evt Event) (results []ActionResult) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("event handler panic", "err", r)
			results = append(results, ActionResult{
				Action: ActionHandler,
				Err:    &ActionError{Action: ActionHandler, EventID: evt.ID, Err: fmt.Errorf("panic: %v", r)},
			})
		}
	}()

	h, ok := d.handlers[evt.Kind]
	if !ok {
		logger.Warn("no handler for event kind, acknowledging without action")
		return nil
	}
	return h(ctx, logger, evt)
}

// result builds an ActionResult, wrapping any error as an ActionError.
func result(action string, evt Event, err error) ActionResult {
	if err == nil {
		return ActionResult{Action: action}
	}
	return ActionResult{Action: action, Err: &ActionError{Action: action, EventID: evt.ID, Err: err}}
}

// postDirect renders a template and posts it with direct visibility.
func (d *Dispatcher) postDirect(ctx context.Context, name string, data map[string]any, inReplyTo string) error {
	text, err := d.Renderer.Render(name, data)
	if err != nil {
		return err
	}
	_, err = d.Client.PostStatus(ctx, &mastodon.StatusInput{
		Status:      text,
		Visibility:  mastodon.VisibilityDirect,
		InReplyToID: inReplyTo,
	})
	return err
}

func (d *Dispatcher) handleMention(ctx context.Context, logger *slog.Logger, evt Event) []ActionResult {
	if evt.Target == nil {
		return []ActionResult{result(ActionLookup, evt, fmt.Errorf("mention carries no status"))}
	}

	// refetch so that edits (eg, alt text added since) are seen
	status, err := d.Client.GetStatus(ctx, evt.Target.ID)
	if err != nil {
		return []ActionResult{result(ActionLookup, evt, fmt.Errorf("fetching status %s: %w", evt.Target.ID, err))}
	}

	if msg, ok := parseReport(status.Content); ok {
		logger.Info("report received", "status", status.ID, "message", msg)
		err := d.postDirect(ctx, render.Report, map[string]any{
			"creator":           evt.Actor.Acct,
			"reported_post_id":  status.ID,
			"reported_post_url": status.URL,
			"report_message":    msg,
		}, "")
		return []ActionResult{result(ActionReport, evt, err)}
	}

	var results []ActionResult
	target := policy.Target{
		IsRootPost: status.IsRoot(),
		MediaCount: len(status.MediaAttachments),
	}
	for _, m := range status.MediaAttachments {
		if !m.HasDescription() {
			target.UndescribedMedia++
		}
	}
	if d.Policy.NeedsFollowState() {
		followed, err := d.isFollowedAuthor(ctx, status.Account.ID)
		if err != nil {
			// treat as not followed; the remaining decisions still apply
			results = append(results, result(ActionLookup, evt, err))
		}
		target.IsFollowedAuthor = followed
	}

	decision := policy.Evaluate(d.Policy, target)
	logger.Debug("policy decision", "status", status.ID, "root", target.IsRootPost, "followed", target.IsFollowedAuthor,
		"reblog", decision.Reblog, "favorite", decision.Favorite, "alt_text_warning", decision.AltTextWarning)

	if decision.Reblog {
		results = append(results, result(ActionReblog, evt, d.Client.Reblog(ctx, status.ID)))
	}
	if decision.Favorite {
		results = append(results, result(ActionFavorite, evt, d.Client.Favourite(ctx, status.ID)))
	}
	if decision.AltTextWarning {
		err := d.postDirect(ctx, render.MissingAltText, map[string]any{
			"account":       status.Account.Acct,
			"status_url":    status.URL,
			"status_id":     status.ID,
			"missing_count": target.UndescribedMedia,
		}, status.ID)
		results = append(results, result(ActionAltTextWarning, evt, err))
	}
	return results
}

func (d *Dispatcher) handleFollow(ctx context.Context, logger *slog.Logger, evt Event) []ActionResult {
	acct := evt.Actor.Acct
	if evt.Actor.ID != "" {
		// the relationship changed, so any cached lookup is stale
		if d.Cache != nil {
			if err := d.Cache.Purge(ctx, "relationship", evt.Actor.ID); err != nil {
				logger.Warn("relationship cache purge failed", "account", evt.Actor.ID, "err", err)
			}
		}
		acc, err := d.Client.GetAccount(ctx, evt.Actor.ID)
		if err != nil {
			logger.Warn("failed to refresh follower account, using notification copy", "account", evt.Actor.ID, "err", err)
		} else if acc.Acct != "" {
			acct = acc.Acct
		}
	}
	logger.Info("new follower", "account", acct)
	err := d.postDirect(ctx, render.NewFollow, map[string]any{"account": acct}, "")
	return []ActionResult{result(ActionWelcome, evt, err)}
}

func (d *Dispatcher) handleReblog(ctx context.Context, logger *slog.Logger, evt Event) []ActionResult {
	logger.Debug("status reblogged", "account", evt.Actor.Acct)
	return nil
}

func (d *Dispatcher) handleFavorite(ctx context.Context, logger *slog.Logger, evt Event) []ActionResult {
	logger.Debug("status favorited", "account", evt.Actor.Acct)
	return nil
}

func (d *Dispatcher) handlePoll(ctx context.Context, logger *slog.Logger, evt Event) []ActionResult {
	logger.Debug("poll ended")
	return nil
}

func (d *Dispatcher) handleFollowRequest(ctx context.Context, logger *slog.Logger, evt Event) []ActionResult {
	logger.Info("follow request", "account", evt.Actor.Acct)
	return nil
}

func (d *Dispatcher) handleUpdate(ctx context.Context, logger *slog.Logger, evt Event) []ActionResult {
	logger.Debug("boosted status edited")
	return nil
}

// isFollowedAuthor reports whether the bot follows the given account,
// consulting the cache first.
func (d *Dispatcher) isFollowedAuthor(ctx context.Context, accountID string) (bool, error) {
	if accountID == "" {
		return false, fmt.Errorf("status has no author")
	}
	if d.Cache != nil {
		var rel mastodon.Relationship
		ok, err := cachestore.GetJSON(ctx, d.Cache, "relationship", accountID, &rel)
		if err != nil {
			d.Logger.Warn("relationship cache read failed", "account", accountID, "err", err)
		} else if ok && rel.ID == accountID {
			return rel.Following, nil
		}
	}

	relationshipFetches.Inc()
	rel, err := d.Client.GetRelationship(ctx, accountID)
	if err != nil {
		return false, fmt.Errorf("fetching relationship for %s: %w", accountID, err)
	}
	if d.Cache != nil {
		if err := cachestore.SetJSON(ctx, d.Cache, "relationship", accountID, rel); err != nil {
			d.Logger.Warn("relationship cache write failed", "account", accountID, "err", err)
		}
	}
	return rel.Following, nil
}
