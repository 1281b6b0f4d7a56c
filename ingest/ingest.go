// Package ingest discovers topics on the discussion forum feed and publishes
// each new one exactly once.
//
// A cycle has two phases. Discover fetches the feed index and every linked
// topic, and records each topic under its content key: in the Pending
// namespace if it has never been published, otherwise by refreshing the
// Confirmed record in place. Drain then publishes every Pending record and
// moves it to Confirmed. Progress lives entirely in the dedup store, so a
// cycle interrupted at any point is resumed by the next one.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/e-dreyer/discussbot/config"
	"github.com/e-dreyer/discussbot/dedupstore"
	"github.com/e-dreyer/discussbot/discuss"
	"github.com/e-dreyer/discussbot/fetch"
	"github.com/e-dreyer/discussbot/mastodon"
	"github.com/e-dreyer/discussbot/post"
	"github.com/e-dreyer/discussbot/render"

	"github.com/rivo/uniseg"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"
)

var tracer = otel.Tracer("ingest")

type Fetcher interface {
	Fetch(ctx context.Context, url string) (*fetch.Document, error)
}

type Publisher interface {
	PostStatus(ctx context.Context, in *mastodon.StatusInput) (*mastodon.Status, error)
}

type Renderer interface {
	Render(name string, data map[string]any) (string, error)
}

type Ingester struct {
	Store     dedupstore.Store
	Fetcher   Fetcher
	Publisher Publisher
	Renderer  Renderer
	Feed      config.Feed
	Logger    *slog.Logger

	// nil when pacing is disabled
	limiter *rate.Limiter
}

func NewIngester(store dedupstore.Store, fetcher Fetcher, publisher Publisher, renderer Renderer, feed config.Feed, logger *slog.Logger) *Ingester {
	if logger == nil {
		logger = slog.Default()
	}
	ing := &Ingester{
		Store:     store,
		Fetcher:   fetcher,
		Publisher: publisher,
		Renderer:  renderer,
		Feed:      feed,
		Logger:    logger.With("component", "ingest"),
	}
	if feed.PublishInterval > 0 {
		ing.limiter = rate.NewLimiter(rate.Every(feed.PublishInterval), 1)
	}
	return ing
}

type DiscoverStats struct {
	Found     int
	Pending   int
	Refreshed int
	Unchanged int
	Skipped   int
}

type DrainStats struct {
	Published int
	Failed    int
	// Dangling counts pending entries dropped because the key was already confirmed.
	Dangling  int
	Throttled bool
}

// RunCycle runs one Discover and one Drain, then verifies that no key is in
// both namespaces. Only store failures are returned; feed and publish
// problems are logged and retried next cycle.
func (ing *Ingester) RunCycle(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "RunCycle")
	defer span.End()
	start := time.Now()
	defer func() {
		cycleDuration.Observe(time.Since(start).Seconds())
	}()

	ds, err := ing.Discover(ctx)
	if err != nil {
		return err
	}
	dr, err := ing.Drain(ctx)
	if err != nil {
		return err
	}

	overlap, err := ing.CheckNamespaces(ctx)
	if err != nil {
		return err
	}
	namespaceOverlap.Set(float64(len(overlap)))
	if len(overlap) > 0 {
		ing.Logger.Error("keys present in both pending and confirmed namespaces", "count", len(overlap), "keys", overlap)
	}

	span.SetAttributes(
		attribute.Int("found", ds.Found),
		attribute.Int("pending", ds.Pending),
		attribute.Int("published", dr.Published),
	)
	ing.Logger.Info("ingestion cycle complete",
		"found", ds.Found, "new", ds.Pending, "refreshed", ds.Refreshed, "unchanged", ds.Unchanged, "skipped", ds.Skipped,
		"published", dr.Published, "publish_failed", dr.Failed, "throttled", dr.Throttled,
		"duration", time.Since(start))
	return nil
}

// Discover fetches the feed index and records every topic it links to.
func (ing *Ingester) Discover(ctx context.Context) (*DiscoverStats, error) {
	ctx, span := tracer.Start(ctx, "Discover")
	defer span.End()

	stats := &DiscoverStats{}
	logger := ing.Logger.With("index", ing.Feed.IndexURL)

	doc, err := ing.Fetcher.Fetch(ctx, ing.Feed.IndexURL)
	if err != nil {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		fetchErrors.Inc()
		logger.Warn("failed to fetch feed index", "err", err)
		return stats, nil
	}
	urls, err := discuss.ParseTopicList(ing.Feed.IndexURL, doc.Body)
	if err != nil {
		extractionErrors.Inc()
		logger.Warn("failed to parse feed index", "err", err)
		return stats, nil
	}
	stats.Found = len(urls)
	topicsSeen.Add(float64(len(urls)))

	for _, u := range urls {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		p, err := ing.extract(ctx, u)
		if err != nil {
			stats.Skipped++
			logger.Warn("skipping topic", "url", u, "err", err)
			continue
		}
		if err := ing.record(ctx, p, stats); err != nil {
			return stats, err
		}
	}
	return stats, nil
}

func (ing *Ingester) extract(ctx context.Context, u string) (*post.Post, error) {
	doc, err := ing.Fetcher.Fetch(ctx, u)
	if err != nil {
		fetchErrors.Inc()
		return nil, err
	}
	p, err := discuss.ParseTopic(u, doc.Body)
	if err != nil {
		extractionErrors.Inc()
		return nil, err
	}
	return p, nil
}

// record writes a freshly extracted post. A key which is already confirmed is
// never written to Pending; its confirmed record gets the fresh metadata.
func (ing *Ingester) record(ctx context.Context, p *post.Post, stats *DiscoverStats) error {
	key := p.ID
	existing, err := ing.Store.Get(ctx, dedupstore.Confirmed, key)
	switch {
	case errors.Is(err, dedupstore.ErrNotFound):
		if err := ing.Store.Set(ctx, dedupstore.Pending, key, p); err != nil {
			return fmt.Errorf("recording pending post: %w", err)
		}
		stats.Pending++
		topicsRecorded.WithLabelValues(string(dedupstore.Pending)).Inc()
		return nil
	case err != nil:
		return fmt.Errorf("checking confirmed post: %w", err)
	}

	if existing.Title == p.Title && existing.Category == p.Category {
		stats.Unchanged++
		return nil
	}
	// identity and publish reference are kept; only display metadata changes
	existing.Title = p.Title
	existing.Category = p.Category
	if err := ing.Store.Set(ctx, dedupstore.Confirmed, key, existing); err != nil {
		return fmt.Errorf("refreshing confirmed post: %w", err)
	}
	stats.Refreshed++
	topicsRecorded.WithLabelValues(string(dedupstore.Confirmed)).Inc()
	return nil
}

// Drain publishes every pending post and moves it to Confirmed. A rejected
// publish leaves the post pending; a throttled one ends the drain early.
func (ing *Ingester) Drain(ctx context.Context) (*DrainStats, error) {
	ctx, span := tracer.Start(ctx, "Drain")
	defer span.End()

	stats := &DrainStats{}
	keys, err := dedupstore.Keys(ctx, ing.Store, dedupstore.Pending)
	if err != nil {
		return stats, fmt.Errorf("listing pending posts: %w", err)
	}
	pendingGauge.Set(float64(len(keys)))
	if len(keys) == 0 {
		return stats, nil
	}

	if ing.limiter != nil && !ing.Feed.PacePerItem {
		if err := ing.limiter.Wait(ctx); err != nil {
			return stats, err
		}
	}

	for _, key := range keys {
		confirmed, err := ing.Store.Exists(ctx, dedupstore.Confirmed, key)
		if err != nil {
			return stats, fmt.Errorf("checking confirmed post: %w", err)
		}
		if confirmed {
			// left behind by an interrupted drain
			if err := ing.Store.Delete(ctx, dedupstore.Pending, key); err != nil {
				return stats, fmt.Errorf("removing dangling pending post: %w", err)
			}
			stats.Dangling++
			ing.Logger.Warn("removed pending entry for already confirmed post", "key", key)
			continue
		}

		p, err := ing.Store.Get(ctx, dedupstore.Pending, key)
		if errors.Is(err, dedupstore.ErrNotFound) {
			continue
		} else if err != nil {
			return stats, fmt.Errorf("reading pending post: %w", err)
		}

		if ing.limiter != nil && ing.Feed.PacePerItem {
			if err := ing.limiter.Wait(ctx); err != nil {
				return stats, err
			}
		}

		ref, err := ing.publish(ctx, key, p)
		if err != nil {
			stats.Failed++
			ing.Logger.Error("failed to publish post", "key", key, "url", p.URL, "err", err)
			var apiErr *mastodon.Error
			if errors.As(err, &apiErr) && apiErr.IsThrottled() {
				stats.Throttled = true
				publishErrors.WithLabelValues("throttled").Inc()
				break
			}
			publishErrors.WithLabelValues("rejected").Inc()
			continue
		}

		p.ID = key
		p.Published = ref
		if err := ing.Store.Set(ctx, dedupstore.Confirmed, key, p); err != nil {
			return stats, fmt.Errorf("confirming published post %s: %w", key, err)
		}
		if err := ing.Store.Delete(ctx, dedupstore.Pending, key); err != nil {
			return stats, fmt.Errorf("removing published post %s from pending: %w", key, err)
		}
		stats.Published++
		postsPublished.Inc()
		ing.Logger.Info("published post", "key", key, "url", p.URL, "status_url", ref.RemoteURL)
	}
	return stats, nil
}

func (ing *Ingester) publish(ctx context.Context, key string, p *post.Post) (*post.PublishedRef, error) {
	ctx, span := tracer.Start(ctx, "publish")
	defer span.End()
	span.SetAttributes(attribute.String("key", key))

	text, err := ing.renderPost(p)
	if err != nil {
		return nil, &PublishError{Key: key, Err: err}
	}
	st, err := ing.Publisher.PostStatus(ctx, &mastodon.StatusInput{
		Status:         text,
		Visibility:     ing.Feed.Visibility,
		IdempotencyKey: key,
	})
	if err != nil {
		return nil, &PublishError{Key: key, Err: err}
	}
	if st == nil || st.ID == "" {
		return nil, &PublishError{Key: key, Err: fmt.Errorf("publish returned no status reference")}
	}
	return &post.PublishedRef{
		RemoteID:  st.ID,
		RemoteURL: st.URL,
		RemoteURI: st.URI,
	}, nil
}

// renderPost renders the announcement for p, shortening the title if the
// result is longer than the instance allows.
func (ing *Ingester) renderPost(p *post.Post) (string, error) {
	data := p.TemplateData()
	text, err := ing.Renderer.Render(render.DiscussPost, data)
	if err != nil {
		return "", err
	}
	limit := ing.Feed.MaxStatusLength
	if limit <= 0 {
		return text, nil
	}
	over := uniseg.GraphemeClusterCount(text) - limit
	if over <= 0 {
		return text, nil
	}
	// one extra for the ellipsis
	keep := uniseg.GraphemeClusterCount(p.Title) - over - 1
	data["title"] = truncateGraphemes(p.Title, keep) + "…"
	return ing.Renderer.Render(render.DiscussPost, data)
}

// first n grapheme clusters of s
func truncateGraphemes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	gr := uniseg.NewGraphemes(s)
	end := 0
	for i := 0; i < n && gr.Next(); i++ {
		_, end = gr.Positions()
	}
	return s[:end]
}

// CheckNamespaces returns the keys which exist in both namespaces.
func (ing *Ingester) CheckNamespaces(ctx context.Context) ([]string, error) {
	var overlap []string
	for key, err := range ing.Store.Scan(ctx, dedupstore.Pending) {
		if err != nil {
			return nil, fmt.Errorf("scanning pending posts: %w", err)
		}
		ok, err := ing.Store.Exists(ctx, dedupstore.Confirmed, key)
		if err != nil {
			return nil, err
		}
		if ok {
			overlap = append(overlap, key)
		}
	}
	return overlap, nil
}
