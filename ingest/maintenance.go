package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/e-dreyer/discussbot/dedupstore"
	"github.com/e-dreyer/discussbot/discuss"
	"github.com/e-dreyer/discussbot/fetch"
	"github.com/e-dreyer/discussbot/mastodon"
	"github.com/e-dreyer/discussbot/post"

	"golang.org/x/time/rate"
)

const DefaultPruneInterval = 10 * time.Second

type StatusDeleter interface {
	DeleteStatus(ctx context.Context, statusID string) error
}

// Maintainer runs one-off repair jobs over the Confirmed namespace.
type Maintainer struct {
	Store   dedupstore.Store
	Fetcher Fetcher
	Deleter StatusDeleter
	Logger  *slog.Logger
	// PruneInterval spaces remote deletions. Zero means DefaultPruneInterval.
	PruneInterval time.Duration
	// DryRun logs what would change without writing anything.
	DryRun bool
}

type MaintenanceStats struct {
	Scanned int
	Changed int
	Failed  int
	// Orphaned lists remote status IDs whose local record was dropped by
	// Rekey in favour of another published record for the same topic.
	Orphaned []string
}

func (m *Maintainer) logger() *slog.Logger {
	if m.Logger == nil {
		return slog.Default()
	}
	return m.Logger
}

// Rekey re-derives the canonical URL and content key of every confirmed
// record, moving records stored under a stale key. When two records collapse
// onto the same key, a published one wins over an unpublished one.
func (m *Maintainer) Rekey(ctx context.Context) (*MaintenanceStats, error) {
	stats := &MaintenanceStats{}
	logger := m.logger().With("job", "rekey", "dry_run", m.DryRun)

	keys, err := dedupstore.Keys(ctx, m.Store, dedupstore.Confirmed)
	if err != nil {
		return stats, err
	}
	for _, key := range keys {
		stats.Scanned++
		p, err := m.Store.Get(ctx, dedupstore.Confirmed, key)
		if errors.Is(err, dedupstore.ErrNotFound) {
			// already moved onto another key this run
			continue
		} else if err != nil {
			return stats, err
		}

		canonical, err := discuss.CanonicalURL(p.URL)
		if err != nil {
			stats.Failed++
			logger.Warn("record has unparseable URL", "key", key, "url", p.URL, "err", err)
			continue
		}
		newKey := post.ContentKey(canonical)
		if newKey == key && p.URL == canonical && p.ID == key {
			continue
		}

		p.URL = canonical
		p.ID = newKey
		winner := p
		if newKey != key {
			existing, err := m.Store.Get(ctx, dedupstore.Confirmed, newKey)
			switch {
			case err == nil:
				if existing.IsPublished() || !p.IsPublished() {
					winner = existing
					winner.URL = canonical
					winner.ID = newKey
				}
				loser := existing
				if winner == existing {
					loser = p
				}
				if loser.IsPublished() {
					stats.Orphaned = append(stats.Orphaned, loser.Published.RemoteID)
					logger.Warn("duplicate published status left without a record; delete it by hand",
						"key", newKey, "status_id", loser.Published.RemoteID, "status_url", loser.Published.RemoteURL,
						"kept_status_id", winner.Published.RemoteID)
				}
			case !errors.Is(err, dedupstore.ErrNotFound):
				return stats, err
			}
		}

		logger.Info("rekeying record", "old_key", key, "new_key", newKey, "url", canonical)
		stats.Changed++
		maintenanceCount.WithLabelValues("rekey", "changed").Inc()
		if m.DryRun {
			continue
		}
		if err := m.Store.Set(ctx, dedupstore.Confirmed, newKey, winner); err != nil {
			return stats, err
		}
		if newKey != key {
			if err := m.Store.Delete(ctx, dedupstore.Confirmed, key); err != nil {
				return stats, err
			}
		}
		if err := m.Store.Delete(ctx, dedupstore.Pending, newKey); err != nil {
			return stats, err
		}
	}
	return stats, nil
}

// PurgeUnpublished deletes confirmed records which carry no publish reference.
func (m *Maintainer) PurgeUnpublished(ctx context.Context) (*MaintenanceStats, error) {
	stats := &MaintenanceStats{}
	logger := m.logger().With("job", "purge-unpublished", "dry_run", m.DryRun)

	keys, err := dedupstore.Keys(ctx, m.Store, dedupstore.Confirmed)
	if err != nil {
		return stats, err
	}
	for _, key := range keys {
		stats.Scanned++
		p, err := m.Store.Get(ctx, dedupstore.Confirmed, key)
		if errors.Is(err, dedupstore.ErrNotFound) {
			continue
		} else if err != nil {
			return stats, err
		}
		if p.IsPublished() {
			continue
		}
		logger.Info("purging unpublished record", "key", key, "url", p.URL)
		stats.Changed++
		maintenanceCount.WithLabelValues("purge-unpublished", "changed").Inc()
		if m.DryRun {
			continue
		}
		if err := m.Store.Delete(ctx, dedupstore.Confirmed, key); err != nil {
			return stats, err
		}
	}
	return stats, nil
}

// PruneDead re-fetches every confirmed topic. Topics which are gone (404 or
// 410) have their announcing status deleted and their record removed.
func (m *Maintainer) PruneDead(ctx context.Context) (*MaintenanceStats, error) {
	stats := &MaintenanceStats{}
	logger := m.logger().With("job", "prune-dead", "dry_run", m.DryRun)

	interval := m.PruneInterval
	if interval <= 0 {
		interval = DefaultPruneInterval
	}
	limiter := rate.NewLimiter(rate.Every(interval), 1)

	keys, err := dedupstore.Keys(ctx, m.Store, dedupstore.Confirmed)
	if err != nil {
		return stats, err
	}
	for _, key := range keys {
		stats.Scanned++
		p, err := m.Store.Get(ctx, dedupstore.Confirmed, key)
		if errors.Is(err, dedupstore.ErrNotFound) {
			continue
		} else if err != nil {
			return stats, err
		}

		_, err = m.Fetcher.Fetch(ctx, p.URL)
		if err == nil {
			continue
		}
		var fe *fetch.Error
		if !errors.As(err, &fe) || !fe.IsGone() {
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
			logger.Warn("could not check topic, keeping record", "key", key, "url", p.URL, "err", err)
			continue
		}

		logger.Info("topic is gone, removing", "key", key, "url", p.URL, "status_id", statusID(p))
		if m.DryRun {
			stats.Changed++
			continue
		}
		if p.IsPublished() {
			if err := limiter.Wait(ctx); err != nil {
				return stats, err
			}
			if err := m.Deleter.DeleteStatus(ctx, p.Published.RemoteID); err != nil && !isNotFound(err) {
				stats.Failed++
				maintenanceCount.WithLabelValues("prune-dead", "error").Inc()
				logger.Error("failed to delete status", "key", key, "status_id", p.Published.RemoteID, "err", err)
				continue
			}
		}
		if err := m.Store.Delete(ctx, dedupstore.Confirmed, key); err != nil {
			return stats, fmt.Errorf("deleting record %s: %w", key, err)
		}
		stats.Changed++
		maintenanceCount.WithLabelValues("prune-dead", "changed").Inc()
	}
	return stats, nil
}

func statusID(p *post.Post) string {
	if p.Published == nil {
		return ""
	}
	return p.Published.RemoteID
}

// the status may already have been removed by hand
func isNotFound(err error) bool {
	var apiErr *mastodon.Error
	return errors.As(err, &apiErr) && apiErr.StatusCode == 404
}
