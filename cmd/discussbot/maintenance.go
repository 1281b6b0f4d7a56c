package main

import (
	"fmt"
	"os"

	"github.com/e-dreyer/discussbot/dedupstore"
	"github.com/e-dreyer/discussbot/ingest"

	cli "github.com/urfave/cli/v2"
)

var dryRunFlag = &cli.BoolFlag{
	Name:  "dry-run",
	Usage: "log what would change without modifying anything",
}

var rekeyCmd = &cli.Command{
	Name:   "rekey",
	Usage:  "move confirmed records onto keys derived from their canonical URL",
	Flags:  []cli.Flag{dryRunFlag},
	Action: runMaintenance("rekey"),
}

var purgeUnpublishedCmd = &cli.Command{
	Name:   "purge-unpublished",
	Usage:  "delete confirmed records that have no published status",
	Flags:  []cli.Flag{dryRunFlag},
	Action: runMaintenance("purge-unpublished"),
}

var pruneDeadCmd = &cli.Command{
	Name:  "prune-dead",
	Usage: "delete statuses (and records) for topics which no longer exist on the forum",
	Flags: []cli.Flag{
		dryRunFlag,
		&cli.DurationFlag{
			Name:  "interval",
			Usage: "pause between status deletions",
			Value: ingest.DefaultPruneInterval,
		},
	},
	Action: runMaintenance("prune-dead"),
}

func runMaintenance(job string) cli.ActionFunc {
	return func(cctx *cli.Context) error {
		ctx := cctx.Context
		logger := configLogger(cctx, os.Stderr)

		store, err := dedupstore.Open(cctx.String("store-url"))
		if err != nil {
			return fmt.Errorf("opening dedup store: %w", err)
		}
		defer store.Close()

		m := &ingest.Maintainer{
			Store:  store,
			Logger: logger,
			DryRun: cctx.Bool("dry-run"),
		}

		var stats *ingest.MaintenanceStats
		switch job {
		case "rekey":
			stats, err = m.Rekey(ctx)
		case "purge-unpublished":
			stats, err = m.PurgeUnpublished(ctx)
		case "prune-dead":
			client, cerr := configClient(cctx, logger)
			if cerr != nil {
				return cerr
			}
			m.Deleter = client
			m.Fetcher = configFetcher(cctx, logger)
			m.PruneInterval = cctx.Duration("interval")
			stats, err = m.PruneDead(ctx)
		default:
			return fmt.Errorf("unknown maintenance job: %s", job)
		}
		if stats != nil {
			logger.Info("maintenance finished", "job", job, "scanned", stats.Scanned, "changed", stats.Changed, "failed", stats.Failed, "orphaned_statuses", stats.Orphaned, "dry_run", m.DryRun)
		}
		return err
	}
}
