package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/e-dreyer/discussbot/discuss"

	cli "github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
)

var listTopicsCmd = &cli.Command{
	Name:  "list-topics",
	Usage: "print the forum's categories, tags and latest topics as JSON",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "base-url",
			Usage: "forum base URL",
			Value: "https://discuss.python.org",
		},
	},
	Action: runListTopics,
}

type topicListing struct {
	Categories []discuss.Listing `json:"categories"`
	Tags       []discuss.Listing `json:"tags"`
	Latest     []string          `json:"latest"`
}

func runListTopics(cctx *cli.Context) error {
	logger := configLogger(cctx, os.Stderr)
	base := strings.TrimSuffix(cctx.String("base-url"), "/")
	f := configFetcher(cctx, logger)

	var out topicListing
	eg, ctx := errgroup.WithContext(cctx.Context)

	eg.Go(func() error {
		doc, err := f.Fetch(ctx, base+"/categories")
		if err != nil {
			return err
		}
		if out.Categories, err = discuss.ParseCategories(base, doc.Body); err != nil {
			return fmt.Errorf("parsing categories: %w", err)
		}
		return nil
	})
	eg.Go(func() error {
		doc, err := f.Fetch(ctx, base+"/tags")
		if err != nil {
			return err
		}
		if out.Tags, err = discuss.ParseTags(base, doc.Body); err != nil {
			return fmt.Errorf("parsing tags: %w", err)
		}
		return nil
	})
	eg.Go(func() error {
		doc, err := f.Fetch(ctx, base+"/latest")
		if err != nil {
			return err
		}
		if out.Latest, err = discuss.ParseTopicList(base+"/latest", doc.Body); err != nil {
			return fmt.Errorf("parsing latest topics: %w", err)
		}
		return nil
	})
	if err := eg.Wait(); err != nil {
		return err
	}

	b, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}
