package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/e-dreyer/discussbot/cachestore"
	"github.com/e-dreyer/discussbot/config"
	"github.com/e-dreyer/discussbot/dedupstore"
	"github.com/e-dreyer/discussbot/dispatch"
	"github.com/e-dreyer/discussbot/fetch"
	"github.com/e-dreyer/discussbot/ingest"
	"github.com/e-dreyer/discussbot/mastodon"
	"github.com/e-dreyer/discussbot/render"
	"github.com/e-dreyer/discussbot/runner"
	"github.com/e-dreyer/discussbot/util"

	"github.com/carlmjohnson/versioninfo"
	_ "github.com/joho/godotenv/autoload"
	cli "github.com/urfave/cli/v2"
	_ "go.uber.org/automaxprocs"
)

func main() {
	if err := run(os.Args); err != nil {
		slog.Error("exiting", "err", err)
		os.Exit(-1)
	}
}

func run(args []string) error {

	app := cli.App{
		Name:    "discussbot",
		Usage:   "mastodon bot republishing discussion forum topics",
		Version: versioninfo.Short(),
	}

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "log verbosity level (eg: warn, info, debug)",
			Value:   "info",
			EnvVars: []string{"DISCUSSBOT_LOG_LEVEL", "GO_LOG_LEVEL", "LOG_LEVEL"},
		},
		&cli.StringFlag{
			Name:    "config",
			Usage:   "path to YAML file with reaction policy and feed settings (also searched for under $XDG_CONFIG_HOME/discussbot)",
			Value:   "config.yml",
			EnvVars: []string{"DISCUSSBOT_CONFIG"},
		},
		&cli.StringFlag{
			Name:    "store-url",
			Usage:   "dedup store location (redis://, rediss://, pebble://<dir>, or mem://)",
			Value:   "redis://localhost:6379/0",
			EnvVars: []string{"DISCUSSBOT_STORE_URL", "REDIS_URL"},
		},
		&cli.StringFlag{
			Name:    "mastodon-host",
			Usage:   "base URL of the Mastodon instance the bot account lives on",
			EnvVars: []string{"MASTODON_HOST"},
		},
		&cli.StringFlag{
			Name:    "mastodon-token",
			Usage:   "access token for the bot account",
			EnvVars: []string{"MASTODON_ACCESS_TOKEN"},
		},
		&cli.StringFlag{
			Name:    "templates-dir",
			Usage:   "optional directory of message templates overriding the built-in ones",
			EnvVars: []string{"DISCUSSBOT_TEMPLATES_DIR"},
		},
		&cli.BoolFlag{
			Name:    "allow-private-fetch",
			Usage:   "let the forum fetcher connect to private addresses and non-web ports (for local testing)",
			EnvVars: []string{"DISCUSSBOT_ALLOW_PRIVATE_FETCH"},
		},
	}

	app.Commands = []*cli.Command{
		runCmd,
		rekeyCmd,
		purgeUnpublishedCmd,
		pruneDeadCmd,
		listTopicsCmd,
	}

	return app.Run(args)
}

var runCmd = &cli.Command{
	Name:  "run",
	Usage: "run the bot: react to notifications and republish new topics",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "bind",
			Usage:   "IP or address, and port, to listen on for health and metrics",
			Value:   ":3999",
			EnvVars: []string{"DISCUSSBOT_BIND"},
		},
		&cli.DurationFlag{
			Name:    "event-interval",
			Usage:   "pause between polls of outstanding notifications",
			Value:   runner.DefaultEventInterval,
			EnvVars: []string{"DISCUSSBOT_EVENT_INTERVAL"},
		},
		&cli.DurationFlag{
			Name:    "ingest-interval",
			Usage:   "pause between ingestion cycles",
			Value:   runner.DefaultIngestInterval,
			EnvVars: []string{"DISCUSSBOT_INGEST_INTERVAL"},
		},
		&cli.DurationFlag{
			Name:    "restart-backoff",
			Usage:   "wait before restarting the loops after a failure",
			Value:   runner.DefaultRestartBackoff,
			EnvVars: []string{"DISCUSSBOT_RESTART_BACKOFF"},
		},
		&cli.IntFlag{
			Name:    "event-batch-size",
			Usage:   "max notifications fetched per poll",
			Value:   runner.DefaultEventBatchSize,
			EnvVars: []string{"DISCUSSBOT_EVENT_BATCH_SIZE"},
		},
		&cli.StringFlag{
			Name:    "cache-url",
			Usage:   "redis URL for the lookup cache; defaults to the dedup store's redis, or in-process memory",
			EnvVars: []string{"DISCUSSBOT_CACHE_URL"},
		},
		&cli.DurationFlag{
			Name:    "cache-ttl",
			Usage:   "how long account relationship lookups are cached",
			Value:   30 * time.Minute,
			EnvVars: []string{"DISCUSSBOT_CACHE_TTL"},
		},
		&cli.BoolFlag{
			Name:    "no-ingest",
			Usage:   "only handle notifications; do not poll the forum feed",
			EnvVars: []string{"DISCUSSBOT_NO_INGEST"},
		},
	},
	Action: runBot,
}

func configLogger(cctx *cli.Context, writer io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cctx.String("log-level")) {
	case "error":
		level = slog.LevelError
	case "warn":
		level = slog.LevelWarn
	case "info":
		level = slog.LevelInfo
	case "debug":
		level = slog.LevelDebug
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(writer, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
	return logger
}

func configClient(cctx *cli.Context, logger *slog.Logger) (*mastodon.Client, error) {
	host := cctx.String("mastodon-host")
	token := cctx.String("mastodon-token")
	if host == "" || token == "" {
		return nil, fmt.Errorf("--mastodon-host and --mastodon-token are required")
	}
	return &mastodon.Client{
		Client:      util.RobustHTTPClientWithLogger(logger),
		Host:        host,
		AccessToken: token,
	}, nil
}

// an explicitly named config file must exist; the default one is optional
func configPath(cctx *cli.Context) string {
	if cctx.IsSet("config") {
		return cctx.String("config")
	}
	return config.Find(cctx.String("config"))
}

func configFetcher(cctx *cli.Context, logger *slog.Logger) *fetch.Fetcher {
	if cctx.Bool("allow-private-fetch") {
		return &fetch.Fetcher{Client: util.RobustHTTPClientWithLogger(logger)}
	}
	return &fetch.Fetcher{Client: util.RobustHTTPClientWithTransport(logger, fetch.PublicOnlyTransport())}
}

// configCache prefers an explicit cache URL, then the dedup store's own redis
// connection, then process memory.
func configCache(cctx *cli.Context, store dedupstore.Store) (cachestore.CacheStore, error) {
	ttl := cctx.Duration("cache-ttl")
	if u := cctx.String("cache-url"); u != "" {
		return cachestore.NewRedisCacheStore(u, ttl)
	}
	if rs, ok := store.(*dedupstore.RedisStore); ok {
		return cachestore.NewRedisCacheStoreFromClient(rs.Client, ttl), nil
	}
	return cachestore.NewMemCacheStore(10_000, ttl), nil
}

func runBot(cctx *cli.Context) error {
	ctx, stop := signal.NotifyContext(cctx.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	logger := configLogger(cctx, os.Stdout)

	shutdownTracing, err := configOTEL(ctx, "discussbot")
	if err != nil {
		return err
	}
	defer shutdownTracing()

	cfg, err := config.Load(configPath(cctx))
	if err != nil {
		return err
	}
	renderer, err := render.New(cctx.String("templates-dir"))
	if err != nil {
		return err
	}
	if err := renderer.Check(); err != nil {
		return err
	}

	client, err := configClient(cctx, logger)
	if err != nil {
		return err
	}
	me, err := client.VerifyCredentials(ctx)
	if err != nil {
		return fmt.Errorf("checking mastodon credentials: %w", err)
	}
	logger.Info("authenticated", "account", me.Acct, "host", client.Host)

	store, err := dedupstore.Open(cctx.String("store-url"))
	if err != nil {
		return fmt.Errorf("opening dedup store: %w", err)
	}
	defer store.Close()

	cache, err := configCache(cctx, store)
	if err != nil {
		return fmt.Errorf("opening lookup cache: %w", err)
	}

	dispatcher, err := dispatch.NewDispatcher(client, renderer, dispatch.DispatcherConfig{
		Policy: cfg.Policy,
		Cache:  cache,
		Logger: logger,
	})
	if err != nil {
		return err
	}

	var cycler runner.Cycler
	if !cctx.Bool("no-ingest") {
		cycler = ingest.NewIngester(store, configFetcher(cctx, logger), client, renderer, cfg.Feed, logger)
	}

	r := runner.NewRunner(client, dispatcher, cycler, runner.Config{
		EventInterval:  cctx.Duration("event-interval"),
		IngestInterval: cctx.Duration("ingest-interval"),
		RestartBackoff: cctx.Duration("restart-backoff"),
		EventBatchSize: cctx.Int("event-batch-size"),
		Logger:         logger,
	})

	srv := NewServer(store, logger)
	go func() {
		if err := srv.Start(cctx.String("bind")); err != nil {
			logger.Error("health and metrics server failed", "err", err)
		}
	}()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("failed to shut down http server", "err", err)
		}
	}()

	logger.Info("starting discussbot", "version", versioninfo.Short(), "index", cfg.Feed.IndexURL)
	return r.Run(ctx)
}
