package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/okian/dutyqueue/internal/adapters/mq/feed"
	"github.com/okian/dutyqueue/internal/adapters/repository"
	service "github.com/okian/dutyqueue/internal/app"
	"github.com/okian/dutyqueue/internal/config"
	"github.com/okian/dutyqueue/internal/domain/fairness"
	"github.com/okian/dutyqueue/internal/domain/idempotency"
	"github.com/okian/dutyqueue/internal/domain/model"
	"github.com/okian/dutyqueue/internal/domain/rotation"
	"github.com/okian/dutyqueue/pkg/logger"
)

// cli carries state shared by every subcommand once PersistentPreRunE ran.
type cli struct {
	cfg *config.Config
}

func newRootCmd(version string) *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:           "dutyqueue",
		Short:         "Extra-duty fairness queue, cycle calendar and team rotation",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.setup(cmd.Context())
		},
	}
	root.SetOut(os.Stdout)
	root.SetErr(os.Stderr)

	serve := newServeCmd(c)
	root.AddCommand(
		serve,
		newCycleCmd(c),
		newTeamCmd(c),
		newQueueCmd(c),
		newSimulateCmd(),
	)
	// Running the bare binary serves, as the service always did.
	root.RunE = serve.RunE

	return root
}

// setup initializes logging and loads configuration (defaults, optional file, env).
func (c *cli) setup(ctx context.Context) error {
	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := logger.SetFormat(cfg.LogFormat); err != nil {
		return err
	}
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		logger.Get().Warn(ctx, "invalid log_level; falling back to info",
			logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}
	c.cfg = cfg
	return nil
}

// components are the long-lived pieces built from configuration.
type components struct {
	svc   *service.Service
	store repository.Store
	feed  feed.Feed
}

func (c *components) close() {
	c.svc.Stop()
	if c.feed != nil {
		_ = c.feed.Close()
	}
	if c.store != nil {
		_ = c.store.Close()
	}
}

// build opens the configured store and change feed and wires the service.
func build(ctx context.Context, cfg *config.Config) (*components, error) {
	log := logger.Get()

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	policy, err := cfg.Policy()
	if err != nil {
		return nil, err
	}
	anchor, err := cfg.Anchor()
	if err != nil {
		return nil, err
	}

	store, err := repository.Open(ctx, cfg.StoreDriver, cfg.StoreDSN,
		repository.WithLogger(log.Named("store")))
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.StoreDriver, err)
	}

	var f feed.Feed
	if cfg.NATSURL != "" {
		nf, err := feed.ConnectNATS(cfg.NATSURL,
			feed.WithSubject(cfg.NATSSubject),
			feed.WithLogger(log.Named("feed")))
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		f = nf
	} else {
		f = feed.NewLocalFeed(feed.WithLogger(log.Named("feed")))
	}

	svc := service.New(
		service.WithLogger(log.Named("service")),
		service.WithStore(store),
		service.WithFeed(f),
		service.WithRanker(fairness.NewRanker(fairness.WithPolicy(policy))),
		service.WithResolver(rotation.NewResolver(rotation.WithAnchor(anchor))),
		service.WithIdempotency(idempotency.NewMemoryCache(idempotency.WithMaxSize(cfg.IdempotencySize))),
		service.WithLocation(loc),
		service.WithRefreshInterval(cfg.RefreshInterval()),
	)
	return &components{svc: svc, store: store, feed: f}, nil
}

// dateFlag parses the --date value; empty means today in the configured zone.
func dateFlag(s string) (*model.Date, error) {
	if s == "" {
		return nil, nil
	}
	d, err := model.ParseDate(s)
	if err != nil {
		return nil, fmt.Errorf("--date: %w", err)
	}
	return &d, nil
}
