package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/makt28/tgwatch/internal/config"
	"github.com/makt28/tgwatch/internal/metrics"
	"github.com/makt28/tgwatch/internal/monitor"
	"github.com/makt28/tgwatch/internal/notify"
	"github.com/makt28/tgwatch/internal/storage"
	"github.com/makt28/tgwatch/internal/storage/natskv"
	"github.com/makt28/tgwatch/internal/storage/pgstore"
	"github.com/makt28/tgwatch/internal/storage/redisstore"
)

const storeConnectTimeout = 10 * time.Second

// openStore connects to the configured backend.
func openStore(ctx context.Context, cfg config.StoreConfig) (storage.Store, error) {
	ctx, cancel := context.WithTimeout(ctx, storeConnectTimeout)
	defer cancel()

	var (
		store storage.Store
		err   error
	)
	switch cfg.Driver {
	case "file":
		store, err = storage.NewFileStore(cfg.File.Path, cfg.Key)
	case "memory":
		store = storage.NewMemoryStore()
	case "redis":
		store, err = redisstore.New(ctx, redisstore.Config{URL: cfg.Redis.URL, Password: cfg.Redis.Password})
	case "nats":
		store, err = natskv.New(ctx, natskv.Config{URL: cfg.NATS.URL, Bucket: cfg.NATS.Bucket})
	case "postgres":
		store, err = pgstore.New(ctx, pgstore.Config{DSN: cfg.Postgres.DSN, Table: cfg.Postgres.Table})
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Driver, err)
	}
	return store, nil
}

// newRunner assembles probers, dispatcher and repository from config.
func newRunner(cfg config.Config, repo *storage.StateRepository, m *metrics.Metrics) *monitor.Runner {
	client := monitor.NewHTTPClient()

	return monitor.NewRunner(
		monitor.ProbersFromConfig(cfg, client),
		repo,
		notify.FromConfig(cfg.Notify, client),
		monitor.RunnerOptions{
			MinConsecutiveFailures: cfg.Decision.MinConsecutiveFailures,
			WebMatch:               cfg.Probes.Web.Match,
			ServiceName:            cfg.Notify.ServiceName,
			ProbeTimeout:           cfg.Probes.Timeout,
			Metrics:                m,
		},
	)
}
