// Package bootstrap wires storage adapters and application services from a Config. The API server
// and the admin CLI share it.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	memactivity "github.com/Overland-East-Bay/rider-standings-api/internal/adapters/memory/activity"
	memlocalityrepo "github.com/Overland-East-Bay/rider-standings-api/internal/adapters/memory/localityrepo"
	memmemberrepo "github.com/Overland-East-Bay/rider-standings-api/internal/adapters/memory/memberrepo"
	memrunlock "github.com/Overland-East-Bay/rider-standings-api/internal/adapters/memory/runlock"
	postgres "github.com/Overland-East-Bay/rider-standings-api/internal/adapters/postgres"
	pgactivity "github.com/Overland-East-Bay/rider-standings-api/internal/adapters/postgres/activity"
	pglocalityrepo "github.com/Overland-East-Bay/rider-standings-api/internal/adapters/postgres/localityrepo"
	pgmemberrepo "github.com/Overland-East-Bay/rider-standings-api/internal/adapters/postgres/memberrepo"
	pgrunlock "github.com/Overland-East-Bay/rider-standings-api/internal/adapters/postgres/runlock"
	pgscorerepo "github.com/Overland-East-Bay/rider-standings-api/internal/adapters/postgres/scorerepo"
	"github.com/Overland-East-Bay/rider-standings-api/internal/adapters/seed"
	"github.com/Overland-East-Bay/rider-standings-api/internal/app/members"
	"github.com/Overland-East-Bay/rider-standings-api/internal/app/ridermap"
	"github.com/Overland-East-Bay/rider-standings-api/internal/app/standings"
	"github.com/Overland-East-Bay/rider-standings-api/internal/domain"
	platformclock "github.com/Overland-East-Bay/rider-standings-api/internal/platform/clock"
	"github.com/Overland-East-Bay/rider-standings-api/internal/platform/config"
	"github.com/Overland-East-Bay/rider-standings-api/internal/platform/metrics"
	"github.com/Overland-East-Bay/rider-standings-api/internal/ports/out/activity"
	"github.com/Overland-East-Bay/rider-standings-api/internal/ports/out/localityrepo"
	"github.com/Overland-East-Bay/rider-standings-api/internal/ports/out/memberrepo"
	"github.com/Overland-East-Bay/rider-standings-api/internal/ports/out/runlock"
	"github.com/Overland-East-Bay/rider-standings-api/internal/ports/out/scorerepo"
)

// App is the wired service graph.
type App struct {
	// Pool is nil on the memory backend.
	Pool *pgxpool.Pool

	Localities localityrepo.Repository
	Metrics    *metrics.Metrics

	Members   *members.Service
	Standings *standings.Service
	RiderMap  *ridermap.Service
}

// Open builds the App for cfg.StorageBackend. The memory backend is always seeded with the locality
// table; postgres is seeded only when cfg.Seed.LocalityFile is set. The returned func releases the pool.
func Open(ctx context.Context, cfg config.Config, logger *slog.Logger, reg prometheus.Registerer) (*App, func(), error) {
	if logger == nil {
		logger = slog.Default()
	}
	var (
		memberRepo   memberrepo.Repository
		scoreRepo    scorerepo.Repository
		localityRepo localityrepo.Repository
		counter      activity.Counter
		locks        runlock.Store
		pool         *pgxpool.Pool
		cleanup      = func() {}
	)

	switch cfg.StorageBackend {
	case "postgres":
		p, err := postgres.NewPool(ctx, cfg.DatabaseURL, postgres.PoolOptions{})
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		pool = p
		cleanup = p.Close

		memberRepo = pgmemberrepo.NewRepo(p)
		scoreRepo = pgscorerepo.NewRepo(p)
		localityRepo = pglocalityrepo.NewRepo(p)
		counter = pgactivity.NewStore(p)
		locks = pgrunlock.NewStore(p)
	default:
		mr := memmemberrepo.NewRepo()
		memberRepo = mr
		scoreRepo = mr.Scores()
		localityRepo = memlocalityrepo.NewRepo()
		counter = memactivity.NewStore()
		locks = memrunlock.NewStore()
	}

	if cfg.StorageBackend != "postgres" || cfg.Seed.LocalityFile != "" {
		n, err := SeedLocalities(ctx, localityRepo, cfg.Seed.LocalityFile)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		logger.InfoContext(ctx, "locality table seeded", "count", n, "file", cfg.Seed.LocalityFile)
	}

	clk := platformclock.NewSystemClock()
	m := metrics.New(reg)

	app := &App{
		Pool:       pool,
		Localities: localityRepo,
		Metrics:    m,
		Members:    members.NewService(memberRepo, clk, members.Options{Logger: logger, Metrics: m}),
		Standings:  standings.NewService(memberRepo, scoreRepo, counter, clk, standings.Options{Logger: logger, Metrics: m}),
		RiderMap: ridermap.NewService(ridermap.Deps{
			Members:    memberRepo,
			Scores:     scoreRepo,
			Localities: localityRepo,
			Locks:      locks,
			Clock:      clk,
		}, ridermap.Options{Logger: logger, Metrics: m, LockTTL: cfg.Batches.LockTTL}),
	}
	return app, cleanup, nil
}

// SeedLocalities upserts the locality table from path, or from the bundled table when path is empty.
func SeedLocalities(ctx context.Context, repo localityrepo.Repository, path string) (int, error) {
	var (
		ls  []domain.Locality
		err error
	)
	if path == "" {
		ls, err = seed.Default()
	} else {
		ls, err = seed.LoadFile(path)
	}
	if err != nil {
		return 0, err
	}
	return seed.Apply(ctx, repo, ls)
}
