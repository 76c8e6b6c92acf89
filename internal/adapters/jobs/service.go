// Package jobs schedules the club's batch work (score recompute and member placement) on River.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"github.com/riverqueue/river/rivertype"
)

// QueueBatch is the queue both job kinds run on.
const QueueBatch = "batch"

type Config struct {
	ScoreRecomputeInterval time.Duration
	PlacementInterval      time.Duration
	// MaxWorkers bounds concurrent batch jobs; zero means 2.
	MaxWorkers int
}

// Service owns the River client that runs the periodic jobs on this node.
type Service struct {
	client *river.Client[pgx.Tx]
	logger *slog.Logger
}

// Migrate creates or upgrades River's own tables.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
	if err != nil {
		return fmt.Errorf("create river migrator: %w", err)
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, &rivermigrate.MigrateOpts{}); err != nil {
		return fmt.Errorf("run river migrations: %w", err)
	}
	return nil
}

func NewService(pool *pgxpool.Pool, scores ScoreRecomputer, placer Placer, cfg Config, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "jobs")

	workers := river.NewWorkers()
	river.AddWorker(workers, NewScoreRecomputeWorker(scores, logger))
	river.AddWorker(workers, NewPlacementWorker(placer, logger))

	maxWorkers := cfg.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = 2
	}
	client, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			QueueBatch: {MaxWorkers: maxWorkers},
		},
		Workers:      workers,
		PeriodicJobs: PeriodicJobs(cfg),
		Logger:       logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create river client: %w", err)
	}
	return &Service{client: client, logger: logger}, nil
}

func (s *Service) Start(ctx context.Context) error {
	if err := s.client.Start(ctx); err != nil {
		return fmt.Errorf("start river client: %w", err)
	}
	s.logger.InfoContext(ctx, "job runner started")
	return nil
}

func (s *Service) Stop(ctx context.Context) error {
	if err := s.client.Stop(ctx); err != nil {
		return fmt.Errorf("stop river client: %w", err)
	}
	s.logger.InfoContext(ctx, "job runner stopped")
	return nil
}

// EnqueuePlacement queues a placement batch for locality ("" for every locality). It reports
// false when an identical job is already waiting or running.
func (s *Service) EnqueuePlacement(ctx context.Context, locality string) (bool, error) {
	res, err := s.client.Insert(ctx, PlacementArgs{Locality: locality}, InsertOpts())
	if err != nil {
		return false, fmt.Errorf("enqueue placement: %w", err)
	}
	s.logger.InfoContext(ctx, "placement job enqueued",
		"job_id", res.Job.ID,
		"locality", locality,
		"duplicate", res.UniqueSkippedAsDuplicate,
	)
	return !res.UniqueSkippedAsDuplicate, nil
}

// EnqueueScoreRecompute queues a recompute pass, with the same uniqueness as EnqueuePlacement.
func (s *Service) EnqueueScoreRecompute(ctx context.Context) (bool, error) {
	res, err := s.client.Insert(ctx, ScoreRecomputeArgs{}, InsertOpts())
	if err != nil {
		return false, fmt.Errorf("enqueue score recompute: %w", err)
	}
	return !res.UniqueSkippedAsDuplicate, nil
}

// InsertOpts keeps at most one unfinished job per kind and args. Completed jobs do not block the next run.
func InsertOpts() *river.InsertOpts {
	return &river.InsertOpts{
		Queue: QueueBatch,
		UniqueOpts: river.UniqueOpts{
			ByArgs: true,
			ByState: []rivertype.JobState{
				rivertype.JobStateAvailable,
				rivertype.JobStatePending,
				rivertype.JobStateRetryable,
				rivertype.JobStateRunning,
				rivertype.JobStateScheduled,
			},
		},
	}
}

// PeriodicJobs returns the schedules for cfg. A non-positive interval disables that job.
func PeriodicJobs(cfg Config) []*river.PeriodicJob {
	var out []*river.PeriodicJob
	if cfg.ScoreRecomputeInterval > 0 {
		out = append(out, river.NewPeriodicJob(
			river.PeriodicInterval(cfg.ScoreRecomputeInterval),
			func() (river.JobArgs, *river.InsertOpts) { return ScoreRecomputeArgs{}, InsertOpts() },
			nil,
		))
	}
	if cfg.PlacementInterval > 0 {
		out = append(out, river.NewPeriodicJob(
			river.PeriodicInterval(cfg.PlacementInterval),
			func() (river.JobArgs, *river.InsertOpts) { return PlacementArgs{}, InsertOpts() },
			&river.PeriodicJobOpts{RunOnStart: true},
		))
	}
	return out
}
