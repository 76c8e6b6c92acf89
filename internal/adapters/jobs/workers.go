package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/riverqueue/river"

	"github.com/Overland-East-Bay/rider-standings-api/internal/app/ridermap"
	"github.com/Overland-East-Bay/rider-standings-api/internal/app/standings"
)

// ScoreRecomputer is the slice of the standings service the recompute worker needs.
type ScoreRecomputer interface {
	RecomputeAll(ctx context.Context) (standings.RecomputeSummary, error)
}

// Placer is the slice of the rider map service the placement worker needs.
type Placer interface {
	PlaceAll(ctx context.Context) (ridermap.Summary, error)
	PlaceLocality(ctx context.Context, name string) (ridermap.Summary, error)
}

type ScoreRecomputeWorker struct {
	river.WorkerDefaults[ScoreRecomputeArgs]

	svc    ScoreRecomputer
	logger *slog.Logger
}

func NewScoreRecomputeWorker(svc ScoreRecomputer, logger *slog.Logger) *ScoreRecomputeWorker {
	return &ScoreRecomputeWorker{svc: svc, logger: logger.With("worker", ScoreRecomputeArgs{}.Kind())}
}

// Work runs one recompute pass. Per-member failures are part of the summary and do not fail the job.
func (w *ScoreRecomputeWorker) Work(ctx context.Context, job *river.Job[ScoreRecomputeArgs]) error {
	sum, err := w.svc.RecomputeAll(ctx)
	if err != nil {
		return fmt.Errorf("recompute scores: %w", err)
	}
	w.logger.InfoContext(ctx, "score recompute job finished",
		"job_id", job.ID,
		"total", sum.Total,
		"updated", sum.Updated,
		"failed", sum.Failed,
	)
	return nil
}

type PlacementWorker struct {
	river.WorkerDefaults[PlacementArgs]

	svc    Placer
	logger *slog.Logger
}

func NewPlacementWorker(svc Placer, logger *slog.Logger) *PlacementWorker {
	return &PlacementWorker{svc: svc, logger: logger.With("worker", PlacementArgs{}.Kind())}
}

// Work runs a placement batch for the job's scope. A batch already running for the same scope
// (an API call or another node) completes the job without retrying.
func (w *PlacementWorker) Work(ctx context.Context, job *river.Job[PlacementArgs]) error {
	var (
		sum ridermap.Summary
		err error
	)
	if job.Args.Locality == "" {
		sum, err = w.svc.PlaceAll(ctx)
	} else {
		sum, err = w.svc.PlaceLocality(ctx, job.Args.Locality)
	}
	if err != nil {
		var ae *ridermap.Error
		if errors.As(err, &ae) {
			switch ae.Code {
			case "BATCH_ALREADY_RUNNING":
				w.logger.InfoContext(ctx, "placement job skipped; batch already running",
					"job_id", job.ID, "locality", job.Args.Locality)
				return nil
			case "VALIDATION_ERROR":
				return river.JobCancel(err)
			}
		}
		return fmt.Errorf("place members: %w", err)
	}
	w.logger.InfoContext(ctx, "placement job finished",
		"job_id", job.ID,
		"run_id", sum.RunID.String(),
		"scope", sum.Scope,
		"total", sum.Total,
		"updated", sum.Updated,
		"failed", sum.Failed,
		"skipped", sum.Skipped,
	)
	return nil
}
