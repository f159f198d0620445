package cron

import (
	"context"
	"fmt"

	"go.uber.org/multierr"

	"github.com/angelmondragon/dropship-central/internal/jobs"
	"github.com/angelmondragon/dropship-central/internal/tracking"
	"github.com/angelmondragon/dropship-central/pkg/db/models"
	"github.com/angelmondragon/dropship-central/pkg/enums"
	"github.com/angelmondragon/dropship-central/pkg/logger"
)

type batchTracker interface {
	TrackAll(ctx context.Context) (*tracking.BatchResult, error)
}

type jobEnqueuer interface {
	Enqueue(ctx context.Context, kind enums.JobKind, payload jobs.Payload) (*models.Job, error)
}

type TrackingJobParams struct {
	Logger  *logger.Logger
	Tracker batchTracker
	Jobs    jobEnqueuer
}

// NewTrackingJob tracks every product and queues a policy check for each one that changed.
func NewTrackingJob(params TrackingJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Tracker == nil {
		return nil, fmt.Errorf("tracker required")
	}
	if params.Jobs == nil {
		return nil, fmt.Errorf("job enqueuer required")
	}
	return &trackingJob{logg: params.Logger, tracker: params.Tracker, jobs: params.Jobs}, nil
}

type trackingJob struct {
	logg    *logger.Logger
	tracker batchTracker
	jobs    jobEnqueuer
}

func (j *trackingJob) Name() string { return "product-tracking" }

// Run treats per-product fetch failures as part of a healthy pass; only failing to
// list products or to queue follow-up checks fails the job.
func (j *trackingJob) Run(ctx context.Context) error {
	result, err := j.tracker.TrackAll(ctx)
	if err != nil {
		return err
	}

	var errs error
	queued := 0
	for _, event := range result.Events {
		if _, err := j.jobs.Enqueue(ctx, enums.JobKindCheckPolicies, jobs.ForProduct(event.ProductID)); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("queue policy check for %s: %w", event.ProductID, err))
			continue
		}
		queued++
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"changed":         len(result.Events),
		"unchanged":       result.Unchanged,
		"failed":          len(result.Failures),
		"policies_queued": queued,
	}), "product tracking pass complete")
	return errs
}
