package cron

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/dropship-central/internal/jobs"
	"github.com/angelmondragon/dropship-central/pkg/enums"
	"github.com/angelmondragon/dropship-central/pkg/logger"
)

type activeProductLister interface {
	ListProductIDsWithStatus(ctx context.Context, status enums.ListingStatus) ([]uuid.UUID, error)
}

type PolicySweepJobParams struct {
	Logger   *logger.Logger
	Products activeProductLister
	Jobs     jobEnqueuer
}

// NewPolicySweepJob queues a policy check for every product with an Active listing,
// catching drift the tracker did not observe.
func NewPolicySweepJob(params PolicySweepJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Products == nil {
		return nil, fmt.Errorf("product lister required")
	}
	if params.Jobs == nil {
		return nil, fmt.Errorf("job enqueuer required")
	}
	return &policySweepJob{logg: params.Logger, products: params.Products, jobs: params.Jobs}, nil
}

type policySweepJob struct {
	logg     *logger.Logger
	products activeProductLister
	jobs     jobEnqueuer
}

func (j *policySweepJob) Name() string { return "policy-sweep" }

func (j *policySweepJob) Run(ctx context.Context) error {
	ids, err := j.products.ListProductIDsWithStatus(ctx, enums.ListingStatusActive)
	if err != nil {
		return fmt.Errorf("list active products: %w", err)
	}

	var errs error
	for _, id := range ids {
		if _, err := j.jobs.Enqueue(ctx, enums.JobKindCheckPolicies, jobs.ForProduct(id)); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("queue policy check for %s: %w", id, err))
		}
	}
	j.logg.Info(j.logg.WithField(ctx, "products", len(ids)), "policy sweep queued")
	return errs
}
