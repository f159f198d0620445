package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/dropship-central/internal/jobs"
	"github.com/angelmondragon/dropship-central/pkg/config"
	"github.com/angelmondragon/dropship-central/pkg/db/models"
	"github.com/angelmondragon/dropship-central/pkg/enums"
	"github.com/angelmondragon/dropship-central/pkg/logger"
	"github.com/angelmondragon/dropship-central/pkg/outbox"
	"github.com/angelmondragon/dropship-central/pkg/queue"
)

const (
	defaultBatchSize   = 50
	defaultPollMs      = 500
	defaultMaxAttempts = 10
	maxBackoff         = 10 * time.Second
)

type dbClient interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type pinger interface {
	Ping(context.Context) error
}

type outboxRepository interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type payloadDecoder interface {
	Decode(eventType enums.OutboxEventType, version int, payload json.RawMessage) (interface{}, error)
}

type jobEnqueuer interface {
	EnqueueTx(ctx context.Context, tx *gorm.DB, kind enums.JobKind, payload jobs.Payload) (*models.Job, error)
}

// errUnrelayable marks events that can never become jobs.
var errUnrelayable = errors.New("event cannot be relayed")

type ServiceParams struct {
	Config     *config.Config
	Logger     *logger.Logger
	DB         dbClient
	Redis      pinger
	Repository outboxRepository
	Decoders   payloadDecoder
	Jobs       jobEnqueuer
}

// Service relays committed outbox rows into queued jobs.
type Service struct {
	logg         *logger.Logger
	db           dbClient
	redis        pinger
	repo         outboxRepository
	decoders     payloadDecoder
	jobs         jobEnqueuer
	batchSize    int
	maxAttempts  int
	pollInterval time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Config == nil {
		return nil, errors.New("config is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.DB == nil {
		return nil, errors.New("database client is required")
	}
	if params.Redis == nil {
		return nil, errors.New("redis client is required")
	}
	if params.Repository == nil {
		return nil, errors.New("outbox repository is required")
	}
	if params.Decoders == nil {
		return nil, errors.New("payload decoders are required")
	}
	if params.Jobs == nil {
		return nil, errors.New("job enqueuer is required")
	}

	batch := params.Config.Outbox.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	pollMs := params.Config.Outbox.PollIntervalMS
	if pollMs <= 0 {
		pollMs = defaultPollMs
	}
	maxAttempts := params.Config.Outbox.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}

	return &Service{
		logg:         params.Logger,
		db:           params.DB,
		redis:        params.Redis,
		repo:         params.Repository,
		decoders:     params.Decoders,
		jobs:         params.Jobs,
		batchSize:    batch,
		maxAttempts:  maxAttempts,
		pollInterval: time.Duration(pollMs) * time.Millisecond,
	}, nil
}

func (s *Service) ensureReadiness(ctx context.Context) error {
	if err := pingDependency(ctx, s.logg, "database", s.db.Ping); err != nil {
		return err
	}
	return pingDependency(ctx, s.logg, "redis", s.redis.Ping)
}

func pingDependency(ctx context.Context, logg *logger.Logger, name string, fn func(context.Context) error) error {
	if err := fn(ctx); err != nil {
		logg.Error(ctx, fmt.Sprintf("%s ping failed", name), err)
		return fmt.Errorf("%s ping failed: %w", name, err)
	}
	return nil
}

func (s *Service) Run(ctx context.Context) error {
	if err := s.ensureReadiness(ctx); err != nil {
		return err
	}

	interval := s.pollInterval
	backoff := interval

	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "outbox publisher context canceled")
			return ctx.Err()
		default:
		}

		processed, err := s.processBatch(ctx)
		if err != nil {
			s.logg.Error(ctx, "outbox publisher batch error", err)
			backoff = queue.NextBackoff(backoff, interval, maxBackoff)
			if err := queue.Sleep(ctx, queue.WithJitter(backoff)); err != nil {
				return err
			}
			continue
		}
		backoff = interval

		if processed {
			continue
		}
		if err := queue.Sleep(ctx, queue.WithJitter(interval)); err != nil {
			return err
		}
	}
}

// processBatch relays one batch inside a transaction so fetched rows stay locked
// until they are marked.
func (s *Service) processBatch(ctx context.Context) (bool, error) {
	processed := false
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := s.repo.FetchUnpublishedForPublish(tx, s.batchSize, s.maxAttempts)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			return nil
		}

		processed = true
		for _, event := range events {
			fields := s.eventFields(event)
			relayErr := s.relay(ctx, tx, event)
			if relayErr == nil {
				if err := s.repo.MarkPublishedTx(tx, event.ID); err != nil {
					return fmt.Errorf("mark published %s: %w", event.ID, err)
				}
				s.logg.Info(s.logg.WithFields(ctx, fields), "outbox event relayed")
				continue
			}

			nextAttempt := event.AttemptCount + 1
			fields["attempt_count"] = nextAttempt
			logCtx := s.logg.WithField(s.logg.WithFields(ctx, fields), "error", relayErr.Error())

			if errors.Is(relayErr, errUnrelayable) || nextAttempt >= s.maxAttempts {
				s.logg.Warn(logCtx, "outbox event will not be retried")
				if err := s.repo.MarkTerminalTx(tx, event.ID, relayErr, s.maxAttempts); err != nil {
					return fmt.Errorf("mark terminal %s: %w", event.ID, err)
				}
				continue
			}

			s.logg.Warn(logCtx, "outbox relay failed")
			if err := s.repo.MarkFailedTx(tx, event.ID, relayErr); err != nil {
				return fmt.Errorf("mark failure %s: %w", event.ID, err)
			}
		}
		return nil
	})
	return processed, err
}

func (s *Service) relay(ctx context.Context, tx *gorm.DB, event models.OutboxEvent) error {
	envelope, err := outbox.DecodeEnvelope(event.Payload)
	if err != nil {
		return fmt.Errorf("%w: %v", errUnrelayable, err)
	}
	decoded, err := s.decoders.Decode(event.EventType, envelope.Version, envelope.Data)
	if err != nil {
		return fmt.Errorf("%w: %v", errUnrelayable, err)
	}

	switch data := decoded.(type) {
	case outbox.ListingStatusChanged:
		payload := jobs.ForListing(data.ListingID)
		payload.Action = string(event.EventType)
		payload.Reason = data.Reason
		_, err := s.jobs.EnqueueTx(ctx, tx, enums.JobKindSyncListing, payload)
		return err
	default:
		return fmt.Errorf("%w: no relay for %s", errUnrelayable, event.EventType)
	}
}

func (s *Service) eventFields(event models.OutboxEvent) map[string]any {
	fields := map[string]any{
		"outbox_id":      event.ID.String(),
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID.String(),
		"batch_size":     s.batchSize,
		"attempt_count":  event.AttemptCount,
	}
	if event.LastError != nil {
		fields["last_error"] = *event.LastError
	}
	return fields
}
