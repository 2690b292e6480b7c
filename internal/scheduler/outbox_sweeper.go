package scheduler

import (
	"context"
	"time"

	"leadscore_backend/internal/notification/outbox"
	"leadscore_backend/platform/config"
	"leadscore_backend/platform/logger"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
)

// OutboxSweeper periodically claims pending outbox rows and enqueues them.
// It backstops the synchronous enqueue path: rows whose first enqueue failed
// (redis blip, process crash between insert and enqueue) get retried here.
type OutboxSweeper struct {
	client *asynq.Client
	queue  string
	repo   *outbox.Repository
	log    *logger.Logger
}

func NewOutboxSweeper(cfg config.SchedulerConfig, pool *pgxpool.Pool, log *logger.Logger) (*OutboxSweeper, error) {
	opt, err := redisClientOpt(cfg.GetRedisURL())
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	return &OutboxSweeper{
		client: asynq.NewClient(opt),
		queue:  queue,
		repo:   outbox.New(pool),
		log:    log,
	}, nil
}

func (s *OutboxSweeper) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *OutboxSweeper) Run(ctx context.Context) {
	if s == nil || s.client == nil || s.repo == nil {
		return
	}

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		records, err := s.repo.ClaimPending(ctx, 50)
		if err != nil {
			s.log.Warn("outbox claim failed", "error", err)
			continue
		}

		for _, rec := range records {
			task, err := NewTierNotificationTask(TierNotificationPayload{OutboxID: rec.ID.String()})
			if err != nil {
				msg := err.Error()
				_ = s.repo.MarkPending(ctx, rec.ID, &msg)
				continue
			}

			if _, err := s.client.EnqueueContext(ctx, task, asynq.Queue(s.queue)); err != nil {
				msg := err.Error()
				_ = s.repo.MarkPending(ctx, rec.ID, &msg)
			}
		}
	}
}
