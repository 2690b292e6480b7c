package scheduler

import (
	"context"
	"fmt"

	"leadscore_backend/internal/notification"
	"leadscore_backend/internal/notification/outbox"
	"leadscore_backend/platform/config"
	"leadscore_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Worker consumes notification tasks and runs deliveries. Returning an error
// from a task handler makes asynq retry with backoff; the outbox row tracks
// attempts so the sweeper and operators can see stuck deliveries.
type Worker struct {
	server     *asynq.Server
	mux        *asynq.ServeMux
	repo       *outbox.Repository
	dispatcher *notification.Dispatcher
	log        *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, pool *pgxpool.Pool, dispatcher *notification.Dispatcher, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL)
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server:     server,
		mux:        mux,
		repo:       outbox.New(pool),
		dispatcher: dispatcher,
		log:        log,
	}

	mux.HandleFunc(TaskTierNotification, w.handleTierNotification)

	return w, nil
}

func (w *Worker) handleTierNotification(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseTierNotificationPayload(task)
	if err != nil {
		return err
	}

	outboxID, err := uuid.Parse(payload.OutboxID)
	if err != nil {
		return err
	}

	rec, err := w.repo.GetByID(ctx, outboxID)
	if err != nil {
		return err
	}
	if rec.Status == outbox.StatusSucceeded {
		return nil
	}

	if err := w.repo.MarkProcessing(ctx, rec.ID); err != nil {
		w.log.Warn("outbox mark processing failed", "outbox_id", rec.ID.String(), "error", err)
	}

	if err := w.dispatcher.Deliver(ctx, rec); err != nil {
		if markErr := w.repo.MarkFailed(ctx, rec.ID, err.Error()); markErr != nil {
			w.log.Warn("outbox mark failed failed", "outbox_id", rec.ID.String(), "error", markErr)
		}
		return err
	}

	return w.repo.MarkSucceeded(ctx, rec.ID)
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}
