// Package scheduler moves tier-change notifications through the asynq queue:
// the client enqueues outbox rows, the worker delivers them, and the sweeper
// re-enqueues rows whose first enqueue attempt was lost.
package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TaskTierNotification = "notification.tier_change"

// TierNotificationPayload identifies the outbox row to deliver.
type TierNotificationPayload struct {
	OutboxID string `json:"outboxId"`
}

func NewTierNotificationTask(payload TierNotificationPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTierNotification, data, asynq.MaxRetry(10)), nil
}

func ParseTierNotificationPayload(task *asynq.Task) (TierNotificationPayload, error) {
	var payload TierNotificationPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return TierNotificationPayload{}, err
	}
	return payload, nil
}
