package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

// Task type names
const (
	TypeExpireSubscriptions = "billing:expire_subscriptions"
	TypeExpireInvitations   = "team:expire_invitations"
)

// SweepPayload identifies who asked for a sweep. Scheduled runs leave
// RequestedBy empty.
type SweepPayload struct {
	RequestedBy string    `json:"requested_by,omitempty"`
	RequestedAt time.Time `json:"requested_at"`
}

func newSweepTask(typename string, payload SweepPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(typename, data, asynq.Queue("low"), asynq.MaxRetry(3)), nil
}

func NewExpireSubscriptionsTask(payload SweepPayload) (*asynq.Task, error) {
	return newSweepTask(TypeExpireSubscriptions, payload)
}

func NewExpireInvitationsTask(payload SweepPayload) (*asynq.Task, error) {
	return newSweepTask(TypeExpireInvitations, payload)
}

// EnqueueSweeps queues both sweeps for immediate processing and returns the
// task IDs.
func EnqueueSweeps(ctx context.Context, client *asynq.Client, payload SweepPayload) ([]string, error) {
	var ids []string
	for _, build := range []func(SweepPayload) (*asynq.Task, error){
		NewExpireSubscriptionsTask,
		NewExpireInvitationsTask,
	} {
		task, err := build(payload)
		if err != nil {
			return ids, err
		}
		info, err := client.EnqueueContext(ctx, task)
		if err != nil {
			return ids, fmt.Errorf("enqueueing %s: %w", task.Type(), err)
		}
		ids = append(ids, info.ID)
	}
	return ids, nil
}
