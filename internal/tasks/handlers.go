package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/hugh/dealdesk/internal/billing"
	"github.com/hugh/dealdesk/internal/team"
	"github.com/hugh/dealdesk/pkg/util"
)

type Handler struct {
	billing *billing.Service
	team    *team.Service
	logger  *slog.Logger
}

func NewHandler(billingService *billing.Service, teamService *team.Service, logger *slog.Logger) *Handler {
	return &Handler{
		billing: billingService,
		team:    teamService,
		logger:  logger,
	}
}

func (h *Handler) RegisterHandlers(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeExpireSubscriptions, h.HandleExpireSubscriptions)
	mux.HandleFunc(TypeExpireInvitations, h.HandleExpireInvitations)
}

func decodeSweep(t *asynq.Task) (SweepPayload, error) {
	var payload SweepPayload
	if len(t.Payload()) == 0 {
		return payload, nil
	}
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return payload, fmt.Errorf("unmarshal payload: %w", err)
	}
	return payload, nil
}

// HandleExpireSubscriptions moves lapsed trials and premiums back to free.
func (h *Handler) HandleExpireSubscriptions(ctx context.Context, t *asynq.Task) error {
	payload, err := decodeSweep(t)
	if err != nil {
		return err
	}

	start := time.Now()
	n, err := h.billing.ExpireSubscriptions(ctx)
	if err != nil {
		h.logger.Error("subscription sweep failed", "error", err)
		return fmt.Errorf("expiring subscriptions: %w", err)
	}

	h.logger.Info("subscription sweep completed",
		"expired", n,
		"requested_by", payload.RequestedBy,
		"duration", time.Since(start),
	)
	return nil
}

// HandleExpireInvitations expires open invitations past their deadline and
// returns their reserved seats.
func (h *Handler) HandleExpireInvitations(ctx context.Context, t *asynq.Task) error {
	payload, err := decodeSweep(t)
	if err != nil {
		return err
	}

	start := time.Now()
	n, err := h.team.ExpireInvitations(ctx)
	if err != nil {
		h.logger.Error("invitation sweep failed", "error", err)
		return fmt.Errorf("expiring invitations: %w", err)
	}

	h.logger.Info("invitation sweep completed",
		"expired", n,
		"requested_by", payload.RequestedBy,
		"duration", time.Since(start),
	)
	return nil
}

// Schedule registers both sweeps on cronExpr.
func Schedule(scheduler *asynq.Scheduler, cronExpr string) error {
	if err := util.ValidateCronExpr(cronExpr); err != nil {
		return err
	}

	for _, build := range []func(SweepPayload) (*asynq.Task, error){
		NewExpireSubscriptionsTask,
		NewExpireInvitationsTask,
	} {
		task, err := build(SweepPayload{})
		if err != nil {
			return err
		}
		if _, err := scheduler.Register(cronExpr, task); err != nil {
			return fmt.Errorf("registering %s: %w", task.Type(), err)
		}
	}
	return nil
}
