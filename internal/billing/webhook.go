package billing

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/hugh/dealdesk/internal/database/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	EventInvoicePaid          = "invoice.paid"
	EventSubscriptionCanceled = "subscription.canceled"
	EventSubscriptionExpired  = "subscription.expired"
)

var (
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrInvalidEvent     = errors.New("invalid webhook event")
)

// WebhookEvent is the payment provider's event envelope.
type WebhookEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		UserID uuid.UUID `json:"user_id"`
	} `json:"data"`
}

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a hex HMAC-SHA256 signature in constant time. An
// empty secret rejects everything.
func VerifySignature(secret string, body []byte, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	signature = strings.TrimPrefix(strings.TrimSpace(signature), "sha256=")
	got, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	want, _ := hex.DecodeString(Sign(secret, body))
	return hmac.Equal(got, want)
}

// HandleEvent applies a verified webhook event exactly once. It reports
// false when the event was already processed or its type is not handled.
func (s *Service) HandleEvent(ctx context.Context, evt WebhookEvent, payload []byte) (bool, error) {
	if evt.ID == "" || evt.Type == "" {
		return false, ErrInvalidEvent
	}

	var apply func(ctx context.Context, u *models.User) error
	switch evt.Type {
	case EventInvoicePaid:
		apply = s.renewer(s.limits.BillingPeriod(ctx))
	case EventSubscriptionCanceled:
		apply = func(_ context.Context, u *models.User) error {
			err := cancel(u, s.clock.Now())
			if errors.Is(err, ErrNotSubscribed) || errors.Is(err, ErrAlreadyCancelled) {
				return nil
			}
			return err
		}
	case EventSubscriptionExpired:
		apply = s.expire
	}

	if apply != nil && evt.Data.UserID == uuid.Nil {
		return false, fmt.Errorf("%w: missing user_id", ErrInvalidEvent)
	}

	processed := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		record := models.PaymentEvent{
			ProviderEventID: evt.ID,
			EventType:       evt.Type,
			Payload:         string(payload),
			ProcessedAt:     s.clock.Now(),
		}
		if evt.Data.UserID != uuid.Nil {
			uid := evt.Data.UserID
			record.UserID = &uid
		}

		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&record)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		if apply == nil {
			return nil
		}

		user, err := s.LoadNormalized(tx, evt.Data.UserID)
		if err != nil {
			return err
		}
		before := user.SubscriptionStatus
		if err := apply(ctx, user); err != nil {
			return err
		}
		if err := saveSubscription(tx, user); err != nil {
			return err
		}
		s.metrics.Subscription(string(before), string(user.SubscriptionStatus))
		processed = true
		return nil
	})
	if err != nil {
		s.metrics.Webhook(evt.Type, "error")
		return false, err
	}

	result := "ignored"
	if processed {
		result = "processed"
	}
	s.metrics.Webhook(evt.Type, result)
	s.logger.Info("payment event handled", "event_id", evt.ID, "type", evt.Type, "result", result)
	return processed, nil
}
