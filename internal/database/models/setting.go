package models

import (
	"time"

	"github.com/google/uuid"
)

// Setting is one runtime-tunable key/value row.
type Setting struct {
	Key       string    `gorm:"column:setting_key;primaryKey;size:100" json:"key"`
	Value     string    `gorm:"type:text" json:"value"`
	Type      string    `gorm:"size:20;not null" json:"type"` // string, integer, boolean
	UpdatedAt time.Time `json:"updated_at"`
}

func (Setting) TableName() string {
	return "settings"
}

// PaymentEvent records processed payment provider webhooks so redeliveries are no-ops.
type PaymentEvent struct {
	Base
	ProviderEventID string     `gorm:"uniqueIndex;not null" json:"provider_event_id"`
	EventType       string     `gorm:"not null;index" json:"event_type"`
	UserID          *uuid.UUID `gorm:"type:uuid;index" json:"user_id,omitempty"`
	Payload         string     `gorm:"type:text" json:"-"`
	ProcessedAt     time.Time  `json:"processed_at"`
}

func (PaymentEvent) TableName() string {
	return "payment_events"
}
