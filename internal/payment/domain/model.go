// Package domain contains the webhook event ledger and the provider event
// types shared across the payment pipeline.
package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// EventStatus tracks a ledger row through the processing pipeline.
type EventStatus string

const (
	EventStatusProcessing EventStatus = "PROCESSING"
	EventStatusProcessed  EventStatus = "PROCESSED"
	EventStatusFailed     EventStatus = "FAILED"
)

// WebhookEvent is the durable record of one provider event id. The provider
// event id is the idempotency key: replays of a PROCESSED id short-circuit,
// replays over FAILED or stuck PROCESSING rows are reprocessed with the retry
// counter bumped.
type WebhookEvent struct {
	ID              snowflake.ID   `json:"id" gorm:"primaryKey"`
	ProviderEventID string         `json:"provider_event_id" gorm:"type:text;not null;uniqueIndex:ux_webhook_events_provider_event"`
	EventType       string         `json:"event_type" gorm:"type:text;not null"`
	Payload         datatypes.JSON `json:"payload" gorm:"type:jsonb;not null"`
	Status          EventStatus    `json:"status" gorm:"type:text;not null"`
	RetryCount      int            `json:"retry_count" gorm:"not null;default:0"`
	ErrorMessage    *string        `json:"error_message,omitempty" gorm:"type:text"`
	ReceivedAt      time.Time      `json:"received_at" gorm:"not null"`
	ProcessedAt     *time.Time     `json:"processed_at,omitempty"`
	UpdatedAt       time.Time      `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (WebhookEvent) TableName() string { return "webhook_events" }

var (
	ErrInvalidSignature = errors.New("invalid_signature")
	ErrInvalidPayload   = errors.New("invalid_payload")
	ErrInvalidEvent     = errors.New("invalid_event")
	ErrUnknownCompany   = errors.New("unknown_company")
	ErrUnknownTarget    = errors.New("unknown_subscription")
)
