package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/fabriko/fabriko/internal/payment/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertEvent(ctx context.Context, db *gorm.DB, event *domain.WebhookEvent) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO webhook_events (
			id, provider_event_id, event_type, payload, status, retry_count,
			error_message, received_at, processed_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (provider_event_id) DO NOTHING`,
		event.ID,
		event.ProviderEventID,
		event.EventType,
		event.Payload,
		event.Status,
		event.RetryCount,
		event.ErrorMessage,
		event.ReceivedAt,
		event.ProcessedAt,
		event.UpdatedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindByProviderEventID(ctx context.Context, db *gorm.DB, providerEventID string) (*domain.WebhookEvent, error) {
	var item domain.WebhookEvent
	err := db.WithContext(ctx).Raw(
		`SELECT id, provider_event_id, event_type, payload, status, retry_count,
			error_message, received_at, processed_at, updated_at
		 FROM webhook_events
		 WHERE provider_event_id = ?
		 LIMIT 1`,
		providerEventID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) MarkProcessing(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE webhook_events
		 SET status = ?, retry_count = retry_count + 1, error_message = NULL, updated_at = ?
		 WHERE id = ?`,
		domain.EventStatusProcessing,
		at,
		id,
	).Error
}

func (r *repo) MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE webhook_events
		 SET status = ?, processed_at = ?, error_message = NULL, updated_at = ?
		 WHERE id = ?`,
		domain.EventStatusProcessed,
		at,
		at,
		id,
	).Error
}

func (r *repo) MarkFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, message string, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE webhook_events
		 SET status = ?, error_message = ?, updated_at = ?
		 WHERE id = ?`,
		domain.EventStatusFailed,
		message,
		at,
		id,
	).Error
}
