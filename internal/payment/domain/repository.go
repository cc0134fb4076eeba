package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// InsertEvent conditionally creates the ledger row; the ON CONFLICT guard
	// makes it safe against concurrent deliveries of the same event id.
	// Returns false when the id was already recorded.
	InsertEvent(ctx context.Context, db *gorm.DB, event *WebhookEvent) (bool, error)
	FindByProviderEventID(ctx context.Context, db *gorm.DB, providerEventID string) (*WebhookEvent, error)
	// MarkProcessing re-enters a FAILED or stuck PROCESSING row and bumps the
	// retry counter.
	MarkProcessing(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error
	MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error
	MarkFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, message string, at time.Time) error
}
