package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, subscription *Subscription) error
	FindByCompanyID(ctx context.Context, db *gorm.DB, companyID snowflake.ID) (*Subscription, error)
	FindByCompanyIDForUpdate(ctx context.Context, db *gorm.DB, companyID snowflake.ID) (*Subscription, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Subscription, error)
	FindByProviderSubscriptionID(ctx context.Context, db *gorm.DB, providerSubscriptionID string) (*Subscription, error)
	// FindLapsedCancelled lists CANCELLED subscriptions whose paid period
	// ended before the cutoff, oldest first.
	FindLapsedCancelled(ctx context.Context, db *gorm.DB, cutoff time.Time, limit int) ([]Subscription, error)
	// UpdateLifecycle writes the mutable lifecycle columns conditioned on the
	// row still holding expectedStatus; returns ErrStaleSubscription when the
	// row moved underneath the caller.
	UpdateLifecycle(ctx context.Context, db *gorm.DB, subscription *Subscription, expectedStatus Status) error
}
