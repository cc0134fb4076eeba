package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	subscriptiondomain "github.com/fabriko/fabriko/internal/subscription/domain"
	"gorm.io/gorm"
)

const subscriptionColumns = `id, company_id, plan_id, billing_cycle, status, current_period_start,
	 current_period_end, cancel_at_period_end, cancelled_at, cancel_reason,
	 provider_subscription_id, provider_customer_id, metadata, created_at, updated_at`

type repo struct{}

func Provide() subscriptiondomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, subscription *subscriptiondomain.Subscription) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO subscriptions (
			id, company_id, plan_id, billing_cycle, status, current_period_start,
			current_period_end, cancel_at_period_end, cancelled_at, cancel_reason,
			provider_subscription_id, provider_customer_id, metadata, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		subscription.ID,
		subscription.CompanyID,
		subscription.PlanID,
		subscription.BillingCycle,
		subscription.Status,
		subscription.CurrentPeriodStart,
		subscription.CurrentPeriodEnd,
		subscription.CancelAtPeriodEnd,
		subscription.CancelledAt,
		subscription.CancelReason,
		subscription.ProviderSubscriptionID,
		subscription.ProviderCustomerID,
		subscription.Metadata,
		subscription.CreatedAt,
		subscription.UpdatedAt,
	).Error
}

func (r *repo) FindByCompanyID(ctx context.Context, db *gorm.DB, companyID snowflake.ID) (*subscriptiondomain.Subscription, error) {
	var subscription subscriptiondomain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE company_id = ?`,
		companyID,
	).Scan(&subscription).Error
	if err != nil {
		return nil, err
	}
	if subscription.ID == 0 {
		return nil, nil
	}
	return &subscription, nil
}

func (r *repo) FindByCompanyIDForUpdate(ctx context.Context, db *gorm.DB, companyID snowflake.ID) (*subscriptiondomain.Subscription, error) {
	var subscription subscriptiondomain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE company_id = ? FOR UPDATE`,
		companyID,
	).Scan(&subscription).Error
	if err != nil {
		return nil, err
	}
	if subscription.ID == 0 {
		return nil, nil
	}
	return &subscription, nil
}

func (r *repo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*subscriptiondomain.Subscription, error) {
	var subscription subscriptiondomain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = ? FOR UPDATE`,
		id,
	).Scan(&subscription).Error
	if err != nil {
		return nil, err
	}
	if subscription.ID == 0 {
		return nil, nil
	}
	return &subscription, nil
}

func (r *repo) FindByProviderSubscriptionID(ctx context.Context, db *gorm.DB, providerSubscriptionID string) (*subscriptiondomain.Subscription, error) {
	var subscription subscriptiondomain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE provider_subscription_id = ?`,
		providerSubscriptionID,
	).Scan(&subscription).Error
	if err != nil {
		return nil, err
	}
	if subscription.ID == 0 {
		return nil, nil
	}
	return &subscription, nil
}

func (r *repo) FindLapsedCancelled(ctx context.Context, db *gorm.DB, cutoff time.Time, limit int) ([]subscriptiondomain.Subscription, error) {
	var subscriptions []subscriptiondomain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT `+subscriptionColumns+` FROM subscriptions
		 WHERE status = ? AND current_period_end IS NOT NULL AND current_period_end < ?
		 ORDER BY current_period_end ASC
		 LIMIT ?`,
		subscriptiondomain.StatusCancelled, cutoff, limit,
	).Scan(&subscriptions).Error
	if err != nil {
		return nil, err
	}
	return subscriptions, nil
}

func (r *repo) UpdateLifecycle(ctx context.Context, db *gorm.DB, subscription *subscriptiondomain.Subscription, expectedStatus subscriptiondomain.Status) error {
	res := db.WithContext(ctx).Exec(
		`UPDATE subscriptions
		 SET plan_id = ?, billing_cycle = ?, status = ?, current_period_start = ?,
		     current_period_end = ?, cancel_at_period_end = ?, cancelled_at = ?,
		     cancel_reason = ?, provider_subscription_id = ?, provider_customer_id = ?,
		     updated_at = ?
		 WHERE id = ? AND status = ?`,
		subscription.PlanID,
		subscription.BillingCycle,
		subscription.Status,
		subscription.CurrentPeriodStart,
		subscription.CurrentPeriodEnd,
		subscription.CancelAtPeriodEnd,
		subscription.CancelledAt,
		subscription.CancelReason,
		subscription.ProviderSubscriptionID,
		subscription.ProviderCustomerID,
		subscription.UpdatedAt,
		subscription.ID,
		expectedStatus,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return subscriptiondomain.ErrStaleSubscription
	}
	return nil
}
