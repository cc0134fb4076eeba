package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Service owns every mutation of a subscription row and of the company
// activation flag. Command handlers and the webhook pipeline both go through
// it, so the transition rules live in exactly one place.
type Service interface {
	// StartCheckout creates the company's subscription row in PENDING, or
	// resets the existing row back to PENDING for a fresh checkout.
	StartCheckout(ctx context.Context, companyID, planID snowflake.ID, cycle BillingCycle) (*Subscription, error)

	// ConfirmCheckout applies the provider's checkout confirmation:
	// PENDING -> ACTIVE, opens the billing period, activates the company.
	ConfirmCheckout(ctx context.Context, subscriptionID snowflake.ID, refs ProviderRefs) (*Subscription, error)

	// MarkInvoicePaid extends the current period and returns the row to
	// ACTIVE. CANCELLED rows are left untouched; only an explicit
	// reactivation or a new checkout leaves CANCELLED.
	MarkInvoicePaid(ctx context.Context, subscriptionID snowflake.ID, eventTime time.Time) (*Subscription, error)

	// MarkPaymentFailed moves a non-terminal row to PAST_DUE. The company
	// stays active for the grace period.
	MarkPaymentFailed(ctx context.Context, subscriptionID snowflake.ID) (*Subscription, error)

	// Expire ends the subscription and suspends the company.
	Expire(ctx context.Context, subscriptionID snowflake.ID) (*Subscription, error)

	Cancel(ctx context.Context, companyID snowflake.ID, cancelAtPeriodEnd bool, reason *string) (*Subscription, error)
	Reactivate(ctx context.Context, companyID snowflake.ID) (*Subscription, error)
	ChangePlan(ctx context.Context, companyID, newPlanID snowflake.ID, newCycle *BillingCycle) (*Subscription, error)

	GetByCompanyID(ctx context.Context, companyID snowflake.ID) (*Subscription, error)
}

var (
	ErrInvalidCompany      = errors.New("invalid_company")
	ErrInvalidBillingCycle = errors.New("invalid_billing_cycle")
	ErrNotFound            = errors.New("subscription_not_found")
	ErrInvalidTransition   = errors.New("invalid_transition")
	ErrAlreadyCancelled    = errors.New("already_cancelled")
	ErrNotCancelled        = errors.New("not_cancelled")
	ErrReactivationExpired = errors.New("reactivation_window_closed")
	ErrStaleSubscription   = errors.New("subscription_modified_concurrently")
)
