// Package domain defines the tenant-facing billing command surface.
package domain

import (
	"context"
	"time"

	plandomain "github.com/fabriko/fabriko/internal/plan/domain"
)

// Service is the command layer the administration UI calls: checkout, plan
// change, cancel, reactivate, and the status projection they all return.
type Service interface {
	ListPlans(ctx context.Context) ([]plandomain.Response, error)
	Checkout(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error)
	ChangePlan(ctx context.Context, req ChangePlanRequest) (*StatusProjection, error)
	Cancel(ctx context.Context, req CancelRequest) (*StatusProjection, error)
	Reactivate(ctx context.Context) (*StatusProjection, error)
	Status(ctx context.Context) (*StatusProjection, error)
}

type CheckoutRequest struct {
	PlanID       string `json:"plan_id"`
	BillingCycle string `json:"billing_cycle"`
	SuccessURL   string `json:"success_url"`
	CancelURL    string `json:"cancel_url"`
}

type ChangePlanRequest struct {
	PlanID       string  `json:"plan_id"`
	BillingCycle *string `json:"billing_cycle,omitempty"`
}

type CancelRequest struct {
	CancelAtPeriodEnd *bool   `json:"cancel_at_period_end,omitempty"`
	Reason            *string `json:"reason,omitempty"`
}

// CheckoutOutcome distinguishes the checkout results the UI must render
// differently. Gateway trouble is a structured outcome, not an error: the
// subscription stays PENDING and the caller may simply retry.
type CheckoutOutcome string

const (
	// CheckoutOutcomeRedirect means the provider issued a hosted-checkout URL.
	CheckoutOutcomeRedirect CheckoutOutcome = "REDIRECT"
	// CheckoutOutcomeActivated means the dev bypass activated synchronously.
	CheckoutOutcomeActivated CheckoutOutcome = "ACTIVATED"
	CheckoutOutcomeNotConfigured CheckoutOutcome = "NOT_CONFIGURED"
	CheckoutOutcomeGatewayFailed CheckoutOutcome = "GATEWAY_FAILED"
)

type CheckoutResult struct {
	Outcome     CheckoutOutcome   `json:"outcome"`
	RedirectURL string            `json:"redirect_url,omitempty"`
	Message     string            `json:"message,omitempty"`
	Status      *StatusProjection `json:"status,omitempty"`
}

// SubscriptionView is the tenant-facing shape of a subscription row.
type SubscriptionView struct {
	ID                 string     `json:"id"`
	PlanID             string     `json:"plan_id"`
	BillingCycle       string     `json:"billing_cycle"`
	Status             string     `json:"status"`
	CurrentPeriodStart *time.Time `json:"current_period_start,omitempty"`
	CurrentPeriodEnd   *time.Time `json:"current_period_end,omitempty"`
	CancelAtPeriodEnd  bool       `json:"cancel_at_period_end"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty"`
}

// StatusProjection is the consistent view every command returns.
type StatusProjection struct {
	Subscription *SubscriptionView    `json:"subscription"`
	Plan         *plandomain.Response `json:"plan,omitempty"`
	Warning      string               `json:"warning,omitempty"`
}
