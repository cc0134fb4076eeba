// Package domain contains the subscription lifecycle model.
package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Status represents lifecycle states for a subscription.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusActive    Status = "ACTIVE"
	StatusPastDue   Status = "PAST_DUE"
	StatusCancelled Status = "CANCELLED"
	StatusExpired   Status = "EXPIRED"
)

// Terminal reports whether the status admits no further provider-driven
// transitions. Re-subscribing from EXPIRED goes through a fresh checkout.
func (s Status) Terminal() bool { return s == StatusExpired }

// BillingCycle is the renewal interval chosen at checkout.
type BillingCycle string

const (
	CycleMonthly BillingCycle = "MONTHLY"
	CycleYearly  BillingCycle = "YEARLY"
)

func ParseBillingCycle(value string) (BillingCycle, error) {
	switch BillingCycle(strings.ToUpper(strings.TrimSpace(value))) {
	case CycleMonthly:
		return CycleMonthly, nil
	case CycleYearly:
		return CycleYearly, nil
	default:
		return "", ErrInvalidBillingCycle
	}
}

// PeriodEnd returns the end of a billing period starting at the given time.
func (c BillingCycle) PeriodEnd(start time.Time) time.Time {
	if c == CycleYearly {
		return start.AddDate(1, 0, 0)
	}
	return start.AddDate(0, 1, 0)
}

// Subscription captures a company's paid-plan agreement. At most one row
// exists per company; it is reused across re-subscriptions rather than
// deleted.
type Subscription struct {
	ID                     snowflake.ID      `gorm:"primaryKey"`
	CompanyID              snowflake.ID      `gorm:"not null;uniqueIndex:ux_subscriptions_company"`
	PlanID                 snowflake.ID      `gorm:"not null;index"`
	BillingCycle           BillingCycle      `gorm:"type:text;not null"`
	Status                 Status            `gorm:"type:text;not null"`
	CurrentPeriodStart     *time.Time        `gorm:""`
	CurrentPeriodEnd       *time.Time        `gorm:""`
	CancelAtPeriodEnd      bool              `gorm:"not null;default:false"`
	CancelledAt            *time.Time        `gorm:""`
	CancelReason           *string           `gorm:"type:text"`
	ProviderSubscriptionID *string           `gorm:"type:text;index"`
	ProviderCustomerID     *string           `gorm:"type:text"`
	Metadata               datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt              time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt              time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Subscription) TableName() string { return "subscriptions" }

// ProviderRefs carries the external identifiers reported by the payment
// provider once a checkout completes.
type ProviderRefs struct {
	SubscriptionID *string
	CustomerID     *string
}
