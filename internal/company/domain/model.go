// Package domain contains the tenant billing facet.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// BillingStatus gates a company's access to the product. It is mutated only
// as a side effect of subscription transitions, never directly.
type BillingStatus string

const (
	BillingStatusActive    BillingStatus = "ACTIVE"
	BillingStatusSuspended BillingStatus = "SUSPENDED"
)

// Company represents a tenant. The billing core only owns the billing_status
// column; the rest of the row belongs to tenant administration.
type Company struct {
	ID            snowflake.ID  `gorm:"primaryKey" json:"id"`
	Name          string        `gorm:"type:text;not null" json:"name"`
	BillingStatus BillingStatus `gorm:"type:text;not null;default:'ACTIVE'" json:"billing_status"`
	CreatedAt     time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt     time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Company) TableName() string { return "companies" }
