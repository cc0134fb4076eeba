package domain

import (
	"time"

	"gorm.io/datatypes"
)

// Plan is a purchasable catalog entry. The billing core treats plans as
// read-only; catalog management lives elsewhere.
type Plan struct {
	ID                int64             `json:"id" gorm:"primaryKey"`
	Code              string            `json:"code" gorm:"type:text;not null;uniqueIndex:ux_plans_code"`
	Name              string            `json:"name" gorm:"type:text;not null"`
	Description       *string           `json:"description,omitempty" gorm:"type:text"`
	MonthlyPriceCents int64             `json:"monthly_price_cents" gorm:"not null;default:0"`
	YearlyPriceCents  int64             `json:"yearly_price_cents" gorm:"not null;default:0"`
	Currency          string            `json:"currency" gorm:"type:text;not null"`
	Features          datatypes.JSONMap `json:"features,omitempty" gorm:"type:jsonb"`
	Limits            datatypes.JSONMap `json:"limits,omitempty" gorm:"type:jsonb"`
	Active            bool              `json:"active" gorm:"not null;default:true"`
	SortOrder         int               `json:"sort_order" gorm:"not null;default:0"`
	CreatedAt         time.Time         `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt         time.Time         `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Plan) TableName() string { return "plans" }

// PriceCents returns the charge amount for a billing cycle.
func (p *Plan) PriceCents(cycle string) int64 {
	if cycle == "YEARLY" {
		return p.YearlyPriceCents
	}
	return p.MonthlyPriceCents
}
