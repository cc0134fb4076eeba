package domain

import (
	"context"
	"errors"
	"time"
)

type Service interface {
	List(ctx context.Context) ([]Response, error)
	Get(ctx context.Context, id string) (*Response, error)
}

type Response struct {
	ID                string         `json:"id"`
	Code              string         `json:"code"`
	Name              string         `json:"name"`
	Description       *string        `json:"description,omitempty"`
	MonthlyPriceCents int64          `json:"monthly_price_cents"`
	YearlyPriceCents  int64          `json:"yearly_price_cents"`
	Currency          string         `json:"currency"`
	Features          map[string]any `json:"features,omitempty"`
	Limits            map[string]any `json:"limits,omitempty"`
	SortOrder         int            `json:"sort_order"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

var (
	ErrNotFound  = errors.New("plan_not_found")
	ErrInactive  = errors.New("plan_inactive")
	ErrInvalidID = errors.New("invalid_plan_id")
)
