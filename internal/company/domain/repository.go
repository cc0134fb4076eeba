package domain

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

var ErrNotFound = errors.New("company_not_found")

type Repository interface {
	Create(ctx context.Context, db *gorm.DB, company *Company) error
	FindByID(ctx context.Context, db *gorm.DB, id int64) (*Company, error)
	UpdateBillingStatus(ctx context.Context, db *gorm.DB, id int64, status BillingStatus) error
}
