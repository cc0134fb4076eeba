package repository

import (
	"context"
	"time"

	"github.com/fabriko/fabriko/internal/company/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Create(ctx context.Context, db *gorm.DB, company *domain.Company) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO companies (id, name, billing_status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		company.ID,
		company.Name,
		company.BillingStatus,
		company.CreatedAt,
		company.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id int64) (*domain.Company, error) {
	var c domain.Company
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, billing_status, created_at, updated_at
		 FROM companies WHERE id = ?`,
		id,
	).Scan(&c).Error
	if err != nil {
		return nil, err
	}
	if c.ID == 0 {
		return nil, nil
	}
	return &c, nil
}

func (r *repo) UpdateBillingStatus(ctx context.Context, db *gorm.DB, id int64, status domain.BillingStatus) error {
	res := db.WithContext(ctx).Exec(
		`UPDATE companies SET billing_status = ?, updated_at = ? WHERE id = ?`,
		status,
		time.Now().UTC(),
		id,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
