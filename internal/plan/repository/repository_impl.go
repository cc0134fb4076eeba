package repository

import (
	"context"

	"github.com/fabriko/fabriko/internal/plan/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Create(ctx context.Context, db *gorm.DB, plan *domain.Plan) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO plans (id, code, name, description, monthly_price_cents, yearly_price_cents, currency, features, limits, active, sort_order, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		plan.ID,
		plan.Code,
		plan.Name,
		plan.Description,
		plan.MonthlyPriceCents,
		plan.YearlyPriceCents,
		plan.Currency,
		plan.Features,
		plan.Limits,
		plan.Active,
		plan.SortOrder,
		plan.CreatedAt,
		plan.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id int64) (*domain.Plan, error) {
	var p domain.Plan
	err := db.WithContext(ctx).Raw(
		`SELECT id, code, name, description, monthly_price_cents, yearly_price_cents, currency, features, limits, active, sort_order, created_at, updated_at
		 FROM plans WHERE id = ?`,
		id,
	).Scan(&p).Error
	if err != nil {
		return nil, err
	}
	if p.ID == 0 {
		return nil, nil
	}
	return &p, nil
}

func (r *repo) FindByCode(ctx context.Context, db *gorm.DB, code string) (*domain.Plan, error) {
	var p domain.Plan
	err := db.WithContext(ctx).Raw(
		`SELECT id, code, name, description, monthly_price_cents, yearly_price_cents, currency, features, limits, active, sort_order, created_at, updated_at
		 FROM plans WHERE code = ?`,
		code,
	).Scan(&p).Error
	if err != nil {
		return nil, err
	}
	if p.ID == 0 {
		return nil, nil
	}
	return &p, nil
}

func (r *repo) FindActive(ctx context.Context, db *gorm.DB) ([]domain.Plan, error) {
	var items []domain.Plan
	err := db.WithContext(ctx).Raw(
		`SELECT id, code, name, description, monthly_price_cents, yearly_price_cents, currency, features, limits, active, sort_order, created_at, updated_at
		 FROM plans WHERE active = ? ORDER BY sort_order ASC, id ASC`,
		true,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
