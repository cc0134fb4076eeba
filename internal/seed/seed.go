package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	plandomain "github.com/fabriko/fabriko/internal/plan/domain"
)

// EnsurePlanCatalog seeds the default plan catalog so a fresh install has
// something to sell. Existing plans are left untouched, so operators can
// edit prices without the seed reverting them on restart.
func EnsurePlanCatalog(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, plan := range defaultPlans(node) {
			if err := ensurePlanTx(ctx, tx, plan); err != nil {
				return err
			}
		}
		return nil
	})
}

func ensurePlanTx(ctx context.Context, tx *gorm.DB, plan *plandomain.Plan) error {
	var count int64
	if err := tx.WithContext(ctx).
		Model(&plandomain.Plan{}).
		Where("code = ?", plan.Code).
		Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	return tx.WithContext(ctx).Create(plan).Error
}

func defaultPlans(node *snowflake.Node) []*plandomain.Plan {
	now := time.Now().UTC()
	starterDesc := "For workshops getting started"
	proDesc := "For growing manufacturing teams"
	businessDesc := "For multi-site operations"

	return []*plandomain.Plan{
		{
			ID:                node.Generate().Int64(),
			Code:              "STARTER",
			Name:              "Starter",
			Description:       &starterDesc,
			MonthlyPriceCents: 1900,
			YearlyPriceCents:  19000,
			Currency:          "EUR",
			Features:          datatypes.JSONMap{"orders": true, "inventory": true},
			Limits:            datatypes.JSONMap{"users": 3, "orders_per_month": 100},
			Active:            true,
			SortOrder:         1,
			CreatedAt:         now,
			UpdatedAt:         now,
		},
		{
			ID:                node.Generate().Int64(),
			Code:              "PRO",
			Name:              "Pro",
			Description:       &proDesc,
			MonthlyPriceCents: 4900,
			YearlyPriceCents:  49000,
			Currency:          "EUR",
			Features:          datatypes.JSONMap{"orders": true, "inventory": true, "production_planning": true},
			Limits:            datatypes.JSONMap{"users": 10, "orders_per_month": 1000},
			Active:            true,
			SortOrder:         2,
			CreatedAt:         now,
			UpdatedAt:         now,
		},
		{
			ID:                node.Generate().Int64(),
			Code:              "BUSINESS",
			Name:              "Business",
			Description:       &businessDesc,
			MonthlyPriceCents: 9900,
			YearlyPriceCents:  99000,
			Currency:          "EUR",
			Features:          datatypes.JSONMap{"orders": true, "inventory": true, "production_planning": true, "multi_site": true},
			Limits:            datatypes.JSONMap{"users": 50, "orders_per_month": 10000},
			Active:            true,
			SortOrder:         3,
			CreatedAt:         now,
			UpdatedAt:         now,
		},
	}
}
