package migration

import (
	"go.uber.org/fx"
	"gorm.io/gorm"

	"github.com/fabriko/fabriko/internal/seed"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB) error {
		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}

		if err := RunMigrations(sqlDB); err != nil {
			return err
		}

		return seed.EnsurePlanCatalog(conn)
	}),
)
