package company

import (
	"github.com/fabriko/fabriko/internal/company/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("company",
	fx.Provide(repository.Provide),
)
