package plan

import (
	"github.com/fabriko/fabriko/internal/plan/repository"
	"github.com/fabriko/fabriko/internal/plan/service"
	"go.uber.org/fx"
)

var Module = fx.Module("plan.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
