package subscription

import (
	"github.com/fabriko/fabriko/internal/subscription/repository"
	"github.com/fabriko/fabriko/internal/subscription/service"
	"go.uber.org/fx"
)

var Module = fx.Module("subscription.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
