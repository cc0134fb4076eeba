package payment

import (
	"github.com/fabriko/fabriko/internal/payment/gateway"
	"github.com/fabriko/fabriko/internal/payment/repository"
	"github.com/fabriko/fabriko/internal/payment/signature"
	"github.com/fabriko/fabriko/internal/payment/webhook"
	"go.uber.org/fx"
)

var Module = fx.Module("payment",
	fx.Provide(signature.New),
	fx.Provide(gateway.New),
	fx.Provide(repository.Provide),
	fx.Provide(webhook.New),
)
