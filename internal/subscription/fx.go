package subscription

import (
	"github.com/buildacademy/paycore/internal/subscription/repository"
	"github.com/buildacademy/paycore/internal/subscription/service"
	"go.uber.org/fx"
)

var Module = fx.Module("subscription.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
