package enrollment

import (
	"github.com/buildacademy/paycore/internal/enrollment/repository"
	"github.com/buildacademy/paycore/internal/enrollment/service"
	"go.uber.org/fx"
)

var Module = fx.Module("enrollment.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
