package account

import (
	"github.com/creditflow/creditflow/internal/account/repository"
	"github.com/creditflow/creditflow/internal/account/service"
	"go.uber.org/fx"
)

var Module = fx.Module("account",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
