package ledger

import (
	"github.com/creditflow/creditflow/internal/ledger/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("ledger.store",
	fx.Provide(repository.NewStore),
)
