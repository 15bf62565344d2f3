package business

import (
	"github.com/notazul/notazul/internal/business/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("business",
	fx.Provide(repository.NewRepository),
)
