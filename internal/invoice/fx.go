package invoice

import (
	"github.com/notazul/notazul/internal/invoice/repository"
	"github.com/notazul/notazul/internal/invoice/service"
	"go.uber.org/fx"
)

var Module = fx.Module("invoice",
	fx.Provide(repository.NewRepository),
	fx.Provide(service.NewGenerator),
)
