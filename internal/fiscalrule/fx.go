package fiscalrule

import (
	"github.com/notazul/notazul/internal/fiscalrule/repository"
	"github.com/notazul/notazul/internal/fiscalrule/service"
	"go.uber.org/fx"
)

var Module = fx.Module("fiscalrule",
	fx.Provide(repository.NewRepository),
	fx.Provide(service.NewResolver),
)
