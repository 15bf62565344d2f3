package observability

import (
	"github.com/notazul/notazul/internal/config"
	"github.com/notazul/notazul/internal/observability/logger"
	"github.com/notazul/notazul/internal/observability/metrics"
	"go.uber.org/fx"
)

var Module = fx.Module("observability",
	fx.Provide(
		NewLoggerConfig,
		logger.New,
		metrics.New,
	),
)

func NewLoggerConfig(cfg config.Config) logger.Config {
	return logger.Config{
		ServiceName:         cfg.AppName,
		Environment:         cfg.Environment,
		Version:             cfg.AppVersion,
		Level:               "info",
		Format:              "json",
		IncludeCaller:       true,
		IncludeStackOnError: true,
	}
}
