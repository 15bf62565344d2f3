package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// FiscalConfig tunes SEFAZ communication without a redeploy. Endpoint
// overrides take precedence over the built-in authorizer tables.
type FiscalConfig struct {
	// TimeoutSeconds bounds every SEFAZ round trip.
	TimeoutSeconds int `mapstructure:"timeoutSeconds"`

	// EndpointOverrides maps "model:environment:uf:service" to a URL,
	// e.g. "55:2:SP:autorizacao".
	EndpointOverrides map[string]string `mapstructure:"endpointOverrides"`
}

func (c FiscalConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func DefaultFiscalConfig() FiscalConfig {
	return FiscalConfig{
		TimeoutSeconds:    30,
		EndpointOverrides: map[string]string{},
	}
}

type FiscalConfigHolder struct {
	current atomic.Value // holds FiscalConfig
}

func NewFiscalConfigHolder() (*FiscalConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("fiscal")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/notazul/config") // Volume-mounted config
	v.AddConfigPath("/etc/notazul")            // System config
	v.AddConfigPath(".")                       // Current directory (dev mode)

	v.SetEnvPrefix("NOTAZUL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultFiscalConfig()
	v.SetDefault("fiscal.timeoutSeconds", defaults.TimeoutSeconds)
	v.SetDefault("fiscal.endpointOverrides", defaults.EndpointOverrides)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg FiscalConfig
	if err := v.UnmarshalKey("fiscal", &cfg); err != nil {
		return nil, err
	}
	if err := validateFiscalConfig(cfg); err != nil {
		return nil, err
	}

	holder := &FiscalConfigHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated FiscalConfig
		if err := v.UnmarshalKey("fiscal", &updated); err != nil {
			log.Printf("[fiscal-config] reload failed: %v", err)
			return
		}
		if err := validateFiscalConfig(updated); err != nil {
			log.Printf("[fiscal-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[fiscal-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

// NewStaticFiscalConfigHolder wraps a fixed config, used by tests.
func NewStaticFiscalConfigHolder(cfg FiscalConfig) *FiscalConfigHolder {
	holder := &FiscalConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func (h *FiscalConfigHolder) Get() FiscalConfig {
	return h.current.Load().(FiscalConfig)
}

func validateFiscalConfig(cfg FiscalConfig) error {
	if cfg.TimeoutSeconds <= 0 {
		return errors.New("fiscal.timeoutSeconds must be positive")
	}
	return nil
}
