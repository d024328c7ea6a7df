package commands

import (
	"fmt"
	"time"

	"github.com/leeforge/dataclient/config"
	"github.com/leeforge/dataclient/gormclient"
	"github.com/leeforge/dataclient/logging"
	"github.com/spf13/viper"
)

// Settings is the dataclientd configuration file.
type Settings struct {
	Server     ServerSettings     `mapstructure:"server"`
	Log        logging.Config     `mapstructure:"log"`
	Datasource gormclient.Config  `mapstructure:"datasource"`
	Middleware MiddlewareSettings `mapstructure:"middleware"`

	// Dataclient is bound as the component configuration, e.g.
	//
	//	dataclient:
	//	  lazyConnect: true
	//	  models:
	//	    namespace: app.models
	Dataclient map[string]any `mapstructure:"dataclient"`
}

type ServerSettings struct {
	Addr            string        `mapstructure:"addr" default:":8080" validate:"required"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown-timeout" default:"15s"`
}

// MiddlewareSettings selects the stock middlewares contributed at startup.
type MiddlewareSettings struct {
	DisableQueryLog bool          `mapstructure:"disable-query-log"`
	DisableMetrics  bool          `mapstructure:"disable-metrics"`
	SlowThreshold   time.Duration `mapstructure:"slow-threshold" default:"200ms"`
	LogParams       bool          `mapstructure:"log-params"`
}

// loadSettings reads the layered configuration. Missing files are not an
// error: every setting has a default.
func loadSettings() (Settings, error) {
	opts := config.DefaultOptions()
	if configDir != "" {
		opts.BasePath = configDir
	}
	opts.EnvPrefix = envPrefix
	opts.Optional = true

	v, err := config.Load(opts)
	if err != nil {
		return Settings{}, err
	}
	return bindSettings(v)
}

func bindSettings(v *viper.Viper) (Settings, error) {
	settings := Settings{Log: logging.DefaultConfig()}
	if err := config.Bind(v, &settings); err != nil {
		return Settings{}, fmt.Errorf("load settings: %w", err)
	}
	return settings, nil
}
