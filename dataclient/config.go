package dataclient

import (
	"fmt"

	"github.com/leeforge/dataclient/component"
	"github.com/leeforge/dataclient/config"
)

// Config is the component configuration, bound under config.ConfigKey(ComponentKey).
type Config struct {
	// LazyConnect defers connecting to the client's first use instead of Start.
	LazyConnect bool         `mapstructure:"lazyConnect" json:"lazyConnect" yaml:"lazyConnect"`
	Models      ModelsConfig `mapstructure:"models" json:"models" yaml:"models"`
}

// ModelsConfig controls model accessor bindings.
type ModelsConfig struct {
	Namespace string   `mapstructure:"namespace" json:"namespace" yaml:"namespace" default:"dataclient.models" validate:"required"`
	Tags      []string `mapstructure:"tags" json:"tags" yaml:"tags" default:"[\"dataclientModel\"]" validate:"dive,required"`
}

// DefaultConfig returns the configuration used when nothing is supplied.
func DefaultConfig() Config {
	return Config{
		Models: ModelsConfig{
			Namespace: DefaultModelNamespace,
			Tags:      []string{ModelTag},
		},
	}
}

// MergeConfig deep-merges partials, lowest priority first, over DefaultConfig.
// A partial is a map[string]any, a Config or a *Config; nil partials are skipped.
// Only non-zero fields of a Config partial take part in the merge.
func MergeConfig(partials ...any) (Config, error) {
	layers := make([]map[string]any, 0, len(partials))
	for _, p := range partials {
		layer, err := toLayer(p)
		if err != nil {
			return Config{}, component.NewValidationError(ComponentKey, "", err.Error(), err)
		}
		layers = append(layers, layer)
	}

	var cfg Config
	if err := config.Merge(&cfg, layers...); err != nil {
		return Config{}, component.NewValidationError(ComponentKey, "", "merge configuration", err)
	}
	if err := component.ValidateStruct(ComponentKey, cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func toLayer(partial any) (map[string]any, error) {
	switch p := partial.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		return p, nil
	case Config:
		return p.layer(), nil
	case *Config:
		if p == nil {
			return nil, nil
		}
		return p.layer(), nil
	default:
		return nil, fmt.Errorf("unsupported configuration type %T", partial)
	}
}

func (c Config) layer() map[string]any {
	out := make(map[string]any)
	if c.LazyConnect {
		out["lazyConnect"] = true
	}
	models := make(map[string]any)
	if c.Models.Namespace != "" {
		models["namespace"] = c.Models.Namespace
	}
	if c.Models.Tags != nil {
		models["tags"] = c.Models.Tags
	}
	if len(models) > 0 {
		out["models"] = models
	}
	return out
}
