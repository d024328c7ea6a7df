package config

import (
	"fmt"
	"reflect"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Bind unmarshals v onto target, fills unset fields from `default` tags and
// checks `validate` tags. A nil v binds defaults only.
func Bind(v *viper.Viper, target any) error {
	if target == nil {
		return fmt.Errorf("bind target is nil")
	}
	if err := defaults.Set(target); err != nil {
		return fmt.Errorf("set defaults: %w", err)
	}
	if v != nil {
		if err := v.Unmarshal(target); err != nil {
			return fmt.Errorf("unmarshal config: %w", err)
		}
	}
	if err := validate.Struct(target); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}
	return nil
}

// Merge deep-merges layers over the `default` tags of target and decodes the
// result into target. Nested maps merge key by key, every other value (slices
// included) replaces the lower layer. Keys match field tags case-insensitively.
// Layers are not modified.
func Merge(target any, layers ...map[string]any) error {
	rv := reflect.ValueOf(target)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("merge target must be a non-nil pointer, got %T", target)
	}

	if err := defaults.Set(target); err != nil {
		return fmt.Errorf("set defaults: %w", err)
	}
	base := make(map[string]any)
	if err := mapstructure.Decode(target, &base); err != nil {
		return fmt.Errorf("encode defaults: %w", err)
	}

	v := viper.New()
	for key, value := range flatten("", base) {
		v.SetDefault(key, value)
	}
	for _, layer := range layers {
		for key, value := range flatten("", layer) {
			v.Set(key, value)
		}
	}

	rv.Elem().SetZero()
	if err := v.Unmarshal(target); err != nil {
		return fmt.Errorf("decode merged config: %w", err)
	}
	return nil
}

// flatten turns nested maps into dotted leaf keys so each layer overrides
// single values instead of whole sections.
func flatten(prefix string, in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := v.(map[string]any); ok {
			for nk, nv := range flatten(key, nested) {
				out[nk] = nv
			}
			continue
		}
		out[key] = v
	}
	return out
}
