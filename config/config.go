// Package config loads layered YAML configuration with viper and binds it
// onto structs carrying defaults and validate tags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Options controls where and how configuration is loaded.
type Options struct {
	BasePath  string
	FileName  string
	FileType  string
	EnvPrefix string
	// Mode overrides GO_ENV_MODE when set.
	Mode Mode
	// Optional allows Load to succeed when no file exists.
	Optional bool
}

// DefaultOptions reads ./config/config*.yaml, or $CONFIG_PATH when set.
func DefaultOptions() Options {
	basePath := os.Getenv("CONFIG_PATH")
	if basePath == "" {
		basePath = "config"
	}
	return Options{
		BasePath: basePath,
		FileName: "config",
		FileType: "yaml",
	}
}

// ErrNoConfigFiles is returned by Load when no configuration file exists and Options.Optional is false.
var ErrNoConfigFiles = errors.New("no configuration files found")

// Load reads, in increasing priority, <name>, <name>.local, <name>.<mode> and
// <name>.<mode>.local, then applies environment overrides: "datasource.sqlite.path"
// is overridden by PREFIX_DATASOURCE_SQLITE_PATH.
func Load(opts Options) (*viper.Viper, error) {
	if opts.FileName == "" {
		opts.FileName = "config"
	}
	if opts.FileType == "" {
		opts.FileType = "yaml"
	}
	if opts.Mode == "" {
		opts.Mode = CurrentMode()
	}

	paths := filePaths(opts)
	if len(paths) == 0 && !opts.Optional {
		return nil, fmt.Errorf("%w in %s", ErrNoConfigFiles, opts.BasePath)
	}

	v := viper.New()
	v.SetConfigType(opts.FileType)
	for _, path := range paths {
		layer := viper.New()
		layer.SetConfigFile(path)
		if err := layer.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
		if err := v.MergeConfigMap(layer.AllSettings()); err != nil {
			return nil, fmt.Errorf("merge config file %s: %w", path, err)
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	if opts.EnvPrefix != "" {
		v.SetEnvPrefix(opts.EnvPrefix)
	}
	v.AutomaticEnv()
	applyEnvOverrides(v, opts.EnvPrefix)

	return v, nil
}

// applyEnvOverrides copies set environment variables onto every known key so
// they also win in AllSettings and Sub, which AutomaticEnv alone does not cover.
func applyEnvOverrides(v *viper.Viper, prefix string) {
	replacer := strings.NewReplacer(".", "_", "-", "_")
	for _, key := range v.AllKeys() {
		envKey := strings.ToUpper(replacer.Replace(key))
		if prefix != "" {
			envKey = strings.ToUpper(prefix) + "_" + envKey
		}
		if value, ok := os.LookupEnv(envKey); ok && value != "" {
			v.Set(key, value)
		}
	}
}

func filePaths(opts Options) []string {
	names := []string{opts.FileName, opts.FileName + ".local"}
	for _, alias := range opts.Mode.aliases() {
		names = append(names,
			fmt.Sprintf("%s.%s", opts.FileName, alias),
			fmt.Sprintf("%s.%s.local", opts.FileName, alias),
		)
	}

	var paths []string
	for _, name := range names {
		path := filepath.Join(opts.BasePath, name+"."+opts.FileType)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			paths = append(paths, path)
		}
	}
	return paths
}
