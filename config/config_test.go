package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type serverConfig struct {
	Addr    string   `mapstructure:"addr" default:":8080" validate:"required"`
	Verbose bool     `mapstructure:"verbose"`
	Store   storeCfg `mapstructure:"store"`
}

type storeCfg struct {
	Path  string   `mapstructure:"path" default:"data.db"`
	Names []string `mapstructure:"names" default:"[\"a\",\"b\"]"`
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestParseMode(t *testing.T) {
	tests := map[string]Mode{
		"":            DevMode,
		"dev":         DevMode,
		" PROD ":      ProMode,
		"production":  ProMode,
		"testing":     TestMode,
		"unsupported": DevMode,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseMode(in), "ParseMode(%q)", in)
	}
}

func TestLoad_LayersFilesByMode(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "config.yaml", "addr: \":9000\"\nstore:\n  path: base.db\n")
	writeFile(t, dir, "config.local.yaml", "verbose: true\n")
	writeFile(t, dir, "config.test.yaml", "store:\n  path: test.db\n")
	writeFile(t, dir, "config.production.yaml", "addr: \":80\"\n")

	v, err := Load(Options{BasePath: dir, Mode: TestMode})
	require.NoError(t, err)

	var cfg serverConfig
	require.NoError(t, Bind(v, &cfg))
	assert.Equal(t, ":9000", cfg.Addr)
	assert.True(t, cfg.Verbose)
	assert.Equal(t, "test.db", cfg.Store.Path, "mode file overrides base file")
	assert.Equal(t, []string{"a", "b"}, cfg.Store.Names, "unset fields keep defaults")
}

func TestLoad_EnvOverrides(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "config.yaml", "store:\n  path: base.db\n")
	t.Setenv("APP_STORE_PATH", "env.db")

	v, err := Load(Options{BasePath: dir, EnvPrefix: "app", Mode: DevMode})
	require.NoError(t, err)
	assert.Equal(t, "env.db", v.GetString("store.path"))

	var cfg serverConfig
	require.NoError(t, Bind(v.Sub("store"), &cfg.Store))
	assert.Equal(t, "env.db", cfg.Store.Path)
}

func TestLoad_MissingFiles(t *testing.T) {
	_, err := Load(Options{BasePath: t.TempDir()})
	require.ErrorIs(t, err, ErrNoConfigFiles)

	v, err := Load(Options{BasePath: t.TempDir(), Optional: true})
	require.NoError(t, err)
	assert.Empty(t, v.AllKeys())
}

func TestBind_NilViperAppliesDefaults(t *testing.T) {
	var cfg serverConfig
	require.NoError(t, Bind(nil, &cfg))
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "data.db", cfg.Store.Path)
}

func TestBind_Validates(t *testing.T) {
	type strict struct {
		Name string `mapstructure:"name" validate:"required"`
	}
	err := Bind(nil, &strict{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validate config")
}

func TestMerge_DeepMergesLayers(t *testing.T) {
	low := map[string]any{"verbose": true, "store": map[string]any{"path": "low.db"}}
	high := map[string]any{"Store": map[string]any{"Names": []string{"x"}}}

	var cfg serverConfig
	require.NoError(t, Merge(&cfg, low, nil, high))

	assert.Equal(t, ":8080", cfg.Addr)
	assert.True(t, cfg.Verbose)
	assert.Equal(t, "low.db", cfg.Store.Path, "nested keys merge instead of replacing the section")
	assert.Equal(t, []string{"x"}, cfg.Store.Names, "slices replace")

	assert.Contains(t, high, "Store", "layers are not modified")
}

func TestMerge_ResetsTarget(t *testing.T) {
	cfg := serverConfig{Store: storeCfg{Names: []string{"1", "2", "3"}}}
	require.NoError(t, Merge(&cfg, map[string]any{"store": map[string]any{"names": []string{"z"}}}))
	assert.Equal(t, []string{"z"}, cfg.Store.Names)
}

func TestMerge_RejectsNonPointer(t *testing.T) {
	assert.Error(t, Merge(serverConfig{}))
}
