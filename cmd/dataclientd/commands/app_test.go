package commands

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/leeforge/dataclient/dataclient"
	"github.com/leeforge/dataclient/gormclient"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testSettings(t *testing.T, values map[string]any) Settings {
	t.Helper()
	v := viper.New()
	for k, val := range values {
		v.Set(k, val)
	}
	settings, err := bindSettings(v)
	require.NoError(t, err)
	return settings
}

func TestBindSettings_Defaults(t *testing.T) {
	settings := testSettings(t, nil)

	assert.Equal(t, ":8080", settings.Server.Addr)
	assert.Equal(t, 15*time.Second, settings.Server.ShutdownTimeout)
	assert.Equal(t, 200*time.Millisecond, settings.Middleware.SlowThreshold)
	assert.Equal(t, gormclient.DriverSQLite, settings.Datasource.Driver)
	assert.Equal(t, gormclient.MemoryPath, settings.Datasource.SQLite.Path)
	assert.Equal(t, "info", settings.Log.Level)
	assert.True(t, settings.Log.LogInTerminal)
}

func TestBindSettings_Overrides(t *testing.T) {
	settings := testSettings(t, map[string]any{
		"server.addr":                 ":9090",
		"datasource.auto-migrate":     true,
		"middleware.slow-threshold":   "1s",
		"middleware.disable-metrics":  true,
		"dataclient.lazyConnect":      true,
		"dataclient.models.namespace": "app.models",
		"log.level":                   "debug",
	})

	assert.Equal(t, ":9090", settings.Server.Addr)
	assert.True(t, settings.Datasource.AutoMigrate)
	assert.Equal(t, time.Second, settings.Middleware.SlowThreshold)
	assert.True(t, settings.Middleware.DisableMetrics)
	assert.Equal(t, "debug", settings.Log.Level)
	assert.NotEmpty(t, settings.Dataclient)
}

func TestBindSettings_RejectsInvalidLogLevel(t *testing.T) {
	v := viper.New()
	v.Set("log.level", "verbose")
	_, err := bindSettings(v)
	assert.Error(t, err)
}

func TestNewApp_ComponentConfigFromSettings(t *testing.T) {
	settings := testSettings(t, map[string]any{
		"dataclient.lazyConnect":      true,
		"dataclient.models.namespace": "app.models",
	})

	a, err := newApp(settings, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { a.runtime.Shutdown(context.Background()) })

	cfg := a.data.Config()
	assert.True(t, cfg.LazyConnect)
	assert.Equal(t, "app.models", cfg.Models.Namespace)
	assert.Equal(t, []string{dataclient.ModelTag}, cfg.Models.Tags)
}

func TestPrintModels(t *testing.T) {
	a, err := newApp(testSettings(t, nil), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { a.runtime.Shutdown(context.Background()) })

	var table bytes.Buffer
	require.NoError(t, printModels(context.Background(), &table, a, false))
	assert.Contains(t, table.String(), "dataclient.models.User")
	assert.Contains(t, table.String(), "dataclient.models.Post")

	var out bytes.Buffer
	require.NoError(t, printModels(context.Background(), &out, a, true))
	var infos []dataclient.ModelInfo
	require.NoError(t, jsoniter.Unmarshal(out.Bytes(), &infos))
	require.Len(t, infos, 2)
	assert.Equal(t, "User", infos[0].Name)
	assert.True(t, infos[0].Locked)
}

func TestServeRoutes(t *testing.T) {
	settings := testSettings(t, map[string]any{"datasource.auto-migrate": true})
	a, err := newApp(settings, zap.NewNop())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, a.runtime.Start(ctx))
	t.Cleanup(func() { a.runtime.Shutdown(ctx) })

	client := a.data.Client().(*gormclient.Client)
	assert.Len(t, client.Middlewares(), 2, "query logger and metrics are applied")

	users, _ := client.Model("user")
	require.NoError(t, users.(*gormclient.ModelAccessor).Create(ctx, &User{Email: "ada@example.com"}))

	for _, path := range []string{"/dataclient/health", "/dataclient/models", "/metrics"} {
		rec := httptest.NewRecorder()
		a.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
		if path == "/metrics" {
			assert.Contains(t, rec.Body.String(), "dataclient_queries_total")
		}
		assert.NotEmpty(t, rec.Header().Get("X-Trace-ID"), path)
	}
}
