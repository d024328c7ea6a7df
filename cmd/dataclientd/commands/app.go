package commands

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/leeforge/dataclient/container"
	"github.com/leeforge/dataclient/dataclient"
	"github.com/leeforge/dataclient/gormclient"
	httpmw "github.com/leeforge/dataclient/http/middleware"
	"github.com/leeforge/dataclient/http/responder"
	"github.com/leeforge/dataclient/middleware"
	"github.com/leeforge/dataclient/runtime"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// User and Post are the models served by dataclientd.
type User struct {
	ID        uint   `gorm:"primaryKey"`
	Email     string `gorm:"uniqueIndex"`
	Name      string
	CreatedAt time.Time
}

type Post struct {
	ID        uint `gorm:"primaryKey"`
	UserID    uint `gorm:"index"`
	Title     string
	Body      string
	CreatedAt time.Time
}

var models = []gormclient.Model{
	{Name: "User", Schema: &User{}},
	{Name: "Post", Schema: &Post{}},
}

// app is the wired dataclientd process.
type app struct {
	runtime  *runtime.Application
	data     *dataclient.Component
	router   chi.Router
	registry *prometheus.Registry
}

// newApp binds the datasource and component configuration, registers the
// dataclient component and contributes the stock middlewares.
func newApp(settings Settings, logger *zap.Logger) (*app, error) {
	c := container.New(container.WithLogger(logger.Named("container")))

	c.MustBind(dataclient.DatasourceKey).To(settings.Datasource)
	if len(settings.Dataclient) > 0 {
		b, err := c.Configure(dataclient.ComponentKey)
		if err != nil {
			return nil, err
		}
		b.To(settings.Dataclient)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	router := chi.NewRouter()
	router.Use(httpmw.TraceID())
	router.Use(httpmw.AccessLog(logger.Named("http")))
	router.Use(chimw.Recoverer)
	router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		responder.NotFound(w, r, "")
	})

	rt := runtime.New(runtime.Config{
		Container: c,
		Router:    router,
		Logger:    logger.Named("runtime"),
	})

	data, err := dataclient.NewComponent(c,
		dataclient.WithModels(models...),
		dataclient.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}
	if err := rt.Register(data); err != nil {
		return nil, err
	}

	if !settings.Middleware.DisableQueryLog {
		opts := []middleware.LoggerOption{middleware.WithSlowThreshold(settings.Middleware.SlowThreshold)}
		if settings.Middleware.LogParams {
			opts = append(opts, middleware.WithParams())
		}
		if _, err := dataclient.AddMiddleware(c, middleware.QueryLogger(logger.Named("query"), opts...)); err != nil {
			return nil, err
		}
	}
	if !settings.Middleware.DisableMetrics {
		if _, err := dataclient.AddMiddleware(c, middleware.NewMetrics(registry)); err != nil {
			return nil, err
		}
	}

	return &app{runtime: rt, data: data, router: router, registry: registry}, nil
}
