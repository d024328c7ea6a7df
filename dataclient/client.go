package dataclient

import (
	"context"
	"fmt"

	"github.com/leeforge/dataclient/config"
	"github.com/leeforge/dataclient/container"
	"github.com/leeforge/dataclient/gormclient"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Middleware is a client middleware. Stock ones live in the middleware package.
type Middleware = gorm.Plugin

// Client is the database client the component manages.
type Client interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	Use(mw Middleware) error
	// ModelNames lists the declared models in declaration order.
	ModelNames() []string
	// Model returns the accessor of a model by its lower-cased name.
	Model(name string) (any, bool)
}

// Pinger is implemented by clients that can report reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ClientFactory builds the client when the container holds none.
type ClientFactory func(ctx context.Context, c *container.Container, models []gormclient.Model, logger *zap.Logger) (Client, error)

var _ Client = (*gormclient.Client)(nil)

// DefaultClientFactory builds a gormclient.Client from the datasource configuration
// bound at DatasourceKey. The value may be a gormclient.Config, a pointer to one
// or a map[string]any; without a binding the client uses an in-memory SQLite database.
func DefaultClientFactory(ctx context.Context, c *container.Container, models []gormclient.Model, logger *zap.Logger) (Client, error) {
	cfg, err := datasourceConfig(ctx, c)
	if err != nil {
		return nil, err
	}
	return gormclient.New(cfg, models, gormclient.WithLogger(logger))
}

func datasourceConfig(ctx context.Context, c *container.Container) (gormclient.Config, error) {
	if !c.Contains(DatasourceKey) {
		return gormclient.Config{}, nil
	}

	v, err := c.Get(ctx, DatasourceKey)
	if err != nil {
		return gormclient.Config{}, fmt.Errorf("resolve datasource configuration: %w", err)
	}

	switch ds := v.(type) {
	case gormclient.Config:
		return ds, nil
	case *gormclient.Config:
		if ds == nil {
			return gormclient.Config{}, nil
		}
		return *ds, nil
	case map[string]any:
		var cfg gormclient.Config
		if err := config.Merge(&cfg, ds); err != nil {
			return gormclient.Config{}, fmt.Errorf("decode datasource configuration: %w", err)
		}
		return cfg, nil
	default:
		return gormclient.Config{}, fmt.Errorf("unsupported datasource configuration type %T", v)
	}
}
