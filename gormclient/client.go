package gormclient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Model declares a model the client exposes an accessor for.
// Name is the exported model name (e.g. "User"); Schema is a pointer to the gorm model struct.
type Model struct {
	Name   string
	Schema any
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the client logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithDialector overrides the dialector derived from Config.
func WithDialector(d gorm.Dialector) Option {
	return func(c *Client) {
		c.dialector = d
	}
}

// Client wraps a gorm database handle with an explicit connect/disconnect lifecycle,
// a queue of middlewares (gorm plugins) and a fixed set of model accessors.
type Client struct {
	cfg       Config
	models    []Model
	accessors map[string]*ModelAccessor
	dialector gorm.Dialector
	logger    *zap.Logger

	mu          sync.Mutex
	db          *gorm.DB
	middlewares []gorm.Plugin
}

// New creates a client. It validates the configuration but performs no I/O.
func New(cfg Config, models []Model, opts ...Option) (*Client, error) {
	if err := cfg.ApplyDefaults(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid datasource configuration: %w", err)
	}

	c := &Client{
		cfg:       cfg,
		accessors: make(map[string]*ModelAccessor, len(models)),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	for _, m := range models {
		if m.Name == "" {
			return nil, errors.New("model name cannot be empty")
		}
		if m.Schema == nil {
			return nil, fmt.Errorf("model %q has no schema", m.Name)
		}
		lower := strings.ToLower(m.Name)
		if _, exists := c.accessors[lower]; exists {
			return nil, fmt.Errorf("model %q declared twice", m.Name)
		}
		c.accessors[lower] = &ModelAccessor{name: m.Name, schema: m.Schema, client: c}
		c.models = append(c.models, m)
	}

	return c, nil
}

// Config returns the effective datasource configuration.
func (c *Client) Config() Config {
	return c.cfg
}

// Connect opens the database, applies queued middlewares and optionally migrates models.
// Connecting an already connected client is a no-op.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.db != nil {
		return nil
	}
	return c.connectLocked(ctx)
}

// Disconnect closes the database. Disconnecting a closed client is a no-op.
func (c *Client) Disconnect(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.db == nil {
		return nil
	}

	sqlDB, err := c.db.DB()
	if err != nil {
		return &DisconnectionError{Err: err}
	}
	if err := sqlDB.Close(); err != nil {
		return &DisconnectionError{Err: err}
	}

	c.db = nil
	c.logger.Info("datasource disconnected", zap.String("driver", string(c.cfg.Driver)))
	return nil
}

// Connected reports whether the client holds an open database handle.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.db != nil
}

// Use registers a middleware. It is applied immediately when connected,
// otherwise it is initialized on a connection-free handle and queued for the
// next Connect. A middleware that fails to initialize is not registered.
func (c *Client) Use(mw gorm.Plugin) error {
	if mw == nil {
		return errors.New("middleware cannot be nil")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.db != nil {
		if err := c.apply(c.db, mw); err != nil {
			return err
		}
	} else if err := c.checkMiddleware(mw); err != nil {
		return err
	}
	c.middlewares = append(c.middlewares, mw)
	return nil
}

// Middlewares returns the registered middlewares in registration order.
func (c *Client) Middlewares() []gorm.Plugin {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]gorm.Plugin{}, c.middlewares...)
}

// DB returns a context-bound handle, connecting on first use.
func (c *Client) DB(ctx context.Context) (*gorm.DB, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.db == nil {
		if err := c.connectLocked(ctx); err != nil {
			return nil, err
		}
	}
	return c.db.WithContext(ctx), nil
}

// Ping checks the database is reachable, connecting on first use.
func (c *Client) Ping(ctx context.Context) error {
	db, err := c.DB(ctx)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// ModelNames returns the declared model names in declaration order.
func (c *Client) ModelNames() []string {
	names := make([]string, len(c.models))
	for i, m := range c.models {
		names[i] = m.Name
	}
	return names
}

// Model returns the accessor for a model, looked up by its lower-cased name.
func (c *Client) Model(name string) (any, bool) {
	m, ok := c.accessors[strings.ToLower(name)]
	if !ok {
		return nil, false
	}
	return m, true
}

// --- Internal ---

func (c *Client) connectLocked(ctx context.Context) error {
	db, err := gorm.Open(c.openDialector(), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return &ConnectionError{Driver: c.cfg.Driver, Err: err}
	}

	sqlDB, err := db.DB()
	if err != nil {
		return &ConnectionError{Driver: c.cfg.Driver, Err: err}
	}
	if c.cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(c.cfg.MaxOpenConns)
	}
	if c.cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(c.cfg.MaxIdleConns)
	}
	if c.cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(c.cfg.ConnMaxLifetime)
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return &ConnectionError{Driver: c.cfg.Driver, Err: err}
	}

	// A queued middleware that fails on the real handle is dropped; the
	// connection itself is healthy.
	kept := c.middlewares[:0]
	for _, mw := range c.middlewares {
		if err := c.apply(db, mw); err != nil {
			c.logger.Warn("middleware dropped on connect",
				zap.String("middleware", mw.Name()),
				zap.String("driver", string(c.cfg.Driver)),
				zap.Error(err),
			)
			continue
		}
		kept = append(kept, mw)
	}
	c.middlewares = kept

	if c.cfg.AutoMigrate && len(c.models) > 0 {
		schemas := make([]any, len(c.models))
		for i, m := range c.models {
			schemas[i] = m.Schema
		}
		if err := db.WithContext(ctx).AutoMigrate(schemas...); err != nil {
			sqlDB.Close()
			return &ConnectionError{Driver: c.cfg.Driver, Err: fmt.Errorf("auto-migrate: %w", err)}
		}
	}

	c.db = db
	c.logger.Info("datasource connected",
		zap.String("driver", string(c.cfg.Driver)),
		zap.Int("middlewares", len(c.middlewares)),
	)
	return nil
}

func (c *Client) apply(db *gorm.DB, mw gorm.Plugin) error {
	err := db.Use(mw)
	if errors.Is(err, gorm.ErrRegistered) {
		c.logger.Warn("middleware already registered, skipping", zap.String("middleware", mw.Name()))
		return nil
	}
	return err
}

func (c *Client) openDialector() gorm.Dialector {
	if c.dialector != nil {
		return c.dialector
	}

	switch c.cfg.Driver {
	case DriverPostgres:
		dsn := c.cfg.DSN
		if dsn == "" {
			dsn = c.cfg.Postgres.DSN()
		}
		return postgres.Open(dsn)
	default:
		dsn := c.cfg.DSN
		if dsn == "" {
			dsn = c.cfg.SQLite.Path
			if dsn != MemoryPath {
				dsn += "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
			}
		}
		return sqlite.Open(dsn)
	}
}
