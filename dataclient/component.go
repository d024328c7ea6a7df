package dataclient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/leeforge/dataclient/component"
	"github.com/leeforge/dataclient/container"
	"github.com/leeforge/dataclient/gormclient"
	"go.uber.org/zap"
)

// ComponentName is the runtime name of the component.
const ComponentName = "dataclient"

// Option configures a Component.
type Option func(*Component)

// WithClient presets the client bound when the container holds none.
func WithClient(client Client) Option {
	return func(d *Component) {
		d.preset = client
	}
}

// WithConfig merges partial over the defaults and the configuration bound in
// the container. See MergeConfig for the accepted types.
func WithConfig(partial any) Option {
	return func(d *Component) {
		d.partial = partial
	}
}

// WithClientFactory replaces DefaultClientFactory.
func WithClientFactory(f ClientFactory) Option {
	return func(d *Component) {
		if f != nil {
			d.factory = f
		}
	}
}

// WithModels declares the models of a factory-built client.
func WithModels(models ...gormclient.Model) Option {
	return func(d *Component) {
		d.models = append(d.models, models...)
	}
}

// WithLogger sets the component logger.
func WithLogger(logger *zap.Logger) Option {
	return func(d *Component) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// Component binds a database client into a container.
//
// Init resolves or creates the client singleton at ClientInstanceKey, binds a
// locked accessor per model and applies every middleware binding tagged with
// ExtensionFor(MiddlewareExtensionPoint). Middleware bindings added later are
// applied by a container observer before the Add that triggered them returns.
// Start connects unless LazyConnect is set; Stop always disconnects.
type Component struct {
	container *container.Container
	logger    *zap.Logger
	factory   ClientFactory
	preset    Client
	models    []gormclient.Model
	partial   any
	cfg       Config

	initMu      sync.Mutex
	initialized atomic.Bool
	modelKeys   map[string]struct{}

	// relayMu guards client and claimed; the relay never holds it across
	// container calls or client calls.
	relayMu sync.Mutex
	client  Client
	claimed map[*container.Binding]struct{}

	sub       container.Subscription
	closeOnce sync.Once
}

// NewComponent merges the configuration (defaults, then the configuration bound
// for ComponentKey, then WithConfig), writes the result back to the container,
// binds the component at ComponentKey and subscribes the middleware relay.
func NewComponent(c *container.Container, opts ...Option) (*Component, error) {
	if c == nil {
		return nil, errors.New("dataclient: container is nil")
	}

	d := &Component{
		container: c,
		logger:    zap.NewNop(),
		factory:   DefaultClientFactory,
		modelKeys: make(map[string]struct{}),
		claimed:   make(map[*container.Binding]struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.Named(ComponentName)

	bound, err := c.GetConfig(context.Background(), ComponentKey)
	if err != nil {
		return nil, fmt.Errorf("dataclient: resolve configuration: %w", err)
	}
	cfg, err := MergeConfig(bound, d.partial)
	if err != nil {
		return nil, err
	}
	d.cfg = cfg

	if err := c.Add(container.NewBinding(container.ConfigKey(ComponentKey)).To(cfg)); err != nil {
		var locked *container.LockedError
		if !errors.As(err, &locked) {
			return nil, err
		}
		d.logger.Debug("configuration binding is locked, keeping it", zap.String("key", locked.Key))
	}
	if err := c.Add(container.NewBinding(ComponentKey).To(d)); err != nil {
		return nil, err
	}

	d.sub = c.Subscribe(d.onBindingAdded)
	return d, nil
}

// Name implements component.Component.
func (d *Component) Name() string { return ComponentName }

// ComponentOptions implements component.Configurable.
func (d *Component) ComponentOptions() component.Options {
	return component.Options{Description: "database client with model accessors and middleware relay"}
}

// Config returns the merged configuration.
func (d *Component) Config() Config { return d.cfg }

// IsInitialized reports whether Init has completed successfully.
func (d *Component) IsInitialized() bool { return d.initialized.Load() }

// Client returns the client singleton, or nil before Init.
func (d *Component) Client() Client {
	d.relayMu.Lock()
	defer d.relayMu.Unlock()
	return d.client
}

// Init resolves the client, binds the model accessors and applies the
// middleware bindings already in the container. Calls after a successful Init
// are no-ops.
func (d *Component) Init(ctx context.Context) error {
	d.initMu.Lock()
	defer d.initMu.Unlock()

	if d.initialized.Load() {
		return nil
	}

	client, err := d.resolveClient(ctx)
	if err != nil {
		return err
	}
	if err := d.registerModels(client); err != nil {
		return err
	}

	// From here on the observer relays new bindings; the sweep below covers
	// everything added earlier. A binding seen by both is applied once.
	d.relayMu.Lock()
	d.client = client
	d.relayMu.Unlock()

	swept := d.container.FindByTagValue(container.ExtensionForTag, MiddlewareExtensionPoint)
	for _, b := range swept {
		d.relay(ctx, b)
	}

	d.initialized.Store(true)
	d.logger.Info("initialized",
		zap.Strings("models", client.ModelNames()),
		zap.Int("middlewares", len(swept)),
		zap.Bool("lazy_connect", d.cfg.LazyConnect),
	)
	return nil
}

// Start connects the client unless LazyConnect is set.
func (d *Component) Start(ctx context.Context) error {
	client, err := d.requireClient()
	if err != nil {
		return err
	}
	if d.cfg.LazyConnect {
		d.logger.Debug("lazy connect, skipping connect on start")
		return nil
	}
	return client.Connect(ctx)
}

// Stop disconnects the client.
func (d *Component) Stop(ctx context.Context) error {
	client, err := d.requireClient()
	if err != nil {
		return err
	}
	return client.Disconnect(ctx)
}

// Close unsubscribes the middleware relay. Middleware bindings added afterwards
// are no longer applied.
func (d *Component) Close() error {
	d.closeOnce.Do(d.sub.Unsubscribe)
	return nil
}

// HealthCheck pings the client when it supports it. A lazily connected client
// that has not connected yet is reported healthy without connecting it.
func (d *Component) HealthCheck(ctx context.Context) error {
	client, err := d.requireClient()
	if err != nil {
		return err
	}
	if c, ok := client.(interface{ Connected() bool }); ok && d.cfg.LazyConnect && !c.Connected() {
		return nil
	}
	if p, ok := client.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// --- Internal ---

func (d *Component) requireClient() (Client, error) {
	if !d.initialized.Load() {
		return nil, ErrNotInitialized
	}
	return d.Client(), nil
}

// resolveClient accepts only constant bindings at ClientInstanceKey: the
// component needs the concrete instance to list models and attach middleware.
func (d *Component) resolveClient(ctx context.Context) (Client, error) {
	b, err := d.container.GetBinding(ClientInstanceKey)
	if err == nil {
		if typ := b.Type(); typ != container.BindingTypeConstant {
			return nil, &ConfigurationError{
				Key:         ClientInstanceKey,
				BindingType: typ,
				Message:     "unsupported binding type for client instance",
			}
		}

		v, err := d.container.ResolveBinding(ctx, b)
		if err != nil {
			return nil, err
		}
		client, ok := v.(Client)
		if !ok {
			return nil, &ConfigurationError{
				Key:         ClientInstanceKey,
				BindingType: container.BindingTypeConstant,
				Message:     fmt.Sprintf("client instance of type %T does not implement Client", v),
			}
		}
		if d.preset != nil {
			d.logger.Warn("client already bound in container, ignoring the preset client")
		}
		b.Lock()
		return client, nil
	}
	if !container.IsNotFound(err) {
		return nil, err
	}

	client := d.preset
	if client == nil {
		client, err = d.factory(ctx, d.container, d.models, d.logger)
		if err != nil {
			return nil, fmt.Errorf("dataclient: create client: %w", err)
		}
		if client == nil {
			return nil, errors.New("dataclient: client factory returned nil")
		}
	}

	binding := container.NewBinding(ClientInstanceKey).
		To(client).
		InScope(container.ScopeSingleton).
		Lock()
	if err := d.container.Add(binding); err != nil {
		return nil, err
	}
	d.logger.Debug("client bound", zap.String("key", ClientInstanceKey), zap.String("type", fmt.Sprintf("%T", client)))
	return client, nil
}

func (d *Component) registerModels(client Client) error {
	ns := d.cfg.Models.Namespace
	for _, name := range client.ModelNames() {
		key := ModelKey(ns, name)
		if _, done := d.modelKeys[key]; done {
			continue
		}

		accessor, ok := client.Model(strings.ToLower(name))
		if !ok {
			return fmt.Errorf("dataclient: client lists model %q but has no accessor for it", name)
		}

		binding := container.NewBinding(key).
			To(accessor).
			InScope(container.ScopeSingleton).
			Tag(d.cfg.Models.Tags...).
			Lock()
		if err := d.container.Add(binding); err != nil {
			return fmt.Errorf("dataclient: bind model %q: %w", name, err)
		}
		d.modelKeys[key] = struct{}{}
	}
	return nil
}

func (d *Component) onBindingAdded(ctx context.Context, event container.Event) error {
	if event.Type != container.EventBindingAdded || !IsMiddlewareBinding(event.Binding) {
		return nil
	}

	d.relayMu.Lock()
	ready := d.client != nil
	d.relayMu.Unlock()
	if !ready {
		// Picked up by the sweep in Init.
		return nil
	}

	d.relay(ctx, event.Binding)
	return nil
}

// relay applies a middleware binding once and locks it. Failures go to the
// container error channel and leave the binding unlocked.
func (d *Component) relay(ctx context.Context, b *container.Binding) {
	d.relayMu.Lock()
	if _, done := d.claimed[b]; done {
		d.relayMu.Unlock()
		return
	}
	d.claimed[b] = struct{}{}
	client := d.client
	d.relayMu.Unlock()

	if err := d.apply(ctx, client, b); err != nil {
		d.relayMu.Lock()
		delete(d.claimed, b)
		d.relayMu.Unlock()

		d.logger.Warn("middleware not applied", zap.String("key", b.Key()), zap.Error(err))
		d.container.ReportError(ctx, err)
		return
	}

	b.Lock()
	d.logger.Debug("middleware applied", zap.String("key", b.Key()))
}

func (d *Component) apply(ctx context.Context, client Client, b *container.Binding) error {
	v, err := d.container.ResolveBinding(ctx, b)
	if err != nil {
		return &MiddlewareResolutionError{Key: b.Key(), Stage: StageResolve, Err: err}
	}

	mw, ok := v.(Middleware)
	if !ok || mw == nil {
		return &MiddlewareResolutionError{
			Key:   b.Key(),
			Stage: StageType,
			Err:   fmt.Errorf("value of type %T is not a middleware", v),
		}
	}

	if err := client.Use(mw); err != nil {
		return &MiddlewareResolutionError{Key: b.Key(), Stage: StageUse, Err: err}
	}
	return nil
}
