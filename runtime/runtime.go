// Package runtime hosts components: it orders them by dependencies, drives
// their Init/Start/Stop lifecycle and relays container errors as events.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/leeforge/dataclient/component"
	"github.com/leeforge/dataclient/container"
	"go.uber.org/zap"
)

// ShutdownTimeout bounds Stop during Shutdown.
const ShutdownTimeout = 30 * time.Second

// Config holds configuration for creating an Application.
type Config struct {
	Container   *container.Container // default: a new container
	Router      chi.Router           // optional; receives component routes on Init
	Logger      *zap.Logger
	EventBuffer int // default 1024
}

// Application manages component lifecycle with dependency ordering.
type Application struct {
	container *container.Container
	router    chi.Router
	logger    *zap.Logger

	components map[string]component.Component
	state      map[string]component.State
	errs       map[string]error
	mu         sync.RWMutex

	lifecycleMu  sync.Mutex
	initialized  bool
	bootOrder    []string
	healthChecks map[string]func(context.Context) error

	bus    *eventBus
	errSub container.Subscription
}

// New creates an application.
func New(cfg Config) *Application {
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = 1024
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Container == nil {
		cfg.Container = container.New(container.WithLogger(cfg.Logger))
	}

	app := &Application{
		container:    cfg.Container,
		router:       cfg.Router,
		logger:       cfg.Logger,
		components:   make(map[string]component.Component),
		state:        make(map[string]component.State),
		errs:         make(map[string]error),
		healthChecks: make(map[string]func(context.Context) error),
		bus:          newEventBus(cfg.EventBuffer, cfg.Logger),
	}
	app.errSub = app.bus.relayErrors(app.container)
	return app
}

// Container returns the application container.
func (a *Application) Container() *container.Container {
	return a.container
}

// Events returns the application event bus.
func (a *Application) Events() component.EventBus {
	return a.bus
}

// Register adds a component. Must be called before Init.
func (a *Application) Register(c component.Component) error {
	if c == nil {
		return errors.New("component cannot be nil")
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	name := c.Name()
	if _, exists := a.components[name]; exists {
		return fmt.Errorf("component %q already registered", name)
	}

	a.components[name] = c
	a.state[name] = component.StateRegistered
	a.logger.Info("component registered", zap.String("name", name))
	return nil
}

// Init initializes all components in dependency order. A failing optional
// component is marked failed and skipped, together with its dependents; a
// failing required component aborts Init. Calls after a successful Init are no-ops.
func (a *Application) Init(ctx context.Context) error {
	a.lifecycleMu.Lock()
	defer a.lifecycleMu.Unlock()
	return a.initLocked(ctx)
}

func (a *Application) initLocked(ctx context.Context) error {
	if a.initialized {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	startTime := time.Now()

	order, err := a.resolveDependencies()
	if err != nil {
		return fmt.Errorf("dependency resolution failed: %w", err)
	}
	a.mu.Lock()
	a.bootOrder = order
	a.mu.Unlock()
	a.logger.Info("dependency resolution completed", zap.Strings("order", order))

	for _, name := range order {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("init canceled: %w", err)
		}
		if a.getState(name) == component.StateFailed {
			continue
		}
		if depErr := a.checkDependenciesHealthy(name); depErr != nil {
			if abortErr := a.handleError(name, depErr); abortErr != nil {
				return abortErr
			}
			continue
		}

		if err := a.component(name).Init(ctx); err != nil {
			if abortErr := a.handleError(name, fmt.Errorf("init failed: %w", err)); abortErr != nil {
				return abortErr
			}
			continue
		}
		a.setState(name, component.StateInitialized)
		a.publish(ctx, component.EventInitialized, name)
	}

	for _, name := range order {
		if a.getState(name) != component.StateInitialized {
			continue
		}
		c := a.component(name)
		if p, ok := c.(component.RouteProvider); ok && a.router != nil {
			p.RegisterRoutes(a.router)
		}
		if p, ok := c.(component.HealthReporter); ok {
			a.healthChecks[name] = p.HealthCheck
		}
	}

	a.initialized = true
	a.logger.Info("init completed",
		zap.Duration("duration", time.Since(startTime)),
		zap.Int("components", len(order)),
	)
	return nil
}

// Start initializes the application if needed, then starts every runnable
// component in dependency order.
func (a *Application) Start(ctx context.Context) error {
	a.lifecycleMu.Lock()
	defer a.lifecycleMu.Unlock()

	if err := a.initLocked(ctx); err != nil {
		return err
	}

	for _, name := range a.bootOrder {
		if !a.getState(name).IsRunnable() {
			continue
		}
		if s, ok := a.component(name).(component.Starter); ok {
			if err := s.Start(ctx); err != nil {
				if abortErr := a.handleError(name, fmt.Errorf("start failed: %w", err)); abortErr != nil {
					return abortErr
				}
				continue
			}
		}
		a.setState(name, component.StateStarted)
		a.publish(ctx, component.EventStarted, name)
	}

	a.logger.Info("application started")
	return nil
}

// Stop stops started components in reverse dependency order. Every component is
// stopped even if another fails; the failures are joined.
func (a *Application) Stop(ctx context.Context) error {
	a.lifecycleMu.Lock()
	defer a.lifecycleMu.Unlock()

	var errs []error
	for _, name := range reverseSlice(a.bootOrder) {
		if a.getState(name) != component.StateStarted {
			continue
		}
		if s, ok := a.component(name).(component.Stopper); ok {
			if err := s.Stop(ctx); err != nil {
				a.logger.Error("component stop failed", zap.String("component", name), zap.Error(err))
				errs = append(errs, fmt.Errorf("stop %q: %w", name, err))
			}
		}
		a.setState(name, component.StateStopped)
		a.publish(ctx, component.EventStopped, name)
	}
	return errors.Join(errs...)
}

// Shutdown stops the application within ShutdownTimeout, closes components
// implementing io.Closer and drains the event bus.
func (a *Application) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, ShutdownTimeout)
	defer cancel()

	err := a.Stop(shutdownCtx)

	for _, name := range reverseSlice(a.BootOrder()) {
		if c, ok := a.component(name).(io.Closer); ok {
			if cerr := c.Close(); cerr != nil {
				a.logger.Warn("component close failed", zap.String("component", name), zap.Error(cerr))
			}
		}
	}

	a.errSub.Unsubscribe()
	a.bus.Close()
	a.logger.Info("shutdown completed")
	return err
}

// Health runs every registered health check.
func (a *Application) Health(ctx context.Context) map[string]error {
	a.lifecycleMu.Lock()
	checks := make(map[string]func(context.Context) error, len(a.healthChecks))
	for name, fn := range a.healthChecks {
		checks[name] = fn
	}
	a.lifecycleMu.Unlock()

	result := make(map[string]error, len(checks))
	for name, fn := range checks {
		result[name] = fn(ctx)
	}
	return result
}

// Publish sends an event through the event bus.
func (a *Application) Publish(ctx context.Context, event component.Event) error {
	return a.bus.Publish(ctx, event)
}

// State returns the state of a component by name.
func (a *Application) State(name string) (component.State, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	state, ok := a.state[name]
	return state, ok
}

// Err returns the error that failed a component, if any.
func (a *Application) Err(name string) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.errs[name]
}

// Components returns a snapshot of all component states.
func (a *Application) Components() map[string]component.State {
	a.mu.RLock()
	defer a.mu.RUnlock()
	result := make(map[string]component.State, len(a.state))
	for k, v := range a.state {
		result[k] = v
	}
	return result
}

// BootOrder returns the topological order computed by Init.
func (a *Application) BootOrder() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]string{}, a.bootOrder...)
}

// --- Internal ---

func (a *Application) publish(ctx context.Context, name, source string) {
	if err := a.bus.Publish(ctx, component.Event{Name: name, Source: source}); err != nil {
		a.logger.Debug("lifecycle event dropped", zap.String("event", name), zap.Error(err))
	}
}

func (a *Application) component(name string) component.Component {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.components[name]
}

func (a *Application) getState(name string) component.State {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state[name]
}

func (a *Application) setState(name string, state component.State) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.state[name] = state
}

func dependenciesOf(c component.Component) []string {
	if d, ok := c.(component.Dependent); ok {
		return d.Dependencies()
	}
	return nil
}

func (a *Application) resolveDependencies() ([]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	inDegree := make(map[string]int, len(a.components))
	dependents := make(map[string][]string) // dep -> components depending on it

	for name := range a.components {
		inDegree[name] = 0
	}

	for name, c := range a.components {
		for _, dep := range dependenciesOf(c) {
			if _, exists := a.components[dep]; !exists {
				return nil, fmt.Errorf("component %q depends on %q which is not registered", name, dep)
			}
			inDegree[name]++
			dependents[dep] = append(dependents[dep], name)
		}
	}

	// Kahn's algorithm
	var queue []string
	for name, degree := range inDegree {
		if degree == 0 {
			queue = append(queue, name)
		}
	}
	sort.Strings(queue)

	var order []string
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		order = append(order, current)

		for _, dep := range dependents[current] {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				queue = append(queue, dep)
				sort.Strings(queue)
			}
		}
	}

	if len(order) != len(a.components) {
		return nil, errors.New("circular dependency detected")
	}
	return order, nil
}

func (a *Application) handleError(name string, err error) error {
	a.mu.Lock()
	a.state[name] = component.StateFailed
	a.errs[name] = err
	c := a.components[name]
	a.mu.Unlock()

	if cfg, ok := c.(component.Configurable); ok && cfg.ComponentOptions().Optional {
		a.logger.Warn("optional component failed, continuing",
			zap.String("component", name), zap.Error(err))
		return nil
	}
	return fmt.Errorf("required component %q failed: %w", name, err)
}

func (a *Application) checkDependenciesHealthy(name string) error {
	for _, dep := range dependenciesOf(a.component(name)) {
		if a.getState(dep) == component.StateFailed {
			return fmt.Errorf("dependency %q is in failed state", dep)
		}
	}
	return nil
}

func reverseSlice(s []string) []string {
	n := len(s)
	reversed := make([]string, n)
	for i, v := range s {
		reversed[n-1-i] = v
	}
	return reversed
}
