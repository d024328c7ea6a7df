package container

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Container is a keyed binding registry with lockable entries, tag lookup,
// synchronous "binding added" observers and an error channel.
type Container struct {
	bindings map[string]*Binding
	mu       sync.RWMutex
	seq      uint64

	ctx    context.Context
	logger *zap.Logger

	observers []observerEntry
	handlers  []handlerEntry
	subMu     sync.RWMutex
	nextID    atomic.Uint64
}

type observerEntry struct {
	id       uint64
	observer Observer
}

type handlerEntry struct {
	id      uint64
	handler ErrorHandler
}

// Option configures a Container.
type Option func(*Container)

// WithLogger sets the logger used for unhandled container errors.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Container) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithContext sets the base context handed to observers of Add and Unbind.
func WithContext(ctx context.Context) Option {
	return func(c *Container) {
		if ctx != nil {
			c.ctx = ctx
		}
	}
}

// New creates an empty container.
func New(opts ...Option) *Container {
	c := &Container{
		bindings: make(map[string]*Binding),
		ctx:      context.Background(),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GenerateKey returns a unique key under the given prefix.
func GenerateKey(prefix string) string {
	if prefix == "" {
		return uuid.NewString()
	}
	return prefix + "." + uuid.NewString()
}

// ConfigKey returns the key holding the configuration of key.
func ConfigKey(key string) string {
	return key + ":$config"
}

// Add inserts b, replacing any unlocked binding with the same key. A locked
// key is rejected, even when b is the binding already stored there.
// Observers run synchronously before Add returns.
func (c *Container) Add(b *Binding) error {
	if b == nil {
		return errors.New("cannot add a nil binding")
	}

	c.mu.Lock()
	if existing, ok := c.bindings[b.key]; ok && existing.IsLocked() {
		c.mu.Unlock()
		return &LockedError{Key: b.key}
	}
	c.seq++
	b.mu.Lock()
	b.seq = c.seq
	b.mu.Unlock()
	c.bindings[b.key] = b
	c.mu.Unlock()

	c.notify(Event{Type: EventBindingAdded, Binding: b})
	return nil
}

// Bind creates a binding for key and adds it.
func (c *Container) Bind(key string) (*Binding, error) {
	b := NewBinding(key)
	if err := c.Add(b); err != nil {
		return nil, err
	}
	return b, nil
}

// MustBind creates and adds a binding, panicking if key is locked.
func (c *Container) MustBind(key string) *Binding {
	b, err := c.Bind(key)
	if err != nil {
		panic(err)
	}
	return b
}

// Unbind removes the binding for key.
func (c *Container) Unbind(key string) error {
	c.mu.Lock()
	b, ok := c.bindings[key]
	if !ok {
		c.mu.Unlock()
		return &NotFoundError{Key: key}
	}
	if b.IsLocked() {
		c.mu.Unlock()
		return &LockedError{Key: key}
	}
	delete(c.bindings, key)
	c.mu.Unlock()

	c.notify(Event{Type: EventBindingRemoved, Binding: b})
	return nil
}

// Contains reports whether key is bound.
func (c *Container) Contains(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.bindings[key]
	return ok
}

// GetBinding returns the binding for key.
func (c *Container) GetBinding(key string) (*Binding, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	b, ok := c.bindings[key]
	if !ok {
		return nil, &NotFoundError{Key: key}
	}
	return b, nil
}

// Keys returns all bound keys, sorted alphabetically.
func (c *Container) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := make([]string, 0, len(c.bindings))
	for k := range c.bindings {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Bindings returns every binding in insertion order.
func (c *Container) Bindings() []*Binding {
	return c.filter(func(*Binding) bool { return true })
}

// Find returns bindings whose key matches pattern, in insertion order.
// "*" matches any run of characters within a single dot-separated segment
// and "?" matches one such character.
func (c *Container) Find(pattern string) []*Binding {
	re := compileKeyPattern(pattern)
	return c.filter(func(b *Binding) bool { return re.MatchString(b.key) })
}

// FindByTag returns bindings carrying the named tag, in insertion order.
func (c *Container) FindByTag(name string) []*Binding {
	return c.filter(func(b *Binding) bool { return b.HasTag(name) })
}

// FindByTagValue returns bindings whose tag name equals value, in insertion order.
func (c *Container) FindByTagValue(name string, value any) []*Binding {
	return c.filter(func(b *Binding) bool {
		v, ok := b.TagValue(name)
		return ok && v == value
	})
}

// Get resolves the value bound to key.
func (c *Container) Get(ctx context.Context, key string) (any, error) {
	if ctx == nil {
		ctx = c.ctx
	}
	if err := checkCycle(ctx, key); err != nil {
		return nil, err
	}

	b, err := c.GetBinding(key)
	if err != nil {
		return nil, err
	}
	return c.resolve(withKey(ctx, key), b)
}

// ResolveBinding resolves b itself, even if its key has since been rebound.
func (c *Container) ResolveBinding(ctx context.Context, b *Binding) (any, error) {
	if ctx == nil {
		ctx = c.ctx
	}
	if err := checkCycle(ctx, b.key); err != nil {
		return nil, err
	}
	return c.resolve(withKey(ctx, b.key), b)
}

// Resolve retrieves a value with compile-time type safety via generics.
func Resolve[T any](ctx context.Context, c *Container, key string) (T, error) {
	var zero T
	v, err := c.Get(ctx, key)
	if err != nil {
		return zero, err
	}

	typed, ok := v.(T)
	if !ok {
		return zero, &TypeMismatchError{Key: key, Expected: fmt.Sprintf("%T", zero), Got: fmt.Sprintf("%T", v)}
	}
	return typed, nil
}

// Configure binds the configuration of key. Chain To on the result to set it.
func (c *Container) Configure(key string) (*Binding, error) {
	return c.Bind(ConfigKey(key))
}

// GetConfig resolves the configuration of key. It returns nil when key was never configured.
func (c *Container) GetConfig(ctx context.Context, key string) (any, error) {
	if !c.Contains(ConfigKey(key)) {
		return nil, nil
	}
	return c.Get(ctx, ConfigKey(key))
}

// Subscribe registers an observer for binding events.
func (c *Container) Subscribe(observer Observer) Subscription {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	id := c.nextID.Add(1)
	c.observers = append(c.observers, observerEntry{id: id, observer: observer})
	return &subscription{cancel: func() { c.removeObserver(id) }}
}

// OnError registers a handler on the container's error channel.
func (c *Container) OnError(handler ErrorHandler) Subscription {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	id := c.nextID.Add(1)
	c.handlers = append(c.handlers, handlerEntry{id: id, handler: handler})
	return &subscription{cancel: func() { c.removeHandler(id) }}
}

// ReportError delivers err to every error handler, or logs it when there are none.
func (c *Container) ReportError(ctx context.Context, err error) {
	if err == nil {
		return
	}

	c.subMu.RLock()
	handlers := append([]handlerEntry{}, c.handlers...)
	c.subMu.RUnlock()

	if len(handlers) == 0 {
		c.logger.Warn("unhandled container error", zap.Error(err))
		return
	}
	for _, h := range handlers {
		h.handler(ctx, err)
	}
}

// --- Internal ---

type chainKey struct{}

func chainFrom(ctx context.Context) []string {
	chain, _ := ctx.Value(chainKey{}).([]string)
	return chain
}

func checkCycle(ctx context.Context, key string) error {
	chain := chainFrom(ctx)
	for _, k := range chain {
		if k == key {
			return &CircularDependencyError{Chain: append(append([]string{}, chain...), key)}
		}
	}
	return nil
}

func withKey(ctx context.Context, key string) context.Context {
	chain := chainFrom(ctx)
	next := append(append(make([]string, 0, len(chain)+1), chain...), key)
	return context.WithValue(ctx, chainKey{}, next)
}

func (c *Container) resolve(ctx context.Context, b *Binding) (any, error) {
	typ, scope, value, alias, dynamic, provider := b.source()

	switch typ {
	case BindingTypeConstant:
		return value, nil
	case BindingTypeAlias:
		return c.Get(ctx, alias)
	case BindingTypeUnset:
		return nil, &ResolutionError{Key: b.key, Err: ErrNoValue}
	}

	if scope == ScopeSingleton {
		b.cacheMu.Lock()
		defer b.cacheMu.Unlock()
		if b.cached {
			return b.cacheVal, nil
		}
	}

	var (
		v   any
		err error
	)
	switch typ {
	case BindingTypeDynamicValue:
		v, err = dynamic(ctx, c)
	case BindingTypeProvider:
		v, err = provider.Value(ctx)
	default:
		err = fmt.Errorf("unsupported binding type %d", typ)
	}
	if err != nil {
		return nil, &ResolutionError{Key: b.key, Err: err}
	}

	if scope == ScopeSingleton {
		b.cached = true
		b.cacheVal = v
	}
	return v, nil
}

func (c *Container) filter(match func(*Binding) bool) []*Binding {
	c.mu.RLock()
	out := make([]*Binding, 0, len(c.bindings))
	for _, b := range c.bindings {
		if match(b) {
			out = append(out, b)
		}
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].order() < out[j].order() })
	return out
}

func (c *Container) notify(event Event) {
	c.subMu.RLock()
	observers := append([]observerEntry{}, c.observers...)
	c.subMu.RUnlock()

	for _, o := range observers {
		if err := o.observer(c.ctx, event); err != nil {
			c.ReportError(c.ctx, err)
		}
	}
}

func (c *Container) removeObserver(id uint64) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	for i, o := range c.observers {
		if o.id == id {
			c.observers = append(c.observers[:i], c.observers[i+1:]...)
			return
		}
	}
}

func (c *Container) removeHandler(id uint64) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	for i, h := range c.handlers {
		if h.id == id {
			c.handlers = append(c.handlers[:i], c.handlers[i+1:]...)
			return
		}
	}
}

func compileKeyPattern(pattern string) *regexp.Regexp {
	var sb strings.Builder
	sb.WriteString("^")
	for _, r := range pattern {
		switch r {
		case '*':
			sb.WriteString(`[^.]*`)
		case '?':
			sb.WriteString(`[^.]`)
		default:
			sb.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	sb.WriteString("$")
	return regexp.MustCompile(sb.String())
}
