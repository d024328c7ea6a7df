package container

import (
	"context"
	"sort"
	"sync"
)

// BindingType describes how a binding produces its value.
type BindingType int

const (
	BindingTypeUnset        BindingType = iota // No value source configured yet
	BindingTypeConstant                        // To(value)
	BindingTypeAlias                           // ToAlias(key)
	BindingTypeDynamicValue                    // ToDynamicValue(fn)
	BindingTypeProvider                        // ToProvider(p)
)

// String returns a human-readable binding type name.
func (t BindingType) String() string {
	switch t {
	case BindingTypeUnset:
		return "unset"
	case BindingTypeConstant:
		return "constant"
	case BindingTypeAlias:
		return "alias"
	case BindingTypeDynamicValue:
		return "dynamic value"
	case BindingTypeProvider:
		return "provider"
	default:
		return "unknown"
	}
}

// Scope controls how often a binding's value source is invoked.
type Scope string

const (
	// ScopeTransient invokes the value source on every resolution.
	ScopeTransient Scope = "transient"
	// ScopeSingleton caches the first resolved value for the container's lifetime.
	ScopeSingleton Scope = "singleton"
)

// ExtensionForTag is the tag name carrying the extension point a binding contributes to.
const ExtensionForTag = "extensionFor"

// DynamicValueFunc computes a binding value at resolution time.
type DynamicValueFunc func(ctx context.Context, c *Container) (any, error)

// Provider produces a binding value. It is the struct-based counterpart of DynamicValueFunc.
type Provider interface {
	Value(ctx context.Context) (any, error)
}

// Template configures a binding. Templates are applied with Binding.Apply.
type Template func(b *Binding)

// ExtensionFor returns a template tagging a binding as an extension of the given extension point.
func ExtensionFor(extensionPoint string) Template {
	return func(b *Binding) {
		b.SetTag(ExtensionForTag, extensionPoint)
	}
}

// Binding is a keyed registration in a Container.
// Once locked, every mutating method panics with *LockedError.
type Binding struct {
	key string

	mu       sync.RWMutex
	typ      BindingType
	scope    Scope
	tags     map[string]any
	locked   bool
	value    any
	alias    string
	dynamic  DynamicValueFunc
	provider Provider

	cacheMu  sync.Mutex
	cached   bool
	cacheVal any

	seq uint64 // insertion order, assigned by Container.Add
}

// NewBinding creates an unset, transient, unlocked binding.
func NewBinding(key string) *Binding {
	return &Binding{
		key:   key,
		scope: ScopeTransient,
		tags:  make(map[string]any),
	}
}

// Key returns the binding key.
func (b *Binding) Key() string { return b.key }

// Type returns the binding type.
func (b *Binding) Type() BindingType {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.typ
}

// Scope returns the binding scope.
func (b *Binding) Scope() Scope {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.scope
}

// IsLocked reports whether the binding rejects further mutation.
func (b *Binding) IsLocked() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.locked
}

// Lock marks the binding immutable. Locking is one-way.
func (b *Binding) Lock() *Binding {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.locked = true
	return b
}

// To binds a constant value.
func (b *Binding) To(value any) *Binding {
	return b.mutate(func() {
		b.resetSource()
		b.typ = BindingTypeConstant
		b.value = value
	})
}

// ToAlias binds to the value of another key.
func (b *Binding) ToAlias(key string) *Binding {
	return b.mutate(func() {
		b.resetSource()
		b.typ = BindingTypeAlias
		b.alias = key
	})
}

// ToDynamicValue binds to a function evaluated on resolution.
func (b *Binding) ToDynamicValue(fn DynamicValueFunc) *Binding {
	return b.mutate(func() {
		b.resetSource()
		b.typ = BindingTypeDynamicValue
		b.dynamic = fn
	})
}

// ToProvider binds to a Provider evaluated on resolution.
func (b *Binding) ToProvider(p Provider) *Binding {
	return b.mutate(func() {
		b.resetSource()
		b.typ = BindingTypeProvider
		b.provider = p
	})
}

// InScope sets the binding scope.
func (b *Binding) InScope(scope Scope) *Binding {
	return b.mutate(func() {
		b.scope = scope
	})
}

// Tag adds name-only tags. The tag value equals its name.
func (b *Binding) Tag(names ...string) *Binding {
	return b.mutate(func() {
		for _, name := range names {
			b.tags[name] = name
		}
	})
}

// SetTag adds a tag with an explicit value.
func (b *Binding) SetTag(name string, value any) *Binding {
	return b.mutate(func() {
		b.tags[name] = value
	})
}

// Apply runs templates against the binding in order.
func (b *Binding) Apply(templates ...Template) *Binding {
	for _, t := range templates {
		t(b)
	}
	return b
}

// HasTag reports whether the binding carries the named tag.
func (b *Binding) HasTag(name string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.tags[name]
	return ok
}

// TagValue returns the value of the named tag.
func (b *Binding) TagValue(name string) (any, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.tags[name]
	return v, ok
}

// TagNames returns the binding's tag names, sorted alphabetically.
func (b *Binding) TagNames() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	names := make([]string, 0, len(b.tags))
	for name := range b.tags {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AliasKey returns the aliased key for alias bindings.
func (b *Binding) AliasKey() (string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.alias, b.typ == BindingTypeAlias
}

func (b *Binding) order() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.seq
}

func (b *Binding) mutate(fn func()) *Binding {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.locked {
		panic(&LockedError{Key: b.key})
	}
	fn()
	return b
}

// resetSource clears the previous value source and the singleton cache. Caller holds b.mu.
func (b *Binding) resetSource() {
	b.value = nil
	b.alias = ""
	b.dynamic = nil
	b.provider = nil

	b.cacheMu.Lock()
	b.cached = false
	b.cacheVal = nil
	b.cacheMu.Unlock()
}

// source snapshots the value source so resolution runs without holding b.mu.
func (b *Binding) source() (BindingType, Scope, any, string, DynamicValueFunc, Provider) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.typ, b.scope, b.value, b.alias, b.dynamic, b.provider
}
