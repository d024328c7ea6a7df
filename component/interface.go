package component

import (
	"context"

	"github.com/go-chi/chi/v5"
)

// Component is the minimal interface every runtime-hosted component must implement.
type Component interface {
	Name() string
	Init(ctx context.Context) error
}

// --- Optional Capability Interfaces ---
// The runtime detects these via type assertion: if s, ok := c.(Starter); ok { ... }

// Starter -- work to do when the application starts (open connections).
type Starter interface {
	Start(ctx context.Context) error
}

// Stopper -- cleanup when the application stops (release resources).
type Stopper interface {
	Stop(ctx context.Context) error
}

// Dependent -- names of components that must be initialized first.
type Dependent interface {
	Dependencies() []string
}

// RouteProvider -- register HTTP routes.
type RouteProvider interface {
	RegisterRoutes(router chi.Router)
}

// HealthReporter -- provide custom health checks.
type HealthReporter interface {
	HealthCheck(ctx context.Context) error
}

// Configurable -- declare component options.
type Configurable interface {
	ComponentOptions() Options
}

// Options holds declarative metadata about a component.
type Options struct {
	Optional    bool   // If true, failure does not abort Init.
	Description string // Human-readable description.
}
