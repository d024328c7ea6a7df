package dataclient

import (
	"errors"
	"fmt"

	"github.com/leeforge/dataclient/container"
)

// ErrNotInitialized is returned by lifecycle calls made before Init.
var ErrNotInitialized = errors.New("dataclient: component is not initialized")

// ConfigurationError reports a client binding the component cannot use.
type ConfigurationError struct {
	Key         string
	BindingType container.BindingType
	Message     string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("dataclient: %s (key %q, binding type %s)", e.Message, e.Key, e.BindingType)
}

// Middleware resolution stages.
const (
	StageResolve = "resolve"
	StageType    = "type"
	StageUse     = "use"
)

// MiddlewareResolutionError reports a middleware binding that could not be applied.
// It is delivered on the container error channel, never returned.
type MiddlewareResolutionError struct {
	Key   string
	Stage string
	Err   error
}

func (e *MiddlewareResolutionError) Error() string {
	return fmt.Sprintf("dataclient: middleware %q failed at %s: %v", e.Key, e.Stage, e.Err)
}

func (e *MiddlewareResolutionError) Unwrap() error {
	return e.Err
}
