package dataclient

import (
	"github.com/leeforge/dataclient/container"
)

// AsMiddlewareBinding marks a binding as a middleware contribution in singleton scope.
func AsMiddlewareBinding(b *container.Binding) {
	b.Apply(container.ExtensionFor(MiddlewareExtensionPoint)).InScope(container.ScopeSingleton)
}

// IsMiddlewareBinding reports whether b contributes to MiddlewareExtensionPoint.
func IsMiddlewareBinding(b *container.Binding) bool {
	if b == nil {
		return false
	}
	v, ok := b.TagValue(container.ExtensionForTag)
	return ok && v == MiddlewareExtensionPoint
}

// AddMiddleware binds mw under a generated key in the middleware namespace and
// returns the binding. The binding is complete before it is added, so a
// component that is already initialized applies it before AddMiddleware returns.
func AddMiddleware(c *container.Container, mw Middleware) (*container.Binding, error) {
	b := container.NewBinding(container.GenerateKey("dataclient.middleware")).To(mw)
	AsMiddlewareBinding(b)
	if err := c.Add(b); err != nil {
		return nil, err
	}
	return b, nil
}
