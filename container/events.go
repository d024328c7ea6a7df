package container

import (
	"context"
	"sync"
)

// EventType identifies a container event.
type EventType string

const (
	EventBindingAdded   EventType = "bind"
	EventBindingRemoved EventType = "unbind"
)

// Event describes a change to the container's bindings.
type Event struct {
	Type    EventType
	Binding *Binding
}

// Observer reacts to container events. A returned error is sent to the container's error channel.
type Observer func(ctx context.Context, event Event) error

// ErrorHandler receives errors reported on the container's error channel.
type ErrorHandler func(ctx context.Context, err error)

// Subscription represents an active observer or error handler registration.
type Subscription interface {
	Unsubscribe()
}

type subscription struct {
	once   sync.Once
	cancel func()
}

func (s *subscription) Unsubscribe() {
	s.once.Do(s.cancel)
}
