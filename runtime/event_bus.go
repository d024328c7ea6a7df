package runtime

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/leeforge/dataclient/component"
	"github.com/leeforge/dataclient/container"
	"go.uber.org/zap"
)

// errorPublishTimeout bounds how long a container error waits for buffer space.
const errorPublishTimeout = time.Second

// eventBus delivers events to subscribers asynchronously. Topics are exact
// event names, "prefix.*" (one trailing name segment) or "*".
type eventBus struct {
	logger *zap.Logger

	// sendMu orders Publish against Close: publishers hold it shared while
	// sending, Close holds it exclusively before closing queue.
	sendMu sync.RWMutex
	closed bool
	queue  chan eventEnvelope

	subMu  sync.Mutex
	subs   atomic.Pointer[[]*subscriber] // copy-on-write snapshot
	nextID uint64

	inFlight sync.WaitGroup
	drained  chan struct{}
}

type eventEnvelope struct {
	ctx   context.Context
	event component.Event
}

type subscriber struct {
	id      uint64
	topic   string
	handler component.EventHandler
}

type subscription struct {
	bus  *eventBus
	id   uint64
	once sync.Once
}

func (s *subscription) Unsubscribe() {
	s.once.Do(func() { s.bus.remove(s.id) })
}

// NewEventBus creates an EventBus buffering up to bufferSize events.
func NewEventBus(bufferSize int, logger *zap.Logger) component.EventBus {
	return newEventBus(bufferSize, logger)
}

func newEventBus(bufferSize int, logger *zap.Logger) *eventBus {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &eventBus{
		logger:  logger,
		queue:   make(chan eventEnvelope, bufferSize),
		drained: make(chan struct{}),
	}
	b.subs.Store(&[]*subscriber{})

	go b.run()
	return b
}

// Publish queues an event, waiting for buffer space until ctx is done.
func (b *eventBus) Publish(ctx context.Context, event component.Event) error {
	b.sendMu.RLock()
	defer b.sendMu.RUnlock()

	if b.closed {
		return component.ErrBusClosed
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case b.queue <- eventEnvelope{ctx: ctx, event: event}:
		return nil
	case <-ctx.Done():
		return component.ErrPublishTimeout
	}
}

// Subscribe registers handler for topic.
func (b *eventBus) Subscribe(topic string, handler component.EventHandler) component.Subscription {
	b.subMu.Lock()
	defer b.subMu.Unlock()

	b.nextID++
	current := *b.subs.Load()
	next := make([]*subscriber, len(current), len(current)+1)
	copy(next, current)
	next = append(next, &subscriber{id: b.nextID, topic: topic, handler: handler})
	b.subs.Store(&next)

	return &subscription{bus: b, id: b.nextID}
}

// Close rejects further events, delivers the queued ones and waits for
// running handlers. It is safe to call more than once.
func (b *eventBus) Close() error {
	b.sendMu.Lock()
	if b.closed {
		b.sendMu.Unlock()
		return nil
	}
	b.closed = true
	close(b.queue)
	b.sendMu.Unlock()

	<-b.drained
	b.inFlight.Wait()
	return nil
}

// relayErrors publishes every error reported on c's error channel as a
// component.EventContainerError event, after logging it.
func (b *eventBus) relayErrors(c *container.Container) container.Subscription {
	return c.OnError(func(_ context.Context, err error) {
		b.logger.Error("container error", zap.Error(err))

		ctx, cancel := context.WithTimeout(context.Background(), errorPublishTimeout)
		defer cancel()
		perr := b.Publish(ctx, component.Event{
			Name:   component.EventContainerError,
			Data:   err,
			Source: "container",
		})
		if perr != nil && !errors.Is(perr, component.ErrBusClosed) {
			b.logger.Warn("container error event dropped", zap.Error(perr))
		}
	})
}

func (b *eventBus) run() {
	defer close(b.drained)
	for env := range b.queue {
		for _, s := range *b.subs.Load() {
			if !topicMatches(s.topic, env.event.Name) {
				continue
			}
			b.inFlight.Add(1)
			go b.deliver(s, env)
		}
	}
}

func (b *eventBus) deliver(s *subscriber, env eventEnvelope) {
	defer b.inFlight.Done()
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				zap.String("event", env.event.Name),
				zap.String("topic", s.topic),
				zap.String("panic", fmt.Sprint(r)))
		}
	}()

	if err := s.handler(env.ctx, env.event); err != nil {
		b.logger.Warn("event handler error",
			zap.String("event", env.event.Name),
			zap.String("topic", s.topic),
			zap.Error(err))
	}
}

func (b *eventBus) remove(id uint64) {
	b.subMu.Lock()
	defer b.subMu.Unlock()

	current := *b.subs.Load()
	next := make([]*subscriber, 0, len(current))
	for _, s := range current {
		if s.id != id {
			next = append(next, s)
		}
	}
	b.subs.Store(&next)
}

func topicMatches(topic, name string) bool {
	if topic == "*" || topic == name {
		return true
	}
	prefix, ok := strings.CutSuffix(topic, "*")
	if !ok || !strings.HasSuffix(prefix, ".") {
		return false
	}
	rest, ok := strings.CutPrefix(name, prefix)
	return ok && rest != "" && !strings.Contains(rest, ".")
}
