package runtime

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/leeforge/dataclient/component"
	"github.com/leeforge/dataclient/container"
	"go.uber.org/zap"
)

func TestEventBus_PublishAndSubscribe(t *testing.T) {
	bus := NewEventBus(16, zap.NewNop())

	var called atomic.Int32
	bus.Subscribe(component.EventStarted, func(ctx context.Context, e component.Event) error {
		if e.Timestamp.IsZero() {
			t.Error("timestamp should be set on publish")
		}
		called.Add(1)
		return nil
	})

	if err := bus.Publish(context.Background(), component.Event{Name: component.EventStarted, Source: "dataclient"}); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	bus.Close()
	if got := called.Load(); got != 1 {
		t.Fatalf("expected handler called 1 time, got %d", got)
	}
}

func TestEventBus_CloseDrainsBufferedEvents(t *testing.T) {
	bus := NewEventBus(64, zap.NewNop())

	var count atomic.Int32
	bus.Subscribe("evt", func(ctx context.Context, e component.Event) error {
		count.Add(1)
		return nil
	})
	bus.Subscribe("evt", func(ctx context.Context, e component.Event) error {
		count.Add(1)
		return errors.New("logged, not propagated")
	})

	for i := 0; i < 10; i++ {
		if err := bus.Publish(context.Background(), component.Event{Name: "evt"}); err != nil {
			t.Fatalf("Publish failed: %v", err)
		}
	}
	bus.Close()

	if got := count.Load(); got != 20 {
		t.Fatalf("expected 20 handler calls, got %d", got)
	}
}

func TestEventBus_Unsubscribe(t *testing.T) {
	bus := NewEventBus(16, zap.NewNop())
	defer bus.Close()

	var count atomic.Int32
	sub := bus.Subscribe("evt", func(ctx context.Context, e component.Event) error {
		count.Add(1)
		return nil
	})

	bus.Publish(context.Background(), component.Event{Name: "evt"})
	time.Sleep(100 * time.Millisecond)

	sub.Unsubscribe()

	bus.Publish(context.Background(), component.Event{Name: "evt"})
	time.Sleep(100 * time.Millisecond)

	if got := count.Load(); got != 1 {
		t.Fatalf("expected 1 call (unsubscribed before second), got %d", got)
	}
}

func TestEventBus_PublishAfterClose(t *testing.T) {
	bus := NewEventBus(16, zap.NewNop())
	bus.Close()
	bus.Close()

	err := bus.Publish(context.Background(), component.Event{Name: "evt"})
	if !errors.Is(err, component.ErrBusClosed) {
		t.Fatalf("expected ErrBusClosed, got %v", err)
	}
}

func TestEventBus_CloseWaitsForInFlight(t *testing.T) {
	bus := NewEventBus(16, zap.NewNop())

	done := make(chan struct{})
	bus.Subscribe("slow", func(ctx context.Context, e component.Event) error {
		time.Sleep(100 * time.Millisecond)
		close(done)
		return nil
	})

	bus.Publish(context.Background(), component.Event{Name: "slow"})
	bus.Close()

	select {
	case <-done:
	default:
		t.Fatal("Close returned before in-flight handler completed")
	}
}

func TestEventBus_PublishTimeoutWhenFull(t *testing.T) {
	bus := NewEventBus(1, zap.NewNop())

	release := make(chan struct{})
	bus.Subscribe("fill", func(ctx context.Context, e component.Event) error {
		<-release
		return nil
	})
	defer func() {
		close(release)
		bus.Close()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	// The dispatcher never blocks on handlers, so the buffer may drain between
	// publishes; either outcome is valid but nothing else is.
	for i := 0; i < 3; i++ {
		err := bus.Publish(ctx, component.Event{Name: "fill"})
		if err != nil && !errors.Is(err, component.ErrPublishTimeout) {
			t.Fatalf("expected nil or ErrPublishTimeout, got %v", err)
		}
	}
}

func TestTopicMatches(t *testing.T) {
	tests := []struct {
		topic string
		name  string
		want  bool
	}{
		{"*", component.EventContainerError, true},
		{component.EventStarted, component.EventStarted, true},
		{component.EventStarted, component.EventStopped, false},
		{"component.*", component.EventStarted, true},
		{"component.*", component.EventContainerError, false},
		{"component.*", "component.", false},
		{"component.*", "component.started.late", false},
		{"component*", component.EventStarted, false},
	}

	for _, tt := range tests {
		if got := topicMatches(tt.topic, tt.name); got != tt.want {
			t.Errorf("topicMatches(%q, %q) = %v, want %v", tt.topic, tt.name, got, tt.want)
		}
	}
}

func TestEventBus_PatternSubscriptions(t *testing.T) {
	bus := NewEventBus(16, zap.NewNop())

	var lifecycle, all atomic.Int32
	bus.Subscribe("component.*", func(ctx context.Context, e component.Event) error {
		lifecycle.Add(1)
		return nil
	})
	bus.Subscribe("*", func(ctx context.Context, e component.Event) error {
		all.Add(1)
		return nil
	})

	for _, name := range []string{component.EventInitialized, component.EventStarted, component.EventContainerError} {
		if err := bus.Publish(context.Background(), component.Event{Name: name}); err != nil {
			t.Fatalf("Publish(%s) failed: %v", name, err)
		}
	}
	bus.Close()

	if got := lifecycle.Load(); got != 2 {
		t.Fatalf("expected 2 lifecycle deliveries, got %d", got)
	}
	if got := all.Load(); got != 3 {
		t.Fatalf("expected 3 deliveries to *, got %d", got)
	}
}

func TestEventBus_HandlerPanicDoesNotStopDelivery(t *testing.T) {
	bus := NewEventBus(16, zap.NewNop())

	var delivered atomic.Int32
	bus.Subscribe("evt", func(ctx context.Context, e component.Event) error {
		panic("handler bug")
	})
	bus.Subscribe("evt", func(ctx context.Context, e component.Event) error {
		delivered.Add(1)
		return nil
	})

	for i := 0; i < 3; i++ {
		if err := bus.Publish(context.Background(), component.Event{Name: "evt"}); err != nil {
			t.Fatalf("Publish failed: %v", err)
		}
	}
	bus.Close()

	if got := delivered.Load(); got != 3 {
		t.Fatalf("expected 3 deliveries, got %d", got)
	}
}

func TestEventBus_RelayErrors(t *testing.T) {
	bus := newEventBus(16, zap.NewNop())
	c := container.New()

	received := make(chan component.Event, 4)
	bus.Subscribe(component.EventContainerError, func(ctx context.Context, e component.Event) error {
		received <- e
		return nil
	})

	sub := bus.relayErrors(c)
	boom := errors.New("boom")
	c.ReportError(context.Background(), boom)

	sub.Unsubscribe()
	c.ReportError(context.Background(), errors.New("after unsubscribe"))
	bus.Close()

	if got := len(received); got != 1 {
		t.Fatalf("expected 1 relayed error, got %d", got)
	}
	e := <-received
	if e.Source != "container" {
		t.Fatalf("expected source container, got %q", e.Source)
	}
	if err, _ := e.Data.(error); !errors.Is(err, boom) {
		t.Fatalf("expected relayed boom, got %v", e.Data)
	}
}

func TestEventBus_RelayAfterCloseIsSilent(t *testing.T) {
	bus := newEventBus(1, zap.NewNop())
	c := container.New()
	bus.relayErrors(c)
	bus.Close()

	done := make(chan struct{})
	go func() {
		c.ReportError(context.Background(), errors.New("late"))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("ReportError blocked on a closed bus")
	}
}
