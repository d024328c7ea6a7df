package runtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/leeforge/dataclient/component"
	"github.com/leeforge/dataclient/container"
	"github.com/leeforge/dataclient/dataclient"
	"github.com/leeforge/dataclient/gormclient"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// --- Test Helpers ---

type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) add(call string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
}

func (r *recorder) get() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string{}, r.calls...)
}

type testComponent struct {
	name     string
	deps     []string
	optional bool
	rec      *recorder
	initErr  error
	startErr error
	stopErr  error
	healthy  error
}

func (c *testComponent) Name() string           { return c.name }
func (c *testComponent) Dependencies() []string { return c.deps }

func (c *testComponent) Init(context.Context) error {
	c.rec.add("init:" + c.name)
	return c.initErr
}

func (c *testComponent) Start(context.Context) error {
	c.rec.add("start:" + c.name)
	return c.startErr
}

func (c *testComponent) Stop(context.Context) error {
	c.rec.add("stop:" + c.name)
	return c.stopErr
}

func (c *testComponent) ComponentOptions() component.Options {
	return component.Options{Optional: c.optional}
}

func (c *testComponent) HealthCheck(context.Context) error { return c.healthy }

func (c *testComponent) RegisterRoutes(r chi.Router) {
	r.Get("/"+c.name, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

// initOnly implements nothing beyond component.Component.
type initOnly struct{ name string }

func (c *initOnly) Name() string               { return c.name }
func (c *initOnly) Init(context.Context) error { return nil }

func newTestApp(t *testing.T) (*Application, *recorder) {
	t.Helper()
	app := New(Config{
		Router:      chi.NewRouter(),
		Logger:      zap.NewNop(),
		EventBuffer: 64,
	})
	return app, &recorder{}
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// --- Tests ---

func TestApplication_RegisterAndInit(t *testing.T) {
	app, rec := newTestApp(t)
	defer app.Shutdown(context.Background())

	if err := app.Register(&testComponent{name: "basic", rec: rec}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := app.Init(context.Background()); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if err := app.Init(context.Background()); err != nil {
		t.Fatalf("second Init failed: %v", err)
	}

	state, ok := app.State("basic")
	if !ok {
		t.Fatal("component state not found")
	}
	if state != component.StateInitialized {
		t.Errorf("state = %v, want initialized", state)
	}
	if got := rec.get(); !equal(got, []string{"init:basic"}) {
		t.Errorf("calls = %v, want a single init", got)
	}
}

func TestApplication_RegisterRejectsDuplicatesAndNil(t *testing.T) {
	app, rec := newTestApp(t)
	defer app.Shutdown(context.Background())

	app.Register(&testComponent{name: "dup", rec: rec})
	if err := app.Register(&testComponent{name: "dup", rec: rec}); err == nil {
		t.Fatal("duplicate Register should fail")
	}
	if err := app.Register(nil); err == nil {
		t.Fatal("nil Register should fail")
	}
}

func TestApplication_LifecycleOrder(t *testing.T) {
	app, rec := newTestApp(t)

	// Register in reverse order to prove sorting works
	app.Register(&testComponent{name: "c", deps: []string{"b"}, rec: rec})
	app.Register(&testComponent{name: "b", deps: []string{"a"}, rec: rec})
	app.Register(&testComponent{name: "a", rec: rec})

	ctx := context.Background()
	if err := app.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := app.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	want := []string{
		"init:a", "init:b", "init:c",
		"start:a", "start:b", "start:c",
		"stop:c", "stop:b", "stop:a",
	}
	if got := rec.get(); !equal(got, want) {
		t.Errorf("calls = %v, want %v", got, want)
	}
	if order := app.BootOrder(); !equal(order, []string{"a", "b", "c"}) {
		t.Errorf("boot order = %v, want [a b c]", order)
	}
	if state, _ := app.State("a"); state != component.StateStopped {
		t.Errorf("a state = %v, want stopped", state)
	}
}

func TestApplication_CircularDependencyDetected(t *testing.T) {
	app, rec := newTestApp(t)
	defer app.Shutdown(context.Background())

	app.Register(&testComponent{name: "x", deps: []string{"y"}, rec: rec})
	app.Register(&testComponent{name: "y", deps: []string{"x"}, rec: rec})

	if err := app.Init(context.Background()); err == nil {
		t.Fatal("should detect circular dependency")
	}
}

func TestApplication_MissingDependencyDetected(t *testing.T) {
	app, rec := newTestApp(t)
	defer app.Shutdown(context.Background())

	app.Register(&testComponent{name: "needs-missing", deps: []string{"nonexistent"}, rec: rec})

	if err := app.Init(context.Background()); err == nil {
		t.Fatal("should detect missing dependency")
	}
}

func TestApplication_OptionalComponentFailure(t *testing.T) {
	app, rec := newTestApp(t)
	defer app.Shutdown(context.Background())

	boom := fmt.Errorf("intentional failure")
	app.Register(&testComponent{name: "optional-fail", optional: true, initErr: boom, rec: rec})
	app.Register(&testComponent{name: "dependent", deps: []string{"optional-fail"}, optional: true, rec: rec})
	app.Register(&testComponent{name: "ok", rec: rec})

	if err := app.Start(context.Background()); err != nil {
		t.Fatalf("Start should succeed with optional component failure: %v", err)
	}

	if state, _ := app.State("optional-fail"); state != component.StateFailed {
		t.Errorf("optional-fail state = %v, want failed", state)
	}
	if !errors.Is(app.Err("optional-fail"), boom) {
		t.Errorf("Err = %v, want wrapped %v", app.Err("optional-fail"), boom)
	}
	if state, _ := app.State("dependent"); state != component.StateFailed {
		t.Errorf("dependent state = %v, want failed", state)
	}
	if state, _ := app.State("ok"); state != component.StateStarted {
		t.Errorf("ok state = %v, want started", state)
	}
}

func TestApplication_RequiredComponentFailureAbortsInit(t *testing.T) {
	app, rec := newTestApp(t)
	defer app.Shutdown(context.Background())

	app.Register(&testComponent{name: "required-fail", initErr: errors.New("critical failure"), rec: rec})

	if err := app.Init(context.Background()); err == nil {
		t.Fatal("Init should fail when a required component fails")
	}
}

func TestApplication_StopJoinsErrors(t *testing.T) {
	app, rec := newTestApp(t)
	defer app.Shutdown(context.Background())

	errA := errors.New("a failed")
	errB := errors.New("b failed")
	app.Register(&testComponent{name: "a", stopErr: errA, rec: rec})
	app.Register(&testComponent{name: "b", stopErr: errB, rec: rec})

	ctx := context.Background()
	if err := app.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	err := app.Stop(ctx)
	if !errors.Is(err, errA) || !errors.Is(err, errB) {
		t.Fatalf("Stop error = %v, want both failures", err)
	}
	if state, _ := app.State("a"); state != component.StateStopped {
		t.Errorf("a state = %v, want stopped", state)
	}
}

func TestApplication_ComponentWithoutOptionalInterfaces(t *testing.T) {
	app, _ := newTestApp(t)
	defer app.Shutdown(context.Background())

	app.Register(&initOnly{name: "bare"})
	if err := app.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if state, _ := app.State("bare"); state != component.StateStarted {
		t.Errorf("state = %v, want started", state)
	}
	if len(app.Components()) != 1 {
		t.Errorf("expected 1 component, got %d", len(app.Components()))
	}
}

func TestApplication_RoutesAndHealth(t *testing.T) {
	router := chi.NewRouter()
	app := New(Config{Router: router})
	defer app.Shutdown(context.Background())

	rec := &recorder{}
	unhealthy := errors.New("down")
	app.Register(&testComponent{name: "up", rec: rec})
	app.Register(&testComponent{name: "down", healthy: unhealthy, rec: rec})

	if err := app.Init(context.Background()); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/up", nil))
	if w.Code != http.StatusNoContent {
		t.Errorf("route status = %d, want 204", w.Code)
	}

	health := app.Health(context.Background())
	if health["up"] != nil {
		t.Errorf("up health = %v", health["up"])
	}
	if !errors.Is(health["down"], unhealthy) {
		t.Errorf("down health = %v, want %v", health["down"], unhealthy)
	}
}

func TestApplication_LifecycleEvents(t *testing.T) {
	app, rec := newTestApp(t)

	var mu sync.Mutex
	var events []string
	app.Events().Subscribe(component.EventStarted, func(ctx context.Context, e component.Event) error {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, e.Name+":"+e.Source)
		return nil
	})

	app.Register(&testComponent{name: "eventer", rec: rec})
	if err := app.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	app.Shutdown(context.Background())

	mu.Lock()
	defer mu.Unlock()
	if !equal(events, []string{"component.started:eventer"}) {
		t.Errorf("events = %v", events)
	}
}

func TestApplication_ContainerErrorsBecomeEvents(t *testing.T) {
	app, _ := newTestApp(t)

	received := make(chan error, 1)
	app.Events().Subscribe(component.EventContainerError, func(ctx context.Context, e component.Event) error {
		received <- e.Data.(error)
		return nil
	})

	boom := errors.New("observer failed")
	app.Container().ReportError(context.Background(), boom)

	select {
	case err := <-received:
		if !errors.Is(err, boom) {
			t.Errorf("got %v, want %v", err, boom)
		}
	case <-time.After(time.Second):
		t.Fatal("container error was not published")
	}
	app.Shutdown(context.Background())
}

type brokenPlugin struct{}

func (brokenPlugin) Name() string              { return "broken" }
func (brokenPlugin) Initialize(*gorm.DB) error { return errors.New("cannot register callbacks") }

type testUser struct {
	ID   uint `gorm:"primaryKey"`
	Name string
}

func TestApplication_HostsDataClient(t *testing.T) {
	c := container.New()
	app := New(Config{Container: c})

	dc, err := dataclient.NewComponent(c, dataclient.WithModels(gormclient.Model{Name: "User", Schema: &testUser{}}))
	if err != nil {
		t.Fatalf("NewComponent failed: %v", err)
	}
	if err := app.Register(dc); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	received := make(chan error, 1)
	app.Events().Subscribe(component.EventContainerError, func(ctx context.Context, e component.Event) error {
		received <- e.Data.(error)
		return nil
	})

	ctx := context.Background()
	if err := app.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	client := dc.Client().(*gormclient.Client)
	if !client.Connected() {
		t.Fatal("client should be connected after Start")
	}

	// Applied immediately on the live connection; the failure reaches the bus.
	if _, err := dataclient.AddMiddleware(c, brokenPlugin{}); err != nil {
		t.Fatalf("AddMiddleware failed: %v", err)
	}
	select {
	case err := <-received:
		var mre *dataclient.MiddlewareResolutionError
		if !errors.As(err, &mre) || mre.Stage != dataclient.StageUse {
			t.Errorf("got %v, want a use-stage MiddlewareResolutionError", err)
		}
	case <-time.After(time.Second):
		t.Fatal("middleware failure was not published")
	}

	if err := app.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	if client.Connected() {
		t.Error("client should be disconnected after Shutdown")
	}
}
