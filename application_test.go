package arbor

import (
	"context"
	"errors"
	"os"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type lifecycleComponent struct {
	name      string
	mu        *sync.Mutex
	log       *[]string
	failStart bool
	failStop  bool
}

func (l *lifecycleComponent) Start(ctx context.Context) error {
	if l.failStart {
		return errors.New("refusing to start")
	}
	l.mu.Lock()
	*l.log = append(*l.log, "start:"+l.name)
	l.mu.Unlock()
	return nil
}

func (l *lifecycleComponent) Stop(ctx context.Context) error {
	if l.failStop {
		return errors.New("refusing to stop")
	}
	l.mu.Lock()
	*l.log = append(*l.log, "stop:"+l.name)
	l.mu.Unlock()
	return nil
}

var (
	_ Startable = (*lifecycleComponent)(nil)
	_ Stoppable = (*lifecycleComponent)(nil)
)

type bootComponent struct {
	app   *Application
	calls int
}

func (b *bootComponent) Bootstrap(ctx context.Context, app *Application) error {
	b.app = app
	b.calls++
	return nil
}

func newLifecycleApp(t *testing.T, extra map[string]any) (*Application, *[]string) {
	t.Helper()
	var mu sync.Mutex
	log := make([]string, 0, 8)

	config := map[string]any{
		"id":       "web",
		"basePath": t.TempDir(),
		"components": map[string]any{
			"alpha": &lifecycleComponent{name: "alpha", mu: &mu, log: &log},
			"beta":  &lifecycleComponent{name: "beta", mu: &mu, log: &log},
		},
	}
	for k, v := range extra {
		config[k] = v
	}
	app, err := NewApplication(config)
	require.NoError(t, err)
	return app, &log
}

func TestNewApplicationRequiresIDAndBasePath(t *testing.T) {
	_, err := NewApplication(map[string]any{"basePath": t.TempDir()})
	assert.ErrorIs(t, err, ErrAppIDMissing)

	_, err = NewApplication(map[string]any{"id": "web"})
	assert.ErrorIs(t, err, ErrAppBasePathMissing)

	_, err = NewApplication(map[string]any{"id": "web", "basePath": "/definitely/not/here"})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestNewApplicationRegistersAppAlias(t *testing.T) {
	dir := t.TempDir()
	app, err := NewApplication(map[string]any{"id": "web", "basePath": dir})
	require.NoError(t, err)

	got, err := app.Aliases().Get("@app/runtime/logs")
	require.NoError(t, err)
	assert.Equal(t, dir+"/runtime/logs", got)

	got, err = app.Aliases().Get("@runtime/cache")
	require.NoError(t, err)
	assert.Equal(t, dir+"/runtime/cache", got)
}

func TestNewApplicationConfigAliasesSeeAppAlias(t *testing.T) {
	dir := t.TempDir()
	app, err := NewApplication(map[string]any{
		"id":       "web",
		"basePath": dir,
		"aliases":  map[string]any{"@uploads": "@app/uploads"},
	})
	require.NoError(t, err)

	got, err := app.Aliases().Get("@uploads/avatars")
	require.NoError(t, err)
	assert.Equal(t, dir+"/uploads/avatars", got)
}

func TestNewApplicationReadsVersion(t *testing.T) {
	app, err := NewApplication(map[string]any{"id": "web", "basePath": t.TempDir()})
	require.NoError(t, err)
	assert.Equal(t, "1.0", app.Version())

	app, err = NewApplication(map[string]any{
		"id":       "web",
		"basePath": t.TempDir(),
		"version":  "3.2.1",
	}, WithVersion("0.9"))
	require.NoError(t, err)
	assert.Equal(t, "3.2.1", app.Version())
}

func TestApplicationInitRunsBootstrapComponents(t *testing.T) {
	boot := &bootComponent{}
	app, err := NewApplication(map[string]any{
		"id":         "web",
		"basePath":   t.TempDir(),
		"components": map[string]any{"warmup": boot},
		"bootstrap":  []any{"warmup"},
	})
	require.NoError(t, err)

	assert.False(t, app.Has("warmup", true))
	require.NoError(t, app.Init())
	assert.True(t, app.Has("warmup", true))
	assert.Same(t, app, boot.app)
	assert.Equal(t, 1, boot.calls)
}

func TestApplicationInitLoadsBootstrapModules(t *testing.T) {
	app, err := NewApplication(map[string]any{
		"id":        "web",
		"basePath":  t.TempDir(),
		"modules":   map[string]any{"admin": map[string]any{}},
		"bootstrap": []any{"admin"},
	})
	require.NoError(t, err)

	require.NoError(t, app.Init())
	_, ok := app.LoadedModule("admin")
	assert.True(t, ok)
}

func TestApplicationInitResolvesBootstrapNamespaces(t *testing.T) {
	var probe *bootComponent
	reg := NewTypeRegistry()
	require.NoError(t, reg.Register("app/Warmup", func(args []any, props map[string]any) (any, error) {
		probe = &bootComponent{}
		return probe, nil
	}, (*bootComponent)(nil)))

	app, err := NewApplication(map[string]any{
		"id":        "web",
		"basePath":  t.TempDir(),
		"bootstrap": []any{"app/Warmup"},
	}, WithTypeRegistry(reg))
	require.NoError(t, err)

	require.NoError(t, app.Init())
	require.NotNil(t, probe)
	assert.Same(t, app, probe.app)
	assert.Equal(t, 1, probe.calls)
}

func TestApplicationInitRejectsUnknownBootstrapEntry(t *testing.T) {
	app, err := NewApplication(map[string]any{
		"id":        "web",
		"basePath":  t.TempDir(),
		"bootstrap": []any{"ghost"},
	})
	require.NoError(t, err)
	assert.ErrorIs(t, app.Init(), ErrInvalidConfig)
}

func TestNewApplicationRejectsNonListBootstrap(t *testing.T) {
	_, err := NewApplication(map[string]any{
		"id":        "web",
		"basePath":  t.TempDir(),
		"bootstrap": "warmup",
	})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestApplicationStartStopOrder(t *testing.T) {
	app, log := newLifecycleApp(t, nil)

	require.NoError(t, app.Start())
	require.NoError(t, app.Stop())

	assert.Equal(t, []string{"start:alpha", "start:beta", "stop:beta", "stop:alpha"}, *log)
}

func TestApplicationStartFailureNamesComponent(t *testing.T) {
	var mu sync.Mutex
	log := make([]string, 0, 2)
	app, err := NewApplication(map[string]any{
		"id":       "web",
		"basePath": t.TempDir(),
		"components": map[string]any{
			"bad": &lifecycleComponent{name: "bad", mu: &mu, log: &log, failStart: true},
		},
	})
	require.NoError(t, err)

	err = app.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `starting component "bad"`)
}

func TestApplicationStopReportsLastError(t *testing.T) {
	var mu sync.Mutex
	log := make([]string, 0, 2)
	app, err := NewApplication(map[string]any{
		"id":       "web",
		"basePath": t.TempDir(),
		"components": map[string]any{
			"flaky": &lifecycleComponent{name: "flaky", mu: &mu, log: &log, failStop: true},
		},
	})
	require.NoError(t, err)

	require.NoError(t, app.Start())
	assert.EqualError(t, app.Stop(), "refusing to stop")
}

func TestApplicationContextCanceledOnStop(t *testing.T) {
	app, _ := newLifecycleApp(t, nil)

	require.NoError(t, app.Start())
	ctx := app.Context()
	select {
	case <-ctx.Done():
		t.Fatal("context done before Stop")
	default:
	}

	require.NoError(t, app.Stop())
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("context not canceled by Stop")
	}
}

func TestApplicationRunLifecycle(t *testing.T) {
	app, log := newLifecycleApp(t, nil)

	done := make(chan error, 1)
	go func() {
		done <- app.Run()
	}()

	time.Sleep(100 * time.Millisecond)

	p, err := os.FindProcess(os.Getpid())
	require.NoError(t, err)
	require.NoError(t, p.Signal(syscall.SIGTERM))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for Run to return")
	}

	assert.Contains(t, *log, "start:alpha")
	assert.Contains(t, *log, "stop:alpha")
}

func TestApplicationObserversFilterByEventType(t *testing.T) {
	app, _ := newLifecycleApp(t, nil)

	var mu sync.Mutex
	all := make([]CloudEvent, 0, 4)
	startedOnly := make([]CloudEvent, 0, 2)

	require.NoError(t, app.RegisterObserver(NewFunctionalObserver("all", func(ctx context.Context, e CloudEvent) error {
		mu.Lock()
		defer mu.Unlock()
		all = append(all, e)
		return nil
	})))
	require.NoError(t, app.RegisterObserver(NewFunctionalObserver("started", func(ctx context.Context, e CloudEvent) error {
		mu.Lock()
		defer mu.Unlock()
		startedOnly = append(startedOnly, e)
		return nil
	}), EventTypeApplicationStarted))

	require.NoError(t, app.Start())
	require.NoError(t, app.Stop())

	time.Sleep(150 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, startedOnly)
	assert.Equal(t, EventTypeApplicationStarted, startedOnly[0].Type())
	assert.Equal(t, "web", startedOnly[0].Source())
	assert.GreaterOrEqual(t, len(all), 2)
}

func TestApplicationComponentEventsReachObservers(t *testing.T) {
	app, _ := newLifecycleApp(t, nil)

	var mu sync.Mutex
	counts := make(map[string]int)
	require.NoError(t, app.RegisterObserver(NewFunctionalObserver("components", func(ctx context.Context, e CloudEvent) error {
		mu.Lock()
		defer mu.Unlock()
		counts[e.Type()]++
		return nil
	}), EventTypeComponentRegistered, EventTypeComponentResolved))

	require.NoError(t, app.Set("gamma", NewComponent(nil)))

	require.NoError(t, app.Start())
	require.NoError(t, app.Stop())

	time.Sleep(150 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, counts[EventTypeComponentRegistered])
	assert.Equal(t, 3, counts[EventTypeComponentResolved], "alpha, beta and gamma resolve during Start")
}

func TestApplicationUnregisterObserverStopsDelivery(t *testing.T) {
	app, _ := newLifecycleApp(t, nil)

	var mu sync.Mutex
	count := 0
	obs := NewFunctionalObserver("counting", func(ctx context.Context, e CloudEvent) error {
		mu.Lock()
		defer mu.Unlock()
		count++
		return nil
	})
	require.NoError(t, app.RegisterObserver(obs))
	require.NoError(t, app.UnregisterObserver(obs))

	event := NewCloudEvent(EventTypeApplicationStarted, "test", nil, nil)
	require.NoError(t, app.NotifyObservers(context.Background(), event))
	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Zero(t, count)
	assert.Empty(t, app.GetObservers())
}

func TestApplicationObserverPanicDoesNotPoisonOthers(t *testing.T) {
	app, _ := newLifecycleApp(t, nil)

	var mu sync.Mutex
	delivered := 0
	require.NoError(t, app.RegisterObserver(NewFunctionalObserver("panicky", func(ctx context.Context, e CloudEvent) error {
		panic("observer bug")
	})))
	require.NoError(t, app.RegisterObserver(NewFunctionalObserver("steady", func(ctx context.Context, e CloudEvent) error {
		mu.Lock()
		defer mu.Unlock()
		delivered++
		return nil
	})))

	event := NewCloudEvent(EventTypeApplicationStarted, "test", nil, nil)
	require.NoError(t, app.NotifyObservers(context.Background(), event))
	time.Sleep(150 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, delivered)
}

func TestApplicationRegisterObserverRejectsNil(t *testing.T) {
	app, _ := newLifecycleApp(t, nil)
	assert.ErrorIs(t, app.RegisterObserver(nil), ErrObserverNil)
	assert.ErrorIs(t, app.UnregisterObserver(nil), ErrObserverNil)
}

func TestApplicationOptions(t *testing.T) {
	reg := NewTypeRegistry()
	c := NewContainer(reg)
	bus := NewBus()

	app, err := NewApplication(map[string]any{
		"id":       "web",
		"basePath": t.TempDir(),
	}, WithContainer(c), WithBus(bus))
	require.NoError(t, err)
	assert.Same(t, c, app.Container())
	assert.Same(t, reg, app.Container().Types())
	assert.Same(t, bus, app.Bus())
}

func TestApplicationOptionsRejectNil(t *testing.T) {
	config := map[string]any{"id": "web", "basePath": t.TempDir()}

	_, err := NewApplication(config, WithLogger(nil))
	assert.ErrorIs(t, err, ErrLoggerNil)
	_, err = NewApplication(config, WithContainer(nil))
	assert.ErrorIs(t, err, ErrContainerNil)
	_, err = NewApplication(config, WithTypeRegistry(nil))
	assert.ErrorIs(t, err, ErrTypeRegistryNil)
	_, err = NewApplication(config, WithBus(nil))
	assert.ErrorIs(t, err, ErrBusNil)
}
