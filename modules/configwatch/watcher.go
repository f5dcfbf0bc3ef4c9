// Package configwatch watches configuration files and announces changes
// through the framework's two event layers: a kernel event on the Watcher
// component for in-process reload hooks, and a CloudEvent to the
// application's observers.
package configwatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/arborframe/arbor"
)

// EventFileChanged is triggered on the Watcher for every effective file
// change. Event data carries "path" and "op" entries.
const EventFileChanged = "fileChanged"

// ErrAlreadyWatching is reported when Start is called on a running watcher.
var ErrAlreadyWatching = errors.New("config watcher is already running")

// Config declares the paths to watch. Directories report changes to the
// files within them.
type Config struct {
	Paths []string `yaml:"paths"`

	// Debounce suppresses repeated events for the same path arriving
	// within the window. Editors tend to produce several.
	Debounce time.Duration `yaml:"debounce" default:"500ms"`
}

// Watcher is a component wrapping an fsnotify watcher. Change hooks attach
// with On(EventFileChanged, ...); observers subscribe to
// arbor.EventTypeConfigChanged.
type Watcher struct {
	arbor.Component

	app    *arbor.Application
	logger arbor.Logger
	config *Config

	mu    sync.Mutex
	paths []string
	fw    *fsnotify.Watcher
	stop  chan struct{}
	done  chan struct{}
}

var (
	_ arbor.Startable = (*Watcher)(nil)
	_ arbor.Stoppable = (*Watcher)(nil)
)

// NewWatcher builds a Watcher for app. A nil config watches nothing until
// AddPath; app may be nil when only kernel events are wanted.
func NewWatcher(app *arbor.Application, cfg *Config) (*Watcher, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	if err := arbor.ValidateConfig(cfg); err != nil {
		return nil, err
	}

	w := &Watcher{
		app:    app,
		logger: arbor.NewNopLogger(),
		config: cfg,
		paths:  append([]string(nil), cfg.Paths...),
	}
	if app != nil {
		w.logger = app.Logger()
	}
	return w, nil
}

// AddPath adds a file or directory to the watch list. On a running watcher
// the path takes effect immediately; otherwise existence is checked at
// Start.
func (w *Watcher) AddPath(path string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.paths = append(w.paths, path)
	if w.fw != nil {
		if err := w.fw.Add(path); err != nil {
			return fmt.Errorf("watching %s: %w", path, err)
		}
	}
	return nil
}

// Paths returns the configured watch list.
func (w *Watcher) Paths() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.paths...)
}

// Start implements arbor.Startable and begins delivering change events.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.fw != nil {
		return ErrAlreadyWatching
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	for _, path := range w.paths {
		if err := fw.Add(path); err != nil {
			fw.Close()
			return fmt.Errorf("watching %s: %w", path, err)
		}
	}

	w.fw = fw
	w.stop = make(chan struct{})
	w.done = make(chan struct{})
	go w.watchLoop(ctx, fw, w.stop, w.done)

	w.logger.Info("config watcher started", "paths", len(w.paths))
	return nil
}

// Stop implements arbor.Stoppable. Stopping a watcher that is not running
// is a no-op.
func (w *Watcher) Stop(ctx context.Context) error {
	w.mu.Lock()
	fw, stop, done := w.fw, w.stop, w.done
	w.fw, w.stop, w.done = nil, nil, nil
	w.mu.Unlock()

	if fw == nil {
		return nil
	}

	close(stop)
	fw.Close()

	select {
	case <-done:
		w.logger.Info("config watcher stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("config watcher shutdown: %w", ctx.Err())
	}
}

func (w *Watcher) watchLoop(ctx context.Context, fw *fsnotify.Watcher, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	// One editor save produces several events; collapse them per path.
	lastSeen := make(map[string]time.Time)

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case event, ok := <-fw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if last, seen := lastSeen[event.Name]; seen && time.Since(last) < w.config.Debounce {
				continue
			}
			lastSeen[event.Name] = time.Now()
			w.announce(ctx, event)
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			w.logger.Error("config watcher error", "error", err)
		}
	}
}

func (w *Watcher) announce(ctx context.Context, event fsnotify.Event) {
	w.logger.Info("config file changed", "path", event.Name, "op", event.Op.String())

	data := map[string]any{"path": event.Name, "op": event.Op.String()}
	if err := w.Trigger(ctx, EventFileChanged, &arbor.Event{Data: data}); err != nil {
		w.logger.Error("change hook failed", "path", event.Name, "error", err)
	}

	if w.app != nil {
		ce := arbor.NewCloudEvent(arbor.EventTypeConfigChanged, "config-watcher", data, nil)
		if err := w.app.NotifyObservers(ctx, ce); err != nil {
			w.logger.Debug("emitting change event", "error", err)
		}
	}
}
