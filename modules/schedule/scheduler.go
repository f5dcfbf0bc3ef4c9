// Package schedule runs recurring jobs for an application on cron
// expressions. The Scheduler is a component, so job hooks attach as event
// handlers and each run is announced to the application's observers.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/arborframe/arbor"
)

// Kernel event names triggered on the Scheduler around job execution.
// Event data carries a "job" entry with the job ID; a jobRun handler that
// sets Handled skips the run.
const (
	EventJobRun    = "jobRun"
	EventJobDone   = "jobDone"
	EventJobFailed = "jobFailed"
)

var (
	// ErrNilJob is returned when a job is registered without a function.
	ErrNilJob = errors.New("job function is nil")

	// ErrUnknownJob is returned by RunNow for an unregistered job ID.
	ErrUnknownJob = errors.New("unknown job")

	// ErrNoApplication is returned by AddRoute on a scheduler built
	// without an application.
	ErrNoApplication = errors.New("scheduler has no application attached")
)

// JobFunc is one schedulable unit of work.
type JobFunc func(ctx context.Context) error

// Config declares jobs to schedule at construction time.
type Config struct {
	Jobs []JobConfig `yaml:"jobs"`
}

// JobConfig schedules one application route on a cron expression. Spec
// accepts the standard five-field syntax plus descriptors like "@hourly"
// and "@every 30s".
type JobConfig struct {
	ID     string         `yaml:"id"`
	Spec   string         `yaml:"spec"`
	Route  string         `yaml:"route"`
	Params map[string]any `yaml:"params"`
}

type jobEntry struct {
	entryID cron.EntryID
	run     func()
}

// Scheduler owns a cron runner and the jobs registered with it. Jobs are
// either plain functions or application routes; both run with the
// application's lifetime context once the scheduler has started.
type Scheduler struct {
	arbor.Component

	app    *arbor.Application
	logger arbor.Logger

	cron *cron.Cron

	mu      sync.RWMutex
	entries map[string]jobEntry
	started bool
	ctx     context.Context
	cancel  context.CancelFunc
}

var (
	_ arbor.Startable = (*Scheduler)(nil)
	_ arbor.Stoppable = (*Scheduler)(nil)
)

// NewScheduler builds a Scheduler for app and registers the configured
// jobs. A nil config starts empty; app may be nil when only AddFunc jobs
// are used.
func NewScheduler(app *arbor.Application, cfg *Config) (*Scheduler, error) {
	if cfg == nil {
		cfg = &Config{}
	}

	s := &Scheduler{
		app:     app,
		logger:  arbor.NewNopLogger(),
		cron:    cron.New(),
		entries: make(map[string]jobEntry),
	}
	if app != nil {
		s.logger = app.Logger()
	}

	for _, jc := range cfg.Jobs {
		if _, err := s.AddRoute(jc.ID, jc.Spec, jc.Route, jc.Params); err != nil {
			return nil, fmt.Errorf("configuring scheduler: %w", err)
		}
	}
	return s, nil
}

// AddFunc registers fn under id to run on the cron spec, replacing any job
// already registered under the same ID. An empty id gets a generated one.
// The job ID is returned.
func (s *Scheduler) AddFunc(id, spec string, fn JobFunc) (string, error) {
	if fn == nil {
		return "", ErrNilJob
	}
	if id == "" {
		id = uuid.NewString()
	}

	run := s.wrap(id, fn)

	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.entries[id]; ok {
		s.cron.Remove(old.entryID)
		delete(s.entries, id)
	}

	entryID, err := s.cron.AddFunc(spec, run)
	if err != nil {
		return "", fmt.Errorf("job %q: %w", id, err)
	}
	s.entries[id] = jobEntry{entryID: entryID, run: run}

	s.logger.Debug("job scheduled", "job", id, "spec", spec)
	s.emitEvent(context.Background(), arbor.EventTypeJobScheduled, map[string]any{"job": id, "spec": spec})
	return id, nil
}

// AddRoute registers a job that runs an application route. An empty id
// defaults to the route itself.
func (s *Scheduler) AddRoute(id, spec, route string, params map[string]any) (string, error) {
	if s.app == nil {
		return "", ErrNoApplication
	}
	if route == "" {
		return "", fmt.Errorf("%w: empty route", ErrNilJob)
	}
	if id == "" {
		id = route
	}
	return s.AddFunc(id, spec, func(ctx context.Context) error {
		_, err := s.app.RunAction(ctx, route, params)
		return err
	})
}

// Remove drops a job. Unknown IDs are a no-op.
func (s *Scheduler) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ent, ok := s.entries[id]; ok {
		s.cron.Remove(ent.entryID)
		delete(s.entries, id)
	}
}

// JobIDs returns the registered job IDs in sorted order.
func (s *Scheduler) JobIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// NextRun reports when the job is due next. The zero time means the job is
// unknown or the scheduler has not started.
func (s *Scheduler) NextRun(id string) time.Time {
	s.mu.RLock()
	ent, ok := s.entries[id]
	s.mu.RUnlock()
	if !ok {
		return time.Time{}
	}
	return s.cron.Entry(ent.entryID).Next
}

// RunNow executes a registered job immediately, outside its schedule. The
// run goes through the same hooks and events as a scheduled one.
func (s *Scheduler) RunNow(id string) error {
	s.mu.RLock()
	ent, ok := s.entries[id]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownJob, id)
	}
	ent.run()
	return nil
}

// Start implements arbor.Startable and begins firing schedules. Starting
// twice is a no-op.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.ctx, s.cancel = context.WithCancel(ctx)
	jobs := len(s.entries)
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info("scheduler started", "jobs", jobs)
	return nil
}

// Stop implements arbor.Stoppable. It stops firing new runs and waits for
// in-flight jobs until ctx expires.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	cancel := s.cancel
	s.ctx = nil
	s.cancel = nil
	s.mu.Unlock()

	drained := s.cron.Stop()
	select {
	case <-drained.Done():
		s.logger.Info("scheduler stopped")
	case <-ctx.Done():
		s.logger.Warn("scheduler shutdown timed out")
		cancel()
		return fmt.Errorf("scheduler shutdown: %w", ctx.Err())
	}

	cancel()
	return nil
}

// wrap builds the cron callback for one job: trigger jobRun, execute with
// panic containment, then report the outcome on both event layers.
func (s *Scheduler) wrap(id string, fn JobFunc) func() {
	return func() {
		ctx := s.runContext()

		before := &arbor.Event{Data: map[string]any{"job": id}}
		if err := s.Trigger(ctx, EventJobRun, before); err != nil {
			s.logger.Error("job hook failed", "job", id, "error", err)
			return
		}
		if before.Handled {
			s.logger.Debug("job skipped", "job", id)
			return
		}

		start := time.Now()
		err := s.execute(ctx, fn)
		elapsed := time.Since(start)

		if err != nil {
			s.logger.Error("job failed", "job", id, "error", err)
			s.triggerOutcome(ctx, EventJobFailed, map[string]any{"job": id, "error": err.Error()})
			s.emitEvent(ctx, arbor.EventTypeJobFailed, map[string]any{"job": id, "error": err.Error()})
			return
		}

		s.logger.Debug("job completed", "job", id, "elapsed", elapsed.String())
		s.triggerOutcome(ctx, EventJobDone, map[string]any{"job": id, "elapsed": elapsed.String()})
		s.emitEvent(ctx, arbor.EventTypeJobCompleted, map[string]any{"job": id, "elapsed": elapsed.String()})
	}
}

func (s *Scheduler) execute(ctx context.Context, fn JobFunc) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("job panicked: %v", rec)
		}
	}()
	return fn(ctx)
}

func (s *Scheduler) triggerOutcome(ctx context.Context, name string, data map[string]any) {
	if err := s.Trigger(ctx, name, &arbor.Event{Data: data}); err != nil {
		s.logger.Error("job hook failed", "event", name, "error", err)
	}
}

func (s *Scheduler) runContext() context.Context {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.ctx != nil {
		return s.ctx
	}
	return context.Background()
}

// emitEvent forwards a job lifecycle event to the application's observers.
func (s *Scheduler) emitEvent(ctx context.Context, eventType string, data map[string]any) {
	if s.app == nil {
		return
	}
	event := arbor.NewCloudEvent(eventType, "scheduler", data, nil)
	if err := s.app.NotifyObservers(ctx, event); err != nil {
		s.logger.Debug("emitting scheduler event", "eventType", eventType, "error", err)
	}
}
