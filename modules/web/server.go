// Package web serves an arbor module tree over HTTP. The Server component
// wraps a chi router with request-ID, CORS and lifecycle-hook middleware,
// and can mount an application's route resolution as a JSON endpoint so
// controller actions answer requests without per-route handler code.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/arborframe/arbor"
)

type ctxKey int

const requestIDKey ctxKey = iota

// RequestID returns the identifier the server's middleware assigned to the
// request, or "" when the context did not pass through it.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// Server is the HTTP front end for an application. It is a component, so
// request hooks attach as event handlers and behaviors work the same way
// they do anywhere else in the framework.
type Server struct {
	arbor.Component

	app    *arbor.Application
	config *Config
	logger arbor.Logger

	router chi.Router

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

var (
	_ arbor.Startable = (*Server)(nil)
	_ arbor.Stoppable = (*Server)(nil)
)

// NewServer builds a Server for app with the given configuration. A nil
// config runs on the tag defaults. app may be nil for a bare router, in
// which case MountActions is unavailable and no observer events are
// emitted.
func NewServer(app *arbor.Application, cfg *Config) (*Server, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	if err := arbor.ValidateConfig(cfg); err != nil {
		return nil, err
	}

	s := &Server{
		app:    app,
		config: cfg,
		logger: arbor.NewNopLogger(),
	}
	if app != nil {
		s.logger = app.Logger()
	}

	r := chi.NewRouter()
	r.Use(s.requestIDMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.hookMiddleware)
	s.router = r

	return s, nil
}

// Router exposes the underlying chi router for route registration.
func (s *Server) Router() chi.Router {
	return s.router
}

// Config returns the validated server configuration.
func (s *Server) Config() *Config {
	return s.config
}

// Addr reports the address the server is bound to, or "" when it is not
// listening. With a configured port of 0 this is how callers learn the
// assigned port.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// MountActions exposes the application's route resolution under prefix.
// A request to prefix/users/list?id=7 runs the route "users/list" with the
// query parameters as action params; a JSON object body merges on top of
// them. Results are written as {"result": ...}, failures as {"error": ...}
// with 404 for routes the module tree cannot resolve.
func (s *Server) MountActions(prefix string) error {
	if s.app == nil {
		return ErrNoApplication
	}
	pattern := strings.TrimSuffix(prefix, "/") + "/*"
	s.router.HandleFunc(pattern, s.serveAction)
	return nil
}

// Listen binds host:port and serves in the background. The returned channel
// receives the terminal serve error; a graceful Stop delivers nil. Bind
// failures are delivered before Listen returns.
func (s *Server) Listen(host string, port int) <-chan error {
	errc := make(chan error, 1)

	s.mu.Lock()
	if s.server != nil {
		s.mu.Unlock()
		errc <- ErrAlreadyListening
		return errc
	}

	addr := fmt.Sprintf("%s:%d", host, port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		s.mu.Unlock()
		errc <- fmt.Errorf("binding %s: %w", addr, err)
		return errc
	}

	handler := http.Handler(s.router)
	if bp := strings.TrimSuffix(s.config.BasePath, "/"); bp != "" {
		outer := chi.NewRouter()
		outer.Mount(bp, s.router)
		handler = outer
	}

	s.listener = ln
	s.server = &http.Server{
		Handler:      handler,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
	srv := s.server
	s.mu.Unlock()

	s.logger.Info("web server listening", "addr", ln.Addr().String())

	go func() {
		err := srv.Serve(ln)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
			return
		}
		errc <- nil
	}()

	return errc
}

// Start implements arbor.Startable. It binds the configured address and
// keeps serving until Stop. Serve failures after a successful start are
// logged and reported to the application's observers.
func (s *Server) Start(ctx context.Context) error {
	errc := s.Listen(s.config.Host, s.config.Port)

	// Bind failures arrive on the channel before Listen returns; the short
	// window also catches a Serve that dies immediately.
	select {
	case err := <-errc:
		if err == nil {
			err = http.ErrServerClosed
		}
		return fmt.Errorf("starting web server: %w", err)
	case <-time.After(10 * time.Millisecond):
	}

	go func() {
		if err := <-errc; err != nil {
			s.logger.Error("web server failed", "error", err)
			s.emitEvent(context.Background(), arbor.EventTypeServerStopped, map[string]any{"error": err.Error()})
		}
	}()

	s.emitEvent(ctx, arbor.EventTypeServerStarted, map[string]any{"addr": s.Addr()})
	return nil
}

// Stop implements arbor.Stoppable with a graceful drain capped by the
// configured shutdown timeout. Stopping a server that is not listening is
// a no-op.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.server = nil
	s.listener = nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.ShutdownTimeout)
		defer cancel()
	}

	err := srv.Shutdown(ctx)
	if err != nil {
		s.logger.Error("web server shutdown", "error", err)
	} else {
		s.logger.Info("web server stopped")
	}

	s.emitEvent(context.Background(), arbor.EventTypeServerStopped, nil)
	return err
}

// serveAction translates one HTTP request into an application route run.
func (s *Server) serveAction(w http.ResponseWriter, r *http.Request) {
	route := strings.Trim(chi.URLParam(r, "*"), "/")

	params := make(map[string]any)
	for name, values := range r.URL.Query() {
		if len(values) == 1 {
			params[name] = values[0]
		} else {
			params[name] = values
		}
	}
	if strings.Contains(r.Header.Get("Content-Type"), "application/json") {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
			s.fail(w, r, http.StatusBadRequest, fmt.Errorf("decoding request body: %w", err))
			return
		}
		for name, value := range body {
			params[name] = value
		}
	}

	before := &arbor.Event{Data: map[string]any{
		"route":     route,
		"params":    params,
		"requestID": RequestID(r.Context()),
	}}
	if err := s.Trigger(r.Context(), EventBeforeHandler, before); err != nil {
		s.fail(w, r, http.StatusInternalServerError, err)
		return
	}
	if before.Handled {
		s.writeJSON(w, http.StatusOK, map[string]any{"result": before.Data["result"]})
		return
	}

	result, err := s.app.RunAction(r.Context(), route, params)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, arbor.ErrInvalidRoute) {
			status = http.StatusNotFound
		}
		s.fail(w, r, status, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{"result": result})
}

// fail triggers the error hook and writes the error payload.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, status int, err error) {
	ev := &arbor.Event{Data: map[string]any{
		"method":    r.Method,
		"path":      r.URL.Path,
		"status":    status,
		"error":     err.Error(),
		"requestID": RequestID(r.Context()),
	}}
	if hookErr := s.Trigger(r.Context(), EventRequestError, ev); hookErr != nil {
		s.logger.Error("request error hook failed", "error", hookErr)
	}
	s.writeJSON(w, status, map[string]any{"error": err.Error()})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("writing response failed", "error", err)
	}
}

// requestIDMiddleware assigns every request an identifier, preferring one
// the client supplied in the configured header.
func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(s.config.RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(s.config.RequestIDHeader, id)
		ctx := context.WithValue(r.Context(), requestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// recoverMiddleware converts handler panics into 500 responses so one bad
// action cannot take the server down.
func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			s.logger.Error("handler panicked", "path", r.URL.Path, "panic", rec)
			s.fail(w, r, http.StatusInternalServerError, fmt.Errorf("internal error: %v", rec))
		}()
		next.ServeHTTP(w, r)
	})
}

// corsMiddleware answers cross-origin requests per the CORS configuration
// and short-circuits OPTIONS preflights.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	cfg := s.config.CORS
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		allowed := false
		for _, candidate := range cfg.AllowedOrigins {
			if candidate == "*" || candidate == origin {
				allowed = true
				break
			}
		}
		if allowed && origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
		}

		if len(cfg.AllowedMethods) > 0 {
			w.Header().Set("Access-Control-Allow-Methods", strings.Join(cfg.AllowedMethods, ", "))
		}
		if len(cfg.AllowedHeaders) > 0 {
			w.Header().Set("Access-Control-Allow-Headers", strings.Join(cfg.AllowedHeaders, ", "))
		}
		if cfg.AllowCredentials {
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		}
		if cfg.MaxAge > 0 {
			w.Header().Set("Access-Control-Max-Age", strconv.Itoa(cfg.MaxAge))
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// hookMiddleware triggers the request lifecycle events around the handler.
// A beforeRequest handler that sets Handled answers the request itself,
// taking the status code from the event data.
func (s *Server) hookMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data := map[string]any{
			"method":    r.Method,
			"path":      r.URL.Path,
			"requestID": RequestID(r.Context()),
		}

		before := &arbor.Event{Data: data}
		if err := s.Trigger(r.Context(), EventBeforeRequest, before); err != nil {
			s.fail(w, r, http.StatusInternalServerError, err)
			return
		}
		if before.Handled {
			status := http.StatusNoContent
			if code, ok := before.Data["status"].(int); ok {
				status = code
			}
			w.WriteHeader(status)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		after := &arbor.Event{Data: map[string]any{
			"method":    r.Method,
			"path":      r.URL.Path,
			"requestID": RequestID(r.Context()),
			"status":    rec.status,
		}}
		if err := s.Trigger(r.Context(), EventAfterRequest, after); err != nil {
			s.logger.Error("request hook failed", "event", EventAfterRequest, "error", err)
		}
	})
}

// emitEvent forwards a lifecycle event to the application's observers.
func (s *Server) emitEvent(ctx context.Context, eventType string, data map[string]any) {
	if s.app == nil {
		return
	}
	event := arbor.NewCloudEvent(eventType, "web-server", data, nil)
	if err := s.app.NotifyObservers(ctx, event); err != nil {
		s.logger.Debug("emitting web event", "eventType", eventType, "error", err)
	}
}

// statusRecorder captures the status code downstream handlers write so the
// afterRequest hook can report it.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
