package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arborframe/arbor"
)

// echoController backs the routes the server tests run against.
type echoController struct {
	arbor.BaseController
}

func newEchoController(args []any, props map[string]any) (*echoController, error) {
	id, _ := args[0].(string)
	var module *arbor.Module
	if len(args) > 1 {
		module, _ = args[1].(*arbor.Module)
	}
	c := &echoController{}
	c.Init(id, module, props)
	c.RegisterAction("index", func(ctx context.Context, params map[string]any) (any, error) {
		return "echo index", nil
	})
	c.RegisterAction("show", func(ctx context.Context, params map[string]any) (any, error) {
		return params, nil
	})
	c.RegisterAction("reqid", func(ctx context.Context, params map[string]any) (any, error) {
		return RequestID(ctx), nil
	})
	c.RegisterAction("boom", func(ctx context.Context, params map[string]any) (any, error) {
		return nil, errors.New("exploded")
	})
	c.RegisterAction("panic", func(ctx context.Context, params map[string]any) (any, error) {
		panic("kaput")
	})
	return c, nil
}

func newWebApp(t *testing.T) *arbor.Application {
	t.Helper()
	reg := arbor.NewTypeRegistry()
	require.NoError(t, arbor.RegisterType(reg, "app/controllers/EchoController", newEchoController))

	app, err := arbor.NewApplication(map[string]any{
		"id":       "web-test",
		"basePath": t.TempDir(),
	}, arbor.WithTypeRegistry(reg))
	require.NoError(t, err)
	return app
}

func newMountedServer(t *testing.T, cfg *Config) *Server {
	t.Helper()
	s, err := NewServer(newWebApp(t), cfg)
	require.NoError(t, err)
	require.NoError(t, s.MountActions("/"))
	return s
}

func perform(t *testing.T, s *Server, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	s.Router().ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &payload))
	return payload
}

func TestServerConfigDefaults(t *testing.T) {
	s, err := NewServer(nil, nil)
	require.NoError(t, err)

	cfg := s.Config()
	assert.Equal(t, "0.0.0.0", cfg.Host)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "X-Request-Id", cfg.RequestIDHeader)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, []string{"*"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, 300, cfg.CORS.MaxAge)
	assert.Equal(t, "0.0.0.0:8080", cfg.Addr())
}

func TestServerConfigRejectsBadPort(t *testing.T) {
	_, err := NewServer(nil, &Config{Port: 70000})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidPort)
}

func TestServerMountActionsRequiresApplication(t *testing.T) {
	s, err := NewServer(nil, nil)
	require.NoError(t, err)
	assert.ErrorIs(t, s.MountActions("/"), ErrNoApplication)
}

func TestServerRunsActionsOverHTTP(t *testing.T) {
	s := newMountedServer(t, nil)

	rr := perform(t, s, httptest.NewRequest(http.MethodGet, "/echo/index", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "echo index", decodeBody(t, rr)["result"])
}

func TestServerActionParamsFromQueryAndBody(t *testing.T) {
	s := newMountedServer(t, nil)

	body := strings.NewReader(`{"name": "x", "id": "9"}`)
	req := httptest.NewRequest(http.MethodPost, "/echo/show?id=7&tags=a&tags=b", body)
	req.Header.Set("Content-Type", "application/json")

	rr := perform(t, s, req)
	require.Equal(t, http.StatusOK, rr.Code)

	result, ok := decodeBody(t, rr)["result"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "9", result["id"], "body params win over query params")
	assert.Equal(t, "x", result["name"])
	assert.Equal(t, []any{"a", "b"}, result["tags"])
}

func TestServerRejectsMalformedBody(t *testing.T) {
	s := newMountedServer(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/echo/show", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")

	rr := perform(t, s, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, decodeBody(t, rr)["error"], "decoding request body")
}

func TestServerUnknownRouteIs404(t *testing.T) {
	s := newMountedServer(t, nil)

	rr := perform(t, s, httptest.NewRequest(http.MethodGet, "/no/such/route", nil))
	require.Equal(t, http.StatusNotFound, rr.Code)
	assert.NotEmpty(t, decodeBody(t, rr)["error"])
}

func TestServerActionErrorIs500(t *testing.T) {
	s := newMountedServer(t, nil)

	rr := perform(t, s, httptest.NewRequest(http.MethodGet, "/echo/boom", nil))
	require.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Contains(t, decodeBody(t, rr)["error"], "exploded")
}

func TestServerRecoversFromPanics(t *testing.T) {
	s := newMountedServer(t, nil)

	rr := perform(t, s, httptest.NewRequest(http.MethodGet, "/echo/panic", nil))
	require.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Contains(t, decodeBody(t, rr)["error"], "internal error")
}

func TestServerAssignsRequestIDs(t *testing.T) {
	s := newMountedServer(t, nil)

	rr := perform(t, s, httptest.NewRequest(http.MethodGet, "/echo/reqid", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	generated := rr.Header().Get("X-Request-Id")
	assert.NotEmpty(t, generated)
	assert.Equal(t, generated, decodeBody(t, rr)["result"], "request ID reaches actions through the context")

	req := httptest.NewRequest(http.MethodGet, "/echo/reqid", nil)
	req.Header.Set("X-Request-Id", "req-abc-123")
	rr = perform(t, s, req)
	assert.Equal(t, "req-abc-123", rr.Header().Get("X-Request-Id"))
	assert.Equal(t, "req-abc-123", decodeBody(t, rr)["result"])
}

func TestServerCORSHeaders(t *testing.T) {
	s := newMountedServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/echo/index", nil)
	req.Header.Set("Origin", "http://example.com")
	rr := perform(t, s, req)
	assert.Equal(t, "http://example.com", rr.Header().Get("Access-Control-Allow-Origin"))

	preflight := httptest.NewRequest(http.MethodOptions, "/echo/index", nil)
	preflight.Header.Set("Origin", "http://example.com")
	rr = perform(t, s, preflight)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Contains(t, rr.Header().Get("Access-Control-Allow-Methods"), "GET")
	assert.Equal(t, "300", rr.Header().Get("Access-Control-Max-Age"))
}

func TestServerCORSRestrictsOrigins(t *testing.T) {
	cfg := &Config{CORS: CORSConfig{AllowedOrigins: []string{"https://ok.example"}}}
	s := newMountedServer(t, cfg)

	req := httptest.NewRequest(http.MethodGet, "/echo/index", nil)
	req.Header.Set("Origin", "https://bad.example")
	rr := perform(t, s, req)
	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/echo/index", nil)
	req.Header.Set("Origin", "https://ok.example")
	rr = perform(t, s, req)
	assert.Equal(t, "https://ok.example", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestServerBeforeRequestShortCircuits(t *testing.T) {
	s := newMountedServer(t, nil)
	s.On(EventBeforeRequest, func(ctx context.Context, event *arbor.Event) error {
		event.Handled = true
		event.Data["status"] = http.StatusTeapot
		return nil
	}, nil)

	rr := perform(t, s, httptest.NewRequest(http.MethodGet, "/echo/index", nil))
	assert.Equal(t, http.StatusTeapot, rr.Code)
	assert.Empty(t, rr.Body.String())
}

func TestServerBeforeHandlerOverridesResult(t *testing.T) {
	s := newMountedServer(t, nil)
	s.On(EventBeforeHandler, func(ctx context.Context, event *arbor.Event) error {
		event.Handled = true
		event.Data["result"] = "from hook"
		return nil
	}, nil)

	rr := perform(t, s, httptest.NewRequest(http.MethodGet, "/echo/index", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "from hook", decodeBody(t, rr)["result"])
}

func TestServerAfterRequestSeesStatus(t *testing.T) {
	s := newMountedServer(t, nil)

	var mu sync.Mutex
	var statuses []int
	s.On(EventAfterRequest, func(ctx context.Context, event *arbor.Event) error {
		mu.Lock()
		defer mu.Unlock()
		if code, ok := event.Data["status"].(int); ok {
			statuses = append(statuses, code)
		}
		return nil
	}, nil)

	perform(t, s, httptest.NewRequest(http.MethodGet, "/echo/index", nil))
	perform(t, s, httptest.NewRequest(http.MethodGet, "/no/such/route", nil))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{http.StatusOK, http.StatusNotFound}, statuses)
}

func TestServerErrorHookObservesFailures(t *testing.T) {
	s := newMountedServer(t, nil)

	var mu sync.Mutex
	var seen []string
	s.On(EventRequestError, func(ctx context.Context, event *arbor.Event) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, event.Data["error"].(string))
		return nil
	}, nil)

	perform(t, s, httptest.NewRequest(http.MethodGet, "/echo/boom", nil))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 1)
	assert.Contains(t, seen[0], "exploded")
}

func TestServerListenServesAndStops(t *testing.T) {
	s := newMountedServer(t, &Config{Host: "127.0.0.1"})

	errc := s.Listen("127.0.0.1", 0)
	addr := s.Addr()
	require.NotEmpty(t, addr)

	resp, err := http.Get("http://" + addr + "/echo/index")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	assert.ErrorIs(t, <-s.Listen("127.0.0.1", 0), ErrAlreadyListening)

	require.NoError(t, s.Stop(context.Background()))
	assert.Empty(t, s.Addr())

	select {
	case err := <-errc:
		assert.NoError(t, err, "graceful stop delivers nil on the listen channel")
	case <-time.After(3 * time.Second):
		t.Fatal("listen channel not released after Stop")
	}
}

func TestServerMountsUnderBasePath(t *testing.T) {
	s := newMountedServer(t, &Config{Host: "127.0.0.1", BasePath: "/api"})

	s.Listen("127.0.0.1", 0)
	defer s.Stop(context.Background())
	addr := s.Addr()

	resp, err := http.Get("http://" + addr + "/api/echo/index")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get("http://" + addr + "/echo/index")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServerRunsAsApplicationComponent(t *testing.T) {
	app := newWebApp(t)
	s, err := NewServer(app, &Config{Host: "127.0.0.1"})
	require.NoError(t, err)
	// Validation fills a zero port with the default, so the ephemeral port
	// is set after construction.
	s.Config().Port = 0
	require.NoError(t, s.MountActions("/"))
	require.NoError(t, app.Set("web", s))

	require.NoError(t, app.Start())

	addr := s.Addr()
	require.NotEmpty(t, addr)
	resp, err := http.Get("http://" + addr + "/echo/index")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, app.Stop())
	assert.Empty(t, s.Addr())
}
