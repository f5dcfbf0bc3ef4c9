package arbor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCounterController(id string, props map[string]any) (*BaseController, *int) {
	calls := 0
	c := NewBaseController(id, nil, props)
	c.RegisterAction("index", func(ctx context.Context, params map[string]any) (any, error) {
		calls++
		return "index ran", nil
	})
	c.RegisterAction("show", func(ctx context.Context, params map[string]any) (any, error) {
		calls++
		return params["id"], nil
	})
	return c, &calls
}

func TestControllerRunsDefaultActionForEmptyID(t *testing.T) {
	c, calls := newCounterController("site", nil)

	result, err := c.RunAction(context.Background(), "", nil)
	require.NoError(t, err)
	assert.Equal(t, "index ran", result)
	assert.Equal(t, 1, *calls)
}

func TestControllerDefaultActionFromConfig(t *testing.T) {
	c, _ := newCounterController("site", map[string]any{"defaultAction": "show"})
	assert.Equal(t, "show", c.DefaultAction())

	result, err := c.RunAction(context.Background(), "", map[string]any{"id": 7})
	require.NoError(t, err)
	assert.Equal(t, 7, result)
}

func TestControllerActionParamsReachAction(t *testing.T) {
	c, _ := newCounterController("site", nil)

	result, err := c.RunAction(context.Background(), "show", map[string]any{"id": "u-42"})
	require.NoError(t, err)
	assert.Equal(t, "u-42", result)
}

func TestControllerUnknownActionFails(t *testing.T) {
	c, _ := newCounterController("site", nil)

	_, err := c.RunAction(context.Background(), "missing", nil)
	require.ErrorIs(t, err, ErrInvalidRoute)
	assert.Contains(t, err.Error(), "site/missing")
}

func TestControllerHasAction(t *testing.T) {
	c, _ := newCounterController("site", nil)

	assert.True(t, c.HasAction("index"))
	assert.True(t, c.HasAction(""))
	assert.False(t, c.HasAction("missing"))
}

func TestControllerBeforeActionCanSkipExecution(t *testing.T) {
	c, calls := newCounterController("site", nil)
	c.On(EventBeforeAction, func(ctx context.Context, e *Event) error {
		e.Handled = true
		e.Data["result"] = "filtered"
		return nil
	}, nil)

	result, err := c.RunAction(context.Background(), "index", nil)
	require.NoError(t, err)
	assert.Equal(t, "filtered", result)
	assert.Zero(t, *calls)
}

func TestControllerBeforeActionErrorAborts(t *testing.T) {
	c, calls := newCounterController("site", nil)
	c.On(EventBeforeAction, func(ctx context.Context, e *Event) error {
		return errors.New("not allowed")
	}, nil)

	_, err := c.RunAction(context.Background(), "index", nil)
	assert.EqualError(t, err, "not allowed")
	assert.Zero(t, *calls)
}

func TestControllerAfterActionSeesAndReplacesResult(t *testing.T) {
	c, _ := newCounterController("site", nil)
	var seen any
	c.On(EventAfterAction, func(ctx context.Context, e *Event) error {
		seen = e.Data["result"]
		e.Data["result"] = "decorated"
		return nil
	}, nil)

	result, err := c.RunAction(context.Background(), "index", nil)
	require.NoError(t, err)
	assert.Equal(t, "index ran", seen)
	assert.Equal(t, "decorated", result)
}

func TestControllerUniqueIDQualifiedByModule(t *testing.T) {
	app := newRouteApp(t)
	admin, err := app.GetModule("admin", true)
	require.NoError(t, err)

	standalone := NewBaseController("site", nil, nil)
	assert.Equal(t, "site", standalone.UniqueID())

	rooted := NewBaseController("site", &app.Module, nil)
	assert.Equal(t, "site", rooted.UniqueID())

	nested := NewBaseController("users", admin, nil)
	assert.Equal(t, "admin/users", nested.UniqueID())
}

func TestControllerCarriesComponentSurface(t *testing.T) {
	c := NewBaseController("site", nil, map[string]any{"layout": "main", "-locale": "en"})

	layout, err := c.GetProperty("layout")
	require.NoError(t, err)
	assert.Equal(t, "main", layout)
	require.NoError(t, c.SetProperty("layout", "bare"))

	_, err = c.GetProperty("locale")
	require.NoError(t, err)
	assert.ErrorIs(t, c.SetProperty("locale", "de"), ErrInvalidCall)
}
