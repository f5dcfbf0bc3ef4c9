package arbor

import (
	"context"
	"fmt"
)

// Action lifecycle event names, triggered on controllers and modules around
// action execution.
const (
	EventBeforeAction = "beforeAction"
	EventAfterAction  = "afterAction"
)

// Controller is what route resolution produces: a unit owning a set of
// actions under a module. Concrete controllers usually embed BaseController
// and register action functions; anything implementing the interface works.
type Controller interface {
	// ID returns the controller ID in its module, e.g. "site".
	ID() string

	// Module returns the module the controller belongs to.
	Module() *Module

	// RunAction executes the action named by actionID with the given
	// parameters. An empty actionID runs the controller's default action.
	RunAction(ctx context.Context, actionID string, params map[string]any) (any, error)
}

// ActionFunc is one controller action. params carry the request or caller
// parameters; the returned value is the action result.
type ActionFunc func(ctx context.Context, params map[string]any) (any, error)

// BaseController is the ready-made Controller core: a component with an
// action table and before/after action events. The "beforeAction" event can
// set Handled to skip execution, in which case the event's "result" data
// entry is returned; "afterAction" sees the result under the same key and
// may replace it.
type BaseController struct {
	Component

	id            string
	module        *Module
	defaultAction string
	actions       map[string]ActionFunc
}

// NewBaseController creates a controller under module with the given
// configuration bag. The default action is "index" unless the bag carries a
// "defaultAction" entry.
func NewBaseController(id string, module *Module, props map[string]any) *BaseController {
	c := &BaseController{}
	c.Init(id, module, props)
	return c
}

// Init wires the controller core. Types embedding BaseController call it
// from their constructors before registering actions.
func (c *BaseController) Init(id string, module *Module, props map[string]any) {
	c.id = id
	c.module = module
	c.defaultAction = "index"
	c.actions = make(map[string]ActionFunc)
	if da, ok := props["defaultAction"].(string); ok {
		c.defaultAction = da
		filtered := make(map[string]any, len(props)-1)
		for k, v := range props {
			if k != "defaultAction" {
				filtered[k] = v
			}
		}
		props = filtered
	}
	c.initProperties(props)
}

// ID returns the controller ID in its module.
func (c *BaseController) ID() string { return c.id }

// Module returns the owning module.
func (c *BaseController) Module() *Module { return c.module }

// UniqueID returns the controller ID prefixed by its module's unique ID.
func (c *BaseController) UniqueID() string {
	if c.module == nil || c.module.UniqueID() == "" {
		return c.id
	}
	return c.module.UniqueID() + "/" + c.id
}

// DefaultAction returns the action run for an empty action ID.
func (c *BaseController) DefaultAction() string { return c.defaultAction }

// RegisterAction adds an action under id, replacing an earlier one.
func (c *BaseController) RegisterAction(id string, fn ActionFunc) {
	c.actions[id] = fn
}

// HasAction reports whether id names a registered action.
func (c *BaseController) HasAction(id string) bool {
	if id == "" {
		id = c.defaultAction
	}
	_, ok := c.actions[id]
	return ok
}

// RunAction executes an action, firing "beforeAction" and "afterAction"
// events around it. An unknown action ID fails with ErrInvalidRoute naming
// the fully qualified controller/action pair.
func (c *BaseController) RunAction(ctx context.Context, actionID string, params map[string]any) (any, error) {
	if actionID == "" {
		actionID = c.defaultAction
	}
	fn, ok := c.actions[actionID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRoute, c.UniqueID()+"/"+actionID)
	}

	before := &Event{Sender: c, Data: map[string]any{"action": actionID, "params": params}}
	if err := c.Trigger(ctx, EventBeforeAction, before); err != nil {
		return nil, err
	}
	if before.Handled {
		return before.Data["result"], nil
	}

	result, err := fn(ctx, params)
	if err != nil {
		return nil, err
	}

	after := &Event{Sender: c, Data: map[string]any{"action": actionID, "result": result}}
	if err := c.Trigger(ctx, EventAfterAction, after); err != nil {
		return nil, err
	}
	return after.Data["result"], nil
}
