package action

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"

	"github.com/google/uuid"

	"github.com/entrhq/testpilot/pkg/logging"
	"github.com/entrhq/testpilot/pkg/metrics"
	"github.com/entrhq/testpilot/pkg/progress"
	"github.com/entrhq/testpilot/pkg/session"
	"github.com/entrhq/testpilot/pkg/types"
)

var logger = logging.MustLogger("action")

type entry struct {
	newParams func() Params
	handle    Handler
}

// Dispatcher runs actions against sessions in a Store.
//
// Dispatch does not lock sessions. Callers serialize requests for the same
// session id (see session.Locks).
type Dispatcher struct {
	store    *session.Store
	handlers map[string]entry
	metrics  *metrics.Metrics
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithMetrics records every dispatched action.
func WithMetrics(m *metrics.Metrics) DispatcherOption {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

// NewDispatcher creates a dispatcher with no handlers.
func NewDispatcher(store *session.Store, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		store:    store,
		handlers: make(map[string]entry),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Register adds or replaces the handler for name. newParams returns an
// empty parameter struct to decode raw parameters into.
func (d *Dispatcher) Register(name string, newParams func() Params, h Handler) {
	if newParams == nil {
		newParams = func() Params { return &NoParams{} }
	}
	d.handlers[name] = entry{newParams: newParams, handle: h}
}

// Names returns the registered action names in sorted order.
func (d *Dispatcher) Names() []string {
	names := make([]string, 0, len(d.handlers))
	for name := range d.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Dispatch runs actions in order against the session sessionID and returns
// exactly one result per action. A failing action never stops the ones after
// it. Progress is reported to r, which may be nil. An empty sessionID runs
// every action against one new session.
func (d *Dispatcher) Dispatch(ctx context.Context, sessionID string, actions []Action, r *progress.Reporter) []types.ActionResult {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	results := make([]types.ActionResult, 0, len(actions))
	if r != nil {
		ctx = progress.WithReporter(ctx, r)
	}

	for i, a := range actions {
		step := i + 1
		r.Report(ctx, types.EventTypeActionStart, types.ActionStep(step, "start"), map[string]interface{}{
			"action":     a.Name,
			"parameters": a.Parameters(),
			"index":      step,
			"total":      len(actions),
		}, nil)

		res := d.dispatchOne(ctx, sessionID, a)
		d.metrics.ObserveAction(a.Name, string(res.Status))
		results = append(results, res)

		r.Report(ctx, types.EventTypeActionComplete, types.ActionStep(step, "complete"), res, nil)
	}
	return results
}

func (d *Dispatcher) dispatchOne(ctx context.Context, sessionID string, a Action) types.ActionResult {
	e, ok := d.handlers[a.Name]
	if !ok {
		logger.Warnf("unknown action %q", a.Name)
		return types.NewActionResult(a.Name, types.StatusUnknownAction).
			With("message", fmt.Sprintf("Unknown action: %s", a.Name))
	}

	params := a.Params
	if params == nil {
		params = e.newParams()
		if err := decodeParams(a.Name, a.raw, params); err != nil {
			return types.NewErrorResult(a.Name, err)
		}
	}
	if err := params.Validate(); err != nil {
		var verr *ValidationError
		if !errors.As(err, &verr) {
			err = &ValidationError{Action: a.Name, Err: err}
		}
		logger.Infof("rejected %s: %v", a.Name, err)
		return types.NewErrorResult(a.Name, err)
	}

	current := d.store.GetOrCreate(sessionID)
	next, res, err := d.call(ctx, e.handle, current.Clone(), params, a.Name)
	if res.Action == "" {
		res.Action = a.Name
	}
	if err != nil {
		logger.Warnf("action %s failed: %v", a.Name, err)
		return types.NewErrorResult(a.Name, err)
	}

	if next != nil {
		next.LastAction = a.Name
		next.AddTrace(a.Name, map[string]interface{}{"status": string(res.Status)})
		next.Touch()
		d.store.Commit(next)
	}
	return res
}

// call runs h, converting a panic into an error.
func (d *Dispatcher) call(ctx context.Context, h Handler, s *session.Session, p Params, name string) (next *session.Session, res types.ActionResult, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Errorf("action %s panicked: %v\n%s", name, rec, debug.Stack())
			next = nil
			res = types.ActionResult{}
			err = fmt.Errorf("action %s panicked: %v", name, rec)
		}
	}()
	return h(ctx, s, p)
}
