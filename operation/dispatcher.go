// Package operation performs the declarative operations of a page model:
// showing views, calling backend APIs and propagating their effects.
package operation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net/http"

	"github.com/GoCodeAlone/pageview/binding"
	"github.com/GoCodeAlone/pageview/client"
	"github.com/GoCodeAlone/pageview/metrics"
	"github.com/GoCodeAlone/pageview/model"
	"github.com/GoCodeAlone/pageview/notify"
)

var (
	// ErrNoAPI is returned for an api operation without an api template.
	// The user has already been notified.
	ErrNoAPI = errors.New("operation: api action without api")
	// ErrNotImplemented is returned for action types whose behaviour is not
	// defined yet (download, export, import, batch, confirm).
	ErrNotImplemented = errors.New("operation: action type not implemented")
)

// User facing notice texts.
const (
	MsgMissingAPI = "Please configure the API endpoint"
	MsgProcessing = "Processing..."
	MsgSucceeded  = "Operation succeeded"
	MsgPerforming = "Performing operation"
)

// Host is the part of a page host an operation can drive.
type Host interface {
	ShowView(name string, record map[string]any)
	Effects(ids []string)
}

// Doer performs backend calls; *client.Client implements it.
type Doer interface {
	Do(ctx context.Context, method, url string, params map[string]any, body any) (any, error)
}

// Request is one invocation of an operation.
type Request struct {
	Operation *model.Operation
	Host      Host
	Notifier  notify.Notifier
	Record    map[string]any
	URLVars   map[string]any
}

// Result of Perform. OK is false when an API call failed; the failure has
// already been reported through the notifier and is kept in Cause so callers
// can classify it (for example to redirect on 401).
type Result struct {
	Payload any
	OK      bool
	Cause   error
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the dispatcher logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// WithMetrics counts operations per action type and outcome.
func WithMetrics(m *metrics.Collector) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithEngine sets the template engine used to build API URLs.
func WithEngine(e *binding.Engine) Option {
	return func(d *Dispatcher) { d.engine = e }
}

// Dispatcher performs operations. It is stateless between calls.
type Dispatcher struct {
	doer    Doer
	engine  *binding.Engine
	logger  *slog.Logger
	metrics *metrics.Collector
}

// NewDispatcher creates a Dispatcher that calls the backend through doer.
func NewDispatcher(doer Doer, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		doer:   doer,
		engine: binding.NewEngine(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Perform runs one operation. Every invocation is exactly one attempt.
func (d *Dispatcher) Perform(ctx context.Context, req Request) (Result, error) {
	op := req.Operation
	if op == nil {
		return Result{}, errors.New("operation: nil operation")
	}
	n := req.Notifier
	if n == nil {
		n = discard{}
	}

	switch op.ActionType {
	case model.ActionView:
		if op.View != "" && req.Host != nil {
			req.Host.ShowView(op.View, req.Record)
		}
		d.metrics.RecordOperation(op.ActionType, "success")
		return Result{OK: true}, nil

	case model.ActionAPI:
		return d.performAPI(ctx, req, n)

	case model.ActionDownload, model.ActionExport, model.ActionImport, model.ActionBatch, model.ActionConfirm:
		d.logger.Info("operation action type not implemented", "operation", op.ID, "actionType", op.ActionType)
		d.metrics.RecordOperation(op.ActionType, "not_implemented")
		return Result{}, fmt.Errorf("%w: %s", ErrNotImplemented, op.ActionType)
	}

	d.logger.Info("unhandled operation action type", "operation", op.ID, "actionType", op.ActionType)
	n.Info(MsgPerforming + ": " + op.Label)
	d.metrics.RecordOperation(op.ActionType, "notified")
	return Result{OK: true}, nil
}

func (d *Dispatcher) performAPI(ctx context.Context, req Request, n notify.Notifier) (Result, error) {
	op := req.Operation
	if op.API == "" {
		n.Error(MsgMissingAPI)
		d.metrics.RecordOperation(op.ActionType, "invalid")
		return Result{}, ErrNoAPI
	}

	// url variables override record fields of the same name
	vars := make(map[string]any, len(req.Record)+len(req.URLVars))
	maps.Copy(vars, req.Record)
	maps.Copy(vars, req.URLVars)
	target := d.engine.Evaluate(op.API, vars)

	method := op.Method
	if method == "" {
		method = http.MethodGet
	}

	var body any
	if req.Record != nil {
		body = req.Record
	}

	loading := n.Loading(MsgProcessing)
	defer n.Dismiss(loading)

	payload, err := d.doer.Do(ctx, method, target, nil, body)
	if err != nil {
		d.logger.Warn("operation api call failed", "operation", op.ID, "method", method, "url", target, "error", err)
		n.Error(client.UserMessage(err))
		d.metrics.RecordOperation(op.ActionType, "error")
		return Result{Cause: err}, nil
	}

	if ids := op.EffectIDs(); len(ids) > 0 && req.Host != nil {
		req.Host.Effects(ids)
	}
	n.Success(MsgSucceeded)
	d.metrics.RecordOperation(op.ActionType, "success")
	return Result{Payload: payload, OK: true}, nil
}

// Lookup resolves operation id from registry with a call-site override merged
// on top; override fields win.
func Lookup(registry map[string]*model.Operation, id string, override map[string]any) (*model.Operation, error) {
	return model.LookupOperation(registry, id, override)
}

type discard struct{}

func (discard) Loading(string) string { return "" }
func (discard) Dismiss(string)        {}
func (discard) Success(string)        {}
func (discard) Error(string)          {}
func (discard) Info(string)           {}
