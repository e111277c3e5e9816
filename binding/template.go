// Package binding resolves ${...} placeholders in view-object attributes and
// API templates against the current record, page data and URL variables.
package binding

import (
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/builtin"
	"github.com/expr-lang/expr/vm"

	"github.com/GoCodeAlone/pageview/model"
)

// DatePrefix marks a relative-date placeholder such as ${date-(DAY-1)-YYYY-MM-DD}.
const DatePrefix = "date-"

var placeholderRe = regexp.MustCompile(`\$\{(.*?)\}`)

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the time source used by date placeholders.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLogger sets the logger used to report swallowed evaluation errors.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// Engine evaluates ${...} templates. Evaluation never fails: placeholders that
// cannot be resolved are replaced by the empty string.
type Engine struct {
	now    func() time.Time
	logger *slog.Logger

	// compiled expression programs keyed by source text and shadowed names
	programs sync.Map
}

// NewEngine creates an Engine.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

var defaultEngine = NewEngine()

// Evaluate resolves template with the package default engine.
func Evaluate(template string, params map[string]any) string {
	return defaultEngine.Evaluate(template, params)
}

// TransformObject rewrites bound attributes with the package default engine.
func TransformObject(obj any, params map[string]any) any {
	return defaultEngine.TransformObject(obj, params)
}

// Evaluate substitutes every ${key} in template. Resolution order per key:
// a literal entry of params, a date- expression, then an expression evaluated
// with params as its variable scope.
func (e *Engine) Evaluate(template string, params map[string]any) string {
	if !strings.Contains(template, "${") {
		return template
	}
	if params == nil {
		params = map[string]any{}
	}
	return placeholderRe.ReplaceAllStringFunc(template, func(m string) string {
		key := m[2 : len(m)-1]
		if v, ok := params[key]; ok {
			return model.Stringify(v)
		}
		if strings.HasPrefix(key, DatePrefix) {
			return CalcDate(strings.TrimPrefix(key, DatePrefix), e.now())
		}
		out, err := e.eval(key, params)
		if err != nil {
			e.logger.Debug("template placeholder unresolved", "expr", key, "error", err)
			return ""
		}
		return out
	})
}

func (e *Engine) eval(code string, params map[string]any) (string, error) {
	prog, err := e.program(code, shadowed(params))
	if err != nil {
		return "", err
	}
	out, err := expr.Run(prog, params)
	if err != nil {
		return "", err
	}
	if out == nil {
		return "", fmt.Errorf("expression %q evaluated to nil", code)
	}
	return model.Stringify(out), nil
}

// program compiles code with the builtins named in shadow disabled, so that
// params of the same name resolve to their values.
func (e *Engine) program(code string, shadow []string) (*vm.Program, error) {
	key := code
	if len(shadow) > 0 {
		key += "\x00" + strings.Join(shadow, ",")
	}
	if p, ok := e.programs.Load(key); ok {
		return p.(*vm.Program), nil
	}
	opts := make([]expr.Option, 0, len(shadow)+1)
	if !slices.Contains(shadow, formatName) {
		opts = append(opts, expr.Function(formatName, formatFunc))
	}
	for _, name := range shadow {
		if name != formatName {
			opts = append(opts, expr.DisableBuiltin(name))
		}
	}
	p, err := expr.Compile(code, opts...)
	if err != nil {
		return nil, err
	}
	e.programs.Store(key, p)
	return p, nil
}

const formatName = "format"

// shadowed returns the sorted param names that collide with expression
// functions.
func shadowed(params map[string]any) []string {
	var names []string
	for name := range params {
		if _, ok := builtin.Index[name]; ok || name == formatName {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names
}

func formatFunc(params ...any) (any, error) {
	if len(params) != 2 {
		return nil, fmt.Errorf("format expects 2 arguments, got %d", len(params))
	}
	layout, ok := params[1].(string)
	if !ok {
		return nil, fmt.Errorf("format: layout must be a string")
	}
	return ExcelFormat(params[0], layout), nil
}

// TransformObject rewrites obj against params. Strings are evaluated as
// templates. For objects, keys carrying the bind prefix are evaluated and
// stored under the un-prefixed key; other keys are copied unchanged. Any
// other value is returned as is.
func (e *Engine) TransformObject(obj any, params map[string]any) any {
	switch v := obj.(type) {
	case nil:
		return nil
	case string:
		return e.Evaluate(v, params)
	case model.ViewObject:
		return model.ViewObject(e.transformMap(v, params))
	case map[string]any:
		return e.transformMap(v, params)
	}
	return obj
}

// TransformView is TransformObject specialised to view objects.
func (e *Engine) TransformView(vo model.ViewObject, params map[string]any) model.ViewObject {
	if vo == nil {
		return nil
	}
	return model.ViewObject(e.transformMap(vo, params))
}

func (e *Engine) transformMap(m map[string]any, params map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if name, ok := strings.CutPrefix(k, model.BindPrefix); ok {
			out[name] = e.Evaluate(model.Stringify(v), params)
			continue
		}
		if _, bound := m[model.BindPrefix+k]; bound {
			continue
		}
		out[k] = v
	}
	return out
}
