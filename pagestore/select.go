package pagestore

import (
	"fmt"
	"sync"

	"github.com/itchyny/gojq"
)

// FetchOption configures a single FetchData call.
type FetchOption func(*fetchOptions)

type fetchOptions struct {
	selector  string
	getter    Getter
	transform func(payload any) (any, map[string]any)
}

// WithGetter performs this fetch with g instead of the store getter.
func WithGetter(g Getter) FetchOption {
	return func(o *fetchOptions) { o.getter = g }
}

// WithTransform maps the fetched payload to the bucket value. The view state
// entries fn returns are written together with the bucket, so a superseded
// fetch writes neither.
func WithTransform(fn func(payload any) (value any, viewState map[string]any)) FetchOption {
	return func(o *fetchOptions) { o.transform = fn }
}

// WithSelect narrows the fetched payload with a jq expression before it is
// stored. The first value the expression yields is kept.
func WithSelect(query string) FetchOption {
	return func(o *fetchOptions) { o.selector = query }
}

var selectors sync.Map // jq source -> *gojq.Code

func compileSelector(src string) (*gojq.Code, error) {
	if c, ok := selectors.Load(src); ok {
		return c.(*gojq.Code), nil
	}
	q, err := gojq.Parse(src)
	if err != nil {
		return nil, fmt.Errorf("parse select %q: %w", src, err)
	}
	code, err := gojq.Compile(q)
	if err != nil {
		return nil, fmt.Errorf("compile select %q: %w", src, err)
	}
	selectors.Store(src, code)
	return code, nil
}

func selectPayload(src string, payload any) (any, error) {
	code, err := compileSelector(src)
	if err != nil {
		return nil, err
	}
	iter := code.Run(payload)
	v, ok := iter.Next()
	if !ok {
		return nil, nil
	}
	if err, isErr := v.(error); isErr {
		return nil, fmt.Errorf("select %q: %w", src, err)
	}
	return v, nil
}
