package source

import (
	"context"
	"fmt"
	"net/url"

	"github.com/GoCodeAlone/pageview/model"
)

// JSONGetter fetches a plain JSON document; *client.Client implements it.
type JSONGetter interface {
	GetJSON(ctx context.Context, url string, params map[string]any, out any) error
}

// HTTPSource loads page models from the backend.
type HTTPSource struct {
	getter JSONGetter
}

// NewHTTPSource creates an HTTPSource that fetches through getter.
func NewHTTPSource(getter JSONGetter) *HTTPSource {
	return &HTTPSource{getter: getter}
}

// Load fetches url with the request query and decodes the page model.
func (s *HTTPSource) Load(ctx context.Context, url string, query url.Values) (*model.PageModel, error) {
	var pm model.PageModel
	if err := s.getter.GetJSON(ctx, url, queryParams(query), &pm); err != nil {
		return nil, fmt.Errorf("http source: load %s: %w", url, err)
	}
	return &pm, nil
}

// Name returns a human-readable identifier for this source.
func (s *HTTPSource) Name() string { return "http" }

func queryParams(q url.Values) map[string]any {
	if len(q) == 0 {
		return nil
	}
	out := make(map[string]any, len(q))
	for k, vs := range q {
		if len(vs) == 1 {
			out[k] = vs[0]
			continue
		}
		items := make([]any, len(vs))
		for i, v := range vs {
			items[i] = v
		}
		out[k] = items
	}
	return out
}
