package renderers

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"

	"github.com/GoCodeAlone/pageview/builder"
	"github.com/GoCodeAlone/pageview/model"
	"github.com/GoCodeAlone/pageview/render"
)

// ChartData is the payload of a chart api.
type ChartData struct {
	Dimensions  []string         `json:"dimensions"`
	Source      []map[string]any `json:"source"`
	CategoryKey string           `json:"category_key,omitempty"`
}

// ChartOption assembles an echarts option from the static option of the view
// and the fetched data.
//
// With a category key every source row becomes a series named by its category
// value and category axes list the dimensions. With a series template every
// row becomes one series. Otherwise the rows form a dataset whose first row is
// the dimension list. Missing values count as 0.
func ChartOption(base map[string]any, serie map[string]any, d ChartData) map[string]any {
	option := cloneDeep(base)
	row := func(src map[string]any) []any {
		out := make([]any, len(d.Dimensions))
		for i, dim := range d.Dimensions {
			v := src[dim]
			if v == nil || v == "" || v == false {
				v = 0
			}
			out[i] = v
		}
		return out
	}

	switch {
	case d.CategoryKey != "":
		series := []any{}
		for _, src := range d.Source {
			if serie != nil {
				s := maps.Clone(serie)
				s["name"] = src[d.CategoryKey]
				s["data"] = row(src)
				series = append(series, s)
			}
		}
		option["series"] = series
		for _, axis := range []string{"xAxis", "yAxis"} {
			if ax, ok := option[axis].(map[string]any); ok && ax["type"] == "category" {
				ax["data"] = d.Dimensions
			}
		}
	case serie != nil:
		series, _ := option["series"].([]any)
		for _, src := range d.Source {
			s := maps.Clone(serie)
			s["data"] = row(src)
			series = append(series, s)
		}
		option["series"] = series
	default:
		dims := make([]any, len(d.Dimensions))
		for i, dim := range d.Dimensions {
			dims[i] = dim
		}
		source := []any{dims}
		for _, src := range d.Source {
			source = append(source, row(src))
		}
		option["dataset"] = []any{map[string]any{"source": source}}
	}
	return option
}

// Chart renders a chart container carrying its echarts option as JSON in
// data-option. With an api the option is rebuilt from the fetched data and
// kept in view state "<bucket>#option".
func Chart(caps *builder.Capabilities, p builder.Props) *render.Node {
	vo := p.VO
	bucket := bucketID(caps, p)
	base, _ := vo["option"].(map[string]any)
	option := cloneDeep(base)
	loading := false

	if api := vo.String("api"); api != "" {
		key := bucket + "#option"
		apiURL := caps.Engine.Evaluate(api, caps.URLVars)
		ran := caps.FetchOnce(key, fmt.Sprintf("%s|%d", apiURL, caps.Store.Effect(bucket)), func(ctx context.Context) error {
			if caps.Client == nil {
				return fmt.Errorf("no backend client for %s", apiURL)
			}
			res, err := caps.Client.Get(ctx, apiURL, nil)
			if err != nil {
				return err
			}
			var d ChartData
			if err := remarshal(res, &d); err != nil {
				return fmt.Errorf("decode chart data: %w", err)
			}
			caps.Store.SetViewState(key, ChartOption(base, vo.Child("serie"), d))
			return nil
		})
		if opt, ok := caps.Store.ViewState(key).(map[string]any); ok {
			option = opt
		} else {
			loading = ran
		}
	}

	raw, err := json.Marshal(option)
	if err != nil {
		caps.Log().Warn("chart option not serialisable", "view", bucket, "error", err)
		raw = []byte("{}")
	}
	n := render.Element("div").Class("pv-chart", vo.ClassName()).Set("data-option", string(raw))
	if loading {
		n.Set("data-loading", "true")
	}
	return n
}

func remarshal(in, out any) error {
	raw, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

// cloneDeep copies nested maps and slices so option assembly never mutates
// the page model.
func cloneDeep(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneDeep(t)
	case model.ViewObject:
		return cloneDeep(t)
	case []any:
		out := make([]any, len(t))
		for i, x := range t {
			out[i] = cloneValue(x)
		}
		return out
	}
	return v
}
