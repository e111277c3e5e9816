package renderers

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/GoCodeAlone/pageview/binding"
	"github.com/GoCodeAlone/pageview/builder"
	"github.com/GoCodeAlone/pageview/model"
	"github.com/GoCodeAlone/pageview/render"
)

// Special column ids of a table body.
const (
	checkColumn = "__check"
	oprColumn   = "opr"
)

// mergeField overlays the view-object attributes of a column or element on
// the table field with the same id.
func mergeField(t *model.DataTable, vo model.ViewObject) model.ViewObject {
	id := vo.ID()
	if id == checkColumn || id == oprColumn {
		return vo.Clone()
	}
	f, ok := t.Field(id)
	if !ok {
		return vo.Clone()
	}
	out := model.ViewObject(f.ToMap())
	for k, v := range vo {
		out[k] = v
	}
	return out
}

// fieldColumns returns all table fields as column objects.
func fieldColumns(t *model.DataTable) []model.ViewObject {
	if t == nil {
		return nil
	}
	out := make([]model.ViewObject, 0, len(t.Fields))
	for _, f := range t.Fields {
		out = append(out, model.ViewObject(f.ToMap()))
	}
	return out
}

// label is the display label of a merged field.
func label(f model.ViewObject) string {
	if l := f.String("label"); l != "" {
		return l
	}
	return f.ID()
}

// loadDict fetches the mapping dictionary of a data table once per deps
// change and keeps it in view state under "<bucket>#dict".
func loadDict(caps *builder.Capabilities, bucket string, t *model.DataTable, params map[string]any, deps string) model.MappingDict {
	if t == nil || t.MappingAPI == "" || caps.Client == nil {
		return nil
	}
	key := bucket + "#dict"
	dictURL := caps.Engine.Evaluate(t.MappingAPI, caps.URLVars)
	caps.FetchOnce(key, dictURL+"|"+deps, func(ctx context.Context) error {
		d, err := caps.Client.Dict(ctx, dictURL, params)
		if err != nil {
			return fmt.Errorf("load mapping dict %s: %w", dictURL, err)
		}
		caps.Store.SetViewState(key, d)
		return nil
	})
	d, _ := caps.Store.ViewState(key).(model.MappingDict)
	return d
}

// cell renders a table value according to the field component.
func cell(val any, f model.ViewObject, dict model.MappingDict) *render.Node {
	s := model.Stringify(val)
	switch f.String("component") {
	case model.ComponentTag:
		if s == "" {
			return nil
		}
		return multiValue(strings.Split(s, ","), nil)
	case model.ComponentSelect:
		if s == "" {
			return span("-")
		}
		d := dict.Lookup(f.String("source"))
		if f.Bool("multiple") {
			return multiValue(strings.Split(s, ","), d)
		}
		return dictValue(s, d)
	case model.ComponentDate:
		if s == "" {
			return span("-")
		}
		layout := f.String("inputFormat")
		if layout == "" {
			layout = "YYYY-MM-DD"
		}
		return span(formatStamp(s, layout))
	}
	if format := f.String("format"); format != "" && val != nil {
		if out := binding.ExcelFormat(val, format); out != "" {
			return span(out)
		}
	}
	return span(s)
}

// formatStamp reformats a yyyyMMddHHmmss stamp; other values pass through.
func formatStamp(s, layout string) string {
	if len(s) != 14 {
		return s
	}
	t, err := time.Parse("20060102150405", s)
	if err != nil {
		return s
	}
	return binding.FormatDate(t, layout)
}

func span(s string) *render.Node {
	return render.Element("span", render.Text(s))
}

func multiValue(vals []string, d *model.Dict) *render.Node {
	out := render.Fragment()
	for _, v := range vals {
		out.Append(render.Element("span", dictValue(strings.TrimSpace(v), d)).Class("mr-1"))
	}
	return out
}

// dictValue renders a dictionary label, as a badge when the item is coloured.
func dictValue(v string, d *model.Dict) *render.Node {
	if d == nil {
		return render.Text(v)
	}
	item, ok := d.Items[v]
	if !ok {
		return render.Text(v)
	}
	text := item.Label
	if text == "" {
		text = v
	}
	if item.Color == "" {
		return render.Text(text)
	}
	style := item.Style
	if style == "" {
		style = "default"
	}
	return render.Element("span", render.Text(text)).
		Class("pv-badge", "pv-badge-"+style).
		Set("style", badgeStyle(item))
}

func badgeStyle(item model.DictItem) string {
	switch item.Style {
	case "outline":
		return "color:" + item.Color + ";border-color:" + item.Color
	case "secondary":
		return "color:" + item.Color + ";background-color:" + lighten(item.Color, 0.7) + ";border-radius:2px"
	}
	return "background-color:" + item.Color + ";color:white"
}

// lighten mixes a #rgb or #rrggbb colour with white.
func lighten(hex string, amount float64) string {
	c := strings.TrimPrefix(hex, "#")
	if len(c) == 3 {
		c = string([]byte{c[0], c[0], c[1], c[1], c[2], c[2]})
	}
	n, err := strconv.ParseUint(c, 16, 32)
	if err != nil || len(c) != 6 {
		return hex
	}
	mix := func(v uint64) uint64 {
		return uint64(float64(v) + (255-float64(v))*amount + 0.5)
	}
	r, g, b := mix(n>>16&0xff), mix(n>>8&0xff), mix(n&0xff)
	return fmt.Sprintf("#%02x%02x%02x", r, g, b)
}

// editElement renders the input of a form field named "f.<id>".
func editElement(data map[string]any, f model.ViewObject, dict model.MappingDict) *render.Node {
	id := f.ID()
	name := valuePrefix + id
	value := model.Stringify(data[id])
	placeholder := label(f)

	var n *render.Node
	switch f.String("component") {
	case model.ComponentSelect:
		d := dict.Lookup(f.String("source")).FilterBy(f.String("selectFilterBy"), data)
		n = selectElement(name, d, value, f.Bool("multiple"))
	case model.ComponentTextarea:
		n = render.Element("textarea", render.Text(value))
	case model.ComponentDate:
		n = input("date", value)
	case model.ComponentNumber:
		n = input("number", value)
	default:
		n = input("text", value)
	}
	n.Set("name", name).Set("id", id).Set("placeholder", placeholder)
	if f.Bool("disabled") {
		n.Set("disabled", "disabled")
	}
	if f.Bool("required") {
		n.Set("required", "required")
	}
	return n.Class("pv-input")
}

func input(typ, value string) *render.Node {
	return render.Element("input").Set("type", typ).Set("value", value)
}

func selectElement(name string, d *model.Dict, value string, multiple bool) *render.Node {
	n := render.Element("select", render.Element("option", render.Text("")).Set("value", ""))
	if multiple {
		n = render.Element("select").Set("multiple", "multiple")
	}
	selected := []string{value}
	if multiple {
		selected = model.SplitList(value)
	}
	if d != nil {
		for _, opt := range d.Options {
			o := render.Element("option", render.Text(opt.Label)).Set("value", opt.Value)
			if slices.Contains(selected, opt.Value) {
				o.Set("selected", "selected")
			}
			n.Append(o)
		}
	}
	return n.Set("name", name)
}
