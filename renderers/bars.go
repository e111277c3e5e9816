package renderers

import (
	"github.com/GoCodeAlone/pageview/builder"
	"github.com/GoCodeAlone/pageview/model"
	"github.com/GoCodeAlone/pageview/render"
	"github.com/GoCodeAlone/pageview/urlstate"
)

// ActionBar renders the actions of the view as buttons, with actionMore
// folded into a menu.
func ActionBar(caps *builder.Capabilities, p builder.Props) *render.Node {
	return render.Element("div",
		render.Element("div", actionButtons(caps, p.VO, "actions", nil, "outline")...).Class("pv-btn-group"),
		moreMenu(actionButtons(caps, p.VO, "actionMore", nil, "ghost")),
	).Class("pv-action-bar", p.VO.ClassName())
}

// filterField is a filter bar entry: the merged field plus whether it is only
// shown on demand.
type filterField struct {
	model.ViewObject
	dynamic bool
}

// filterFields collects the isFilter fields of the table, overlaid by the bar
// children with the same id. Fields are dynamic unless a child says otherwise.
func filterFields(t *model.DataTable, vo model.ViewObject) []filterField {
	if t == nil {
		return nil
	}
	overrides := map[string]model.ViewObject{}
	for _, c := range vo.Children() {
		overrides[c.ID()] = c
	}
	var out []filterField
	for _, f := range t.Fields {
		if !f.IsFilter {
			continue
		}
		merged := model.ViewObject(f.ToMap())
		dynamic := true
		if o, ok := overrides[f.ID]; ok {
			for k, v := range o {
				merged[k] = v
			}
			if o.Has("dynamic") {
				dynamic = o.Bool("dynamic")
			}
		}
		out = append(out, filterField{ViewObject: merged, dynamic: dynamic})
	}
	return out
}

// FilterBar renders the filter fields of a data table. Submitting performs
// the onQuery operation with the record {"filter": FilterParam}; reset sends
// an empty filter.
func FilterBar(caps *builder.Capabilities, p builder.Props) *render.Node {
	vo := p.VO
	t := table(caps, vo)
	bucket := bucketID(caps, p)
	dict := loadDict(caps, bucket, t, urlstate.Params(caps.Query), "")

	current := currentFilter(caps)
	form := render.Element("form", hidden(FilterField, "1")).Set("method", "post").Class("pv-filter-bar", vo.ClassName())
	if onQuery := vo.String("onQuery"); onQuery != "" {
		form.Set("action", OperationURL(caps, onQuery))
	}

	for _, f := range filterFields(t, vo) {
		form.Append(filterItem(f, current, dict))
	}
	if form.Attr("action") != "" {
		form.Append(
			render.Element("button", render.Text("Search")).Set("type", "submit").Class("pv-btn", "pv-btn-default"),
			render.Element("button", render.Text("Reset")).
				Set("type", "submit").Set("name", ResetField).Set("value", "1").
				Class("pv-btn", "pv-btn-outline"),
		)
	}
	return form
}

// currentFilter returns the active filter items keyed by field id, from the
// current record or the filter query parameter.
func currentFilter(caps *builder.Capabilities) map[string]urlstate.FilterItem {
	out := map[string]urlstate.FilterItem{}
	f, ok := urlstate.FilterFrom(caps.Record[urlstate.FilterKey])
	if !ok {
		f, ok = urlstate.FilterFrom(caps.Query.Get(urlstate.FilterKey))
	}
	if ok {
		for _, item := range f.Items {
			out[item.Key] = item
		}
	}
	return out
}

func filterItem(f filterField, current map[string]urlstate.FilterItem, dict model.MappingDict) *render.Node {
	id := f.ID()
	field := model.DataField{Component: f.String("component"), FilterOps: f.String("filterOps")}
	typ := urlstate.FieldType(field.Component)
	cur, active := current[id]

	op := urlstate.DefaultOperator(field)
	if active && cur.TypeValue != "" {
		op = cur.TypeValue
	}
	var opNode *render.Node
	if ops := urlstate.Operators(field); len(ops) > 0 {
		opNode = render.Element("select").Set("name", oprPrefix+id).Class("pv-filter-op")
		for _, o := range ops {
			opt := render.Element("option", render.Text(o.Label)).Set("value", o.Value)
			if o.Value == op {
				opt.Set("selected", "selected")
			}
			opNode.Append(opt)
		}
	} else {
		opNode = hidden(oprPrefix+id, op)
	}

	data := map[string]any{}
	if active {
		data[id] = filterValue(cur.Value)
	}
	valueField := f.ViewObject.Clone()
	if typ == urlstate.TypeSelect {
		valueField["multiple"] = true
	}
	valueNode := editElement(data, valueField, dict)
	valueNode.Attrs["placeholder"] = label(f.ViewObject)
	delete(valueNode.Attrs, "required")

	item := render.Element("div",
		render.Element("label", render.Text(label(f.ViewObject))).Set("for", id),
		opNode,
		valueNode,
		hidden(typePrefix+id, typ),
	).Class("pv-filter-item").WithKey(id)
	if f.dynamic && !active {
		item.Class("pv-filter-dynamic")
	}
	return item
}

// filterValue flattens a filter value back into the comma form inputs use.
func filterValue(v any) string {
	switch vals := v.(type) {
	case []any:
		out := ""
		for i, x := range vals {
			if i > 0 {
				out += ","
			}
			out += model.Stringify(x)
		}
		return out
	}
	return model.Stringify(v)
}
