package renderers

import (
	"context"
	"fmt"
	"strconv"

	"github.com/GoCodeAlone/pageview/builder"
	"github.com/GoCodeAlone/pageview/model"
	"github.com/GoCodeAlone/pageview/pagestore"
	"github.com/GoCodeAlone/pageview/render"
	"github.com/GoCodeAlone/pageview/urlstate"
)

// Form modes.
const (
	FormPage   = "page"
	FormEdit   = "edit"
	FormCreate = "create"
)

// Form renders an editable record. In page mode the record is the first row
// returned by the api; edit mode starts from the current record; create mode
// starts from the field defaults. Footer operations submit the edited record.
func Form(caps *builder.Capabilities, p builder.Props) *render.Node {
	vo := p.VO
	bucket := bucketID(caps, p)
	t := table(caps, vo)
	params := urlstate.Params(caps.Query)

	if vo.String("mode") == FormPage {
		if api := vo.String("api"); api != "" {
			apiURL := caps.Engine.Evaluate(api, caps.Params())
			deps := fmt.Sprintf("%s|%d", apiURL, caps.Store.Effect(bucket))
			caps.FetchOnce(bucket, deps, func(ctx context.Context) error {
				return fetchFormRecord(ctx, caps, bucket, apiURL, params)
			})
		}
	}
	dict := loadDict(caps, bucket, t, params, "")
	data := formData(caps, vo, t, bucket)

	box := render.Element("div").Class("pv-form-box")
	if title := vo.String("title"); title != "" {
		box.Append(render.Element("div", render.Text(title)).Class("pv-form-title"))
	}
	children := vo.Children()
	if len(children) == 0 {
		return render.Element("div", box.Append(render.Element("div", render.Text("No form elements configured")))).Class("pv-form")
	}

	form := render.Element("form").
		Set("method", "post").
		Class("pv-form-body")
	hasGroup := false
	for _, c := range children {
		if c.Object() == "Group" {
			hasGroup = true
			break
		}
	}
	if hasGroup {
		for _, c := range children {
			form.Append(formChild(t, c, data, dict))
		}
	} else {
		cols := vo.String("cols")
		if cols == "" {
			cols = "1"
		}
		grid := render.Element("div").Class("grid", "grid-cols-"+cols, vo.ClassName())
		for _, c := range children {
			grid.Append(formChild(t, c, data, dict))
		}
		form.Append(grid)
	}

	footer := render.Element("div").Class("pv-form-footer")
	for _, act := range vo.Child("footer").Child("actions").Children() {
		op := resolveOperation(caps, act)
		if op == nil || op.ID == "" {
			continue
		}
		btn := render.Element("button", render.Text(op.Label)).
			Set("type", "submit").
			Set("formaction", OperationURL(caps, op.ID)).
			Set("name", OverrideField).
			Set("value", encodeJSON(act)).
			Set("data-confirm", op.Confirm).
			Class("pv-btn", "pv-btn-"+variant(op.Level, "outline"))
		footer.Append(btn)
		if form.Attr("action") == "" {
			form.Set("action", OperationURL(caps, op.ID))
		}
	}
	form.Append(hidden(RecordField, encodeJSON(data)), footer)
	return render.Element("div", box.Append(form)).Class("pv-form")
}

func fetchFormRecord(ctx context.Context, caps *builder.Capabilities, bucket, apiURL string, params map[string]any) error {
	if caps.Client == nil {
		return fmt.Errorf("no backend client for %s", apiURL)
	}
	res, err := caps.Client.Get(ctx, apiURL, params)
	if err != nil {
		return err
	}
	page, _ := res.(map[string]any)
	if content, _ := page["content"].([]any); len(content) > 0 {
		if rec, ok := content[0].(map[string]any); ok {
			caps.Store.SetData(bucket, rec, pagestore.Replace)
		}
	}
	return nil
}

// formData is the initial record of a form for its mode.
func formData(caps *builder.Capabilities, vo model.ViewObject, t *model.DataTable, bucket string) map[string]any {
	data := map[string]any{}
	switch vo.String("mode") {
	case FormEdit:
		for k, v := range caps.Record {
			data[k] = v
		}
	case FormCreate:
		for _, c := range vo.Children() {
			if f, ok := t.Field(c.ID()); ok && f.DefaultValue != "" {
				data[c.ID()] = f.DefaultValue
			}
		}
	case FormPage:
		if rec, ok := caps.Store.Data(bucket); ok {
			if m, ok := rec.(map[string]any); ok {
				for k, v := range m {
					data[k] = v
				}
			}
		}
	}
	return data
}

func formChild(t *model.DataTable, c model.ViewObject, data map[string]any, dict model.MappingDict) *render.Node {
	switch c.Object() {
	case "Group":
		title := c.String("title")
		if title == "" {
			title = c.String("name")
		}
		grid := render.Element("div").Class("grid", "grid-cols-1", c.ClassName())
		for _, sub := range c.Children() {
			grid.Append(formChild(t, sub, data, dict))
		}
		return render.Element("fieldset", heading("legend", title), grid).Class("pv-group").WithKey(title)
	case "Element":
		if _, ok := t.Field(c.ID()); !ok {
			return nil
		}
		f := mergeField(t, c)
		return render.Element("div",
			render.Element("label", render.Text(label(f))).Set("for", f.ID()),
			editElement(data, f, dict),
		).Class("pv-field", colSpan(c)).WithKey(f.ID())
	}
	return nil
}

// colSpan maps colSpan 1..4 to a grid class; other values span one column.
func colSpan(c model.ViewObject) string {
	span := c.Int("colSpan", 1)
	if span < 1 || span > 4 {
		span = 1
	}
	return "col-span-" + strconv.Itoa(span)
}
