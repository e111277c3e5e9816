package renderers

import (
	"encoding/json"
	"net/url"
	"strings"

	"github.com/GoCodeAlone/pageview/builder"
	"github.com/GoCodeAlone/pageview/model"
	"github.com/GoCodeAlone/pageview/render"
)

// OperationURL is the endpoint an operation form posts to.
func OperationURL(caps *builder.Capabilities, opID string) string {
	return strings.TrimSuffix(caps.BasePath, "/") + "/op/" + url.PathEscape(opID)
}

// CloseURL is the endpoint that closes an overlay view.
func CloseURL(caps *builder.Capabilities, view string) string {
	return strings.TrimSuffix(caps.BasePath, "/") + "/close/" + url.PathEscape(view)
}

// PageURL links back to the page with query q.
func PageURL(caps *builder.Capabilities, q url.Values) string {
	base := caps.BasePath
	if base == "" {
		base = "."
	}
	if enc := q.Encode(); enc != "" {
		return base + "?" + enc
	}
	return base
}

// resolveOperation merges the registry entry for act.id with the call-site
// attributes in act.
func resolveOperation(caps *builder.Capabilities, act model.ViewObject) *model.Operation {
	op, err := model.LookupOperation(caps.Model.Operations, act.ID(), act)
	if err != nil {
		caps.Log().Debug("operation not resolved", "operation", act.ID(), "error", err)
		return nil
	}
	return op
}

func variant(level, fallback string) string {
	switch level {
	case "primary":
		return "default"
	case "danger":
		return "destructive"
	}
	return fallback
}

// operationButton renders a one-button form that performs op with record.
// override is posted back so the server resolves the same merged operation.
func operationButton(caps *builder.Capabilities, op *model.Operation, override model.ViewObject, record map[string]any, fallback string, classes ...string) *render.Node {
	if op == nil || op.ID == "" {
		return nil
	}
	btn := render.Element("button", render.Text(op.Label)).
		Set("type", "submit").
		Class(append([]string{"pv-btn", "pv-btn-" + variant(op.Level, fallback)}, classes...)...).
		Set("data-icon", op.Icon)
	if len(override) > 0 {
		btn.Set("name", OverrideField).Set("value", encodeJSON(override))
	}
	form := render.Element("form", hidden(RecordField, encodeJSON(record)), btn).
		Set("method", "post").
		Set("action", OperationURL(caps, op.ID)).
		Class("pv-op").
		Set("data-confirm", op.Confirm)
	return form
}

// actionButtons renders the operations listed under vo[key].children.
func actionButtons(caps *builder.Capabilities, vo model.ViewObject, key string, record map[string]any, fallback string) []*render.Node {
	var out []*render.Node
	for _, act := range vo.Child(key).Children() {
		out = append(out, operationButton(caps, resolveOperation(caps, act), act, record, fallback))
	}
	return out
}

// closeButton posts a close request for the top-level view.
func closeButton(caps *builder.Capabilities) *render.Node {
	return render.Element("form",
		render.Element("button", render.Text("×")).
			Set("type", "submit").
			Set("aria-label", "Close").
			Class("pv-btn", "pv-btn-ghost"),
	).Set("method", "post").Set("action", CloseURL(caps, caps.View.ID)).Class("pv-close")
}

func hidden(name, value string) *render.Node {
	return render.Element("input").Set("type", "hidden").Set("name", name).Set("value", value)
}

func encodeJSON(v any) string {
	switch m := v.(type) {
	case nil:
		return ""
	case map[string]any:
		if len(m) == 0 {
			return ""
		}
	case model.ViewObject:
		if len(m) == 0 {
			return ""
		}
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(raw)
}
