package renderers

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/GoCodeAlone/pageview/urlstate"
)

// Form field names shared by the renderers and the request decoder.
const (
	RecordField   = "__record"
	OverrideField = "__override"
	FilterField   = "__filter"
	ResetField    = "__reset"
	SelectedField = "__selected"

	valuePrefix = "f."
	oprPrefix   = "opr."
	typePrefix  = "type."
)

// Submission is a decoded operation form.
type Submission struct {
	Override map[string]any
	Record   map[string]any
}

// DecodeSubmission rebuilds the operation override and record from a posted
// form. Edited field values overlay the embedded record; filter bar forms
// produce a {"filter": FilterParam} record.
func DecodeSubmission(form url.Values) (Submission, error) {
	var sub Submission
	if raw := form.Get(OverrideField); raw != "" {
		if err := json.Unmarshal([]byte(raw), &sub.Override); err != nil {
			return sub, fmt.Errorf("decode operation override: %w", err)
		}
	}
	if form.Get(FilterField) != "" {
		sub.Record = map[string]any{urlstate.FilterKey: decodeFilter(form)}
		return sub, nil
	}

	sub.Record = map[string]any{}
	if raw := form.Get(RecordField); raw != "" {
		if err := json.Unmarshal([]byte(raw), &sub.Record); err != nil {
			return sub, fmt.Errorf("decode operation record: %w", err)
		}
	}
	for key, vals := range form {
		if id, ok := strings.CutPrefix(key, valuePrefix); ok && id != "" {
			sub.Record[id] = strings.Join(vals, ",")
		}
	}
	if sel, ok := form[SelectedField]; ok {
		sub.Record["selected"] = sel
	}
	return sub, nil
}

func decodeFilter(form url.Values) urlstate.FilterParam {
	f := urlstate.FilterParam{Opr: "and", Items: []urlstate.FilterItem{}}
	if form.Get(ResetField) != "" {
		return f
	}
	var keys []string
	for key := range form {
		if id, ok := strings.CutPrefix(key, valuePrefix); ok && id != "" {
			keys = append(keys, id)
		}
	}
	sort.Strings(keys)
	for _, id := range keys {
		vals := nonEmpty(form[valuePrefix+id])
		if len(vals) == 0 {
			continue
		}
		typ := form.Get(typePrefix + id)
		if typ == "" {
			typ = urlstate.TypeString
		}
		item := urlstate.FilterItem{Key: id, Type: typ, TypeValue: form.Get(oprPrefix + id)}
		if item.TypeValue == "" {
			item.TypeValue = "="
		}
		if typ == urlstate.TypeSelect {
			list := make([]any, len(vals))
			for i, v := range vals {
				list[i] = v
			}
			item.Value = list
		} else {
			item.Value = vals[0]
		}
		f.Items = append(f.Items, item)
	}
	return f
}

func nonEmpty(vals []string) []string {
	var out []string
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
