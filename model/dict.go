package model

import "strings"

// DictItem is one value of a dictionary.
type DictItem struct {
	Value  string         `json:"value" yaml:"value"`
	Label  string         `json:"label" yaml:"label"`
	Icon   string         `json:"icon,omitempty" yaml:"icon,omitempty"`
	Style  string         `json:"style,omitempty" yaml:"style,omitempty"`
	Color  string         `json:"color,omitempty" yaml:"color,omitempty"`
	Fields map[string]any `json:"fields,omitempty" yaml:"fields,omitempty"`
}

// Dict maps raw values to display items.
type Dict struct {
	ID      string              `json:"id,omitempty" yaml:"id,omitempty"`
	Name    string              `json:"name,omitempty" yaml:"name,omitempty"`
	Type    string              `json:"type,omitempty" yaml:"type,omitempty"`
	Struct  string              `json:"struct,omitempty" yaml:"struct,omitempty"`
	Style   string              `json:"style,omitempty" yaml:"style,omitempty"`
	Items   map[string]DictItem `json:"items" yaml:"items"`
	Options []DictItem          `json:"options,omitempty" yaml:"options,omitempty"`
}

// Label returns the display label for value, falling back to the value.
func (d *Dict) Label(value string) string {
	if d == nil {
		return value
	}
	if item, ok := d.Items[value]; ok && item.Label != "" {
		return item.Label
	}
	return value
}

// FilterBy narrows the dictionary options to those whose fields[key] equals
// record[name]. decl is "name:key" as declared by selectFilterBy.
func (d *Dict) FilterBy(decl string, record map[string]any) *Dict {
	if d == nil || decl == "" {
		return d
	}
	name, key, ok := strings.Cut(decl, ":")
	if !ok {
		return d
	}
	want := Stringify(record[name])
	out := &Dict{ID: d.ID, Name: d.Name, Type: d.Type, Struct: d.Struct, Style: d.Style, Items: map[string]DictItem{}}
	for _, opt := range d.Options {
		if opt.Fields == nil || Stringify(opt.Fields[key]) != want {
			continue
		}
		out.Options = append(out.Options, opt)
		out.Items[opt.Value] = opt
	}
	return out
}

// MappingDict is a dictionary of dictionaries keyed by source id.
type MappingDict map[string]*Dict

// Lookup returns the dictionary for a field source.
func (m MappingDict) Lookup(source string) *Dict {
	if m == nil || source == "" {
		return nil
	}
	return m[source]
}
