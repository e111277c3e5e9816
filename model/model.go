// Package model defines the page-model schema interpreted by the engine: view
// objects, data tables, data buckets, operations and dictionaries.
package model

import (
	"fmt"
	"strings"
)

// Field component kinds understood by the built-in renderers.
const (
	ComponentText     = "input-text"
	ComponentTextarea = "textarea"
	ComponentTag      = "input-tag"
	ComponentSelect   = "select"
	ComponentDate     = "input-date"
	ComponentNumber   = "input-number"
)

// Data bucket types.
const (
	BucketList   = "list"
	BucketObject = "object"
)

// EnvelopeOK is the business status code of a successful backend response.
const EnvelopeOK = "OK"

// DataField describes one column or input of a DataTable.
type DataField struct {
	ID             string            `json:"id" yaml:"id"`
	Label          string            `json:"label" yaml:"label"`
	Component      string            `json:"component" yaml:"component"`
	IsFilter       bool              `json:"isFilter,omitempty" yaml:"isFilter,omitempty"`
	Required       bool              `json:"required,omitempty" yaml:"required,omitempty"`
	Source         string            `json:"source,omitempty" yaml:"source,omitempty"`
	Clearable      bool              `json:"clearable,omitempty" yaml:"clearable,omitempty"`
	Searchable     bool              `json:"searchable,omitempty" yaml:"searchable,omitempty"`
	DefaultValue   string            `json:"defaultValue,omitempty" yaml:"defaultValue,omitempty"`
	Format         string            `json:"format,omitempty" yaml:"format,omitempty"`
	InputFormat    string            `json:"inputFormat,omitempty" yaml:"inputFormat,omitempty"`
	Multiple       bool              `json:"multiple,omitempty" yaml:"multiple,omitempty"`
	Disabled       bool              `json:"disabled,omitempty" yaml:"disabled,omitempty"`
	EffectMap      map[string]string `json:"effectMap,omitempty" yaml:"effectMap,omitempty"`
	SelectFilterBy string            `json:"selectFilterBy,omitempty" yaml:"selectFilterBy,omitempty"`
	FilterOps      string            `json:"filterOps,omitempty" yaml:"filterOps,omitempty"`
}

// ToMap returns the field as a generic map so it can be merged with view
// object overrides.
func (f DataField) ToMap() map[string]any {
	m := map[string]any{
		"id":        f.ID,
		"label":     f.Label,
		"component": f.Component,
	}
	setIf := func(k string, v any, ok bool) {
		if ok {
			m[k] = v
		}
	}
	setIf("isFilter", f.IsFilter, f.IsFilter)
	setIf("required", f.Required, f.Required)
	setIf("source", f.Source, f.Source != "")
	setIf("clearable", f.Clearable, f.Clearable)
	setIf("searchable", f.Searchable, f.Searchable)
	setIf("defaultValue", f.DefaultValue, f.DefaultValue != "")
	setIf("format", f.Format, f.Format != "")
	setIf("inputFormat", f.InputFormat, f.InputFormat != "")
	setIf("multiple", f.Multiple, f.Multiple)
	setIf("disabled", f.Disabled, f.Disabled)
	setIf("selectFilterBy", f.SelectFilterBy, f.SelectFilterBy != "")
	setIf("filterOps", f.FilterOps, f.FilterOps != "")
	if len(f.EffectMap) > 0 {
		em := make(map[string]any, len(f.EffectMap))
		for k, v := range f.EffectMap {
			em[k] = v
		}
		m["effectMap"] = em
	}
	return m
}

// DataTable owns an ordered list of fields and an optional dictionary API.
type DataTable struct {
	ID         string      `json:"id" yaml:"id"`
	Label      string      `json:"label" yaml:"label"`
	MappingAPI string      `json:"mappingApi,omitempty" yaml:"mappingApi,omitempty"`
	Fields     []DataField `json:"fields" yaml:"fields"`
}

// Field returns the field with the given id.
func (t *DataTable) Field(id string) (DataField, bool) {
	if t == nil {
		return DataField{}, false
	}
	for _, f := range t.Fields {
		if f.ID == id {
			return f, true
		}
	}
	return DataField{}, false
}

// DataObject declares one data bucket of the page store.
type DataObject struct {
	ID          string `json:"id" yaml:"id"`
	Type        string `json:"type,omitempty" yaml:"type,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	API         string `json:"api,omitempty" yaml:"api,omitempty"`
	Load        string `json:"load,omitempty" yaml:"load,omitempty"`
	Cache       string `json:"cache,omitempty" yaml:"cache,omitempty"`
	DataTable   string `json:"dataTable,omitempty" yaml:"dataTable,omitempty"`
	// Select is an optional jq filter applied to the fetched payload.
	Select string `json:"select,omitempty" yaml:"select,omitempty"`
}

// EmptyValue returns the value a bucket holds before its first fetch.
func (d DataObject) EmptyValue() any {
	if d.Type == BucketList {
		return []any{}
	}
	return map[string]any{}
}

// PageModel is the root artifact fetched for one page route.
type PageModel struct {
	DataSet    map[string]*DataTable  `json:"dataSet" yaml:"dataSet"`
	Operations map[string]*Operation  `json:"operations" yaml:"operations"`
	DataStore  map[string]*DataObject `json:"dataStore" yaml:"dataStore"`
	PageView   map[string]ViewObject  `json:"pageView" yaml:"pageView"`
	MainView   string                 `json:"mainView" yaml:"mainView"`
}

// View returns the named page view.
func (p *PageModel) View(id string) (ViewObject, bool) {
	if p == nil {
		return nil, false
	}
	v, ok := p.PageView[id]
	return v, ok && v != nil
}

// Table returns the named data table.
func (p *PageModel) Table(id string) *DataTable {
	if p == nil || id == "" {
		return nil
	}
	return p.DataSet[id]
}

// Operation returns the named operation from the page registry.
func (p *PageModel) Operation(id string) *Operation {
	if p == nil || id == "" {
		return nil
	}
	return p.Operations[id]
}

// Validate checks the structural invariants of a freshly fetched model.
func (p *PageModel) Validate() error {
	if p == nil {
		return fmt.Errorf("page model is empty")
	}
	if p.MainView != "" {
		if _, ok := p.View(p.MainView); !ok {
			return fmt.Errorf("main view %q is not declared in pageView", p.MainView)
		}
	}
	for id, ds := range p.DataStore {
		if ds == nil {
			return fmt.Errorf("data object %q is empty", id)
		}
		if ds.ID == "" {
			ds.ID = id
		}
	}
	for id, op := range p.Operations {
		if op != nil && op.ID == "" {
			op.ID = id
		}
	}
	for id, t := range p.DataSet {
		if t != nil && t.ID == "" {
			t.ID = id
		}
	}
	return nil
}

// Envelope is the JSON wrapper every backend response uses.
type Envelope struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Error   map[string]string `json:"error,omitempty"`
	Data    any               `json:"data,omitempty"`
}

// MenuItem is one entry of the application navigation. Items of type
// "pan-page" carry the url of a page model.
type MenuItem struct {
	ID         string     `json:"id,omitempty" yaml:"id,omitempty"`
	Type       string     `json:"type" yaml:"type"`
	View       string     `json:"view,omitempty" yaml:"view,omitempty"`
	Title      string     `json:"title,omitempty" yaml:"title,omitempty"`
	TitleShort string     `json:"title_short,omitempty" yaml:"title_short,omitempty"`
	URL        string     `json:"url,omitempty" yaml:"url,omitempty"`
	Icon       string     `json:"ico,omitempty" yaml:"ico,omitempty"`
	Children   []MenuItem `json:"children,omitempty" yaml:"children,omitempty"`
}

// Find returns the first item (depth first) whose id matches.
func (m MenuItem) Find(id string) (MenuItem, bool) {
	if m.ID == id {
		return m, true
	}
	for _, c := range m.Children {
		if found, ok := c.Find(id); ok {
			return found, true
		}
	}
	return MenuItem{}, false
}

// SplitList splits a comma separated list, trimming blanks.
func SplitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
