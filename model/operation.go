package model

import (
	"encoding/json"
	"fmt"
)

// Action types of an Operation.
const (
	ActionView     = "view"
	ActionAPI      = "api"
	ActionDownload = "download"
	ActionExport   = "export"
	ActionImport   = "import"
	ActionBatch    = "batch"
	ActionConfirm  = "confirm"
)

// Operation is a named action descriptor bound to a UI trigger.
type Operation struct {
	ID         string `json:"id" yaml:"id"`
	ActionType string `json:"actionType" yaml:"actionType"`
	Type       string `json:"type,omitempty" yaml:"type,omitempty"`
	Label      string `json:"label,omitempty" yaml:"label,omitempty"`
	Title      string `json:"title,omitempty" yaml:"title,omitempty"`
	View       string `json:"view,omitempty" yaml:"view,omitempty"`
	Confirm    string `json:"confirm,omitempty" yaml:"confirm,omitempty"`
	API        string `json:"api,omitempty" yaml:"api,omitempty"`
	Method     string `json:"method,omitempty" yaml:"method,omitempty"`
	Feature    string `json:"feature,omitempty" yaml:"feature,omitempty"`
	Icon       string `json:"icon,omitempty" yaml:"icon,omitempty"`
	Level      string `json:"level,omitempty" yaml:"level,omitempty"`
	Accept     string `json:"accept,omitempty" yaml:"accept,omitempty"`
	Effects    string `json:"effects,omitempty" yaml:"effects,omitempty"`
}

// EffectIDs returns the bucket ids invalidated after a successful call.
func (o *Operation) EffectIDs() []string {
	if o == nil {
		return nil
	}
	return SplitList(o.Effects)
}

// Merge returns a copy of o with every field present in override applied on
// top. Fields absent from override keep the registry value.
func (o *Operation) Merge(override map[string]any) (*Operation, error) {
	base := map[string]any{}
	if o != nil {
		raw, err := json.Marshal(o)
		if err != nil {
			return nil, fmt.Errorf("encode operation %q: %w", o.ID, err)
		}
		if err := json.Unmarshal(raw, &base); err != nil {
			return nil, fmt.Errorf("decode operation %q: %w", o.ID, err)
		}
	}
	for k, v := range override {
		base[k] = v
	}
	raw, err := json.Marshal(base)
	if err != nil {
		return nil, fmt.Errorf("encode merged operation: %w", err)
	}
	var merged Operation
	if err := json.Unmarshal(raw, &merged); err != nil {
		return nil, fmt.Errorf("decode merged operation: %w", err)
	}
	return &merged, nil
}

// LookupOperation resolves an operation id against the page registry and
// applies the call-site override. An id missing from the registry yields the
// override alone.
func LookupOperation(registry map[string]*Operation, id string, override map[string]any) (*Operation, error) {
	op := registry[id]
	if op == nil && len(override) == 0 {
		return nil, fmt.Errorf("operation %q not found", id)
	}
	if op == nil {
		op = &Operation{ID: id}
	}
	return op.Merge(override)
}
