package urlstate

import (
	"slices"

	"github.com/GoCodeAlone/pageview/model"
)

// Filter value types.
const (
	TypeString = "string"
	TypeNumber = "number"
	TypeSelect = "select"
	TypeDate   = "date"
)

// Operator is a comparison offered for a filter field.
type Operator struct {
	Value string
	Label string
}

var typeOperators = map[string][]Operator{
	TypeString: {
		{"like", "Contains"}, {"=", "Equals"}, {"<>", "Not equal"},
		{"is-null", "Is empty"}, {"is-not-null", "Is not empty"},
	},
	TypeNumber: {
		{"=", "Equals"}, {"<>", "Not equal"}, {">", "Greater than"}, {"<", "Less than"},
		{">=", "At least"}, {"<=", "At most"}, {"-", "Between"},
		{"is-null", "Is empty"}, {"is-not-null", "Is not empty"},
	},
	TypeSelect: {
		{"in", "Any of"}, {"not-in", "None of"},
		{"is-null", "Is empty"}, {"is-not-null", "Is not empty"},
	},
	TypeDate: {
		{"=", "On"}, {">", "After"}, {"<", "Before"}, {">=", "On or after"}, {"<=", "On or before"},
		{"-", "Between"}, {"is-null", "Is empty"}, {"is-not-null", "Is not empty"},
	},
}

var componentTypes = map[string]struct{ typ, op string }{
	model.ComponentText:     {TypeString, "like"},
	model.ComponentTextarea: {TypeString, "like"},
	model.ComponentTag:      {TypeString, "in"},
	model.ComponentSelect:   {TypeSelect, "in"},
	model.ComponentDate:     {TypeDate, "="},
	model.ComponentNumber:   {TypeNumber, "="},
}

// FieldType returns the filter type of a field component; unknown components
// filter as strings.
func FieldType(component string) string {
	if ct, ok := componentTypes[component]; ok {
		return ct.typ
	}
	return TypeString
}

// DefaultOperator returns the initial operator of a filter field: the first
// entry of filterOps when it lists concrete operators, the component default
// otherwise, "=" for unknown components.
func DefaultOperator(f model.DataField) string {
	ct, known := componentTypes[f.Component]
	if !known {
		if f.FilterOps != "" {
			return f.FilterOps
		}
		return "="
	}
	if ops := model.SplitList(f.FilterOps); len(ops) > 0 && !slices.Contains(ops, "*") {
		return ops[0]
	}
	return ct.op
}

// Operators returns the operators a field offers: those of its type listed in
// filterOps, or all of them when filterOps contains "all".
func Operators(f model.DataField) []Operator {
	ops := model.SplitList(f.FilterOps)
	all := typeOperators[FieldType(f.Component)]
	if slices.Contains(ops, "all") {
		return all
	}
	var out []Operator
	for _, op := range all {
		if slices.Contains(ops, op.Value) {
			out = append(out, op)
		}
	}
	return out
}
