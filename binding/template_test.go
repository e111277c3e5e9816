package binding

import (
	"testing"
	"time"

	"github.com/GoCodeAlone/pageview/model"
)

func fixedClock() time.Time {
	return time.Date(2024, time.March, 1, 9, 30, 15, 0, time.UTC)
}

func TestEvaluate_DirectKeys(t *testing.T) {
	e := NewEngine()
	params := map[string]any{"id": "42", "name": "Alice", "n": float64(3)}

	cases := []struct {
		tmpl string
		want string
	}{
		{"/api/items/${id}", "/api/items/42"},
		{"${name}-${id}", "Alice-42"},
		{"count=${n}", "count=3"},
		{"no placeholders", "no placeholders"},
		{"", ""},
	}
	for _, c := range cases {
		if got := e.Evaluate(c.tmpl, params); got != c.want {
			t.Errorf("Evaluate(%q) = %q, want %q", c.tmpl, got, c.want)
		}
	}
}

func TestEvaluate_KeyWithSpacesIsLiteralLookup(t *testing.T) {
	e := NewEngine()
	got := e.Evaluate("${a b}", map[string]any{"a b": "literal"})
	if got != "literal" {
		t.Errorf("expected literal substitution, got %q", got)
	}
}

func TestEvaluate_UndefinedVariableIsEmpty(t *testing.T) {
	e := NewEngine()
	if got := e.Evaluate("${undefinedVar}", map[string]any{}); got != "" {
		t.Errorf("expected empty string, got %q", got)
	}
	if got := e.Evaluate("x=${undefinedVar}&y=1", nil); got != "x=&y=1" {
		t.Errorf("expected surrounding text kept, got %q", got)
	}
	if got := e.Evaluate("${1 +}", nil); got != "" {
		t.Errorf("expected parse failure to yield empty string, got %q", got)
	}
}

func TestEvaluate_Expressions(t *testing.T) {
	e := NewEngine()
	params := map[string]any{"first": "Ada", "last": "Lovelace", "price": 2.5, "qty": 4}

	cases := []struct {
		tmpl string
		want string
	}{
		{"${first + ' ' + last}", "Ada Lovelace"},
		{"${price * qty}", "10"},
		{"${qty + 1}", "5"},
		{"${format(0.256, '0.0%')}", "25.6%"},
	}
	for _, c := range cases {
		if got := e.Evaluate(c.tmpl, params); got != c.want {
			t.Errorf("Evaluate(%q) = %q, want %q", c.tmpl, got, c.want)
		}
	}
}

func TestEvaluate_FieldsNamedLikeFunctions(t *testing.T) {
	e := NewEngine()

	cases := []struct {
		tmpl   string
		params map[string]any
		want   string
	}{
		{"${type + '-' + name}", map[string]any{"type": "order", "name": "n"}, "order-n"},
		{"${count + 1}", map[string]any{"count": 3}, "4"},
		{"${'d=' + date}", map[string]any{"date": "2024-03-01"}, "d=2024-03-01"},
		{"${len * 2}", map[string]any{"len": 5}, "10"},
		{"${format + '!'}", map[string]any{"format": "csv"}, "csv!"},
		// the same expression without the field still uses the function
		{"${len(items)}", map[string]any{"items": []any{1, 2}}, "2"},
	}
	for _, c := range cases {
		if got := e.Evaluate(c.tmpl, c.params); got != c.want {
			t.Errorf("Evaluate(%q, %v) = %q, want %q", c.tmpl, c.params, got, c.want)
		}
	}
}

func TestEvaluate_DateExpressions(t *testing.T) {
	e := NewEngine(WithClock(fixedClock))

	cases := []struct {
		tmpl string
		want string
	}{
		{"${date-(DAY-1)-YYYY-MM-DD}", "2024-02-29"},
		{"${date-(DAY+1)-yyyy-MM-dd}", "2024-03-02"},
		{"${date-(MONTH-1)-YYYY-MM}", "2024-02"},
		{"${date-(YEAR+1)-YYYY}", "2025"},
		{"${date-YYYYMMDD}", "20240301"},
		{"${date-HH:mm:ss}", "09:30:15"},
	}
	for _, c := range cases {
		if got := e.Evaluate(c.tmpl, nil); got != c.want {
			t.Errorf("Evaluate(%q) = %q, want %q", c.tmpl, got, c.want)
		}
	}
}

func TestCalcDate_MonthEndClamps(t *testing.T) {
	cases := []struct {
		base time.Time
		expr string
		want string
	}{
		{time.Date(2024, 1, 31, 8, 0, 0, 0, time.UTC), "(MONTH+1)-YYYY-MM-DD", "2024-02-29"},
		{time.Date(2024, 3, 31, 8, 0, 0, 0, time.UTC), "(MONTH-1)-YYYY-MM", "2024-02"},
		{time.Date(2024, 3, 31, 8, 0, 0, 0, time.UTC), "(MONTH-1)-YYYY-MM-DD HH", "2024-02-29 08"},
		{time.Date(2023, 12, 31, 8, 0, 0, 0, time.UTC), "(MONTH+2)-YYYY-MM-DD", "2024-02-29"},
		{time.Date(2024, 5, 31, 8, 0, 0, 0, time.UTC), "(MONTH-13)-YYYY-MM-DD", "2023-04-30"},
		{time.Date(2024, 2, 29, 8, 0, 0, 0, time.UTC), "(YEAR+1)-YYYY-MM-DD", "2025-02-28"},
		{time.Date(2024, 2, 29, 8, 0, 0, 0, time.UTC), "(YEAR-4)-YYYY-MM-DD", "2020-02-29"},
		{time.Date(2024, 3, 15, 8, 0, 0, 0, time.UTC), "(MONTH+1)-YYYY-MM-DD", "2024-04-15"},
	}
	for _, c := range cases {
		if got := CalcDate(c.expr, c.base); got != c.want {
			t.Errorf("CalcDate(%q, %s) = %q, want %q", c.expr, c.base.Format("2006-01-02"), got, c.want)
		}
	}
}

func TestEvaluate_ParamsTakePrecedenceOverDateExpr(t *testing.T) {
	e := NewEngine(WithClock(fixedClock))
	got := e.Evaluate("${date-today}", map[string]any{"date-today": "fixed"})
	if got != "fixed" {
		t.Errorf("expected direct key to win, got %q", got)
	}
}

func TestTransformObject_BoundAttributes(t *testing.T) {
	e := NewEngine()
	in := map[string]any{"__bind-label": "${name}", "other": 1}

	out, ok := e.TransformObject(in, map[string]any{"name": "X"}).(map[string]any)
	if !ok {
		t.Fatalf("expected map result, got %T", out)
	}
	if out["label"] != "X" {
		t.Errorf("expected label 'X', got %#v", out["label"])
	}
	if out["other"] != 1 {
		t.Errorf("expected other passthrough, got %#v", out["other"])
	}
	if _, present := out["__bind-label"]; present {
		t.Error("bound key should be removed")
	}
	if len(out) != 2 {
		t.Errorf("expected 2 keys, got %d: %#v", len(out), out)
	}
	if _, still := in["__bind-label"]; !still {
		t.Error("input map must not be mutated")
	}
}

func TestTransformObject_BoundKeyWinsOverPlainKey(t *testing.T) {
	e := NewEngine()
	in := model.ViewObject{"object": "Text", "value": "static", "__bind-value": "${v}"}
	out := e.TransformObject(in, map[string]any{"v": "dynamic"}).(model.ViewObject)
	if out["value"] != "dynamic" {
		t.Errorf("expected bound value, got %#v", out["value"])
	}
	if out.Object() != "Text" {
		t.Errorf("expected object tag kept, got %q", out.Object())
	}
}

func TestTransformObject_Passthrough(t *testing.T) {
	e := NewEngine()
	if got := e.TransformObject("hi ${x}", map[string]any{"x": "there"}); got != "hi there" {
		t.Errorf("expected string evaluation, got %#v", got)
	}
	if got := e.TransformObject(nil, nil); got != nil {
		t.Errorf("expected nil, got %#v", got)
	}
	arr := []any{"${x}"}
	if got := e.TransformObject(arr, map[string]any{"x": "y"}).([]any); got[0] != "${x}" {
		t.Errorf("arrays must pass through unchanged, got %#v", got)
	}
	if got := e.TransformObject(7, nil); got != 7 {
		t.Errorf("expected primitive passthrough, got %#v", got)
	}
}

func TestPackageLevelHelpers(t *testing.T) {
	if got := Evaluate("${a}", map[string]any{"a": "b"}); got != "b" {
		t.Errorf("Evaluate = %q", got)
	}
	out := TransformObject(map[string]any{"__bind-t": "${a}"}, map[string]any{"a": "b"}).(map[string]any)
	if out["t"] != "b" {
		t.Errorf("TransformObject = %#v", out)
	}
}
