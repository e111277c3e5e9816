package urlstate

import (
	"net/url"
	"strings"
	"testing"

	"github.com/GoCodeAlone/pageview/model"
)

func TestPagination(t *testing.T) {
	p := PaginationFrom(url.Values{})
	if p.Page != 1 || p.Size != 50 {
		t.Errorf("unexpected defaults %+v", p)
	}
	p = PaginationFrom(url.Values{"page": {"3"}, "size": {"-1"}})
	if p.Page != 3 || p.Size != 50 {
		t.Errorf("unexpected parse %+v", p)
	}
	if got := (Pagination{Page: 1, Size: 50}).Pages(0); got != 1 {
		t.Errorf("empty list should have one page, got %d", got)
	}
	if got := (Pagination{Page: 1, Size: 50}).Pages(101); got != 3 {
		t.Errorf("expected 3 pages, got %d", got)
	}

	q := url.Values{"q": {"x"}}
	out := (Pagination{Page: 2, Size: 10}).Apply(q)
	if out.Get("page") != "2" || out.Get("size") != "10" || out.Get("q") != "x" {
		t.Errorf("unexpected query %v", out)
	}
	if q.Has("page") {
		t.Error("Apply must not modify its input")
	}
}

func TestFilterRoundTrip(t *testing.T) {
	f := FilterParam{Opr: "and", Items: []FilterItem{
		{Key: "name", Type: TypeString, TypeValue: "like", Value: "ab"},
		{Key: "status", Type: TypeSelect, TypeValue: "in", Value: []any{"1", "2"}},
	}}
	s, err := EncodeFilter(f)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if strings.ContainsAny(s, "+/=") {
		t.Errorf("expected unpadded url alphabet, got %q", s)
	}

	got, err := DecodeFilter(s)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Opr != "and" || len(got.Items) != 2 || got.Items[0].TypeValue != "like" {
		t.Errorf("unexpected decoded filter %+v", got)
	}
	if _, err := DecodeFilter("!!!"); err == nil {
		t.Error("expected decode error")
	}
}

func TestFilterFrom(t *testing.T) {
	m := map[string]any{"opr": "and", "items": []any{map[string]any{"key": "a", "type": "string", "type_value": "=", "value": "x"}}}
	f, ok := FilterFrom(m)
	if !ok || f.Items[0].Key != "a" {
		t.Errorf("map conversion failed: %+v %v", f, ok)
	}
	if _, ok := FilterFrom(map[string]any{}); ok {
		t.Error("empty filter should report false")
	}
	s, _ := EncodeFilter(f)
	if f2, ok := FilterFrom(s); !ok || f2.Items[0].Value != "x" {
		t.Errorf("blob conversion failed: %+v", f2)
	}
}

func TestViewParams(t *testing.T) {
	out := ViewParams(url.Values{"page": {"1"}}, map[string]any{
		"status": []any{map[string]any{"value": "a"}, map[string]any{"value": "b"}},
		"owner":  map[string]any{"value": "u1"},
		"q":      "text",
		"empty":  "",
		"filter": FilterParam{Opr: "and", Items: []FilterItem{{Key: "k", Value: "v"}}},
	})
	if out.Get("status") != "a,b" || out.Get("owner") != "u1" || out.Get("q") != "text" {
		t.Errorf("unexpected params %v", out)
	}
	if out.Has("empty") {
		t.Error("empty values must be skipped")
	}
	f, err := DecodeFilter(out.Get("filter"))
	if err != nil || f.Items[0].Key != "k" {
		t.Errorf("filter not encoded: %v %+v", err, f)
	}
}

func TestOperators(t *testing.T) {
	text := model.DataField{ID: "name", Component: model.ComponentText}
	if DefaultOperator(text) != "like" {
		t.Errorf("text default should be like, got %q", DefaultOperator(text))
	}
	text.FilterOps = "=,like"
	if DefaultOperator(text) != "=" {
		t.Errorf("first listed op should win, got %q", DefaultOperator(text))
	}
	if ops := Operators(text); len(ops) != 2 || ops[0].Value != "like" {
		t.Errorf("unexpected operators %+v", ops)
	}
	text.FilterOps = "*"
	if DefaultOperator(text) != "like" {
		t.Errorf("wildcard should keep the default, got %q", DefaultOperator(text))
	}

	num := model.DataField{Component: model.ComponentNumber, FilterOps: "all"}
	if len(Operators(num)) != 9 {
		t.Errorf("expected all number operators, got %d", len(Operators(num)))
	}
	if FieldType("unknown") != TypeString || DefaultOperator(model.DataField{Component: "x"}) != "=" {
		t.Error("unknown components filter as strings with =")
	}
}
