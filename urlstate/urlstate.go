// Package urlstate round-trips page state through query strings: pagination,
// ad-hoc filter values and the base64url JSON filter blob.
package urlstate

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/GoCodeAlone/pageview/model"
)

// Query keys.
const (
	PageKey   = "page"
	SizeKey   = "size"
	FilterKey = "filter"
)

// Pagination defaults.
const (
	DefaultPage = 1
	DefaultSize = 50
)

// Pagination is the page/size pair of a list view.
type Pagination struct {
	Page int
	Size int
}

// PaginationFrom reads page and size from q, falling back to the defaults for
// missing or non-positive values.
func PaginationFrom(q url.Values) Pagination {
	p := Pagination{Page: DefaultPage, Size: DefaultSize}
	if n, err := strconv.Atoi(q.Get(PageKey)); err == nil && n > 0 {
		p.Page = n
	}
	if n, err := strconv.Atoi(q.Get(SizeKey)); err == nil && n > 0 {
		p.Size = n
	}
	return p
}

// Pages returns the number of pages needed for total items, at least 1.
func (p Pagination) Pages(total int) int {
	if total <= 0 || p.Size <= 0 {
		return 1
	}
	return (total + p.Size - 1) / p.Size
}

// Apply writes page and size into a copy of q.
func (p Pagination) Apply(q url.Values) url.Values {
	out := Clone(q)
	out.Set(PageKey, strconv.Itoa(p.Page))
	out.Set(SizeKey, strconv.Itoa(p.Size))
	return out
}

// Clone copies q.
func Clone(q url.Values) url.Values {
	out := make(url.Values, len(q))
	for k, v := range q {
		out[k] = append([]string(nil), v...)
	}
	return out
}

// FilterItem is one condition of a filter blob.
type FilterItem struct {
	Key       string `json:"key"`
	Type      string `json:"type"`
	TypeValue string `json:"type_value"`
	Value     any    `json:"value"`
}

// FilterParam is the filter blob sent under the "filter" query key.
type FilterParam struct {
	Opr   string       `json:"opr"`
	Items []FilterItem `json:"items"`
}

// Empty reports whether the filter has no conditions.
func (f FilterParam) Empty() bool { return len(f.Items) == 0 }

// EncodeFilter serialises f as unpadded base64url JSON.
func EncodeFilter(f FilterParam) (string, error) {
	raw, err := json.Marshal(f)
	if err != nil {
		return "", fmt.Errorf("urlstate: encode filter: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// DecodeFilter parses a blob produced by EncodeFilter. Padded input is
// accepted.
func DecodeFilter(s string) (FilterParam, error) {
	var f FilterParam
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
	if err != nil {
		return f, fmt.Errorf("urlstate: decode filter: %w", err)
	}
	if err := json.Unmarshal(raw, &f); err != nil {
		return f, fmt.Errorf("urlstate: decode filter json: %w", err)
	}
	return f, nil
}

// FilterFrom converts a record value to a FilterParam. It accepts a
// FilterParam, a decoded JSON object or an encoded blob.
func FilterFrom(v any) (FilterParam, bool) {
	switch f := v.(type) {
	case FilterParam:
		return f, !f.Empty()
	case *FilterParam:
		if f == nil {
			return FilterParam{}, false
		}
		return *f, !f.Empty()
	case string:
		if f == "" {
			return FilterParam{}, false
		}
		fp, err := DecodeFilter(f)
		return fp, err == nil && !fp.Empty()
	case map[string]any:
		raw, err := json.Marshal(f)
		if err != nil {
			return FilterParam{}, false
		}
		var fp FilterParam
		if json.Unmarshal(raw, &fp) != nil {
			return FilterParam{}, false
		}
		return fp, !fp.Empty()
	}
	return FilterParam{}, false
}

// ViewParams encodes ad-hoc view parameters onto q: "filter" as a blob,
// option lists as comma-joined values, option objects by their value, other
// scalars as text. Empty values are skipped.
func ViewParams(q url.Values, params map[string]any) url.Values {
	out := Clone(q)
	for k, v := range params {
		if k == FilterKey {
			if f, ok := FilterFrom(v); ok {
				if s, err := EncodeFilter(f); err == nil {
					out.Set(k, s)
				}
			}
			continue
		}
		if s := paramValue(v); s != "" {
			out.Set(k, s)
		}
	}
	return out
}

func paramValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case []any:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			if s := paramValue(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ",")
	case []string:
		return strings.Join(val, ",")
	case map[string]any:
		return model.Stringify(val["value"])
	}
	return model.Stringify(v)
}

// Params flattens q into a template/request parameter map; repeated keys keep
// their first value.
func Params(q url.Values) map[string]any {
	out := make(map[string]any, len(q))
	for k, v := range q {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}
