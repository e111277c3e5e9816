package renderers

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/GoCodeAlone/pageview/builder"
	"github.com/GoCodeAlone/pageview/model"
	"github.com/GoCodeAlone/pageview/pagestore"
	"github.com/GoCodeAlone/pageview/render"
	"github.com/GoCodeAlone/pageview/urlstate"
)

// TableView renders a paginated list fetched from the view api.
//
// Rows are fetched whenever the api URL, the page, the page size, the filter
// set or the effects stamp of the view change, and kept in the store bucket
// of the view. The total row count lives in view state "<bucket>#total".
func TableView(caps *builder.Capabilities, p builder.Props) *render.Node {
	vo := p.VO
	bucket := bucketID(caps, p)
	t := table(caps, vo)
	cols := tableColumns(t, vo)

	pg := urlstate.PaginationFrom(caps.Query)
	q := tableQuery(caps, pg)
	params := urlstate.Params(q)

	var dict model.MappingDict
	if api := vo.String("api"); api != "" {
		apiURL := caps.Engine.Evaluate(api, caps.Params())
		deps := fmt.Sprintf("%s?%s|%d.%d", apiURL, q.Encode(), caps.Store.Effect(bucket), caps.Store.Effect(caps.View.ID))
		caps.FetchOnce(bucket, deps, func(ctx context.Context) error {
			return fetchRows(ctx, caps, bucket, apiURL, params)
		})
		dict = loadDict(caps, bucket, t, params, deps)
	}

	raw, _ := caps.Store.Data(bucket)
	rows := model.AsViewObjects(raw)
	total := toInt(caps.Store.ViewState(bucket + "#total"))

	out := render.Element("div", tableToolBar(caps, vo, t, dict)).Class("pv-table-view", vo.ClassName())
	out.Append(render.Element("table",
		render.Element("thead", tableHeader(cols)),
		tableBody(caps, vo, cols, rows, dict),
	).Class("pv-table"))
	if foot := vo.Child("tableFoot"); foot == nil || !foot.Has("show") || foot.Bool("show") {
		out.Append(pagination(caps, foot, pg, len(rows), total))
	}
	return out
}

// tableColumns merges tableBody.children with the table fields, or uses every
// field when no body is declared.
func tableColumns(t *model.DataTable, vo model.ViewObject) []model.ViewObject {
	body := vo.Child("tableBody").Children()
	if len(body) == 0 {
		return fieldColumns(t)
	}
	out := make([]model.ViewObject, 0, len(body))
	for _, col := range body {
		out = append(out, mergeField(t, col))
	}
	return out
}

// tableQuery is the request query with pagination applied and the filter of
// the current record, if any, replacing the one in the URL.
func tableQuery(caps *builder.Capabilities, pg urlstate.Pagination) url.Values {
	q := pg.Apply(caps.Query)
	if v, ok := caps.Record[urlstate.FilterKey]; ok {
		q.Del(urlstate.FilterKey)
		q = urlstate.ViewParams(q, map[string]any{urlstate.FilterKey: v})
	}
	return q
}

// fetchRows loads one page of rows into bucket and its total into view
// state, through the store so a slower, older request cannot overwrite a
// newer one.
func fetchRows(ctx context.Context, caps *builder.Capabilities, bucket, apiURL string, params map[string]any) error {
	if caps.Client == nil {
		return fmt.Errorf("no backend client for %s", apiURL)
	}
	return caps.Store.FetchData(ctx, bucket, apiURL, params,
		pagestore.WithGetter(caps.Client),
		pagestore.WithTransform(func(payload any) (any, map[string]any) {
			page, _ := payload.(map[string]any)
			content, _ := page["content"].([]any)
			if content == nil {
				content = []any{}
			}
			return content, map[string]any{bucket + "#total": toInt(page["totalElements"])}
		}),
	)
}

func tableHeader(cols []model.ViewObject) *render.Node {
	tr := render.Element("tr")
	for _, col := range cols {
		th := render.Element("th").Set("data-fixed", col.String("fixed")).Set("data-width", col.String("width"))
		if col.ID() == checkColumn {
			th.Append(render.Element("input").Set("type", "checkbox").Class("pv-check-all"))
		} else {
			th.Append(render.Text(col.String("label")))
		}
		tr.Append(th.WithKey(col.ID()))
	}
	return tr
}

func tableBody(caps *builder.Capabilities, vo model.ViewObject, cols []model.ViewObject, rows []model.ViewObject, dict model.MappingDict) *render.Node {
	tbody := render.Element("tbody")
	if len(rows) == 0 {
		return tbody.Append(render.Element("tr",
			render.Element("td", render.Text("No data")).
				Set("colspan", strconv.Itoa(max(len(cols), 1))).
				Class("pv-empty"),
		))
	}
	rowKey := vo.String("rowKey")
	if rowKey == "" {
		rowKey = "id"
	}
	for _, row := range rows {
		rowID := row.String(rowKey)
		tr := render.Element("tr").WithKey(rowID)
		for _, col := range cols {
			td := render.Element("td").Set("data-fixed", col.String("fixed"))
			switch col.ID() {
			case checkColumn:
				td.Append(render.Element("input").
					Set("type", "checkbox").
					Set("name", SelectedField).
					Set("value", rowID))
			case oprColumn:
				for _, opID := range model.SplitList(col.String("components")) {
					op := caps.Model.Operation(opID)
					if op == nil {
						continue
					}
					fallback := "secondary"
					if op.Level == "danger" {
						fallback = "destructive"
					}
					td.Append(operationButton(caps, op, nil, map[string]any(row), fallback, "pv-btn-sm"))
				}
				td.Class("pv-opr")
			default:
				td.Append(cell(row[col.ID()], col, dict))
			}
			tr.Append(td)
		}
		tbody.Append(tr)
	}
	return tbody
}

func tableToolBar(caps *builder.Capabilities, vo model.ViewObject, t *model.DataTable, dict model.MappingDict) *render.Node {
	bar := vo.Child("toolBar")
	if bar == nil {
		return nil
	}
	left := render.Element("div").Class("pv-toolbar-left")
	if l := bar.Child("left"); l != nil {
		left.Append(actionButtons(caps, l, "actions", nil, "outline")...)
		left.Append(moreMenu(actionButtons(caps, l, "actionMore", nil, "ghost")))
	}
	right := render.Element("div").Class("pv-toolbar-right")
	if r := bar.Child("right"); r != nil {
		right.Append(queryFilters(caps, r, t, dict))
	}
	return render.Element("div", left, right).Class("pv-toolbar")
}

// moreMenu folds overflow actions into a disclosure element.
func moreMenu(items []*render.Node) *render.Node {
	if len(items) == 0 {
		return nil
	}
	return render.Element("details",
		render.Element("summary", render.Text("...")).Class("pv-btn", "pv-btn-outline"),
		render.Element("div", items...).Class("pv-menu"),
	).Class("pv-more")
}

// queryFilters renders ad-hoc filter inputs as a GET form: submitted values
// become query parameters of the page and are forwarded to the api.
func queryFilters(caps *builder.Capabilities, bar model.ViewObject, t *model.DataTable, dict model.MappingDict) *render.Node {
	form := render.Element("form").Set("method", "get").Set("action", PageURL(caps, nil)).Class("pv-query-filters")
	current := urlstate.Params(caps.Query)
	for _, child := range bar.Children() {
		f := mergeField(t, child)
		if f.ID() == "" {
			continue
		}
		form.Append(editElement(current, f, dict).Set("name", f.ID()).WithKey(f.ID()))
	}
	form.Append(
		hidden(urlstate.PageKey, "1"),
		hidden(urlstate.SizeKey, caps.Query.Get(urlstate.SizeKey)),
		render.Element("button", render.Text("Search")).Set("type", "submit").Class("pv-btn", "pv-btn-outline"),
	)
	return form
}

func pagination(caps *builder.Capabilities, foot model.ViewObject, pg urlstate.Pagination, count, total int) *render.Node {
	pages := pg.Pages(total)
	link := func(text string, page int, enabled bool) *render.Node {
		if !enabled {
			return render.Element("span", render.Text(text)).Class("pv-btn", "pv-btn-outline", "pv-disabled")
		}
		target := urlstate.Pagination{Page: page, Size: pg.Size}
		return render.Element("a", render.Text(text)).
			Set("href", PageURL(caps, target.Apply(caps.Query))).
			Class("pv-btn", "pv-btn-outline")
	}

	out := render.Element("div",
		render.Element("span", render.Text(fmt.Sprintf("%d/%d page", pg.Page, pages))).Class("pv-page-info"),
		render.Element("span", render.Text(fmt.Sprintf("%d rows / %d total", count, total))).Class("pv-page-count"),
		link("‹", pg.Page-1, pg.Page > 1),
		link("›", pg.Page+1, pg.Page < pages),
	).Class("pv-pagination")

	if sizes := model.SplitList(foot.String("switchPage")); len(sizes) > 0 {
		sel := render.Element("span").Class("pv-page-sizes")
		for _, s := range sizes {
			n, err := strconv.Atoi(s)
			if err != nil || n <= 0 {
				continue
			}
			a := link(s, 1, true)
			a.Set("href", PageURL(caps, urlstate.Pagination{Page: 1, Size: n}.Apply(caps.Query)))
			if n == pg.Size {
				a.Class("pv-active")
			}
			sel.Append(a)
		}
		out.Append(sel)
	}
	return out
}

func toInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case string:
		i, _ := strconv.Atoi(n)
		return i
	}
	return 0
}
