package renderers

import (
	"strconv"

	"github.com/GoCodeAlone/pageview/builder"
	"github.com/GoCodeAlone/pageview/model"
	"github.com/GoCodeAlone/pageview/render"
)

// DashboardView renders a grid of cards bound to one store bucket, named by
// __data or the view id. Card headers are Title/Description elements bound
// against the bucket; content and footer children are built with it as data.
func DashboardView(caps *builder.Capabilities, p builder.Props) *render.Node {
	vo := p.VO
	name := vo.String("__data")
	if name == "" {
		name = bucketID(caps, p)
	}
	raw, _ := caps.Store.Data(name)
	data, _ := raw.(map[string]any)
	if data == nil {
		data = map[string]any{}
	}

	cols, rows := vo.String("cols"), vo.String("rows")
	if cols == "" {
		cols = "2"
	}
	if rows == "" {
		rows = "2"
	}
	grid := render.Element("div").Class("pv-dashboard", "grid", "grid-cols-"+cols, "grid-rows-"+rows, vo.ClassName())

	for idx, card := range vo.Children() {
		key := p.Key + ":" + strconv.Itoa(idx)
		n := render.Element("div", cardHeader(caps, card, data)).
			Class("pv-card", spanClass("col-span-", card.String("colSpan")), spanClass("row-span-", card.String("rowSpan"))).
			WithKey(key)
		if children := card.Children(); len(children) > 0 {
			content := render.Element("div").Class("pv-card-content")
			for i, ele := range children {
				content.Append(caps.Build(builder.Props{VO: ele, Data: data, Key: key + ":" + strconv.Itoa(i)}))
			}
			n.Append(content)
		}
		if footer := card.Child("footer"); footer != nil {
			foot := render.Element("div").Class("pv-card-footer", footer.ClassName())
			for i, ele := range footer.Children() {
				foot.Append(caps.Build(builder.Props{VO: ele, Data: data, Key: key + ":footer:" + strconv.Itoa(i)}))
			}
			n.Append(foot)
		}
		grid.Append(n)
	}
	return grid
}

func cardHeader(caps *builder.Capabilities, card model.ViewObject, data map[string]any) *render.Node {
	head := render.Element("div").Class("pv-card-header")
	header := card.Child("header")
	if header == nil {
		if title := card.String("title"); title != "" {
			head.Append(render.Element("div", render.Text(title)).Class("pv-card-description"))
		}
		return head
	}
	for _, ele := range header.Children() {
		vo := caps.Engine.TransformView(ele, data)
		var class string
		switch vo.Object() {
		case "Title":
			class = "pv-card-title"
		case "Description":
			class = "pv-card-description"
		default:
			continue
		}
		head.Append(render.Element("div", render.Text(vo.String("value"))).Class(class, vo.ClassName()))
	}
	return head
}

func spanClass(prefix, v string) string {
	if v == "" {
		return ""
	}
	return prefix + v
}
