package renderers

import (
	"github.com/GoCodeAlone/pageview/builder"
	"github.com/GoCodeAlone/pageview/model"
	"github.com/GoCodeAlone/pageview/render"
)

// VBox stacks its children vertically.
func VBox(caps *builder.Capabilities, p builder.Props) *render.Node {
	return render.Element("div", caps.Builder.Children(caps, p)...).
		Class("flex", "flex-col", p.VO.ClassName())
}

// HBox lays its children out in a row.
func HBox(caps *builder.Capabilities, p builder.Props) *render.Node {
	return render.Element("div", caps.Builder.Children(caps, p)...).
		Class("flex", p.VO.ClassName())
}

// Text renders the value attribute.
func Text(_ *builder.Capabilities, p builder.Props) *render.Node {
	v := p.VO.String("value")
	if v == "" {
		return nil
	}
	return render.Text(v)
}

// Tab is a titled section.
func Tab(caps *builder.Capabilities, p builder.Props) *render.Node {
	return render.Element("section",
		heading("h4", p.VO.String("title")),
		render.Fragment(caps.Builder.Children(caps, p)...),
	).Class("pv-tab", p.VO.ClassName())
}

// TabLayout renders each child as a titled tab panel.
func TabLayout(caps *builder.Capabilities, p builder.Props) *render.Node {
	title := p.VO.Child("head").String("title")
	if title == "" {
		title = p.VO.String("name")
	}
	out := render.Element("div", heading("h4", title)).Class("pv-tab-layout", p.VO.ClassName())
	for idx, tab := range p.VO.Children() {
		key := builder.ChildKey(p.Key, idx, "tab")
		panel := render.Element("div", heading("h5", tab.String("title"))).
			Class("pv-tab-panel").WithKey(key)
		panel.Append(caps.Builder.Children(caps, builder.Props{VO: tab, Data: p.Data, Key: key})...)
		out.Append(panel)
	}
	return out
}

// SplitContainer renders its primary and second views side by side.
func SplitContainer(caps *builder.Capabilities, p builder.Props) *render.Node {
	dir := p.VO.String("direction")
	if dir == "" {
		dir = "horizontal"
	}
	pane := func(name, size string) *render.Node {
		vo := p.VO.Child(name)
		n := render.Element("div").Class("pv-split-pane").Set("data-size", size)
		if vo != nil {
			n.Append(caps.Build(builder.Props{VO: vo, Data: p.Data, Key: p.Key + "/" + name}))
		}
		return n
	}
	return render.Element("div", pane("primary", "15"), pane("second", "85")).
		Class("pv-split", "pv-split-"+dir, p.VO.ClassName()).
		Set("data-direction", dir)
}

func heading(tag, text string) *render.Node {
	if text == "" {
		return nil
	}
	return render.Element(tag, render.Text(text))
}

// bucketID is the store bucket a view reads: its declared id or the
// top-level view it belongs to.
func bucketID(caps *builder.Capabilities, p builder.Props) string {
	if id := p.BucketID(); id != "" {
		return id
	}
	return caps.View.ID
}

// table returns the data table a view refers to.
func table(caps *builder.Capabilities, vo model.ViewObject) *model.DataTable {
	return caps.Model.Table(vo.String("dataTable"))
}
