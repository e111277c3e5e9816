package renderers

import (
	"strconv"

	"github.com/GoCodeAlone/pageview/builder"
	"github.com/GoCodeAlone/pageview/render"
)

// Drawer renders its children in a side panel. The close control posts a
// close request for the enclosing page view.
func Drawer(caps *builder.Capabilities, p builder.Props) *render.Node {
	vo := p.VO
	dir := vo.String("direction")
	if dir == "" {
		dir = "right"
	}
	size := vo.Int("defaultSize", 400)
	size = min(max(size, vo.Int("minSize", 200)), vo.Int("maxSize", 800))

	header := render.Element("div",
		render.Element("div",
			heading("h3", vo.String("title")),
			descText(vo.String("desc")),
		),
		closeButton(caps),
	).Class("pv-drawer-header")

	return render.Element("aside",
		header,
		render.Element("div", caps.Builder.Children(caps, p)...).Class("pv-drawer-body"),
	).Class("pv-drawer", "pv-drawer-"+dir, vo.ClassName()).
		Set("data-size", strconv.Itoa(size)).
		Set("data-container", caps.Container)
}

// Dialog renders its children in a modal. sizeMode is one of auto, fixed,
// max, min or fullscreen.
func Dialog(caps *builder.Capabilities, p builder.Props) *render.Node {
	vo := p.VO
	mode := vo.String("sizeMode")
	if mode == "" {
		mode = "auto"
	}
	header := render.Element("div",
		heading("h3", vo.String("title")),
		descText(vo.String("desc")),
		closeButton(caps),
	).Class("pv-dialog-header")

	n := render.Element("dialog",
		header,
		render.Element("div", caps.Builder.Children(caps, p)...).Class("pv-dialog-body"),
	).Set("open", "open").Class("pv-dialog", "pv-dialog-"+mode, vo.ClassName())
	if style := dialogStyle(vo.String("width"), vo.String("height"), mode); style != "" {
		n.Set("style", style)
	}
	return n
}

func dialogStyle(width, height, mode string) string {
	if mode != "fixed" {
		return ""
	}
	px := func(v string) string {
		if _, err := strconv.Atoi(v); err == nil {
			return v + "px"
		}
		return v
	}
	style := ""
	if width != "" {
		style += "width:" + px(width) + ";"
	}
	if height != "" {
		style += "height:" + px(height) + ";"
	}
	return style
}

func descText(s string) *render.Node {
	if s == "" {
		return nil
	}
	return render.Element("p", render.Text(s)).Class("pv-desc")
}
