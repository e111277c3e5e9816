package server

import (
	"net/http"
	"strings"

	"github.com/GoCodeAlone/pageview/notify"
	"github.com/GoCodeAlone/pageview/render"
)

// liveScript reloads the page when the store of its host changes. Effects are
// what operations write, data changes follow the fetches they trigger.
const liveScript = `(function(){
var root=document.querySelector("[data-live]");
if(!root||!window.WebSocket)return;
var u=new URL(root.getAttribute("data-live"),location.href);
u.protocol=u.protocol==="https:"?"wss:":"ws:";
var ws=new WebSocket(u);
ws.onmessage=function(e){
var c=JSON.parse(e.data);
if(c.kind==="effects"||c.kind==="data")location.reload();
};
})();`

// document wraps a rendered page in the HTML shell: pending notices first,
// then the page, then the live reload hook.
func document(title, liveURL string, notices []notify.Notice, page *render.Node) *render.Node {
	body := render.Element("body").Set("data-live", liveURL)
	if len(notices) > 0 {
		list := render.Element("ul").Class("pv-notices").Set("aria-live", "polite")
		for _, n := range notices {
			list.Append(render.Element("li", render.Text(n.Message)).
				Class("pv-notice", "pv-notice-"+string(n.Level)).
				WithKey(n.ID))
		}
		body.Append(list)
	}
	body.Append(page)
	if liveURL != "" {
		body.Append(render.Element("script", render.Text(liveScript)))
	}

	return render.Element("html",
		render.Element("head",
			render.Element("meta").Set("charset", "utf-8"),
			render.Element("meta").Set("name", "viewport").Set("content", "width=device-width, initial-scale=1"),
			render.Element("title", render.Text(title)),
		),
		body,
	).Set("lang", "en")
}

func writeDocument(w http.ResponseWriter, status int, doc *render.Node) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte("<!DOCTYPE html>\n"))
	_ = render.WriteHTML(w, doc)
}

func pageTitle(route string) string {
	route = strings.Trim(route, "/")
	if route == "" {
		return "Home"
	}
	return route
}
