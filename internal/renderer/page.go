package renderer

import (
	"context"
	"io"

	"github.com/a-h/templ"
)

// Panel is one region of the page, optionally shown as a tab.
type Panel struct {
	ID     string
	Label  string
	HTML   string
	Active bool
}

// PanelGroup is a tab container and its panels.
type PanelGroup struct {
	ID     string
	Panels []Panel
}

// PageData is the input of the Page component.
type PageData struct {
	Title  string
	Groups []PanelGroup
	// Loose holds regions that belong to no tab group.
	Loose []Panel
	// LiveReload adds a script that reloads the page when the server
	// announces a region change over /ws.
	LiveReload bool
}

// Page renders a full HTML document. Region markup is written verbatim, it
// has already been through the resolver. A nonce set with templ.WithNonce is
// added to the inline style and script.
func Page(data PageData) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		ew := &errWriter{w: w}
		nonce := nonceAttr(ctx)

		ew.write("<!DOCTYPE html>\n<html lang=\"en\"><head><meta charset=\"utf-8\"><title>")
		ew.write(templ.EscapeString(data.Title))
		ew.write(`</title><style` + nonce + `>`)
		ew.write(pageCSS)
		ew.write(`</style></head><body><main>`)

		for _, g := range data.Groups {
			ew.write(`<div class="tabs" id="`)
			ew.write(templ.EscapeString(g.ID))
			ew.write(`"><ul class="tab-nav">`)
			for _, p := range g.Panels {
				ew.write(`<li`)
				if p.Active {
					ew.write(` class="active"`)
				}
				ew.write(`><a href="#`)
				ew.write(templ.EscapeString(p.ID))
				ew.write(`">`)
				ew.write(templ.EscapeString(p.Label))
				ew.write(`</a></li>`)
			}
			ew.write(`</ul>`)
			for _, p := range g.Panels {
				writePanel(ew, p)
			}
			ew.write(`</div>`)
		}

		for _, p := range data.Loose {
			writePanel(ew, p)
		}

		ew.write(`</main>`)
		if data.LiveReload {
			ew.write(`<script` + nonce + `>`)
			ew.write(liveReloadScript)
		}
		ew.write("</body></html>\n")
		return ew.err
	})
}

func nonceAttr(ctx context.Context) string {
	if n := templ.GetNonce(ctx); n != "" {
		return ` nonce="` + templ.EscapeString(n) + `"`
	}
	return ""
}

func writePanel(ew *errWriter, p Panel) {
	ew.write(`<section class="tab-panel`)
	if p.Active {
		ew.write(` active`)
	}
	ew.write(`" id="`)
	ew.write(templ.EscapeString(p.ID))
	ew.write(`">`)
	ew.write(p.HTML)
	ew.write(`</section>`)
}

const pageCSS = `body{font-family:system-ui,sans-serif;margin:2rem;color:#222}` +
	`.tab-nav{display:flex;gap:.5rem;list-style:none;padding:0;border-bottom:1px solid #ccc}` +
	`.tab-nav li.active a{font-weight:600}` +
	`.tab-panel{padding:1rem 0}` +
	`.sp-table{border-collapse:collapse}` +
	`.sp-table th,.sp-table td{border:1px solid #ddd;padding:.25rem .5rem;text-align:left}`

const liveReloadScript = `
(function () {
  var ws = new WebSocket((location.protocol === 'https:' ? 'wss://' : 'ws://') + location.host + '/ws');
  ws.onmessage = function (event) {
    var msg = JSON.parse(event.data);
    if (msg.type === 'run_complete') { window.location.reload(); }
  };
})();
</script>`
