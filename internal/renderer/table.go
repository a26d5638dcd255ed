package renderer

import (
	"context"
	"io"
	"strconv"
	"sync"

	"github.com/a-h/templ"
	"github.com/microcosm-cc/bluemonday"

	"github.com/conneroisu/sectionloader/internal/types"
)

// TableData is the input of the Table component.
type TableData struct {
	ID      string
	Source  string
	Columns []types.Column
	Rows    []types.Row
}

var defaultPolicy = sync.OnceValue(bluemonday.UGCPolicy)

// Table renders rows as an HTML table. Header labels are escaped; cell
// content is sanitized with policy so list authors can keep basic
// formatting. A nil policy means bluemonday.UGCPolicy.
func Table(data TableData, policy *bluemonday.Policy) templ.Component {
	if policy == nil {
		policy = defaultPolicy()
	}
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		ew := &errWriter{w: w}

		if len(data.Rows) == 0 {
			ew.write(`<p class="sp-table-empty" data-source="`)
			ew.write(templ.EscapeString(data.Source))
			ew.write(`">No items found.</p>`)
			return ew.err
		}

		ew.write(`<table class="sp-table" id="`)
		ew.write(templ.EscapeString(data.ID))
		ew.write(`" data-source="`)
		ew.write(templ.EscapeString(data.Source))
		ew.write(`" data-rows="`)
		ew.write(strconv.Itoa(len(data.Rows)))
		ew.write(`"><thead><tr>`)
		for _, c := range data.Columns {
			ew.write(`<th scope="col">`)
			ew.write(templ.EscapeString(c.Label()))
			ew.write(`</th>`)
		}
		ew.write(`</tr></thead><tbody>`)
		for _, row := range data.Rows {
			ew.write(`<tr>`)
			for _, c := range data.Columns {
				ew.write(`<td>`)
				ew.write(policy.Sanitize(row[c.Name]))
				ew.write(`</td>`)
			}
			ew.write(`</tr>`)
		}
		ew.write(`</tbody></table>`)
		return ew.err
	})
}

// errWriter remembers the first write error and skips later writes.
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) write(s string) {
	if e.err != nil {
		return
	}
	_, e.err = io.WriteString(e.w, s)
}
