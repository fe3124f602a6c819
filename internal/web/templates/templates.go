// Package templates renders the HTML pages of the download service
package templates

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/a-h/templ"
	"github.com/dustin/go-humanize"

	"datastore-downloader/pkg/models"
)

// StatusView is everything the status page shows about a download
type StatusView struct {
	ID           string
	State        models.RequestState
	Message      string
	Format       string
	TotalRecords int64
	URL          string
	Created      time.Time
	Modified     time.Time
}

// Done reports whether the download has stopped, successfully or not
func (v StatusView) Done() bool {
	return v.State == models.StateComplete || v.State == models.StateFailed
}

// Base wraps a page body in the site layout
func Base(title string, body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := io.WriteString(w, `<!DOCTYPE html><html lang="en"><head><meta charset="utf-8">`+
			`<meta name="viewport" content="width=device-width, initial-scale=1">`+
			`<title>`+templ.EscapeString(title)+`</title></head><body><main>`); err != nil {
			return err
		}
		if err := body.Render(ctx, w); err != nil {
			return err
		}
		_, err := io.WriteString(w, `</main></body></html>`)
		return err
	})
}

// Status renders the progress of one download. Unfinished downloads refresh themselves.
func Status(v StatusView) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var html string
		if !v.Done() {
			html += `<meta http-equiv="refresh" content="5">`
		}
		html += `<h1>Download ` + templ.EscapeString(v.ID) + `</h1>`
		html += `<dl class="status">`
		html += row("State", string(v.State))
		if v.Format != "" {
			html += row("Format", v.Format)
		}
		if v.TotalRecords > 0 {
			html += row("Records", humanize.Comma(v.TotalRecords))
		}
		if v.Message != "" {
			html += row("Message", v.Message)
		}
		html += row("Requested", humanize.Time(v.Created))
		html += row("Updated", humanize.Time(v.Modified))
		html += `</dl>`

		switch {
		case v.State == models.StateComplete && v.URL != "":
			html += fmt.Sprintf(`<p><a class="download" href="%s">Download</a></p>`,
				templ.EscapeString(string(templ.URL(v.URL))))
		case v.State == models.StateFailed:
			html += `<p class="error">This download failed.</p>`
		}

		_, err := io.WriteString(w, html)
		return err
	})
}

func row(label, value string) string {
	return `<dt>` + templ.EscapeString(label) + `</dt><dd>` + templ.EscapeString(value) + `</dd>`
}
