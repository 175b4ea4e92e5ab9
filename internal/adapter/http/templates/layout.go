// Package templates renders the operator dashboard as templ components.
package templates

import (
	"context"
	"fmt"
	"io"

	"github.com/a-h/templ"
)

// page collects the first write error so components can emit markup
// without checking every call.
type page struct {
	w   io.Writer
	err error
}

func (p *page) raw(s string) {
	if p.err == nil {
		_, p.err = io.WriteString(p.w, s)
	}
}

func (p *page) text(s string) {
	p.raw(templ.EscapeString(s))
}

func (p *page) textf(format string, args ...any) {
	p.text(fmt.Sprintf(format, args...))
}

func (p *page) render(ctx context.Context, c templ.Component) {
	if p.err == nil {
		p.err = c.Render(ctx, p.w)
	}
}

func component(body func(ctx context.Context, p *page)) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		p := &page{w: w}
		body(ctx, p)
		return p.err
	})
}

func layout(title, csrfToken string, content templ.Component) templ.Component {
	return component(func(ctx context.Context, p *page) {
		p.raw(`<!DOCTYPE html><html lang="en"><head><meta charset="utf-8">`)
		p.raw(`<meta name="viewport" content="width=device-width, initial-scale=1">`)
		p.raw(`<meta name="csrf-token" content="`)
		p.text(csrfToken)
		p.raw(`"><title>`)
		p.text(title)
		p.raw(`</title><style>`)
		p.raw(stylesheet)
		p.raw(`</style></head><body>`)
		p.render(ctx, content)
		p.raw(`</body></html>`)
	})
}

const stylesheet = `body{font-family:system-ui,sans-serif;margin:2rem;color:#1d1d1f}
table{border-collapse:collapse;width:100%}th,td{text-align:left;padding:.4rem .6rem;border-bottom:1px solid #ddd}
.state{font-weight:600}.state-succeeded{color:#1a7f37}.state-failed,.state-timedout{color:#cf222e}.state-cancelled{color:#6e7781}
progress{width:8rem}.error{color:#cf222e}form.inline{display:inline}
.login{max-width:20rem;margin:4rem auto}.login input{display:block;width:100%;margin:.4rem 0 1rem}`
