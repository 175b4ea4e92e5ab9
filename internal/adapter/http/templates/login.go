package templates

import (
	"context"

	"github.com/a-h/templ"
)

func Login(errMsg, csrfToken string) templ.Component {
	return layout("Sign in", csrfToken, component(func(ctx context.Context, p *page) {
		p.raw(`<main class="login"><h1>Sign in</h1>`)
		if errMsg != "" {
			p.raw(`<p class="error" role="alert">`)
			p.text(errMsg)
			p.raw(`</p>`)
		}
		p.raw(`<form method="post" action="/login"><input type="hidden" name="csrf_token" value="`)
		p.text(csrfToken)
		p.raw(`"><label>Username<input name="username" autocomplete="username" required></label>`)
		p.raw(`<label>Password<input name="password" type="password" autocomplete="current-password" required></label>`)
		p.raw(`<button type="submit">Sign in</button></form></main>`)
	}))
}
