package templates

import (
	"context"

	"github.com/a-h/templ"

	"github.com/dbarberos/APS-Integration-demoBIM-sub001/internal/domain"
)

// Dashboard lists recent jobs; rows refresh from the /events stream.
func Dashboard(jobs []*domain.TranslationJob, user, csrfToken string) templ.Component {
	return layout("Translations", csrfToken, component(func(ctx context.Context, p *page) {
		p.raw(`<header><h1>Translations</h1><p>Signed in as `)
		p.text(user)
		p.raw(` <form class="inline" method="post" action="/logout"><input type="hidden" name="csrf_token" value="`)
		p.text(csrfToken)
		p.raw(`"><button type="submit">Sign out</button></form></p></header>`)

		if len(jobs) == 0 {
			p.raw(`<p id="empty">No translation jobs yet.</p>`)
		}
		p.raw(`<table><thead><tr><th>Job</th><th>Source</th><th>Outputs</th><th>State</th><th>Progress</th><th>Updated</th><th></th></tr></thead><tbody id="jobs">`)
		for _, job := range jobs {
			p.render(ctx, JobRow(job))
		}
		p.raw(`</tbody></table><script>`)
		p.raw(dashboardScript)
		p.raw(`</script>`)
	}))
}

// JobRow renders one dashboard row, id "job-<id>".
func JobRow(job *domain.TranslationJob) templ.Component {
	return component(func(ctx context.Context, p *page) {
		p.raw(`<tr id="job-`)
		p.text(job.ID)
		p.raw(`" data-version="`)
		p.textf("%d", job.Version)
		p.raw(`"><td><code>`)
		p.text(shortID(job.ID))
		p.raw(`</code>`)
		if job.RetryOf != "" {
			p.raw(` <small>retry of `)
			p.text(shortID(job.RetryOf))
			p.raw(`</small>`)
		}
		p.raw(`</td><td>`)
		p.text(job.SourceReference)
		p.raw(`</td><td>`)
		for i, o := range job.RequestedOutputs {
			if i > 0 {
				p.raw(", ")
			}
			p.text(o.Format)
		}
		p.raw(`</td><td class="state state-`)
		p.text(string(job.State))
		p.raw(`">`)
		p.text(string(job.State))
		if job.ErrorDetail != nil {
			p.raw(`<div class="error">`)
			p.text(job.ErrorDetail.Code)
			if job.ErrorDetail.Message != "" {
				p.raw(": ")
				p.text(job.ErrorDetail.Message)
			}
			p.raw(`</div>`)
		}
		p.raw(`</td><td><progress max="100" value="`)
		p.textf("%d", job.ProgressPercent)
		p.raw(`"></progress> `)
		p.textf("%d%%", job.ProgressPercent)
		p.raw(`</td><td>`)
		p.text(job.UpdatedAt.UTC().Format("2006-01-02 15:04:05"))
		p.raw(`</td><td>`)
		switch {
		case !job.State.IsTerminal():
			actionButton(p, job.ID, "cancel", "Cancel")
		case job.State.Retryable():
			actionButton(p, job.ID, "retry", "Retry")
		}
		p.raw(`</td></tr>`)
	})
}

func actionButton(p *page, id, action, label string) {
	p.raw(`<button type="button" data-job="`)
	p.text(id)
	p.raw(`" data-action="`)
	p.text(action)
	p.raw(`">`)
	p.text(label)
	p.raw(`</button>`)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// dashboardScript re-fetches the row fragment for every notification and
// posts cancel/retry with the CSRF header.
const dashboardScript = `(function(){
var csrf=document.querySelector('meta[name="csrf-token"]').content;
function refresh(id,version){
  var row=document.getElementById('job-'+id);
  if(row&&version&&Number(row.dataset.version)>=version)return;
  fetch('/translations/'+encodeURIComponent(id)+'/row',{credentials:'same-origin'}).then(function(r){
    if(!r.ok)return;
    return r.text().then(function(html){
      var t=document.createElement('tbody');t.innerHTML=html;
      var fresh=t.firstElementChild;if(!fresh)return;
      var cur=document.getElementById('job-'+id);
      if(cur){cur.replaceWith(fresh);}else{document.getElementById('jobs').prepend(fresh);var e=document.getElementById('empty');if(e)e.remove();}
    });
  });
}
new EventSource('/events').addEventListener('job',function(e){var n=JSON.parse(e.data);refresh(n.jobId,n.version);});
document.addEventListener('click',function(e){
  var b=e.target.closest('button[data-action]');if(!b)return;
  fetch('/translations/'+encodeURIComponent(b.dataset.job)+'/'+b.dataset.action,{method:'POST',credentials:'same-origin',headers:{'X-CSRF-Token':csrf}})
    .then(function(r){return r.json();}).then(function(j){if(j&&j.id)refresh(j.id);});
});
})();`
