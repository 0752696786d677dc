package notify

import (
	"html/template"
	"regexp"
	"strings"
)

// Markdown-lite conversion for the agent's response text. The agent emits
// headings, bold/italic, links and dash bullets; anything fancier survives
// as plain text. The result is sanitized before it reaches the template.
var (
	reHeading = regexp.MustCompile(`(?m)^## (.+)$`)
	reBold    = regexp.MustCompile(`\*\*(.+?)\*\*`)
	reItalic  = regexp.MustCompile(`\*(.+?)\*`)
	reLink    = regexp.MustCompile(`\[([^\]]+)\]\(([^)\s]+)\)`)
)

func (m *Mailer) responseHTML(response string) template.HTML {
	s := reHeading.ReplaceAllString(response, "<h2>$1</h2>")
	s = reBold.ReplaceAllString(s, "<strong>$1</strong>")
	s = reItalic.ReplaceAllString(s, "<em>$1</em>")
	s = reLink.ReplaceAllString(s, `<a href="$2">$1</a>`)
	s = strings.ReplaceAll(s, "\n- ", "<br>• ")
	s = strings.ReplaceAll(s, "\n\n", "<br><br>")
	s = strings.ReplaceAll(s, "\n", "<br>")
	return template.HTML(m.policy.Sanitize(s))
}

var alertTmpl = template.Must(template.New("alert").Parse(`<!DOCTYPE html>
<html><head><meta charset="utf-8"><meta name="viewport" content="width=device-width, initial-scale=1.0"></head>
<body style="margin:0;padding:0;font-family:-apple-system,'Segoe UI',Roboto,Arial,sans-serif;background:#f9f9f9">
<table width="100%" cellpadding="0" cellspacing="0" style="background:#f9f9f9;padding:40px 20px"><tr><td align="center">
<table width="600" cellpadding="0" cellspacing="0" style="background:#fff;border-radius:8px;overflow:hidden">
<tr><td style="background:#ff4c00;padding:30px 40px;text-align:center">
<h1 style="margin:0;color:#fff;font-size:24px">Scout Alert</h1></td></tr>
<tr><td style="padding:40px">
<p style="margin:0 0 20px 0;color:#262626;font-size:16px">Your scout <strong>{{.Title}}</strong> found something interesting!</p>
<div style="background:#f9f9f9;border-left:4px solid #ff4c00;padding:20px;margin:20px 0">
<p style="margin:0 0 8px 0;color:#262626;font-size:14px"><strong>Goal:</strong> {{.Goal}}</p>
{{- if .City}}
<p style="margin:0;color:#262626;font-size:14px"><strong>Location:</strong> {{.City}}</p>
{{- end}}
</div>
<div style="margin:30px 0;color:#262626;font-size:15px;line-height:1.6">{{.Body}}</div>
<div style="margin-top:30px;padding-top:30px;border-top:1px solid #e5e5e5">
<a href="{{.Dashboard}}" style="display:inline-block;background:#ff4c00;color:#fff;text-decoration:none;padding:12px 30px;border-radius:6px;font-weight:600;font-size:14px">View in Open Scouts</a>
</div></td></tr>
<tr><td style="background:#f9f9f9;padding:30px 40px;text-align:center;border-top:1px solid #e5e5e5">
<p style="margin:0;color:#999;font-size:13px">You're receiving this because you have active scouts.
<a href="{{.Dashboard}}" style="color:#ff4c00;text-decoration:none">View your scouts</a></p>
</td></tr></table></td></tr></table></body></html>`))

type alertView struct {
	Title     string
	Goal      string
	City      string
	Body      template.HTML
	Dashboard string
}

func (m *Mailer) renderAlert(a Alert) (string, error) {
	var buf strings.Builder
	err := alertTmpl.Execute(&buf, alertView{
		Title:     a.ScoutTitle,
		Goal:      a.Goal,
		City:      a.City,
		Body:      m.responseHTML(a.Response),
		Dashboard: m.cfg.DashboardURL,
	})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}
