package web

import (
	"bytes"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/yuin/goldmark"
	goldmarkHTML "github.com/yuin/goldmark/renderer/html"

	"campus/internal/domain/access"
	"campus/internal/domain/identity"
	"campus/internal/domain/program"
)

// mdRenderer is a goldmark instance configured for safe HTML output.
// Raw HTML in markdown input is escaped (WithUnsafe is NOT set), preventing XSS.
var mdRenderer = goldmark.New(
	goldmark.WithRendererOptions(
		goldmarkHTML.WithHardWraps(),
	),
)

// renderMarkdown converts trusted remediation copy to HTML.
func renderMarkdown(md string) template.HTML {
	var buf bytes.Buffer
	if err := mdRenderer.Convert([]byte(md), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(md))
	}
	return template.HTML(buf.String())
}

// remediationCopy maps each denied guard outcome to its remediation text.
// Authored as markdown and rendered through mdRenderer on the blocking views.
var remediationCopy = map[string]string{
	access.OutcomeRoleDenied: `Your account's role does not include this area of the console.

If you believe you need it, ask a **program administrator** to adjust your role.`,
	access.OutcomeProgramSelectionRequired: `This page shows data for one program at a time.

Pick a program below to continue. You can switch at any moment from the program menu.`,
	access.OutcomeNoProgramAccess: `Your account is not assigned to any program yet, so there is no data to show.

Ask a **program administrator** to assign you to a program, then sign in again.`,
}

const layoutTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}} | Campus Console</title>
</head>
<body>
<header>
  <strong>Campus Console</strong>
  {{if .User}}
  <nav>
    <span>{{.User.Email}} ({{.User.Role}})</span>
    {{if .CurrentProgram}}<span>program: {{.CurrentProgram.Name}}</span>{{end}}
    <form method="POST" action="/logout">{{.CSRFField}}<button type="submit">Sign out</button></form>
  </nav>
  {{end}}
</header>
<main>
{{template "content" .}}
</main>
</body>
</html>`

const loginTemplate = `{{define "content"}}
<h1>Sign in</h1>
{{if .Error}}<p role="alert">{{.Error}}</p>{{end}}
<form method="POST" action="/login">
  {{.CSRFField}}
  <input type="hidden" name="ReturnTo" value="{{.ReturnTo}}">
  <label>Email <input type="email" name="Email" required></label>
  <label>Password <input type="password" name="Password" required></label>
  <button type="submit">Sign in</button>
</form>
{{end}}`

const selectProgramTemplate = `{{define "content"}}
<h1>Select a program</h1>
{{if .Remediation}}<div>{{.Remediation}}</div>{{end}}
{{if .Error}}<p role="alert">{{.Error}}</p>{{end}}
<form method="POST" action="/select-program">
  {{.CSRFField}}
  <input type="hidden" name="ReturnTo" value="{{.ReturnTo}}">
  <ul>
  {{range .Programs}}
    <li>
      <button type="submit" name="ProgramID" value="{{.ID}}">{{.Name}} ({{.Code}})</button>
      {{if ne .Status "active"}}<em>{{.Status}}</em>{{end}}
    </li>
  {{end}}
  </ul>
</form>
<form method="POST" action="/programs/refresh">
  {{.CSRFField}}
  <button type="submit">Refresh list</button>
</form>
{{end}}`

const deniedTemplate = `{{define "content"}}
<h1>Access denied</h1>
<p>{{.Reason}}</p>
{{if .Remediation}}<div>{{.Remediation}}</div>{{end}}
{{end}}`

const errorTemplate = `{{define "content"}}
<h1>Something went wrong</h1>
<p>{{.Error}}</p>
<form method="POST" action="/programs/refresh">
  {{.CSRFField}}
  <button type="submit">Try again</button>
</form>
{{end}}`

const pageTemplate = `{{define "content"}}
<h1>{{.Title}}</h1>
{{if .CurrentProgram}}<p>Scoped to <strong>{{.CurrentProgram.Name}}</strong>.</p>{{end}}
{{end}}`

// pageData feeds the layout and page templates.
type pageData struct {
	Title          string
	User           *identity.User
	CurrentProgram *program.Program
	Programs       []program.Program
	Error          string
	Reason         string
	Remediation    template.HTML
	ReturnTo       string
	CSRFField      template.HTML
}

var pageTemplates = map[string]*template.Template{}

func init() {
	pages := map[string]string{
		"login":          loginTemplate,
		"select_program": selectProgramTemplate,
		"denied":         deniedTemplate,
		"error":          errorTemplate,
		"page":           pageTemplate,
	}
	for name, content := range pages {
		tpl := template.Must(template.New("layout").Parse(layoutTemplate))
		template.Must(tpl.Parse(content))
		pageTemplates[name] = tpl
	}
}

// renderPage writes a page through the layout.
func renderPage(w http.ResponseWriter, status int, name string, data pageData) {
	tpl, ok := pageTemplates[name]
	if !ok {
		http.Error(w, "unknown template", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := tpl.Execute(w, data); err != nil {
		slog.Error("template_error", "template", name, "error", err.Error())
	}
}
