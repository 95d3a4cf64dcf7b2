package utils

import (
	"bytes"
	"fmt"
	"html/template"
)

var emailTemplates = template.Must(template.New("email").Parse(`
{{define "base"}}<!doctype html>
<html><body style="font-family:sans-serif">
<p>Hi {{.Name}},</p>
{{template "content" .}}
{{if .Link}}<p><a href="{{.Link}}">{{.Link}}</a></p>{{end}}
<p>The Volunteer Hub team</p>
</body></html>{{end}}

{{define "content"}}{{range .Lines}}<p>{{.}}</p>{{end}}{{end}}
`))

// EmailData feeds the HTML email layout. Each line becomes one paragraph.
type EmailData struct {
	Name  string
	Lines []string
	Link  string
}

// RenderEmail renders the standard HTML layout.
func RenderEmail(data EmailData) (string, error) {
	if data.Name == "" {
		data.Name = "there"
	}
	var buf bytes.Buffer
	if err := emailTemplates.ExecuteTemplate(&buf, "base", data); err != nil {
		return "", fmt.Errorf("render email: %w", err)
	}
	return buf.String(), nil
}
