package view

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"html/template"
	"sort"
	"time"

	"github.com/chronicle-network/ledger-go/internal/store"
)

var publicationTemplate = template.Must(template.New("publication").Parse(`<!doctype html>
<html>
  <head>
    <meta charset="UTF-8">
    <title>{{.Title}}</title>
  </head>
  <body>
    <main>
      <h1>{{.Title}}</h1>
      <dl>
        <dt>Digest</dt><dd><code>{{.Digest}}</code></dd>
        <dt>Accession</dt><dd><a href="{{.AccessionLocation}}">{{.Accession}}</a></dd>
        <dt>Published</dt><dd>{{.CreatedAt}}</dd>
        <dt>Signature</dt><dd><code>{{.Signature}}</code></dd>
{{- range .Fields}}
        <dt>{{.Name}}</dt>
        {{- if .Values}}
        <dd><ul>{{range .Values}}<li>{{.}}</li>{{end}}</ul></dd>
        {{- else}}
        <dd>{{.Value}}</dd>
        {{- end}}
{{- end}}
      </dl>
{{- if .Attachments}}
      <h2>Attachments</h2>
      <ul>
{{- range .Attachments}}
        <li><a href="{{.Location}}">attachment {{.Index}}</a></li>
{{- end}}
      </ul>
{{- end}}
    </main>
  </body>
</html>
`))

var accessionsTemplate = template.Must(template.New("accessions").Parse(`<!doctype html>
<html>
  <head>
    <meta charset="UTF-8">
    <title>Accessions</title>
  </head>
  <body>
    <main>
      <h1>Accessions</h1>
      <ol>
{{- range .}}
        <li value="{{.Number}}"><a href="{{.Location}}">{{.Digest}}</a></li>
{{- end}}
      </ol>
    </main>
  </body>
</html>
`))

type fieldView struct {
	Name   string
	Value  string
	Values []string
}

type attachmentLink struct {
	Index    int
	Location string
}

// PublicationHTML renders a single record as a standalone HTML page with
// links to its attachmentCount attachments.
func (r *Renderer) PublicationHTML(p *store.Publication, attachmentCount int) ([]byte, error) {
	fields, err := p.Fields()
	if err != nil {
		return nil, err
	}

	title, _ := fields["title"].(string)
	var rest []fieldView
	for name, value := range fields {
		if name == "title" {
			continue
		}
		switch v := value.(type) {
		case string:
			rest = append(rest, fieldView{Name: name, Value: v})
		case []string:
			rest = append(rest, fieldView{Name: name, Values: v})
		case map[string][]string:
			for sub, list := range v {
				rest = append(rest, fieldView{Name: sub, Values: list})
			}
		}
	}
	sort.Slice(rest, func(i, j int) bool { return rest[i].Name < rest[j].Name })

	attachments := make([]attachmentLink, attachmentCount)
	for i := range attachments {
		attachments[i] = attachmentLink{
			Index:    i,
			Location: r.AttachmentLocation(p.Digest.String(), i),
		}
	}

	data := struct {
		Title             string
		Digest            string
		Accession         uint64
		AccessionLocation string
		CreatedAt         string
		Signature         string
		Fields            []fieldView
		Attachments       []attachmentLink
	}{
		Title:             title,
		Digest:            p.Digest.String(),
		Accession:         p.Accession,
		AccessionLocation: r.AccessionLocation(p.Accession),
		CreatedAt:         p.CreatedAt.Format(time.RFC3339),
		Signature:         hex.EncodeToString(p.Signature),
		Fields:            rest,
		Attachments:       attachments,
	}
	var buf bytes.Buffer
	if err := publicationTemplate.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("view: publication html: %w", err)
	}
	return buf.Bytes(), nil
}

// AccessionsHTML renders an accession listing as an ordered list of links
// to each record's canonical location.
func (r *Renderer) AccessionsHTML(entries []store.Entry) ([]byte, error) {
	type item struct {
		Number   uint64
		Digest   string
		Location string
	}
	items := make([]item, len(entries))
	for i, entry := range entries {
		items[i] = item{
			Number:   entry.Number,
			Digest:   entry.Digest.String(),
			Location: r.PublicationLocation(entry.Digest.String()),
		}
	}
	var buf bytes.Buffer
	if err := accessionsTemplate.Execute(&buf, items); err != nil {
		return nil, fmt.Errorf("view: accessions html: %w", err)
	}
	return buf.Bytes(), nil
}
