package web

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/ericogr/soil-moisture-monitor/pkg/moisture"
)

var pageTemplate = template.Must(template.New("status").Parse(`<!DOCTYPE html><html lang='{{.Lang}}'><head><meta charset='UTF-8'>` +
	`<meta name='viewport' content='width=device-width, initial-scale=1.0'>` +
	`<meta http-equiv='refresh' content='{{.Refresh}}'>` +
	`<title>{{.Title}}</title>` +
	`<style>* { margin: 0; padding: 0; box-sizing: border-box; }` +
	`body { font-family: Arial, sans-serif; display: flex; justify-content: center; align-items: center; height: 100vh; background-color: #f4f4f4; }` +
	`.container { text-align: center; background-color: #fff; padding: 20px; border-radius: 8px; box-shadow: 0 4px 8px rgba(0, 0, 0, 0.1); }` +
	`h1 { background-color: #ccc; padding: 10px; margin-bottom: 20px; }` +
	`.box { background-color: #e0e0e0; padding: 15px; margin: 10px 0; border-radius: 5px; }` +
	`.box-black { background-color: #000; color: #fff; padding: 15px; margin: 10px 0; border-radius: 5px; }` +
	`p { margin: 0; font-size: 16px; }</style></head>` +
	`<body><div class='container'><h1>{{.Title}}</h1>` +
	`<div class='box-black'><p>{{.Headings.Mean}}</p></div>` +
	`<div class='box' id='mean'><p>{{.Mean}}</p></div>` +
	`<div class='box-black'><p>{{.Headings.Status}}</p></div>` +
	`<div class='box' id='status'><p>{{.Status}}</p></div>` +
	`<div class='box-black'><p>{{.Headings.Percent}}</p></div>` +
	`<div class='box' id='moisture'><p>{{.Percent}} %</p></div></div></body></html>`))

type headings struct {
	Mean    string
	Status  string
	Percent string
}

var pageHeadings = map[string]headings{
	"en":    {Mean: "Analog reading", Status: "Soil status", Percent: "Moisture"},
	"pt-BR": {Mean: "Leitura Analógica dos dados", Status: "Status do solo", Percent: "Umidade percentual"},
}

type pageData struct {
	Lang     string
	Title    string
	Refresh  int
	Headings headings
	Mean     int
	Status   string
	Percent  string
}

// PageOptions controls the static parts of the status page.
type PageOptions struct {
	Title          string
	Language       string
	RefreshSeconds int
}

// RenderPage renders the status page for one report. The output depends
// only on its inputs, so unchanged readings give byte-identical pages.
func RenderPage(opts PageOptions, r moisture.Report) ([]byte, error) {
	h, ok := pageHeadings[opts.Language]
	if !ok {
		h = pageHeadings["en"]
	}
	data := pageData{
		Lang:     opts.Language,
		Title:    opts.Title,
		Refresh:  opts.RefreshSeconds,
		Headings: h,
		Mean:     r.Mean,
		Status:   r.Status,
		Percent:  fmt.Sprintf("%.2f", r.Percent),
	}
	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("render status page: %w", err)
	}
	return buf.Bytes(), nil
}
