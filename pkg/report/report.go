// Package report renders ledger entries into a single HTML page: a bar chart
// of the energy moved per step and kind, followed by the full entry table.
package report

import (
	"fmt"
	"html/template"
	"io"
	"slices"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/kilianp07/gridsim/core/ledger"
	"github.com/kilianp07/gridsim/core/ledger/store"
)

// StepTotals sums the amounts recorded in one step, keyed by event kind.
type StepTotals struct {
	Step   int
	Totals map[string]float64
}

// Totals aggregates entries per step, in ascending step order.
func Totals(entries []store.Entry) []StepTotals {
	byStep := make(map[int]map[string]float64)
	for _, e := range entries {
		m, ok := byStep[e.Step]
		if !ok {
			m = make(map[string]float64)
			byStep[e.Step] = m
		}
		m[e.Kind] += e.Amount
	}
	steps := make([]int, 0, len(byStep))
	for s := range byStep {
		steps = append(steps, s)
	}
	slices.Sort(steps)
	out := make([]StepTotals, 0, len(steps))
	for _, s := range steps {
		out = append(out, StepTotals{Step: s, Totals: byStep[s]})
	}
	return out
}

// Chart builds the per-step bar chart with one series per event kind.
func Chart(title string, totals []StepTotals) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: title}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Step"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Wh"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)
	labels := make([]string, 0, len(totals))
	for _, t := range totals {
		labels = append(labels, fmt.Sprintf("step %d", t.Step))
	}
	bar.SetXAxis(labels)
	for _, k := range ledger.Kinds {
		data := make([]opts.BarData, 0, len(totals))
		for _, t := range totals {
			data = append(data, opts.BarData{Value: t.Totals[string(k)]})
		}
		bar.AddSeries(k.String(), data)
	}
	return bar
}

type page struct {
	Title     string
	Generated time.Time
	Assets    []string
	Element   template.HTML
	Script    template.HTML
	Entries   []store.Entry
}

var pageTpl = template.Must(template.New("report").Funcs(template.FuncMap{
	"wh":   func(v float64) string { return fmt.Sprintf("%.2f", v) },
	"time": func(t time.Time) string { return t.Format(time.RFC3339) },
}).Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
{{range .Assets}}<script src="{{.}}"></script>
{{end}}<style>
body { font-family: sans-serif; margin: 2em; }
table { border-collapse: collapse; width: 100%; }
th, td { border: 1px solid #ccc; padding: 4px 8px; text-align: left; }
th { background: #f0f0f0; }
td.num { text-align: right; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
<p>{{len .Entries}} entries, generated {{time .Generated}}</p>
{{.Element}}
{{.Script}}
<table>
<tr><th>ID</th><th>Step</th><th>From</th><th>To</th><th>Kind</th><th>Amount (Wh)</th><th>Loss (Wh)</th><th>Timestamp</th></tr>
{{range .Entries}}<tr><td>{{.ID}}</td><td>{{.Step}}</td><td>{{.From}}</td><td>{{.To}}</td><td>{{.Kind}}</td><td class="num">{{wh .Amount}}</td><td class="num">{{wh .Loss}}</td><td>{{time .Timestamp}}</td></tr>
{{end}}</table>
</body>
</html>
`))

// WriteHTML renders entries as a report page.
func WriteHTML(w io.Writer, title string, entries []store.Entry) error {
	if title == "" {
		title = "Energy Ledger Report"
	}
	bar := Chart(title, Totals(entries))
	snippet := bar.RenderSnippet()
	p := page{
		Title:     title,
		Generated: time.Now().UTC(),
		Assets:    bar.JSAssets.Values,
		// go-echarts renders trusted markup from numeric data and kind names.
		Element: template.HTML(snippet.Element),
		Script:  template.HTML(snippet.Script),
		Entries: entries,
	}
	return pageTpl.Execute(w, p)
}
