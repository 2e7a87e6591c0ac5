package trace

import (
	"html/template"
	"io"

	"github.com/pkg/errors"

	"github.com/stacsolve/demystify/plan"
	"github.com/stacsolve/demystify/puzzle"
)

var htmlTmpl = template.Must(template.New("trace").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>demystify trace</title>
<style>
body { font-family: sans-serif; margin: 2em; }
table { border-collapse: collapse; margin-bottom: 1.5em; }
td, th { border: 1px solid #999; padding: 0.3em 0.6em; text-align: left; }
th { background: #eee; }
.clues { color: #444; }
</style>
</head>
<body>
<h1>Solve trace</h1>
{{range .Steps}}
<h2>Step {{.Index}}</h2>
<table>
<tr><th>Ruled out</th><th>Because of</th></tr>
{{range .Deductions}}
<tr>
<td>{{.Lit}}</td>
<td class="clues">
{{range .MUSes}}{{if .}}{{range .}}{{.}}<br>{{end}}{{else}}already known facts{{end}}{{end}}
</td>
</tr>
{{end}}
</table>
{{end}}
</body>
</html>
`))

type htmlStep struct {
	Index      int
	Deductions []htmlDeduction
}

type htmlDeduction struct {
	Lit   string
	MUSes [][]string
}

// WriteHTML writes the steps as a single self-contained HTML document, one
// table per step, with rendered clue text.
func WriteHTML(w io.Writer, m *puzzle.Model, steps []plan.Step) error {
	data := struct{ Steps []htmlStep }{}
	for _, s := range steps {
		hs := htmlStep{Index: s.Index}
		for _, d := range s.Deductions {
			hd := htmlDeduction{Lit: d.Lit.String()}
			for _, mus := range d.MUSes {
				hd.MUSes = append(hd.MUSes, renderClues(m, mus))
			}
			hs.Deductions = append(hs.Deductions, hd)
		}
		data.Steps = append(data.Steps, hs)
	}
	return errors.Wrap(htmlTmpl.Execute(w, data), "writing html trace")
}
