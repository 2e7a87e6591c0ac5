package puzzle

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/pkg/errors"
)

// templateData is what a clue template sees: the clue instance's index tuple
// and the scalar/array values from the parameter file.
type templateData struct {
	Index  []int
	Params map[string]interface{}
}

var templateFuncs = template.FuncMap{
	// index is 1-based in model files; "idx 1" is the first clue index.
	"idx": func(d templateData, k int) (int, error) {
		if k < 1 || k > len(d.Index) {
			return 0, fmt.Errorf("index %d out of range (clue has %d)", k, len(d.Index))
		}
		return d.Index[k-1], nil
	},
	"param": func(d templateData, name string) (interface{}, error) {
		v, ok := d.Params[name]
		if !ok {
			return nil, fmt.Errorf("unknown parameter %q", name)
		}
		return v, nil
	},
}

// Render fills the clue's template from its index tuple and the model
// parameters and returns "<id>: <text>". Rendering is deferred until trace
// emission; a clue whose template fails to render falls back to its raw
// template text so a bad annotation never aborts a solve.
func (c *Clue) Render(params map[string]interface{}) string {
	text, err := renderTemplate(c.Template, c.Index, params)
	if err != nil {
		text = c.Template
	}
	return fmt.Sprintf("%s: %s", c.ID, text)
}

// RenderedID recovers the clue id from a string produced by Render.
func RenderedID(s string) string {
	if i := strings.Index(s, ": "); i >= 0 {
		return s[:i]
	}
	return s
}

func renderTemplate(text string, index []int, params map[string]interface{}) (string, error) {
	t, err := template.New("clue").Funcs(templateFuncs).Parse(text)
	if err != nil {
		return "", errors.Wrap(err, "parsing clue template")
	}
	data := templateData{Index: index, Params: params}
	var sb strings.Builder
	if err := t.Execute(&sb, data); err != nil {
		return "", errors.Wrap(err, "rendering clue template")
	}
	return sb.String(), nil
}
