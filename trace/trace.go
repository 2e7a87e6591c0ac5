// Package trace renders a solve's step records for humans, as plain text or
// as a self-contained HTML document. Clue templates are rendered here, at
// emission time, from the model's parameters.
package trace

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/stacsolve/demystify/plan"
	"github.com/stacsolve/demystify/puzzle"
)

// WriteText writes one block per step: the step index, the deduced
// literal(s), the rendered clues of each witness MUS, and the knowledge diff.
func WriteText(w io.Writer, m *puzzle.Model, steps []plan.Step) error {
	for _, s := range steps {
		if _, err := fmt.Fprintf(w, "step %d\n", s.Index); err != nil {
			return errors.Wrap(err, "writing trace")
		}
		for _, d := range s.Deductions {
			fmt.Fprintf(w, "  rule out %s\n", d.Lit)
			for _, mus := range d.MUSes {
				if len(mus) == 0 {
					fmt.Fprintf(w, "    because of what is already known\n")
					continue
				}
				fmt.Fprintf(w, "    because of:\n")
				for _, ref := range renderClues(m, mus) {
					fmt.Fprintf(w, "      %s\n", ref)
				}
			}
		}
		diff := s.Before.Diff(s.After)
		if len(diff) > 0 {
			fmt.Fprintf(w, "  no longer possible: %s\n", strings.Join(diff, ", "))
		}
		known := newlyKnown(s)
		if len(known) > 0 {
			fmt.Fprintf(w, "  now known: %s\n", strings.Join(known, ", "))
		}
	}
	return nil
}

// WriteSummary writes the final grid: every known variable and its value,
// plus the surviving candidates of any still-unknown variable.
func WriteSummary(w io.Writer, m *puzzle.Model, k *puzzle.Knowledge) error {
	revealed := make(map[string]bool, len(m.Reveal))
	for _, target := range m.Reveal {
		revealed[target] = true
	}
	for _, v := range m.Vars() {
		// Reveal matrices track the user-visible grid; they are not part of
		// the answer themselves.
		if revealed[v.Name] {
			continue
		}
		if val, ok := k.Known(v); ok {
			if _, err := fmt.Fprintf(w, "%s = %d\n", v, val); err != nil {
				return errors.Wrap(err, "writing summary")
			}
			continue
		}
		cands := k.Candidates(v)
		parts := make([]string, len(cands))
		for i, c := range cands {
			parts[i] = fmt.Sprintf("%d", c)
		}
		if _, err := fmt.Fprintf(w, "%s in {%s}\n", v, strings.Join(parts, ",")); err != nil {
			return errors.Wrap(err, "writing summary")
		}
	}
	return nil
}

func renderClues(m *puzzle.Model, ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if c, ok := m.ClueByID(id); ok {
			out = append(out, c.Render(m.Params))
		} else {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// newlyKnown lists variables that became determined during the step.
func newlyKnown(s plan.Step) []string {
	var out []string
	for name, after := range s.After {
		if len(after) == 1 && len(s.Before[name]) > 1 {
			out = append(out, fmt.Sprintf("%s=%d", name, after[0]))
		}
	}
	sort.Strings(out)
	return out
}
