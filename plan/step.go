package plan

import (
	"sort"
	"strings"

	"github.com/go-air/gini/z"

	"github.com/stacsolve/demystify/mus"
	"github.com/stacsolve/demystify/puzzle"
)

// A Deduction is one candidate value ruled out, with the clue sets that
// witness it. Every MUS listed refutes the literal on its own.
type Deduction struct {
	Lit   puzzle.Lit
	MUSes [][]string
}

// A Step is one applied deduction group with its witness MUSes and the
// knowledge states around it. Steps are appended to the trace and never
// rewritten.
type Step struct {
	Index      int
	Deductions []Deduction
	Before     puzzle.Snapshot
	After      puzzle.Snapshot
}

// MusSize returns the size of the step's winning MUS: the smallest clue set
// among its deductions.
func (s Step) MusSize() int {
	size := -1
	for _, d := range s.Deductions {
		for _, m := range d.MUSes {
			if size < 0 || len(m) < size {
				size = len(m)
			}
		}
	}
	return size
}

// rankKey is the total order used to pick the next step among refutable
// candidates: smaller MUS first, then fewer distinct clue kinds (templates),
// then the lexicographically smaller sorted tuple of clue ids.
type rankKey struct {
	size  int
	kinds int
	ids   string
}

func (a rankKey) less(b rankKey) bool {
	if a.size != b.size {
		return a.size < b.size
	}
	if a.kinds != b.kinds {
		return a.kinds < b.kinds
	}
	return a.ids < b.ids
}

// clueIDs maps a MUS to its sorted clue ids.
func clueIDs(m *puzzle.Model, ms []z.Lit) []string {
	ids := make([]string, 0, len(ms))
	for _, s := range ms {
		if c, ok := m.ClueBySwitch(s); ok {
			ids = append(ids, c.ID)
		}
	}
	sort.Strings(ids)
	return ids
}

func keyOf(m *puzzle.Model, ms []z.Lit) rankKey {
	ids := clueIDs(m, ms)
	kinds := make(map[string]bool)
	for _, s := range ms {
		if c, ok := m.ClueBySwitch(s); ok {
			kinds[c.Template] = true
		}
	}
	return rankKey{size: len(ms), kinds: len(kinds), ids: strings.Join(ids, "\x00")}
}

// ranked is one candidate literal with its best MUSes and ranking key.
type ranked struct {
	lit   puzzle.Lit
	muses [][]z.Lit
	key   rankKey
}

// rank orders the dictionary's literals by the tie-breaking rules. Each
// literal is ranked by its best representative: the smallest key among its
// kept MUSes.
func rank(m *puzzle.Model, d *mus.Dict) []ranked {
	lits := d.Lits()
	out := make([]ranked, 0, len(lits))
	for _, lit := range lits {
		kept := d.Best(lit)
		best := keyOf(m, kept[0])
		for _, cand := range kept[1:] {
			if k := keyOf(m, cand); k.less(best) {
				best = k
			}
		}
		out = append(out, ranked{lit: lit, muses: kept, key: best})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].key.less(out[j].key) {
			return true
		}
		if out[j].key.less(out[i].key) {
			return false
		}
		if out[i].lit.Var.ID() != out[j].lit.Var.ID() {
			return out[i].lit.Var.ID() < out[j].lit.Var.ID()
		}
		return out[i].lit.Val < out[j].lit.Val
	})
	return out
}

// tiedGroup returns the candidates sharing the winner's MUS: literals whose
// best key equals the winner's. They are applied together in one step,
// ordered by (variable id, value).
func tiedGroup(rs []ranked) []ranked {
	if len(rs) == 0 {
		return nil
	}
	win := rs[0].key
	var group []ranked
	for _, r := range rs {
		if r.key.less(win) || win.less(r.key) {
			continue
		}
		group = append(group, r)
	}
	sort.Slice(group, func(i, j int) bool {
		if group[i].lit.Var.ID() != group[j].lit.Var.ID() {
			return group[i].lit.Var.ID() < group[j].lit.Var.ID()
		}
		return group[i].lit.Val < group[j].lit.Val
	})
	return group
}

func deductionOf(m *puzzle.Model, r ranked) Deduction {
	muses := make([][]string, len(r.muses))
	for i, ms := range r.muses {
		muses[i] = clueIDs(m, ms)
	}
	return Deduction{Lit: r.lit, MUSes: muses}
}
