package puzzle

import (
	"sort"

	"github.com/go-air/gini/z"
	"github.com/pkg/errors"
)

// ErrContradiction is returned by Knowledge.Remove when a removal would empty
// a variable's candidate set. It indicates either contradictory input or an
// internal consistency violation; the engine halts on it.
var ErrContradiction = errors.New("candidate removal emptied a domain")

// Knowledge tracks, per puzzle variable, the set of values not yet ruled out.
// It starts at the full domain of every variable and only ever shrinks.
// Knowledge is not safe for concurrent mutation; the scheduler owns it.
type Knowledge struct {
	m       *Model
	cand    []map[int]bool
	removed []Lit
}

// NewKnowledge returns the initial knowledge state for m: every variable may
// still take any value of its domain.
func NewKnowledge(m *Model) *Knowledge {
	k := &Knowledge{m: m, cand: make([]map[int]bool, len(m.vars))}
	for i, v := range m.vars {
		set := make(map[int]bool, len(v.Domain))
		for _, val := range v.Domain {
			set[val] = true
		}
		k.cand[i] = set
	}
	return k
}

// Model returns the model this knowledge is about.
func (k *Knowledge) Model() *Model { return k.m }

// Candidates returns the remaining candidate values of v, ascending.
func (k *Knowledge) Candidates(v *Var) []int {
	set := k.cand[v.id]
	out := make([]int, 0, len(set))
	for val := range set {
		out = append(out, val)
	}
	sort.Ints(out)
	return out
}

// Has reports whether val is still a candidate for v.
func (k *Knowledge) Has(v *Var, val int) bool { return k.cand[v.id][val] }

// Known returns v's value if exactly one candidate remains.
func (k *Knowledge) Known(v *Var) (int, bool) {
	set := k.cand[v.id]
	if len(set) != 1 {
		return 0, false
	}
	for val := range set {
		return val, true
	}
	return 0, false
}

// Remove rules out val as a candidate for v. Removing a value that is already
// gone is a no-op. Removing the last candidate fails with ErrContradiction
// and leaves the state unchanged.
func (k *Knowledge) Remove(l Lit) error {
	set := k.cand[l.Var.id]
	if !set[l.Val] {
		return nil
	}
	if len(set) == 1 {
		return errors.Wrapf(ErrContradiction, "removing %s", l)
	}
	delete(set, l.Val)
	k.removed = append(k.removed, l)
	return nil
}

// Fix records that v equals val by removing every other candidate.
func (k *Knowledge) Fix(l Lit) error {
	for _, val := range k.Candidates(l.Var) {
		if val == l.Val {
			continue
		}
		if err := k.Remove(Lit{Var: l.Var, Val: val}); err != nil {
			return err
		}
	}
	if !k.Has(l.Var, l.Val) {
		return errors.Wrapf(ErrContradiction, "fixing %s", l)
	}
	return nil
}

// Solved reports whether every variable has exactly one candidate left.
func (k *Knowledge) Solved() bool {
	for _, set := range k.cand {
		if len(set) != 1 {
			return false
		}
	}
	return true
}

// Unknown returns the variables with two or more candidates, in declaration
// order.
func (k *Knowledge) Unknown() []*Var {
	var out []*Var
	for i, set := range k.cand {
		if len(set) >= 2 {
			out = append(out, k.m.vars[i])
		}
	}
	return out
}

// CandidateLits returns the candidate literals: every (v, val) with val still
// a candidate of an unknown v. Ordered by (variable id, value).
func (k *Knowledge) CandidateLits() []Lit {
	var out []Lit
	for _, v := range k.Unknown() {
		for _, val := range k.Candidates(v) {
			out = append(out, Lit{Var: v, Val: val})
		}
	}
	return out
}

// Assumptions returns the CNF assumptions carrying the current knowledge:
// the negated encoding of every removed candidate, plus the reveal literal of
// every variable that has become known and has a reveal binding. The slice is
// in removal order, so identical histories produce identical assumption
// orders.
func (k *Knowledge) Assumptions() []z.Lit {
	out := make([]z.Lit, 0, len(k.removed))
	for _, l := range k.removed {
		e, ok := k.m.CNFOf(l)
		if !ok {
			continue
		}
		out = append(out, e.Not())
	}
	out = append(out, k.revealAssumptions()...)
	return out
}

func (k *Knowledge) revealAssumptions() []z.Lit {
	var out []z.Lit
	for i, set := range k.cand {
		if len(set) != 1 {
			continue
		}
		v := k.m.vars[i]
		reveal, ok := k.m.Reveal[v.Name]
		if !ok {
			continue
		}
		val, _ := k.Known(v)
		indices := append(append([]int{}, v.Indices...), val)
		rv, ok := k.m.VarByName(reveal, indices)
		if !ok {
			continue
		}
		if e, ok := k.m.CNFOf(Lit{Var: rv, Val: 1}); ok {
			out = append(out, e)
		}
	}
	return out
}

// A Snapshot is an immutable copy of a knowledge state, keyed by variable
// name, used in step records and for serialization.
type Snapshot map[string][]int

// NewKnowledgeFromSnapshot rebuilds a knowledge state from a snapshot taken
// against the same model. Values present in the model but absent from the
// snapshot are replayed as removals, so reloading preserves candidate sets
// exactly.
func NewKnowledgeFromSnapshot(m *Model, s Snapshot) (*Knowledge, error) {
	k := NewKnowledge(m)
	for _, v := range m.vars {
		want, ok := s[v.String()]
		if !ok {
			return nil, errors.Errorf("snapshot is missing variable %s", v)
		}
		keep := make(map[int]bool, len(want))
		for _, val := range want {
			keep[val] = true
		}
		for _, val := range v.Domain {
			if keep[val] {
				continue
			}
			if err := k.Remove(Lit{Var: v, Val: val}); err != nil {
				return nil, err
			}
		}
	}
	return k, nil
}

// Snapshot copies the current candidate sets.
func (k *Knowledge) Snapshot() Snapshot {
	s := make(Snapshot, len(k.m.vars))
	for _, v := range k.m.vars {
		s[v.String()] = k.Candidates(v)
	}
	return s
}

// Diff returns the literals removed between s and a later snapshot t, ordered
// by variable name then value.
func (s Snapshot) Diff(t Snapshot) []string {
	var names []string
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	var out []string
	for _, name := range names {
		after := make(map[int]bool, len(t[name]))
		for _, val := range t[name] {
			after[val] = true
		}
		for _, val := range s[name] {
			if !after[val] {
				out = append(out, Lit{Var: &Var{Name: name}, Val: val}.String())
			}
		}
	}
	return out
}
