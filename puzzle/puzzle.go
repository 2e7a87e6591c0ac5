// Package puzzle defines the immutable model of a constraint puzzle: its
// variables and their domains, the (variable, value) literals, the clues
// guarded by switch literals, and the compiled CNF together with the mapping
// between puzzle literals and CNF literals.
package puzzle

import (
	"fmt"
	"sort"
	"strings"

	"github.com/go-air/gini/z"
	"github.com/pkg/errors"
)

// A Var is a puzzle variable. It has an opaque name, an optional index tuple
// and a finite, totally-ordered domain of candidate values, all fixed when the
// model is built.
type Var struct {
	id      int
	Name    string
	Indices []int
	Domain  []int
}

// ID returns the variable's stable numeric id within its model. Ids are dense
// and follow the order in which variables were declared.
func (v *Var) ID() int { return v.id }

func (v *Var) String() string {
	if len(v.Indices) == 0 {
		return v.Name
	}
	parts := make([]string, len(v.Indices))
	for i, idx := range v.Indices {
		parts[i] = fmt.Sprintf("%d", idx)
	}
	return fmt.Sprintf("%s[%s]", v.Name, strings.Join(parts, ","))
}

// A Lit is the proposition "variable Var equals value Val". Lits are value
// types and may be used as map keys; two lits are equal iff they name the same
// variable of the same model and the same value.
type Lit struct {
	Var *Var
	Val int
}

func (l Lit) String() string { return fmt.Sprintf("%s=%d", l.Var, l.Val) }

// A Clue is a named puzzle constraint. Its constraint clauses are guarded in
// the CNF by Switch: asserting Switch true activates the constraint, leaving
// it out of the assumptions removes it.
type Clue struct {
	ID       string
	Template string
	Index    []int
	Switch   z.Lit
}

// Model is the immutable result of compiling a puzzle. Build one with a
// Builder; afterwards only lookups are possible.
type Model struct {
	vars     []*Var
	varsByID map[string]*Var
	lits     []Lit
	clues    []*Clue
	bySwitch map[z.Lit]*Clue
	byClueID map[string]*Clue
	clauses  [][]z.Lit
	maxVar   z.Var
	enc      map[Lit]z.Lit
	dec      map[z.Lit][]Lit
	switches []z.Lit

	// Kind is the puzzle kind declared by the model file, if any.
	Kind string
	// Params holds the parameter file contents, used when rendering clue
	// templates.
	Params map[string]interface{}
	// Reveal maps a grid variable name to the name of the matrix revealed
	// when one of its cells becomes known.
	Reveal map[string]string
}

// Vars returns all puzzle variables in declaration order.
func (m *Model) Vars() []*Var { return m.vars }

// VarByName looks up a variable by name and index tuple.
func (m *Model) VarByName(name string, indices []int) (*Var, bool) {
	v, ok := m.varsByID[varKey(name, indices)]
	return v, ok
}

// Lits returns every (variable, value) literal of the model.
func (m *Model) Lits() []Lit { return m.lits }

// Clues returns all clues, ordered by ascending clue id.
func (m *Model) Clues() []*Clue { return m.clues }

// ClueBySwitch returns the clue guarded by the given switch literal.
func (m *Model) ClueBySwitch(s z.Lit) (*Clue, bool) {
	c, ok := m.bySwitch[s]
	return c, ok
}

// ClueByID returns the clue with the given stable id.
func (m *Model) ClueByID(id string) (*Clue, bool) {
	c, ok := m.byClueID[id]
	return c, ok
}

// Switches returns the switch literals of all clues, ordered by ascending
// clue id. This is the full active switch set.
func (m *Model) Switches() []z.Lit {
	out := make([]z.Lit, len(m.switches))
	copy(out, m.switches)
	return out
}

// Clauses returns the compiled CNF.
func (m *Model) Clauses() [][]z.Lit { return m.clauses }

// MaxVar returns the largest CNF variable used by the model.
func (m *Model) MaxVar() z.Var { return m.maxVar }

// CNFOf returns the CNF encoding of a puzzle literal.
func (m *Model) CNFOf(l Lit) (z.Lit, bool) {
	e, ok := m.enc[l]
	return e, ok
}

// LitsOf returns the puzzle literals encoded by the given CNF literal, if any.
func (m *Model) LitsOf(e z.Lit) []Lit { return m.dec[e] }

func varKey(name string, indices []int) string {
	parts := make([]string, 0, len(indices)+1)
	parts = append(parts, name)
	for _, i := range indices {
		parts = append(parts, fmt.Sprintf("%d", i))
	}
	return strings.Join(parts, "_")
}

// A Builder accumulates the parts of a Model. Zero value is not usable; call
// NewBuilder.
type Builder struct {
	m    *Model
	errs []error
}

// NewBuilder returns an empty model builder.
func NewBuilder() *Builder {
	return &Builder{m: &Model{
		varsByID: make(map[string]*Var),
		bySwitch: make(map[z.Lit]*Clue),
		byClueID: make(map[string]*Clue),
		enc:      make(map[Lit]z.Lit),
		dec:      make(map[z.Lit][]Lit),
		Params:   make(map[string]interface{}),
		Reveal:   make(map[string]string),
	}}
}

// Var declares a puzzle variable. Redeclaring the same name and indices is an
// error reported by Build.
func (b *Builder) Var(name string, indices []int, domain []int) *Var {
	key := varKey(name, indices)
	if _, dup := b.m.varsByID[key]; dup {
		b.errs = append(b.errs, errors.Errorf("variable %s declared twice", key))
	}
	vals := make([]int, len(domain))
	copy(vals, domain)
	sort.Ints(vals)
	v := &Var{id: len(b.m.vars), Name: name, Indices: indices, Domain: vals}
	b.m.vars = append(b.m.vars, v)
	b.m.varsByID[key] = v
	return v
}

// Encode records the CNF literal standing for the puzzle literal l.
func (b *Builder) Encode(l Lit, e z.Lit) {
	if prev, dup := b.m.enc[l]; dup {
		if prev != e {
			b.errs = append(b.errs, errors.Errorf("literal %s encoded twice (%s, %s)", l, prev, e))
		}
		return
	}
	b.m.enc[l] = e
	b.m.dec[e] = append(b.m.dec[e], l)
	b.m.lits = append(b.m.lits, l)
}

// Clue declares a clue guarded by the switch literal sw.
func (b *Builder) Clue(id, template string, index []int, sw z.Lit) *Clue {
	c := &Clue{ID: id, Template: template, Index: index, Switch: sw}
	if _, dup := b.m.byClueID[id]; dup {
		b.errs = append(b.errs, errors.Errorf("clue id %q used twice", id))
	}
	if prev, dup := b.m.bySwitch[sw]; dup {
		b.errs = append(b.errs, errors.Errorf("switch literal %s serves clues %q and %q", sw, prev.ID, id))
	}
	b.m.clues = append(b.m.clues, c)
	b.m.byClueID[id] = c
	b.m.bySwitch[sw] = c
	return c
}

// Clause appends a permanent CNF clause.
func (b *Builder) Clause(lits ...z.Lit) {
	cl := make([]z.Lit, len(lits))
	copy(cl, lits)
	b.m.clauses = append(b.m.clauses, cl)
	for _, l := range cl {
		if l.Var() > b.m.maxVar {
			b.m.maxVar = l.Var()
		}
	}
}

// SetKind records the declared puzzle kind.
func (b *Builder) SetKind(kind string) { b.m.Kind = kind }

// SetParams records the parameter values used for template rendering.
func (b *Builder) SetParams(params map[string]interface{}) { b.m.Params = params }

// BindReveal binds variable name to the reveal matrix reveal.
func (b *Builder) BindReveal(name, reveal string) { b.m.Reveal[name] = reveal }

// Build validates and freezes the model. It fails if any variable has an
// empty domain, any (variable, value) pair lacks a CNF encoding, or any clue
// shares a switch literal with another.
func (b *Builder) Build() (*Model, error) {
	m := b.m
	if len(b.errs) > 0 {
		return nil, b.errs[0]
	}
	if len(m.vars) == 0 {
		return nil, errors.New("model has no variables")
	}
	for _, v := range m.vars {
		if len(v.Domain) == 0 {
			return nil, errors.Errorf("variable %s has an empty domain", v)
		}
		for _, val := range v.Domain {
			if _, ok := m.enc[Lit{Var: v, Val: val}]; !ok {
				return nil, errors.Errorf("literal %s=%d has no CNF encoding", v, val)
			}
			if e := m.enc[Lit{Var: v, Val: val}]; e.Var() > m.maxVar {
				m.maxVar = e.Var()
			}
		}
	}
	sort.Slice(m.clues, func(i, j int) bool { return m.clues[i].ID < m.clues[j].ID })
	m.switches = make([]z.Lit, len(m.clues))
	for i, c := range m.clues {
		if c.Switch == z.LitNull {
			return nil, errors.Errorf("clue %q has no switch literal", c.ID)
		}
		if c.Switch.Var() > m.maxVar {
			m.maxVar = c.Switch.Var()
		}
		m.switches[i] = c.Switch
	}
	sort.Slice(m.lits, func(i, j int) bool {
		if m.lits[i].Var.id != m.lits[j].Var.id {
			return m.lits[i].Var.id < m.lits[j].Var.id
		}
		return m.lits[i].Val < m.lits[j].Val
	})
	return m, nil
}
