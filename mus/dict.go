package mus

import (
	"sort"
	"strconv"
	"strings"

	"github.com/go-air/gini/z"

	"github.com/stacsolve/demystify/puzzle"
)

// Dict collects, per candidate literal, the smallest MUSes found so far.
// Adding a smaller MUS replaces the kept ones; an equal-sized distinct MUS is
// appended; a larger one is discarded.
type Dict struct {
	muses map[puzzle.Lit][][]z.Lit
	keys  map[puzzle.Lit]map[string]bool
}

// NewDict returns an empty dictionary.
func NewDict() *Dict {
	return &Dict{
		muses: make(map[puzzle.Lit][][]z.Lit),
		keys:  make(map[puzzle.Lit]map[string]bool),
	}
}

// Add records a MUS for lit.
func (d *Dict) Add(lit puzzle.Lit, mus []z.Lit) {
	key := musKey(mus)
	kept := d.muses[lit]
	if len(kept) > 0 {
		if len(mus) > len(kept[0]) {
			return
		}
		if len(mus) < len(kept[0]) {
			d.muses[lit] = nil
			d.keys[lit] = nil
			kept = nil
		}
	}
	if d.keys[lit] == nil {
		d.keys[lit] = make(map[string]bool)
	}
	if d.keys[lit][key] {
		return
	}
	d.keys[lit][key] = true
	d.muses[lit] = append(kept, mus)
}

// Best returns the kept MUSes for lit, all of minimal known size.
func (d *Dict) Best(lit puzzle.Lit) [][]z.Lit { return d.muses[lit] }

// Lits returns the literals with at least one MUS recorded.
func (d *Dict) Lits() []puzzle.Lit {
	out := make([]puzzle.Lit, 0, len(d.muses))
	for lit := range d.muses {
		out = append(out, lit)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Var.ID() != out[j].Var.ID() {
			return out[i].Var.ID() < out[j].Var.ID()
		}
		return out[i].Val < out[j].Val
	})
	return out
}

// Min returns the size of the smallest MUS recorded, or -1 if the dictionary
// is empty.
func (d *Dict) Min() int {
	min := -1
	for _, kept := range d.muses {
		if len(kept) == 0 {
			continue
		}
		if min < 0 || len(kept[0]) < min {
			min = len(kept[0])
		}
	}
	return min
}

// Len returns the number of literals with recorded MUSes.
func (d *Dict) Len() int { return len(d.muses) }

// musKey is a canonical form for set comparison of MUSes.
func musKey(mus []z.Lit) string {
	ints := make([]int, len(mus))
	for i, m := range mus {
		ints[i] = m.Dimacs()
	}
	sort.Ints(ints)
	parts := make([]string, len(ints))
	for i, n := range ints {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, " ")
}
