// Package mus computes minimal unsatisfiable subsets of clue switches. Given
// a candidate literal L still present in the knowledge state, the engine finds
// a set-minimal set M of switch literals such that the CNF, the current
// knowledge, M and the encoding of L are together unsatisfiable: no clue can
// be dropped from M and still rule L out.
//
// Shrinking is deletion-based: start from an UNSAT core, try dropping one
// switch at a time, and intersect with the solver's failed assumptions after
// every UNSAT answer so several switches can fall at once.
package mus

import (
	"sort"
	"time"

	"github.com/go-air/gini/z"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/stacsolve/demystify/puzzle"
	"github.com/stacsolve/demystify/sat"
)

// Engine computes MUSes against one solver instance. An Engine is
// single-goroutine; parallel callers build one Engine per gateway clone.
type Engine struct {
	model *puzzle.Model
	gw    *sat.Gateway
	log   logrus.FieldLogger
}

// NewEngine returns an engine solving on gw.
func NewEngine(m *puzzle.Model, gw *sat.Gateway, logger logrus.FieldLogger) *Engine {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Engine{model: m, gw: gw, log: logger.WithField("component", "mus")}
}

// Refute checks whether target can be ruled out at the current knowledge
// level: it solves under all switches, the knowledge assumptions and the
// encoding of target. If unsatisfiable, the returned seed is the switch part
// of the solver's core and starts the shrinking; if satisfiable, target is
// not refutable this round.
func (e *Engine) Refute(know []z.Lit, target puzzle.Lit) ([]z.Lit, bool, error) {
	encL, ok := e.model.CNFOf(target)
	if !ok {
		return nil, false, errors.Errorf("literal %s has no CNF encoding", target)
	}
	assumptions := e.assume(e.model.Switches(), know, encL)
	res, err := e.gw.Solve(assumptions)
	if err != nil {
		return nil, false, err
	}
	if res.Status == sat.Sat {
		return nil, false, nil
	}
	return e.switchPart(res.Core), true, nil
}

// Shrink turns the seed core for target into one set-minimal MUS. The
// deletion order is deterministic: switches sorted by ascending clue id,
// rotated by rot so repeated runs explore different minimal subsets. The
// returned set is always safe: it is known UNSAT together with the knowledge
// and target, even when the deadline cuts the pass short.
func (e *Engine) Shrink(know []z.Lit, target puzzle.Lit, seed []z.Lit, rot int, deadline time.Time) ([]z.Lit, error) {
	encL, ok := e.model.CNFOf(target)
	if !ok {
		return nil, errors.Errorf("literal %s has no CNF encoding", target)
	}
	m, err := e.verifySeed(know, encL, seed)
	if err != nil || m == nil {
		return nil, err
	}

	order := e.sortSwitches(m)
	rotate(order, rot)
	m = order

	for i := 0; i < len(order); i++ {
		s := order[i]
		if !contains(m, s) {
			continue
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			e.log.WithField("lit", target.String()).Debug("shrink deadline hit, returning best safe set")
			return e.sortSwitches(m), nil
		}
		res, err := e.gw.Solve(e.assume(remove(m, s), know, encL))
		if err != nil {
			return nil, err
		}
		if res.Status == sat.Unsat {
			// s was unnecessary; the core may drop others too.
			m = intersect(m, e.switchPart(res.Core))
		}
		// On SAT s is necessary and stays.
	}
	return e.sortSwitches(m), nil
}

// MUSes returns up to merge distinct set-minimal MUSes for target. The first
// shrink starts from the seed core with the canonical deletion order; later
// ones restart from the full switch set under rotated orders, so they can
// reach minimal subsets the seed no longer contains. Duplicates are
// discarded.
func (e *Engine) MUSes(know []z.Lit, target puzzle.Lit, seed []z.Lit, merge int, deadline time.Time) ([][]z.Lit, error) {
	if merge < 1 {
		merge = 1
	}
	if merge == 1 {
		mus, err := e.Shrink(know, target, seed, 0, deadline)
		if err != nil || mus == nil {
			return nil, err
		}
		return [][]z.Lit{mus}, nil
	}
	var out [][]z.Lit
	seen := make(map[string]bool)
	full := e.model.Switches()
	for rot := 0; rot < merge; rot++ {
		start := full
		if rot == 0 {
			start = seed
		}
		mus, err := e.Shrink(know, target, start, rot, deadline)
		if err != nil {
			return nil, err
		}
		if mus == nil {
			break
		}
		if key := musKey(mus); !seen[key] {
			seen[key] = true
			out = append(out, mus)
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			break
		}
	}
	return out, nil
}

// verifySeed re-checks that the seed refutes the target. If the seed's UNSAT
// result cannot be reproduced the engine retries from the full switch set;
// if that is satisfiable too, the candidate is not refutable and nil is
// returned with no error.
func (e *Engine) verifySeed(know []z.Lit, encL z.Lit, seed []z.Lit) ([]z.Lit, error) {
	res, err := e.gw.Solve(e.assume(seed, know, encL))
	if err != nil {
		return nil, err
	}
	if res.Status == sat.Unsat {
		// Shrinking starts from the seed as given; the deletion loop does
		// the narrowing, so rotated orders keep their diversity.
		return seed, nil
	}
	e.log.Debug("seed core no longer refutes target, restarting from full switch set")
	res, err = e.gw.Solve(e.assume(e.model.Switches(), know, encL))
	if err != nil {
		return nil, err
	}
	if res.Status == sat.Sat {
		return nil, nil
	}
	return e.switchPart(res.Core), nil
}

func (e *Engine) assume(switches, know []z.Lit, encL z.Lit) []z.Lit {
	out := make([]z.Lit, 0, len(switches)+len(know)+1)
	out = append(out, switches...)
	out = append(out, know...)
	out = append(out, encL)
	return out
}

// switchPart filters a core down to clue switch literals, dropping knowledge
// assumptions and the target encoding.
func (e *Engine) switchPart(core []z.Lit) []z.Lit {
	var out []z.Lit
	for _, m := range core {
		if _, ok := e.model.ClueBySwitch(m); ok {
			out = append(out, m)
		}
	}
	return e.sortSwitches(out)
}

// sortSwitches orders switch literals by ascending clue id, the canonical
// order used everywhere for reproducibility.
func (e *Engine) sortSwitches(ms []z.Lit) []z.Lit {
	out := make([]z.Lit, len(ms))
	copy(out, ms)
	sort.Slice(out, func(i, j int) bool {
		ci, _ := e.model.ClueBySwitch(out[i])
		cj, _ := e.model.ClueBySwitch(out[j])
		return ci.ID < cj.ID
	})
	return out
}

func rotate(ms []z.Lit, n int) {
	if len(ms) == 0 {
		return
	}
	n %= len(ms)
	if n == 0 {
		return
	}
	rotated := append(append([]z.Lit{}, ms[n:]...), ms[:n]...)
	copy(ms, rotated)
}

func contains(ms []z.Lit, s z.Lit) bool {
	for _, m := range ms {
		if m == s {
			return true
		}
	}
	return false
}

func remove(ms []z.Lit, s z.Lit) []z.Lit {
	out := make([]z.Lit, 0, len(ms))
	for _, m := range ms {
		if m != s {
			out = append(out, m)
		}
	}
	return out
}

func intersect(ms, keep []z.Lit) []z.Lit {
	set := make(map[z.Lit]bool, len(keep))
	for _, m := range keep {
		set[m] = true
	}
	out := make([]z.Lit, 0, len(ms))
	for _, m := range ms {
		if set[m] {
			out = append(out, m)
		}
	}
	return out
}
