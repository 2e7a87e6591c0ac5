package mus

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-air/gini/z"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/stacsolve/demystify/puzzle"
	"github.com/stacsolve/demystify/sat"
)

// ContradictionError reports that the clues alone are already unsatisfiable:
// the initial solve under all switches failed. Clues lists a diagnostic core.
type ContradictionError struct {
	Clues []string
}

func (e *ContradictionError) Error() string {
	if len(e.Clues) == 0 {
		return "puzzle constraints are contradictory"
	}
	return fmt.Sprintf("puzzle constraints are contradictory: %s", strings.Join(e.Clues, ", "))
}

// A Seed pairs a refutable candidate literal with the switch core that proves
// it refutable. Seeds feed full MUS enumeration.
type Seed struct {
	Target puzzle.Lit
	Core   []z.Lit
}

// Filter is the cheap pre-pass run before MUS enumeration: one solver call
// establishes the baseline, then one call per candidate decides which
// candidates are refutable at all, yielding seed cores for the engine.
type Filter struct {
	model   *puzzle.Model
	gw      *sat.Gateway
	workers int
	log     logrus.FieldLogger
}

// NewFilter builds a filter solving on gw and fanning candidate checks out
// over workers goroutines, each check on its own clone of gw.
func NewFilter(m *puzzle.Model, gw *sat.Gateway, workers int, logger logrus.FieldLogger) *Filter {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Filter{model: m, gw: gw, workers: workers, log: logger.WithField("component", "mus")}
}

// Baseline runs the solver-value sweep: one solve under every switch plus the
// current knowledge. An unsatisfiable answer means the puzzle itself is
// contradictory and is reported with the clue names of the solver's core.
func (f *Filter) Baseline(know []z.Lit) error {
	assumptions := append(f.model.Switches(), know...)
	res, err := f.gw.Solve(assumptions)
	if err != nil {
		return err
	}
	if res.Status == sat.Sat {
		return nil
	}
	var clues []string
	for _, m := range res.Core {
		if c, ok := f.model.ClueBySwitch(m); ok {
			clues = append(clues, c.ID)
		}
	}
	return &ContradictionError{Clues: clues}
}

// Refutable runs the single-assumption UNSAT sweep over the candidate
// literals: each candidate is solved under all switches, the knowledge and
// its own encoding. Unsatisfiable candidates come back as seeds, in the input
// candidate order; satisfiable ones are skipped for this round. Work is
// spread over the worker goroutines, and every candidate is checked on its own
// solver clone, so checks share nothing.
func (f *Filter) Refutable(ctx context.Context, know []z.Lit, candidates []puzzle.Lit) ([]Seed, error) {
	results := make([]*Seed, len(candidates))
	g, ctx := errgroup.WithContext(ctx)
	jobs := make(chan int)

	for w := 0; w < f.workers; w++ {
		g.Go(func() error {
			for i := range jobs {
				if err := ctx.Err(); err != nil {
					return err
				}
				// A fresh clone per candidate keeps each check a pure
				// function of the base solver state, independent of which
				// worker ran what before it.
				engine := NewEngine(f.model, f.gw.Clone(), f.log)
				seed, refutable, err := engine.Refute(know, candidates[i])
				if err != nil {
					return err
				}
				if refutable {
					results[i] = &Seed{Target: candidates[i], Core: seed}
				}
			}
			return nil
		})
	}

	g.Go(func() error {
		defer close(jobs)
		for i := range candidates {
			select {
			case jobs <- i:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	seeds := make([]Seed, 0, len(candidates))
	for _, r := range results {
		if r != nil {
			seeds = append(seeds, *r)
		}
	}
	f.log.WithFields(logrus.Fields{
		"candidates": len(candidates),
		"refutable":  len(seeds),
	}).Debug("refutable sweep done")
	return seeds, nil
}

// TinyMUS looks for a MUS of size zero or one for target, much more cheaply
// than a full enumeration. A size-zero MUS means the knowledge alone refutes
// the candidate. Size-one MUSes are found by binary splitting of the switch
// set: any subset that is unsatisfiable and cannot be split further pins one
// clue. The search is best-effort: a candidate whose smallest MUS spans both
// halves of every split is reported as not tiny.
func (e *Engine) TinyMUS(know []z.Lit, target puzzle.Lit) ([]z.Lit, bool, error) {
	encL, ok := e.model.CNFOf(target)
	if !ok {
		return nil, false, nil
	}
	res, err := e.gw.Solve(append(append([]z.Lit{}, know...), encL))
	if err != nil {
		return nil, false, err
	}
	if res.Status == sat.Unsat {
		return []z.Lit{}, true, nil
	}
	return e.tinySplit(know, encL, e.model.Switches())
}

func (e *Engine) tinySplit(know []z.Lit, encL z.Lit, switches []z.Lit) ([]z.Lit, bool, error) {
	if len(switches) == 0 {
		return nil, false, nil
	}
	res, err := e.gw.Solve(e.assume(switches, know, encL))
	if err != nil {
		return nil, false, err
	}
	if res.Status == sat.Sat {
		return nil, false, nil
	}
	if len(switches) == 1 {
		return []z.Lit{switches[0]}, true, nil
	}
	core := e.switchPart(res.Core)
	if len(core) == 1 {
		return core, true, nil
	}
	mid := len(switches) / 2
	if mus, ok, err := e.tinySplit(know, encL, switches[:mid]); err != nil || ok {
		return mus, ok, err
	}
	return e.tinySplit(know, encL, switches[mid:])
}
