// Package plan drives the solve loop: it builds the candidate work list from
// the knowledge state, dispatches per-literal MUS jobs across a worker pool,
// ranks the results, applies the best deduction group and emits a step
// record. The loop repeats until the puzzle is fully determined or no further
// progress is possible.
package plan

import (
	"context"
	"runtime"
	"time"

	"github.com/go-air/gini/z"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/stacsolve/demystify/mus"
	"github.com/stacsolve/demystify/puzzle"
	"github.com/stacsolve/demystify/sat"
)

// State is the scheduler's phase.
type State int

const (
	Idle State = iota
	Planning
	Dispatching
	Collecting
	Applying
	// Done means every variable is determined.
	Done
	// Stuck means unknowns remain but no candidate is refutable: the puzzle
	// is not uniquely determined by its clues. Legitimate termination, not
	// an error.
	Stuck
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Planning:
		return "planning"
	case Dispatching:
		return "dispatching"
	case Collecting:
		return "collecting"
	case Applying:
		return "applying"
	case Done:
		return "done"
	case Stuck:
		return "stuck"
	}
	return "unknown"
}

// Config controls a solve run.
type Config struct {
	// Merge is how many distinct MUSes to keep per deduced literal.
	Merge int
	// Skip folds steps whose MUS has at most this many clues into the next
	// emitted step instead of reporting them separately. Zero reports
	// everything.
	Skip int
	// Quick prefers the first candidate refutable by a MUS of size <= 1,
	// when one exists.
	Quick bool
	// Workers sizes the MUS worker pool. Defaults to the number of CPUs.
	Workers int
	// JobTimeout bounds each per-literal MUS job; zero means unbounded.
	JobTimeout time.Duration
	// Logger receives progress events. Defaults to the standard logger.
	Logger logrus.FieldLogger
}

// Planner owns the knowledge state and the solve loop. Only the planner
// goroutine mutates knowledge; workers are pure functions from a solver
// clone, a seed core and a candidate literal to MUSes.
type Planner struct {
	model *puzzle.Model
	know  *puzzle.Knowledge
	gw    *sat.Gateway
	cfg   Config
	log   logrus.FieldLogger

	state         State
	steps         []Step
	pending       []Deduction
	pendingBefore puzzle.Snapshot
	checked       bool
}

// New builds a planner for the model with initial (full-domain) knowledge.
func New(m *puzzle.Model, cfg Config) *Planner {
	if cfg.Workers < 1 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.Merge < 1 {
		cfg.Merge = 1
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	return &Planner{
		model: m,
		know:  puzzle.NewKnowledge(m),
		gw:    sat.New(m.Clauses(), sat.WithLogger(cfg.Logger)),
		cfg:   cfg,
		log:   cfg.Logger.WithField("component", "plan"),
		state: Idle,
	}
}

// State returns the scheduler's current phase.
func (p *Planner) State() State { return p.state }

// Knowledge returns the planner's knowledge state. Callers must treat it as
// read-only while a run is in progress.
func (p *Planner) Knowledge() *puzzle.Knowledge { return p.know }

// Steps returns the step records emitted so far.
func (p *Planner) Steps() []Step { return p.steps }

// Run executes the solve loop until Done, Stuck, cancellation or a fatal
// error. The returned steps are the full trace.
func (p *Planner) Run(ctx context.Context) ([]Step, error) {
	for {
		progressed, err := p.round(ctx)
		if err != nil {
			return p.steps, err
		}
		if !progressed {
			p.flushPending()
			return p.steps, nil
		}
	}
}

// round runs one Planning -> Applying cycle. It returns false when the run
// has reached Done or Stuck.
func (p *Planner) round(ctx context.Context) (bool, error) {
	p.state = Planning
	if p.know.Solved() {
		p.state = Done
		return false, nil
	}
	candidates := p.know.CandidateLits()
	know := p.know.Assumptions()

	p.state = Dispatching
	filter := mus.NewFilter(p.model, p.gw, p.cfg.Workers, p.cfg.Logger)
	if !p.checked {
		if err := filter.Baseline(know); err != nil {
			return false, err
		}
		p.checked = true
	}

	if p.cfg.Quick {
		if applied, err := p.quickRound(ctx, know, candidates); err != nil || applied {
			return applied, err
		}
	}

	seeds, err := filter.Refutable(ctx, know, candidates)
	if err != nil {
		return false, err
	}
	if len(seeds) == 0 {
		p.state = Stuck
		return false, nil
	}

	p.state = Collecting
	dict, err := p.collect(ctx, know, seeds)
	if err != nil {
		return false, err
	}
	if dict.Len() == 0 {
		p.state = Stuck
		return false, nil
	}

	p.state = Applying
	group := tiedGroup(rank(p.model, dict))
	deds := make([]Deduction, len(group))
	for i, r := range group {
		deds[i] = deductionOf(p.model, r)
	}
	if err := p.apply(deds); err != nil {
		return false, err
	}
	return true, nil
}

// quickRound scans candidates in order for one refutable with a MUS of size
// zero or one and applies just that deduction. Reports whether it applied.
func (p *Planner) quickRound(ctx context.Context, know []z.Lit, candidates []puzzle.Lit) (bool, error) {
	engine := mus.NewEngine(p.model, p.gw, p.cfg.Logger)
	for _, lit := range candidates {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		tiny, ok, err := engine.TinyMUS(know, lit)
		if err != nil {
			return false, err
		}
		if !ok {
			continue
		}
		ded := Deduction{Lit: lit, MUSes: [][]string{clueIDs(p.model, tiny)}}
		if err := p.apply([]Deduction{ded}); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}

// collect fans the seeds out over the worker pool. Each job shrinks one
// candidate's seed core into up to Merge distinct MUSes on its own solver
// clone. A failing job is retried once with a fresh clone; a second failure
// aborts the run when the solver is unrecoverable and otherwise skips the
// candidate for this round.
func (p *Planner) collect(ctx context.Context, know []z.Lit, seeds []mus.Seed) (*mus.Dict, error) {
	type result struct {
		muses [][]z.Lit
		err   error
	}
	results := make([]result, len(seeds))

	g, ctx := errgroup.WithContext(ctx)
	jobs := make(chan int)
	for w := 0; w < p.cfg.Workers; w++ {
		g.Go(func() error {
			for i := range jobs {
				if err := ctx.Err(); err != nil {
					return err
				}
				seed := seeds[i]
				// Cloning per job keeps each result a pure function of the
				// base solver state, so the applied step does not depend on
				// worker scheduling.
				engine := mus.NewEngine(p.model, p.gw.Clone(), p.cfg.Logger)
				muses, err := engine.MUSes(know, seed.Target, seed.Core, p.cfg.Merge, p.deadline())
				if err != nil {
					// One retry on a fresh clone before giving up.
					engine = mus.NewEngine(p.model, p.gw.Clone(), p.cfg.Logger)
					muses, err = engine.MUSes(know, seed.Target, seed.Core, p.cfg.Merge, p.deadline())
				}
				results[i] = result{muses: muses, err: err}
				if err != nil && errors.Is(err, sat.ErrSolverFatal) {
					return err
				}
			}
			return nil
		})
	}
	g.Go(func() error {
		defer close(jobs)
		for i := range seeds {
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

	dict := mus.NewDict()
	for i, r := range results {
		if r.err != nil {
			p.log.WithError(r.err).WithField("lit", seeds[i].Target.String()).
				Warn("skipping candidate after transient solver error")
			continue
		}
		for _, ms := range r.muses {
			dict.Add(seeds[i].Target, ms)
		}
	}
	return dict, nil
}

func (p *Planner) deadline() time.Time {
	if p.cfg.JobTimeout <= 0 {
		return time.Time{}
	}
	return time.Now().Add(p.cfg.JobTimeout)
}

// apply removes the deduced candidates from the knowledge state and emits a
// step record, folding small steps into the next one when Skip is set. Every
// removal carries its witness MUSes into the record; a removal emptying a
// domain is a fatal consistency violation.
func (p *Planner) apply(deds []Deduction) error {
	p.state = Applying
	before := p.know.Snapshot()
	if p.pendingBefore != nil {
		before = p.pendingBefore
	}
	for _, d := range deds {
		if err := p.know.Remove(d.Lit); err != nil {
			return err
		}
	}

	// All MUSes kept for a literal share the minimal size.
	size := len(deds[0].MUSes[0])
	if p.cfg.Skip > 0 && size <= p.cfg.Skip {
		if p.pendingBefore == nil {
			p.pendingBefore = before
		}
		p.pending = append(p.pending, deds...)
		p.log.WithField("muses", len(deds)).Debug("folding small step")
		return nil
	}

	all := append(append([]Deduction{}, p.pending...), deds...)
	p.pending = nil
	p.pendingBefore = nil
	p.emit(all, before)
	return nil
}

// flushPending emits any deductions still folded when the run terminates.
func (p *Planner) flushPending() {
	if len(p.pending) == 0 {
		return
	}
	deds := p.pending
	before := p.pendingBefore
	p.pending, p.pendingBefore = nil, nil
	p.emit(deds, before)
}

func (p *Planner) emit(deds []Deduction, before puzzle.Snapshot) {
	step := Step{
		Index:      len(p.steps),
		Deductions: deds,
		Before:     before,
		After:      p.know.Snapshot(),
	}
	p.steps = append(p.steps, step)
	p.log.WithFields(logrus.Fields{
		"step":       step.Index,
		"deductions": len(step.Deductions),
		"mus_size":   step.MusSize(),
	}).Info("step applied")
}
