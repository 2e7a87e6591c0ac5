// Package sat owns the incremental CNF solver instances used by the rest of
// the engine. No other package talks to a solver directly: everything goes
// through a Gateway, which exposes clause addition, solving under assumptions,
// model read-out and the failed-assumption core of an UNSAT result.
//
// A Gateway wraps a single gini instance and is single-goroutine. Parallel
// workers each take their own Clone.
package sat

import (
	"github.com/go-air/gini"
	"github.com/go-air/gini/z"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Status is the outcome of a solve.
type Status int

const (
	// Unknown means the solver gave no answer. A Gateway treats this as a
	// fatal solver condition.
	Unknown Status = iota
	// Sat means a model was found; read it with Value.
	Sat
	// Unsat means the assumptions plus the clause set are unsatisfiable;
	// Result.Core holds the failed assumptions.
	Unsat
)

func (s Status) String() string {
	switch s {
	case Sat:
		return "SAT"
	case Unsat:
		return "UNSAT"
	}
	return "UNKNOWN"
}

// Result is the outcome of Gateway.Solve. On Unsat, Core is a subset of the
// assumptions sufficient for unsatisfiability. The solver minimizes it
// opportunistically; it is not guaranteed minimal, only sufficient, and seeds
// the shrinking done by the MUS engine.
type Result struct {
	Status Status
	Core   []z.Lit
}

// Stats counts gateway activity, for diagnostics only.
type Stats struct {
	NbSolves  int
	NbSat     int
	NbUnsat   int
	NbClauses int
}

// ErrSolverFatal marks a solver instance that returned an answer it should
// not be able to return. The instance is unusable afterwards.
var ErrSolverFatal = errors.New("solver instance unrecoverable")

// A Gateway is one incremental solver instance. The clause set only grows;
// assumption sets are per-call and forgotten after each solve.
type Gateway struct {
	g      *gini.Gini
	stats  Stats
	fatal  bool
	logger logrus.FieldLogger
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithLogger sets the logger used for per-solve debug events.
func WithLogger(l logrus.FieldLogger) Option {
	return func(gw *Gateway) { gw.logger = l }
}

// New builds a Gateway holding the given permanent clause set.
func New(clauses [][]z.Lit, opts ...Option) *Gateway {
	gw := &Gateway{g: gini.New(), logger: logrus.StandardLogger()}
	for _, opt := range opts {
		opt(gw)
	}
	gw.logger = gw.logger.WithField("component", "sat")
	gw.AddClauses(clauses)
	return gw
}

// AddClauses extends the permanent clause set. Clauses are never retracted.
func (gw *Gateway) AddClauses(clauses [][]z.Lit) {
	for _, cl := range clauses {
		for _, m := range cl {
			gw.g.Add(m)
		}
		gw.g.Add(z.LitNull)
	}
	gw.stats.NbClauses += len(clauses)
}

// Solve solves the clause set under the given assumptions. On Unsat the
// returned core is a subset of assumptions proving unsatisfiability. Solve is
// deterministic for a fixed clause set and assumption order.
func (gw *Gateway) Solve(assumptions []z.Lit) (Result, error) {
	if gw.fatal {
		return Result{}, ErrSolverFatal
	}
	gw.g.Assume(assumptions...)
	res := gw.g.Solve()
	gw.stats.NbSolves++
	switch res {
	case 1:
		gw.stats.NbSat++
		return Result{Status: Sat}, nil
	case -1:
		gw.stats.NbUnsat++
		core := gw.g.Why(nil)
		gw.logger.WithFields(logrus.Fields{
			"assumptions": len(assumptions),
			"core":        len(core),
		}).Debug("unsat under assumptions")
		return Result{Status: Unsat, Core: core}, nil
	default:
		gw.fatal = true
		return Result{}, errors.Wrapf(ErrSolverFatal, "solve returned %d", res)
	}
}

// Value returns the truth value of m in the model found by the last Sat
// solve. Meaningless after any other outcome.
func (gw *Gateway) Value(m z.Lit) bool { return gw.g.Value(m) }

// Clone returns an independent solver instance sharing the clause set, so
// concurrent solves never collide. Statistics start fresh on the clone.
func (gw *Gateway) Clone() *Gateway {
	return &Gateway{g: gw.g.Copy(), logger: gw.logger}
}

// Stats reports activity counters for this instance.
func (gw *Gateway) Stats() Stats { return gw.stats }
