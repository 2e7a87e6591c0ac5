// Command demystify explains how a constraint puzzle can be solved by a
// human: each step reports a deduction together with the smallest set of
// clues that forces it.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/stacsolve/demystify/compile"
	"github.com/stacsolve/demystify/mus"
	"github.com/stacsolve/demystify/plan"
	"github.com/stacsolve/demystify/puzzle"
	"github.com/stacsolve/demystify/sat"
	"github.com/stacsolve/demystify/trace"
)

// Exit codes, part of the CLI contract.
const (
	exitSolved        = 0
	exitStuck         = 1
	exitContradiction = 2
	exitCompiler      = 3
	exitInternal      = 10
)

type options struct {
	model    string
	param    string
	merge    int
	skip     int
	workers  int
	quick    bool
	html     bool
	verbose  bool
	cacheDir string
	timeout  time.Duration
	method   compile.RunMethod
}

func main() {
	os.Exit(run())
}

func run() int {
	opts := options{}
	cmd := &cobra.Command{
		Use:           "demystify --model <file> --param <file>",
		Short:         "explain a puzzle's solution step by step",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return solve(cmd.Context(), opts)
		},
	}
	cmd.Flags().StringVar(&opts.model, "model", "", "model file (.eprime or .essence)")
	cmd.Flags().StringVar(&opts.param, "param", "", "parameter file")
	cmd.Flags().IntVar(&opts.merge, "merge", 1, "distinct MUSes to report per deduction")
	cmd.Flags().IntVar(&opts.skip, "skip", 0, "fold steps with MUSes of this size or smaller into the next step")
	cmd.Flags().IntVar(&opts.workers, "workers", 0, "MUS worker pool size (0 = all CPUs)")
	cmd.Flags().BoolVar(&opts.quick, "quick", false, "prefer the first single-clue deduction when one exists")
	cmd.Flags().BoolVar(&opts.html, "html", false, "emit an HTML trace instead of text")
	cmd.Flags().BoolVar(&opts.verbose, "trace", false, "verbose per-step output")
	cmd.Flags().StringVar(&opts.cacheDir, "cache-dir", "", "compile cache directory (empty disables the cache)")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 0, "per-deduction solver budget (0 = unbounded)")
	cmd.Flags().Var(&opts.method, "conjure", "how to run the model compiler (native, docker, podman)")
	_ = cmd.MarkFlagRequired("model")
	_ = cmd.MarkFlagRequired("param")

	err := cmd.ExecuteContext(context.Background())
	if err == nil {
		return exitSolved
	}
	return exitCode(err)
}

func solve(ctx context.Context, opts options) error {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	if opts.verbose {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetLevel(logrus.WarnLevel)
	}

	model, err := compile.Compile(ctx, opts.model, opts.param, compile.Options{
		Method:   opts.method,
		CacheDir: opts.cacheDir,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	planner := plan.New(model, plan.Config{
		Merge:      opts.merge,
		Skip:       opts.skip,
		Quick:      opts.quick,
		Workers:    opts.workers,
		JobTimeout: opts.timeout,
		Logger:     logger,
	})
	steps, err := planner.Run(ctx)
	if err != nil {
		return err
	}

	if opts.html {
		if err := trace.WriteHTML(os.Stdout, model, steps); err != nil {
			return err
		}
	} else {
		if err := trace.WriteText(os.Stdout, model, steps); err != nil {
			return err
		}
		if err := trace.WriteSummary(os.Stdout, model, planner.Knowledge()); err != nil {
			return err
		}
	}

	if planner.State() == plan.Stuck {
		return errStuck
	}
	return nil
}

var errStuck = errors.New("puzzle is not uniquely determined by its clues")

func exitCode(err error) int {
	var contradiction *mus.ContradictionError
	switch {
	case errors.Is(err, errStuck):
		fmt.Fprintf(os.Stderr, "stuck: %v\n", err)
		return exitStuck
	case errors.As(err, &contradiction):
		fmt.Fprintf(os.Stderr, "contradictory input: %v\n", err)
		return exitContradiction
	case errors.Is(err, compile.ErrCompiler):
		fmt.Fprintf(os.Stderr, "compiler failure: %v\n", err)
		return exitCompiler
	case errors.Is(err, puzzle.ErrContradiction), errors.Is(err, sat.ErrSolverFatal):
		fmt.Fprintf(os.Stderr, "internal error: %v\n", err)
		return exitInternal
	default:
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return exitInternal
	}
}
