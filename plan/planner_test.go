package plan

import (
	"context"
	"fmt"
	"testing"

	"github.com/go-air/gini/z"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacsolve/demystify/mus"
	"github.com/stacsolve/demystify/puzzle"
)

// chainModel is the ordered-chain puzzle x[1..n], x[i] < x[i+1], whose unique
// solution is x[i] = i.
func chainModel(t *testing.T, n int) *puzzle.Model {
	t.Helper()
	b := puzzle.NewBuilder()
	enc := func(i, v int) z.Lit { return z.Dimacs2Lit((i-1)*n + v) }
	domain := make([]int, n)
	for v := 1; v <= n; v++ {
		domain[v-1] = v
	}
	vars := make([]*puzzle.Var, n+1)
	for i := 1; i <= n; i++ {
		vars[i] = b.Var("x", []int{i}, domain)
		lits := make([]z.Lit, n)
		for v := 1; v <= n; v++ {
			b.Encode(puzzle.Lit{Var: vars[i], Val: v}, enc(i, v))
			lits[v-1] = enc(i, v)
		}
		b.Clause(lits...)
		for a := 1; a <= n; a++ {
			for c := a + 1; c <= n; c++ {
				b.Clause(enc(i, a).Not(), enc(i, c).Not())
			}
		}
	}
	next := n*n + 1
	for i := 1; i < n; i++ {
		sw := z.Dimacs2Lit(next)
		next++
		b.Clue(fmt.Sprintf("ordered[%d]", i), "cell {{idx . 1}} is less than cell {{idx . 2}}", []int{i, i + 1}, sw)
		for a := 1; a <= n; a++ {
			for c := 1; c <= a; c++ {
				b.Clause(sw.Not(), enc(i, a).Not(), enc(i+1, c).Not())
			}
		}
	}
	m, err := b.Build()
	require.NoError(t, err)
	return m
}

func solved(t *testing.T, k *puzzle.Knowledge, name string, idx int) int {
	t.Helper()
	v, ok := k.Model().VarByName(name, []int{idx})
	require.True(t, ok)
	val, known := k.Known(v)
	require.True(t, known, "%s[%d] not determined", name, idx)
	return val
}

func TestChainSolve(t *testing.T) {
	m := chainModel(t, 3)
	p := New(m, Config{Workers: 2})
	steps, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Done, p.State())

	for i := 1; i <= 3; i++ {
		assert.Equal(t, i, solved(t, p.Knowledge(), "x", i))
	}

	// Every deduction in this puzzle needs exactly one ordering clue.
	require.Len(t, steps, 3)
	for _, s := range steps {
		assert.Equal(t, 1, s.MusSize())
		assert.NotEmpty(t, s.Deductions)
	}

	// The first step ties two literals on the same single-clue MUS.
	first := steps[0]
	require.Len(t, first.Deductions, 2)
	assert.Equal(t, "x[1]=3", first.Deductions[0].Lit.String())
	assert.Equal(t, "x[2]=1", first.Deductions[1].Lit.String())
	assert.Equal(t, [][]string{{"ordered[1]"}}, first.Deductions[0].MUSes)
}

func TestChainSolveMonotone(t *testing.T) {
	m := chainModel(t, 4)
	p := New(m, Config{Workers: 2})
	steps, err := p.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, Done, p.State())

	for _, s := range steps {
		for name, after := range s.After {
			before := s.Before[name]
			require.NotEmpty(t, after, "candidates of %s emptied", name)
			beforeSet := make(map[int]bool, len(before))
			for _, v := range before {
				beforeSet[v] = true
			}
			for _, v := range after {
				assert.True(t, beforeSet[v], "%s gained candidate %d", name, v)
			}
		}
	}
}

func TestDeterminism(t *testing.T) {
	run := func(workers int) []Step {
		m := chainModel(t, 4)
		p := New(m, Config{Workers: workers})
		steps, err := p.Run(context.Background())
		require.NoError(t, err)
		return steps
	}
	a, b := run(3), run(3)
	opt := cmp.Comparer(func(x, y puzzle.Lit) bool { return x.String() == y.String() })
	if diff := cmp.Diff(a, b, opt); diff != "" {
		t.Fatalf("two identical runs diverged (-first +second):\n%s", diff)
	}
}

func TestAlreadySolvedAtLoad(t *testing.T) {
	b := puzzle.NewBuilder()
	v := b.Var("x", nil, []int{7})
	b.Encode(puzzle.Lit{Var: v, Val: 7}, z.Dimacs2Lit(1))
	b.Clause(z.Dimacs2Lit(1))
	b.Clue("given[1]", "x is 7", []int{1}, z.Dimacs2Lit(2))
	m, err := b.Build()
	require.NoError(t, err)

	p := New(m, Config{})
	steps, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, steps)
	assert.Equal(t, Done, p.State())
}

func TestSingleRefutingClue(t *testing.T) {
	b := puzzle.NewBuilder()
	v := b.Var("y", nil, []int{1, 2})
	b.Encode(puzzle.Lit{Var: v, Val: 1}, z.Dimacs2Lit(1))
	b.Encode(puzzle.Lit{Var: v, Val: 2}, z.Dimacs2Lit(2))
	b.Clause(z.Dimacs2Lit(1), z.Dimacs2Lit(2))
	b.Clause(z.Dimacs2Lit(1).Not(), z.Dimacs2Lit(2).Not())
	sw := z.Dimacs2Lit(3)
	b.Clue("not2[1]", "y is not 2", []int{1}, sw)
	b.Clause(sw.Not(), z.Dimacs2Lit(2).Not())
	m, err := b.Build()
	require.NoError(t, err)

	p := New(m, Config{})
	steps, err := p.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, Done, p.State())
	require.Len(t, steps, 1)
	require.Len(t, steps[0].Deductions, 1)
	assert.Equal(t, "y=2", steps[0].Deductions[0].Lit.String())
	assert.Equal(t, [][]string{{"not2[1]"}}, steps[0].Deductions[0].MUSes)
}

func TestStuckWhenUnderConstrained(t *testing.T) {
	// One free cell and a clue that never bites: both values stay possible.
	b := puzzle.NewBuilder()
	v := b.Var("y", nil, []int{1, 2})
	b.Encode(puzzle.Lit{Var: v, Val: 1}, z.Dimacs2Lit(1))
	b.Encode(puzzle.Lit{Var: v, Val: 2}, z.Dimacs2Lit(2))
	b.Clause(z.Dimacs2Lit(1), z.Dimacs2Lit(2))
	b.Clause(z.Dimacs2Lit(1).Not(), z.Dimacs2Lit(2).Not())
	b.Clue("idle[1]", "nothing", []int{1}, z.Dimacs2Lit(3))
	m, err := b.Build()
	require.NoError(t, err)

	p := New(m, Config{})
	steps, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, steps)
	assert.Equal(t, Stuck, p.State())
	assert.GreaterOrEqual(t, len(p.Knowledge().Candidates(v)), 2)
}

func TestContradictoryInput(t *testing.T) {
	b := puzzle.NewBuilder()
	v := b.Var("x", nil, []int{1, 2})
	b.Encode(puzzle.Lit{Var: v, Val: 1}, z.Dimacs2Lit(1))
	b.Encode(puzzle.Lit{Var: v, Val: 2}, z.Dimacs2Lit(2))
	b.Clause(z.Dimacs2Lit(1), z.Dimacs2Lit(2))
	b.Clause(z.Dimacs2Lit(1).Not(), z.Dimacs2Lit(2).Not())
	s1, s2 := z.Dimacs2Lit(3), z.Dimacs2Lit(4)
	b.Clue("preset[1]", "x starts as 1", []int{1}, s1)
	b.Clue("preset[2]", "x starts as 2", []int{2}, s2)
	b.Clause(s1.Not(), z.Dimacs2Lit(1))
	b.Clause(s2.Not(), z.Dimacs2Lit(2))
	m, err := b.Build()
	require.NoError(t, err)

	p := New(m, Config{})
	_, err = p.Run(context.Background())
	require.Error(t, err)
	var contradiction *mus.ContradictionError
	require.ErrorAs(t, err, &contradiction)
	assert.ElementsMatch(t, []string{"preset[1]", "preset[2]"}, contradiction.Clues)
}

func TestMergeKeepsDistinctMUSes(t *testing.T) {
	// Two interchangeable clues each forbid x=3 on their own.
	b := puzzle.NewBuilder()
	v := b.Var("x", nil, []int{1, 2, 3})
	for val := 1; val <= 3; val++ {
		b.Encode(puzzle.Lit{Var: v, Val: val}, z.Dimacs2Lit(val))
	}
	b.Clause(z.Dimacs2Lit(1), z.Dimacs2Lit(2), z.Dimacs2Lit(3))
	s1, s2 := z.Dimacs2Lit(4), z.Dimacs2Lit(5)
	b.Clue("cap[1]", "x is below 3", []int{1}, s1)
	b.Clue("cap[2]", "x is below 3", []int{2}, s2)
	b.Clause(s1.Not(), z.Dimacs2Lit(3).Not())
	b.Clause(s2.Not(), z.Dimacs2Lit(3).Not())
	m, err := b.Build()
	require.NoError(t, err)

	p := New(m, Config{Merge: 2})
	steps, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Stuck, p.State()) // x in {1,2} is all the clues can say
	require.NotEmpty(t, steps)

	var ded *Deduction
	for i := range steps[0].Deductions {
		if steps[0].Deductions[i].Lit.String() == "x=3" {
			ded = &steps[0].Deductions[i]
		}
	}
	require.NotNil(t, ded)
	// At most merge MUSes, pairwise distinct.
	require.NotEmpty(t, ded.MUSes)
	assert.LessOrEqual(t, len(ded.MUSes), 2)
	if len(ded.MUSes) == 2 {
		assert.NotEqual(t, ded.MUSes[0], ded.MUSes[1])
	}
}

func TestQuickPrefersSingleClueDeduction(t *testing.T) {
	m := chainModel(t, 3)
	p := New(m, Config{Quick: true})
	steps, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Done, p.State())

	// Quick mode applies one tiny deduction at a time: the first candidate
	// in (variable, value) order with a MUS of size <= 1 is x[1]=3.
	require.NotEmpty(t, steps)
	require.Len(t, steps[0].Deductions, 1)
	assert.Equal(t, "x[1]=3", steps[0].Deductions[0].Lit.String())
	for i := 1; i <= 3; i++ {
		assert.Equal(t, i, solved(t, p.Knowledge(), "x", i))
	}
}

func TestSkipFoldsSmallSteps(t *testing.T) {
	m := chainModel(t, 3)
	p := New(m, Config{Skip: 1})
	steps, err := p.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, Done, p.State())

	// Every step of this puzzle has a single-clue MUS, so everything folds
	// into one final record carrying all six removals.
	require.Len(t, steps, 1)
	total := 0
	for _, d := range steps[0].Deductions {
		total++
		require.NotEmpty(t, d.MUSes)
	}
	assert.Equal(t, 6, total)
	assert.Len(t, steps[0].Before["x[1]"], 3)
	assert.Len(t, steps[0].After["x[1]"], 1)
}

func TestRankingTieBreaksOnClueIDs(t *testing.T) {
	m := chainModel(t, 3)
	dict := mus.NewDict()
	v1, _ := m.VarByName("x", []int{1})
	v2, _ := m.VarByName("x", []int{2})
	c1, _ := m.ClueByID("ordered[1]")
	c2, _ := m.ClueByID("ordered[2]")

	dict.Add(puzzle.Lit{Var: v2, Val: 1}, []z.Lit{c2.Switch})
	dict.Add(puzzle.Lit{Var: v1, Val: 3}, []z.Lit{c1.Switch})
	rs := rank(m, dict)
	require.Len(t, rs, 2)
	// Equal size and kinds: the lexicographically smaller clue ids win.
	assert.Equal(t, "x[1]=3", rs[0].lit.String())

	group := tiedGroup(rs)
	require.Len(t, group, 1)
	assert.Equal(t, "x[1]=3", group[0].lit.String())
}
