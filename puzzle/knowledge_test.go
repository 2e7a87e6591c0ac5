package puzzle

import (
	"encoding/json"
	"testing"

	"github.com/go-air/gini/z"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKnowledgeInitialState(t *testing.T) {
	m, x, y := tinyModel(t)
	k := NewKnowledge(m)

	assert.Equal(t, []int{1, 2}, k.Candidates(x))
	assert.Equal(t, []int{1, 2, 3}, k.Candidates(y))
	assert.False(t, k.Solved())
	assert.Len(t, k.Unknown(), 2)
	assert.Len(t, k.CandidateLits(), 5)
	assert.Empty(t, k.Assumptions())
}

func TestKnowledgeRemove(t *testing.T) {
	m, x, _ := tinyModel(t)
	k := NewKnowledge(m)

	require.NoError(t, k.Remove(Lit{Var: x, Val: 2}))
	assert.Equal(t, []int{1}, k.Candidates(x))
	val, known := k.Known(x)
	assert.True(t, known)
	assert.Equal(t, 1, val)

	// Idempotent.
	require.NoError(t, k.Remove(Lit{Var: x, Val: 2}))
	assert.Len(t, k.Assumptions(), 1)

	// Removing the last candidate is a contradiction and changes nothing.
	err := k.Remove(Lit{Var: x, Val: 1})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrContradiction)
	assert.Equal(t, []int{1}, k.Candidates(x))
}

func TestKnowledgeFixAndSolved(t *testing.T) {
	m, x, y := tinyModel(t)
	k := NewKnowledge(m)

	require.NoError(t, k.Fix(Lit{Var: y, Val: 2}))
	assert.Equal(t, []int{2}, k.Candidates(y))
	assert.False(t, k.Solved())

	require.NoError(t, k.Fix(Lit{Var: x, Val: 1}))
	assert.True(t, k.Solved())
	assert.Empty(t, k.CandidateLits())
}

func TestKnowledgeAssumptionsAreNegatedEncodings(t *testing.T) {
	m, x, _ := tinyModel(t)
	k := NewKnowledge(m)

	require.NoError(t, k.Remove(Lit{Var: x, Val: 2}))
	enc, ok := m.CNFOf(Lit{Var: x, Val: 2})
	require.True(t, ok)
	assert.Equal(t, []z.Lit{enc.Not()}, k.Assumptions())
}

func TestKnowledgeCandidateLitsOrdered(t *testing.T) {
	m, x, y := tinyModel(t)
	k := NewKnowledge(m)
	lits := k.CandidateLits()
	want := []Lit{
		{Var: x, Val: 1}, {Var: x, Val: 2},
		{Var: y, Val: 1}, {Var: y, Val: 2}, {Var: y, Val: 3},
	}
	assert.Equal(t, want, lits)
}

func TestSnapshotRoundTrip(t *testing.T) {
	m, x, y := tinyModel(t)
	k := NewKnowledge(m)
	require.NoError(t, k.Remove(Lit{Var: y, Val: 3}))
	require.NoError(t, k.Remove(Lit{Var: x, Val: 1}))

	snap := k.Snapshot()
	data, err := json.Marshal(snap)
	require.NoError(t, err)
	var loaded Snapshot
	require.NoError(t, json.Unmarshal(data, &loaded))

	restored, err := NewKnowledgeFromSnapshot(m, loaded)
	require.NoError(t, err)
	assert.Equal(t, k.Candidates(x), restored.Candidates(x))
	assert.Equal(t, k.Candidates(y), restored.Candidates(y))
}

func TestSnapshotDiff(t *testing.T) {
	m, _, y := tinyModel(t)
	k := NewKnowledge(m)
	before := k.Snapshot()
	require.NoError(t, k.Remove(Lit{Var: y, Val: 1}))
	after := k.Snapshot()
	assert.Equal(t, []string{"y[1]=1"}, before.Diff(after))
}

func TestRevealAssumptions(t *testing.T) {
	b := NewBuilder()
	g := b.Var("grid", []int{1}, []int{1, 2})
	r1 := b.Var("revgrid", []int{1, 1}, []int{0, 1})
	r2 := b.Var("revgrid", []int{1, 2}, []int{0, 1})
	next := 1
	for _, v := range []*Var{g, r1, r2} {
		for _, val := range v.Domain {
			b.Encode(Lit{Var: v, Val: val}, z.Dimacs2Lit(next))
			next++
		}
	}
	b.Clue("c", "t", nil, z.Dimacs2Lit(next))
	b.BindReveal("grid", "revgrid")
	m, err := b.Build()
	require.NoError(t, err)

	k := NewKnowledge(m)
	gv, _ := m.VarByName("grid", []int{1})
	require.NoError(t, k.Remove(Lit{Var: gv, Val: 1}))

	// grid[1] is now known to be 2, so revgrid[1,2]=1 is assumed.
	rv, ok := m.VarByName("revgrid", []int{1, 2})
	require.True(t, ok)
	enc, ok := m.CNFOf(Lit{Var: rv, Val: 1})
	require.True(t, ok)
	assert.Contains(t, k.Assumptions(), enc)
}
