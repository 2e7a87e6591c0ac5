package puzzle

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClueRender(t *testing.T) {
	c := &Clue{
		ID:       "ordered[2]",
		Template: "cell {{idx . 1}} is less than cell {{idx . 2}}",
		Index:    []int{2, 3},
	}
	got := c.Render(nil)
	assert.Equal(t, "ordered[2]: cell 2 is less than cell 3", got)
}

func TestClueRenderParams(t *testing.T) {
	c := &Clue{
		ID:       "rowsum[1]",
		Template: "row {{idx . 1}} sums to {{param . \"target\"}}",
		Index:    []int{1},
	}
	got := c.Render(map[string]interface{}{"target": 15})
	assert.Equal(t, "rowsum[1]: row 1 sums to 15", got)
}

func TestClueRenderFallsBackOnBadTemplate(t *testing.T) {
	c := &Clue{ID: "bad[1]", Template: "{{idx . 9}} nope", Index: []int{1}}
	got := c.Render(nil)
	// A template that cannot render degrades to its raw text.
	assert.Equal(t, "bad[1]: {{idx . 9}} nope", got)
}

func TestRenderedIDRoundTrip(t *testing.T) {
	m, _, _ := tinyModel(t)
	for _, c := range m.Clues() {
		rendered := c.Render(m.Params)
		assert.Equal(t, c.ID, RenderedID(rendered))
	}
	assert.Equal(t, "plain", RenderedID("plain"))
}

func TestRenderAccessesIndexDirectly(t *testing.T) {
	c := &Clue{
		ID:       "adj[1,2]",
		Template: "cells {{index .Index 0}} and {{index .Index 1}} differ",
		Index:    []int{1, 2},
	}
	assert.Equal(t, "adj[1,2]: cells 1 and 2 differ", c.Render(nil))
}

func TestRenderedIDTakesFirstSeparator(t *testing.T) {
	// Rendered clue text may itself contain ": "; only the first separator
	// delimits the id.
	assert.Equal(t, "cage[3]", RenderedID("cage[3]: cells sum to: 12"))
}
