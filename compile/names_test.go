package compile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseName(t *testing.T) {
	known := map[string]bool{"var1": true, "var2": true, "var3": true, "var3x": true}
	aux := map[string]bool{"aux1": true, "aux2": true}

	cases := []struct {
		name    string
		in      string
		want    *parsedName
		wantErr bool
	}{
		{"plain indices", "var1_1_2_3", &parsedName{Name: "var1", Indices: []int{1, 2, 3}}, false},
		{"zero padded", "var1_00001_00002_00010", &parsedName{Name: "var1", Indices: []int{1, 2, 10}}, false},
		{"negative indices", "var1_n00001_00002_n00010", &parsedName{Name: "var1", Indices: []int{-1, 2, -10}}, false},
		{"no indices", "var1", &parsedName{Name: "var1"}, false},
		{"trailing underscore", "var1_", &parsedName{Name: "var1"}, false},
		{"ambiguous prefix", "var3x", nil, true},
		{"aux skipped", "aux2_4_5_6", nil, false},
		{"unknown", "not_found_7", nil, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := parseName(known, aux, c.in)
			if c.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, c.want, got)
		})
	}
}

func TestParseNameRejectsGarbageIndex(t *testing.T) {
	known := map[string]bool{"grid": true}
	_, err := parseName(known, nil, "grid_abc")
	require.Error(t, err)
}
