package compile

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// parsedName is a Savile Row variable name decoded back into the model
// variable it flattens: the declared name plus an index tuple.
type parsedName struct {
	Name    string
	Indices []int
}

// parseName decodes a flattened Savile Row name such as "grid_00001_00002"
// into its declared variable and indices. Negative indices are written with
// an "n" prefix. Names of auxiliary variables return nil. A name matching no
// declared variable, or more than one, is an error: declared names must not
// be prefixes of one another.
func parseName(known, aux map[string]bool, n string) (*parsedName, error) {
	var matches []string
	for v := range known {
		if strings.HasPrefix(n, v) {
			matches = append(matches, v)
		}
	}
	if len(matches) == 0 {
		for v := range aux {
			if strings.HasPrefix(n, v) {
				return nil, nil
			}
		}
		return nil, errors.Errorf("cannot find %q in the declared variables", n)
	}
	if len(matches) > 1 {
		return nil, errors.Errorf("declared names share a prefix: %q matches %v", n, matches)
	}
	name := matches[0]
	if name == n {
		return &parsedName{Name: name}, nil
	}
	rest := n[len(name)+1:]
	var indices []int
	for _, part := range strings.Split(rest, "_") {
		if part == "" {
			continue
		}
		neg := false
		if strings.HasPrefix(part, "n") {
			neg = true
			part = part[1:]
		}
		v, err := strconv.Atoi(part)
		if err != nil {
			return nil, errors.Wrapf(err, "bad index %q in %q", part, n)
		}
		if neg {
			v = -v
		}
		indices = append(indices, v)
	}
	return &parsedName{Name: name, Indices: indices}, nil
}
