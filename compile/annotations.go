package compile

import (
	"bufio"
	"io"
	"regexp"
	"strings"

	"github.com/pkg/errors"
)

// annotations are the engine-facing declarations embedded in a model file as
// $# comments: which decision variables make up the puzzle, which are
// auxiliary, which 0/1 matrices are clue switches and how to describe them,
// the puzzle kind, and any reveal bindings.
type annotations struct {
	Vars   map[string]bool
	Aux    map[string]bool
	Cons   map[string]string
	Kind   string
	Reveal map[string]string
}

var conPattern = regexp.MustCompile(`^\$#CON\s+(\S+)\s+"(.*)"\s*$`)

// parseAnnotations scans a model file for $# lines. Unknown $# directives are
// an error so typos do not silently drop clues.
func parseAnnotations(r io.Reader) (*annotations, error) {
	a := &annotations{
		Vars:   make(map[string]bool),
		Aux:    make(map[string]bool),
		Cons:   make(map[string]string),
		Reveal: make(map[string]string),
	}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "$#") {
			continue
		}
		fields := strings.Fields(line)
		switch {
		case strings.HasPrefix(line, "$#VAR"):
			if len(fields) < 2 {
				return nil, errors.Errorf("malformed VAR line: %q", line)
			}
			name := fields[1]
			if a.Vars[name] || a.Aux[name] {
				return nil, errors.Errorf("variable %s declared twice", name)
			}
			a.Vars[name] = true
		case strings.HasPrefix(line, "$#AUX"):
			if len(fields) < 2 {
				return nil, errors.Errorf("malformed AUX line: %q", line)
			}
			name := fields[1]
			if a.Vars[name] || a.Aux[name] {
				return nil, errors.Errorf("variable %s declared twice", name)
			}
			a.Aux[name] = true
		case strings.HasPrefix(line, "$#CON"):
			m := conPattern.FindStringSubmatch(line)
			if m == nil {
				return nil, errors.Errorf("malformed CON line: %q", line)
			}
			if _, dup := a.Cons[m[1]]; dup {
				return nil, errors.Errorf("constraint %s declared twice", m[1])
			}
			a.Cons[m[1]] = m[2]
		case strings.HasPrefix(line, "$#KIND"):
			if len(fields) < 2 {
				return nil, errors.Errorf("malformed KIND line: %q", line)
			}
			if a.Kind != "" {
				return nil, errors.New("cannot have two KIND statements")
			}
			a.Kind = fields[1]
		case strings.HasPrefix(line, "$#REVEAL"):
			if len(fields) < 3 {
				return nil, errors.Errorf("malformed REVEAL line: %q", line)
			}
			a.Reveal[fields[1]] = fields[2]
		default:
			return nil, errors.Errorf("unknown annotation: %q", line)
		}
	}
	return a, errors.Wrap(scanner.Err(), "scanning model file")
}
