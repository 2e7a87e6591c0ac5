package compile

import (
	"bufio"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Savile Row writes, alongside the CNF, a comment dictionary mapping each
// model variable back to its encoding. Direct lines bind one (variable,
// value) pair to one CNF literal; order lines belong to the interval
// encoding, which the engine does not reason over: they are recognised so the
// file is accepted, and then dropped.
var (
	directPattern = regexp.MustCompile(`^c Var '(.*)' direct represents '(.*)' with '(.*)'$`)
	orderPattern  = regexp.MustCompile(`^c Var '(.*)' order represents '(.*)' with '(.*)'$`)
)

// missingLit is written by Savile Row for values pruned before encoding.
const missingLit = "9223372036854775807"

// dimacsFile is the parsed compiler output: the clause set plus the direct
// encoding dictionary.
type dimacsFile struct {
	NbVars  int
	Clauses [][]int
	// Direct maps a flattened variable name to value -> DIMACS literal.
	Direct map[string]map[int]int
}

// parseDimacs reads a DIMACS file with Savile Row's variable-mapping
// comments, keeping the comment dictionary instead of discarding it.
func parseDimacs(r io.Reader) (*dimacsFile, error) {
	d := &dimacsFile{Direct: make(map[string]map[int]int)}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1024*1024), 64*1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), " \t\r")
		switch {
		case line == "":
			continue
		case strings.HasPrefix(line, "p cnf"):
			fields := strings.Fields(line)
			if len(fields) != 4 {
				return nil, errors.Errorf("malformed problem line: %q", line)
			}
			nbVars, err := strconv.Atoi(fields[2])
			if err != nil {
				return nil, errors.Wrapf(err, "malformed problem line: %q", line)
			}
			d.NbVars = nbVars
		case strings.HasPrefix(line, "c Var"):
			if err := d.parseVarComment(line); err != nil {
				return nil, err
			}
		case strings.HasPrefix(line, "c"):
			continue
		default:
			clause, err := parseClause(line)
			if err != nil {
				return nil, err
			}
			if clause != nil {
				d.Clauses = append(d.Clauses, clause)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "reading DIMACS")
	}
	if d.NbVars == 0 && len(d.Clauses) > 0 {
		return nil, errors.New("DIMACS file has clauses but no problem line")
	}
	return d, nil
}

func (d *dimacsFile) parseVarComment(line string) error {
	if m := directPattern.FindStringSubmatch(line); m != nil {
		if m[3] == missingLit {
			return nil
		}
		val, err := strconv.Atoi(m[2])
		if err != nil {
			return errors.Wrapf(err, "bad value in %q", line)
		}
		lit, err := strconv.Atoi(m[3])
		if err != nil {
			return errors.Wrapf(err, "bad literal in %q", line)
		}
		if d.Direct[m[1]] == nil {
			d.Direct[m[1]] = make(map[int]int)
		}
		d.Direct[m[1]][val] = lit
		return nil
	}
	if orderPattern.MatchString(line) {
		return nil
	}
	return errors.Errorf("failed to parse variable comment %q", line)
}

func parseClause(line string) ([]int, error) {
	fields := strings.Fields(line)
	var clause []int
	for i, f := range fields {
		lit, err := strconv.Atoi(f)
		if err != nil {
			return nil, errors.Errorf("bad literal %q in clause %q", f, line)
		}
		if lit == 0 {
			if i != len(fields)-1 {
				return nil, errors.Errorf("literal 0 inside clause %q", line)
			}
			return clause, nil
		}
		clause = append(clause, lit)
	}
	return nil, errors.Errorf("clause %q is not 0-terminated", line)
}
