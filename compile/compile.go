// Package compile turns a high-level puzzle model plus a parameter file into
// a puzzle.Model: it drives the external model-refinement tools (conjure and
// savilerow), parses the flat CNF and the switch-literal dictionary they
// emit, and caches the result so each puzzle is compiled once.
package compile

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-air/gini/z"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/stacsolve/demystify/puzzle"
)

// Options configures a compile run.
type Options struct {
	// Method selects native or containerized tool execution.
	Method RunMethod
	// CacheDir is where compiled artifacts persist. Empty disables caching.
	CacheDir string
	// Logger receives progress events.
	Logger logrus.FieldLogger
}

// Compile produces the puzzle model for a model/parameter file pair,
// consulting the artifact cache first.
func Compile(ctx context.Context, modelPath, paramPath string, opts Options) (*puzzle.Model, error) {
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	clog := log.WithField("component", "compile")

	modelBytes, err := os.ReadFile(modelPath)
	if err != nil {
		return nil, errors.Wrap(err, "reading model file")
	}
	paramBytes, err := os.ReadFile(paramPath)
	if err != nil {
		return nil, errors.Wrap(err, "reading parameter file")
	}

	var cache *Cache
	var key []byte
	if opts.CacheDir != "" {
		cache, err = OpenCache(opts.CacheDir)
		if err != nil {
			return nil, err
		}
		defer cache.Close()
		key, err = cacheKey(modelBytes, paramBytes, toolVersion(ctx, opts.Method))
		if err != nil {
			return nil, err
		}
		if raw, hit, err := cache.Get(key); err != nil {
			return nil, err
		} else if hit {
			clog.Debug("compile cache hit")
			var art artifact
			if err := json.Unmarshal(raw, &art); err == nil {
				return buildModel(&art)
			}
			clog.Warn("discarding undecodable cache entry")
		}
	}

	art, err := runCompiler(ctx, modelPath, paramPath, opts, clog)
	if err != nil {
		return nil, err
	}
	if cache != nil {
		if raw, err := json.Marshal(art); err == nil {
			if err := cache.Put(key, raw); err != nil {
				clog.WithError(err).Warn("could not store compile artifact")
			}
		}
	}
	return buildModel(art)
}

// runCompiler invokes conjure (for .essence inputs) and savilerow, then
// parses everything they produced.
func runCompiler(ctx context.Context, modelPath, paramPath string, opts Options, log logrus.FieldLogger) (*artifact, error) {
	tmp, err := os.MkdirTemp("", "demystify-compile-")
	if err != nil {
		return nil, errors.Wrap(err, "creating scratch dir")
	}
	defer os.RemoveAll(tmp)

	finalModel, finalParam := modelPath, paramPath
	if filepath.Ext(modelPath) == ".essence" {
		log.WithField("model", modelPath).Debug("refining essence with conjure")
		if _, err := opts.Method.run(ctx, ".", "conjure", "solve", "-o", tmp, modelPath, paramPath); err != nil {
			return nil, err
		}
		finalModel = filepath.Join(tmp, "model000001.eprime")
		params, globErr := filepath.Glob(filepath.Join(tmp, "*.param"))
		if globErr != nil || len(params) == 0 {
			return nil, errors.Wrap(ErrCompiler, "conjure produced no param file")
		}
		finalParam = params[0]
	}

	log.WithField("model", finalModel).Debug("encoding with savilerow")
	if _, err := opts.Method.run(ctx, ".", "savilerow",
		"-in-eprime", finalModel,
		"-in-param", finalParam,
		"-sat-output-mapping",
		"-sat",
		"-sat-family", "lingeling",
		"-S0", "-O0",
		"-reduce-domains",
		"-aggregate",
	); err != nil {
		return nil, err
	}

	modelFile, err := os.Open(finalModel)
	if err != nil {
		return nil, errors.Wrap(err, "opening refined model")
	}
	defer modelFile.Close()
	ann, err := parseAnnotations(modelFile)
	if err != nil {
		return nil, errors.Wrap(ErrCompiler, err.Error())
	}

	params, err := readParamFile(ctx, finalParam, opts.Method)
	if err != nil {
		return nil, err
	}

	dimacsPath := finalParam + ".dimacs"
	dimacsReader, err := os.Open(dimacsPath)
	if err != nil {
		return nil, errors.Wrapf(ErrCompiler, "savilerow produced no DIMACS at %s", dimacsPath)
	}
	defer dimacsReader.Close()
	d, err := parseDimacs(dimacsReader)
	if err != nil {
		return nil, errors.Wrap(ErrCompiler, err.Error())
	}

	return assemble(ann, params, d)
}

// readParamFile decodes JSON/YAML parameter files directly and pretty-prints
// essence params through conjure first.
func readParamFile(ctx context.Context, path string, method RunMethod) (map[string]interface{}, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading parameter file")
	}
	if ext := filepath.Ext(path); ext == ".json" || ext == ".yaml" || ext == ".yml" {
		return parseParams(data)
	}
	out, err := method.run(ctx, ".", "conjure", "pretty", "--output-format", "json", path)
	if err != nil {
		return nil, err
	}
	return parseParams(out)
}

// toolVersion asks the toolchain for its version, for the cache key. A
// missing toolchain just weakens the key to "unknown".
func toolVersion(ctx context.Context, method RunMethod) string {
	out, err := method.run(ctx, ".", "conjure", "--version")
	if err != nil {
		return "unknown"
	}
	if i := strings.IndexByte(string(out), '\n'); i >= 0 {
		return string(out[:i])
	}
	return string(out)
}

// artifact is the cacheable, JSON-serializable form of a compiled puzzle.
type artifact struct {
	Kind    string                 `json:"kind,omitempty"`
	Reveal  map[string]string      `json:"reveal,omitempty"`
	Params  map[string]interface{} `json:"params,omitempty"`
	Vars    []artVar               `json:"vars"`
	Lits    []artLit               `json:"lits"`
	Clues   []artClue              `json:"clues"`
	Clauses [][]int                `json:"clauses"`
}

type artVar struct {
	Name    string `json:"name"`
	Indices []int  `json:"indices,omitempty"`
	Domain  []int  `json:"domain"`
}

type artLit struct {
	Name    string `json:"name"`
	Indices []int  `json:"indices,omitempty"`
	Val     int    `json:"val"`
	CNF     int    `json:"cnf"`
}

type artClue struct {
	ID       string `json:"id"`
	Template string `json:"template"`
	Index    []int  `json:"index,omitempty"`
	Switch   int    `json:"switch"`
}

// assemble sorts the compiler's direct dictionary into puzzle variables and
// clue switches, with the same sanity checks the engine has always relied
// on: every constraint variable must be a proper 0/1 switch, and no clue
// name may appear twice.
func assemble(ann *annotations, params map[string]interface{}, d *dimacsFile) (*artifact, error) {
	art := &artifact{
		Kind:    ann.Kind,
		Reveal:  ann.Reveal,
		Params:  params,
		Clauses: d.Clauses,
	}

	known := make(map[string]bool, len(ann.Vars)+len(ann.Cons))
	for v := range ann.Vars {
		known[v] = true
	}
	for c := range ann.Cons {
		known[c] = true
	}
	for _, target := range ann.Reveal {
		known[target] = true
	}

	names := make([]string, 0, len(d.Direct))
	for name := range d.Direct {
		names = append(names, name)
	}
	sort.Strings(names)

	usedIDs := make(map[string]bool)
	for _, flat := range names {
		pn, err := parseName(known, ann.Aux, flat)
		if err != nil {
			return nil, errors.Wrap(ErrCompiler, err.Error())
		}
		if pn == nil {
			continue
		}
		vals := d.Direct[flat]
		if template, isCon := ann.Cons[pn.Name]; isCon {
			if len(vals) != 2 || vals[0] == 0 || vals[1] == 0 {
				return nil, errors.Wrapf(ErrCompiler, "constraint %s domain is not {0,1}", flat)
			}
			id := clueID(pn)
			if usedIDs[id] {
				return nil, errors.Wrapf(ErrCompiler, "clue id %s used twice", id)
			}
			usedIDs[id] = true
			art.Clues = append(art.Clues, artClue{
				ID:       id,
				Template: template,
				Index:    pn.Indices,
				Switch:   vals[1],
			})
			continue
		}
		domain := make([]int, 0, len(vals))
		for val := range vals {
			domain = append(domain, val)
		}
		sort.Ints(domain)
		art.Vars = append(art.Vars, artVar{Name: pn.Name, Indices: pn.Indices, Domain: domain})
		for _, val := range domain {
			art.Lits = append(art.Lits, artLit{Name: pn.Name, Indices: pn.Indices, Val: val, CNF: vals[val]})
		}
	}
	if len(art.Vars) == 0 {
		return nil, errors.Wrap(ErrCompiler, "no puzzle variables in compiler output")
	}
	if len(art.Clues) == 0 {
		return nil, errors.Wrap(ErrCompiler, "no clues in compiler output")
	}
	return art, nil
}

func clueID(pn *parsedName) string {
	if len(pn.Indices) == 0 {
		return pn.Name
	}
	parts := make([]string, len(pn.Indices))
	for i, idx := range pn.Indices {
		parts[i] = fmt.Sprintf("%d", idx)
	}
	return fmt.Sprintf("%s[%s]", pn.Name, strings.Join(parts, ","))
}

// buildModel turns an artifact into the immutable puzzle model.
func buildModel(art *artifact) (*puzzle.Model, error) {
	b := puzzle.NewBuilder()
	b.SetKind(art.Kind)
	b.SetParams(art.Params)
	for name, target := range art.Reveal {
		b.BindReveal(name, target)
	}
	vars := make(map[string]*puzzle.Var, len(art.Vars))
	for _, av := range art.Vars {
		v := b.Var(av.Name, av.Indices, av.Domain)
		vars[v.String()] = v
	}
	for _, al := range art.Lits {
		v, ok := vars[(&puzzle.Var{Name: al.Name, Indices: al.Indices}).String()]
		if !ok {
			return nil, errors.Errorf("literal for undeclared variable %s", al.Name)
		}
		b.Encode(puzzle.Lit{Var: v, Val: al.Val}, z.Dimacs2Lit(al.CNF))
	}
	for _, ac := range art.Clues {
		b.Clue(ac.ID, ac.Template, ac.Index, z.Dimacs2Lit(ac.Switch))
	}
	for _, cl := range art.Clauses {
		lits := make([]z.Lit, len(cl))
		for i, n := range cl {
			lits[i] = z.Dimacs2Lit(n)
		}
		b.Clause(lits...)
	}
	m, err := b.Build()
	return m, errors.Wrap(err, "building puzzle model")
}
