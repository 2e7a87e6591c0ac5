package compile

import (
	"sort"
	"strconv"

	"github.com/ghodss/yaml"
	"github.com/pkg/errors"
)

// parseParams decodes a parameter file. Both YAML and JSON are accepted.
// Conjure writes arrays as JSON objects keyed "1".."n"; those are folded back
// into slices so templates can range over them.
func parseParams(data []byte) (map[string]interface{}, error) {
	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(err, "decoding parameter file")
	}
	out := make(map[string]interface{}, len(raw))
	for k, v := range raw {
		out[k] = normalizeParam(v)
	}
	return out, nil
}

// normalizeParam converts conjure's arrays-as-maps into slices, recursively.
// A map qualifies when its keys are exactly the strings "1".."n".
func normalizeParam(v interface{}) interface{} {
	m, ok := v.(map[string]interface{})
	if !ok {
		return v
	}
	keys := make([]int, 0, len(m))
	for k := range m {
		n, err := strconv.Atoi(k)
		if err != nil || n < 1 {
			out := make(map[string]interface{}, len(m))
			for mk, mv := range m {
				out[mk] = normalizeParam(mv)
			}
			return out
		}
		keys = append(keys, n)
	}
	sort.Ints(keys)
	for i, n := range keys {
		if n != i+1 {
			out := make(map[string]interface{}, len(m))
			for mk, mv := range m {
				out[mk] = normalizeParam(mv)
			}
			return out
		}
	}
	slice := make([]interface{}, len(keys))
	for i, n := range keys {
		slice[i] = normalizeParam(m[strconv.Itoa(n)])
	}
	return slice
}
