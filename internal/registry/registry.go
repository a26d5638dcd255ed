// Package registry holds the static mapping from shortcode token id to the
// parameters needed to build the component mounted in its place.
//
// A Registry is built once at startup and is read-only afterwards, so it can
// be shared by every section pipeline without locking.
package registry

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/conneroisu/sectionloader/internal/types"
)

// TokenSpec is the build specification for one token id.
type TokenSpec struct {
	ID         string         `yaml:"id" mapstructure:"id"`
	SourceName string         `yaml:"source" mapstructure:"source"`
	Columns    []types.Column `yaml:"columns,omitempty" mapstructure:"columns"`
	Filters    []types.Filter `yaml:"filters" mapstructure:"filters"`
}

// Query converts the spec into a data-source query. The spec's own column
// projection wins over the fallback.
func (s TokenSpec) Query(fallback []types.Column) types.Query {
	cols := s.Columns
	if len(cols) == 0 {
		cols = fallback
	}
	return types.Query{
		SourceName: s.SourceName,
		Columns:    append([]types.Column(nil), cols...),
		Filters:    append([]types.Filter(nil), s.Filters...),
	}
}

func (s TokenSpec) clone() TokenSpec {
	s.Columns = append([]types.Column(nil), s.Columns...)
	s.Filters = append([]types.Filter(nil), s.Filters...)
	return s
}

// Registry maps token ids to build specifications.
type Registry struct {
	entries map[string]TokenSpec
	order   []string
}

// New validates the given specs and builds a Registry. Ids must be unique
// and non-empty, every spec needs a source name, and every filter operator
// must be known.
func New(specs ...TokenSpec) (*Registry, error) {
	r := &Registry{
		entries: make(map[string]TokenSpec, len(specs)),
		order:   make([]string, 0, len(specs)),
	}

	for i, spec := range specs {
		spec = spec.clone()
		spec.ID = strings.TrimSpace(spec.ID)
		if spec.ID == "" {
			return nil, fmt.Errorf("registry entry %d: empty id", i)
		}
		if _, exists := r.entries[spec.ID]; exists {
			return nil, fmt.Errorf("registry entry %q: duplicate id", spec.ID)
		}
		if strings.TrimSpace(spec.SourceName) == "" {
			return nil, fmt.Errorf("registry entry %q: empty source name", spec.ID)
		}
		for j, f := range spec.Filters {
			op, err := types.ParseOperator(string(f.Operator))
			if err != nil {
				return nil, fmt.Errorf("registry entry %q filter %d: %w", spec.ID, j, err)
			}
			if f.Column == "" {
				return nil, fmt.Errorf("registry entry %q filter %d: empty column", spec.ID, j)
			}
			spec.Filters[j].Operator = op
		}

		r.entries[spec.ID] = spec
		r.order = append(r.order, spec.ID)
	}

	return r, nil
}

// MustNew is New for statically known specs. It panics on invalid input.
func MustNew(specs ...TokenSpec) *Registry {
	r, err := New(specs...)
	if err != nil {
		panic(err)
	}
	return r
}

// Get retrieves the spec for id.
func (r *Registry) Get(id string) (TokenSpec, bool) {
	spec, ok := r.entries[id]
	if !ok {
		return TokenSpec{}, false
	}
	return spec.clone(), true
}

// IDs returns the registered ids in declaration order.
func (r *Registry) IDs() []string {
	return append([]string(nil), r.order...)
}

// All returns every spec in declaration order.
func (r *Registry) All() []TokenSpec {
	out := make([]TokenSpec, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.entries[id].clone())
	}
	return out
}

// Len returns the number of registered ids.
func (r *Registry) Len() int {
	return len(r.order)
}

type registryFile struct {
	Tables []TokenSpec `yaml:"tables"`
}

// LoadFile reads token specs from a YAML file. The file holds either a
// top-level list of specs or a mapping with a "tables" list.
//
// yaml.v3 is used directly rather than through viper because viper folds map
// keys to lower case and token ids are case-sensitive.
func LoadFile(path string) ([]TokenSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read registry file: %w", err)
	}

	var list []TokenSpec
	if err := yaml.Unmarshal(data, &list); err == nil {
		return list, nil
	}

	var wrapped registryFile
	if err := yaml.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("parse registry file %s: %w", path, err)
	}
	return wrapped.Tables, nil
}
