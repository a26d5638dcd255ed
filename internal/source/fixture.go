package source

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/conneroisu/sectionloader/internal/types"
)

// FixtureFile is the on-disk layout of a fixture store:
//
//	lists:
//	  Dynamic HTML:
//	    - Section: Feedback tab content
//	      Content: "<p>[table id='feed-table-1']</p>"
type FixtureFile struct {
	Lists map[string][]types.Row `yaml:"lists"`
}

// FixtureStore serves lists read from a YAML file.
type FixtureStore struct {
	path string

	mu    sync.RWMutex
	lists map[string][]types.Row
}

// NewFixtureStore loads the fixture file at path.
func NewFixtureStore(path string) (*FixtureStore, error) {
	s := &FixtureStore{path: path}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// NewMemoryStore serves the given lists. Rows are copied.
func NewMemoryStore(lists map[string][]types.Row) *FixtureStore {
	s := &FixtureStore{}
	s.Replace(lists)
	return s
}

// ReadFixtureFile parses a fixture file.
func ReadFixtureFile(path string) (map[string][]types.Row, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading fixtures: %w", err)
	}
	var f FixtureFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing fixtures %s: %w", path, err)
	}
	if f.Lists == nil {
		f.Lists = map[string][]types.Row{}
	}
	return f.Lists, nil
}

// Path returns the backing file, or "" for memory stores.
func (s *FixtureStore) Path() string {
	return s.path
}

// Reload re-reads the backing file. On error the previous lists are kept.
func (s *FixtureStore) Reload() error {
	if s.path == "" {
		return nil
	}
	lists, err := ReadFixtureFile(s.path)
	if err != nil {
		return err
	}
	s.Replace(lists)
	return nil
}

// Replace swaps the served lists.
func (s *FixtureStore) Replace(lists map[string][]types.Row) {
	copied := make(map[string][]types.Row, len(lists))
	for name, rows := range lists {
		out := make([]types.Row, len(rows))
		for i, r := range rows {
			out[i] = project(r, nil)
		}
		copied[name] = out
	}

	s.mu.Lock()
	s.lists = copied
	s.mu.Unlock()
}

// Lists returns the list names in sorted order.
func (s *FixtureStore) Lists() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.lists))
	for name := range s.lists {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Snapshot returns a copy of every list.
func (s *FixtureStore) Snapshot() map[string][]types.Row {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string][]types.Row, len(s.lists))
	for name, rows := range s.lists {
		cp := make([]types.Row, len(rows))
		for i, r := range rows {
			cp[i] = project(r, nil)
		}
		out[name] = cp
	}
	return out
}

// Query implements Store.
func (s *FixtureStore) Query(ctx context.Context, q types.Query) ([]types.Row, error) {
	if err := validateQuery(q); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	rows, ok := s.lists[q.SourceName]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrListNotFound, q.SourceName)
	}

	var out []types.Row
	for _, row := range rows {
		if matches(row, q.Filters) {
			out = append(out, project(row, q.Columns))
		}
	}
	return out, nil
}

// Ping implements Store.
func (s *FixtureStore) Ping(context.Context) error {
	return nil
}

// Kind implements Store.
func (s *FixtureStore) Kind() string {
	return KindFixture
}
