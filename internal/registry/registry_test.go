package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/sectionloader/internal/types"
)

func TestNewRegistry(t *testing.T) {
	reg, err := New(Defaults()...)
	require.NoError(t, err)

	assert.Equal(t, 7, reg.Len())
	assert.Equal(t, "pick-table-1", reg.IDs()[0])

	spec, ok := reg.Get("pick-table-1")
	require.True(t, ok)
	assert.Equal(t, "Master Table", spec.SourceName)
	require.Len(t, spec.Filters, 1)
	assert.Equal(t, "Title eq 'Request pick up tab intro-new'", spec.Filters[0].String())

	_, ok = reg.Get("foo-table-9")
	assert.False(t, ok)
}

func TestRegistryIsCaseSensitive(t *testing.T) {
	reg := MustNew(Defaults()...)

	_, ok := reg.Get("validation-Project-table-1")
	assert.True(t, ok)
	_, ok = reg.Get("validation-project-table-1")
	assert.False(t, ok)
}

func TestRegistryRejectsInvalidSpecs(t *testing.T) {
	tests := []struct {
		name  string
		specs []TokenSpec
	}{
		{"empty id", []TokenSpec{{ID: " ", SourceName: "L"}}},
		{"duplicate id", []TokenSpec{{ID: "a", SourceName: "L"}, {ID: "a", SourceName: "L"}}},
		{"empty source", []TokenSpec{{ID: "a"}}},
		{"bad operator", []TokenSpec{{ID: "a", SourceName: "L", Filters: []types.Filter{{Column: "Title", Operator: "like", Value: "'x'"}}}}},
		{"empty column", []TokenSpec{{ID: "a", SourceName: "L", Filters: []types.Filter{{Operator: "eq", Value: "'x'"}}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.specs...)
			assert.Error(t, err)
		})
	}
}

func TestRegistryNormalisesOperators(t *testing.T) {
	reg, err := New(TokenSpec{ID: "a", SourceName: "L", Filters: []types.Filter{{Column: "Title", Operator: "EQ", Value: "'x'"}}})
	require.NoError(t, err)

	spec, _ := reg.Get("a")
	assert.Equal(t, types.OperatorEq, spec.Filters[0].Operator)
}

func TestRegistryReturnsCopies(t *testing.T) {
	reg := MustNew(Defaults()...)

	spec, _ := reg.Get("pick-table-1")
	spec.Filters[0].Value = "'tampered'"

	again, _ := reg.Get("pick-table-1")
	assert.Equal(t, "'Request pick up tab intro-new'", again.Filters[0].Value)
}

func TestTokenSpecQuery(t *testing.T) {
	spec := TokenSpec{ID: "a", SourceName: "L", Filters: []types.Filter{{Column: "Title", Operator: "eq", Value: "'x'"}}}

	q := spec.Query(DefaultColumns())
	assert.Equal(t, "L", q.SourceName)
	assert.Len(t, q.Columns, 3)

	spec.Columns = []types.Column{{Name: "Only"}}
	q = spec.Query(DefaultColumns())
	assert.Equal(t, []string{"Only"}, q.ColumnNames())
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()

	listFile := filepath.Join(dir, "list.yml")
	require.NoError(t, os.WriteFile(listFile, []byte(`
- id: Mixed-Case-1
  source: Master Table
  filters:
    - column: Title
      operator: eq
      value: "'Validation'"
`), 0o644))

	specs, err := LoadFile(listFile)
	require.NoError(t, err)
	require.Len(t, specs, 1)
	assert.Equal(t, "Mixed-Case-1", specs[0].ID)
	assert.Equal(t, "'Validation'", specs[0].Filters[0].Value)

	wrappedFile := filepath.Join(dir, "wrapped.yml")
	require.NoError(t, os.WriteFile(wrappedFile, []byte(`
tables:
  - id: feed-table-1
    source: Master Table
    columns:
      - column: Column1
        display_name: First
`), 0o644))

	specs, err = LoadFile(wrappedFile)
	require.NoError(t, err)
	require.Len(t, specs, 1)
	assert.Equal(t, "First", specs[0].Columns[0].DisplayName)

	_, err = LoadFile(filepath.Join(dir, "missing.yml"))
	assert.Error(t, err)
}
