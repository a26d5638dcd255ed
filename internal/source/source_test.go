package source

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	reserrors "github.com/conneroisu/sectionloader/internal/errors"
	"github.com/conneroisu/sectionloader/internal/page"
	"github.com/conneroisu/sectionloader/internal/types"
)

const fixtureYAML = `lists:
  Dynamic HTML:
    - Section: Feedback tab content
      Content: "<p>[table id='feed-table-1']</p>"
    - Section: Feedback tab content
      Content: "<p>second</p>"
    - Section: Optimization tab intro
      Content: "<p>no tables</p>"
  Master Table:
    - Title: Validation
      SubTitle: Project
      Category: Content in and out scope
      Column1: Scope
      Column2: "<b>In</b>"
      Column3: 3
    - Title: Validation
      SubTitle: Project
      Category: Other
      Column1: Other
      Column2: x
      Column3: 12
`

func writeFixtures(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fixtures.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fixtureYAML), 0o644))
	return path
}

func validationQuery(category string) types.Query {
	return types.Query{
		SourceName: "Master Table",
		Columns: []types.Column{
			{Name: "Column1"}, {Name: "Column2"}, {Name: "Column3"},
		},
		Filters: []types.Filter{
			{Column: "Title", Operator: types.OperatorEq, Value: "'Validation'"},
			{Column: "Category", Operator: types.OperatorEq, Value: "'" + category + "'"},
		},
	}
}

func TestFixtureStoreQuery(t *testing.T) {
	s, err := NewFixtureStore(writeFixtures(t))
	require.NoError(t, err)

	rows, err := s.Query(context.Background(), validationQuery("Content in and out scope"))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, types.Row{"Column1": "Scope", "Column2": "<b>In</b>", "Column3": "3"}, rows[0])

	assert.Equal(t, []string{"Dynamic HTML", "Master Table"}, s.Lists())
	assert.Equal(t, "fixture", s.Kind())
	assert.NoError(t, s.Ping(context.Background()))
}

func TestFixtureStoreNumericComparison(t *testing.T) {
	s, err := NewFixtureStore(writeFixtures(t))
	require.NoError(t, err)

	rows, err := s.Query(context.Background(), types.Query{
		SourceName: "Master Table",
		Columns:    []types.Column{{Name: "Column1"}},
		Filters:    []types.Filter{{Column: "Column3", Operator: types.OperatorGt, Value: "9"}},
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Other", rows[0]["Column1"])
}

func TestFixtureStoreUnknownList(t *testing.T) {
	s := NewMemoryStore(nil)
	_, err := s.Query(context.Background(), types.Query{SourceName: "Nope"})
	assert.ErrorIs(t, err, ErrListNotFound)
}

func TestFixtureStoreReload(t *testing.T) {
	path := writeFixtures(t)
	s, err := NewFixtureStore(path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("lists:\n  Only: []\n"), 0o644))
	require.NoError(t, s.Reload())
	assert.Equal(t, []string{"Only"}, s.Lists())

	require.NoError(t, os.WriteFile(path, []byte("lists: [unclosed"), 0o644))
	assert.Error(t, s.Reload())
	assert.Equal(t, []string{"Only"}, s.Lists(), "failed reload keeps previous lists")
}

func TestCompare(t *testing.T) {
	tests := []struct {
		a, b string
		op   types.Operator
		want bool
	}{
		{"abc", "abc", types.OperatorEq, true},
		{"abc", "abd", types.OperatorNe, true},
		{"10", "9", types.OperatorGt, true},
		{"10", "9", types.OperatorLt, false},
		{"b", "a", types.OperatorGe, true},
		{"a", "a", types.OperatorLe, true},
		{"a", "a", types.Operator("like"), false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, compare(tt.a, tt.op, tt.b), "%s %s %s", tt.a, tt.op, tt.b)
	}
}

func TestHTTPStoreQuery(t *testing.T) {
	var gotPath, gotSelect, gotFilter, gotAccept string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotSelect = r.URL.Query().Get("$select")
		gotFilter = r.URL.Query().Get("$filter")
		gotAccept = r.Header.Get("Accept")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"value": []map[string]interface{}{
				{"Column1": "Scope", "Column2": nil, "Column3": 3, "Extra": true},
			},
		})
	}))
	defer srv.Close()

	s, err := NewHTTPStore(srv.URL+"/sites/ops/", WithHeader("X-Test", "1"))
	require.NoError(t, err)

	rows, err := s.Query(context.Background(), validationQuery("Content in and out scope"))
	require.NoError(t, err)

	assert.Equal(t, "/sites/ops/_api/web/lists/getbytitle('Master Table')/items", gotPath)
	assert.Equal(t, "Column1,Column2,Column3", gotSelect)
	assert.Equal(t, "Title eq 'Validation' and Category eq 'Content in and out scope'", gotFilter)
	assert.Equal(t, "application/json;odata=nometadata", gotAccept)
	require.Len(t, rows, 1)
	assert.Equal(t, types.Row{"Column1": "Scope", "Column2": "", "Column3": "3"}, rows[0])
}

func TestHTTPStoreErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "Missing") {
			http.NotFound(w, r)
			return
		}
		http.Error(w, "throttled", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	s, err := NewHTTPStore(srv.URL)
	require.NoError(t, err)

	_, err = s.Query(context.Background(), types.Query{SourceName: "Missing"})
	assert.ErrorIs(t, err, ErrListNotFound)

	_, err = s.Query(context.Background(), types.Query{SourceName: "Busy"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")

	_, err = NewHTTPStore("ftp://example.com")
	assert.Error(t, err)
}

func TestHTTPStoreEscapesListTitle(t *testing.T) {
	s, err := NewHTTPStore("https://example.com")
	require.NoError(t, err)
	u := s.ItemsURL(types.Query{SourceName: "Bob's List"})
	assert.Equal(t, "https://example.com/_api/web/lists/getbytitle('Bob%27%27s%20List')/items", u)
}

func newSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	lists, err := ReadFixtureFile(writeFixtures(t))
	require.NoError(t, err)
	require.NoError(t, s.Import(context.Background(), lists))
	return s
}

func TestSQLiteStoreQuery(t *testing.T) {
	s := newSQLite(t)

	rows, err := s.Query(context.Background(), validationQuery("Content in and out scope"))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, types.Row{"Column1": "Scope", "Column2": "<b>In</b>", "Column3": "3"}, rows[0])

	rows, err = s.Query(context.Background(), types.Query{
		SourceName: "Dynamic HTML",
		Filters: []types.Filter{
			{Column: "Section", Operator: types.OperatorEq, Value: "'Feedback tab content'"},
		},
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "<p>[table id='feed-table-1']</p>", rows[0]["Content"])
	assert.Equal(t, "Feedback tab content", rows[0]["Section"])

	assert.NoError(t, s.Ping(context.Background()))
	assert.Equal(t, "sqlite", s.Kind())
}

func TestSQLiteStoreUnknownList(t *testing.T) {
	s := newSQLite(t)
	_, err := s.Query(context.Background(), types.Query{SourceName: "Nope"})
	assert.ErrorIs(t, err, ErrListNotFound)
}

func TestSQLiteStoreBindsValues(t *testing.T) {
	s := newSQLite(t)

	rows, err := s.Query(context.Background(), types.Query{
		SourceName: "Master Table",
		Filters: []types.Filter{
			{Column: "Title", Operator: types.OperatorEq, Value: "'x'' OR ''1''=''1'"},
		},
	})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestBuildSelect(t *testing.T) {
	stmt, args := BuildSelect(types.Query{
		SourceName: `Odd "Name"`,
		Columns:    []types.Column{{Name: "A"}},
		Filters: []types.Filter{
			{Column: "B", Operator: types.OperatorNe, Value: "'it''s'"},
			{Column: "C", Operator: types.OperatorLe, Value: "5"},
		},
	})
	assert.Equal(t, `SELECT "A" FROM "Odd ""Name""" WHERE "B" <> ? AND "C" <= ? ORDER BY rowid`, stmt)
	assert.Equal(t, []interface{}{"it's", "5"}, args)
}

func TestLoaderLoadSection(t *testing.T) {
	store, err := NewFixtureStore(writeFixtures(t))
	require.NoError(t, err)
	doc := page.NewDocument("feed-content")
	l := NewLoader(LoaderConfig{Store: store, Document: doc})

	require.NoError(t, l.LoadSection(context.Background(), "Feedback tab content", "feed-content"))

	region, _ := doc.Region("feed-content")
	assert.Equal(t, "<p>[table id='feed-table-1']</p>\n<p>second</p>", region.HTML())
}

func TestLoaderRegionNotFound(t *testing.T) {
	l := NewLoader(LoaderConfig{Store: NewMemoryStore(nil), Document: page.NewDocument()})

	err := l.LoadSection(context.Background(), "Feedback tab content", "missing")
	require.Error(t, err)
	assert.True(t, reserrors.IsType(err, reserrors.ErrorTypeRegionNotFound))
}

func TestLoaderFetchFailure(t *testing.T) {
	doc := page.NewDocument("r")
	l := NewLoader(LoaderConfig{Store: NewMemoryStore(nil), Document: doc})

	err := l.LoadSection(context.Background(), "x", "r")
	require.Error(t, err)
	assert.True(t, reserrors.IsType(err, reserrors.ErrorTypeFetch))
	assert.ErrorIs(t, err, ErrListNotFound)
}

func TestLoaderInjectDelay(t *testing.T) {
	store := NewMemoryStore(map[string][]types.Row{
		"Dynamic HTML": {{"Section": "S", "Content": "late"}},
	})
	doc := page.NewDocument("r")
	l := NewLoader(LoaderConfig{Store: store, Document: doc, InjectDelay: 20 * time.Millisecond})

	require.NoError(t, l.LoadSection(context.Background(), "S", "r"))

	region, _ := doc.Region("r")
	assert.Empty(t, region.HTML(), "write is deferred")
	assert.Eventually(t, func() bool { return region.HTML() == "late" }, time.Second, 5*time.Millisecond)
}

func TestLoaderCancelPendingDropsDeferredWrite(t *testing.T) {
	store := NewMemoryStore(map[string][]types.Row{
		"Dynamic HTML": {{"Section": "S", "Content": "stale"}},
	})
	doc := page.NewDocument("r")
	l := NewLoader(LoaderConfig{Store: store, Document: doc, InjectDelay: 20 * time.Millisecond})

	require.NoError(t, l.LoadSection(context.Background(), "S", "r"))
	assert.Equal(t, 1, l.Pending())
	assert.Equal(t, 1, l.CancelPending())
	assert.Equal(t, 0, l.Pending())

	region, _ := doc.Region("r")
	assert.Never(t, func() bool { return region.HTML() != "" }, 60*time.Millisecond, 5*time.Millisecond)
}

func TestLoaderDeferredWriteHonoursContext(t *testing.T) {
	store := NewMemoryStore(map[string][]types.Row{
		"Dynamic HTML": {{"Section": "S", "Content": "stale"}},
	})
	doc := page.NewDocument("r")
	l := NewLoader(LoaderConfig{Store: store, Document: doc, InjectDelay: 20 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, l.LoadSection(ctx, "S", "r"))
	cancel()

	region, _ := doc.Region("r")
	assert.Eventually(t, func() bool { return l.Pending() == 0 }, time.Second, 5*time.Millisecond)
	assert.Empty(t, region.HTML())
}

func TestSectionQueryEscapesQuotes(t *testing.T) {
	q := DefaultContentList().SectionQuery("Bob's tab")
	require.Len(t, q.Filters, 1)
	assert.Equal(t, "'Bob''s tab'", q.Filters[0].Value)
	assert.Equal(t, "Bob's tab", q.Filters[0].Literal())
	assert.Equal(t, "Dynamic HTML", q.SourceName)
}
