package app

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/sectionloader/internal/config"
	reserrors "github.com/conneroisu/sectionloader/internal/errors"
	"github.com/conneroisu/sectionloader/internal/monitoring"
	"github.com/conneroisu/sectionloader/internal/orchestrator"
	"github.com/conneroisu/sectionloader/internal/source"
	"github.com/conneroisu/sectionloader/internal/types"
)

const fixtures = `
lists:
  Dynamic HTML:
    - Section: Request pick up tab intro-new
      Content: "<h2>Pick up</h2><p>[table id='pick-table-1']</p>"
    - Section: Feedback tab content
      Content: "<p>[table id='foo-table-9']</p>"
  Master Table:
    - Title: Request pick up tab intro-new
      Column1: Open the form
      Column2: <b>Fill</b> it in
      Column3: Submit
    - Title: Something else
      Column1: ignored
`

func writeFixtures(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fixtures.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Source.Fixtures = writeFixtures(t, fixtures)
	cfg.Watch.Timeout = 30 * time.Millisecond
	return cfg
}

func TestRunResolvesPage(t *testing.T) {
	a, err := New(context.Background(), testConfig(t), nil)
	require.NoError(t, err)
	defer a.Close()

	var notified atomic.Int32
	remove := a.OnRun(func(r *orchestrator.RunReport) { notified.Add(1) })

	report, err := a.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, report.Count(orchestrator.OutcomeResolved))
	assert.True(t, report.TabsReady)
	assert.Same(t, report, a.LastReport())
	assert.Equal(t, int32(1), notified.Load())

	pick, _ := report.Section("pick-content")
	assert.Equal(t, []string{"pick-table-1"}, pick.Resolve.Built)
	feed, _ := report.Section("feed-content")
	assert.Equal(t, []string{"foo-table-9"}, feed.Resolve.Missing)

	inner, err := a.Document.MountHTML("pick-table-1")
	require.NoError(t, err)
	assert.Contains(t, inner, "<td>Open the form</td><td><b>Fill</b> it in</td><td>Submit</td>")
	assert.NotContains(t, inner, "ignored")

	html, err := a.RenderHTML(context.Background(), true)
	require.NoError(t, err)
	assert.Contains(t, html, "<title>Operations Guide</title>")
	assert.Contains(t, html, `<li class="active"><a href="#pick-content">Pick</a></li>`)
	assert.Contains(t, html, `<div class="tabs" id="validation-subtabs">`)
	assert.Contains(t, html, `<th scope="col">Column 1</th>`)

	md, err := a.RenderMarkdown()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(md, "# Operations Guide"))
	assert.Contains(t, md, "## Pick")
	assert.Contains(t, md, "| Open the form | **Fill** it in |")

	remove()
	_, err = a.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), notified.Load(), "removed listeners are not called")
}

func TestPageDataBeforeFirstRun(t *testing.T) {
	a, err := New(context.Background(), testConfig(t), nil)
	require.NoError(t, err)

	data := a.PageData(false)
	assert.Empty(t, data.Groups, "tabs are wired only after a run")
	require.Len(t, data.Loose, 7)
	assert.Equal(t, "pick-content", data.Loose[0].ID)
	assert.Equal(t, "Pick", data.Loose[0].Label)
}

func TestReloadPicksUpFixtureChanges(t *testing.T) {
	cfg := testConfig(t)
	a, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)

	_, err = a.Run(context.Background())
	require.NoError(t, err)

	updated := strings.Replace(fixtures, "Open the form", "Open the new form", 1)
	require.NoError(t, os.WriteFile(cfg.Source.Fixtures, []byte(updated), 0o644))
	require.NoError(t, a.Reload(context.Background()))

	_, err = a.Run(context.Background())
	require.NoError(t, err)

	inner, err := a.Document.MountHTML("pick-table-1")
	require.NoError(t, err)
	assert.Contains(t, inner, "Open the new form")
}

func TestHealth(t *testing.T) {
	a, err := New(context.Background(), testConfig(t), nil)
	require.NoError(t, err)

	resp := a.Health.Check(context.Background())
	assert.Equal(t, monitoring.HealthStatusHealthy, resp.Status)

	_, err = a.Run(context.Background())
	require.NoError(t, err)

	resp = a.Health.Check(context.Background())
	assert.Equal(t, monitoring.HealthStatusHealthy, resp.Status)
	var names []string
	for _, c := range resp.Checks {
		names = append(names, c.Name)
	}
	assert.Contains(t, names, "store")
	assert.Contains(t, names, "last_run")
}

func TestOpenStore(t *testing.T) {
	ctx := context.Background()

	s, err := OpenStore(ctx, config.SourceConfig{Kind: source.KindFixture})
	require.NoError(t, err)
	assert.Equal(t, source.KindFixture, s.Kind())

	s, err = OpenStore(ctx, config.SourceConfig{Kind: source.KindHTTP, URL: "https://contoso.example/sites/ops"})
	require.NoError(t, err)
	assert.Equal(t, source.KindHTTP, s.Kind())

	s, err = OpenStore(ctx, config.SourceConfig{
		Kind:     source.KindSQLite,
		DSN:      ":memory:",
		Fixtures: writeFixtures(t, fixtures),
	})
	require.NoError(t, err)
	defer s.(*source.SQLiteStore).Close()

	rows, err := s.Query(ctx, types.Query{
		SourceName: "Master Table",
		Columns:    []types.Column{{Name: "Column1"}},
		Filters:    []types.Filter{{Column: "Title", Operator: types.OperatorEq, Value: "'Request pick up tab intro-new'"}},
	})
	require.NoError(t, err)
	assert.Equal(t, []types.Row{{"Column1": "Open the form"}}, rows)

	_, err = OpenStore(ctx, config.SourceConfig{Kind: "ftp"})
	assert.True(t, reserrors.IsType(err, reserrors.ErrorTypeConfig))

	_, err = OpenStore(ctx, config.SourceConfig{Kind: source.KindFixture, Fixtures: "/does/not/exist.yml"})
	assert.Error(t, err)
}

func TestSQLiteBackedRun(t *testing.T) {
	cfg := testConfig(t)
	cfg.Source.Kind = source.KindSQLite
	cfg.Source.DSN = ":memory:"

	a, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer a.Close()

	report, err := a.Run(context.Background())
	require.NoError(t, err)

	pick, _ := report.Section("pick-content")
	assert.Equal(t, []string{"pick-table-1"}, pick.Resolve.Built)
	require.NoError(t, a.Reload(context.Background()))
}

func TestNewRejectsBadRegistry(t *testing.T) {
	cfg := testConfig(t)
	cfg.Tables = append(cfg.Tables, cfg.Tables[0])

	_, err := New(context.Background(), cfg, nil)
	assert.True(t, reserrors.IsType(err, reserrors.ErrorTypeConfig))
}

func TestRunDropsDeferredWritesFromPreviousRun(t *testing.T) {
	cfg := testConfig(t)
	cfg.Source.InjectDelay = time.Hour
	cfg.Watch.Timeout = 10 * time.Millisecond

	a, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer a.Close()

	_, err = a.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, a.Loader.Pending(), "one deferred write per section")

	_, err = a.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, a.Loader.Pending(), "the first run's writes were dropped")

	require.NoError(t, a.Close())
	assert.Equal(t, 0, a.Loader.Pending())
}
