package pipeline

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/silolab/avalanche/internal/avalanche"
	"github.com/silolab/avalanche/internal/cache"
	"github.com/silolab/avalanche/internal/export"
	"github.com/silolab/avalanche/internal/metrics"
	"github.com/silolab/avalanche/internal/series"
)

// two avalanches of sizes 2 and 1 with the default 5 s gap
const twoAvalanches = "Time,NoPTotal,NoPOriginalTotal\n0,0,0\n1,1,1\n2,2,2\n10,2,2\n11,3,3\n30,3,3\n"

const oneAvalanche = "Time,NoPTotal,NoPOriginalTotal\n0,0,0\n1,4,4\n2,7,7\n"

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func testTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "chi0.2_outlet1.0", "run1", "flow_data.csv"), twoAvalanches)
	writeFile(t, filepath.Join(root, "chi0.2_outlet1.0", "run2", "flow_data.csv"), oneAvalanche)
	writeFile(t, filepath.Join(root, "chi0.5_outlet1.0", "run1", "flow_data.csv"), "Time,NoPTotal,NoPOriginalTotal\n0,1,1\n1,1,1\n")
	writeFile(t, filepath.Join(root, "broken", "flow_data.csv"), "a,b\n1,2\n")
	writeFile(t, filepath.Join(root, "chi0.2_outlet1.0", "notes.txt"), "ignored")
	return root
}

func newProcessor(t *testing.T, root string, m *metrics.Collector) *Processor {
	t.Helper()
	p, err := NewProcessor(Options{Root: root, Segment: avalanche.DefaultOptions(), Workers: 2}, m)
	require.NoError(t, err)
	return p
}

func TestNewProcessor(t *testing.T) {
	p, err := NewProcessor(Options{Segment: avalanche.DefaultOptions()}, nil)
	require.NoError(t, err)
	assert.Equal(t, SourceFlow, p.Options().Source)
	assert.Equal(t, "**/flow_data.csv", p.Options().Pattern)
	assert.Positive(t, p.Options().Workers)

	_, err = NewProcessor(Options{Source: "video", Segment: avalanche.DefaultOptions()}, nil)
	assert.ErrorIs(t, err, ErrUnknownSource)

	_, err = NewProcessor(Options{Segment: avalanche.Options{GapThreshold: 0}}, nil)
	assert.ErrorIs(t, err, avalanche.ErrInvalidThreshold)
}

func TestProcessor_Discover(t *testing.T) {
	root := testTree(t)
	files, err := newProcessor(t, root, nil).Discover()
	require.NoError(t, err)
	require.Len(t, files, 4)
	assert.Equal(t, filepath.Join(root, "broken", "flow_data.csv"), files[0])
}

func TestProcessor_Run(t *testing.T) {
	root := testTree(t)
	m := metrics.NewCollector()
	p := newProcessor(t, root, m)

	b, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.NotEmpty(t, b.ID)
	assert.Len(t, b.Runs, 4)
	assert.Equal(t, 3, b.Processed())

	require.Len(t, b.Skipped, 1)
	assert.Equal(t, filepath.Join(root, "broken", "flow_data.csv"), b.Skipped[0].ID)
	assert.ErrorIs(t, b.Skipped[0].Err, series.ErrMissingColumns)

	require.Len(t, b.Groups, 2)
	g := b.Groups[0]
	assert.Equal(t, "chi0.2_outlet1.0", g.Key.String())
	assert.Equal(t, []int{2, 1, 7}, g.Sizes, "sizes are merged in discovery order")
	assert.Equal(t, 2, g.Summary.Runs)

	quiet := b.Groups[1]
	assert.Equal(t, "chi0.5_outlet1.0", quiet.Key.String())
	assert.Equal(t, 1, quiet.Summary.Runs, "a run without avalanches still counts")
	assert.Zero(t, quiet.Summary.Count)

	n, err := testutil.GatherAndCount(m.Registry(), "avalanche_runs_processed_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n, "one series per group")
}

func TestProcessor_RunDeterministic(t *testing.T) {
	root := testTree(t)
	first, err := newProcessor(t, root, nil).Run(context.Background())
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := newProcessor(t, root, nil).Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, first.Groups, again.Groups)
	}
}

func TestProcessor_RunCancelled(t *testing.T) {
	root := testTree(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newProcessor(t, root, nil).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestProcessor_EventSource(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "chi0.3_outlet2.0", "avalanche_data.csv"),
		"# log\nAvalancha 1,0,1,1,5\nAvalancha 2,3,4,1,0\nAvalancha 3,9,12,3,11\n")

	p, err := NewProcessor(Options{Root: root, Source: SourceEvents, Segment: avalanche.DefaultOptions()}, nil)
	require.NoError(t, err)

	b, err := p.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, b.Groups, 1)
	assert.Equal(t, []int{5, 11}, b.Groups[0].Sizes, "events below min size are dropped")
	assert.Equal(t, []float64{1, 3}, b.Groups[0].Durations)
}

func TestBatch_Record(t *testing.T) {
	b, err := newProcessor(t, testTree(t), nil).Run(context.Background())
	require.NoError(t, err)

	rec := b.Record()
	assert.Equal(t, b.ID, rec.ID)
	assert.Equal(t, "flow", rec.Source)
	assert.Equal(t, 5.0, rec.GapThreshold)
	require.Len(t, rec.Runs, 4)
	assert.True(t, rec.Runs[0].Skipped)
	assert.Contains(t, rec.Runs[0].Reason, "required columns missing")
	assert.Equal(t, 2, rec.Runs[1].Events)
	assert.Equal(t, 1, rec.SkippedCount())
}

func TestProcessor_WriteOutputs(t *testing.T) {
	root := testTree(t)
	p := newProcessor(t, root, nil)
	b, err := p.Run(context.Background())
	require.NoError(t, err)

	out := t.TempDir()
	workbook := filepath.Join(out, "avalanches.xlsx")
	tables, err := p.WriteOutputs(b, OutputOptions{Dir: out, Gnuplot: true, BinWidth: 200, Workbook: workbook})
	require.NoError(t, err)
	require.Len(t, tables, 2)
	assert.NotNil(t, tables[0].Table)
	assert.Nil(t, tables[1].Table, "group without avalanches has no distribution")

	for _, name := range []string{
		filepath.Join(export.GroupDir, "datos_avalanchas_chi0.2_outlet1.0.csv"),
		filepath.Join(export.GroupDir, "distribucion_chi0.2_outlet1.0.csv"),
		filepath.Join(export.GroupDir, "hist_gnuplot_chi0.2_outlet1.0_bin200.csv"),
		filepath.Join(export.GroupDir, "datos_avalanchas_chi0.5_outlet1.0.csv"),
		export.SummaryFileName,
		export.SkippedFileName,
		"avalanches.xlsx",
	} {
		assert.FileExists(t, filepath.Join(out, name))
	}

	raw, err := filepath.Glob(filepath.Join(out, export.RawDir, "datos_avalanchas_chi0.2_outlet1.0_*.csv"))
	require.NoError(t, err)
	assert.Len(t, raw, 4, "two size lists and two gnuplot tables")

	data, err := os.ReadFile(filepath.Join(out, export.GroupDir, "datos_avalanchas_chi0.2_outlet1.0.csv"))
	require.NoError(t, err)
	assert.Equal(t, "tamaño_avalancha\n2\n1\n7\n", string(data))

	_, err = p.WriteOutputs(b, OutputOptions{Dir: out})
	assert.Error(t, err)
}

func simDir(root, name, log string) string {
	dir := filepath.Join(root, name)
	_ = os.MkdirAll(dir, 0o755)
	_ = os.WriteFile(filepath.Join(dir, "avalanche_data.csv"), []byte(log), 0o644)
	return dir
}

func TestCombineDirs(t *testing.T) {
	root := t.TempDir()
	simDir(root, "sim_500_chi0.2_ratio0.5_br0.5_lg50_sm450_poly0_sides0_outlet2.0_rep1", "Avalancha 1,0,1,1,3\nAvalancha 2,5,7,2,7\n")
	simDir(root, "sim_500_chi0.2_ratio0.5_br0.5_lg50_sm450_poly0_sides0_outlet2.0_rep2", "Avalancha 1,0,1,1,3\nAvalancha 2,5,6,1,3\nAvalancha 3,9,13,4,9\n")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "sim_500_chi0.2_ratio0.5_br0.5_lg50_sm450_poly0_sides0_outlet2.0_rep3"), 0o755))
	writeFile(t, filepath.Join(root, "sim_500_chi0.2_file"), "not a directory")

	res, err := CombineDirs(context.Background(), filepath.Join(root, "sim_500_chi0.2_*"))
	require.NoError(t, err)

	assert.Len(t, res.Dirs, 3)
	require.Len(t, res.Skipped, 1, "directory without an event log")
	assert.Equal(t, 2, res.Group.Summary.Runs)
	assert.Equal(t, 5, res.Group.Summary.Count)
	assert.InDelta(t, 5.0, res.Group.Summary.Mean, 1e-12)
	assert.Equal(t, 2.0, res.D())
}

func TestCombineDirs_NoMatch(t *testing.T) {
	_, err := CombineDirs(context.Background(), filepath.Join(t.TempDir(), "sim_*"))
	assert.ErrorIs(t, err, ErrNoSimDirs)
}

func TestLoadNominalRun_BadName(t *testing.T) {
	dir := simDir(t.TempDir(), "run_7", "Avalancha 1,0,1,1,3\n")
	_, err := LoadNominalRun(dir)
	assert.Error(t, err)
}

func TestProcessor_RunCache(t *testing.T) {
	root := testTree(t)
	rc, err := cache.Open(filepath.Join(t.TempDir(), "cache"), nil)
	require.NoError(t, err)
	defer rc.Close()

	opts := Options{Root: root, Segment: avalanche.DefaultOptions(), Workers: 2, Cache: rc}
	first, err := NewProcessor(opts, nil)
	require.NoError(t, err)
	b1, err := first.Run(context.Background())
	require.NoError(t, err)
	for _, r := range b1.Runs {
		assert.False(t, r.Cached)
	}

	n, err := rc.Len()
	require.NoError(t, err)
	assert.Equal(t, 3, n, "skipped runs are not cached")

	m := metrics.NewCollector()
	second, err := NewProcessor(opts, m)
	require.NoError(t, err)
	b2, err := second.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, b1.Groups, b2.Groups)
	assert.False(t, b2.Runs[0].Cached, "broken run is loaded again")
	assert.True(t, b2.Runs[1].Cached)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), "avalanche_run_cache_hits_total 3")
}

func TestProcessor_RunSpans(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr)))
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	_, err := newProcessor(t, testTree(t), nil).Run(context.Background())
	require.NoError(t, err)

	names := map[string]int{}
	for _, s := range sr.Ended() {
		names[s.Name()]++
	}
	assert.Equal(t, 1, names["pipeline.Run"])
	assert.Equal(t, 4, names["pipeline.ProcessRun"])
}
