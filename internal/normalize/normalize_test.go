package normalize

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"sync"
	"sync/atomic"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrWong99/textnorm/internal/grammar"
	"github.com/MrWong99/textnorm/internal/grammar/whitelist"
	"github.com/MrWong99/textnorm/internal/observe"
	"github.com/MrWong99/textnorm/pkg/fst"
	"github.com/MrWong99/textnorm/pkg/lexicon"
)

// staticGrammar is a test grammar built from literal pairs.
type staticGrammar struct {
	name   string
	pairs  []fst.Pair
	fail   atomic.Bool
	builds atomic.Int32
}

func (g *staticGrammar) Name() string { return g.name }

func (g *staticGrammar) Build() (*fst.Fragment, error) {
	g.builds.Add(1)
	if g.fail.Load() {
		return nil, errors.New("lexicon unavailable")
	}
	f, err := fst.FromPairs(g.pairs)
	if err != nil {
		return nil, err
	}
	f = fst.Optimize(grammar.ConvertSpace(f)).WithMeta(g.name, fst.KindClassify).WithDeterministic(true)
	return grammar.Tag(f, DefaultField)
}

func testMetrics(t *testing.T) (*observe.Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatal(err)
	}
	return m, reader
}

func writeData(t *testing.T, base, states string) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		whitelist.BaseFile:         base,
		whitelist.AlternativesFile: "",
		whitelist.StatesFile:       states,
	}
	for name, body := range files {
		p := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func newNormalizer(t *testing.T, dir string, ic lexicon.InputCase, opts ...whitelist.Option) *Normalizer {
	t.Helper()
	m, _ := testMetrics(t)
	g, err := whitelist.New(dir, ic, opts...)
	if err != nil {
		t.Fatal(err)
	}
	chain, err := BuildChain(context.Background(), NewCache(m), m, g)
	if err != nil {
		t.Fatalf("BuildChain: %v", err)
	}
	return New(chain, WithMetrics(m))
}

func TestCache_BuildsOnce(t *testing.T) {
	t.Parallel()
	m, _ := testMetrics(t)
	c := NewCache(m)
	g := &staticGrammar{name: "abbr", pairs: []fst.Pair{{In: "Dr.", Out: "doctor"}}}

	var wg sync.WaitGroup
	frags := make([]*fst.Fragment, 16)
	for i := range frags {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f, err := c.Get(context.Background(), g)
			if err != nil {
				t.Errorf("Get: %v", err)
				return
			}
			frags[i] = f
		}()
	}
	wg.Wait()

	if n := g.builds.Load(); n != 1 {
		t.Errorf("builds = %d, want 1", n)
	}
	for i := 1; i < len(frags); i++ {
		if frags[i] != frags[0] {
			t.Fatal("callers received different fragments")
		}
	}
	if c.Len() != 1 {
		t.Errorf("Len = %d", c.Len())
	}
}

func TestCache_ErrorsNotCached(t *testing.T) {
	t.Parallel()
	m, reader := testMetrics(t)
	c := NewCache(m)
	g := &staticGrammar{name: "abbr", pairs: []fst.Pair{{In: "Dr.", Out: "doctor"}}}
	g.fail.Store(true)

	if _, err := c.Get(context.Background(), g); err == nil {
		t.Fatal("expected build error")
	}
	g.fail.Store(false)
	if _, err := c.Get(context.Background(), g); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if n := g.builds.Load(); n != 2 {
		t.Errorf("builds = %d, want 2", n)
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatal(err)
	}
	var statuses []string
	for _, sm := range rm.ScopeMetrics {
		for _, met := range sm.Metrics {
			if met.Name != "textnorm.grammar.builds" {
				continue
			}
			for _, dp := range met.Data.(metricdata.Sum[int64]).DataPoints {
				v, _ := dp.Attributes.Value("status")
				statuses = append(statuses, v.AsString())
			}
		}
	}
	slices.Sort(statuses)
	if !slices.Equal(statuses, []string{"error", "ok"}) {
		t.Errorf("build statuses = %v", statuses)
	}
}

func TestCache_KeyedByConfiguration(t *testing.T) {
	t.Parallel()
	dir := writeData(t, "mrs\tmisses\n", "")
	m, _ := testMetrics(t)
	c := NewCache(m)

	det, _ := whitelist.New(dir, lexicon.Cased)
	nondet, _ := whitelist.New(dir, lexicon.Cased, whitelist.WithDeterministic(false))
	a, err := c.Get(context.Background(), det)
	if err != nil {
		t.Fatal(err)
	}
	b, err := c.Get(context.Background(), nondet)
	if err != nil {
		t.Fatal(err)
	}
	if a == b || c.Len() != 2 {
		t.Errorf("distinct configurations shared a cache entry (len %d)", c.Len())
	}
}

func TestChain_FallsThrough(t *testing.T) {
	t.Parallel()
	m, reader := testMetrics(t)
	c := NewCache(m)
	primary := &staticGrammar{name: "abbr", pairs: []fst.Pair{{In: "Dr.", Out: "doctor"}}}
	fallback := &staticGrammar{name: "street", pairs: []fst.Pair{{In: "Dr.", Out: "drive"}, {In: "St.", Out: "street"}}}

	chain, err := BuildChain(context.Background(), c, m, primary, fallback)
	if err != nil {
		t.Fatal(err)
	}
	if got := chain.Taggers(); !slices.Equal(got, []string{"abbr", "street"}) {
		t.Errorf("Taggers = %v", got)
	}

	tests := []struct {
		span, tagger, out string
	}{
		{"Dr.", "abbr", `name: "doctor"`},
		{"St.", "street", `name: "street"`},
	}
	for _, tc := range tests {
		match, err := chain.Classify(context.Background(), tc.span, 0)
		if err != nil {
			t.Fatalf("Classify(%q): %v", tc.span, err)
		}
		if match.Tagger != tc.tagger || match.Paths[0].Output != tc.out {
			t.Errorf("Classify(%q) = %s %q", tc.span, match.Tagger, match.Paths[0].Output)
		}
	}
	if _, err := chain.Classify(context.Background(), "Ave.", 0); !errors.Is(err, fst.ErrNoMatch) {
		t.Errorf("err = %v, want ErrNoMatch", err)
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatal(err)
	}
	failures := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, met := range sm.Metrics {
			if met.Name != "textnorm.transduction.failures" {
				continue
			}
			for _, dp := range met.Data.(metricdata.Sum[int64]).DataPoints {
				v, _ := dp.Attributes.Value("grammar")
				failures[v.AsString()] = dp.Value
			}
		}
	}
	// St. misses abbr; Ave. misses both.
	if failures["abbr"] != 2 || failures["street"] != 1 {
		t.Errorf("failures = %v", failures)
	}
}

func TestBuildChain_Errors(t *testing.T) {
	t.Parallel()
	m, _ := testMetrics(t)
	if _, err := BuildChain(context.Background(), NewCache(m), m); !errors.Is(err, lexicon.ErrConfig) {
		t.Errorf("empty chain err = %v, want ErrConfig", err)
	}
	g, _ := whitelist.New(t.TempDir(), lexicon.Cased)
	if _, err := BuildChain(context.Background(), NewCache(m), m, g); !errors.Is(err, lexicon.ErrBuild) {
		t.Errorf("missing data err = %v, want ErrBuild", err)
	}
}

func TestNormalize_MrsEndToEnd(t *testing.T) {
	t.Parallel()
	dir := writeData(t, "mrs\tmisses\ne.g.\tfor example\n", "")

	cased := newNormalizer(t, dir, lexicon.Cased)
	got, err := cased.Normalize(context.Background(), "Mrs. Smith, e.g. here")
	if err != nil {
		t.Fatal(err)
	}
	if got != "misses Smith, for example here" {
		t.Errorf("cased = %q", got)
	}

	tokens, err := cased.Classify(context.Background(), "Mrs.")
	if err != nil {
		t.Fatal(err)
	}
	if len(tokens) != 1 || tokens[0].Candidates[0] != `name: "misses"` {
		t.Errorf("tokens = %+v", tokens)
	}

	lower := newNormalizer(t, dir, lexicon.LowerCased)
	got, err = lower.Normalize(context.Background(), "MRS. SMITH")
	if err != nil {
		t.Fatal(err)
	}
	if got != "misses SMITH" {
		t.Errorf("lower_cased = %q", got)
	}
}

func TestNormalize_LongestWindow(t *testing.T) {
	t.Parallel()
	dir := writeData(t, "per cent\tpercent\nper\tfor each\n", "")
	nz := newNormalizer(t, dir, lexicon.Cased)

	got, err := nz.Normalize(context.Background(), "ten  per cent, per  unit")
	if err != nil {
		t.Fatal(err)
	}
	// Punctuation glued to "cent," blocks the two-token entry.
	if got != "ten for each cent, for each unit" {
		t.Errorf("Normalize = %q", got)
	}

	got, err = nz.Normalize(context.Background(), "ten per cent of it")
	if err != nil {
		t.Fatal(err)
	}
	if got != "ten percent of it" {
		t.Errorf("Normalize = %q", got)
	}
}

func TestClassify_StateExpansion(t *testing.T) {
	t.Parallel()
	dir := writeData(t, "mrs\tmisses\n", "CA\tCalifornia\n")
	nz := newNormalizer(t, dir, lexicon.Cased, whitelist.WithDeterministic(false))

	tokens, err := nz.Classify(context.Background(), "CA, Los Angeles")
	if err != nil {
		t.Fatal(err)
	}
	if len(tokens) == 0 || !tokens[0].Matched() {
		t.Fatalf("tokens = %+v", tokens)
	}
	if !slices.Contains(tokens[0].Verbalized(), "California, Los") {
		t.Errorf("candidates = %q", tokens[0].Verbalized())
	}

	tokens, err = nz.Classify(context.Background(), "I live in CA")
	if err != nil {
		t.Fatal(err)
	}
	for _, tok := range tokens {
		if tok.Matched() {
			t.Errorf("unexpected match %+v", tok)
		}
	}
	if len(tokens) != 4 || tokens[3].Best() != "CA" {
		t.Errorf("pass-through tokens = %+v", tokens)
	}
}

func TestNormalize_Pure(t *testing.T) {
	t.Parallel()
	dir := writeData(t, "mrs\tmisses\nSt.\tstreet\nSt.\tsaint\n", "")
	nz := newNormalizer(t, dir, lexicon.Cased)

	const in = "Mrs. Jones lives on Elm St."
	want, err := nz.Normalize(context.Background(), in)
	if err != nil {
		t.Fatal(err)
	}
	if want != "misses Jones lives on Elm street" {
		t.Errorf("Normalize = %q", want)
	}

	var wg sync.WaitGroup
	for range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if got, err := nz.Normalize(context.Background(), in); err != nil || got != want {
				t.Errorf("concurrent Normalize = %q, %v", got, err)
			}
		}()
	}
	wg.Wait()
}

func TestNormalizeList(t *testing.T) {
	t.Parallel()
	dir := writeData(t, "mrs\tmisses\nDr.\tdoctor\n", "")
	nz := newNormalizer(t, dir, lexicon.Cased)

	lines := []string{"Mrs. A", "Dr. B", "", "plain text", "Dr. Mrs."}
	got, err := nz.NormalizeList(context.Background(), lines, 2)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"misses A", "doctor B", "", "plain text", "doctor misses"}
	if !slices.Equal(got, want) {
		t.Errorf("NormalizeList = %q, want %q", got, want)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := nz.NormalizeList(ctx, lines, 1); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled err = %v", err)
	}
}

func TestNormalizeList_DefaultPool(t *testing.T) {
	t.Parallel()
	dir := writeData(t, "mrs\tmisses\n", "")
	nz := newNormalizer(t, dir, lexicon.Cased)

	lines := make([]string, 500)
	for i := range lines {
		lines[i] = "ask Mrs. Smith"
	}
	got, err := nz.NormalizeList(context.Background(), lines, 0)
	if err != nil {
		t.Fatal(err)
	}
	for i, s := range got {
		if s != "ask misses Smith" {
			t.Fatalf("line %d = %q", i+1, s)
		}
	}
}

func TestWorkerLimit(t *testing.T) {
	t.Parallel()
	procs := runtime.GOMAXPROCS(0)
	tests := []struct {
		workers, want int
	}{
		{0, procs},
		{-3, procs},
		{1, 1},
		{16, 16},
	}
	for _, tc := range tests {
		if got := workerLimit(tc.workers); got != tc.want {
			t.Errorf("workerLimit(%d) = %d, want %d", tc.workers, got, tc.want)
		}
	}
}

func TestWithMaxSpan(t *testing.T) {
	t.Parallel()
	dir := writeData(t, "per cent\tpercent\n", "")
	m, _ := testMetrics(t)
	g, _ := whitelist.New(dir, lexicon.Cased)
	chain, err := BuildChain(context.Background(), NewCache(m), m, g)
	if err != nil {
		t.Fatal(err)
	}
	nz := New(chain, WithMetrics(m), WithMaxSpan(1))
	got, err := nz.Normalize(context.Background(), "ten per cent")
	if err != nil {
		t.Fatal(err)
	}
	if got != "ten per cent" {
		t.Errorf("single-token windows matched a two-token entry: %q", got)
	}
}
