package observe

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestSetup_RejectsBadRatio(t *testing.T) {
	for _, r := range []float64{-0.1, 1.5} {
		if _, err := Setup(context.Background(), ProviderConfig{SampleRatio: r}); err == nil {
			t.Errorf("SampleRatio %v accepted", r)
		}
	}
}

func TestTelemetry_HandlerExposesMetrics(t *testing.T) {
	ctx := context.Background()
	tel, err := Setup(ctx, ProviderConfig{ServiceName: "textnorm-test", SampleRatio: 0.5})
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	t.Cleanup(func() { _ = tel.Shutdown(context.Background()) })

	m, err := NewMetrics(tel.MeterProvider)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	m.RecordGrammarBuild(ctx, "whitelist", 0.25, 42, nil)

	rec := httptest.NewRecorder()
	tel.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{
		"textnorm_grammar_builds",
		"textnorm_grammar_states",
		`grammar="whitelist"`,
		"go_goroutines",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("exposition missing %q", want)
		}
	}
}

func TestTelemetry_Shutdown(t *testing.T) {
	tel, err := Setup(context.Background(), ProviderConfig{})
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if err := tel.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}
