package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func ok(context.Context) error { return nil }

func get(t *testing.T, h http.Handler, path string) (int, result) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("%s Content-Type = %q", path, ct)
	}
	var body result
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("%s decode: %v", path, err)
	}
	return rec.Code, body
}

func mux(h *Handler) *http.ServeMux {
	m := http.NewServeMux()
	h.Register(m)
	return m
}

func TestHealthz(t *testing.T) {
	t.Parallel()
	failing := Checker{Name: "grammars", Check: func(context.Context) error { return errors.New("down") }}

	code, body := get(t, mux(New(failing)), "/healthz")
	if code != http.StatusOK || body.Status != "ok" {
		t.Errorf("got %d %q, want 200 ok even with failing checkers", code, body.Status)
	}
}

func TestReadyz(t *testing.T) {
	t.Parallel()
	fail := func(msg string) func(context.Context) error {
		return func(context.Context) error { return errors.New(msg) }
	}

	tests := []struct {
		name     string
		checkers []Checker
		code     int
		status   string
		checks   map[string]string
	}{
		{
			name:   "no checkers",
			code:   http.StatusOK,
			status: "ok",
		},
		{
			name:     "all pass",
			checkers: []Checker{{"grammars", ok}, {"lexicons", ok}},
			code:     http.StatusOK,
			status:   "ok",
			checks:   map[string]string{"grammars": "ok", "lexicons": "ok"},
		},
		{
			name:     "one fails",
			checkers: []Checker{{"grammars", ok}, {"lexicons", fail("whitelist.tsv missing")}},
			code:     http.StatusServiceUnavailable,
			status:   "fail",
			checks:   map[string]string{"grammars": "ok", "lexicons": "fail: whitelist.tsv missing"},
		},
		{
			name:     "all fail",
			checkers: []Checker{{"grammars", fail("build failed")}, {"lexicons", fail("gone")}},
			code:     http.StatusServiceUnavailable,
			status:   "fail",
			checks:   map[string]string{"grammars": "fail: build failed", "lexicons": "fail: gone"},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			code, body := get(t, mux(New(tc.checkers...)), "/readyz")
			if code != tc.code || body.Status != tc.status {
				t.Errorf("got %d %q, want %d %q", code, body.Status, tc.code, tc.status)
			}
			for name, want := range tc.checks {
				if got := body.Checks[name]; got != want {
					t.Errorf("checks[%s] = %q, want %q", name, got, want)
				}
			}
		})
	}
}

func TestReadyz_ChecksRunConcurrently(t *testing.T) {
	t.Parallel()
	// Each checker waits for the other; sequential evaluation would time out.
	var wg sync.WaitGroup
	wg.Add(2)
	rendezvous := func(ctx context.Context) error {
		wg.Done()
		done := make(chan struct{})
		go func() { wg.Wait(); close(done) }()
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	code, body := get(t, mux(New(Checker{"a", rendezvous}, Checker{"b", rendezvous})), "/readyz")
	if code != http.StatusOK {
		t.Errorf("status = %d, checks %v", code, body.Checks)
	}
}

func TestReadyz_CancelledRequest(t *testing.T) {
	t.Parallel()
	h := New(Checker{"grammars", func(ctx context.Context) error { return ctx.Err() }})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil).WithContext(ctx))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestFlag(t *testing.T) {
	t.Parallel()
	var f Flag
	c := f.Checker("grammars")
	if c.Name != "grammars" {
		t.Errorf("name = %q", c.Name)
	}
	if err := c.Check(context.Background()); !errors.Is(err, ErrNotReady) {
		t.Errorf("before Mark: %v, want ErrNotReady", err)
	}
	boom := errors.New("build failed")
	f.Mark(boom)
	if err := c.Check(context.Background()); !errors.Is(err, boom) {
		t.Errorf("after failed Mark: %v", err)
	}
	f.Mark(nil)
	if err := c.Check(context.Background()); err != nil {
		t.Errorf("after Mark(nil): %v", err)
	}
}

func TestFilesChecker(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	file := filepath.Join(dir, "whitelist.tsv")
	if err := os.WriteFile(file, []byte("mrs\tmisses\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := FilesChecker("lexicons", file).Check(context.Background()); err != nil {
		t.Errorf("present file: %v", err)
	}

	missing := filepath.Join(dir, "override.tsv")
	err := FilesChecker("lexicons", file, missing, dir).Check(context.Background())
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing file not reported: %v", err)
	}
	if err == nil || !strings.Contains(err.Error(), "is a directory") {
		t.Errorf("directory not reported: %v", err)
	}
}
