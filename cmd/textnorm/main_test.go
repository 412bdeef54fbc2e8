package main

import (
	"os"
	"path/filepath"
	"testing"
)

// writeFixture lays out a data directory and a config pointing at it, and
// returns the config path.
func writeFixture(t *testing.T, whitelist string) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"data/whitelist.tsv":              whitelist,
		"data/whitelist_alternatives.tsv": "",
		"data/address/states.tsv":         "CA\tCalifornia\n",
		"textnorm.yaml": "server:\n  log_level: error\n" +
			"grammar:\n  data_dir: " + filepath.Join(dir, "data") + "\n",
	}
	for name, body := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return filepath.Join(dir, "textnorm.yaml")
}

func TestRun_Usage(t *testing.T) {
	tests := []struct {
		args []string
		want int
	}{
		{nil, 2},
		{[]string{"frobnicate"}, 2},
		{[]string{"help"}, 0},
		{[]string{"normalize", "-bogus"}, 2},
	}
	for _, tc := range tests {
		if got := run(tc.args); got != tc.want {
			t.Errorf("run(%q) = %d, want %d", tc.args, got, tc.want)
		}
	}
}

func TestRun_Normalize(t *testing.T) {
	cfg := writeFixture(t, "mrs\tmisses\nDr.\tdoctor\n")
	dir := filepath.Dir(cfg)
	in := filepath.Join(dir, "in.txt")
	out := filepath.Join(dir, "out.txt")
	if err := os.WriteFile(in, []byte("ask Mrs. Smith\nsee Dr. Jones\nnothing here\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	want := "ask misses Smith\nsee doctor Jones\nnothing here\n"
	for _, extra := range [][]string{{"-workers", "2"}, nil} {
		args := append([]string{"normalize", "-config", cfg, "-input", in, "-output", out}, extra...)
		if code := run(args); code != 0 {
			t.Fatalf("run(%q) exit code = %d", args, code)
		}
		got, err := os.ReadFile(out)
		if err != nil {
			t.Fatal(err)
		}
		if string(got) != want {
			t.Errorf("run(%q) output = %q, want %q", args, got, want)
		}
	}
}

func TestRun_NormalizeMissingConfig(t *testing.T) {
	if code := run([]string{"normalize", "-config", filepath.Join(t.TempDir(), "absent.yaml")}); code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
}

func TestRun_Lint(t *testing.T) {
	if code := run([]string{"lint", "-config", writeFixture(t, "mrs\tmisses\n")}); code != 0 {
		t.Errorf("clean lexicon: exit code = %d, want 0", code)
	}
	if code := run([]string{"lint", "-config", writeFixture(t, "mrs\tmisses\nmrs\tmisses\n")}); code != 1 {
		t.Errorf("duplicate rows: exit code = %d, want 1", code)
	}
}
