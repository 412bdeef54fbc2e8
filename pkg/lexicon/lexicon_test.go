package lexicon_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MrWong99/textnorm/pkg/lexicon"
)

func writeLexicon(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lexicon.tsv")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write lexicon: %v", err)
	}
	return path
}

func TestLoad_Cased(t *testing.T) {
	t.Parallel()
	path := writeLexicon(t, "Mrs.\tmisses\nDr.\tDoctor\n\n")

	entries, err := lexicon.Load(path, lexicon.Cased)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := []lexicon.Entry{
		{Surface: "Mrs.", Normalized: "misses"},
		{Surface: "Dr.", Normalized: "Doctor"},
	}
	if len(entries) != len(want) {
		t.Fatalf("got %d entries, want %d", len(entries), len(want))
	}
	for i := range want {
		if entries[i] != want[i] {
			t.Errorf("entry %d = %+v, want %+v", i, entries[i], want[i])
		}
	}
}

func TestLoad_LowerCasedFoldsSurfaceOnly(t *testing.T) {
	t.Parallel()
	path := writeLexicon(t, "Dr.\tDoctor\ndr.\tdrive\nSTRASSE\tStraße\n")

	entries, err := lexicon.Load(path, lexicon.LowerCased)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if entries[0].Surface != "dr." || entries[1].Surface != "dr." {
		t.Errorf("surfaces not folded: %+v", entries)
	}
	if entries[0].Normalized != "Doctor" {
		t.Errorf("normalized form changed: %q", entries[0].Normalized)
	}
	if entries[2].Surface != "strasse" || entries[2].Normalized != "Straße" {
		t.Errorf("entry 2 = %+v", entries[2])
	}
}

func TestRead_HandlesCRLFAndBOM(t *testing.T) {
	t.Parallel()
	entries, err := lexicon.Read(strings.NewReader("\ufeffe.g.\tfor example\r\nSt.\tsaint\r\n"), lexicon.Cased)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(entries) != 2 || entries[0].Surface != "e.g." || entries[1].Normalized != "saint" {
		t.Errorf("entries = %+v", entries)
	}
}

func TestRead_NormalizesToNFC(t *testing.T) {
	t.Parallel()
	// "e" followed by a combining acute accent.
	entries, err := lexicon.Read(strings.NewReader("cafe\u0301\tcafe\u0301\n"), lexicon.Cased)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if entries[0].Surface != "caf\u00e9" || entries[0].Normalized != "caf\u00e9" {
		t.Errorf("entry = %+q", entries[0])
	}
}

func TestLoad_MalformedRow(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		content string
		line    int
		columns int
	}{
		{"one column", "Mrs.\tmisses\nDr.\n", 2, 1},
		{"three columns", "a\tb\tc\n", 1, 3},
		{"space instead of tab", "Mrs. misses\n", 1, 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			path := writeLexicon(t, tc.content)
			_, err := lexicon.Load(path, lexicon.Cased)
			if !errors.Is(err, lexicon.ErrFileFormat) {
				t.Fatalf("err = %v, want ErrFileFormat", err)
			}
			var fe *lexicon.FormatError
			if !errors.As(err, &fe) {
				t.Fatalf("err is not a *FormatError: %T", err)
			}
			if fe.Line != tc.line || fe.Columns != tc.columns || fe.Path != path {
				t.Errorf("FormatError = %+v, want line %d columns %d", fe, tc.line, tc.columns)
			}
		})
	}
}

func TestLoad_MissingFileIsBuildError(t *testing.T) {
	t.Parallel()
	_, err := lexicon.Load(filepath.Join(t.TempDir(), "missing.tsv"), lexicon.Cased)
	if !errors.Is(err, lexicon.ErrBuild) {
		t.Fatalf("err = %v, want ErrBuild", err)
	}
}

func TestParseInputCase(t *testing.T) {
	t.Parallel()
	for _, s := range []string{"cased", "lower_cased", " cased "} {
		if _, err := lexicon.ParseInputCase(s); err != nil {
			t.Errorf("ParseInputCase(%q): %v", s, err)
		}
	}
	for _, s := range []string{"", "upper", "Cased"} {
		if _, err := lexicon.ParseInputCase(s); !errors.Is(err, lexicon.ErrConfig) {
			t.Errorf("ParseInputCase(%q) err = %v, want ErrConfig", s, err)
		}
	}
	if _, err := lexicon.Load("whatever.tsv", lexicon.InputCase("bogus")); !errors.Is(err, lexicon.ErrConfig) {
		t.Errorf("Load with bogus case err = %v, want ErrConfig", err)
	}
}

func TestPairs_PreservesOrder(t *testing.T) {
	t.Parallel()
	pairs := lexicon.Pairs([]lexicon.Entry{{"b", "2"}, {"a", "1"}})
	if pairs[0].In != "b" || pairs[1].Out != "1" {
		t.Errorf("pairs = %+v", pairs)
	}
}
