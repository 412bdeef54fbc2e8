// Package lexicon loads two-column, tab-separated surface/normalized
// mappings used as the raw material for normalization grammars.
//
// Each non-empty row must contain exactly two tab-separated columns:
//
//	Mrs.	misses
//	Dr.	doctor
//
// Duplicated surface forms are allowed; they become alternative transduction
// paths rather than errors. The loader never caches. Grammar builders own
// memoization of whatever they derive from the entries.
package lexicon

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"

	"github.com/MrWong99/textnorm/pkg/fst"
)

// ErrBuild is returned when a lexicon file is missing or unreadable. It is
// the same sentinel as [fst.ErrBuild], so callers need only one check for
// initialization failures.
var ErrBuild = fst.ErrBuild

// ErrFileFormat is returned when a row does not contain exactly two columns.
var ErrFileFormat = errors.New("lexicon: malformed row")

// ErrConfig is returned for invalid loader configuration such as an unknown
// input case.
var ErrConfig = errors.New("lexicon: invalid configuration")

// InputCase selects how surface forms are matched.
type InputCase string

const (
	// LowerCased folds every surface form; inputs are expected to be folded
	// the same way before matching.
	LowerCased InputCase = "lower_cased"

	// Cased matches surface forms exactly as written.
	Cased InputCase = "cased"
)

// IsValid reports whether c is a recognised input case.
func (c InputCase) IsValid() bool {
	return c == LowerCased || c == Cased
}

// ParseInputCase converts s into an [InputCase].
func ParseInputCase(s string) (InputCase, error) {
	c := InputCase(strings.TrimSpace(s))
	if !c.IsValid() {
		return "", fmt.Errorf("%w: input_case %q; valid values: lower_cased, cased", ErrConfig, s)
	}
	return c, nil
}

// Fold applies the surface folding policy of c to s. Cased input is returned
// NFC-normalized but otherwise unchanged.
func (c InputCase) Fold(s string) string {
	s = norm.NFC.String(s)
	if c == LowerCased {
		return cases.Lower(language.Und).String(s)
	}
	return s
}

// Entry is one surface → normalized mapping.
type Entry struct {
	Surface    string
	Normalized string
}

// Pairs converts entries to transducer pairs in order.
func Pairs(entries []Entry) []fst.Pair {
	pairs := make([]fst.Pair, len(entries))
	for i, e := range entries {
		pairs[i] = fst.Pair{In: e.Surface, Out: e.Normalized}
	}
	return pairs
}

// FormatError describes a malformed lexicon row.
type FormatError struct {
	Path    string
	Line    int
	Columns int
}

func (e *FormatError) Error() string {
	where := e.Path
	if where == "" {
		where = "<reader>"
	}
	return fmt.Sprintf("lexicon: %s:%d: want 2 tab-separated columns, got %d", where, e.Line, e.Columns)
}

// Is makes errors.Is(err, ErrFileFormat) hold for every FormatError.
func (e *FormatError) Is(target error) bool { return target == ErrFileFormat }

// Load reads the lexicon at path. Surface forms are folded according to
// inputCase; normalized forms are left untouched apart from NFC
// normalization.
func Load(path string, inputCase InputCase) ([]Entry, error) {
	if !inputCase.IsValid() {
		return nil, fmt.Errorf("%w: input_case %q", ErrConfig, inputCase)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: lexicon: open %q: %v", ErrBuild, path, err)
	}
	defer f.Close()

	entries, err := read(f, path, inputCase)
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Read parses lexicon rows from r. The reader is consumed entirely; the
// caller is responsible for closing it.
func Read(r io.Reader, inputCase InputCase) ([]Entry, error) {
	if !inputCase.IsValid() {
		return nil, fmt.Errorf("%w: input_case %q", ErrConfig, inputCase)
	}
	return read(r, "", inputCase)
}

func read(r io.Reader, path string, inputCase InputCase) ([]Entry, error) {
	var entries []Entry
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSuffix(sc.Text(), "\r")
		if line == 1 {
			text = strings.TrimPrefix(text, "\ufeff")
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		cols := strings.Split(text, "\t")
		if len(cols) != 2 {
			return nil, &FormatError{Path: path, Line: line, Columns: len(cols)}
		}
		entries = append(entries, Entry{
			Surface:    inputCase.Fold(cols[0]),
			Normalized: norm.NFC.String(cols[1]),
		})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: lexicon: read %q: %v", ErrBuild, path, err)
	}
	return entries, nil
}
