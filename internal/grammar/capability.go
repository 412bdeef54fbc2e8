package grammar

import (
	"errors"
	"fmt"
	"slices"

	"github.com/MrWong99/textnorm/pkg/lexicon"
)

// Capability names a feature a pipeline may depend on.
type Capability string

const (
	// CapTransducer is the in-process transducer engine.
	CapTransducer Capability = "transducer"

	// CapNonDeterministic is multi-candidate output for downstream
	// disambiguation.
	CapNonDeterministic Capability = "non_deterministic"

	// CapOverride is caller-supplied override lexicons.
	CapOverride Capability = "override"

	// CapArchive is export of compiled grammars to an FST archive. Not
	// provided by this build.
	CapArchive Capability = "archive"
)

// Available lists the capabilities this build provides.
func Available() []Capability {
	return []Capability{CapTransducer, CapNonDeterministic, CapOverride}
}

// CheckCapabilities verifies that every required capability is available.
// It is meant to run once while the pipeline is constructed; a missing
// capability fails with [lexicon.ErrConfig] instead of silently dropping
// grammars.
func CheckCapabilities(required ...Capability) error {
	have := Available()
	var errs []error
	for _, c := range required {
		if !slices.Contains(have, c) {
			errs = append(errs, fmt.Errorf("%w: capability %q is not available (have %v)", lexicon.ErrConfig, c, have))
		}
	}
	return errors.Join(errs...)
}
