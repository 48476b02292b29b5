package dispatch

import "errors"

const (
	baseVerbosityConstant                    = 1
	conflictingVerbosityFlagsMessageConstant = "--verbosity cannot be combined with -v or -q"
)

// ErrConflictingVerbosityFlags reports that the absolute verbosity flag was
// combined with the incremental counters. It is a usage error raised before
// any module code executes.
var ErrConflictingVerbosityFlags = errors.New(conflictingVerbosityFlagsMessageConstant)

// VerbositySettings captures the raw verbosity inputs of one invocation. The
// two input modes are mutually exclusive and validated at resolution time.
type VerbositySettings struct {
	// Explicit is the absolute level supplied via --verbosity.
	Explicit int
	// ExplicitSet records whether --verbosity was supplied at all.
	ExplicitSet bool
	// Increase counts the -v occurrences.
	Increase int
	// Decrease counts the -q occurrences.
	Decrease int
}

// Resolve computes the effective verbosity: the explicit level when supplied,
// otherwise the base level adjusted by the counters. Supplying both modes is
// rejected.
func (settings VerbositySettings) Resolve() (int, error) {
	countersUsed := settings.Increase > 0 || settings.Decrease > 0
	if settings.ExplicitSet && countersUsed {
		return 0, ErrConflictingVerbosityFlags
	}
	if settings.ExplicitSet {
		return settings.Explicit, nil
	}
	return baseVerbosityConstant + settings.Increase - settings.Decrease, nil
}
