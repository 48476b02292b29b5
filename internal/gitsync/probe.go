package gitsync

import "os"

const writeProbePatternConstant = ".ego-write-probe-*"

// WritabilityProbe reports whether a working copy path rejects writes. The
// probe runs before every mutating operation because filesystem permissions
// can change between calls.
type WritabilityProbe interface {
	IsReadOnly(path string) bool
}

// MarkerFileProbe detects read-only working copies empirically by creating
// and removing a marker file inside the path.
type MarkerFileProbe struct{}

// NewMarkerFileProbe constructs the default attempt-and-observe probe.
func NewMarkerFileProbe() MarkerFileProbe {
	return MarkerFileProbe{}
}

// IsReadOnly reports true when the marker file cannot be created, which
// covers both permission failures and missing paths.
func (MarkerFileProbe) IsReadOnly(path string) bool {
	markerFile, creationError := os.CreateTemp(path, writeProbePatternConstant)
	if creationError != nil {
		return true
	}
	markerName := markerFile.Name()
	_ = markerFile.Close()
	_ = os.Remove(markerName)
	return false
}
