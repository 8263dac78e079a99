package models

import "errors"

var (
	// ErrRecordNotFound is returned when a store lookup finds nothing.
	ErrRecordNotFound = errors.New("record not found")
	// ErrSourceNotFound is returned for lookups of unknown monitored sources.
	ErrSourceNotFound = errors.New("monitored source not found")
	// ErrVersionNotFound is returned when a version number does not exist for
	// a source. Version numbers may have gaps; absence of N says nothing
	// about N+1.
	ErrVersionNotFound = errors.New("version not found")
	// ErrDiffMissing is returned when a snapshot past the first version has no
	// stored diff. A nil diff is valid only for a source's first recorded
	// version; anywhere else it is a data-integrity error.
	ErrDiffMissing = errors.New("diff missing for non-initial version")
)
