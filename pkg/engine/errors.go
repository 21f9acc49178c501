package engine

import "errors"

var (
	// ErrNotFound marks a missing document, version, entity or candidate.
	// Reconciliation against a missing target writes nothing.
	ErrNotFound = errors.New("not found")

	// ErrBlankSurface rejects names and aliases that normalize to nothing.
	ErrBlankSurface = errors.New("surface is blank")
)
