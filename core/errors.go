package core

import "errors"

// Sentinel errors for expected conditions. Public operations return these
// wrapped with context; callers test with errors.Is.
//
// Duplicate checkpoints and depth-gate rejections are NOT errors; they are
// distinguishable no-op results (see checkpoint.SaveResult). Only conditions
// the caller must branch on as failures live here.
var (
	// ErrNotFound indicates an unknown identifier on load/update/remove.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates a malformed identifier, an out-of-range
	// numeric field, or a path-traversal attempt in an identifier.
	ErrInvalidInput = errors.New("invalid input")

	// ErrModelUnavailable indicates the embedding backend could not be
	// loaded. Callers degrade to keyword-only scoring rather than failing;
	// the degradation is always surfaced as a visible status.
	ErrModelUnavailable = errors.New("embedding model unavailable")
)
