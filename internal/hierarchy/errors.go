package hierarchy

import "errors"

// Hierarchy errors.
var (
	// ErrDuplicatePath is returned when a path is inserted twice.
	ErrDuplicatePath = errors.New("path already present in hierarchy")

	// ErrMissingRoot is returned by Validate when "/" is not a key.
	ErrMissingRoot = errors.New("hierarchy has no root entry")

	// ErrRootNotDir is returned by Validate when "/" is a file.
	ErrRootNotDir = errors.New("hierarchy root is not a directory")

	// ErrParentNotDir is returned by Validate when an entry's nearest
	// ancestor in the hierarchy is a file.
	ErrParentNotDir = errors.New("nearest ancestor is not a directory")

	// ErrNilEntry is returned when a nil entry is inserted.
	ErrNilEntry = errors.New("entry must not be nil")
)
