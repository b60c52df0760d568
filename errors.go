package fat32

import "errors"

// Error taxonomy. Every operation that fails returns one of these,
// wrapped with context via fmt.Errorf("%w: ...", ErrX), never a panic;
// callers branch with errors.Is.
var (
	// ErrDevice wraps an underlying block-device read/write failure.
	ErrDevice = errors.New("fat32: device error")

	// ErrNotFound is returned when a path component or name lookup misses.
	ErrNotFound = errors.New("fat32: not found")

	// ErrExist is returned when create targets a name that already exists.
	ErrExist = errors.New("fat32: already exists")

	// ErrNotDirectory is returned when a directory operation is invoked on
	// a file handle.
	ErrNotDirectory = errors.New("fat32: not a directory")

	// ErrIsDirectory is returned when a file operation is invoked on a
	// directory handle.
	ErrIsDirectory = errors.New("fat32: is a directory")

	// ErrInvalidName is returned when a name contains illegal bytes or
	// exceeds the length limits.
	ErrInvalidName = errors.New("fat32: invalid name")

	// ErrOutOfSpace is returned when the allocator cannot satisfy a
	// cluster request.
	ErrOutOfSpace = errors.New("fat32: volume out of space")

	// ErrCorrupt is returned when a signature or geometry check fails, an
	// on-disk record fails to decode or encode, a write runs past the end
	// of an allocated chain, or Check finds a structural fault. Orphaned
	// LDE sets are skipped by directory scans rather than reported, and an
	// SDE's first-cluster field is not range-checked.
	ErrCorrupt = errors.New("fat32: corrupt volume")

	// ErrBufferTooSmall / ErrOutOfBounds bound the byte-level read/write
	// APIs.
	ErrBufferTooSmall = errors.New("fat32: buffer too small")
	ErrOutOfBounds    = errors.New("fat32: out of bounds")

	// ErrClosed is returned by operations on a File/Dir handle that has
	// already been closed.
	ErrClosed = errors.New("fat32: handle closed")

	// ErrNotMounted is returned when an operation is attempted on an FS
	// value that has not completed Mount or Format.
	ErrNotMounted = errors.New("fat32: filesystem not mounted")

	// ErrAccessDenied is returned when a handle's open mode forbids the
	// requested operation (e.g. Write on a read-only handle).
	ErrAccessDenied = errors.New("fat32: access denied")

	// ErrNotEmpty is returned when Remove targets a non-empty directory.
	ErrNotEmpty = errors.New("fat32: directory not empty")
)
