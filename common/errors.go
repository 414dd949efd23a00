package common

import "errors"

var (
	ErrKeyNotFound = errors.New("key not found")
	ErrDiskFull    = errors.New("disk full")

	ErrClosed   = errors.New("storage engine closed")
	ErrKeyEmpty = errors.New("key cannot be empty")

	// ErrPoolExhausted is returned by the buffer pool when every frame
	// is pinned and none can be reclaimed.
	ErrPoolExhausted = errors.New("buffer pool exhausted: no frame available")

	// ErrNoSpace is returned by the page allocator when the free list
	// and bump region are both exhausted.
	ErrNoSpace = errors.New("no space left: free list and bump region exhausted")

	// ErrOutOfPage is returned when a write would cross a page boundary.
	ErrOutOfPage = errors.New("write would cross page boundary")

	// ErrCorruptNode is returned when a decoded node violates a
	// structural invariant (count > FANOUT, non-ascending keys, or an
	// internal node with no slot selecting a child for a given key).
	ErrCorruptNode = errors.New("corrupt node: structural invariant violated")

	// ErrDirectoryFull and ErrFileFull are returned by the object layer
	// when an entry would overflow its single backing page.
	ErrDirectoryFull = errors.New("directory page full")
	ErrFileFull      = errors.New("file payload exceeds single page")

	// ErrCorruptEntry is returned when a directory page's encoded entry
	// list cannot be parsed (a truncated or overflowing varint).
	ErrCorruptEntry = errors.New("corrupt directory entry")

	// ErrNotDirectory and ErrNotFile are returned when an operation is
	// applied to an inode of the wrong object type.
	ErrNotDirectory = errors.New("object is not a directory")
	ErrNotFile      = errors.New("object is not a file")

	// ErrNameExists and ErrNameNotFound cover directory-entry lookups.
	ErrNameExists   = errors.New("name already exists in directory")
	ErrNameNotFound = errors.New("name not found in directory")
)
