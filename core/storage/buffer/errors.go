package buffer

import "errors"

var (
	// ErrExhausted is returned by FetchPage/NewPage when the free list and
	// the replacer are both empty: every frame is pinned.
	ErrExhausted = errors.New("buffer: pool exhausted, no evictable frame")
)
