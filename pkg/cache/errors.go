package cache

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by stores for missing artifacts.
	ErrNotFound = errors.New("cache: not found")
	// ErrCorrupted marks a payload that could not be decoded.
	ErrCorrupted = errors.New("cache: corrupted entry")
)

// CorruptionError reports an undecodable payload. The entry is purged and
// treated as a miss.
type CorruptionError struct {
	Key string
	Err error
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("cache: corrupted entry %s: %v", e.Key, e.Err)
}

func (e *CorruptionError) Is(target error) bool {
	return target == ErrCorrupted
}

func (e *CorruptionError) Unwrap() error {
	return e.Err
}
