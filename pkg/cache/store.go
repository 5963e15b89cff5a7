package cache

import (
	"context"
)

// Store persists named artifacts. Names are flat, e.g. "<key>.json".
//
// Read returns ErrNotFound for missing names. Remove of a missing name is not
// an error. List returns every name in the store in no particular order.
type Store interface {
	Read(ctx context.Context, name string) ([]byte, error)
	Write(ctx context.Context, name string, data []byte) error
	Remove(ctx context.Context, name string) error
	List(ctx context.Context) ([]string, error)
}
