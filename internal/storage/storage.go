package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned when the referenced document does not exist.
var ErrNotFound = errors.New("document not found")

// Store resolves an opaque document reference to the raw file bytes. The
// pipeline only ever reads; writing uploads is the intake boundary's job.
type Store interface {
	Fetch(ctx context.Context, ref string) ([]byte, error)
}
