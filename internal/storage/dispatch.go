package storage

import (
	"context"
	"strings"
)

// DispatchStore routes a document ref to the store that understands it:
// full http(s) URLs go to the remote store, everything else to the local
// upload directory.
type DispatchStore struct {
	local  Store
	remote Store
}

func NewDispatchStore(local, remote Store) *DispatchStore {
	return &DispatchStore{local: local, remote: remote}
}

func (s *DispatchStore) Fetch(ctx context.Context, ref string) ([]byte, error) {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return s.remote.Fetch(ctx, ref)
	}
	return s.local.Fetch(ctx, ref)
}
