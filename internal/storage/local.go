package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LocalStore serves documents from a base directory. Upload handlers save
// files under the same directory and pass the relative name as the reference.
type LocalStore struct {
	baseDir string
}

func NewLocalStore(baseDir string) *LocalStore {
	return &LocalStore{baseDir: baseDir}
}

func (s *LocalStore) Fetch(ctx context.Context, ref string) ([]byte, error) {
	clean := filepath.Clean(ref)
	if strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return nil, fmt.Errorf("invalid document ref %q: %w", ref, ErrNotFound)
	}

	data, err := os.ReadFile(filepath.Join(s.baseDir, clean))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("ref %q: %w", ref, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read document %q: %w", ref, err)
	}
	return data, nil
}
