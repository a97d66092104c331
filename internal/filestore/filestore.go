// Package filestore keeps raw uploads on disk, one file per document name.
package filestore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/josinaldojr/askdocs-rag/internal/rag"
)

type Store struct {
	dir string
}

func New(dir string) *Store {
	return &Store{dir: dir}
}

// Save writes data to <dir>/<name>, replacing any previous upload.
func (s *Store) Save(ctx context.Context, name string, data []byte) (string, error) {
	if err := rag.ValidateName(name); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", s.dir, err)
	}

	dst := filepath.Join(s.dir, name)
	tmp := filepath.Join(s.dir, "."+name+"."+uuid.NewString()+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("write %s: %w", name, err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("rename %s: %w", name, err)
	}
	return dst, nil
}
