// Package localstore implements variantstore.Store against a plain
// filesystem tree, the layout the original C server assumed directly
// (VIDEO_PATH/<id>/<file>). It is adapted from DayQuest-CDN's
// internal/storage.LocalStorage, trimmed to the whole-file reads the
// video cache needs.
package localstore

import (
	"context"
	"os"
	"path/filepath"

	"github.com/pulsejet/go-vod-chop/internal/sidecar"
)

// Store reads variant and sidecar files relative to Root.
type Store struct {
	Root string
}

// New builds a Store rooted at root.
func New(root string) *Store {
	return &Store{Root: root}
}

func (s *Store) ReadSidecar(ctx context.Context, dir string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return os.ReadFile(filepath.Join(s.Root, dir, sidecar.Filename))
}

func (s *Store) ReadVariant(ctx context.Context, dir, filename string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return os.ReadFile(filepath.Join(s.Root, dir, filename))
}
