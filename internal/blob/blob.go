// Package blob stores observation images and hands back stable
// reference URLs.
package blob

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// ErrStorage wraps quota or permission failures from the backing store.
var ErrStorage = errors.New("blob storage failure")

// Store uploads opaque image payloads.
type Store interface {
	// Upload persists the payload under the owner's namespace and
	// returns a reference URL.
	Upload(payload []byte, ownerID string) (string, error)
}

// FS stores blobs as files under a workspace directory. The returned
// reference uses the file scheme; callers treat it as opaque.
type FS struct {
	Root string
}

func NewFS(root string) *FS {
	return &FS{Root: root}
}

func (f *FS) Upload(payload []byte, ownerID string) (string, error) {
	if len(payload) == 0 {
		return "", fmt.Errorf("%w: empty payload", ErrStorage)
	}
	dir := filepath.Join(f.Root, "images", ownerID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("%w: %v", ErrStorage, err)
	}
	name := uuid.New().String() + ".img"
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return "", fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return "file://" + path, nil
}
