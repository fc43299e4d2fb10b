// Package cache keeps a per-identity snapshot of the last successful
// fetch. It is consulted only when the live fetch fails; a fresh fetch
// always replaces the snapshot.
package cache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"safetrack/internal/domain"
)

// Snapshot stores and recalls the last known-good observation set per
// identity.
type Snapshot interface {
	Put(identityID string, obs []domain.Observation) error
	// Get returns the cached set, or an empty set when no snapshot
	// exists for the identity.
	Get(identityID string) []domain.Observation
}

// File persists snapshots as JSON files under a workspace directory,
// one file per identity.
type File struct {
	Root string

	mu sync.Mutex
}

func NewFile(root string) *File {
	return &File{Root: root}
}

func (f *File) path(identityID string) string {
	return filepath.Join(f.Root, "cache", identityID+".json")
}

func (f *File) Put(identityID string, obs []domain.Observation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if obs == nil {
		obs = []domain.Observation{}
	}
	data, err := json.Marshal(obs)
	if err != nil {
		return err
	}
	path := f.path(identityID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func (f *File) Get(identityID string) []domain.Observation {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, err := os.ReadFile(f.path(identityID))
	if err != nil {
		return []domain.Observation{}
	}
	var obs []domain.Observation
	if err := json.Unmarshal(data, &obs); err != nil {
		return []domain.Observation{}
	}
	if obs == nil {
		obs = []domain.Observation{}
	}
	return obs
}
