package automation

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ArtifactStore creates per-invocation artifact directories under one root
type ArtifactStore struct {
	root string
}

// NewArtifactStore creates the root directory if needed
func NewArtifactStore(root string) (*ArtifactStore, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create artifacts directory: %w", err)
	}
	return &ArtifactStore{root: root}, nil
}

// Root returns the artifacts root directory
func (s *ArtifactStore) Root() string {
	return s.root
}

// Create makes a fresh directory for one invocation
func (s *ArtifactStore) Create(prefix string) (*Artifacts, error) {
	dir, err := os.MkdirTemp(s.root, prefix+"-")
	if err != nil {
		return nil, fmt.Errorf("failed to create artifact directory: %w", err)
	}
	return &Artifacts{Dir: dir}, nil
}

// RemoveOlderThan deletes artifact directories last modified before now-maxAge.
// Directories still owned by a live outcome are younger than any sane maxAge.
func (s *ArtifactStore) RemoveOlderThan(maxAge time.Duration, now time.Time) (int, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return 0, fmt.Errorf("failed to read artifacts directory: %w", err)
	}

	removed := 0
	cutoff := now.Add(-maxAge)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(s.root, entry.Name())); err != nil {
			return removed, fmt.Errorf("failed to remove %s: %w", entry.Name(), err)
		}
		removed++
	}
	return removed, nil
}

// Artifacts is one invocation's scratch directory
type Artifacts struct {
	Dir string
}

// Path joins rel onto the artifact directory
func (a *Artifacts) Path(rel ...string) string {
	return filepath.Join(append([]string{a.Dir}, rel...)...)
}

// WriteFile writes data at rel, creating parent directories, and returns the full path
func (a *Artifacts) WriteFile(rel string, data []byte) (string, error) {
	path := a.Path(rel)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", filepath.Dir(rel), err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", rel, err)
	}
	return path, nil
}

// WriteJSON writes v as indented JSON at rel
func (a *Artifacts) WriteJSON(rel string, v interface{}) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal %s: %w", rel, err)
	}
	return a.WriteFile(rel, data)
}

// Remove deletes the directory and everything in it
func (a *Artifacts) Remove() error {
	return os.RemoveAll(a.Dir)
}
