package project

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

const storeVersion = 1

type storeFile struct {
	Version  int        `json:"version"`
	Projects []*Project `json:"projects"`
}

// store persists projects as a JSON document.
type store struct {
	path string
}

func (s *store) load() ([]*Project, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading project registry: %w", err)
	}

	var f storeFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing project registry %s: %w", s.path, err)
	}
	if f.Version != storeVersion {
		return nil, fmt.Errorf("unsupported project registry version %d", f.Version)
	}

	seen := make(map[string]bool, len(f.Projects))
	for _, p := range f.Projects {
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("project registry %s: %w", s.path, err)
		}
		if seen[p.Name] {
			return nil, fmt.Errorf("project registry %s: %w: duplicate name %q", s.path, ErrProjectExists, p.Name)
		}
		seen[p.Name] = true
	}
	return f.Projects, nil
}

// save writes through a temp file and rename so readers never observe a
// partial document.
func (s *store) save(projects []*Project) error {
	if projects == nil {
		projects = []*Project{}
	}
	data, err := json.MarshalIndent(storeFile{Version: storeVersion, Projects: projects}, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding project registry: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating registry directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".projects-*.json")
	if err != nil {
		return fmt.Errorf("creating temp registry file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("writing project registry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing project registry: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replacing project registry: %w", err)
	}
	return nil
}
