package project

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Common errors.
var (
	ErrProjectNotFound    = errors.New("project not found")
	ErrProjectExists      = errors.New("project already exists")
	ErrInvalidProjectID   = errors.New("invalid project ID")
	ErrInvalidProjectName = errors.New("invalid project name")
	ErrInvalidProjectPath = errors.New("invalid project path")
)

const maxNameLen = 128

// Project is a registered context project.
type Project struct {
	// ID is the unique project identifier (UUID).
	ID string `json:"id"`

	// Name is the unique, human-readable project name.
	Name string `json:"name"`

	// Path is the absolute folder location.
	Path string `json:"path"`

	// Enabled projects take part in auto-sync.
	Enabled bool `json:"enabled"`

	// RemoteURL is the origin remote discovered when the project was added.
	RemoteURL string `json:"remote_url,omitempty"`

	// LastSyncedAt is when updates were last pulled into the folder.
	LastSyncedAt *time.Time `json:"last_synced_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Ref is the read-only view of a project consumed by auto-sync.
type Ref struct {
	Name    string `json:"name"`
	Path    string `json:"path"`
	Enabled bool   `json:"enabled"`
}

// Ref returns the project's sync view.
func (p *Project) Ref() Ref {
	return Ref{Name: p.Name, Path: p.Path, Enabled: p.Enabled}
}

// NewProject creates an enabled project with a generated UUID.
func NewProject(name, path string, now time.Time) (*Project, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	if path == "" {
		return nil, fmt.Errorf("%w: path cannot be empty", ErrInvalidProjectPath)
	}

	return &Project{
		ID:        uuid.New().String(),
		Name:      name,
		Path:      path,
		Enabled:   true,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// ValidateName rejects empty, overlong, or path-like names.
func ValidateName(name string) error {
	switch {
	case strings.TrimSpace(name) == "":
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidProjectName)
	case len(name) > maxNameLen:
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidProjectName, maxNameLen)
	case strings.ContainsAny(name, `/\`):
		return fmt.Errorf("%w: name cannot contain path separators", ErrInvalidProjectName)
	}
	return nil
}

// Validate checks if the project has valid fields.
func (p *Project) Validate() error {
	if _, err := uuid.Parse(p.ID); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidProjectID, p.ID)
	}
	if err := ValidateName(p.Name); err != nil {
		return err
	}
	if p.Path == "" {
		return fmt.Errorf("%w: path cannot be empty", ErrInvalidProjectPath)
	}
	return nil
}

func (p *Project) clone() *Project {
	c := *p
	if p.LastSyncedAt != nil {
		t := *p.LastSyncedAt
		c.LastSyncedAt = &t
	}
	return &c
}
