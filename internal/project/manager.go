package project

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// Manager is the project registry.
type Manager interface {
	// Create registers the folder at path under name.
	Create(ctx context.Context, name, path string) (*Project, error)

	// Get retrieves a project by ID.
	Get(ctx context.Context, id string) (*Project, error)

	// GetByName retrieves a project by name.
	GetByName(ctx context.Context, name string) (*Project, error)

	// GetByPath finds a project by its folder path.
	GetByPath(ctx context.Context, path string) (*Project, error)

	// List returns all projects sorted by name.
	List(ctx context.Context) ([]*Project, error)

	// Delete removes a project by ID. The folder is left untouched.
	Delete(ctx context.Context, id string) error

	// SetEnabled includes or excludes a project from auto-sync.
	SetEnabled(ctx context.Context, name string, enabled bool) (*Project, error)

	// Projects returns the sync view of every project.
	Projects(ctx context.Context) ([]Ref, error)

	// RecordSyncTimestamp marks the named project as synced now.
	RecordSyncTimestamp(ctx context.Context, name string) error
}

// Option configures a manager.
type Option func(*manager)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *manager) { m.now = now }
}

// WithRemoteDiscovery overrides how a folder's remote URL is found.
func WithRemoteDiscovery(fn func(path string) string) Option {
	return func(m *manager) { m.discoverRemote = fn }
}

// manager implements Manager, optionally persisting to a store.
type manager struct {
	mu       sync.RWMutex
	projects map[string]*Project // id -> project
	byName   map[string]*Project
	byPath   map[string]*Project

	store          *store
	now            func() time.Time
	discoverRemote func(path string) string
}

// NewManager creates a project manager with in-memory storage.
func NewManager(opts ...Option) Manager {
	return newManager(nil, opts)
}

// Open creates a project manager backed by the JSON file at path. A missing
// file starts an empty registry.
func Open(path string, opts ...Option) (Manager, error) {
	s := &store{path: path}
	projects, err := s.load()
	if err != nil {
		return nil, err
	}

	m := newManager(s, opts)
	for _, p := range projects {
		m.index(p)
	}
	return m, nil
}

func newManager(s *store, opts []Option) *manager {
	m := &manager{
		projects:       make(map[string]*Project),
		byName:         make(map[string]*Project),
		byPath:         make(map[string]*Project),
		store:          s,
		now:            time.Now,
		discoverRemote: DiscoverRemoteURL,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *manager) index(p *Project) {
	m.projects[p.ID] = p
	m.byName[p.Name] = p
	m.byPath[p.Path] = p
}

func (m *manager) unindex(p *Project) {
	delete(m.projects, p.ID)
	delete(m.byName, p.Name)
	delete(m.byPath, p.Path)
}

// persist writes the registry; callers hold m.mu.
func (m *manager) persist() error {
	if m.store == nil {
		return nil
	}
	return m.store.save(m.sortedLocked())
}

func (m *manager) sortedLocked() []*Project {
	out := make([]*Project, 0, len(m.projects))
	for _, p := range m.projects {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Create creates a new project.
func (m *manager) Create(ctx context.Context, name, path string) (*Project, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: path cannot be empty", ErrInvalidProjectPath)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidProjectPath, err)
	}

	project, err := NewProject(name, abs, m.now())
	if err != nil {
		return nil, err
	}
	project.RemoteURL = m.discoverRemote(abs)

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.byName[name]; ok {
		return nil, fmt.Errorf("%w: name %q is used by %s", ErrProjectExists, name, existing.ID)
	}
	if existing, ok := m.byPath[abs]; ok {
		return nil, fmt.Errorf("%w: project %q already exists at path %s", ErrProjectExists, existing.Name, abs)
	}

	m.index(project)
	if err := m.persist(); err != nil {
		m.unindex(project)
		return nil, err
	}

	return project.clone(), nil
}

// Get retrieves a project by ID.
func (m *manager) Get(ctx context.Context, id string) (*Project, error) {
	if id == "" {
		return nil, ErrInvalidProjectID
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	project, ok := m.projects[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProjectNotFound, id)
	}
	return project.clone(), nil
}

// GetByName retrieves a project by name.
func (m *manager) GetByName(ctx context.Context, name string) (*Project, error) {
	if name == "" {
		return nil, ErrInvalidProjectName
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	project, ok := m.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProjectNotFound, name)
	}
	return project.clone(), nil
}

// GetByPath finds a project by its folder path.
func (m *manager) GetByPath(ctx context.Context, path string) (*Project, error) {
	if path == "" {
		return nil, ErrInvalidProjectPath
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidProjectPath, err)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	project, ok := m.byPath[abs]
	if !ok {
		return nil, fmt.Errorf("%w: no project found at path %s", ErrProjectNotFound, abs)
	}
	return project.clone(), nil
}

// List returns all projects.
func (m *manager) List(ctx context.Context) ([]*Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sorted := m.sortedLocked()
	out := make([]*Project, len(sorted))
	for i, p := range sorted {
		out[i] = p.clone()
	}
	return out, nil
}

// Delete removes a project by ID.
func (m *manager) Delete(ctx context.Context, id string) error {
	if id == "" {
		return ErrInvalidProjectID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	project, ok := m.projects[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrProjectNotFound, id)
	}

	m.unindex(project)
	if err := m.persist(); err != nil {
		m.index(project)
		return err
	}
	return nil
}

// SetEnabled toggles a project's participation in auto-sync.
func (m *manager) SetEnabled(ctx context.Context, name string, enabled bool) (*Project, error) {
	return m.update(name, func(p *Project) {
		p.Enabled = enabled
	})
}

// RecordSyncTimestamp sets LastSyncedAt to now.
func (m *manager) RecordSyncTimestamp(ctx context.Context, name string) error {
	_, err := m.update(name, func(p *Project) {
		t := m.now()
		p.LastSyncedAt = &t
	})
	return err
}

// Projects returns the sync view of every project, sorted by name.
func (m *manager) Projects(ctx context.Context) ([]Ref, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sorted := m.sortedLocked()
	refs := make([]Ref, len(sorted))
	for i, p := range sorted {
		refs[i] = p.Ref()
	}
	return refs, nil
}

// update applies fn to the named project and persists, rolling back on a
// failed write.
func (m *manager) update(name string, fn func(*Project)) (*Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	project, ok := m.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProjectNotFound, name)
	}

	before := project.clone()
	fn(project)
	project.UpdatedAt = m.now()

	if err := m.persist(); err != nil {
		*project = *before
		return nil, err
	}
	return project.clone(), nil
}
