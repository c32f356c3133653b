// Package identitystore implements C3: one JSON document per
// (tenant, service) under <identity_dir>/<tenant>/<service>/identity.json.
package identitystore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pqsecure/mesh/internal/core/domain"
	"github.com/pqsecure/mesh/internal/core/ports"
)

const (
	dirPerm  = 0o700
	filePerm = 0o600
)

// Store is a filesystem-backed ports.IdentityStore. Saves write to a
// temporary sibling file and rename into place, so a concurrent load
// never observes a partially written document.
type Store struct {
	rootDir string
}

// NewStore constructs a Store rooted at rootDir.
func NewStore(rootDir string) *Store {
	return &Store{rootDir: rootDir}
}

var _ ports.IdentityStore = (*Store)(nil)

// pathFor returns <root>/<tenant>/<service>/identity.json for id, using
// the SPIFFE path's first segment as tenant and everything after the
// first "/" as service ("default" when the path has a single segment),
// per spec.md §6's on-disk identity layout.
func (s *Store) pathFor(id domain.SpiffeId) (dir, file string) {
	tenant, service := splitTenantService(id.Path())
	dir = filepath.Join(s.rootDir, tenant, service)
	return dir, filepath.Join(dir, "identity.json")
}

func splitTenantService(path string) (tenant, service string) {
	for i := 0; i < len(path); i++ {
		if path[i] == '/' {
			return path[:i], path[i+1:]
		}
	}
	return path, "default"
}

// Load reads and parses the stored identity for id. A missing file
// returns ports.ErrIdentityNotFound.
func (s *Store) Load(ctx context.Context, id domain.SpiffeId) (*domain.ServiceIdentity, error) {
	_, file := s.pathFor(id)
	data, err := os.ReadFile(file)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ports.ErrIdentityNotFound
		}
		return nil, fmt.Errorf("read identity file %s: %w", file, err)
	}

	var identity domain.ServiceIdentity
	if err := json.Unmarshal(data, &identity); err != nil {
		return nil, fmt.Errorf("parse identity file %s: %w", file, err)
	}
	return &identity, nil
}

// Save writes identity to its canonical path, creating parent
// directories as needed, via write-temp-then-rename so concurrent
// readers always observe either the old or the new document, never a
// partial one.
func (s *Store) Save(ctx context.Context, identity domain.ServiceIdentity) error {
	dir, file := s.pathFor(identity.SpiffeID)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return fmt.Errorf("create identity directory %s: %w", dir, err)
	}

	data, err := json.MarshalIndent(identity, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal identity: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".identity-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp identity file in %s: %w", dir, err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp identity file: %w", err)
	}
	if err := tmp.Chmod(filePerm); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod temp identity file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp identity file: %w", err)
	}

	if err := os.Rename(tmpPath, file); err != nil {
		return fmt.Errorf("rename temp identity file into place: %w", err)
	}
	return nil
}

// Delete removes the stored identity for id, if any.
func (s *Store) Delete(ctx context.Context, id domain.SpiffeId) error {
	_, file := s.pathFor(id)
	if err := os.Remove(file); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete identity file %s: %w", file, err)
	}
	return nil
}
