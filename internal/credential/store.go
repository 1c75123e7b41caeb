// Package credential persists per-tenant authentication material. Each tenant
// owns one directory under the store root; the directory is created lazily on
// first load and fully erased on logout or forced restart. Only the tenant's
// own state machine reads or writes it.
package credential

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/groupforge/groupforge/internal/platform"
	"go.uber.org/zap"
)

const credsFile = "creds.json"

// Store is a flat-file credential store rooted at a single directory.
type Store struct {
	root   string
	logger *zap.Logger
}

// NewStore creates a store rooted at dir, creating it if missing.
func NewStore(dir string, logger *zap.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create credential root %s: %w", dir, err)
	}
	return &Store{root: dir, logger: logger}, nil
}

// Load returns the persisted material for a tenant. A tenant with no prior
// state gets fresh, unregistered credentials and its directory created.
func (s *Store) Load(tenantID string) (*platform.Credentials, error) {
	dir, err := s.tenantDir(tenantID)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create session directory for tenant %s: %w", tenantID, err)
	}

	data, err := os.ReadFile(filepath.Join(dir, credsFile))
	if os.IsNotExist(err) {
		return &platform.Credentials{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials for tenant %s: %w", tenantID, err)
	}

	var creds platform.Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		// Corrupt state is unrecoverable; start a fresh auth cycle instead of
		// failing every future connect.
		s.logger.Warn("discarding corrupt credential file",
			zap.String("tenant_id", tenantID),
			zap.Error(err))
		return &platform.Credentials{}, nil
	}
	return &creds, nil
}

// Save persists the material for a tenant.
func (s *Store) Save(tenantID string, creds *platform.Credentials) error {
	dir, err := s.tenantDir(tenantID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create session directory for tenant %s: %w", tenantID, err)
	}

	data, err := json.Marshal(creds)
	if err != nil {
		return fmt.Errorf("failed to marshal credentials for tenant %s: %w", tenantID, err)
	}

	if err := os.WriteFile(filepath.Join(dir, credsFile), data, 0o600); err != nil {
		return fmt.Errorf("failed to write credentials for tenant %s: %w", tenantID, err)
	}
	return nil
}

// Erase removes every file in the tenant's session directory. Missing state
// is not an error; Erase must be safe on tenants that never connected.
func (s *Store) Erase(tenantID string) error {
	dir, err := s.tenantDir(tenantID)
	if err != nil {
		return err
	}

	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to list session directory for tenant %s: %w", tenantID, err)
	}

	for _, entry := range entries {
		if err := os.RemoveAll(filepath.Join(dir, entry.Name())); err != nil {
			return fmt.Errorf("failed to erase credentials for tenant %s: %w", tenantID, err)
		}
	}

	s.logger.Info("credential material erased", zap.String("tenant_id", tenantID))
	return nil
}

// tenantDir resolves the tenant's session directory, rejecting identifiers
// that would escape the store root.
func (s *Store) tenantDir(tenantID string) (string, error) {
	if tenantID == "" {
		return "", fmt.Errorf("tenant id is required")
	}
	dir := filepath.Join(s.root, tenantID)
	if filepath.Dir(dir) != filepath.Clean(s.root) {
		return "", fmt.Errorf("invalid tenant id %q", tenantID)
	}
	return dir, nil
}
