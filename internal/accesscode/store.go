// Package accesscode manages the flat-file login-code list and the admin
// notice shown to users. The store is tiny and mutex-guarded; every
// operation reads and rewrites the backing files so external edits are
// picked up without a restart.
package accesscode

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
)

const codeLength = 10

var (
	ErrInvalidCode = errors.New("code must be exactly 10 digits")
	ErrDuplicate   = errors.New("code already exists")
	ErrNotFound    = errors.New("code not found")
	ErrAdminCode   = errors.New("cannot remove the admin code")
)

// Store is the flat-file access-code and notice store. The admin code is
// configured, always a valid login, and can never be removed.
type Store struct {
	mu         sync.Mutex
	codesPath  string
	noticePath string
	adminCode  string
	logger     *zap.Logger
}

// NewStore creates a store backed by the given code and notice files.
func NewStore(codesPath, noticePath, adminCode string, logger *zap.Logger) *Store {
	return &Store{
		codesPath:  codesPath,
		noticePath: noticePath,
		adminCode:  adminCode,
		logger:     logger,
	}
}

// Login reports whether code is a valid login and whether it is the admin.
func (s *Store) Login(code string) (ok, isAdmin bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if code == s.adminCode {
		return true, true
	}
	for _, c := range s.loadCodes() {
		if c == code {
			return true, false
		}
	}
	return false, false
}

// Users returns every valid login code, admin code first.
func (s *Store) Users() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]string{s.adminCode}, s.loadCodes()...)
}

// AddUser registers a new login code.
func (s *Store) AddUser(code string) error {
	if !validCode(code) {
		return ErrInvalidCode
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if code == s.adminCode {
		return ErrDuplicate
	}
	codes := s.loadCodes()
	for _, c := range codes {
		if c == code {
			return ErrDuplicate
		}
	}

	if err := s.saveCodes(append(codes, code)); err != nil {
		return err
	}
	s.logger.Info("access code added", zap.String("code", code))
	return nil
}

// RemoveUser deletes a login code. The admin code is immutable.
func (s *Store) RemoveUser(code string) error {
	if code == s.adminCode {
		return ErrAdminCode
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	codes := s.loadCodes()
	kept := codes[:0]
	found := false
	for _, c := range codes {
		if c == code {
			found = true
			continue
		}
		kept = append(kept, c)
	}
	if !found {
		return ErrNotFound
	}

	if err := s.saveCodes(kept); err != nil {
		return err
	}
	s.logger.Info("access code removed", zap.String("code", code))
	return nil
}

// Notice returns the current admin notice, empty when none is set.
func (s *Store) Notice() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.noticePath)
	if err != nil {
		return ""
	}
	var wrapper struct {
		Notice string `json:"notice"`
	}
	if err := json.Unmarshal(data, &wrapper); err != nil {
		s.logger.Warn("notice file is corrupt, treating as empty",
			zap.String("path", s.noticePath), zap.Error(err))
		return ""
	}
	return wrapper.Notice
}

// UpdateNotice replaces the admin notice.
func (s *Store) UpdateNotice(notice string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(map[string]string{"notice": notice}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode notice: %w", err)
	}
	if err := os.WriteFile(s.noticePath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write notice file: %w", err)
	}
	s.logger.Info("notice updated", zap.Int("length", len(notice)))
	return nil
}

// loadCodes reads the stored codes, treating a missing or corrupt file as
// empty. Callers hold the mutex.
func (s *Store) loadCodes() []string {
	data, err := os.ReadFile(s.codesPath)
	if err != nil {
		return nil
	}
	var codes []string
	if err := json.Unmarshal(data, &codes); err != nil {
		s.logger.Warn("access-code file is corrupt, treating as empty",
			zap.String("path", s.codesPath), zap.Error(err))
		return nil
	}
	return codes
}

func (s *Store) saveCodes(codes []string) error {
	data, err := json.MarshalIndent(codes, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode access codes: %w", err)
	}
	if err := os.WriteFile(s.codesPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write access-code file: %w", err)
	}
	return nil
}

func validCode(code string) bool {
	if len(code) != codeLength {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
