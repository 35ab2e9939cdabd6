// Package account stores the roster of game accounts as a JSON file.
package account

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

var (
	// ErrExists means an account with the same login is already present.
	ErrExists = errors.New("account already exists")
	// ErrNotFound means no account has the given login.
	ErrNotFound = errors.New("account not found")
	// ErrInvalidLogin means the login is empty or malformed.
	ErrInvalidLogin = errors.New("invalid account login")
)

// Account is one roster entry. Login doubles as the account key everywhere
// else in the system.
type Account struct {
	Login       string `json:"login"`
	Password    string `json:"password"`
	Character   string `json:"character,omitempty"`
	Owner       string `json:"owner,omitempty"`
	Description string `json:"description,omitempty"`
}

// Store keeps the roster in memory and mirrors every mutation to disk.
type Store struct {
	mu       sync.Mutex
	path     string
	accounts map[string]Account
}

// Open loads the roster from path, creating an empty roster if the file
// does not exist yet.
func Open(path string) (*Store, error) {
	s := &Store{path: path, accounts: make(map[string]Account)}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("read roster %s: %w", path, err)
	}
	var list []Account
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("parse roster %s: %w", path, err)
	}
	for _, a := range list {
		s.accounts[a.Login] = a
	}
	return s, nil
}

func validLogin(login string) error {
	if strings.TrimSpace(login) == "" || login != strings.TrimSpace(login) {
		return fmt.Errorf("%w: %q", ErrInvalidLogin, login)
	}
	return nil
}

// Add inserts a new account. Logins are unique.
func (s *Store) Add(a Account) error {
	if err := validLogin(a.Login); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[a.Login]; ok {
		return fmt.Errorf("%w: %s", ErrExists, a.Login)
	}
	s.accounts[a.Login] = a
	return s.saveLocked()
}

// Update replaces the account stored under login. Renaming to a login that
// already belongs to another account is rejected.
func (s *Store) Update(login string, a Account) error {
	if err := validLogin(a.Login); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[login]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, login)
	}
	if a.Login != login {
		if _, taken := s.accounts[a.Login]; taken {
			return fmt.Errorf("%w: %s", ErrExists, a.Login)
		}
		delete(s.accounts, login)
	}
	s.accounts[a.Login] = a
	return s.saveLocked()
}

// Delete removes the account with the given login.
func (s *Store) Delete(login string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[login]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, login)
	}
	delete(s.accounts, login)
	return s.saveLocked()
}

// Get returns the account with the given login.
func (s *Store) Get(login string) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[login]
	if !ok {
		return Account{}, fmt.Errorf("%w: %s", ErrNotFound, login)
	}
	return a, nil
}

// Exists reports whether an account with the given login is present.
func (s *Store) Exists(login string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.accounts[login]
	return ok
}

// All returns every account sorted by login.
func (s *Store) All() []Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Login < out[j].Login })
	return out
}

// Len returns the roster size.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.accounts)
}

// saveLocked writes the roster atomically: temp file then rename.
func (s *Store) saveLocked() error {
	out := make([]Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Login < out[j].Login })

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("encode roster: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create roster dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".roster-*.json")
	if err != nil {
		return fmt.Errorf("write roster: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write roster: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write roster: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("replace roster: %w", err)
	}
	return nil
}
