package credstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/AltairaLabs/convostream/runtime/auth"
)

const (
	fileMode = 0o600
	dirMode  = 0o700
)

// FileStore keeps the credential in a YAML file readable only by its owner.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore creates a store backed by the file at path. The file and its
// parent directory are created on first Save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file path.
func (s *FileStore) Path() string { return s.path }

// Load implements auth.Store.
func (s *FileStore) Load(_ context.Context) (auth.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return auth.Credential{}, auth.ErrNoCredential
	}
	if err != nil {
		return auth.Credential{}, fmt.Errorf("read credential file: %w", err)
	}

	var cred auth.Credential
	if err := yaml.Unmarshal(data, &cred); err != nil {
		return auth.Credential{}, fmt.Errorf("parse credential file: %w", err)
	}
	if cred.AccessToken == "" && cred.RefreshToken == "" {
		return auth.Credential{}, auth.ErrNoCredential
	}
	return cred, nil
}

// Save implements auth.Store. The file is replaced atomically.
func (s *FileStore) Save(_ context.Context, cred auth.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := yaml.Marshal(cred)
	if err != nil {
		return fmt.Errorf("encode credential: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), dirMode); err != nil {
		return fmt.Errorf("create credential directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".credentials-*")
	if err != nil {
		return fmt.Errorf("create credential file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write credential file: %w", err)
	}
	if err := tmp.Chmod(fileMode); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod credential file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close credential file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace credential file: %w", err)
	}
	return nil
}

// Delete implements auth.Store.
func (s *FileStore) Delete(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove credential file: %w", err)
	}
	return nil
}
