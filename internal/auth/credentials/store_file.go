package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"procura/internal/auth/models"
)

const (
	fileMode = 0o600
	dirMode  = 0o700
)

// fileEnvelope is the on-disk format. Exactly one of Tokens or the sealed
// fields is populated.
type fileEnvelope struct {
	Sealed     bool              `json:"sealed"`
	Tokens     *models.TokenPair `json:"tokens,omitempty"`
	Salt       []byte            `json:"salt,omitempty"`
	Nonce      []byte            `json:"nonce,omitempty"`
	Ciphertext []byte            `json:"ciphertext,omitempty"`
}

// FileStore persists the token pair in a per-profile JSON file so a session
// survives process restarts. When a passphrase is configured the tokens are
// encrypted at rest.
type FileStore struct {
	mu     sync.Mutex
	path   string
	sealer *sealer
}

// FileOption configures a FileStore.
type FileOption func(*FileStore)

// WithPassphrase enables at-rest encryption of the stored tokens.
func WithPassphrase(passphrase string) FileOption {
	return func(s *FileStore) {
		if passphrase != "" {
			s.sealer = newSealer(passphrase)
		}
	}
}

// NewFileStore creates a store backed by <dir>/<profile>.json.
func NewFileStore(dir, profile string, opts ...FileOption) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("credentials: file store directory is required")
	}
	if profile == "" {
		profile = "default"
	}
	if err := os.MkdirAll(dir, dirMode); err != nil {
		return nil, fmt.Errorf("create credentials dir: %w", err)
	}
	s := &FileStore{path: filepath.Join(dir, profile+".json")}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Path returns the file backing this store.
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) Save(_ context.Context, pair models.TokenPair) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeLocked(pair)
}

func (s *FileStore) AccessToken(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pair, err := s.readLocked()
	if err != nil {
		return "", err
	}
	return pair.AccessToken, nil
}

func (s *FileStore) RefreshToken(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pair, err := s.readLocked()
	if err != nil {
		return "", err
	}
	return pair.RefreshToken, nil
}

func (s *FileStore) SetAccessToken(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	pair, err := s.readLocked()
	if err != nil {
		return err
	}
	pair.AccessToken = token
	return s.writeLocked(pair)
}

func (s *FileStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove credentials file: %w", err)
	}
	return nil
}

func (s *FileStore) ClearIf(_ context.Context, accessToken string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pair, err := s.readLocked()
	if err != nil {
		return false, err
	}
	if pair.AccessToken != accessToken {
		return false, nil
	}
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return false, fmt.Errorf("remove credentials file: %w", err)
	}
	return true, nil
}

func (s *FileStore) readLocked() (models.TokenPair, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return models.TokenPair{}, nil
	}
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("read credentials file: %w", err)
	}

	var env fileEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return models.TokenPair{}, fmt.Errorf("decode credentials file: %w", err)
	}
	if !env.Sealed {
		if env.Tokens == nil {
			return models.TokenPair{}, nil
		}
		return *env.Tokens, nil
	}
	if s.sealer == nil {
		return models.TokenPair{}, fmt.Errorf("%w: no passphrase configured", errOpen)
	}
	plaintext, err := s.sealer.open(env.Salt, env.Nonce, env.Ciphertext)
	if err != nil {
		return models.TokenPair{}, err
	}
	var pair models.TokenPair
	if err := json.Unmarshal(plaintext, &pair); err != nil {
		return models.TokenPair{}, fmt.Errorf("decode sealed credentials: %w", err)
	}
	return pair, nil
}

func (s *FileStore) writeLocked(pair models.TokenPair) error {
	env := fileEnvelope{Tokens: &pair}
	if s.sealer != nil {
		plaintext, err := json.Marshal(pair)
		if err != nil {
			return fmt.Errorf("encode credentials: %w", err)
		}
		salt, nonce, ciphertext, err := s.sealer.seal(plaintext)
		if err != nil {
			return err
		}
		env = fileEnvelope{Sealed: true, Salt: salt, Nonce: nonce, Ciphertext: ciphertext}
	}

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode credentials file: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".credentials-*")
	if err != nil {
		return fmt.Errorf("create temp credentials file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck // no-op after a successful rename

	if err := tmp.Chmod(fileMode); err != nil {
		tmp.Close() //nolint:errcheck // already failing
		return fmt.Errorf("chmod credentials file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck // already failing
		return fmt.Errorf("write credentials file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close credentials file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace credentials file: %w", err)
	}
	return nil
}

var _ Store = (*FileStore)(nil)
