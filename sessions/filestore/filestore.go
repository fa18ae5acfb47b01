package filestore

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/jrsteele09/go-identity-client/sessions"
	"golang.org/x/crypto/nacl/secretbox"
)

const (
	keySize   = 32
	nonceSize = 24
)

var (
	ErrInvalidKey = errors.New("session key must be 32 bytes hex encoded")
	ErrDecrypt    = errors.New("session file could not be decrypted")
)

var _ sessions.Store = (*Store)(nil)

// Store keeps all session values in a single JSON file. When a key is configured the file
// is sealed with NaCl secretbox.
type Store struct {
	path string
	key  *[keySize]byte
	lock sync.Mutex
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithKey seals the file with the given secretbox key.
func WithKey(key *[keySize]byte) StoreOption {
	return func(s *Store) {
		s.key = key
	}
}

// New creates a Store writing to path. The file and its directory are created on first write.
func New(path string, options ...StoreOption) (*Store, error) {
	if path == "" {
		return nil, errors.New("[filestore.New] path is required")
	}
	s := &Store{path: path}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

// KeyFromHex decodes a 64 character hex string into a secretbox key.
func KeyFromHex(h string) (*[keySize]byte, error) {
	b, err := hex.DecodeString(h)
	if err != nil || len(b) != keySize {
		return nil, ErrInvalidKey
	}
	var key [keySize]byte
	copy(key[:], b)
	return &key, nil
}

func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	values, err := s.read()
	if err != nil {
		return nil, err
	}
	v, ok := values[key]
	if !ok {
		return nil, sessions.ErrNotFound
	}
	return v, nil
}

func (s *Store) Set(_ context.Context, key string, value []byte) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	values, err := s.read()
	if err != nil {
		return err
	}
	values[key] = value
	return s.write(values)
}

func (s *Store) Delete(_ context.Context, key string) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	values, err := s.read()
	if err != nil {
		return err
	}
	if _, ok := values[key]; !ok {
		return nil
	}
	delete(values, key)
	return s.write(values)
}

func (s *Store) read() (map[string][]byte, error) {
	values := make(map[string][]byte)

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return values, nil
	}
	if err != nil {
		return nil, fmt.Errorf("[filestore.read] %w", err)
	}
	if len(data) == 0 {
		return values, nil
	}

	if s.key != nil {
		if data, err = s.open(data); err != nil {
			return nil, err
		}
	}
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("[filestore.read] %s: %w", s.path, err)
	}
	return values, nil
}

func (s *Store) write(values map[string][]byte) error {
	data, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("[filestore.write] %w", err)
	}
	if s.key != nil {
		if data, err = s.seal(data); err != nil {
			return err
		}
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("[filestore.write] %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("[filestore.write] %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("[filestore.write] %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("[filestore.write] %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("[filestore.write] %w", err)
	}
	return nil
}

func (s *Store) seal(plain []byte) ([]byte, error) {
	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("[filestore.seal] rand.Read: %w", err)
	}
	return secretbox.Seal(nonce[:], plain, &nonce, s.key), nil
}

func (s *Store) open(sealed []byte) ([]byte, error) {
	if len(sealed) < nonceSize+secretbox.Overhead {
		return nil, ErrDecrypt
	}
	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])
	plain, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, s.key)
	if !ok {
		return nil, ErrDecrypt
	}
	return plain, nil
}
