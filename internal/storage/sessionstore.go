// Package storage provides the key-value stores that persist the session
// record between runs: a YAML file on disk and Redis.
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"gopkg.in/yaml.v3"
)

// KVStore is a key-value string store. It matches core.KVStore.
type KVStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// SessionFileName is the file the file store keeps its entries in.
const SessionFileName = "session.yaml"

// ErrCorrupt is returned by Get when session.yaml cannot be parsed. Set and
// Delete replace a corrupt file instead of failing.
var ErrCorrupt = errors.New("corrupt session file")

// sessionFile is the top-level structure of session.yaml.
type sessionFile struct {
	Version string            `yaml:"version"`
	Entries map[string]string `yaml:"entries"`
}

type fileKVStore struct {
	basePath string
	lock     *flock.Flock
}

// NewFileKVStore creates a KVStore backed by session.yaml in basePath.
// Every operation re-reads the file under an exclusive lock so separate
// processes see each other's writes.
func NewFileKVStore(basePath string) KVStore {
	return &fileKVStore{
		basePath: basePath,
		lock:     flock.New(filepath.Join(basePath, "."+SessionFileName+".lock")),
	}
}

func (s *fileKVStore) filePath() string {
	return filepath.Join(s.basePath, SessionFileName)
}

func (s *fileKVStore) withLock(ctx context.Context, fn func() error) error {
	if err := os.MkdirAll(s.basePath, 0o750); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("acquiring session lock: %w", err)
	}
	defer func() { _ = s.lock.Unlock() }()
	return fn()
}

func (s *fileKVStore) load() (sessionFile, error) {
	sf := sessionFile{Version: "1.0", Entries: make(map[string]string)}
	data, err := os.ReadFile(s.filePath())
	if err != nil {
		if os.IsNotExist(err) {
			return sf, nil
		}
		return sf, fmt.Errorf("reading %s: %w", SessionFileName, err)
	}
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return sf, fmt.Errorf("parsing %s: %w: %w", SessionFileName, ErrCorrupt, err)
	}
	if sf.Entries == nil {
		sf.Entries = make(map[string]string)
	}
	return sf, nil
}

// loadForWrite is load for Set and Delete. A corrupt file is moved aside to
// session.yaml.bak and the write starts from an empty record.
func (s *fileKVStore) loadForWrite() (sessionFile, error) {
	sf, err := s.load()
	if !errors.Is(err, ErrCorrupt) {
		return sf, err
	}
	if err := os.Rename(s.filePath(), s.filePath()+".bak"); err != nil {
		return sf, fmt.Errorf("backing up %s: %w", SessionFileName, err)
	}
	return sessionFile{Version: "1.0", Entries: make(map[string]string)}, nil
}

func (s *fileKVStore) save(sf sessionFile) error {
	data, err := yaml.Marshal(&sf)
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", SessionFileName, err)
	}
	tmp := s.filePath() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", SessionFileName, err)
	}
	if err := os.Rename(tmp, s.filePath()); err != nil {
		return fmt.Errorf("replacing %s: %w", SessionFileName, err)
	}
	return nil
}

func (s *fileKVStore) Get(ctx context.Context, key string) (string, bool, error) {
	var (
		value string
		found bool
	)
	err := s.withLock(ctx, func() error {
		sf, err := s.load()
		if err != nil {
			return err
		}
		value, found = sf.Entries[key]
		return nil
	})
	if err != nil {
		return "", false, fmt.Errorf("getting %q: %w", key, err)
	}
	return value, found, nil
}

func (s *fileKVStore) Set(ctx context.Context, key, value string) error {
	err := s.withLock(ctx, func() error {
		sf, err := s.loadForWrite()
		if err != nil {
			return err
		}
		sf.Entries[key] = value
		return s.save(sf)
	})
	if err != nil {
		return fmt.Errorf("setting %q: %w", key, err)
	}
	return nil
}

func (s *fileKVStore) Delete(ctx context.Context, key string) error {
	err := s.withLock(ctx, func() error {
		sf, err := s.loadForWrite()
		if err != nil {
			return err
		}
		if _, ok := sf.Entries[key]; !ok {
			return nil
		}
		delete(sf.Entries, key)
		return s.save(sf)
	})
	if err != nil {
		return fmt.Errorf("deleting %q: %w", key, err)
	}
	return nil
}
