package storage

import (
	"sync"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// Store keeps device state across power loss.
type Store interface {
	// Get decodes the value saved under key into out and reports whether
	// the key exists.
	Get(key string, out interface{}) (bool, error)
	Set(key string, value interface{}) error
}

// GetOrDefault returns the value saved under key, or def when there is none.
func GetOrDefault[T any](s Store, key string, def T) (T, error) {
	var v T
	ok, err := s.Get(key, &v)
	if err != nil || !ok {
		return def, err
	}
	return v, nil
}

// YAMLStore saves every key of a device in one YAML document.
type YAMLStore struct {
	mu      sync.Mutex
	path    string
	fs      filesystemManagement
	entries map[string]interface{}
}

func NewYAMLStore(path string) (*YAMLStore, error) {
	return newYAMLStore(path, new(fileManagement))
}

func newYAMLStore(path string, fs filesystemManagement) (*YAMLStore, error) {
	s := &YAMLStore{path: path, fs: fs, entries: map[string]interface{}{}}
	data, err := fs.readStateFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read state file")
	}
	if err := yaml.Unmarshal(data, &s.entries); err != nil {
		return nil, errors.Wrap(err, "parse state file")
	}
	if s.entries == nil {
		s.entries = map[string]interface{}{}
	}
	return s, nil
}

func (s *YAMLStore) Get(key string, out interface{}) (bool, error) {
	s.mu.Lock()
	v, ok := s.entries[key]
	s.mu.Unlock()
	if !ok {
		return false, nil
	}
	data, err := yaml.Marshal(v)
	if err != nil {
		return false, errors.Wrapf(err, "encode %s", key)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return false, errors.Wrapf(err, "decode %s", key)
	}
	return true, nil
}

// Set saves value under key and rewrites the state file. The in-memory entry
// is kept even when the write fails.
func (s *YAMLStore) Set(key string, value interface{}) error {
	data, err := yaml.Marshal(value)
	if err != nil {
		return errors.Wrapf(err, "encode %s", key)
	}
	var normalized interface{}
	if err := yaml.Unmarshal(data, &normalized); err != nil {
		return errors.Wrapf(err, "normalize %s", key)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = normalized
	document, err := yaml.Marshal(s.entries)
	if err != nil {
		return errors.Wrap(err, "encode state")
	}
	return errors.Wrap(s.fs.writeStateFile(s.path, document), "write state file")
}
