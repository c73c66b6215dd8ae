package storage

import (
	"os"
	"path/filepath"
)

type filesystemManagement interface {
	readStateFile(path string) ([]byte, error)
	writeStateFile(path string, data []byte) error
}

type fileManagement struct{}

func (fs *fileManagement) readStateFile(path string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if os.IsNotExist(err) {
		return nil, nil
	}
	return data, err
}

// writeStateFile replaces the file through a rename so a power cut leaves
// either the old or the new state.
func (fs *fileManagement) writeStateFile(path string, data []byte) error {
	tmp := filepath.Clean(path) + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmp, filepath.Clean(path))
}
