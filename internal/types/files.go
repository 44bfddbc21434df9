package types

import "os"

// OSFileStore is the default FileStore backed by the local filesystem.
type OSFileStore struct{}

// NewOSFileStore returns a FileStore that writes to the local filesystem.
func NewOSFileStore() *OSFileStore {
	return &OSFileStore{}
}

func (OSFileStore) Write(path string, data []byte) error {
	return os.WriteFile(path, data, 0644)
}

func (OSFileStore) MkdirAll(path string) error {
	return os.MkdirAll(path, 0755)
}

func (OSFileStore) Read(path string) ([]byte, error) {
	return os.ReadFile(path)
}
