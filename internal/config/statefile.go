package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// StateFile is a small YAML document kept between runs, such as the last
// opened conversation or the signed-in operator. Writes replace the file
// atomically so a crashed run never leaves half a document behind.
type StateFile[T any] struct {
	path string
	perm fs.FileMode
	mu   sync.Mutex
}

// NewStateFile stores T at path with the given file mode. The parent
// directory is created with the execute bits matching perm's read bits.
func NewStateFile[T any](path string, perm fs.FileMode) *StateFile[T] {
	return &StateFile[T]{path: path, perm: perm}
}

// Path returns the file location.
func (f *StateFile[T]) Path() string {
	return f.path
}

// Load decodes the document into a new T. found is false when the file does
// not exist.
func (f *StateFile[T]) Load() (value *T, found bool, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	value = new(T)
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return value, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read %s: %w", f.path, err)
	}
	if err := yaml.Unmarshal(data, value); err != nil {
		return nil, false, fmt.Errorf("failed to parse %s: %w", f.path, err)
	}
	return value, true, nil
}

// Save encodes value and replaces the file.
func (f *StateFile[T]) Save(value *T) error {
	data, err := yaml.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", filepath.Base(f.path), err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, dirPerm(f.perm)); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(f.path)+".*")
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", f.path, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", f.path, err)
	}
	if err := tmp.Chmod(f.perm); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", f.path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", f.path, err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("failed to write %s: %w", f.path, err)
	}
	return nil
}

// Remove deletes the file. A missing file is not an error.
func (f *StateFile[T]) Remove() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove %s: %w", f.path, err)
	}
	return nil
}

func dirPerm(perm fs.FileMode) fs.FileMode {
	dir := perm | 0o700
	if perm&0o040 != 0 {
		dir |= 0o010
	}
	if perm&0o004 != 0 {
		dir |= 0o001
	}
	return dir
}

// DefaultStatePath returns name under ~/.config/pagechat.
func DefaultStatePath(name string) string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "pagechat", name)
}
