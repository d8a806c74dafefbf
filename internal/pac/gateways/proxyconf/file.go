package proxyconf

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/haukened/rr-pac/internal/pac/domain"
)

// File writes the applied script to a path for clients that load PAC files
// from disk. Clear removes the file.
type File struct {
	errorFeed
	mu   sync.Mutex
	path string
}

// NewFile returns a File configurator writing to path.
func NewFile(path string) (*File, error) {
	if path == "" {
		return nil, fmt.Errorf("pac file path is required")
	}
	return &File{errorFeed: newErrorFeed(), path: path}, nil
}

// Path returns the target path.
func (f *File) Path() string { return f.path }

func (f *File) Apply(_ context.Context, settings domain.ProxySettings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := writeAtomic(f.path, []byte(settings.Script)); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrConfigSubmission, err)
	}
	return nil
}

func (f *File) Clear(_ context.Context, scope domain.Scope) error {
	if err := checkScope(scope); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %v", domain.ErrConfigSubmission, err)
	}
	return nil
}

// writeAtomic replaces path so readers never observe a partial script.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	name := tmp.Name()
	defer os.Remove(name)

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(name, 0o644); err != nil {
		return err
	}
	return os.Rename(name, path)
}
