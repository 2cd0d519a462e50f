package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Local stores objects as files below a root directory.
type Local struct {
	dir string
}

// NewLocal creates a Local store, creating dir if needed.
func NewLocal(dir string) (*Local, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir %s: %w", dir, err)
	}
	return &Local{dir: dir}, nil
}

func (l *Local) resolve(p string) (string, error) {
	clean := filepath.Clean("/" + filepath.FromSlash(p))
	if clean == string(filepath.Separator) {
		return "", fmt.Errorf("invalid object path %q", p)
	}
	full := filepath.Join(l.dir, clean)
	if !strings.HasPrefix(full, filepath.Clean(l.dir)+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid object path %q", p)
	}
	return full, nil
}

// Save writes r to a temporary file and renames it into place.
func (l *Local) Save(_ context.Context, p string, r io.Reader, _ int64) (int64, error) {
	full, err := l.resolve(p)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return 0, fmt.Errorf("create dir for %s: %w", p, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(full), ".upload-*")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	n, err := io.Copy(tmp, r)
	if err != nil {
		tmp.Close()
		return 0, fmt.Errorf("write %s: %w", p, err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("close %s: %w", p, err)
	}
	if err := os.Rename(tmpName, full); err != nil {
		return 0, fmt.Errorf("rename %s: %w", p, err)
	}
	return n, nil
}

// Open opens the stored object for reading.
func (l *Local) Open(_ context.Context, p string) (io.ReadCloser, error) {
	full, err := l.resolve(p)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(full)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("open %s: %w", p, ErrNotExist)
		}
		return nil, fmt.Errorf("open %s: %w", p, err)
	}
	return f, nil
}

// Delete removes the object. Deleting a missing object is not an error.
func (l *Local) Delete(_ context.Context, p string) error {
	full, err := l.resolve(p)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete %s: %w", p, err)
	}
	return nil
}

// Exists reports whether the object is present.
func (l *Local) Exists(_ context.Context, p string) (bool, error) {
	full, err := l.resolve(p)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(full); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("stat %s: %w", p, err)
	}
	return true, nil
}
