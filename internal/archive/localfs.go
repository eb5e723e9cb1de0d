package archive

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
)

// LocalFS implements Storage on the local filesystem.
type LocalFS struct {
	basePath string
}

// NewLocalFS creates the base directory if needed.
func NewLocalFS(basePath string) (*LocalFS, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, eris.Wrapf(err, "archive: create base path %s", basePath)
	}
	return &LocalFS{basePath: basePath}, nil
}

func (l *LocalFS) fullPath(p string) string {
	return filepath.Join(l.basePath, filepath.FromSlash(p))
}

func (l *LocalFS) Write(_ context.Context, p string, data []byte) error {
	full := l.fullPath(p)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return eris.Wrapf(err, "archive: create directories for %s", p)
	}
	// Write then rename so readers never see a partial file.
	tmp := full + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return eris.Wrapf(err, "archive: write %s", p)
	}
	return eris.Wrapf(os.Rename(tmp, full), "archive: rename %s", p)
}

func (l *LocalFS) Read(_ context.Context, p string) ([]byte, error) {
	data, err := os.ReadFile(l.fullPath(p))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, eris.Wrapf(ErrNotFound, "%s", p)
	}
	return data, eris.Wrapf(err, "archive: read %s", p)
}

func (l *LocalFS) List(_ context.Context, prefix string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(l.fullPath(prefix), func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			rel, err := filepath.Rel(l.basePath, p)
			if err != nil {
				return err
			}
			paths = append(paths, filepath.ToSlash(rel))
		}
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return []string{}, nil
	}
	return paths, eris.Wrapf(err, "archive: list %s", prefix)
}

func (l *LocalFS) Delete(_ context.Context, p string) error {
	err := os.Remove(l.fullPath(p))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return eris.Wrapf(err, "archive: delete %s", p)
}

func (l *LocalFS) Exists(_ context.Context, p string) (bool, error) {
	_, err := os.Stat(l.fullPath(p))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return err == nil, eris.Wrapf(err, "archive: stat %s", p)
}
