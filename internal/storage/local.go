package storage

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gitbridge/internal/apperr"
)

// Local stores objects as plain files under a root directory.
type Local struct {
	root string
}

// NewLocal creates the root directory if needed.
func NewLocal(root string) (*Local, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, apperr.Wrap(apperr.KindStorageFailed, err, "create storage root %s", root)
	}
	return &Local{root: root}, nil
}

// path maps an object key to a filesystem path, refusing traversal.
func (l *Local) path(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", apperr.E(apperr.KindInvalidInput, "invalid object key %q", key)
	}
	return filepath.Join(l.root, clean), nil
}

func (l *Local) Put(_ context.Context, key string, data []byte, _ string) error {
	p, err := l.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return apperr.Wrap(apperr.KindStorageFailed, err, "create dir for %s", key)
	}
	// Write-then-rename keeps concurrent readers off half-written files.
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return apperr.Wrap(apperr.KindStorageFailed, err, "write %s", key)
	}
	if err := os.Rename(tmp, p); err != nil {
		return apperr.Wrap(apperr.KindStorageFailed, err, "finalize %s", key)
	}
	return nil
}

func (l *Local) Get(_ context.Context, key string) ([]byte, error) {
	p, err := l.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, apperr.E(apperr.KindNotFound, "object %s not found", key)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorageFailed, err, "read %s", key)
	}
	return data, nil
}

func (l *Local) Delete(_ context.Context, key string) error {
	p, err := l.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return apperr.Wrap(apperr.KindStorageFailed, err, "delete %s", key)
	}
	return nil
}

func (l *Local) List(_ context.Context, prefix string) ([]ObjectInfo, error) {
	var out []ObjectInfo
	err := filepath.WalkDir(l.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(l.root, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) || strings.HasSuffix(key, ".tmp") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		out = append(out, ObjectInfo{Key: key, Size: info.Size(), ModTime: info.ModTime()})
		return nil
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorageFailed, err, "list %s", prefix)
	}
	return out, nil
}

// Presign is unsupported locally; the API serves local bytes itself.
func (l *Local) Presign(_ context.Context, _ string, _ time.Duration) (string, bool, error) {
	return "", false, nil
}
