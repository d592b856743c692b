package infra

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/tnqbao/gau-property-media/entity"
)

// LocalStorage writes images under a directory tree served by the HTTP process.
type LocalStorage struct {
	basePath string
	baseURL  string
}

func NewLocalStorage(basePath, baseURL string) (*LocalStorage, error) {
	basePath = strings.TrimSpace(basePath)
	if basePath == "" {
		return nil, errors.New("local storage path is not configured")
	}

	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create local storage directory: %w", err)
	}

	return &LocalStorage{
		basePath: basePath,
		baseURL:  strings.TrimSuffix(strings.TrimSpace(baseURL), "/"),
	}, nil
}

func (l *LocalStorage) Name() string { return "local_disk" }

func (l *LocalStorage) PublicBaseURL() string { return l.baseURL }

// Root is the directory the HTTP process serves under PublicBaseURL.
func (l *LocalStorage) Root() string { return l.basePath }

func (l *LocalStorage) resolve(key string) (string, error) {
	for _, part := range strings.Split(key, "/") {
		if part == ".." {
			return "", fmt.Errorf("invalid object path %q", key)
		}
	}
	return filepath.Join(l.basePath, filepath.FromSlash(key)), nil
}

// Upload writes through a temp file and a rename so readers never see a partial image.
func (l *LocalStorage) Upload(ctx context.Context, data []byte, path, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	fullPath, err := l.resolve(path)
	if err != nil {
		return fmt.Errorf("%w: %v", entity.ErrUpload, err)
	}

	dir := filepath.Dir(fullPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("%w: failed to create directory: %v", entity.ErrUpload, err)
	}

	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return fmt.Errorf("%w: failed to create file: %v", entity.ErrUpload, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: failed to write file: %v", entity.ErrUpload, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: failed to close file: %v", entity.ErrUpload, err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: failed to set permissions: %v", entity.ErrUpload, err)
	}
	if err := os.Rename(tmpName, fullPath); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: failed to move file into place: %v", entity.ErrUpload, err)
	}

	return nil
}

func (l *LocalStorage) DeleteOne(ctx context.Context, path string) error {
	fullPath, err := l.resolve(path)
	if err != nil {
		return fmt.Errorf("%w: %v", entity.ErrDelete, err)
	}
	if err := os.Remove(fullPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: remove %s: %v", entity.ErrDelete, path, err)
	}
	return nil
}

// DeleteBatch removes the listed files and then the batch directory if it is left empty.
func (l *LocalStorage) DeleteBatch(ctx context.Context, baseDir, directory string, filenames []string) error {
	for _, name := range filenames {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := l.DeleteOne(ctx, entity.ObjectPath(baseDir, directory, name)); err != nil {
			return err
		}
	}

	dirPath, err := l.resolve(entity.ObjectPath(baseDir, directory))
	if err != nil {
		return fmt.Errorf("%w: %v", entity.ErrDelete, err)
	}
	entries, err := os.ReadDir(dirPath)
	if err == nil && len(entries) == 0 {
		_ = os.Remove(dirPath)
	}
	return nil
}

// Health verifies the tree is writable.
func (l *LocalStorage) Health(ctx context.Context) error {
	probe, err := os.CreateTemp(l.basePath, ".health-*")
	if err != nil {
		return fmt.Errorf("local storage not writable: %w", err)
	}
	name := probe.Name()
	_ = probe.Close()
	return os.Remove(name)
}
