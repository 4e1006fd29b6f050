package voice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// LocalStore keeps clips on disk and serves them under URLPrefix.
type LocalStore struct {
	Dir       string
	URLPrefix string
}

func NewLocalStore(dir, urlPrefix string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("voice: create dir: %w", err)
	}
	if urlPrefix == "" {
		urlPrefix = "/media/"
	}
	if !strings.HasSuffix(urlPrefix, "/") {
		urlPrefix += "/"
	}
	return &LocalStore{Dir: dir, URLPrefix: urlPrefix}, nil
}

func (ls *LocalStore) Save(ctx context.Context, key string, r io.Reader, contentType string) (string, error) {
	if err := validKey(key); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	dst := filepath.Join(ls.Dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return "", fmt.Errorf("voice: create dir: %w", err)
	}

	f, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return "", fmt.Errorf("voice: create file: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(dst)
		return "", fmt.Errorf("voice: write file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("voice: close file: %w", err)
	}
	return key, nil
}

func (ls *LocalStore) Delete(ctx context.Context, storedPath string) error {
	key := strings.TrimPrefix(storedPath, LegacyPrefix)
	if err := validKey(key); err != nil {
		return err
	}
	err := os.Remove(filepath.Join(ls.Dir, filepath.FromSlash(key)))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("voice: remove file: %w", err)
	}
	return nil
}

func (ls *LocalStore) URL(storedPath string) string {
	if storedPath == "" {
		return ""
	}
	if strings.HasPrefix(storedPath, "http://") || strings.HasPrefix(storedPath, "https://") {
		return storedPath
	}
	return ls.URLPrefix + strings.TrimPrefix(storedPath, LegacyPrefix)
}

// Handler serves the stored clips; mount it under URLPrefix. Directories
// answer 404.
func (ls *LocalStore) Handler() http.Handler {
	return http.StripPrefix(strings.TrimSuffix(ls.URLPrefix, "/"), http.FileServer(clipsOnly{http.Dir(ls.Dir)}))
}

type clipsOnly struct {
	root http.FileSystem
}

func (c clipsOnly) Open(name string) (http.File, error) {
	f, err := c.root.Open(name)
	if err != nil {
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if st.IsDir() {
		f.Close()
		return nil, fs.ErrNotExist
	}
	return f, nil
}
