// Package blob stores uploaded item images. Keys are content addressed so
// the same file uploaded twice occupies one blob.
package blob

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/zeebo/blake3"
)

var ErrInvalidKey = errors.New("invalid blob key")

type Object struct {
	Key  string
	Size int64
}

type Store interface {
	Put(ctx context.Context, filename string, r io.Reader) (Object, error)
	Delete(ctx context.Context, key string) error
	URL(key string) string
}

// keyPattern matches "<2 hex>/<64 hex><optional extension>".
var keyPattern = regexp.MustCompile(`^[0-9a-f]{2}/[0-9a-f]{64}(\.[a-z0-9]{1,8})?$`)

type FSStore struct {
	root    string
	baseURL string
}

// NewFSStore creates root if needed. baseURL is the public prefix the
// router serves root under, e.g. "/media/".
func NewFSStore(root, baseURL string) (*FSStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create media root: %w", err)
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return &FSStore{root: root, baseURL: baseURL}, nil
}

func (s *FSStore) Root() string { return s.root }

// Put streams r into a temp file while hashing it, then renames the file
// into place under its digest.
func (s *FSStore) Put(ctx context.Context, filename string, r io.Reader) (Object, error) {
	if err := ctx.Err(); err != nil {
		return Object{}, err
	}

	tmp, err := os.CreateTemp(s.root, "upload-*.tmp")
	if err != nil {
		return Object{}, fmt.Errorf("create temp blob: %w", err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	h := blake3.New()
	size, err := io.Copy(io.MultiWriter(tmp, h), r)
	if err != nil {
		tmp.Close()
		return Object{}, fmt.Errorf("write blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return Object{}, fmt.Errorf("close temp blob: %w", err)
	}

	sum := hex.EncodeToString(h.Sum(nil))
	key := sum[:2] + "/" + sum + normalizeExt(filename)
	finalPath := s.path(key)

	if err := os.MkdirAll(filepath.Dir(finalPath), 0o755); err != nil {
		return Object{}, fmt.Errorf("create blob shard: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return Object{}, fmt.Errorf("rename blob: %w", err)
	}

	success = true
	return Object{Key: key, Size: size}, nil
}

// Delete removes a blob. A missing blob is not an error.
func (s *FSStore) Delete(ctx context.Context, key string) error {
	if !keyPattern.MatchString(key) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	if err := os.Remove(s.path(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove blob %s: %w", key, err)
	}
	return nil
}

func (s *FSStore) URL(key string) string {
	return s.baseURL + key
}

func (s *FSStore) path(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(key))
}

func normalizeExt(filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	if len(ext) < 2 || len(ext) > 9 {
		return ""
	}
	for _, c := range ext[1:] {
		if (c < 'a' || c > 'z') && (c < '0' || c > '9') {
			return ""
		}
	}
	return ext
}
