package cache

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	dfs "github.com/sokinpui/docexec/internal/fs"
	"github.com/sokinpui/docexec/internal/parser"
	"github.com/sokinpui/docexec/model"
)

// rootSegment holds the mirrors of absolute document paths.
const rootSegment = "_root"

// Store mirrors the documents of one namespace byte for byte. The hash and
// the units of the last successful run are always derived from the mirror.
// A nil *Store is a disabled cache.
type Store struct {
	dir string
}

// Open returns the store of namespace under root, creating its directory.
// An empty root means the user cache directory.
func Open(root, namespace string) (*Store, error) {
	if namespace == "" || namespace == "." || namespace == ".." || strings.ContainsAny(namespace, `/\`) {
		return nil, fmt.Errorf("invalid cache namespace %q", namespace)
	}
	if root == "" {
		var err error
		root, err = dfs.CacheDir()
		if err != nil {
			return nil, err
		}
	}

	dir := filepath.Join(root, namespace)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, &model.CacheError{Path: dir, Err: err}
	}
	return &Store{dir: dir}, nil
}

// Dir returns the namespace directory.
func (s *Store) Dir() string {
	return s.dir
}

// MirrorPath returns where the mirror of a document path is kept.
func (s *Store) MirrorPath(path string) string {
	clean := filepath.Clean(path)
	if !filepath.IsAbs(clean) && clean != ".." && !strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return filepath.Join(s.dir, clean)
	}

	abs, err := filepath.Abs(clean)
	if err != nil {
		abs = clean
	}
	abs = abs[len(filepath.VolumeName(abs)):]
	return filepath.Join(s.dir, rootSegment, abs)
}

// ContentHash returns the hash of the mirror of path. ok is false when the
// document was never stored.
func (s *Store) ContentHash(path string) (hash string, ok bool, err error) {
	mirror := s.MirrorPath(path)
	hash, err = dfs.GetFileSHA256(mirror)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", false, nil
		}
		return "", false, &model.CacheError{Path: mirror, Err: err}
	}
	return hash, true, nil
}

// Hit reports whether the live content of path equals its mirror.
func (s *Store) Hit(path string) (bool, error) {
	cached, ok, err := s.ContentHash(path)
	if err != nil || !ok {
		return false, err
	}
	live, err := dfs.GetFileSHA256(path)
	if err != nil {
		return false, fmt.Errorf("hashing %s: %w", path, err)
	}
	return live == cached, nil
}

// PriorUnits parses the mirror of path. ok is false when the document was
// never stored.
func (s *Store) PriorUnits(path string) (units []model.Unit, ok bool, err error) {
	mirror := s.MirrorPath(path)
	data, err := os.ReadFile(mirror)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, &model.CacheError{Path: mirror, Err: err}
	}
	units, err = parser.ParseUnits(path, string(data))
	if err != nil {
		return nil, false, &model.CacheError{Path: mirror, Err: err}
	}
	return units, true, nil
}

// Store replaces the mirror of path with the current file content.
func (s *Store) Store(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return &model.CacheError{Path: path, Err: err}
	}
	return s.Put(path, data)
}

// Put replaces the mirror of path with content.
func (s *Store) Put(path string, content []byte) error {
	mirror := s.MirrorPath(path)
	if err := dfs.WriteFileAtomic(mirror, content, 0644); err != nil {
		return &model.CacheError{Path: mirror, Err: err}
	}
	return nil
}

// PurgeAll deletes the namespace directory and returns the removed files.
func (s *Store) PurgeAll() ([]string, error) {
	var removed []string
	err := filepath.WalkDir(s.dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			removed = append(removed, p)
		}
		return nil
	})
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, &model.CacheError{Path: s.dir, Err: err}
	}
	if err := os.RemoveAll(s.dir); err != nil {
		return nil, &model.CacheError{Path: s.dir, Err: err}
	}
	sort.Strings(removed)
	return removed, nil
}
