package fs

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/sokinpui/docexec/model"
)

// PathResolver finds embedded files in an ordered list of search directories.
type PathResolver struct {
	lookupDirs []string
}

// NewPathResolver creates a new PathResolver. An empty list means the
// current working directory.
func NewPathResolver(lookupDirs []string) *PathResolver {
	if len(lookupDirs) == 0 {
		wd, err := os.Getwd()
		if err != nil {
			// This is unlikely to fail, but if it does, it's a critical error.
			panic(fmt.Sprintf("could not get current working directory: %v", err))
		}
		return &PathResolver{lookupDirs: []string{wd}}
	}

	absDirs := make([]string, 0, len(lookupDirs))
	for _, dir := range lookupDirs {
		abs, err := filepath.Abs(dir)
		if err != nil {
			continue
		}
		absDirs = append(absDirs, abs)
	}
	return &PathResolver{lookupDirs: absDirs}
}

// Dirs returns the absolute search directories in lookup order.
func (r *PathResolver) Dirs() []string {
	return r.lookupDirs
}

// Lookup resolves a relative path against each search directory in order.
// The first existing regular file wins. When no candidate exists, the
// returned *model.LookupError lists every path tried.
func (r *PathResolver) Lookup(relativePath string) (string, error) {
	if filepath.IsAbs(relativePath) {
		if isRegularFile(relativePath) {
			return relativePath, nil
		}
		return "", &model.LookupError{Path: relativePath, Tried: []string{relativePath}}
	}

	tried := make([]string, 0, len(r.lookupDirs))
	for _, dir := range r.lookupDirs {
		candidate := filepath.Clean(filepath.Join(dir, relativePath))
		tried = append(tried, candidate)
		if isRegularFile(candidate) {
			return candidate, nil
		}
	}
	sort.Strings(tried)
	return "", &model.LookupError{Path: relativePath, Tried: tried}
}

func isRegularFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// Exists reports whether path exists.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// GetFileSHA256 returns the hex encoded SHA-256 of the file content.
func GetFileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// WriteFileAtomic replaces path with data through a temporary file in the
// same directory and a rename, so readers never observe a torn file.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		return err
	}
	_ = tmp.Sync()
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// FileMode returns the permission bits of an existing file, or 0644.
func FileMode(path string) os.FileMode {
	info, err := os.Stat(path)
	if err != nil {
		return 0644
	}
	return info.Mode().Perm()
}

// DescendantFiles returns path itself when it is a file, or every regular
// file below it with one of the given extensions, in natural order.
func DescendantFiles(path string, extensions []string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	var files []string
	err = filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		if hasExtension(p, extensions) {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	SortNatural(files)
	return files, nil
}

func hasExtension(path string, extensions []string) bool {
	if len(extensions) == 0 {
		return true
	}
	ext := filepath.Ext(path)
	for _, allowed := range extensions {
		if ext == "."+allowed || ext == allowed {
			return true
		}
	}
	return false
}
