package thtml

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// A Loader retrieves template sources. The engine resolves every path to
// an absolute one before calling Load, both for the top-level template
// and for each t-include target.
type Loader interface {
	Load(path string) ([]byte, error)
}

// OSLoader reads templates from the local filesystem. It is the loader
// used when none is configured.
type OSLoader struct{}

// Load implements Loader.
func (OSLoader) Load(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// FSLoader reads templates from an fs.FS, for embedded or test template
// sets. Absolute engine paths map to fs-rooted ones by trimming the
// leading separator.
type FSLoader struct {
	FS fs.FS
}

// Load implements Loader.
func (l FSLoader) Load(path string) ([]byte, error) {
	return fs.ReadFile(l.FS, strings.TrimPrefix(filepath.ToSlash(path), "/"))
}

// MemLoader serves templates from an in-memory map keyed by path.
type MemLoader map[string]string

// Load implements Loader.
func (m MemLoader) Load(path string) ([]byte, error) {
	src, ok := m[path]
	if !ok {
		return nil, fmt.Errorf("template %s not found", path)
	}
	return []byte(src), nil
}
