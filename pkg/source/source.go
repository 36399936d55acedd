package source

import (
	"fmt"
	"os"
	"sort"
	"sync"
)

// ContentSource provides file content from a specific source.
type ContentSource interface {
	// Read returns the content of the file at path.
	Read(path string) ([]byte, error)
}

// FilesystemSource reads files from the local filesystem.
type FilesystemSource struct{}

// NewFilesystem creates a source that reads from the filesystem.
func NewFilesystem() *FilesystemSource {
	return &FilesystemSource{}
}

// Read implements ContentSource.
func (f *FilesystemSource) Read(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// TreeSource serves file content from an in-memory map. Used for fixtures
// in tests and for callers that already hold source text.
// It is safe for concurrent use by multiple goroutines.
type TreeSource struct {
	mu    sync.RWMutex
	files map[string][]byte
}

// NewTree creates an in-memory source from path to content.
func NewTree(files map[string]string) *TreeSource {
	t := &TreeSource{files: make(map[string][]byte, len(files))}
	for path, content := range files {
		t.files[path] = []byte(content)
	}
	return t
}

// Read implements ContentSource.
func (t *TreeSource) Read(path string) ([]byte, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	content, ok := t.files[path]
	if !ok {
		return nil, fmt.Errorf("no such file: %s", path)
	}
	return content, nil
}

// Add inserts or replaces a file.
func (t *TreeSource) Add(path string, content string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.files[path] = []byte(content)
}

// Paths returns all file paths in sorted order.
func (t *TreeSource) Paths() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	paths := make([]string, 0, len(t.files))
	for p := range t.files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}
