package template

import (
	"fmt"
	"os"
	"sync"

	"go.yaml.in/yaml/v2"
)

// Loader decodes template files from disk and caches them by source path.
type Loader struct {
	mu    sync.RWMutex
	cache map[string]Template
}

// NewLoader builds an empty Loader.
func NewLoader() *Loader {
	return &Loader{cache: make(map[string]Template)}
}

// Load reads and decodes the YAML template at path, caching the result.
// A second Load of the same path returns the cached value without
// re-reading the file.
func (l *Loader) Load(path string) (Template, error) {
	l.mu.RLock()
	if tmpl, ok := l.cache[path]; ok {
		l.mu.RUnlock()
		return tmpl, nil
	}
	l.mu.RUnlock()

	data, err := os.ReadFile(path)
	if err != nil {
		return Template{}, fmt.Errorf("template: read %s: %w", path, err)
	}

	var tmpl Template
	if err := yaml.Unmarshal(data, &tmpl); err != nil {
		return Template{}, fmt.Errorf("template: decode %s: %w", path, err)
	}

	l.mu.Lock()
	l.cache[path] = tmpl
	l.mu.Unlock()
	return tmpl, nil
}

// Invalidate drops a cached template so the next Load re-reads it from disk.
func (l *Loader) Invalidate(path string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.cache, path)
}
