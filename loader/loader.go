package loader

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/poiesic/ragchat/core"
)

// Loader extracts the text pages of one document.
type Loader interface {
	// Load reads the file at path and returns its pages in order.
	// Failures wrap core.ErrUnreadableFile.
	Load(ctx context.Context, path string) ([]string, error)
}

// LoaderFunc adapts a function to the Loader interface.
type LoaderFunc func(ctx context.Context, path string) ([]string, error)

func (f LoaderFunc) Load(ctx context.Context, path string) ([]string, error) {
	return f(ctx, path)
}

// Registry selects a Loader by file type. Safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	loaders map[core.FileType]Loader
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{loaders: make(map[core.FileType]Loader)}
}

// Default returns a registry with the pdf, csv, docx and txt loaders.
func Default() *Registry {
	r := NewRegistry()
	r.Register(core.FileTypePDF, NewPDFLoader())
	r.Register(core.FileTypeCSV, NewCSVLoader())
	r.Register(core.FileTypeDOCX, NewDOCXLoader())
	r.Register(core.FileTypeTXT, NewTextLoader())
	return r
}

// Register binds a loader to a file type, replacing any previous binding.
func (r *Registry) Register(ft core.FileType, l Loader) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loaders[ft] = l
}

// Lookup returns the loader for ft or core.ErrUnsupportedFileType.
func (r *Registry) Lookup(ft core.FileType) (Loader, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.loaders[ft]
	if !ok {
		return nil, fmt.Errorf("%w: %q", core.ErrUnsupportedFileType, ft)
	}
	return l, nil
}

// Supports reports whether a loader is registered for ft.
func (r *Registry) Supports(ft core.FileType) bool {
	_, err := r.Lookup(ft)
	return err == nil
}

// Types returns the registered file types in sorted order.
func (r *Registry) Types() []core.FileType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.loaders))
}

// Load looks up the loader for ft and runs it. Loader failures that are not
// already classified are reported as core.ErrUnreadableFile; context errors
// pass through unchanged.
func (r *Registry) Load(ctx context.Context, ft core.FileType, path string) ([]string, error) {
	l, err := r.Lookup(ft)
	if err != nil {
		return nil, err
	}
	pages, err := l.Load(ctx, path)
	if err != nil {
		if errors.Is(err, core.ErrUnreadableFile) || ctx.Err() != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s: %w", core.ErrUnreadableFile, path, err)
	}
	return pages, nil
}
