package loader

import (
	"context"
	"fmt"
	"os"

	"github.com/poiesic/ragchat/core"
	"github.com/tmc/langchaingo/documentloaders"
	"github.com/tmc/langchaingo/schema"
)

// documentLoader builds a langchaingo loader over an open file.
type documentLoader func(f *os.File, size int64) documentloaders.Loader

type langchainLoader struct {
	build documentLoader
}

// NewPDFLoader returns a loader that yields one page per PDF page.
func NewPDFLoader() Loader {
	return &langchainLoader{build: func(f *os.File, size int64) documentloaders.Loader {
		return documentloaders.NewPDF(f, size)
	}}
}

// NewCSVLoader returns a loader that yields one page per CSV row, each
// rendered as "column: value" lines.
func NewCSVLoader() Loader {
	return &langchainLoader{build: func(f *os.File, _ int64) documentloaders.Loader {
		return documentloaders.NewCSV(f)
	}}
}

// NewTextLoader returns a loader that yields the whole file as one page.
func NewTextLoader() Loader {
	return &langchainLoader{build: func(f *os.File, _ int64) documentloaders.Loader {
		return documentloaders.NewText(f)
	}}
}

func (l *langchainLoader) Load(ctx context.Context, path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrUnreadableFile, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrUnreadableFile, err)
	}

	docs, err := l.build(f, info.Size()).Load(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %s: %w", core.ErrUnreadableFile, path, err)
	}
	return pageContents(docs), nil
}

func pageContents(docs []schema.Document) []string {
	pages := make([]string, len(docs))
	for i, d := range docs {
		pages[i] = d.PageContent
	}
	return pages
}
