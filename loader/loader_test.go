package loader

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/poiesic/ragchat/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func writeDOCX(t *testing.T, documentXML string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "doc.docx")
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(documentXML))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
	return path
}

func TestRegistry_UnsupportedType(t *testing.T) {
	r := Default()

	for _, ft := range []core.FileType{"png", "", "exe"} {
		_, err := r.Lookup(ft)
		assert.ErrorIs(t, err, core.ErrUnsupportedFileType)
		assert.False(t, r.Supports(ft))
	}

	_, err := r.Load(context.Background(), "png", "/does/not/matter")
	assert.ErrorIs(t, err, core.ErrUnsupportedFileType)
}

func TestRegistry_DefaultTypes(t *testing.T) {
	r := Default()
	assert.Equal(t,
		[]core.FileType{core.FileTypeCSV, core.FileTypeDOCX, core.FileTypePDF, core.FileTypeTXT},
		r.Types())
}

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()
	r.Register("md", LoaderFunc(func(ctx context.Context, path string) ([]string, error) {
		return []string{"page one", "page two"}, nil
	}))

	pages, err := r.Load(context.Background(), "md", "x.md")
	require.NoError(t, err)
	assert.Equal(t, []string{"page one", "page two"}, pages)
}

func TestRegistry_LoadClassifiesFailures(t *testing.T) {
	r := NewRegistry()
	r.Register("raw", LoaderFunc(func(ctx context.Context, path string) ([]string, error) {
		return nil, errors.New("bad header")
	}))
	r.Register("classified", LoaderFunc(func(ctx context.Context, path string) ([]string, error) {
		return nil, fmt.Errorf("%w: encrypted", core.ErrUnreadableFile)
	}))

	_, err := r.Load(t.Context(), "raw", "doc.raw")
	require.ErrorIs(t, err, core.ErrUnreadableFile)
	assert.Contains(t, err.Error(), "bad header")

	_, err = r.Load(t.Context(), "classified", "doc.classified")
	require.ErrorIs(t, err, core.ErrUnreadableFile)
	assert.Equal(t, 1, strings.Count(err.Error(), core.ErrUnreadableFile.Error()))

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	r.Register("slow", LoaderFunc(func(ctx context.Context, path string) ([]string, error) {
		return nil, ctx.Err()
	}))
	_, err = r.Load(ctx, "slow", "doc.slow")
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, core.ErrUnreadableFile)
}

func TestTextLoader(t *testing.T) {
	path := writeFile(t, "notes.txt", "line one\nline two")

	pages, err := NewTextLoader().Load(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, "line one\nline two", pages[0])
}

func TestCSVLoader(t *testing.T) {
	path := writeFile(t, "people.csv", "name,city\nAlice,Paris\nBob,Rome\n")

	pages, err := NewCSVLoader().Load(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.Contains(t, pages[0], "Alice")
	assert.Contains(t, pages[0], "Paris")
	assert.Contains(t, pages[1], "Bob")
}

func TestDOCXLoader(t *testing.T) {
	xml := `<?xml version="1.0" encoding="UTF-8"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:r><w:t>Hello </w:t></w:r><w:r><w:t>world</w:t></w:r></w:p>
    <w:p><w:r><w:t>Second paragraph</w:t></w:r></w:p>
  </w:body>
</w:document>`
	path := writeDOCX(t, xml)

	pages, err := NewDOCXLoader().Load(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, "Hello world\nSecond paragraph", pages[0])
}

func TestLoaders_UnreadableFile(t *testing.T) {
	garbage := writeFile(t, "broken.bin", "this is not a structured document")

	tests := []struct {
		name   string
		loader Loader
		path   string
	}{
		{"missing text file", NewTextLoader(), filepath.Join(t.TempDir(), "missing.txt")},
		{"missing pdf", NewPDFLoader(), filepath.Join(t.TempDir(), "missing.pdf")},
		{"garbage pdf", NewPDFLoader(), garbage},
		{"garbage docx", NewDOCXLoader(), garbage},
		{"docx without body", NewDOCXLoader(), writeEmptyZip(t)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.loader.Load(context.Background(), tt.path)
			assert.ErrorIs(t, err, core.ErrUnreadableFile)
		})
	}
}

func writeEmptyZip(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "empty.docx")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, zip.NewWriter(f).Close())
	require.NoError(t, f.Close())
	return path
}
