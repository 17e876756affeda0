package loader

import (
	"archive/zip"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/poiesic/ragchat/core"
)

type docxLoader struct{}

// NewDOCXLoader returns a loader that yields a DOCX body as a single page
// with one line per paragraph.
func NewDOCXLoader() Loader {
	return docxLoader{}
}

// documentXML represents the structure of word/document.xml.
type documentXML struct {
	Body struct {
		Paragraphs []paragraph `xml:"p"`
	} `xml:"body"`
}

type paragraph struct {
	Runs []run `xml:"r"`
}

type run struct {
	Text []textElement `xml:"t"`
}

type textElement struct {
	Content string `xml:",chardata"`
}

func (docxLoader) Load(ctx context.Context, path string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	reader, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", core.ErrUnreadableFile, path, err)
	}
	defer reader.Close()

	for _, file := range reader.File {
		if file.Name != "word/document.xml" {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", core.ErrUnreadableFile, err)
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", core.ErrUnreadableFile, err)
		}
		text, err := parseDocumentXML(content)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", core.ErrUnreadableFile, path, err)
		}
		return []string{text}, nil
	}
	return nil, fmt.Errorf("%w: %s: missing word/document.xml", core.ErrUnreadableFile, path)
}

func parseDocumentXML(content []byte) (string, error) {
	var doc documentXML
	if err := xml.Unmarshal(content, &doc); err != nil {
		return "", err
	}

	var result strings.Builder
	for i, para := range doc.Body.Paragraphs {
		if i > 0 {
			result.WriteString("\n")
		}
		for _, run := range para.Runs {
			for _, text := range run.Text {
				result.WriteString(text.Content)
			}
		}
	}
	return strings.TrimSpace(result.String()), nil
}
