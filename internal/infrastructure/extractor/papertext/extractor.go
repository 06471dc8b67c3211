// Package papertext extracts plain text from locally uploaded exam
// papers. PDFs go through a layout-aware cleanup pass; UTF-8 text
// files are passed through as-is.
package papertext

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

func (e *Extractor) Extract(ctx context.Context, filename string, data io.ReaderAt, size int64) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return extractPDF(data, size)
	case ".txt", ".md", "":
		return extractPlain(data, size, filename)
	default:
		return "", fmt.Errorf("unsupported document format: %s", filename)
	}
}

func extractPlain(data io.ReaderAt, size int64, filename string) (string, error) {
	raw := make([]byte, size)
	if _, err := data.ReadAt(raw, 0); err != nil && err != io.EOF {
		return "", fmt.Errorf("read source document: %w", err)
	}
	if !utf8.Valid(raw) {
		return "", fmt.Errorf("unsupported binary content: %s", filename)
	}
	return strings.TrimSpace(string(raw)), nil
}

func extractPDF(data io.ReaderAt, size int64) (string, error) {
	reader, err := pdf.NewReader(data, size)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}

	pages := make([][]string, 0, reader.NumPage())
	for pageNum := 1; pageNum <= reader.NumPage(); pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		rows, err := page.GetTextByRow()
		if err != nil {
			return "", fmt.Errorf("read pdf page %d: %w", pageNum, err)
		}

		var lines []string
		for _, row := range rows {
			var builder strings.Builder
			for _, entity := range row.Content {
				builder.WriteString(entity.S)
			}
			if line := strings.TrimSpace(builder.String()); line != "" {
				lines = append(lines, line)
			}
		}
		pages = append(pages, lines)
	}

	return CleanPages(pages), nil
}
