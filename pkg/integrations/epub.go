// Package integrations converts downloaded chapters into external formats.
package integrations

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-shiori/go-epub"

	"github.com/kerbaras/mangetsu/pkg/data"
)

// EPUBExporter builds EPUB files from chapters stored in the offline
// library.
type EPUBExporter struct {
	outputDir string
}

// NewEPUBExporter returns an exporter writing into outputDir.
func NewEPUBExporter(outputDir string) *EPUBExporter {
	return &EPUBExporter{outputDir: outputDir}
}

// Export compiles one downloaded chapter into an EPUB and returns the
// output path. A missing page file aborts with an error; the library record
// is never touched.
func (x *EPUBExporter) Export(ch data.DownloadedChapter, title string) (string, error) {
	if len(ch.Pages) == 0 {
		return "", fmt.Errorf("chapter %s has no pages", ch.ChapterID)
	}
	if err := os.MkdirAll(x.outputDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	if title == "" {
		title = fmt.Sprintf("%s %s", ch.MangaID, ch.ChapterID)
	}

	e, err := epub.NewEpub(title)
	if err != nil {
		return "", fmt.Errorf("failed to create EPUB: %w", err)
	}
	e.SetLang("en")

	// Normalized copies go into a scratch dir; go-epub reads them by path.
	scratch, err := os.MkdirTemp("", "mangetsu-epub-*")
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(scratch)

	var html strings.Builder
	html.WriteString(fmt.Sprintf("<h1>%s</h1>\n", title))

	for i, pagePath := range ch.Pages {
		raw, err := os.ReadFile(pagePath)
		if err != nil {
			return "", fmt.Errorf("failed to read page %d: %w", i+1, err)
		}

		normalized, err := normalizePage(raw)
		if err != nil {
			return "", fmt.Errorf("failed to process page %d: %w", i+1, err)
		}

		scratchPath := filepath.Join(scratch, fmt.Sprintf("page-%03d.jpg", i+1))
		if err := os.WriteFile(scratchPath, normalized, 0o644); err != nil {
			return "", err
		}

		internalPath, err := e.AddImage(scratchPath, "")
		if err != nil {
			return "", fmt.Errorf("failed to add page %d: %w", i+1, err)
		}
		html.WriteString(fmt.Sprintf(
			`<div class="page"><img src="%s" alt="Page %d" style="width:100%%;height:auto;"/></div>%s`,
			internalPath, i+1, "\n",
		))
	}

	if _, err := e.AddSection(html.String(), title, "", ""); err != nil {
		return "", fmt.Errorf("failed to add section: %w", err)
	}

	outputPath := filepath.Join(x.outputDir, sanitizeFilename(title)+".epub")
	if err := e.Write(outputPath); err != nil {
		return "", fmt.Errorf("failed to write EPUB: %w", err)
	}
	return outputPath, nil
}

// sanitizeFilename removes characters that are invalid in filenames.
func sanitizeFilename(name string) string {
	invalid := []string{"/", "\\", ":", "*", "?", "\"", "<", ">", "|"}
	result := name
	for _, char := range invalid {
		result = strings.ReplaceAll(result, char, "_")
	}
	result = strings.TrimSpace(result)
	return strings.Trim(result, ".")
}
