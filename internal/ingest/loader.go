// Package ingest turns a chapter folder's course files into an embedded vector index.
package ingest

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

// SourceDirs are the chapter subfolders scanned for documents, in order.
var SourceDirs = []string{"materials", "question_bank"}

type Document struct {
	Source string // slash-separated path relative to the chapter folder
	Text   string
}

// LoadFolder reads every supported file under the chapter's source dirs.
// Missing source dirs are skipped.
func LoadFolder(folder string) ([]Document, error) {
	var docs []Document
	for _, dir := range SourceDirs {
		root := filepath.Join(folder, dir)
		if info, err := os.Stat(root); err != nil || !info.IsDir() {
			continue
		}
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			text, ok, err := loadFile(path)
			if err != nil {
				return err
			}
			if !ok || strings.TrimSpace(text) == "" {
				return nil
			}
			rel, err := filepath.Rel(folder, path)
			if err != nil {
				rel = path
			}
			docs = append(docs, Document{Source: filepath.ToSlash(rel), Text: text})
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", root, err)
		}
	}
	return docs, nil
}

// loadFile reports ok=false for unsupported extensions.
func loadFile(path string) (string, bool, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		text, err := extractPDF(path)
		return text, true, err
	case ".md", ".txt":
		b, err := os.ReadFile(path)
		if err != nil {
			return "", true, err
		}
		return string(b), true, nil
	default:
		return "", false, nil
	}
}

func extractPDF(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("pdf open %s: %w", path, err)
	}
	defer f.Close()

	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("pdf plaintext %s: %w", path, err)
	}
	b, err := io.ReadAll(plain)
	if err != nil {
		return "", fmt.Errorf("pdf read %s: %w", path, err)
	}
	return string(b), nil
}
