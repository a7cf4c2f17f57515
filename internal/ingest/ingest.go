// Package ingest discovers document candidates from registered sources:
// local directory trees and Chrome bookmark exports.
package ingest

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/docsift/docsift/internal/domain"
	errs "github.com/docsift/docsift/internal/errors"
)

// mimeByExtension maps known file extensions to MIME types.
var mimeByExtension = map[string]string{
	".pdf":      "application/pdf",
	".md":       "text/markdown",
	".markdown": "text/markdown",
	".html":     "text/html",
	".htm":      "text/html",
	".txt":      "text/plain",
}

// Scan dispatches on the source type.
func Scan(src *domain.Source, maxFileMB int) ([]*domain.Document, error) {
	switch src.Type {
	case domain.SourceTypeDirectory:
		return ScanDirectory(src, maxFileMB)
	case domain.SourceTypeBookmarks:
		return ScanBookmarks(src)
	default:
		return nil, errs.Validation("unknown source type %q", src.Type)
	}
}

// ScanDirectory walks src.Path recursively and returns a candidate
// document for every regular file. Dotfiles and dot-directories are
// skipped, as are files over the size cap.
func ScanDirectory(src *domain.Source, maxFileMB int) ([]*domain.Document, error) {
	root, err := filepath.Abs(src.Path)
	if err != nil {
		return nil, errs.Validation("invalid source path %q: %v", src.Path, err)
	}
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		return nil, errs.Validation("source path %q is not a directory", src.Path)
	}

	maxBytes := int64(maxFileMB) << 20
	var docs []*domain.Document

	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if strings.HasPrefix(d.Name(), ".") && path != root {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		if maxBytes > 0 && info.Size() > maxBytes {
			slog.Warn("skipping oversized file",
				slog.String("path", path),
				slog.Int64("size_bytes", info.Size()))
			return nil
		}

		mime, ok := mimeByExtension[strings.ToLower(filepath.Ext(path))]
		if !ok {
			mime = "application/octet-stream"
		}

		docs = append(docs, &domain.Document{
			ID:        domain.NewID(),
			SourceID:  src.ID,
			URI:       "file://" + path,
			Title:     filepath.Base(path),
			MimeType:  mime,
			SizeBytes: info.Size(),
			Mtime:     info.ModTime().UTC(),
			Status:    domain.DocStatusScanned,
		})
		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("failed to scan directory %s: %w", root, walkErr)
	}
	return docs, nil
}

// bookmarkNode is a node in Chrome's exported bookmarks tree.
type bookmarkNode struct {
	Type     string         `json:"type"`
	Name     string         `json:"name"`
	URL      string         `json:"url"`
	Children []bookmarkNode `json:"children"`
}

type bookmarkFile struct {
	Roots map[string]bookmarkNode `json:"roots"`
}

// ScanBookmarks parses a Chrome bookmarks JSON export at src.Path and
// returns a candidate document for every http(s) bookmark.
func ScanBookmarks(src *domain.Source) ([]*domain.Document, error) {
	data, err := os.ReadFile(src.Path)
	if err != nil {
		return nil, errs.Validation("cannot read bookmarks file %q: %v", src.Path, err)
	}

	var parsed bookmarkFile
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, errs.Validation("invalid bookmarks file %q: %v", src.Path, err)
	}

	now := time.Now().UTC()
	var docs []*domain.Document
	for _, root := range parsed.Roots {
		collectBookmarks(src, root, now, &docs)
	}
	return docs, nil
}

func collectBookmarks(src *domain.Source, node bookmarkNode, now time.Time, docs *[]*domain.Document) {
	if node.Type == "url" {
		if strings.HasPrefix(node.URL, "http://") || strings.HasPrefix(node.URL, "https://") {
			title := node.Name
			if title == "" {
				title = node.URL
			}
			*docs = append(*docs, &domain.Document{
				ID:       domain.NewID(),
				SourceID: src.ID,
				URI:      node.URL,
				Title:    title,
				MimeType: "text/html",
				Mtime:    now,
				Status:   domain.DocStatusScanned,
			})
		}
		return
	}
	for _, child := range node.Children {
		collectBookmarks(src, child, now, docs)
	}
}
