package drive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/andresuchdata/imgsync/pkg/logger"
)

// Downloader wraps Service to pull catalog files out of Google Drive.
type Downloader struct {
	service *Service
}

// NewDownloader creates a new Downloader.
func NewDownloader(s *Service) *Downloader {
	return &Downloader{service: s}
}

// DownloadCatalog saves the Drive file fileID into dir and returns the local
// path, ready for catalog.ReadFile.
//
//   - CSV and XLSX files are downloaded as-is.
//   - Native Google Sheets are exported to XLSX.
//   - Anything else is rejected.
func (d *Downloader) DownloadCatalog(ctx context.Context, fileID, dir string) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("download dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create download dir: %w", err)
	}

	f, err := d.service.GetFile(ctx, fileID)
	if err != nil {
		return "", err
	}

	name := filepath.Base(f.Name)
	ext := strings.ToLower(filepath.Ext(name))
	switch {
	case f.MimeType == SpreadsheetMimeType:
		if ext != ".xlsx" {
			name += ".xlsx"
		}
	case ext == ".csv", ext == ".xlsx":
	default:
		return "", fmt.Errorf("unsupported catalog file %q (%s)", f.Name, f.MimeType)
	}

	localPath := filepath.Join(dir, name)
	out, err := os.Create(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to create local file %s: %w", localPath, err)
	}
	if err := d.service.DownloadFile(ctx, f, out); err != nil {
		out.Close()
		_ = os.Remove(localPath)
		return "", fmt.Errorf("failed to download %s: %w", f.Name, err)
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", localPath, err)
	}

	logger.Log.Info().
		Str("file_id", fileID).
		Str("path", localPath).
		Msg("catalog downloaded from drive")

	return localPath, nil
}
