// Package archive packages the staged files of a bundle run into a single zip.
package archive

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zip"
)

// Info describes a written archive.
type Info struct {
	Path             string    `json:"path"`
	Entries          []string  `json:"entries"`
	OriginalSize     int64     `json:"original_size"`
	CompressedSize   int64     `json:"compressed_size"`
	CompressionRatio float64   `json:"compression_ratio"`
	CreatedAt        time.Time `json:"created_at"`
}

// Packager writes zip bundles.
type Packager struct{}

// New creates a Packager.
func New() *Packager {
	return &Packager{}
}

// GenerateName returns a timestamped archive file name.
func GenerateName(prefix string, now time.Time) string {
	if prefix == "" {
		prefix = "images"
	}
	return fmt.Sprintf("%s_%s.zip", prefix, now.Format("20060102_150405"))
}

// Create archives the named files of stagingDir into outPath. Names are
// relative to stagingDir; a nil names archives every regular file under it.
// outPath must not live inside stagingDir.
func (p *Packager) Create(ctx context.Context, stagingDir string, names []string, outPath string) (*Info, error) {
	createdAt := time.Now()

	if names == nil {
		var err error
		if names, err = listFiles(stagingDir); err != nil {
			return nil, fmt.Errorf("failed to read staging dir %s: %w", stagingDir, err)
		}
	}

	outFile, err := os.Create(outPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create archive file: %w", err)
	}
	defer outFile.Close()

	zipWriter := zip.NewWriter(outFile)

	info := &Info{Path: outPath, CreatedAt: createdAt}
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			_ = zipWriter.Close()
			return nil, err
		}

		path := filepath.Join(stagingDir, filepath.FromSlash(name))
		fi, err := os.Stat(path)
		if err == nil && !fi.Mode().IsRegular() {
			err = fmt.Errorf("not a regular file")
		}
		if err == nil {
			err = addFile(zipWriter, path, filepath.ToSlash(name), fi)
		}
		if err != nil {
			_ = zipWriter.Close()
			return nil, fmt.Errorf("failed to add %s to archive: %w", name, err)
		}
		info.Entries = append(info.Entries, filepath.ToSlash(name))
		info.OriginalSize += fi.Size()
	}

	if err := zipWriter.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize archive: %w", err)
	}

	stat, err := outFile.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to get archive info: %w", err)
	}
	info.CompressedSize = stat.Size()
	if info.OriginalSize > 0 {
		info.CompressionRatio = float64(info.CompressedSize) / float64(info.OriginalSize)
	}

	return info, nil
}

// listFiles returns the regular files under dir, relative to it.
func listFiles(dir string) ([]string, error) {
	names := []string{}
	err := filepath.Walk(dir, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !fi.Mode().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		names = append(names, filepath.ToSlash(rel))
		return nil
	})
	return names, err
}

func addFile(zw *zip.Writer, path, name string, fi os.FileInfo) error {
	header, err := zip.FileInfoHeader(fi)
	if err != nil {
		return err
	}
	header.Name = name
	header.Method = zip.Deflate

	writer, err := zw.CreateHeader(header)
	if err != nil {
		return err
	}

	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	_, err = io.Copy(writer, file)
	return err
}
