// Package upload pushes staged files, or a single bundle, to remote storage.
package upload

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/andresuchdata/imgsync/internal/domain"
	"github.com/andresuchdata/imgsync/internal/fetch"
	"github.com/andresuchdata/imgsync/internal/storage"
	"github.com/andresuchdata/imgsync/pkg/logger"
)

const (
	ZipContentType     = "application/zip"
	defaultContentType = "application/octet-stream"
	sniffLen           = 512
)

var extContentTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".svg":  "image/svg+xml",
	".bmp":  "image/bmp",
	".tif":  "image/tiff",
	".tiff": "image/tiff",
	".avif": "image/avif",
	".pdf":  "application/pdf",
	".zip":  ZipContentType,
}

type Options struct {
	// FolderID is the remote parent every object is created under.
	FolderID string
	// Timeout bounds each upload. Zero disables it.
	Timeout     time.Duration
	Concurrency int
}

// Uploader sends files to an ObjectStorage backend.
type Uploader struct {
	store storage.ObjectStorage
	opts  Options
	log   zerolog.Logger
}

func New(store storage.ObjectStorage, opts Options) *Uploader {
	return &Uploader{
		store: store,
		opts:  opts,
		log:   logger.Component("upload"),
	}
}

// FolderID is the target folder identifier uploads go to.
func (u *Uploader) FolderID() string {
	return u.opts.FolderID
}

// UploadAll uploads the staged file of every successful fetch outcome in one
// concurrent wave and waits for all of them. Failed fetch outcomes are
// skipped. The result holds one outcome per uploaded candidate, in input order.
func (u *Uploader) UploadAll(ctx context.Context, stagingDir string, fetched []domain.TransferOutcome) []domain.TransferOutcome {
	var items []domain.WorkItem
	for _, o := range fetched {
		if o.Succeeded {
			items = append(items, o.Item)
		}
	}

	outcomes := make([]domain.TransferOutcome, len(items))

	var g errgroup.Group
	if u.opts.Concurrency > 0 {
		g.SetLimit(u.opts.Concurrency)
	}

	for i, item := range items {
		g.Go(func() error {
			path := fetch.StagedPath(stagingDir, item)
			id, n, err := u.uploadFile(ctx, path, "")
			if err != nil {
				u.log.Error().Err(err).Str("file", item.Filename).Str("folder", u.opts.FolderID).Msg("upload failed")
				outcomes[i] = domain.Failed(item, err)
				return nil
			}
			u.log.Debug().Str("file", item.Filename).Str("remote_id", id).Msg("uploaded")
			outcomes[i] = domain.TransferOutcome{Item: item, Succeeded: true, RemoteID: id, Bytes: n}
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

// UploadBundle uploads a single archive synchronously and returns its remote id.
func (u *Uploader) UploadBundle(ctx context.Context, archivePath string) (string, error) {
	id, n, err := u.uploadFile(ctx, archivePath, ZipContentType)
	if err != nil {
		return "", err
	}
	u.log.Info().
		Str("file", filepath.Base(archivePath)).
		Str("remote_id", id).
		Int64("bytes", n).
		Msg("bundle uploaded")
	return id, nil
}

func (u *Uploader) uploadFile(ctx context.Context, path, contentType string) (string, int64, error) {
	if u.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, u.opts.Timeout)
		defer cancel()
	}

	f, err := os.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", 0, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	if contentType == "" {
		contentType, err = DetectContentType(f, path)
		if err != nil {
			return "", 0, err
		}
	}

	id, err := u.store.CreateObject(ctx, storage.Object{
		Name:        filepath.Base(path),
		ParentID:    u.opts.FolderID,
		ContentType: contentType,
		Size:        info.Size(),
	}, f)
	if err != nil {
		return "", 0, err
	}
	return id, info.Size(), nil
}

// DetectContentType sniffs the head of r and falls back to the file
// extension of name when the content is not recognized. r is rewound.
func DetectContentType(r io.ReadSeeker, name string) (string, error) {
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(r, head)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return "", fmt.Errorf("failed to read %s: %w", name, err)
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("failed to rewind %s: %w", name, err)
	}

	mt := mimetype.Detect(head[:n])
	if !mt.Is(defaultContentType) && !mt.Is("text/plain") {
		return mt.String(), nil
	}
	if ct, ok := extContentTypes[strings.ToLower(filepath.Ext(name))]; ok {
		return ct, nil
	}
	return mt.String(), nil
}
