package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/andresuchdata/imgsync/internal/auth"
	"github.com/andresuchdata/imgsync/internal/catalog"
	"github.com/andresuchdata/imgsync/internal/config"
	"github.com/andresuchdata/imgsync/internal/domain"
	"github.com/andresuchdata/imgsync/internal/drive"
	"github.com/andresuchdata/imgsync/internal/storage"
)

// Backend is what the commands need from a storage backend.
type Backend interface {
	storage.ObjectStorage
	storage.Lister
}

func newProvider(cfg *config.Config, out io.Writer) *auth.Provider {
	return auth.NewProvider(auth.Options{
		CredentialsFile: cfg.Google.CredentialsFile,
		CredentialsJSON: cfg.Google.CredentialsJSON,
		Scopes:          []string{cfg.Google.Scope},
		Store:           auth.NewFileTokenStore(cfg.Google.TokenFile),
		Authorize:       auth.LoopbackAuthorizer(out),
	})
}

func newDriveService(ctx context.Context, cfg *config.Config, out io.Writer) (*drive.Service, error) {
	client, err := newProvider(cfg, out).HTTPClient(ctx)
	if err != nil {
		return nil, err
	}
	return drive.NewService(ctx, client)
}

func newBackend(ctx context.Context, cfg *config.Config, out io.Writer) (Backend, error) {
	var (
		backend Backend
		err     error
	)
	switch strings.ToLower(strings.TrimSpace(cfg.Storage.Backend)) {
	case "", "drive":
		backend, err = newDriveService(ctx, cfg, out)
	case "s3":
		backend, err = storage.NewS3Client(storage.S3Config(cfg.S3))
	case "sevalla":
		backend, err = storage.NewSevallaClient(storage.SevallaConfig(cfg.Sevalla))
	case "local":
		backend, err = storage.NewLocalStorage(cfg.Storage.LocalDir)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
	if err != nil {
		return nil, err
	}
	return backend, nil
}

// resolveFolder picks the target folder identifier. An explicit id wins; a
// path is looked up through Drive, or used as a key prefix by the other
// backends.
func resolveFolder(ctx context.Context, cfg *config.Config, backend Backend) (string, error) {
	if id := strings.TrimSpace(cfg.Storage.TargetFolderID); id != "" {
		return id, nil
	}

	path := strings.Trim(strings.TrimSpace(cfg.Storage.TargetFolderPath), "/")
	if path == "" {
		return "", domain.ErrNoTargetFolder
	}
	if svc, ok := backend.(*drive.Service); ok {
		id, err := svc.FindFolderByPath(ctx, path)
		if err != nil {
			return "", fmt.Errorf("failed to resolve folder path %q: %w", path, err)
		}
		return id, nil
	}
	return path, nil
}

// loadCatalog reads the configured catalog, pulling it from Drive first when
// a Drive file id is configured.
func loadCatalog(ctx context.Context, cfg *config.Config, out io.Writer, downloadDir string) (*catalog.Catalog, error) {
	path := cfg.Catalog.Path
	if cfg.Catalog.DriveFileID != "" {
		svc, err := newDriveService(ctx, cfg, out)
		if err != nil {
			return nil, err
		}
		path, err = drive.NewDownloader(svc).DownloadCatalog(ctx, cfg.Catalog.DriveFileID, downloadDir)
		if err != nil {
			return nil, err
		}
	}
	if path == "" {
		return nil, fmt.Errorf("no catalog configured")
	}

	return catalog.ReadFile(ctx, path, catalog.Options{
		ImageColumn: cfg.Catalog.ImageColumn,
		Strict:      cfg.Catalog.Strict,
	})
}
