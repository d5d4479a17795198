package main

import (
	"github.com/urfave/cli/v2"

	"github.com/andresuchdata/imgsync/internal/config"
)

func catalogFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "catalog",
			Aliases: []string{"c"},
			Usage:   "Catalog file (.csv or .xlsx)",
			EnvVars: []string{"CATALOG_PATH"},
		},
		&cli.StringFlag{
			Name:    "catalog-drive-id",
			Usage:   "Drive file id of the catalog, downloaded before reading",
			EnvVars: []string{"CATALOG_DRIVE_FILE_ID"},
		},
		&cli.StringFlag{
			Name:    "image-column",
			Usage:   "Column holding the serialized image URL list",
			EnvVars: []string{"CATALOG_IMAGE_COLUMN"},
		},
		&cli.BoolFlag{
			Name:    "strict",
			Usage:   "Fail the whole run on the first malformed catalog row",
			EnvVars: []string{"CATALOG_STRICT"},
		},
	}
}

func transferFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "mode",
			Aliases: []string{"m"},
			Usage:   "Batching strategy: item, batch or bundle",
			EnvVars: []string{"TRANSFER_MODE"},
		},
		&cli.IntFlag{
			Name:    "batch-size",
			Usage:   "Items per batch in batch mode",
			EnvVars: []string{"BATCH_SIZE"},
		},
		&cli.StringFlag{
			Name:    "staging-dir",
			Usage:   "Directory fetched images are staged in",
			EnvVars: []string{"STAGING_DIR"},
		},
		&cli.StringFlag{
			Name:    "archive-dir",
			Usage:   "Directory the bundle zip is written to",
			EnvVars: []string{"ARCHIVE_DIR"},
		},
		&cli.StringFlag{
			Name:    "archive-name",
			Usage:   "Bundle file name (default images_<timestamp>.zip)",
			EnvVars: []string{"ARCHIVE_NAME"},
		},
		&cli.DurationFlag{
			Name:    "fetch-timeout",
			Usage:   "Timeout for each image download",
			EnvVars: []string{"FETCH_TIMEOUT"},
		},
		&cli.DurationFlag{
			Name:    "upload-timeout",
			Usage:   "Timeout for each upload",
			EnvVars: []string{"UPLOAD_TIMEOUT"},
		},
		&cli.IntFlag{
			Name:    "fetch-concurrency",
			Usage:   "Max downloads in flight per wave (0 = whole wave)",
			EnvVars: []string{"FETCH_CONCURRENCY"},
		},
		&cli.IntFlag{
			Name:    "upload-concurrency",
			Usage:   "Max uploads in flight per wave (0 = whole wave)",
			EnvVars: []string{"UPLOAD_CONCURRENCY"},
		},
		&cli.BoolFlag{
			Name:    "fail-on-error",
			Usage:   "Exit non-zero when any item failed",
			EnvVars: []string{"FAIL_ON_ERROR"},
		},
	}
}

func storageFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "backend",
			Usage:   "Storage backend: drive, s3, sevalla or local",
			EnvVars: []string{"STORAGE_BACKEND"},
		},
		&cli.StringFlag{
			Name:    "folder-id",
			Usage:   "Target folder identifier",
			EnvVars: []string{"TARGET_FOLDER_ID"},
		},
		&cli.StringFlag{
			Name:    "folder-path",
			Usage:   "Target folder path, resolved through Drive when no id is given",
			EnvVars: []string{"TARGET_FOLDER_PATH"},
		},
		&cli.StringFlag{
			Name:    "local-dir",
			Usage:   "Root directory of the local backend",
			EnvVars: []string{"LOCAL_STORAGE_DIR"},
		},
		&cli.StringFlag{
			Name:    "credentials",
			Usage:   "Path to the OAuth client or service account JSON",
			EnvVars: []string{"GOOGLE_CREDENTIALS_FILE"},
		},
		&cli.StringFlag{
			Name:    "token-file",
			Usage:   "Where the OAuth token is stored",
			EnvVars: []string{"GOOGLE_TOKEN_FILE"},
		},
	}
}

// applyFlags returns a copy of base with every explicitly set flag applied.
func applyFlags(c *cli.Context, base *config.Config) *config.Config {
	cfg := *base

	setString := func(name string, dst *string) {
		if c.IsSet(name) {
			*dst = c.String(name)
		}
	}
	setInt := func(name string, dst *int) {
		if c.IsSet(name) {
			*dst = c.Int(name)
		}
	}
	setBool := func(name string, dst *bool) {
		if c.IsSet(name) {
			*dst = c.Bool(name)
		}
	}

	setString("catalog", &cfg.Catalog.Path)
	setString("catalog-drive-id", &cfg.Catalog.DriveFileID)
	setString("image-column", &cfg.Catalog.ImageColumn)
	setBool("strict", &cfg.Catalog.Strict)

	setString("mode", &cfg.Transfer.Mode)
	setInt("batch-size", &cfg.Transfer.BatchSize)
	setString("staging-dir", &cfg.Transfer.StagingDir)
	setString("archive-dir", &cfg.Transfer.ArchiveDir)
	setString("archive-name", &cfg.Transfer.ArchiveName)
	setInt("fetch-concurrency", &cfg.Transfer.FetchConcurrency)
	setInt("upload-concurrency", &cfg.Transfer.UploadConcurrency)
	if c.IsSet("fetch-timeout") {
		cfg.Transfer.FetchTimeout = c.Duration("fetch-timeout")
	}
	if c.IsSet("upload-timeout") {
		cfg.Transfer.UploadTimeout = c.Duration("upload-timeout")
	}
	setBool("fail-on-error", &cfg.App.FailOnError)

	setString("backend", &cfg.Storage.Backend)
	setString("folder-id", &cfg.Storage.TargetFolderID)
	setString("folder-path", &cfg.Storage.TargetFolderPath)
	setString("local-dir", &cfg.Storage.LocalDir)
	setString("credentials", &cfg.Google.CredentialsFile)
	setString("token-file", &cfg.Google.TokenFile)

	return &cfg
}
