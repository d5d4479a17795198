package pipeline

import (
	"context"
	"io"

	"github.com/andresuchdata/imgsync/internal/archive"
	"github.com/andresuchdata/imgsync/internal/domain"
)

const (
	DefaultBatchSize     = 100
	DefaultStagingDir    = "temp_images"
	DefaultArchivePrefix = "images"
)

// Fetcher downloads one wave of work items into a staging directory.
type Fetcher interface {
	FetchAll(ctx context.Context, stagingDir string, items []domain.WorkItem) []domain.TransferOutcome
}

// Uploader pushes staged files, or one bundle, to the target folder.
type Uploader interface {
	UploadAll(ctx context.Context, stagingDir string, fetched []domain.TransferOutcome) []domain.TransferOutcome
	UploadBundle(ctx context.Context, archivePath string) (string, error)
	FolderID() string
}

// Packager zips the named files of a staging directory.
type Packager interface {
	Create(ctx context.Context, stagingDir string, names []string, outPath string) (*archive.Info, error)
}

// Config holds configuration for a run
type Config struct {
	Mode       domain.Mode
	BatchSize  int    // Items per batch in batch mode
	StagingDir string // Shared directory for fetched files
	ArchiveDir string // Where the bundle zip is written, bundle mode only
	// ArchiveName overrides the generated images_<timestamp>.zip name.
	ArchiveName string
	Out         io.Writer // Progress and summary output
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Mode:       domain.ModeBatch,
		BatchSize:  DefaultBatchSize,
		StagingDir: DefaultStagingDir,
		ArchiveDir: ".",
		Out:        io.Discard,
	}
}
