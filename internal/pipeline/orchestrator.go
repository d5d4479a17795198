package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/andresuchdata/imgsync/internal/archive"
	"github.com/andresuchdata/imgsync/internal/domain"
	"github.com/andresuchdata/imgsync/pkg/logger"
)

// Orchestrator sequences fetch, upload and cleanup over batches of work items
// and accumulates the run summary.
type Orchestrator struct {
	cfg      Config
	fetcher  Fetcher
	uploader Uploader
	packager Packager
	log      zerolog.Logger
	now      func() time.Time
}

// NewOrchestrator creates a new Orchestrator. packager may be nil unless the
// run uses bundle mode.
func NewOrchestrator(cfg Config, fetcher Fetcher, uploader Uploader, packager Packager) *Orchestrator {
	def := DefaultConfig()
	if cfg.Mode == "" {
		cfg.Mode = def.Mode
	}
	if mode, ok := domain.ParseMode(string(cfg.Mode)); ok {
		cfg.Mode = mode
	}
	if cfg.StagingDir == "" {
		cfg.StagingDir = def.StagingDir
	}
	if cfg.ArchiveDir == "" {
		cfg.ArchiveDir = def.ArchiveDir
	}
	if cfg.Out == nil {
		cfg.Out = def.Out
	}

	return &Orchestrator{
		cfg:      cfg,
		fetcher:  fetcher,
		uploader: uploader,
		packager: packager,
		log:      logger.Component("pipeline"),
		now:      time.Now,
	}
}

// Batches splits items into contiguous slices of at most size items.
// A non-positive size yields a single batch.
func Batches(items []domain.WorkItem, size int) [][]domain.WorkItem {
	if len(items) == 0 {
		return nil
	}
	if size <= 0 || size >= len(items) {
		return [][]domain.WorkItem{items}
	}

	batches := make([][]domain.WorkItem, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		batches = append(batches, items[start:end:end])
	}
	return batches
}

func (o *Orchestrator) batchSize(total int) int {
	switch o.cfg.Mode {
	case domain.ModeItem:
		return 1
	case domain.ModeBundle:
		return total
	}
	if o.cfg.BatchSize <= 0 {
		return DefaultBatchSize
	}
	return o.cfg.BatchSize
}

// Run transfers every item and returns the accumulated summary. Item level
// failures never abort the run; they are recorded in the summary. When ctx is
// cancelled the current batch finishes, no further batch starts, and the
// partial summary is returned together with the context error.
func (o *Orchestrator) Run(ctx context.Context, items []domain.WorkItem) (*domain.RunSummary, error) {
	if o.fetcher == nil || o.uploader == nil {
		return nil, fmt.Errorf("pipeline: fetcher and uploader are required")
	}
	if _, ok := domain.ParseMode(string(o.cfg.Mode)); !ok {
		return nil, fmt.Errorf("pipeline: unknown mode %q", o.cfg.Mode)
	}
	if o.cfg.Mode == domain.ModeBundle && o.packager == nil {
		return nil, fmt.Errorf("pipeline: bundle mode requires a packager")
	}

	start := o.now()
	summary := &domain.RunSummary{
		RunID:        uuid.NewString(),
		Mode:         string(o.cfg.Mode),
		TargetFolder: o.uploader.FolderID(),
		TotalItems:   len(items),
	}
	log := o.log.With().Str("run_id", summary.RunID).Str("mode", summary.Mode).Logger()
	log.Info().Int("items", len(items)).Str("folder", summary.TargetFolder).Msg("run started")

	batches := Batches(items, o.batchSize(len(items)))
	if o.cfg.Mode == domain.ModeBundle {
		fmt.Fprintf(o.cfg.Out, "Starting processing of %d images as a single bundle...\n", len(items))
	} else {
		fmt.Fprintf(o.cfg.Out, "Starting processing of %d images in batches of %d...\n", len(items), o.batchSize(len(items)))
	}

	var runErr error
	for i, batch := range batches {
		if err := ctx.Err(); err != nil {
			log.Warn().Err(err).Int("remaining_batches", len(batches)-i).Msg("run cancelled, skipping remaining batches")
			runErr = err
			break
		}

		var res domain.BatchResult
		if o.cfg.Mode == domain.ModeBundle {
			res = o.runBundle(ctx, batch, summary)
		} else {
			res = o.RunBatch(ctx, i+1, len(batches), batch, summary)
		}
		summary.Batches++

		fmt.Fprintf(o.cfg.Out, "Batch completed in %s (Download: %s, Upload: %s)\n",
			formatDuration(res.Elapsed), formatDuration(res.FetchElapsed), formatDuration(res.UploadElapsed))
		fmt.Fprintf(o.cfg.Out, "Progress: %d/%d images processed\n", summary.TotalSucceeded, summary.TotalItems)
	}

	o.removeStagingDir(log)
	summary.TotalElapsed = o.now().Sub(start)

	log.Info().
		Int("succeeded", summary.TotalSucceeded).
		Int("failed", summary.FailedCount()).
		Dur("elapsed", summary.TotalElapsed).
		Msg("run finished")

	return summary, runErr
}

// runBundle fetches all items, zips the fetched files and uploads the archive
// in a single call.
func (o *Orchestrator) runBundle(ctx context.Context, items []domain.WorkItem, summary *domain.RunSummary) domain.BatchResult {
	start := o.now()
	res := domain.BatchResult{Index: 1, Attempted: len(items), State: domain.BatchPending}
	fmt.Fprintf(o.cfg.Out, "\nProcessing bundle (%d images)\n", len(items))

	fetched := o.fetchWave(ctx, &res, items, summary)
	if res.Fetched == 0 {
		o.advance(&res, domain.BatchDone)
		res.Elapsed = o.now().Sub(start)
		return res
	}

	o.advance(&res, domain.BatchUploading)
	uploadStart := o.now()
	archivePath := filepath.Join(o.cfg.ArchiveDir, o.archiveName(start))
	defer o.removeArchive(archivePath)

	names := make([]string, 0, res.Fetched)
	for _, f := range fetched {
		if f.Succeeded {
			names = append(names, f.Item.Filename)
		}
	}
	err := o.uploadBundle(ctx, archivePath, names)
	res.UploadElapsed = o.now().Sub(uploadStart)

	var uploaded []domain.TransferOutcome
	for _, f := range fetched {
		if !f.Succeeded {
			continue
		}
		if err != nil {
			summary.FailedUploads = append(summary.FailedUploads, f.Item)
			continue
		}
		uploaded = append(uploaded, domain.TransferOutcome{Item: f.Item, Succeeded: true, Bytes: f.Bytes})
	}
	res.Uploaded = len(uploaded)
	summary.TotalSucceeded += res.Uploaded
	if err != nil {
		o.log.Error().Err(err).Str("archive", archivePath).Msg("bundle upload failed")
		fmt.Fprintf(o.cfg.Out, "Error uploading bundle %s: %v\n", filepath.Base(archivePath), err)
	} else {
		fmt.Fprintf(o.cfg.Out, "Uploaded bundle with %d images\n", res.Uploaded)
	}

	o.advance(&res, domain.BatchCleaningUp)
	o.cleanup(uploaded)
	o.advance(&res, domain.BatchDone)
	res.Elapsed = o.now().Sub(start)
	return res
}

// uploadBundle packages only the files fetched by this run. Files left in
// staging by earlier runs are not part of the bundle.
func (o *Orchestrator) uploadBundle(ctx context.Context, archivePath string, names []string) error {
	if err := os.MkdirAll(o.cfg.ArchiveDir, 0o755); err != nil {
		return fmt.Errorf("failed to create archive dir: %w", err)
	}

	info, err := o.packager.Create(ctx, o.cfg.StagingDir, names, archivePath)
	if err != nil {
		return fmt.Errorf("failed to package staging dir: %w", err)
	}
	fmt.Fprintf(o.cfg.Out, "Packaged %d images into %s (%s)\n", len(info.Entries), filepath.Base(info.Path), formatBytes(info.CompressedSize))

	_, err = o.uploader.UploadBundle(ctx, archivePath)
	return err
}

func (o *Orchestrator) archiveName(now time.Time) string {
	if o.cfg.ArchiveName != "" {
		return o.cfg.ArchiveName
	}
	return archive.GenerateName(DefaultArchivePrefix, now)
}

func (o *Orchestrator) removeArchive(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		o.log.Warn().Err(err).Str("archive", path).Msg("failed to remove archive")
	}
}

// removeStagingDir removes the staging directory if it is empty. Files of
// failed uploads stay behind for inspection, so a non-empty directory is only
// logged.
func (o *Orchestrator) removeStagingDir(log zerolog.Logger) {
	err := os.Remove(o.cfg.StagingDir)
	switch {
	case err == nil:
	case errors.Is(err, os.ErrNotExist):
		log.Debug().Str("dir", o.cfg.StagingDir).Msg("staging dir already gone")
	default:
		log.Warn().Err(err).Str("dir", o.cfg.StagingDir).Msg("failed to remove staging dir")
		fmt.Fprintf(o.cfg.Out, "Error removing temporary directory: %v\n", err)
	}
}
