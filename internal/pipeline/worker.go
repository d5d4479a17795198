package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/andresuchdata/imgsync/internal/domain"
	"github.com/andresuchdata/imgsync/internal/fetch"
)

// RunBatch drives one batch through PENDING, DOWNLOADING, UPLOADING,
// CLEANING_UP and DONE. A batch without a single successful fetch goes from
// DOWNLOADING straight to DONE.
func (o *Orchestrator) RunBatch(ctx context.Context, idx, total int, batch []domain.WorkItem, summary *domain.RunSummary) domain.BatchResult {
	start := o.now()
	res := domain.BatchResult{Index: idx, Attempted: len(batch), State: domain.BatchPending}
	log := o.log.With().Str("run_id", summary.RunID).Int("batch", idx).Logger()

	fmt.Fprintf(o.cfg.Out, "\nProcessing batch %d/%d\n", idx, total)

	fetched := o.fetchWave(ctx, &res, batch, summary)
	if res.Fetched == 0 {
		log.Warn().Int("attempted", res.Attempted).Msg("nothing downloaded, skipping upload")
		o.advance(&res, domain.BatchDone)
		res.Elapsed = o.now().Sub(start)
		return res
	}

	o.advance(&res, domain.BatchUploading)
	fmt.Fprintf(o.cfg.Out, "Uploading %d images...\n", res.Fetched)
	uploadStart := o.now()
	uploaded := o.uploader.UploadAll(ctx, o.cfg.StagingDir, fetched)
	res.UploadElapsed = o.now().Sub(uploadStart)

	for _, u := range uploaded {
		if u.Succeeded {
			res.Uploaded++
			continue
		}
		summary.FailedUploads = append(summary.FailedUploads, u.Item)
	}
	summary.TotalSucceeded += res.Uploaded

	o.advance(&res, domain.BatchCleaningUp)
	fmt.Fprintln(o.cfg.Out, "Cleaning up temporary files...")
	o.cleanup(uploaded)

	o.advance(&res, domain.BatchDone)
	res.Elapsed = o.now().Sub(start)

	log.Info().
		Int("attempted", res.Attempted).
		Int("fetched", res.Fetched).
		Int("uploaded", res.Uploaded).
		Dur("elapsed", res.Elapsed).
		Msg("batch done")

	return res
}

// fetchWave runs the download phase shared by batch and bundle runs and
// records failed downloads in the summary.
func (o *Orchestrator) fetchWave(ctx context.Context, res *domain.BatchResult, items []domain.WorkItem, summary *domain.RunSummary) []domain.TransferOutcome {
	o.advance(res, domain.BatchDownloading)
	fmt.Fprintf(o.cfg.Out, "Downloading %d images...\n", len(items))

	fetchStart := o.now()
	fetched := o.verifyStaged(o.fetcher.FetchAll(ctx, o.cfg.StagingDir, items))
	res.FetchElapsed = o.now().Sub(fetchStart)

	for _, f := range fetched {
		if !f.Succeeded {
			fmt.Fprintf(o.cfg.Out, "Error downloading %s: %s\n", f.Item.SourceURL, f.Err)
			summary.FailedDownloads = append(summary.FailedDownloads, f.Item)
			continue
		}
		res.Fetched++
		summary.BytesFetched += f.Bytes
	}
	return fetched
}

// verifyStaged demotes fetches that reported success but left no file behind.
func (o *Orchestrator) verifyStaged(fetched []domain.TransferOutcome) []domain.TransferOutcome {
	for i, f := range fetched {
		if !f.Succeeded {
			continue
		}
		if _, err := os.Stat(fetch.StagedPath(o.cfg.StagingDir, f.Item)); err != nil {
			o.log.Error().
				Err(err).
				Str("file", f.Item.Filename).
				Msg("inconsistent staging: fetched file is missing")
			fetched[i] = domain.Failed(f.Item, fmt.Errorf("%w: %s", domain.ErrStagingInconsistent, f.Item.Filename))
		}
	}
	return fetched
}

// cleanup deletes the staged files of successful uploads. Files of failed
// uploads are kept.
func (o *Orchestrator) cleanup(uploaded []domain.TransferOutcome) {
	for _, u := range uploaded {
		if !u.Succeeded {
			continue
		}
		path := fetch.StagedPath(o.cfg.StagingDir, u.Item)
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			o.log.Warn().Err(err).Str("file", u.Item.Filename).Msg("failed to delete staged file")
			fmt.Fprintf(o.cfg.Out, "Error deleting %s: %v\n", u.Item.Filename, err)
		}
	}
}

func (o *Orchestrator) advance(res *domain.BatchResult, next domain.BatchState) {
	if !res.State.CanTransition(next) {
		o.log.Error().
			Int("batch", res.Index).
			Str("from", string(res.State)).
			Str("to", string(next)).
			Msg("invalid batch state transition")
	}
	res.State = next
}
