package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"

	"github.com/andresuchdata/imgsync/internal/archive"
	"github.com/andresuchdata/imgsync/internal/config"
	"github.com/andresuchdata/imgsync/internal/domain"
	"github.com/andresuchdata/imgsync/internal/fetch"
	"github.com/andresuchdata/imgsync/internal/pipeline"
	"github.com/andresuchdata/imgsync/internal/upload"
	"github.com/andresuchdata/imgsync/pkg/logger"
)

func runTransfer(c *cli.Context) error {
	cfg := applyFlags(c, configFrom(c))
	ctx := c.Context
	out := c.App.Writer

	mode, ok := domain.ParseMode(cfg.Transfer.Mode)
	if !ok {
		return fmt.Errorf("unknown transfer mode %q (want item, batch or bundle)", cfg.Transfer.Mode)
	}

	downloadDir, err := os.MkdirTemp("", "imgsync-catalog-")
	if err != nil {
		return fmt.Errorf("failed to create catalog dir: %w", err)
	}
	defer os.RemoveAll(downloadDir)

	cat, err := loadCatalog(ctx, cfg, out, downloadDir)
	if err != nil {
		return err
	}
	for _, re := range cat.RowErrors {
		logger.Log.Warn().Int("row", re.Row).Str("title", re.Title).Str("error", re.Err).Msg("catalog row skipped")
	}

	// Nothing to transfer: storage and credentials are never touched.
	if len(cat.Items) == 0 {
		fmt.Fprintln(out, "No images to transfer.")
		return finishRun(cfg, out, &domain.RunSummary{Mode: string(mode)}, cat.RowErrors, nil)
	}

	backend, err := newBackend(ctx, cfg, out)
	if err != nil {
		return fmt.Errorf("failed to initialize %s backend: %w", cfg.Storage.Backend, err)
	}
	folderID, err := resolveFolder(ctx, cfg, backend)
	if err != nil {
		return err
	}

	fetcher := fetch.New(fetch.Options{
		Timeout:     cfg.Transfer.FetchTimeout,
		Concurrency: cfg.Transfer.FetchConcurrency,
		UserAgent:   cfg.Transfer.UserAgent,
	})
	uploader := upload.New(backend, upload.Options{
		FolderID:    folderID,
		Timeout:     cfg.Transfer.UploadTimeout,
		Concurrency: cfg.Transfer.UploadConcurrency,
	})
	orchestrator := pipeline.NewOrchestrator(pipeline.Config{
		Mode:        mode,
		BatchSize:   cfg.Transfer.BatchSize,
		StagingDir:  cfg.Transfer.StagingDir,
		ArchiveDir:  cfg.Transfer.ArchiveDir,
		ArchiveName: cfg.Transfer.ArchiveName,
		Out:         out,
	}, fetcher, uploader, archive.New())

	summary, runErr := orchestrator.Run(ctx, cat.Items)
	if summary == nil {
		return runErr
	}
	return finishRun(cfg, out, summary, cat.RowErrors, runErr)
}

// finishRun prints the summary and applies --fail-on-error. runErr, the
// error the run ended with, takes precedence over item failures.
func finishRun(cfg *config.Config, out io.Writer, summary *domain.RunSummary, rowErrors []domain.RowError, runErr error) error {
	summary.RowErrors = append(summary.RowErrors, rowErrors...)

	if err := pipeline.WriteSummary(out, summary); err != nil {
		return err
	}
	if runErr != nil {
		return runErr
	}

	if cfg.App.FailOnError && (summary.FailedCount() > 0 || len(summary.RowErrors) > 0) {
		return cli.Exit(fmt.Sprintf("%d item(s) failed, %d catalog row(s) skipped", summary.FailedCount(), len(summary.RowErrors)), 2)
	}
	return nil
}

func runPlan(c *cli.Context) error {
	cfg := applyFlags(c, configFrom(c))
	out := c.App.Writer

	downloadDir, err := os.MkdirTemp("", "imgsync-catalog-")
	if err != nil {
		return fmt.Errorf("failed to create catalog dir: %w", err)
	}
	defer os.RemoveAll(downloadDir)

	cat, err := loadCatalog(c.Context, cfg, out, downloadDir)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FILENAME\tSOURCE URL")
	for _, item := range cat.Items {
		fmt.Fprintf(tw, "%s\t%s\n", item.Filename, item.SourceURL)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	for _, re := range cat.RowErrors {
		fmt.Fprintf(out, "skipped row %d (%s): %s\n", re.Row, re.Title, re.Err)
	}
	fmt.Fprintf(out, "\n%d listings, %d images, %d skipped rows\n", len(cat.Listings), len(cat.Items), len(cat.RowErrors))
	return nil
}

func runList(c *cli.Context) error {
	cfg := applyFlags(c, configFrom(c))
	ctx := c.Context
	out := c.App.Writer

	backend, err := newBackend(ctx, cfg, out)
	if err != nil {
		return fmt.Errorf("failed to initialize %s backend: %w", cfg.Storage.Backend, err)
	}
	folderID, err := resolveFolder(ctx, cfg, backend)
	if err != nil && !errors.Is(err, domain.ErrNoTargetFolder) {
		return err
	}

	objects, err := backend.ListObjects(ctx, folderID)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tID\tSIZE\tMODIFIED")
	for _, obj := range objects {
		modified := ""
		if !obj.ModifiedTime.IsZero() {
			modified = humanize.Time(obj.ModifiedTime)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", obj.Name, obj.ID, humanize.Bytes(uint64(max(obj.Size, 0))), modified)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "\n%d object(s)\n", len(objects))
	return nil
}

func runAuth(c *cli.Context) error {
	cfg := applyFlags(c, configFrom(c))

	if _, err := newProvider(cfg, c.App.Writer).HTTPClient(c.Context); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "Authorized. Token stored in %s\n", cfg.Google.TokenFile)
	return nil
}
