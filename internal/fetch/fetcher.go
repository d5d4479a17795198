// Package fetch downloads work items into the staging directory in concurrent waves.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/andresuchdata/imgsync/internal/domain"
	"github.com/andresuchdata/imgsync/pkg/logger"
)

const partSuffix = ".part"

// Options controls a Fetcher.
type Options struct {
	// Timeout bounds each request, including reading the body. Zero disables it.
	Timeout time.Duration
	// Concurrency caps in-flight requests within a wave. Zero launches the whole wave at once.
	Concurrency int
	UserAgent   string
	// Client overrides the HTTP client, mostly for tests.
	Client *http.Client
}

// Fetcher retrieves source URLs into a staging directory.
type Fetcher struct {
	client *http.Client
	opts   Options
	log    zerolog.Logger
}

// New creates a Fetcher.
func New(opts Options) *Fetcher {
	client := opts.Client
	if client == nil {
		client = &http.Client{}
	}
	return &Fetcher{
		client: client,
		opts:   opts,
		log:    logger.Component("fetch"),
	}
}

// StagedPath is where item is written inside stagingDir.
func StagedPath(stagingDir string, item domain.WorkItem) string {
	return filepath.Join(stagingDir, item.Filename)
}

// FetchAll launches one wave of downloads and waits for every item to finish.
// It returns one outcome per item, in input order. A failing item never
// cancels its siblings.
func (f *Fetcher) FetchAll(ctx context.Context, stagingDir string, items []domain.WorkItem) []domain.TransferOutcome {
	outcomes := make([]domain.TransferOutcome, len(items))

	if err := os.MkdirAll(stagingDir, 0o755); err != nil {
		err = fmt.Errorf("failed to create staging dir: %w", err)
		for i, item := range items {
			outcomes[i] = domain.Failed(item, err)
		}
		return outcomes
	}

	// Plain group: errgroup.WithContext would cancel the wave on the first failure.
	var g errgroup.Group
	if f.opts.Concurrency > 0 {
		g.SetLimit(f.opts.Concurrency)
	}

	for i, item := range items {
		g.Go(func() error {
			n, err := f.fetchOne(ctx, stagingDir, item)
			if err != nil {
				f.log.Error().Err(err).Str("url", item.SourceURL).Str("file", item.Filename).Msg("download failed")
				outcomes[i] = domain.Failed(item, err)
				return nil
			}
			outcomes[i] = domain.TransferOutcome{Item: item, Succeeded: true, Bytes: n}
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

func (f *Fetcher) fetchOne(ctx context.Context, stagingDir string, item domain.WorkItem) (int64, error) {
	if f.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.opts.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, item.SourceURL, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	if f.opts.UserAgent != "" {
		req.Header.Set("User-Agent", f.opts.UserAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, fmt.Errorf("%w: %d", domain.ErrUnexpectedStatus, resp.StatusCode)
	}

	dest := StagedPath(stagingDir, item)
	part := dest + partSuffix
	out, err := os.Create(part)
	if err != nil {
		return 0, fmt.Errorf("failed to create local file %s: %w", part, err)
	}

	n, err := io.Copy(out, resp.Body)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(part)
		return 0, fmt.Errorf("failed to write %s: %w", dest, err)
	}

	if err := os.Rename(part, dest); err != nil {
		_ = os.Remove(part)
		return 0, fmt.Errorf("failed to stage %s: %w", dest, err)
	}

	return n, nil
}
