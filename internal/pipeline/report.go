package pipeline

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/andresuchdata/imgsync/internal/domain"
)

var separator = strings.Repeat("-", 50)

// WriteSummary prints the end of run report: every failed download and upload
// with enough detail to retry by hand, skipped catalog rows, and the totals.
func WriteSummary(w io.Writer, s *domain.RunSummary) error {
	var b strings.Builder

	b.WriteString("\n=== Failed Operations Summary ===\n")

	if len(s.FailedDownloads) > 0 {
		fmt.Fprintf(&b, "\nFailed Downloads (%d):\n", len(s.FailedDownloads))
		for _, item := range s.FailedDownloads {
			fmt.Fprintf(&b, "URL: %s\n", item.SourceURL)
			fmt.Fprintf(&b, "Intended filename: %s\n", item.Filename)
			b.WriteString(separator + "\n")
		}
	}

	if len(s.FailedUploads) > 0 {
		fmt.Fprintf(&b, "\nFailed Uploads (%d):\n", len(s.FailedUploads))
		for _, item := range s.FailedUploads {
			fmt.Fprintf(&b, "File: %s\n", item.Filename)
			fmt.Fprintf(&b, "Target folder: %s\n", s.TargetFolder)
			b.WriteString(separator + "\n")
		}
	}

	if len(s.RowErrors) > 0 {
		fmt.Fprintf(&b, "\nSkipped Catalog Rows (%d):\n", len(s.RowErrors))
		for _, re := range s.RowErrors {
			fmt.Fprintf(&b, "Row %d (%s): %s\n", re.Row, re.Title, re.Err)
		}
		b.WriteString(separator + "\n")
	}

	b.WriteString("\n")
	if s.RunID != "" {
		fmt.Fprintf(&b, "Run ID: %s\n", s.RunID)
	}
	fmt.Fprintf(&b, "Downloaded: %s in %d batch(es)\n", formatBytes(s.BytesFetched), s.Batches)
	fmt.Fprintf(&b, "Total time for processing: %.2f seconds\n", s.TotalElapsed.Seconds())
	fmt.Fprintf(&b, "Successfully processed %d out of %d images\n", s.TotalSucceeded, s.TotalItems)

	_, err := io.WriteString(w, b.String())
	return err
}

func formatBytes(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.Bytes(uint64(n))
}

func formatDuration(d time.Duration) string {
	return fmt.Sprintf("%.2fs", d.Seconds())
}
