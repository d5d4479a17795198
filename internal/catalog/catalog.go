// Package catalog turns a listings catalog (CSV or XLSX) into the ordered list of
// image transfer work items.
package catalog

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/andresuchdata/imgsync/internal/domain"
)

const (
	ColumnTitle = "title"
	ColumnURL   = "url"

	DefaultImageColumn = "image2D_url"
)

// Options controls how catalog rows are interpreted.
type Options struct {
	// ImageColumn names the column holding the serialized image URL list.
	ImageColumn string
	// Strict fails the whole read on the first bad row instead of skipping it.
	Strict bool
}

func (o Options) imageColumn() string {
	if o.ImageColumn == "" {
		return DefaultImageColumn
	}
	return o.ImageColumn
}

// Catalog is the parsed result of one catalog file.
type Catalog struct {
	Listings  []domain.Listing
	Items     []domain.WorkItem
	RowErrors []domain.RowError
}

// ReadFile opens path and parses it according to its extension (.csv or .xlsx).
func ReadFile(ctx context.Context, path string, opts Options) (*Catalog, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return ReadXLSX(ctx, path, opts)
	default:
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open catalog %s: %w", path, err)
		}
		defer f.Close()

		return Read(ctx, f, opts)
	}
}

// Read parses a CSV catalog.
func Read(ctx context.Context, r io.Reader, opts Options) (*Catalog, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	return parseRecords(ctx, header, func() ([]string, error) {
		record, err := reader.Read()
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to read CSV record: %w", err)
		}
		return record, err
	}, opts)
}

// parseRecords consumes rows from next until io.EOF and builds the Catalog.
func parseRecords(ctx context.Context, header []string, next func() ([]string, error), opts Options) (*Catalog, error) {
	colMap := make(map[string]int)
	for i, col := range header {
		col = strings.TrimSpace(strings.TrimPrefix(col, "\ufeff"))
		colMap[col] = i
	}

	requiredCols := []string{ColumnTitle, ColumnURL, opts.imageColumn()}
	for _, col := range requiredCols {
		if _, ok := colMap[col]; !ok {
			return nil, fmt.Errorf("%w: %s", domain.ErrMissingColumn, col)
		}
	}

	b := newBuilder()
	row := 0
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		record, err := next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		row++
		if isBlank(record) {
			continue
		}

		getValue := func(colName string) string {
			if idx, ok := colMap[colName]; ok && idx < len(record) {
				return strings.TrimSpace(record[idx])
			}
			return ""
		}

		listing, err := parseListing(row, getValue(ColumnTitle), getValue(ColumnURL), getValue(opts.imageColumn()))
		if err == nil {
			err = b.add(listing)
		}
		if err != nil {
			if opts.Strict {
				return nil, fmt.Errorf("row %d: %w", row, err)
			}
			b.skip(row, getValue(ColumnTitle), err)
		}
	}

	return b.catalog(), nil
}

func parseListing(row int, title, detailURL, rawImages string) (domain.Listing, error) {
	if title == "" {
		return domain.Listing{}, fmt.Errorf("%w: %s", domain.ErrMissingField, ColumnTitle)
	}
	if detailURL == "" {
		return domain.Listing{}, fmt.Errorf("%w: %s", domain.ErrMissingField, ColumnURL)
	}

	urls, err := ParseImageList(rawImages)
	if err != nil {
		return domain.Listing{}, err
	}

	return domain.Listing{
		Row:        row,
		Title:      title,
		ExternalID: ExternalID(detailURL),
		ImageURLs:  urls,
	}, nil
}

func isBlank(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// builder accumulates listings while enforcing filename uniqueness across the run.
type builder struct {
	seen map[string]int
	out  Catalog
}

func newBuilder() *builder {
	return &builder{seen: make(map[string]int)}
}

func (b *builder) add(listing domain.Listing) error {
	items := Expand(listing)
	for _, item := range items {
		if prev, ok := b.seen[item.Filename]; ok {
			return fmt.Errorf("%w: %s (first seen in row %d)", domain.ErrDuplicateFilename, item.Filename, prev)
		}
	}
	for _, item := range items {
		b.seen[item.Filename] = listing.Row
	}

	b.out.Listings = append(b.out.Listings, listing)
	b.out.Items = append(b.out.Items, items...)
	return nil
}

func (b *builder) skip(row int, title string, err error) {
	b.out.RowErrors = append(b.out.RowErrors, domain.RowError{
		Row:   row,
		Title: title,
		Err:   err.Error(),
	})
}

func (b *builder) catalog() *Catalog {
	out := b.out
	return &out
}
