package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andresuchdata/imgsync/internal/archive"
	"github.com/andresuchdata/imgsync/internal/domain"
	"github.com/andresuchdata/imgsync/internal/fetch"
	"github.com/andresuchdata/imgsync/internal/storage"
	"github.com/andresuchdata/imgsync/internal/upload"
)

// stubFetcher stages a file for every item whose URL is not listed in fail.
type stubFetcher struct {
	mu      sync.Mutex
	fail    map[string]bool
	noWrite map[string]bool
	waves   []int
	onFetch func()
}

func (f *stubFetcher) FetchAll(_ context.Context, stagingDir string, items []domain.WorkItem) []domain.TransferOutcome {
	f.mu.Lock()
	f.waves = append(f.waves, len(items))
	f.mu.Unlock()
	if f.onFetch != nil {
		f.onFetch()
	}

	_ = os.MkdirAll(stagingDir, 0o755)
	out := make([]domain.TransferOutcome, len(items))
	for i, item := range items {
		switch {
		case f.fail[item.SourceURL]:
			out[i] = domain.Failed(item, fmt.Errorf("%w: 404", domain.ErrUnexpectedStatus))
		case f.noWrite[item.SourceURL]:
			out[i] = domain.TransferOutcome{Item: item, Succeeded: true, Bytes: 1}
		default:
			_ = os.WriteFile(fetch.StagedPath(stagingDir, item), []byte(item.Filename), 0o644)
			out[i] = domain.TransferOutcome{Item: item, Succeeded: true, Bytes: int64(len(item.Filename))}
		}
	}
	return out
}

// stubUploader fails the files listed in fail and records bundles.
type stubUploader struct {
	mu            sync.Mutex
	fail          map[string]bool
	failBundle    bool
	waves         int
	bundleCalls   int
	bundleEntries []string
}

func (u *stubUploader) UploadAll(_ context.Context, _ string, fetched []domain.TransferOutcome) []domain.TransferOutcome {
	u.mu.Lock()
	u.waves++
	u.mu.Unlock()

	var out []domain.TransferOutcome
	for _, f := range fetched {
		if !f.Succeeded {
			continue
		}
		if u.fail[f.Item.Filename] {
			out = append(out, domain.Failed(f.Item, errors.New("upload rejected")))
			continue
		}
		out = append(out, domain.TransferOutcome{Item: f.Item, Succeeded: true, RemoteID: "id-" + f.Item.Filename})
	}
	return out
}

func (u *stubUploader) UploadBundle(_ context.Context, archivePath string) (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.bundleCalls++

	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return "", err
	}
	defer zr.Close()
	for _, f := range zr.File {
		u.bundleEntries = append(u.bundleEntries, f.Name)
	}

	if u.failBundle {
		return "", errors.New("bundle rejected")
	}
	return "bundle-id", nil
}

func (u *stubUploader) FolderID() string { return "folder-1" }

func makeItems(n int) []domain.WorkItem {
	items := make([]domain.WorkItem, n)
	for i := range items {
		items[i] = domain.WorkItem{
			SourceURL: fmt.Sprintf("http://origin/img/%d.jpg", i+1),
			Filename:  fmt.Sprintf("Cozy_Flat_99_%d.jpg", i+1),
		}
	}
	return items
}

func newTestOrchestrator(t *testing.T, mode domain.Mode, size int, f Fetcher, u Uploader) (*Orchestrator, Config, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	cfg := Config{
		Mode:       mode,
		BatchSize:  size,
		StagingDir: filepath.Join(t.TempDir(), "temp_images"),
		ArchiveDir: t.TempDir(),
		Out:        &out,
	}
	return NewOrchestrator(cfg, f, u, archive.New()), cfg, &out
}

func TestBatches(t *testing.T) {
	tests := []struct {
		name  string
		total int
		size  int
		want  []int
	}{
		{name: "uneven tail", total: 250, size: 100, want: []int{100, 100, 50}},
		{name: "exact", total: 200, size: 100, want: []int{100, 100}},
		{name: "per item", total: 3, size: 1, want: []int{1, 1, 1}},
		{name: "larger than total", total: 7, size: 100, want: []int{7}},
		{name: "non-positive means one batch", total: 7, size: 0, want: []int{7}},
		{name: "empty", total: 0, size: 10, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items := makeItems(tt.total)
			batches := Batches(items, tt.size)

			var sizes []int
			var flat []domain.WorkItem
			for _, b := range batches {
				sizes = append(sizes, len(b))
				flat = append(flat, b...)
			}
			assert.Equal(t, tt.want, sizes)
			if tt.total > 0 {
				assert.Equal(t, items, flat, "batches are contiguous and ordered")
			}
		})
	}
}

func TestRun_BatchMode_250Items(t *testing.T) {
	f := &stubFetcher{}
	u := &stubUploader{}
	o, cfg, out := newTestOrchestrator(t, domain.ModeBatch, 100, f, u)

	summary, err := o.Run(context.Background(), makeItems(250))
	require.NoError(t, err)

	assert.Equal(t, []int{100, 100, 50}, f.waves)
	assert.Equal(t, 3, u.waves)
	assert.Equal(t, 3, summary.Batches)
	assert.Equal(t, 250, summary.TotalItems)
	assert.Equal(t, 250, summary.TotalSucceeded)
	assert.Empty(t, summary.FailedDownloads)
	assert.Empty(t, summary.FailedUploads)
	assert.Equal(t, "folder-1", summary.TargetFolder)
	assert.NotEmpty(t, summary.RunID)

	assert.Contains(t, out.String(), "Processing batch 3/3")
	assert.Contains(t, out.String(), "Progress: 250/250 images processed")

	_, err = os.Stat(cfg.StagingDir)
	assert.True(t, os.IsNotExist(err), "empty staging dir is removed")
}

func TestRun_ItemMode(t *testing.T) {
	f := &stubFetcher{}
	o, _, _ := newTestOrchestrator(t, domain.ModeItem, 100, f, &stubUploader{})

	summary, err := o.Run(context.Background(), makeItems(4))
	require.NoError(t, err)

	assert.Equal(t, []int{1, 1, 1, 1}, f.waves)
	assert.Equal(t, 4, summary.Batches)
	assert.Equal(t, 4, summary.TotalSucceeded)
}

func TestRun_OneFailedDownload(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/img/3.jpg" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("image bytes for " + r.URL.Path))
	}))
	defer origin.Close()

	items := makeItems(5)
	for i := range items {
		items[i].SourceURL = origin.URL + fmt.Sprintf("/img/%d.jpg", i+1)
	}

	remote := t.TempDir()
	store, err := storage.NewLocalStorage(remote)
	require.NoError(t, err)

	uploader := upload.New(store, upload.Options{FolderID: "folder-1", Timeout: 5 * time.Second})
	fetcher := fetch.New(fetch.Options{Timeout: 5 * time.Second})
	o, cfg, out := newTestOrchestrator(t, domain.ModeBatch, 100, fetcher, uploader)

	summary, err := o.Run(context.Background(), items)
	require.NoError(t, err)

	assert.Equal(t, 4, summary.TotalSucceeded)
	require.Len(t, summary.FailedDownloads, 1)
	assert.Equal(t, items[2], summary.FailedDownloads[0])
	assert.Empty(t, summary.FailedUploads)

	uploaded, err := store.ListObjects(context.Background(), "folder-1")
	require.NoError(t, err)
	assert.Len(t, uploaded, 4)

	_, err = os.Stat(filepath.Join(cfg.StagingDir, items[2].Filename))
	assert.True(t, os.IsNotExist(err), "failed download leaves no staged file")
	assert.Contains(t, out.String(), "Error downloading "+items[2].SourceURL)
	assert.Contains(t, out.String(), "Progress: 4/5 images processed")
}

func TestRun_CleanupKeepsFailedUploads(t *testing.T) {
	items := makeItems(4)
	u := &stubUploader{fail: map[string]bool{items[1].Filename: true}}
	o, cfg, out := newTestOrchestrator(t, domain.ModeBatch, 2, &stubFetcher{}, u)

	summary, err := o.Run(context.Background(), items)
	require.NoError(t, err)

	assert.Equal(t, 3, summary.TotalSucceeded)
	require.Len(t, summary.FailedUploads, 1)
	assert.Equal(t, items[1], summary.FailedUploads[0])

	entries, err := os.ReadDir(cfg.StagingDir)
	require.NoError(t, err, "staging dir survives while it still holds files")
	require.Len(t, entries, 1)
	assert.Equal(t, items[1].Filename, entries[0].Name())
	assert.Contains(t, out.String(), "Error removing temporary directory")
}

func TestRunBatch_NothingFetched(t *testing.T) {
	items := makeItems(3)
	f := &stubFetcher{fail: map[string]bool{}}
	for _, it := range items {
		f.fail[it.SourceURL] = true
	}
	u := &stubUploader{}
	o, _, _ := newTestOrchestrator(t, domain.ModeBatch, 10, f, u)

	summary := &domain.RunSummary{}
	res := o.RunBatch(context.Background(), 1, 1, items, summary)

	assert.Equal(t, domain.BatchDone, res.State)
	assert.Equal(t, 3, res.Attempted)
	assert.Zero(t, res.Fetched)
	assert.Zero(t, u.waves, "upload phase is skipped")
	assert.Len(t, summary.FailedDownloads, 3)
}

func TestRunBatch_StagingInconsistency(t *testing.T) {
	items := makeItems(2)
	f := &stubFetcher{noWrite: map[string]bool{items[0].SourceURL: true}}
	o, _, _ := newTestOrchestrator(t, domain.ModeBatch, 10, f, &stubUploader{})

	summary := &domain.RunSummary{}
	res := o.RunBatch(context.Background(), 1, 1, items, summary)

	assert.Equal(t, domain.BatchDone, res.State)
	assert.Equal(t, 1, res.Fetched)
	assert.Equal(t, 1, res.Uploaded)
	require.Len(t, summary.FailedDownloads, 1)
	assert.Equal(t, items[0], summary.FailedDownloads[0])
}

func TestRun_BundleMode(t *testing.T) {
	u := &stubUploader{}
	o, cfg, _ := newTestOrchestrator(t, domain.ModeBundle, 0, &stubFetcher{}, u)

	summary, err := o.Run(context.Background(), makeItems(10))
	require.NoError(t, err)

	assert.Equal(t, 1, u.bundleCalls)
	assert.Zero(t, u.waves, "bundle mode never uploads files one by one")
	assert.Len(t, u.bundleEntries, 10)
	assert.Equal(t, 10, summary.TotalSucceeded)
	assert.Equal(t, 1, summary.Batches)

	archives, err := os.ReadDir(cfg.ArchiveDir)
	require.NoError(t, err)
	assert.Empty(t, archives, "archive is removed after upload")

	_, err = os.Stat(cfg.StagingDir)
	assert.True(t, os.IsNotExist(err))
}

func TestRun_BundleSkipsLeftoverStagingFiles(t *testing.T) {
	u := &stubUploader{}
	o, cfg, _ := newTestOrchestrator(t, domain.ModeBundle, 0, &stubFetcher{}, u)

	leftover := filepath.Join(cfg.StagingDir, "Old_Listing_7_1.jpg")
	require.NoError(t, os.MkdirAll(cfg.StagingDir, 0o755))
	require.NoError(t, os.WriteFile(leftover, []byte("from an earlier run"), 0o644))

	summary, err := o.Run(context.Background(), makeItems(10))
	require.NoError(t, err)

	assert.Len(t, u.bundleEntries, 10)
	assert.NotContains(t, u.bundleEntries, "Old_Listing_7_1.jpg")
	assert.Equal(t, 10, summary.TotalSucceeded)

	_, err = os.Stat(leftover)
	assert.NoError(t, err, "files from earlier runs are left alone")
}

func TestRun_BundleUploadFailure(t *testing.T) {
	items := makeItems(3)
	f := &stubFetcher{fail: map[string]bool{items[0].SourceURL: true}}
	u := &stubUploader{failBundle: true}
	o, cfg, _ := newTestOrchestrator(t, domain.ModeBundle, 0, f, u)

	summary, err := o.Run(context.Background(), items)
	require.NoError(t, err)

	assert.Zero(t, summary.TotalSucceeded)
	assert.Equal(t, []domain.WorkItem{items[0]}, summary.FailedDownloads)
	assert.Equal(t, []domain.WorkItem{items[1], items[2]}, summary.FailedUploads)

	entries, err := os.ReadDir(cfg.StagingDir)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "bundled files are kept when the upload fails")

	archives, err := os.ReadDir(cfg.ArchiveDir)
	require.NoError(t, err)
	assert.Empty(t, archives)
}

func TestRun_CancelStopsBeforeNextBatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := &stubFetcher{onFetch: cancel}
	o, _, _ := newTestOrchestrator(t, domain.ModeBatch, 2, f, &stubUploader{})

	summary, err := o.Run(ctx, makeItems(6))
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, summary, "summary is still produced")

	assert.Equal(t, []int{2}, f.waves)
	assert.Equal(t, 1, summary.Batches)
	assert.Equal(t, 6, summary.TotalItems)
}

func TestRun_Validation(t *testing.T) {
	_, err := NewOrchestrator(Config{}, nil, &stubUploader{}, nil).Run(context.Background(), nil)
	assert.Error(t, err)

	_, err = NewOrchestrator(Config{Mode: "sideways"}, &stubFetcher{}, &stubUploader{}, nil).Run(context.Background(), nil)
	assert.ErrorContains(t, err, "unknown mode")

	_, err = NewOrchestrator(Config{Mode: domain.ModeBundle}, &stubFetcher{}, &stubUploader{}, nil).Run(context.Background(), nil)
	assert.ErrorContains(t, err, "packager")
}

func TestRun_Empty(t *testing.T) {
	f := &stubFetcher{}
	o, _, _ := newTestOrchestrator(t, domain.ModeBatch, 10, f, &stubUploader{})

	summary, err := o.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, summary.Batches)
	assert.Empty(t, f.waves)
}

func TestWriteSummary(t *testing.T) {
	s := &domain.RunSummary{
		RunID:           "run-1",
		TargetFolder:    "folder-1",
		TotalItems:      5,
		TotalSucceeded:  3,
		Batches:         1,
		BytesFetched:    2048,
		TotalElapsed:    1500 * time.Millisecond,
		FailedDownloads: []domain.WorkItem{{SourceURL: "http://origin/3.jpg", Filename: "Cozy_Flat_99_3.jpg"}},
		FailedUploads:   []domain.WorkItem{{SourceURL: "http://origin/4.jpg", Filename: "Cozy_Flat_99_4.jpg"}},
		RowErrors:       []domain.RowError{{Row: 7, Title: "Broken", Err: "malformed image url list"}},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteSummary(&buf, s))
	got := buf.String()

	for _, want := range []string{
		"Failed Downloads (1):",
		"URL: http://origin/3.jpg",
		"Intended filename: Cozy_Flat_99_3.jpg",
		"Failed Uploads (1):",
		"File: Cozy_Flat_99_4.jpg",
		"Target folder: folder-1",
		"Row 7 (Broken): malformed image url list",
		"Downloaded: 2.0 kB in 1 batch(es)",
		"Total time for processing: 1.50 seconds",
		"Successfully processed 3 out of 5 images",
	} {
		assert.Contains(t, got, want)
	}
	assert.Equal(t, 1, strings.Count(got, "=== Failed Operations Summary ==="))
}
