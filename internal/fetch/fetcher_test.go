package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andresuchdata/imgsync/internal/domain"
)

func newOrigin(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/img/"):
			_, _ = w.Write([]byte("image:" + r.URL.Path))
		case r.URL.Path == "/slow":
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchAll_MixedOutcomes(t *testing.T) {
	srv := newOrigin(t)
	staging := t.TempDir()

	items := []domain.WorkItem{
		{SourceURL: srv.URL + "/img/1.jpg", Filename: "a_1_1.jpg"},
		{SourceURL: srv.URL + "/missing.jpg", Filename: "a_1_2.jpg"},
		{SourceURL: srv.URL + "/img/3.jpg", Filename: "a_1_3.jpg"},
		{SourceURL: "http://127.0.0.1:1/refused.jpg", Filename: "a_1_4.jpg"},
		{SourceURL: srv.URL + "/img/5.jpg", Filename: "a_1_5.jpg"},
	}

	outcomes := New(Options{Timeout: 5 * time.Second}).FetchAll(context.Background(), staging, items)
	require.Len(t, outcomes, len(items))

	succeeded, failed := 0, 0
	for i, out := range outcomes {
		assert.Equal(t, items[i], out.Item, "outcomes keep input order")
		if out.Succeeded {
			succeeded++
			data, err := os.ReadFile(filepath.Join(staging, out.Item.Filename))
			require.NoError(t, err)
			assert.Equal(t, int64(len(data)), out.Bytes)
		} else {
			failed++
			assert.NotEmpty(t, out.Err)
			assert.NoFileExists(t, filepath.Join(staging, out.Item.Filename))
		}
	}
	assert.Equal(t, 3, succeeded)
	assert.Equal(t, 2, failed)
	assert.Equal(t, len(items), succeeded+failed)
	assert.Contains(t, outcomes[1].Err, domain.ErrUnexpectedStatus.Error())

	leftovers, err := filepath.Glob(filepath.Join(staging, "*"+partSuffix))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestFetchAll_TimeoutFailsOnlyThatItem(t *testing.T) {
	srv := newOrigin(t)
	staging := t.TempDir()

	items := []domain.WorkItem{
		{SourceURL: srv.URL + "/slow", Filename: "slow.jpg"},
		{SourceURL: srv.URL + "/img/ok.jpg", Filename: "ok.jpg"},
	}

	outcomes := New(Options{Timeout: 100 * time.Millisecond}).FetchAll(context.Background(), staging, items)

	assert.False(t, outcomes[0].Succeeded)
	assert.True(t, outcomes[1].Succeeded)
	assert.FileExists(t, filepath.Join(staging, "ok.jpg"))
}

func TestFetchAll_LaunchesWholeWave(t *testing.T) {
	const wave = 5
	var (
		inFlight atomic.Int32
		mu       sync.Mutex
		peak     int32
		arrived  = make(chan struct{})
		once     sync.Once
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		mu.Lock()
		if n > peak {
			peak = n
		}
		mu.Unlock()
		if n == wave {
			once.Do(func() { close(arrived) })
		}
		select {
		case <-arrived:
		case <-time.After(2 * time.Second):
		}
		_, _ = w.Write([]byte("x"))
	}))
	defer srv.Close()

	items := make([]domain.WorkItem, wave)
	for i := range items {
		items[i] = domain.WorkItem{SourceURL: srv.URL + "/img.jpg", Filename: string(rune('a'+i)) + ".jpg"}
	}

	outcomes := New(Options{}).FetchAll(context.Background(), t.TempDir(), items)
	for _, out := range outcomes {
		assert.True(t, out.Succeeded)
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, int32(wave), peak)
}

func TestFetchAll_ConcurrencyLimit(t *testing.T) {
	var (
		inFlight atomic.Int32
		peak     atomic.Int32
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		_, _ = w.Write([]byte("x"))
	}))
	defer srv.Close()

	items := make([]domain.WorkItem, 8)
	for i := range items {
		items[i] = domain.WorkItem{SourceURL: srv.URL + "/img.jpg", Filename: string(rune('a'+i)) + ".jpg"}
	}

	outcomes := New(Options{Concurrency: 2}).FetchAll(context.Background(), t.TempDir(), items)
	for _, out := range outcomes {
		assert.True(t, out.Succeeded)
	}
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestFetchAll_WriteFailure(t *testing.T) {
	srv := newOrigin(t)
	staging := t.TempDir()
	// A directory squatting on the destination name makes the final rename fail.
	require.NoError(t, os.Mkdir(filepath.Join(staging, "taken.jpg"), 0o755))

	items := []domain.WorkItem{
		{SourceURL: srv.URL + "/img/1.jpg", Filename: "taken.jpg"},
		{SourceURL: srv.URL + "/img/2.jpg", Filename: "free.jpg"},
	}

	outcomes := New(Options{}).FetchAll(context.Background(), staging, items)

	assert.False(t, outcomes[0].Succeeded)
	assert.True(t, outcomes[1].Succeeded)
	assert.NoFileExists(t, filepath.Join(staging, "taken.jpg"+partSuffix))
}

func TestFetchAll_UserAgent(t *testing.T) {
	var got atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.Store(r.UserAgent())
		_, _ = w.Write([]byte("x"))
	}))
	defer srv.Close()

	items := []domain.WorkItem{{SourceURL: srv.URL + "/a.jpg", Filename: "a.jpg"}}
	outcomes := New(Options{UserAgent: "imgsync-test"}).FetchAll(context.Background(), t.TempDir(), items)

	require.True(t, outcomes[0].Succeeded)
	assert.Equal(t, "imgsync-test", got.Load())
}
