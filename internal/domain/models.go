// internal/domain/models.go
package domain

import "time"

// Listing is one catalog row: a titled listing with its image URLs in catalog order.
type Listing struct {
	Row        int      `json:"row"`
	Title      string   `json:"title"`
	ExternalID string   `json:"external_id"`
	ImageURLs  []string `json:"image_urls"`
}

// WorkItem is a single source URL to destination filename transfer unit.
type WorkItem struct {
	SourceURL string `json:"source_url"`
	Filename  string `json:"filename"`
}

// TransferOutcome records what happened to one WorkItem in a fetch or upload wave.
type TransferOutcome struct {
	Item      WorkItem `json:"item"`
	Succeeded bool     `json:"succeeded"`
	Err       string   `json:"error,omitempty"`
	RemoteID  string   `json:"remote_id,omitempty"`
	Bytes     int64    `json:"bytes,omitempty"`
}

// Failed builds a failed outcome for item from err.
func Failed(item WorkItem, err error) TransferOutcome {
	out := TransferOutcome{Item: item}
	if err != nil {
		out.Err = err.Error()
	}
	return out
}

// RowError describes a catalog row that was skipped.
type RowError struct {
	Row   int    `json:"row"`
	Title string `json:"title"`
	Err   string `json:"error"`
}

// BatchResult holds the per-batch counters. It is recomputed for every batch.
type BatchResult struct {
	Index         int           `json:"index"`
	Attempted     int           `json:"attempted"`
	Fetched       int           `json:"fetched"`
	Uploaded      int           `json:"uploaded"`
	State         BatchState    `json:"state"`
	FetchElapsed  time.Duration `json:"fetch_elapsed"`
	UploadElapsed time.Duration `json:"upload_elapsed"`
	Elapsed       time.Duration `json:"elapsed"`
}

// RunSummary is accumulated across a whole run and printed at the end.
type RunSummary struct {
	RunID           string        `json:"run_id"`
	Mode            string        `json:"mode"`
	TargetFolder    string        `json:"target_folder"`
	TotalItems      int           `json:"total_items"`
	TotalSucceeded  int           `json:"total_succeeded"`
	Batches         int           `json:"batches"`
	BytesFetched    int64         `json:"bytes_fetched"`
	FailedDownloads []WorkItem    `json:"failed_downloads"`
	FailedUploads   []WorkItem    `json:"failed_uploads"`
	RowErrors       []RowError    `json:"row_errors"`
	TotalElapsed    time.Duration `json:"total_elapsed"`
}

// FailedCount is the number of items that did not make it to remote storage.
func (s *RunSummary) FailedCount() int {
	return len(s.FailedDownloads) + len(s.FailedUploads)
}
