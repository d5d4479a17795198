package domain

import "strings"

// BatchState is the lifecycle position of a single batch.
type BatchState string

const (
	BatchPending     BatchState = "PENDING"
	BatchDownloading BatchState = "DOWNLOADING"
	BatchUploading   BatchState = "UPLOADING"
	BatchCleaningUp  BatchState = "CLEANING_UP"
	BatchDone        BatchState = "DONE"
)

var batchTransitions = map[BatchState][]BatchState{
	BatchPending:     {BatchDownloading},
	BatchDownloading: {BatchUploading, BatchDone},
	BatchUploading:   {BatchCleaningUp},
	BatchCleaningUp:  {BatchDone},
}

// CanTransition reports whether a batch may move from s to next.
func (s BatchState) CanTransition(next BatchState) bool {
	for _, allowed := range batchTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Mode selects the batching strategy of a run.
type Mode string

const (
	ModeItem   Mode = "item"
	ModeBatch  Mode = "batch"
	ModeBundle Mode = "bundle"
)

var modeAliases = map[string]Mode{
	"item":     ModeItem,
	"per-item": ModeItem,
	"single":   ModeItem,
	"batch":    ModeBatch,
	"batched":  ModeBatch,
	"bundle":   ModeBundle,
	"zip":      ModeBundle,
}

// ParseMode returns the mode for a given label (case-insensitive).
func ParseMode(label string) (Mode, bool) {
	mode, ok := modeAliases[strings.ToLower(strings.TrimSpace(label))]

	return mode, ok
}
