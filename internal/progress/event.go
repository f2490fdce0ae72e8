// Package progress defines the event structures emitted by the pipelines.
package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageRunStart     Stage = "RUN_START"
	StageRunDone      Stage = "RUN_DONE"
	StageRunError     Stage = "RUN_ERROR"
	StagePageFetched  Stage = "PAGE_FETCHED"
	StageItemSaved    Stage = "ITEM_SAVED"
	StageItemSkipped  Stage = "ITEM_SKIPPED"
	StageItemFailed   Stage = "ITEM_FAILED"
	StageAssetSaved   Stage = "ASSET_SAVED"
	StageAssetFailed  Stage = "ASSET_FAILED"
	StageClassifyDone Stage = "CLASSIFY_DONE"
	StageClassifySkip Stage = "CLASSIFY_SKIP"
	StageClassifyFail Stage = "CLASSIFY_FAIL"
)

// Event captures a single milestone of crawl or classification progress.
type Event struct {
	// RunID uniquely identifies a pipeline run.
	RunID uuid.UUID
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which lifecycle milestone occurred.
	Stage Stage
	// ItemID optionally scopes the event to one archived item.
	ItemID string
	// URL is the optional remote URL; it must not contain credentials.
	URL string
	// Count carries a stage-specific tally (items on a page, assets saved).
	Count int
	// Dur captures execution latency for fetches and whole runs.
	Dur time.Duration
	// Note lets emitters attach low-volume human-readable context.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == uuid.Nil {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone, StageRunError, StagePageFetched:
	case StageItemSaved, StageItemSkipped, StageItemFailed,
		StageClassifyDone, StageClassifySkip, StageClassifyFail:
		if e.ItemID == "" {
			return fmt.Errorf("%s requires item id", e.Stage)
		}
	case StageAssetSaved, StageAssetFailed:
		if e.ItemID == "" {
			return fmt.Errorf("%s requires item id", e.Stage)
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}
