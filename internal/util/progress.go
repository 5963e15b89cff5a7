package util

import (
	"fmt"
	"time"
)

// BatchProgress is a snapshot of a running chapter batch, suitable for logging
// and for the status endpoint.
type BatchProgress struct {
	Completed     string `json:"completed"`
	Failed        string `json:"failed,omitempty"`
	Skipped       string `json:"skipped,omitempty"`
	Percentage    int32  `json:"percentage"`
	Elapsed       int64  `json:"elapsed_ms"`
	TimeRemaining *int64 `json:"time_remaining_ms,omitempty"`
}

// BuildBatchProgress derives a progress snapshot from chapter counts. The
// remaining time is extrapolated from the average duration of finished
// chapters and is only reported once at least one chapter has finished.
func BuildBatchProgress(total, completed, failed, skipped int, started time.Time, now time.Time) BatchProgress {
	if total <= 0 {
		return BatchProgress{}
	}

	done := completed + failed + skipped
	elapsed := now.Sub(started).Milliseconds()
	p := BatchProgress{
		Completed:  fmt.Sprintf("%d/%d", completed, total),
		Percentage: int32(min(100, done*100/total)),
		Elapsed:    elapsed,
	}
	if failed > 0 {
		p.Failed = fmt.Sprintf("%d/%d", failed, total)
	}
	if skipped > 0 {
		p.Skipped = fmt.Sprintf("%d/%d", skipped, total)
	}

	finished := completed + failed
	if finished > 0 && done < total {
		remaining := elapsed / int64(finished) * int64(total-done)
		p.TimeRemaining = &remaining
	}
	return p
}
