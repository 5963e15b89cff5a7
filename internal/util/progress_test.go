package util

import (
	"testing"
	"time"
)

func TestBuildBatchProgress(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name          string
		total         int
		completed     int
		failed        int
		skipped       int
		now           time.Time
		wantPercent   int32
		wantCompleted string
		wantFailed    string
		wantRemaining *int64
	}{
		{
			name:        "empty batch",
			total:       0,
			now:         start,
			wantPercent: 0,
		},
		{
			name:          "half done",
			total:         4,
			completed:     1,
			failed:        1,
			now:           start.Add(2 * time.Second),
			wantPercent:   50,
			wantCompleted: "1/4",
			wantFailed:    "1/4",
			wantRemaining: ptr(int64(2000)),
		},
		{
			name:          "all done",
			total:         2,
			completed:     2,
			now:           start.Add(time.Second),
			wantPercent:   100,
			wantCompleted: "2/2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BuildBatchProgress(tt.total, tt.completed, tt.failed, tt.skipped, start, tt.now)
			if got.Percentage != tt.wantPercent {
				t.Fatalf("percentage = %d, want %d", got.Percentage, tt.wantPercent)
			}
			if got.Completed != tt.wantCompleted {
				t.Fatalf("completed = %q, want %q", got.Completed, tt.wantCompleted)
			}
			if got.Failed != tt.wantFailed {
				t.Fatalf("failed = %q, want %q", got.Failed, tt.wantFailed)
			}
			switch {
			case tt.wantRemaining == nil && got.TimeRemaining != nil:
				t.Fatalf("unexpected remaining time %d", *got.TimeRemaining)
			case tt.wantRemaining != nil && (got.TimeRemaining == nil || *got.TimeRemaining != *tt.wantRemaining):
				t.Fatalf("remaining = %v, want %d", got.TimeRemaining, *tt.wantRemaining)
			}
		})
	}
}

func ptr[T any](v T) *T { return &v }
