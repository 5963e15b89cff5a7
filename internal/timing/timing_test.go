package timing

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type fakeDB struct {
	execArgs []any
	rate     float64
}

type rateRow float64

func (r rateRow) Scan(dest ...any) error {
	*dest[0].(*float64) = float64(r)
	return nil
}

func (f *fakeDB) Exec(_ context.Context, _ string, args ...any) (pgconn.CommandTag, error) {
	f.execArgs = args
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (f *fakeDB) QueryRow(context.Context, string, ...any) pgx.Row {
	return rateRow(f.rate)
}

func TestEstimate(t *testing.T) {
	tests := []struct {
		rate  float64
		runes int
		want  time.Duration
	}{
		{0.5, 1000, 500 * time.Millisecond},
		{2, 3000, 6 * time.Second},
		{0, 1000, 0},
		{1, 0, 0},
	}
	for _, tc := range tests {
		if got := Estimate(tc.rate, tc.runes); got != tc.want {
			t.Errorf("Estimate(%v, %d) = %v, want %v", tc.rate, tc.runes, got, tc.want)
		}
	}
}

func TestRecorder(t *testing.T) {
	db := &fakeDB{rate: 1.5}
	r := &Recorder{db: db}

	err := r.AddExtractionTime(context.Background(), Sample{
		NovelID:   "moby\x00",
		ChapterID: "Chapter 1",
		Model:     "qwen3",
		Runes:     4000,
		Windows:   3,
		Duration:  12 * time.Second,
	})
	if err != nil {
		t.Fatal(err)
	}
	if db.execArgs[0] != "moby" || db.execArgs[6] != int64(12000) {
		t.Fatalf("args = %v", db.execArgs)
	}

	d, err := r.PredictExtractionTime(context.Background(), "qwen3", 2000)
	if err != nil {
		t.Fatal(err)
	}
	if d != 3*time.Second {
		t.Fatalf("prediction = %v", d)
	}
}
