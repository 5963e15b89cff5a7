// Package timing records how long chapter extractions take and predicts the
// duration of queued work from those records.
package timing

import (
	"context"
	"time"

	"github.com/OFFIS-RIT/storygraph/internal/util"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// sampleWindow is the number of recent samples used for predictions.
const sampleWindow = 200

type dbConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Sample is one finished chapter extraction.
type Sample struct {
	NovelID   string
	ChapterID string
	Model     string
	Runes     int
	Windows   int
	Status    int
	Duration  time.Duration
}

type Recorder struct {
	db dbConn
}

func New(pool *pgxpool.Pool) *Recorder {
	return &Recorder{db: pool}
}

// AddExtractionTime stores a sample. Cache hits should not be recorded.
func (r *Recorder) AddExtractionTime(ctx context.Context, s Sample) error {
	_, err := r.db.Exec(ctx, addTimeSQL,
		util.SanitizePostgresText(s.NovelID),
		util.SanitizePostgresText(s.ChapterID),
		util.SanitizePostgresText(s.Model),
		s.Runes,
		s.Windows,
		s.Status,
		s.Duration.Milliseconds(),
	)
	return err
}

// PredictExtractionTime estimates how long model needs for a chapter of the
// given length. Without samples the prediction is zero.
func (r *Recorder) PredictExtractionTime(ctx context.Context, model string, runes int) (time.Duration, error) {
	var msPerRune float64
	err := r.db.QueryRow(ctx, predictSQL, model, sampleWindow).Scan(&msPerRune)
	if err != nil {
		return 0, err
	}
	return Estimate(msPerRune, runes), nil
}

// Estimate scales a per-rune rate to a chapter length.
func Estimate(msPerRune float64, runes int) time.Duration {
	if msPerRune <= 0 || runes <= 0 {
		return 0
	}
	return time.Duration(msPerRune * float64(runes) * float64(time.Millisecond))
}

const addTimeSQL = `
INSERT INTO extraction_times (novel_id, chapter_id, model, runes, windows, status, duration_ms)
VALUES ($1, $2, $3, $4, $5, $6, $7);
`

const predictSQL = `
SELECT COALESCE(SUM(duration_ms)::float8 / NULLIF(SUM(runes), 0), 0)
FROM (
    SELECT duration_ms, runes
    FROM extraction_times
    WHERE model = $1 AND status < 2
    ORDER BY created_at DESC
    LIMIT $2
) recent;
`
