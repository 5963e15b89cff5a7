package graph

import (
	"context"
	"time"

	"github.com/OFFIS-RIT/storygraph/internal/util"
	"github.com/OFFIS-RIT/storygraph/pkg/ai"
	"github.com/OFFIS-RIT/storygraph/pkg/common"
	"github.com/OFFIS-RIT/storygraph/pkg/logger"
)

// Extraction status codes.
const (
	StatusOK      = 0 // every oracle call succeeded
	StatusPartial = 1 // some calls failed
	StatusFailed  = 2 // every call failed
)

// ExtractStats summarises one chunked extraction.
type ExtractStats struct {
	Status    int
	Calls     int
	Failures  int
	Windows   int
	Cancelled bool
	Errors    []*OracleFailure
}

// ChunkExtractor runs the oracle over every (window, sub-schema) pair of a
// text, one call at a time, in document order.
type ChunkExtractor struct {
	oracle     ExtractionOracle
	maxRetries int
	retryDelay time.Duration
	verbose    bool
}

// NewChunkExtractorParams configures a ChunkExtractor.
//
// MaxRetries is the number of attempts per pair; values below 1 mean a single
// attempt.
type NewChunkExtractorParams struct {
	Oracle     ExtractionOracle
	MaxRetries int
	RetryDelay time.Duration
	Verbose    bool
}

func NewChunkExtractor(params NewChunkExtractorParams) *ChunkExtractor {
	maxRetries := params.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 1
	}
	return &ChunkExtractor{
		oracle:     params.Oracle,
		maxRetries: maxRetries,
		retryDelay: params.RetryDelay,
		verbose:    params.Verbose,
	}
}

// Extract splits text into windows and calls the oracle once per window and
// sub-schema. The returned partials are in call order (window-major,
// sub-schema-minor); a failed call contributes an empty partial.
//
// A cancelled ctx stops scheduling new pairs and retries. A call that is
// already running is allowed to finish unless the deadline of ctx expires.
func (e *ChunkExtractor) Extract(
	ctx context.Context,
	text string,
	subschemas []common.Schema,
	chunkSize, chunkOverlap int,
) ([]common.GraphDocument, ExtractStats) {
	windows := SplitText(text, chunkSize, chunkOverlap)
	stats := ExtractStats{Windows: len(windows)}
	partials := make([]common.GraphDocument, 0, len(windows)*len(subschemas))

	logger.Debug("[Extract] split text", "windows", len(windows), "subschemas", len(subschemas))

outer:
	for wi, window := range windows {
		if e.verbose {
			if tokens, err := ai.CountTokens(window); err == nil {
				logger.Debug("[Extract] window", "index", wi+1, "runes", runeLen(window), "tokens", tokens)
			}
		}
		for _, sub := range subschemas {
			if ctx.Err() != nil {
				stats.Cancelled = true
				break outer
			}

			stats.Calls++
			doc, err := util.RetryWithBackoff(ctx, e.maxRetries, e.retryDelay, func(c context.Context) (common.GraphDocument, error) {
				attemptCtx, cancel := attemptContext(c)
				defer cancel()
				return e.oracle.Extract(attemptCtx, window, sub.AllowedNodes(), sub.AllowedRelationships())
			})
			if err != nil {
				failure := &OracleFailure{Window: wi, SubSchema: sub.Name, Err: err}
				stats.Failures++
				stats.Errors = append(stats.Errors, failure)
				logger.Warn("[Extract] oracle call failed", "window", wi+1, "schema", sub.Name, "err", err)
				partials = append(partials, common.GraphDocument{})
				continue
			}
			if e.verbose {
				logger.Debug("[Extract] partial", "window", wi+1, "schema", sub.Name,
					"nodes", len(doc.Nodes), "relationships", len(doc.Relationships))
			}
			partials = append(partials, doc)
		}
	}

	stats.Status = extractionStatus(stats)
	return partials, stats
}

// attemptContext keeps the deadline and values of ctx but not its
// cancellation.
func attemptContext(ctx context.Context) (context.Context, context.CancelFunc) {
	detached := context.WithoutCancel(ctx)
	if deadline, ok := ctx.Deadline(); ok {
		return context.WithDeadline(detached, deadline)
	}
	return detached, func() {}
}

func extractionStatus(s ExtractStats) int {
	succeeded := s.Calls - s.Failures
	if s.Cancelled {
		if succeeded > 0 {
			return StatusPartial
		}
		return StatusFailed
	}
	switch {
	case s.Failures == 0:
		return StatusOK
	case succeeded > 0:
		return StatusPartial
	default:
		return StatusFailed
	}
}
