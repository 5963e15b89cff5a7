package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/OFFIS-RIT/storygraph/internal/timing"
	"github.com/OFFIS-RIT/storygraph/internal/util"
	"github.com/OFFIS-RIT/storygraph/pkg/common"
	"github.com/OFFIS-RIT/storygraph/pkg/graph"
	"github.com/OFFIS-RIT/storygraph/pkg/logger"
	"github.com/OFFIS-RIT/storygraph/pkg/source"
)

// Exporter writes a finished chapter graph to an external store.
type Exporter interface {
	Export(ctx context.Context, novelID, chapterID string, doc common.GraphDocument) error
}

// TimingRecorder persists extraction durations.
type TimingRecorder interface {
	AddExtractionTime(ctx context.Context, s timing.Sample) error
}

// Processor turns extract messages into chapter extractions.
type Processor struct {
	Client    *graph.GraphClient
	Source    source.TextSource
	Catalog   *graph.SchemaCatalog
	Scheduler *graph.BatchScheduler

	// Defaults apply when the message leaves a field empty.
	DefaultSchema string
	ChunkSize     int
	ChunkOverlap  int
	UseCache      bool

	// Optional.
	Exporter  Exporter
	Timing    TimingRecorder
	Publisher Publisher
}

const exportAttempts = 3

// ErrChaptersFailed is returned when at least one chapter of a message
// failed, so that the message is retried. Chapters that succeeded are cached
// and cost nothing on the retry.
var ErrChaptersFailed = errors.New("chapters failed")

// ProcessExtractMessage handles one message body from the extract queue.
func (p *Processor) ProcessExtractMessage(ctx context.Context, body []byte) error {
	msg, err := ParseExtractMessage(body)
	if err != nil {
		return err
	}
	_, err = p.Process(ctx, msg)
	return err
}

// Process extracts the chapters named by msg.
func (p *Processor) Process(ctx context.Context, msg *ExtractMessage) (graph.BatchReport, error) {
	configs, err := p.configs(ctx, msg)
	if err != nil {
		return graph.BatchReport{}, err
	}
	logger.Info("[Queue] extracting", "novel", msg.NovelID, "chapters", len(configs), "batch", msg.BatchID)

	report := p.Scheduler.Run(ctx, configs, func(r graph.ChapterResult) {
		p.afterChapter(ctx, msg, configs[r.Index], r)
	})

	completed, failed, skipped := report.Counts()
	logger.Info("[Queue] batch finished",
		"novel", msg.NovelID,
		"completed", completed,
		"failed", failed,
		"skipped", skipped,
	)
	if report.Cancelled {
		return report, context.Cause(ctx)
	}
	if failed > 0 {
		return report, fmt.Errorf("%d of %d: %w", failed, len(configs), ErrChaptersFailed)
	}
	return report, nil
}

func (p *Processor) configs(ctx context.Context, msg *ExtractMessage) ([]common.ExtractionConfig, error) {
	schemaName := msg.Schema
	if schemaName == "" {
		schemaName = p.DefaultSchema
	}
	schema, err := p.Catalog.Resolve(schemaName)
	if err != nil {
		return nil, err
	}

	chapters := msg.Chapters
	if len(chapters) == 0 {
		chapters, err = p.Source.Chapters(ctx, msg.NovelID)
		if err != nil {
			return nil, fmt.Errorf("list chapters of %s: %w", msg.NovelID, err)
		}
	}

	chunkSize, chunkOverlap := p.ChunkSize, p.ChunkOverlap
	if msg.ChunkSize > 0 {
		chunkSize, chunkOverlap = msg.ChunkSize, msg.ChunkOverlap
	}

	configs := make([]common.ExtractionConfig, 0, len(chapters))
	for _, chapter := range chapters {
		text, err := p.Source.Text(ctx, msg.NovelID, chapter)
		if err != nil {
			return nil, fmt.Errorf("load %s/%s: %w", msg.NovelID, chapter, err)
		}
		configs = append(configs, common.ExtractionConfig{
			NovelID:      msg.NovelID,
			ChapterID:    chapter,
			Text:         text,
			ChunkSize:    chunkSize,
			ChunkOverlap: chunkOverlap,
			Schema:       schema,
			UseCache:     p.UseCache && !msg.NoCache,
			Optimize:     msg.Optimize,
		})
	}
	return configs, nil
}

func (p *Processor) afterChapter(ctx context.Context, msg *ExtractMessage, cfg common.ExtractionConfig, r graph.ChapterResult) {
	event := ChapterEvent{
		BatchID:   msg.BatchID,
		NovelID:   r.NovelID,
		ChapterID: r.ChapterID,
		Skipped:   r.Skipped,
	}
	if r.Err != nil {
		event.Error = r.Err.Error()
	}

	if res := r.Result; res != nil {
		event.Status = res.Status
		event.CacheKey = res.CacheKey
		event.FromCache = res.FromCache
		event.Nodes = len(res.Document.Nodes)
		event.Relationships = len(res.Document.Relationships)
		event.DurationMs = res.Duration.Milliseconds()

		if p.Timing != nil && !res.FromCache && !res.Cancelled {
			err := p.Timing.AddExtractionTime(context.WithoutCancel(ctx), timing.Sample{
				NovelID:   r.NovelID,
				ChapterID: r.ChapterID,
				Model:     p.Client.Identity().Model,
				Runes:     len([]rune(cfg.Text)),
				Windows:   res.Stats.Windows,
				Status:    res.Status,
				Duration:  res.Duration,
			})
			if err != nil {
				logger.Warn("[Queue] failed to record extraction time", "chapter", r.ChapterID, "err", err)
			}
		}

		if msg.Export && p.Exporter != nil && !r.Failed() && !res.Cancelled {
			err := util.RetryErrWithContext(ctx, exportAttempts, func(ctx context.Context) error {
				return p.Exporter.Export(ctx, r.NovelID, r.ChapterID, res.Document)
			})
			if err != nil {
				logger.Error("[Queue] export failed", "chapter", r.ChapterID, "err", err)
			}
		}
	}

	if p.Publisher != nil {
		data, err := json.Marshal(event)
		if err == nil {
			err = PublishTopic(p.Publisher, event.Topic(), data)
		}
		if err != nil {
			logger.Warn("[Queue] failed to publish chapter event", "chapter", r.ChapterID, "err", err)
		}
	}
}
