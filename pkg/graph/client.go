package graph

import (
	"context"
	"time"

	"github.com/OFFIS-RIT/storygraph/pkg/cache"
	"github.com/OFFIS-RIT/storygraph/pkg/common"
	"github.com/OFFIS-RIT/storygraph/pkg/logger"
)

// GraphClient runs the extraction pipeline for single chapters: schema
// planning, chunked extraction, merge, cache and optional hub optimization.
//
// A GraphClient should be created using NewGraphClient.
type GraphClient struct {
	oracle         ExtractionOracle
	cache          *cache.ContentCache
	generator      *SchemaGenerator
	optimizer      *HubOptimizer
	splitThreshold int
	maxRetries     int
	retryDelay     time.Duration
}

// NewGraphClientParams defines the configuration parameters for creating
// a new GraphClient.
//
// Oracle is required. Cache may be nil, in which case nothing is read or
// written. Generator resolves "auto" schemas; without one they fall back to
// the minimal schema. Optimizer defaults to positional grouping.
type NewGraphClientParams struct {
	Oracle         ExtractionOracle
	Cache          *cache.ContentCache
	Generator      *SchemaGenerator
	Optimizer      *HubOptimizer
	SplitThreshold int
	MaxRetries     int
	RetryDelay     time.Duration
}

// NewGraphClient creates and returns a new GraphClient configured with
// the provided parameters.
//
// Example:
//
//	oracle, err := graph.NewOracle(graph.NewOracleParams{Adapter: "ollama", Model: "qwen3:30b"})
//	if err != nil {
//		log.Fatal(err)
//	}
//	client, err := graph.NewGraphClient(graph.NewGraphClientParams{Oracle: oracle})
func NewGraphClient(params NewGraphClientParams) (*GraphClient, error) {
	if params.Oracle == nil {
		return nil, &ConfigurationError{Field: "Oracle", Reason: "an extraction oracle is required"}
	}
	threshold := params.SplitThreshold
	if threshold <= 0 {
		threshold = DefaultSplitThreshold
	}
	optimizer := params.Optimizer
	if optimizer == nil {
		optimizer = NewHubOptimizer(GroupPositional)
	}
	return &GraphClient{
		oracle:         params.Oracle,
		cache:          params.Cache,
		generator:      params.Generator,
		optimizer:      optimizer,
		splitThreshold: threshold,
		maxRetries:     params.MaxRetries,
		retryDelay:     params.RetryDelay,
	}, nil
}

// ExtractResult is the outcome of one chapter extraction.
type ExtractResult struct {
	Document  common.GraphDocument
	Duration  time.Duration
	Status    int
	Partials  []common.GraphDocument
	CacheKey  string
	Cancelled bool
	FromCache bool

	// Schema is the schema actually used, after "auto" resolution.
	Schema common.Schema
	Stats  ExtractStats
	Merge  MergeStats
}

// Identity returns the identity of the configured oracle.
func (g *GraphClient) Identity() common.OracleIdentity {
	return g.oracle.Identity()
}

// Cache returns the configured cache, which may be nil.
func (g *GraphClient) Cache() *cache.ContentCache {
	return g.cache
}

// CacheKey resolves the schema of config and returns its cache key together
// with the config as it will be extracted.
func (g *GraphClient) CacheKey(ctx context.Context, config common.ExtractionConfig) (string, common.ExtractionConfig) {
	config = g.prepare(ctx, config)
	return cache.Key(config), config
}

func (g *GraphClient) prepare(ctx context.Context, config common.ExtractionConfig) common.ExtractionConfig {
	if config.Oracle == (common.OracleIdentity{}) {
		config.Oracle = g.oracle.Identity()
	}
	if config.Schema.Name == "" && config.Schema.Mode == "" {
		config.Schema = MinimalSchema()
	}
	if config.Schema.Auto() {
		if g.generator != nil {
			config.Schema = g.generator.Generate(ctx, config.Text, config.Oracle)
		} else {
			logger.Warn("[Extract] no schema generator configured, using minimal schema")
			config.Schema = MinimalSchema()
		}
	}
	return config
}

// Extract runs the pipeline for one chapter.
//
// With UseCache set, a cached graph is returned without calling the oracle.
// Otherwise the text is extracted window by window and merged, and the merged
// graph is cached unless every call failed or ctx was cancelled. Optimize, if
// set, is applied to the returned document only; the cache always holds the
// merged graph.
//
// Cancellation is not an error: the result carries whatever was extracted
// before ctx was cancelled, with Cancelled set.
func (g *GraphClient) Extract(ctx context.Context, config common.ExtractionConfig) (*ExtractResult, error) {
	if config.ChunkSize <= 0 {
		return nil, &ConfigurationError{Field: "ChunkSize", Reason: "must be positive"}
	}
	if config.ChunkOverlap < 0 || config.ChunkOverlap >= config.ChunkSize {
		return nil, &ConfigurationError{Field: "ChunkOverlap", Reason: "must be in [0, ChunkSize)"}
	}

	start := time.Now()
	config = g.prepare(ctx, config)
	key := cache.Key(config)
	res := &ExtractResult{CacheKey: key, Schema: config.Schema}

	if config.UseCache && g.cache != nil {
		doc, ok, err := g.cache.Get(ctx, key)
		if err != nil {
			logger.Warn("[Extract] cache read failed, extracting", "key", key, "err", err)
		}
		if ok {
			logger.Info("[Extract] cache hit", "novel", config.NovelID, "chapter", config.ChapterID, "key", key)
			res.Document = g.finish(ctx, *doc, config)
			res.FromCache = true
			res.Status = StatusOK
			res.Duration = time.Since(start)
			return res, nil
		}
	}

	extractor := NewChunkExtractor(NewChunkExtractorParams{
		Oracle:     g.oracle,
		MaxRetries: g.maxRetries,
		RetryDelay: g.retryDelay,
		Verbose:    config.Verbose,
	})
	subschemas := PlanSchema(config.Schema, g.splitThreshold)
	partials, stats := extractor.Extract(ctx, config.Text, subschemas, config.ChunkSize, config.ChunkOverlap)
	merged, mergeStats := MergeGraphsWithStats(partials)

	res.Partials = partials
	res.Stats = stats
	res.Merge = mergeStats
	res.Status = stats.Status
	res.Cancelled = stats.Cancelled

	if config.UseCache && g.cache != nil && !stats.Cancelled && stats.Status != StatusFailed {
		meta := cache.NewMetadata(config, time.Now())
		if err := g.cache.Put(ctx, key, merged, meta); err != nil {
			logger.Error("[Extract] cache write failed", "key", key, "err", err)
		}
	}

	res.Document = g.finish(ctx, merged, config)
	res.Duration = time.Since(start)

	logger.Info("[Extract] chapter done",
		"novel", config.NovelID,
		"chapter", config.ChapterID,
		"status", res.Status,
		"windows", stats.Windows,
		"calls", stats.Calls,
		"failures", stats.Failures,
		"nodes", len(res.Document.Nodes),
		"relationships", len(res.Document.Relationships),
		"cancelled", res.Cancelled,
		"duration", res.Duration,
	)
	return res, nil
}

func (g *GraphClient) finish(ctx context.Context, doc common.GraphDocument, config common.ExtractionConfig) common.GraphDocument {
	if config.Optimize == nil {
		return doc
	}
	return g.optimizer.Optimize(ctx, doc, *config.Optimize)
}

// Optimize reshapes doc with the configured optimizer.
func (g *GraphClient) Optimize(ctx context.Context, doc common.GraphDocument, params common.OptimizeParams) common.GraphDocument {
	return g.optimizer.Optimize(ctx, doc, params)
}
