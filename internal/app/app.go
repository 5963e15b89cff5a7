// Package app builds the extraction pipeline and its backends from the
// process configuration. The server, the worker and the CLI share it.
package app

import (
	"context"
	"fmt"

	"github.com/OFFIS-RIT/storygraph/internal/config"
	"github.com/OFFIS-RIT/storygraph/internal/migrations"
	"github.com/OFFIS-RIT/storygraph/internal/storage"
	"github.com/OFFIS-RIT/storygraph/internal/timing"
	"github.com/OFFIS-RIT/storygraph/pkg/ai"
	"github.com/OFFIS-RIT/storygraph/pkg/cache"
	cachefs "github.com/OFFIS-RIT/storygraph/pkg/cache/fs"
	cachepgx "github.com/OFFIS-RIT/storygraph/pkg/cache/pgx"
	cacheredis "github.com/OFFIS-RIT/storygraph/pkg/cache/redis"
	caches3 "github.com/OFFIS-RIT/storygraph/pkg/cache/s3"
	"github.com/OFFIS-RIT/storygraph/pkg/common"
	neo4jexport "github.com/OFFIS-RIT/storygraph/pkg/export/neo4j"
	"github.com/OFFIS-RIT/storygraph/pkg/graph"
	"github.com/OFFIS-RIT/storygraph/pkg/leaselock"
	"github.com/OFFIS-RIT/storygraph/pkg/logger"
	"github.com/OFFIS-RIT/storygraph/pkg/source"
	sourcefs "github.com/OFFIS-RIT/storygraph/pkg/source/fs"
	sources3 "github.com/OFFIS-RIT/storygraph/pkg/source/s3"

	"github.com/jackc/pgx/v5/pgxpool"
)

// App holds the wired pipeline. Pool, Locker, Timing and Exporter are nil
// when their backend is not configured.
type App struct {
	Config   *config.Config
	AIClient ai.GraphAIClient
	Oracle   graph.ExtractionOracle
	Client   *graph.GraphClient
	Cache    *cache.ContentCache
	Catalog  *graph.SchemaCatalog
	Source   source.TextSource

	Pool     *pgxpool.Pool
	Locker   *leaselock.Locker
	Timing   *timing.Recorder
	Exporter *neo4jexport.Exporter

	closers []func()
}

// Options selects optional backends.
type Options struct {
	// Export connects to Neo4j when NEO4J_URI is set.
	Export bool
}

// New validates cfg and builds every configured component.
func New(ctx context.Context, cfg *config.Config, opts Options) (a *App, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a = &App{Config: cfg}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	catalog, err := graph.LoadSchemaCatalog(cfg.Extract.SchemaFile)
	if err != nil {
		return nil, err
	}
	a.Catalog = catalog

	if cfg.Postgres.URL != "" {
		if cfg.Postgres.AutoMigrate {
			if err := migrations.Run(cfg.Postgres.URL, cfg.Postgres.MigrationsDir, migrations.Up); err != nil {
				return nil, err
			}
		}
		pool, err := pgxpool.New(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, fmt.Errorf("unable to connect to database: %w", err)
		}
		a.Pool = pool
		a.closers = append(a.closers, pool.Close)
		a.Locker = leaselock.New(pool, leaselock.Options{
			TTL:    cfg.Batch.LeaseTTL,
			Wait:   true,
			Holder: "storygraph:",
		})
		a.Timing = timing.New(pool)
	}

	var bucket *storage.Bucket
	if cfg.Cache.Backend == "s3" || cfg.Source.Backend == "s3" {
		bucket, err = storage.NewBucket(ctx, storage.S3Params{
			Region:    cfg.S3.Region,
			Endpoint:  cfg.S3.Endpoint,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			Bucket:    cfg.S3.Bucket,
		})
		if err != nil {
			return nil, err
		}
	}

	store, err := a.cacheStore(ctx, bucket)
	if err != nil {
		return nil, err
	}
	a.Cache = cache.New(store)

	switch cfg.Source.Backend {
	case "s3":
		a.Source = sources3.NewSource(bucket, cfg.Source.Prefix)
	default:
		a.Source = sourcefs.NewSource(cfg.Source.Dir, nil)
	}

	a.AIClient, err = graph.NewAIClient(oracleParams(cfg.AI, cfg.AI.Model))
	if err != nil {
		return nil, err
	}
	oracle, err := graph.NewLLMOracle(graph.NewLLMOracleParams{
		Client:        a.AIClient,
		ContextWindow: cfg.AI.ContextWindow,
		Temperature:   cfg.AI.Temperature,
		Thinking:      cfg.AI.Thinking,
	})
	if err != nil {
		return nil, err
	}
	a.Oracle = graph.WithRateLimit(oracle, cfg.Batch.MinInterval)

	schemaClient := a.AIClient
	if cfg.AI.SchemaModel != "" && cfg.AI.SchemaModel != cfg.AI.Model {
		schemaClient, err = graph.NewAIClient(oracleParams(cfg.AI, cfg.AI.SchemaModel))
		if err != nil {
			return nil, err
		}
	}

	a.Client, err = graph.NewGraphClient(graph.NewGraphClientParams{
		Oracle:         a.Oracle,
		Cache:          a.Cache,
		Generator:      graph.NewSchemaGenerator(schemaClient, store),
		Optimizer:      graph.NewHubOptimizer(graph.GroupingStrategy(cfg.Optimize.Strategy), graph.WithOptimizerClient(a.AIClient)),
		SplitThreshold: cfg.Extract.SplitThreshold,
		MaxRetries:     cfg.AI.MaxRetries,
		RetryDelay:     cfg.AI.RetryDelay,
	})
	if err != nil {
		return nil, err
	}

	if opts.Export && cfg.Neo4j.URI != "" {
		exp, err := neo4jexport.NewExporter(ctx, neo4jexport.NewExporterParams{
			URI:      cfg.Neo4j.URI,
			User:     cfg.Neo4j.User,
			Password: cfg.Neo4j.Password,
			Database: cfg.Neo4j.Database,
		})
		if err != nil {
			return nil, err
		}
		a.Exporter = exp
		a.closers = append(a.closers, func() { _ = exp.Close(context.Background()) })
	}

	logger.Info("Pipeline ready",
		"adapter", cfg.AI.Adapter,
		"model", cfg.AI.Model,
		"cache", cfg.Cache.Backend,
		"source", cfg.Source.Backend,
		"postgres", a.Pool != nil,
		"neo4j", a.Exporter != nil,
	)
	return a, nil
}

// NewOptimizer builds a standalone optimizer for strategy. A model client is
// only created when the strategy or reconnection needs one.
func NewOptimizer(cfg *config.Config, strategy string) (*graph.HubOptimizer, error) {
	s := graph.GroupingStrategy(strategy)
	if s != graph.GroupLLM && !cfg.Optimize.Reconnect {
		return graph.NewHubOptimizer(s), nil
	}
	client, err := graph.NewAIClient(oracleParams(cfg.AI, cfg.AI.Model))
	if err != nil {
		return nil, err
	}
	return graph.NewHubOptimizer(s, graph.WithOptimizerClient(client)), nil
}

func oracleParams(c config.AIConfig, model string) graph.NewOracleParams {
	return graph.NewOracleParams{
		Adapter:       c.Adapter,
		BaseURL:       c.BaseURL,
		APIKey:        c.APIKey,
		Model:         model,
		ContextWindow: c.ContextWindow,
		Temperature:   c.Temperature,
		Thinking:      c.Thinking,
		ParallelReq:   c.ParallelReq,
	}
}

func (a *App) cacheStore(ctx context.Context, bucket *storage.Bucket) (cache.Store, error) {
	cfg := a.Config
	switch cfg.Cache.Backend {
	case "s3":
		return caches3.NewStore(bucket, cfg.Cache.Prefix), nil
	case "redis":
		s, err := cacheredis.NewStore(ctx, cacheredis.NewStoreParams{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Cache.Prefix,
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = s.Close() })
		return s, nil
	case "postgres":
		if a.Pool == nil {
			return nil, &graph.ConfigurationError{Field: "DATABASE_URL", Reason: "postgres cache backend requires a database url"}
		}
		return cachepgx.NewStore(a.Pool), nil
	default:
		return cachefs.NewStore(cfg.Cache.Dir)
	}
}

// Scheduler returns a batch scheduler that holds a lease per chapter when
// Postgres is configured.
func (a *App) Scheduler() *graph.BatchScheduler {
	params := graph.NewBatchSchedulerParams{Client: a.Client, Workers: a.Config.Batch.Workers}
	if a.Locker != nil {
		params.Lease = func(ctx context.Context, key string, fn func(context.Context) error) error {
			return a.Locker.Do(ctx, leaselock.ChapterKey(key), fn)
		}
	}
	return graph.NewBatchScheduler(params)
}

// ChapterConfig builds the extraction config of one chapter from the
// configured defaults.
func (a *App) ChapterConfig(novelID, chapterID, text string, schema common.Schema) common.ExtractionConfig {
	cfg := common.ExtractionConfig{
		NovelID:      novelID,
		ChapterID:    chapterID,
		Text:         text,
		ChunkSize:    a.Config.Extract.ChunkSize,
		ChunkOverlap: a.Config.Extract.ChunkOverlap,
		Schema:       schema,
		UseCache:     a.Config.Extract.UseCache,
	}
	if a.Config.Optimize.Enabled {
		p := a.Config.Optimize.Params()
		cfg.Optimize = &p
	}
	return cfg
}

// Close releases every backend in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
