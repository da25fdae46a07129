package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ayush/truth-engine/internal/api"
	"github.com/ayush/truth-engine/internal/cache"
	"github.com/ayush/truth-engine/internal/config"
	"github.com/ayush/truth-engine/internal/pipeline"
	"github.com/ayush/truth-engine/internal/research"
	"github.com/ayush/truth-engine/internal/store"
	"github.com/ayush/truth-engine/internal/synthesis"
)

// deps holds the wired collaborators. Storage backends are nil when their
// configuration is empty.
type deps struct {
	Controller *pipeline.Controller

	pg    *store.PostgresStore
	mongo *store.MongoStore
	minio *store.MinioStore

	closers []func(context.Context)
}

func buildDeps(ctx context.Context, cfg *config.Config) (*deps, error) {
	logger := zerolog.Ctx(ctx)
	d := &deps{}
	httpClient := &http.Client{}

	// ── Cache ────────────────────────────────────────────────
	var reportCache cache.Store
	switch cfg.CacheBackend {
	case config.CacheRedis:
		rdb, err := store.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			d.Close(ctx)
			return nil, err
		}
		d.closers = append(d.closers, func(context.Context) { rdb.Close() })
		reportCache = cache.NewRedis(rdb, cfg.CacheTTL)
	default:
		reportCache = cache.NewMemory(cache.WithTTL(cfg.CacheTTL))
	}
	logger.Info().Str("backend", cfg.CacheBackend).Dur("ttl", cfg.CacheTTL).Msg("report cache ready")

	// ── Research ─────────────────────────────────────────────
	// Completer is left as an untyped nil when the key is missing so the
	// orchestrator sees "no provider".
	var researchLLM research.Completer
	if cfg.ResearchEnabled() {
		researchLLM = research.NewChatClient("perplexity", cfg.PerplexityBaseURL, cfg.PerplexityAPIKey, httpClient)
	} else {
		logger.Warn().Msg("PERPLEXITY_API_KEY not set, research will be empty")
	}
	orchestrator := research.NewOrchestrator(researchLLM,
		research.WithModels(cfg.MarketModel, cfg.CommunityModel),
		research.WithTimeout(cfg.ResearchTimeout),
	)

	// ── Synthesis ────────────────────────────────────────────
	var synthLLM research.Completer
	if cfg.SynthesisEnabled() {
		synthLLM = research.NewChatClient("openai", cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, httpClient)
	} else {
		logger.Warn().Msg("OPENAI_API_KEY not set, report generation will fail")
	}
	synth := synthesis.New(synthLLM,
		synthesis.WithModel(cfg.SynthesisModel),
		synthesis.WithTimeout(cfg.SynthesisTimeout),
	)

	d.Controller = pipeline.NewController(reportCache, orchestrator, synth)

	// ── PostgreSQL ───────────────────────────────────────────
	if cfg.PostgresDSN != "" {
		pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
		if err != nil {
			d.Close(ctx)
			return nil, fmt.Errorf("postgres connect: %w", err)
		}
		d.closers = append(d.closers, func(context.Context) { pool.Close() })
		d.pg = store.NewPostgresStore(pool)
		if err := d.pg.Migrate(ctx); err != nil {
			d.Close(ctx)
			return nil, fmt.Errorf("postgres migrate: %w", err)
		}
	}

	// ── MongoDB ──────────────────────────────────────────────
	if cfg.MongoURI != "" {
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			d.Close(ctx)
			return nil, fmt.Errorf("mongo connect: %w", err)
		}
		d.closers = append(d.closers, func(ctx context.Context) { client.Disconnect(ctx) })
		d.mongo = store.NewMongoStore(client.Database(cfg.MongoDB))
		if err := d.mongo.EnsureIndexes(ctx); err != nil {
			logger.Warn().Err(err).Msg("mongo index creation failed (non-fatal)")
		}
	}

	// ── MinIO ────────────────────────────────────────────────
	if cfg.MinioEndpoint != "" {
		m, err := store.NewMinioStore(ctx, cfg.MinioEndpoint, cfg.MinioAccessKey,
			cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if err != nil {
			d.Close(ctx)
			return nil, fmt.Errorf("minio connect: %w", err)
		}
		d.minio = m
	}

	logger.Info().
		Bool("ledger", d.pg != nil).
		Bool("archive", d.mongo != nil).
		Bool("exports", d.minio != nil).
		Msg("storage configured")
	return d, nil
}

// Handler returns the API dependencies, leaving disabled stores as nil
// interfaces rather than typed nils.
func (d *deps) Handler() api.Deps {
	h := api.Deps{Runner: d.Controller}
	if d.pg != nil {
		h.Runs = d.pg
	}
	if d.mongo != nil {
		h.Reports = d.mongo
	}
	if d.minio != nil {
		h.Files = d.minio
	}
	return h
}

// Close releases connections in reverse order of creation.
func (d *deps) Close(ctx context.Context) {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i](ctx)
	}
}
