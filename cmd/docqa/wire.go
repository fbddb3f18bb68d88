package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	mongodriver "go.mongodb.org/mongo-driver/mongo"

	"github.com/docqa/docqa-api/internal/core/policy"
	"github.com/docqa/docqa-api/internal/core/ports"
	"github.com/docqa/docqa-api/internal/core/service"
	"github.com/docqa/docqa-api/internal/infrastructure/credential"
	"github.com/docqa/docqa-api/internal/infrastructure/db/memory"
	"github.com/docqa/docqa-api/internal/infrastructure/db/mongo"
	"github.com/docqa/docqa-api/internal/infrastructure/db/postgres"
	"github.com/docqa/docqa-api/internal/infrastructure/db/redis"
	"github.com/docqa/docqa-api/internal/infrastructure/llm"
	"github.com/docqa/docqa-api/internal/infrastructure/pdf"
	"github.com/docqa/docqa-api/internal/infrastructure/queue"
	"github.com/docqa/docqa-api/internal/pkg/config"
	"github.com/docqa/docqa-api/pkg/logger"
)

const disconnectTimeout = 5 * time.Second

// components holds every long-lived dependency of the server.
type components struct {
	pool    *pgxpool.Pool
	mongo   *mongodriver.Client
	mongoDB *mongodriver.Database
	redis   *goredis.Client

	engine   *policy.Engine
	identity *service.IdentityService
	gate     *service.Gate
	audit    *queue.AuditDispatcher
	docs     *service.DocumentService
	qa       *service.QAService

	closers []func()
}

func (c *components) close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
}

func initLogger(cfg *config.Config) zerolog.Logger {
	return logger.Init(logger.Options{Level: cfg.LogLevel, Pretty: cfg.IsDevelopment()})
}

func loadPolicy(cfg *config.Config) (*policy.Engine, error) {
	var (
		rs  policy.RuleSet
		err error
	)
	if cfg.Policy.File != "" {
		rs, err = policy.Load(cfg.Policy.File)
	} else {
		rs, err = policy.Default()
	}
	if err != nil {
		return nil, err
	}
	return policy.New(rs)
}

// openIdentityStore returns the configured identity repository. The pool is
// nil for the memory store.
func openIdentityStore(ctx context.Context, cfg *config.Config, log zerolog.Logger, migrate bool) (ports.IdentityRepository, *pgxpool.Pool, error) {
	if cfg.Identity.Store == config.StoreMemory {
		log.Warn().Msg("using in-memory identity store, accounts are lost on restart")
		return memory.NewIdentityRepository(), nil, nil
	}

	if migrate {
		if err := postgres.ApplyMigrations(ctx, cfg.Identity.PostgresDSN); err != nil {
			return nil, nil, err
		}
	}
	pool, err := postgres.Connect(ctx, postgres.Config{DSN: cfg.Identity.PostgresDSN})
	if err != nil {
		return nil, nil, err
	}
	return postgres.NewIdentityRepository(pool, logger.Component(log, "postgres")), pool, nil
}

// wire connects to every backing service and assembles the core services.
func wire(ctx context.Context, cfg *config.Config, log zerolog.Logger, migrate bool) (*components, error) {
	c := &components{}
	ok := false
	defer func() {
		if !ok {
			c.close()
		}
	}()

	engine, err := loadPolicy(cfg)
	if err != nil {
		return nil, fmt.Errorf("policy: %w", err)
	}
	c.engine = engine

	repo, pool, err := openIdentityStore(ctx, cfg, log, migrate)
	if err != nil {
		return nil, err
	}
	if pool != nil {
		c.pool = pool
		c.closers = append(c.closers, pool.Close)
	}
	if err := repo.EnsureBuiltinRoles(ctx); err != nil {
		return nil, fmt.Errorf("builtin roles: %w", err)
	}

	rdb, err := redis.Connect(ctx, redis.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		return nil, err
	}
	c.redis = rdb
	c.closers = append(c.closers, func() { _ = rdb.Close() })

	creds, err := credential.NewStore(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL,
		credential.WithRevoker(redis.NewRevocationList(rdb, cfg.Redis.Prefix)))
	if err != nil {
		return nil, err
	}

	var sink ports.AuditSink
	if cfg.Mongo.URI != "" {
		client, db, err := mongo.Connect(ctx, mongo.Config{URI: cfg.Mongo.URI, Database: cfg.Mongo.Database})
		if err != nil {
			return nil, err
		}
		c.mongo, c.mongoDB = client, db
		c.closers = append(c.closers, func() { _ = mongo.Disconnect(client, disconnectTimeout) })

		auditRepo := mongo.NewAuditRepository(db)
		if err := auditRepo.EnsureIndexes(ctx); err != nil {
			log.Warn().Err(err).Msg("audit index creation failed")
		}
		c.audit = queue.NewAuditDispatcher(cfg.Policy.AuditWorkers, auditRepo, logger.Component(log, "audit"))
		sink = c.audit
	} else {
		log.Warn().Msg("MONGO_URI not set, authorization decisions are only logged")
	}

	if cfg.OpenAI.APIKey == "" {
		return nil, errors.New("OPENAI_API_KEY is required")
	}
	model, err := llm.NewOpenAI(llm.Config{
		APIKey:         cfg.OpenAI.APIKey,
		Model:          cfg.OpenAI.Model,
		EmbeddingModel: cfg.OpenAI.EmbeddingModel,
		BaseURL:        cfg.OpenAI.BaseURL,
	})
	if err != nil {
		return nil, err
	}
	rawEmbedder, err := llm.NewOpenAIEmbedder(model)
	if err != nil {
		return nil, err
	}
	embedder, err := llm.NewEmbedder(rawEmbedder, 0)
	if err != nil {
		return nil, err
	}
	splitter, err := pdf.NewSplitter(cfg.Ingest.ChunkSize, cfg.Ingest.ChunkOverlap)
	if err != nil {
		return nil, err
	}

	index := redis.NewDocumentIndex(rdb, embedder, cfg.Redis.Prefix)
	c.identity = service.NewIdentityService(repo, creds, engine, logger.Component(log, "identity"))
	c.gate = service.NewGate(creds, repo, engine, sink, logger.Component(log, "gate"))
	c.docs = service.NewDocumentService(index, splitter, logger.Component(log, "documents"))
	c.qa = service.NewQAService(index, llm.NewQAPipeline(model, logger.Component(log, "llm")),
		cfg.Ingest.TopK, logger.Component(log, "qa"))

	ok = true
	return c, nil
}
