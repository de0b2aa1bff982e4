// Package ragsvc provides the RAG service server implementation.
package ragsvc

import (
	"context"
	"fmt"
	"time"

	"github.com/kart-io/logger"
	"github.com/kart-io/scholar-x/internal/rag/biz"
	"github.com/kart-io/scholar-x/internal/rag/handler"
	"github.com/kart-io/scholar-x/internal/rag/router"
	"github.com/kart-io/scholar-x/internal/rag/store"
	"github.com/kart-io/scholar-x/pkg/component/milvus"
	"github.com/kart-io/scholar-x/pkg/component/redis"
	"github.com/kart-io/scholar-x/pkg/infra/app"
	"github.com/kart-io/scholar-x/pkg/infra/config"
	"github.com/kart-io/scholar-x/pkg/infra/pool"
	"github.com/kart-io/scholar-x/pkg/infra/server"
	"github.com/kart-io/scholar-x/pkg/llm"

	// 导入 LLM 供应商以自动注册
	_ "github.com/kart-io/scholar-x/pkg/llm/ollama"
	_ "github.com/kart-io/scholar-x/pkg/llm/openai"

	cacheopts "github.com/kart-io/scholar-x/pkg/options/cache"
	llmopts "github.com/kart-io/scholar-x/pkg/options/llm"
	logopts "github.com/kart-io/scholar-x/pkg/options/logger"
	middlewareopts "github.com/kart-io/scholar-x/pkg/options/middleware"
	milvusopts "github.com/kart-io/scholar-x/pkg/options/milvus"
	ragopts "github.com/kart-io/scholar-x/pkg/options/rag"
	httpopts "github.com/kart-io/scholar-x/pkg/options/server/http"

	"github.com/kart-io/scholar-x/pkg/llm/resilience"
	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
)

// Name is the name of the application.
const Name = "scholar-rag"

// Config contains application-related configurations.
type Config struct {
	HTTPOptions       *httpopts.Options
	LogOptions        *logopts.Options
	MilvusOptions     *milvusopts.Options
	EmbeddingOptions  *llmopts.ProviderOptions
	ChatOptions       *llmopts.ProviderOptions
	RAGOptions        *ragopts.Options
	CacheOptions      *cacheopts.Options
	MiddlewareOptions *middlewareopts.Options
	ShutdownTimeout   time.Duration
}

// Server represents the RAG server.
type Server struct {
	srv         *server.Manager
	watcher     *config.Watcher
	workers     *pool.Pool
	milvusClose func()
	redisClose  func()
}

// NewServer initializes and returns a new Server instance.
func (cfg *Config) NewServer(ctx context.Context) (*Server, error) {
	printBanner(cfg)

	// 1. 初始化日志
	cfg.LogOptions.AddInitialField("service.name", Name)
	cfg.LogOptions.AddInitialField("service.version", app.GetVersion())
	if err := cfg.LogOptions.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.Info("Starting RAG service...")

	// 2. 初始化 Milvus 客户端
	milvusClient, err := milvus.New(cfg.MilvusOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize milvus: %w", err)
	}
	logger.Info("Milvus client initialized")

	// 3. 初始化 Store 层
	vectorStore := store.NewMilvusStore(milvusClient, cfg.RAGOptions.Collection)
	createCtx, cancel := context.WithTimeout(ctx, cfg.MilvusOptions.Timeout)
	defer cancel()
	if err := vectorStore.CreateCollection(createCtx, &store.CollectionConfig{
		Name:      cfg.RAGOptions.Collection,
		Dimension: cfg.RAGOptions.EmbeddingDim,
	}); err != nil {
		return nil, fmt.Errorf("failed to ensure collection: %w", err)
	}
	logger.Infow("Vector store initialized",
		"collection", cfg.RAGOptions.Collection,
		"dimension", cfg.RAGOptions.EmbeddingDim,
	)

	// 4. 初始化 Redis 客户端（用于缓存）
	var redisClient *goredis.Client
	var queryCache *biz.QueryCache
	var redisClose func()
	if cfg.CacheOptions.Enabled {
		redisOpts := cfg.CacheOptions.Redis
		if redisOpts == nil {
			logger.Warn("Cache is enabled but no Redis configuration provided in CacheOptions")
		} else if redisComponent, err := redis.NewWithContext(ctx, redisOpts); err != nil {
			logger.Warnw("failed to connect to redis, cache will be disabled", "error", err.Error())
		} else {
			redisClient = redisComponent.Client()
			queryCache = biz.NewQueryCache(redisClient, &biz.QueryCacheConfig{
				Enabled:   true,
				TTL:       cfg.CacheOptions.TTL,
				KeyPrefix: cfg.CacheOptions.KeyPrefix,
			})
			redisClose = func() { _ = redisComponent.Close() }
			logger.Infow("Redis cache initialized",
				"addr", redisOpts.Addr(),
				"ttl", cfg.CacheOptions.TTL,
			)
		}
	} else {
		logger.Info("Cache is disabled")
	}

	// 5. 初始化 LLM 供应商
	embedBase, err := llm.NewEmbeddingProvider(cfg.EmbeddingOptions.Provider, cfg.EmbeddingOptions.ToConfigMap())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedding provider: %w", err)
	}
	if redisClient != nil {
		embedBase = llm.NewCachedEmbeddingProvider(embedBase, redisClient, nil)
	}
	embedProvider := resilience.NewResilientEmbeddingProvider(embedBase, nil, nil)
	logger.Infow("Embedding provider initialized",
		"provider", cfg.EmbeddingOptions.Provider,
		"model", cfg.EmbeddingOptions.Model,
		"cached", redisClient != nil,
	)

	chatBase, err := llm.NewChatProvider(cfg.ChatOptions.Provider, cfg.ChatOptions.ToConfigMap())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize chat provider: %w", err)
	}
	chatProvider := resilience.NewResilientChatProvider(chatBase, nil, nil)
	logger.Infow("Chat provider initialized",
		"provider", cfg.ChatOptions.Provider,
		"model", cfg.ChatOptions.Model,
	)

	// 6. 初始化后台工作池（文档摄取）
	workers, err := pool.New("rag-ingest", pool.IngestConfig(0))
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}
	logger.Info("Ingest worker pool initialized")

	// 7. 初始化 Biz 层
	ragService := biz.NewRAGService(vectorStore, embedProvider, chatProvider, queryCache, workers, &biz.ServiceConfig{
		ChunkSize:      cfg.RAGOptions.ChunkSize,
		ChunkOverlap:   cfg.RAGOptions.ChunkOverlap,
		TopK:           cfg.RAGOptions.TopK,
		MinSimilarity:  cfg.RAGOptions.MinSimilarity,
		ScoreTolerance: cfg.RAGOptions.ScoreTolerance,
		EmbeddingDim:   cfg.RAGOptions.EmbeddingDim,
		EmbedBatchSize: cfg.RAGOptions.EmbedBatchSize,
	})
	logger.Infow("RAG service initialized",
		"cache.enabled", queryCache != nil,
		"top_k", cfg.RAGOptions.TopK,
		"min_similarity", cfg.RAGOptions.MinSimilarity,
		"score_tolerance", cfg.RAGOptions.ScoreTolerance,
	)

	// 8. 初始化 Handler 层
	ragHandler := handler.NewRAGHandler(ragService, cfg.RAGOptions.QueryTimeout)
	logger.Info("Handler layer initialized")

	// 9. 初始化服务器
	serverManager := server.NewManager(
		server.WithHTTPOptions(cfg.HTTPOptions),
		server.WithMiddleware(cfg.MiddlewareOptions),
		server.WithShutdownTimeout(cfg.ShutdownTimeout),
	)

	// 10. 注册路由
	router.Register(serverManager.Engine(), ragHandler)

	// 11. 启动配置热更新（检索参数）
	watcher := config.NewWatcher(viper.GetViper())
	watcher.Subscribe("rag-tuning", config.SectionHandler("rag", func() interface{} {
		return &biz.TuningConfig{}
	}, ragService))
	watcher.Start()

	logger.Info("RAG service is ready")
	return &Server{
		srv:         serverManager,
		watcher:     watcher,
		workers:     workers,
		milvusClose: func() { _ = milvusClient.Close(context.Background()) },
		redisClose:  redisClose,
	}, nil
}

// Run starts the server and listens for termination signals.
func (s *Server) Run(_ context.Context) error {
	defer func() {
		if s.watcher != nil {
			s.watcher.Stop()
		}
		if s.workers != nil {
			s.workers.Release()
		}
		if s.milvusClose != nil {
			s.milvusClose()
		}
		if s.redisClose != nil {
			s.redisClose()
		}
	}()
	return s.srv.Run()
}

func printBanner(cfg *Config) {
	fmt.Printf("Starting %s...\n", Name)
	fmt.Printf("  Embedding: %s (%s)\n", cfg.EmbeddingOptions.Provider, cfg.EmbeddingOptions.Model)
	fmt.Printf("  Chat: %s (%s)\n", cfg.ChatOptions.Provider, cfg.ChatOptions.Model)
	fmt.Printf("  Collection: %s\n", cfg.RAGOptions.Collection)
	if cfg.MiddlewareOptions != nil {
		fmt.Printf("  Enabled Middlewares: %v\n", cfg.MiddlewareOptions.Middleware)
	}
}
