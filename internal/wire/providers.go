// Package wire 提供依赖注入配置
package wire

import (
	"context"

	einoembedding "github.com/cloudwego/eino/components/embedding"

	"legal-rag-api/internal/application/classifier"
	"legal-rag-api/internal/application/reasoning"
	"legal-rag-api/internal/application/registry"
	"legal-rag-api/internal/application/retrieval"
	"legal-rag-api/internal/application/stream"
	"legal-rag-api/internal/config"
	"legal-rag-api/internal/domain/repository"
	infraembedding "legal-rag-api/internal/infrastructure/embedding"
	"legal-rag-api/internal/infrastructure/messaging"
	"legal-rag-api/internal/infrastructure/persistence/milvus"
	"legal-rag-api/internal/infrastructure/persistence/postgres"
	"legal-rag-api/internal/infrastructure/persistence/redis"
	"legal-rag-api/internal/interfaces/http/handler"
	"legal-rag-api/internal/interfaces/http/middleware"
	"legal-rag-api/internal/interfaces/http/router"
	"legal-rag-api/internal/workflow/chain"
	"legal-rag-api/pkg/logger"
	"legal-rag-api/pkg/utils"
)

// App API 网关依赖容器
type App struct {
	Router       *router.Router
	Orchestrator *stream.Orchestrator
	Reaper       *registry.Reaper
}

// Worker job-worker 依赖容器
type Worker struct {
	RedisClient *redis.Client
	Reaper      *registry.Reaper
	Indexer     *retrieval.Indexer
}

// BootstrapLayer 初始化数据库与向量集合所需依赖
type BootstrapLayer struct {
	PgClient   *postgres.Client
	VectorRepo retrieval.VectorRepository
}

// ProvidePostgresClient 提供 PostgreSQL 客户端
func ProvidePostgresClient(cfg *config.Config) (*postgres.Client, func(), error) {
	client, err := postgres.NewClient(&cfg.Database.Postgres)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		client.Close()
	}
	return client, cleanup, nil
}

// ProvideRedisClient 提供 Redis 客户端
func ProvideRedisClient(cfg *config.Config) (*redis.Client, func(), error) {
	client, err := redis.NewClient(&cfg.Cache.Redis)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		client.Close()
	}
	return client, cleanup, nil
}

// ProvideChunkStore 提供分片缓冲区
func ProvideChunkStore(client *redis.Client, cfg *config.Config) *redis.ChunkStore {
	return redis.NewChunkStore(client, &cfg.Stream)
}

// ProvideControlStore 提供取消与在线标记
func ProvideControlStore(client *redis.Client, cfg *config.Config) *redis.ControlStore {
	return redis.NewControlStore(client, &cfg.Stream)
}

// ProvideMessagingProducer 提供消息生产者
func ProvideMessagingProducer(redisClient *redis.Client, cfg *config.Config) *messaging.Producer {
	maxLen := cfg.Messaging.RedisStream.MaxLen
	if maxLen <= 0 {
		maxLen = 100000
	}
	return messaging.NewProducer(redisClient.Redis(), int64(maxLen))
}

// ProvideMilvusClientOptional Milvus 不可达时不阻塞启动，语义通道降级
func ProvideMilvusClientOptional(ctx context.Context, cfg *config.Config) (*milvus.Client, func(), error) {
	client, err := milvus.NewClient(ctx, &cfg.Vector.Milvus)
	if err != nil {
		logger.Warn(ctx, "milvus not available, semantic channel disabled", "error", err.Error())
		return nil, func() {}, nil
	}
	cleanup := func() {
		_ = client.Close()
	}
	return client, cleanup, nil
}

func ProvideMilvusRepositoryOptional(client *milvus.Client) *milvus.Repository {
	if client == nil {
		return nil
	}
	return milvus.NewRepository(client)
}

func ProvideRetrievalVectorRepositoryOptional(repo *milvus.Repository) retrieval.VectorRepository {
	if repo == nil {
		return nil
	}
	return milvus.NewRetrievalVectorRepository(repo)
}

func ProvideEmbedderOptional(ctx context.Context, cfg *config.Config) (einoembedding.Embedder, error) {
	embedder, err := infraembedding.NewEmbedder(ctx, &cfg.Embedding)
	if err != nil {
		logger.Warn(ctx, "embedding not available, semantic channel disabled", "error", err.Error())
		return nil, nil
	}
	return embedder, nil
}

// ProvideRegistry 提供会话/任务注册表
func ProvideRegistry(
	sessions repository.SessionRepository,
	tasks repository.TaskRepository,
	traces repository.TraceRepository,
	tx repository.Transactor,
	producer *messaging.Producer,
	cfg *config.Config,
) *registry.Registry {
	return registry.New(sessions, tasks, traces, tx, producer, cfg.Registry)
}

// ProvideReaper 提供孤儿会话回收器
func ProvideReaper(reg *registry.Registry, chunks *redis.ChunkStore, cfg *config.Config) *registry.Reaper {
	return registry.NewReaper(reg, chunks, cfg.Registry, cfg.App.InstanceID)
}

// ProvideClassifier 提供意图分类器
func ProvideClassifier(cfg *config.Config, intent *chain.ClassifyChain, cache *redis.Cache) stream.Classifier {
	return classifier.New(cfg.Classifier, intent, cache)
}

func ProvideRetrievalEngine(cfg *config.Config, embedder einoembedding.Embedder, vectorRepo retrieval.VectorRepository, passages repository.PassageRepository) *retrieval.Engine {
	return retrieval.NewEngine(embedder, vectorRepo, passages, cfg.Retrieval)
}

func ProvideRetrievalIndexer(cfg *config.Config, embedder einoembedding.Embedder, vectorRepo retrieval.VectorRepository, passages repository.PassageRepository) *retrieval.Indexer {
	return retrieval.NewIndexer(embedder, vectorRepo, passages, cfg.Embedding.BatchSize, cfg.Retrieval.ChunkRunes, cfg.Retrieval.ChunkOverlap)
}

// ProvideReasoningPipeline 提供 8 阶段推理链
func ProvideReasoningPipeline(stages *chain.StageChain, cfg *config.Config) *reasoning.Pipeline {
	return reasoning.NewPipeline(stages, cfg.Reasoning)
}

// ProvideTokenIssuer 未启用流令牌时返回 nil
func ProvideTokenIssuer(cfg *config.Config) stream.TokenIssuer {
	if !cfg.Security.StreamToken.Enabled {
		return nil
	}
	return utils.NewJWTManager(cfg.Security.StreamToken.Secret, cfg.App.Name)
}

// ProvideOrchestrator 提供流式编排器
func ProvideOrchestrator(
	reg *registry.Registry,
	chunks *redis.ChunkStore,
	control *redis.ControlStore,
	intent stream.Classifier,
	engine *retrieval.Engine,
	pipeline *reasoning.Pipeline,
	tokens stream.TokenIssuer,
	cfg *config.Config,
) *stream.Orchestrator {
	return stream.NewOrchestrator(reg, chunks, control, intent, engine, pipeline, tokens, cfg)
}

// ProvideHealthHandler 提供健康检查处理器
func ProvideHealthHandler(pg *postgres.Client, redisClient *redis.Client, milvusClient *milvus.Client, orchestrator *stream.Orchestrator) *handler.HealthHandler {
	return handler.NewHealthHandler(pg, redisClient, milvusClient, orchestrator.Admission())
}

// ProvideChatHandler 提供流式问答处理器
func ProvideChatHandler(cfg *config.Config, chat handler.ChatService) *handler.ChatHandler {
	return handler.NewChatHandler(chat, cfg.Server.HTTP.PublicBaseURL)
}

// ProvideRouter 提供 HTTP 路由
func ProvideRouter(
	cfg *config.Config,
	health *handler.HealthHandler,
	chat *handler.ChatHandler,
	passage *handler.PassageHandler,
	limiter middleware.RateLimiter,
) *router.Router {
	return router.New(cfg, router.Handlers{
		Health:  health,
		Chat:    chat,
		Passage: passage,
	}, limiter)
}
