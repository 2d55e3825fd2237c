//go:build wireinject
// +build wireinject

// Package wire 提供依赖注入配置
package wire

import (
	"context"

	"github.com/google/wire"

	"legal-rag-api/internal/application/stream"
	"legal-rag-api/internal/config"
	"legal-rag-api/internal/domain/repository"
	"legal-rag-api/internal/infrastructure/llm"
	"legal-rag-api/internal/infrastructure/messaging"
	"legal-rag-api/internal/infrastructure/persistence/postgres"
	"legal-rag-api/internal/infrastructure/persistence/redis"
	"legal-rag-api/internal/interfaces/http/handler"
	"legal-rag-api/internal/interfaces/http/middleware"
	"legal-rag-api/internal/workflow/chain"
	workflowport "legal-rag-api/internal/workflow/port"
)

// InitializeApp 初始化 API 网关
func InitializeApp(ctx context.Context, cfg *config.Config) (*App, func(), error) {
	wire.Build(
		RepoSet,
		RedisSet,
		MessagingSet,
		VectorSet,
		RegistrySet,
		EngineSet,
		RouterSet,
		wire.Struct(new(App), "*"),
	)
	return nil, nil, nil
}

// InitializeWorker 初始化 job-worker（回收器 + 入库消费者）
func InitializeWorker(ctx context.Context, cfg *config.Config) (*Worker, func(), error) {
	wire.Build(
		RepoSet,
		RedisSet,
		MessagingSet,
		VectorSet,
		RegistrySet,
		ProvideRetrievalIndexer,
		wire.Struct(new(Worker), "*"),
	)
	return nil, nil, nil
}

// InitializeBootstrap 初始化 bootstrap 所需依赖
func InitializeBootstrap(ctx context.Context, cfg *config.Config) (*BootstrapLayer, func(), error) {
	wire.Build(
		ProvidePostgresClient,
		ProvideMilvusClientOptional,
		ProvideMilvusRepositoryOptional,
		ProvideRetrievalVectorRepositoryOptional,
		wire.Struct(new(BootstrapLayer), "*"),
	)
	return nil, nil, nil
}

// PostgresSet PostgreSQL 提供者集合
var PostgresSet = wire.NewSet(
	ProvidePostgresClient,
	postgres.NewTxManager,
	postgres.NewSessionRepository,
	postgres.NewTaskRepository,
	postgres.NewTraceRepository,
	postgres.NewPassageRepository,
)

// RepoSet 整合了具体实现与接口绑定的集合
var RepoSet = wire.NewSet(
	PostgresSet,
	wire.Bind(new(repository.Transactor), new(*postgres.TxManager)),
	wire.Bind(new(repository.SessionRepository), new(*postgres.SessionRepository)),
	wire.Bind(new(repository.TaskRepository), new(*postgres.TaskRepository)),
	wire.Bind(new(repository.TraceRepository), new(*postgres.TraceRepository)),
	wire.Bind(new(repository.PassageRepository), new(*postgres.PassageRepository)),
)

// RedisSet Redis 提供者集合
var RedisSet = wire.NewSet(
	ProvideRedisClient,
	redis.NewCache,
	redis.NewRateLimiter,
	ProvideChunkStore,
	ProvideControlStore,
	wire.Bind(new(middleware.RateLimiter), new(*redis.RateLimiter)),
)

// MessagingSet 消息队列提供者集合
var MessagingSet = wire.NewSet(
	ProvideMessagingProducer,
	wire.Bind(new(handler.IngestPublisher), new(*messaging.Producer)),
)

// VectorSet 可选 Milvus 与 Embedder（不可用时禁用语义通道）
var VectorSet = wire.NewSet(
	ProvideMilvusClientOptional,
	ProvideMilvusRepositoryOptional,
	ProvideRetrievalVectorRepositoryOptional,
	ProvideEmbedderOptional,
)

// RegistrySet 会话注册表与回收器
var RegistrySet = wire.NewSet(
	ProvideRegistry,
	ProvideReaper,
)

// EngineSet 分类、检索、推理与流式编排
var EngineSet = wire.NewSet(
	llm.NewModelPool,
	wire.Bind(new(workflowport.ChatModelProvider), new(*llm.ModelPool)),
	chain.NewClassifyChain,
	chain.NewStageChain,
	ProvideClassifier,
	ProvideRetrievalEngine,
	ProvideReasoningPipeline,
	ProvideTokenIssuer,
	ProvideOrchestrator,
)

// RouterSet 路由器提供者集合
var RouterSet = wire.NewSet(
	ProvideHealthHandler,
	ProvideChatHandler,
	handler.NewPassageHandler,
	wire.Bind(new(handler.ChatService), new(*stream.Orchestrator)),
	ProvideRouter,
)
