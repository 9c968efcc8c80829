//go:build wireinject
// +build wireinject

// Package wire 提供依赖注入配置
package wire

import (
	"context"

	"github.com/google/wire"

	"novel-orchestrator/internal/application/callback"
	"novel-orchestrator/internal/application/generation"
	"novel-orchestrator/internal/application/memory"
	"novel-orchestrator/internal/application/retrieval"
	"novel-orchestrator/internal/config"
	"novel-orchestrator/internal/infrastructure/llm"
	"novel-orchestrator/internal/infrastructure/persistence/neo4j"
	"novel-orchestrator/internal/infrastructure/persistence/redis"
	"novel-orchestrator/internal/infrastructure/workflow"
	"novel-orchestrator/internal/interfaces/http/handler"
	"novel-orchestrator/internal/interfaces/http/middleware"
	"novel-orchestrator/internal/interfaces/http/router"
	"novel-orchestrator/internal/workflow/chain"
	"novel-orchestrator/internal/workflow/prompt"
)

// InitializeApp 初始化网关（带路由器）
func InitializeApp(ctx context.Context, cfg *config.Config) (*App, func(), error) {
	wire.Build(
		DataSet,
		AISet,
		GenerationSet,
		RouterSet,
		wire.Struct(new(App), "*"),
	)
	return nil, nil, nil
}

// InitializeWorker 初始化后台任务进程
func InitializeWorker(ctx context.Context, cfg *config.Config) (*Worker, func(), error) {
	wire.Build(
		DataSet,
		wire.Struct(new(Worker), "*"),
	)
	return nil, nil, nil
}

// DataSet 存储、队列与记忆层
var DataSet = wire.NewSet(
	ProvideRedisClient,
	ProvideCache,
	ProvideQueue,
	ProvideNeo4jClient,
	neo4j.NewGraphRepository,
	ProvideEmbedder,
	ProvideVectorStore,
	ProvideRetrievalEngine,
	ProvideMemoryService,
	wire.Bind(new(memory.VectorIndex), new(*retrieval.Engine)),
)

// AISet 提供商与提示词
var AISet = wire.NewSet(
	llm.NewFactory,
	prompt.NewRegistry,
	llm.NewClient,
	chain.NewChapterChain,
	wire.Bind(new(llm.ProviderSource), new(*llm.Factory)),
	wire.Bind(new(chain.Generator), new(*llm.Client)),
)

// GenerationSet 生成编排
var GenerationSet = wire.NewSet(
	ProvideWorkflowClient,
	ProvideCallbackSender,
	generation.NewOrchestrator,
	wire.Bind(new(generation.Memory), new(*memory.Service)),
	wire.Bind(new(generation.Drafter), new(*chain.ChapterChain)),
	wire.Bind(new(generation.Evaluator), new(*llm.Client)),
	wire.Bind(new(generation.Delegator), new(*workflow.Client)),
	wire.Bind(new(generation.Notifier), new(*callback.Sender)),
	wire.Bind(new(generation.DocumentIndexer), new(*retrieval.Engine)),
)

// RouterSet 路由器提供者集合
var RouterSet = wire.NewSet(
	redis.NewRateLimiter,
	ProvideHealthHandler,
	handler.NewGenerationHandler,
	handler.NewNovelHandler,
	handler.NewAIHandler,
	wire.Bind(new(handler.Orchestrator), new(*generation.Orchestrator)),
	wire.Bind(new(handler.MemoryService), new(*memory.Service)),
	wire.Bind(new(handler.AIClient), new(*llm.Client)),
	wire.Bind(new(middleware.RateLimiter), new(*redis.RateLimiter)),
	wire.Struct(new(router.Handlers), "*"),
	router.New,
)
