package wire

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"novel-orchestrator/internal/application/callback"
	"novel-orchestrator/internal/application/generation"
	"novel-orchestrator/internal/application/memory"
	"novel-orchestrator/internal/application/retrieval"
	"novel-orchestrator/internal/config"
	"novel-orchestrator/internal/domain/repository"
	"novel-orchestrator/internal/infrastructure/embedding"
	"novel-orchestrator/internal/infrastructure/messaging"
	"novel-orchestrator/internal/infrastructure/persistence/milvus"
	"novel-orchestrator/internal/infrastructure/persistence/neo4j"
	"novel-orchestrator/internal/infrastructure/persistence/qdrant"
	"novel-orchestrator/internal/infrastructure/persistence/redis"
	"novel-orchestrator/internal/infrastructure/workflow"
	"novel-orchestrator/internal/interfaces/http/handler"
	"novel-orchestrator/internal/interfaces/http/router"
	"novel-orchestrator/pkg/logger"
)

// App 网关进程持有的组件
type App struct {
	Router       *router.Router
	Queue        *messaging.Queue
	Orchestrator *generation.Orchestrator
	Memory       *memory.Service
}

// Engine 返回 Gin Engine
func (a *App) Engine() *gin.Engine {
	return a.Router.Engine()
}

// Worker 后台任务进程持有的组件
type Worker struct {
	Queue  *messaging.Queue
	Memory *memory.Service
}

// ProvideRedisClient 提供 Redis 客户端
func ProvideRedisClient(ctx context.Context, cfg *config.Config) (*redis.Client, func(), error) {
	client := redis.NewClient(ctx, &cfg.Cache.Redis)
	cleanup := func() {
		_ = client.Close()
	}
	return client, cleanup, nil
}

// ProvideCache 提供缓存
func ProvideCache(client *redis.Client, cfg *config.Config) *redis.Cache {
	return redis.NewCache(client, cfg.Cache.OpTimeout)
}

// ProvideQueue 提供任务队列
func ProvideQueue(client *redis.Client, cfg *config.Config) *messaging.Queue {
	rs := cfg.Messaging.RedisStream
	maxLen := rs.MaxLen
	if maxLen <= 0 {
		maxLen = 100000
	}
	producer := messaging.NewProducer(client.Redis(), int64(maxLen))
	return messaging.NewQueue(client.Redis(), producer, messaging.QueueConfig{
		GroupPrefix:   rs.ConsumerGroupPrefix,
		BlockTimeout:  rs.BlockTimeout,
		ClaimInterval: rs.ClaimInterval,
		RetryLimit:    rs.RetryLimit,
		Backoff: messaging.BackoffConfig{
			Initial:    rs.RetryBackoff.Initial,
			Max:        rs.RetryBackoff.Max,
			Multiplier: rs.RetryBackoff.Multiplier,
		},
		StatusTTL:         rs.JobStatusTTL,
		Concurrency:       cfg.Messaging.Concurrency,
		DLQAlertThreshold: rs.DLQAlertThreshold,
	})
}

// ProvideNeo4jClient 提供 Neo4j 客户端
func ProvideNeo4jClient(ctx context.Context, cfg *config.Config) (*neo4j.Client, func(), error) {
	client, err := neo4j.NewClient(ctx, &cfg.Graph.Neo4j)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		_ = client.Close(context.Background())
	}
	return client, cleanup, nil
}

// ProvideEmbedder 可选 Embedder，不可用时向量能力降级
func ProvideEmbedder(ctx context.Context, cfg *config.Config) embedding.Embedder {
	embedder, err := embedding.NewEmbedder(ctx, &cfg.Embedding)
	if err != nil {
		logger.Warn(ctx, "embedding not available, vector features disabled", "error", err.Error())
		return nil
	}
	return embedder
}

// ProvideVectorStore 按配置选择向量后端，不可达时降级为禁用
func ProvideVectorStore(ctx context.Context, cfg *config.Config, embedder embedding.Embedder) (repository.VectorStore, func(), error) {
	dim := cfg.Embedding.Dimension
	if embedder != nil && embedder.Dimension() > 0 {
		dim = embedder.Dimension()
	}

	backend := strings.ToLower(strings.TrimSpace(cfg.Vector.Backend))
	switch backend {
	case "milvus":
		client, err := milvus.NewClient(ctx, &cfg.Vector.Milvus)
		if err != nil {
			logger.Warn(ctx, "milvus not available, vector features disabled", "error", err.Error())
			return nil, func() {}, nil
		}
		return milvus.NewRepository(client, dim), func() { _ = client.Close() }, nil
	case "qdrant":
		repo, err := qdrant.NewRepository(&cfg.Vector.Qdrant, dim)
		if err != nil {
			logger.Warn(ctx, "qdrant not available, vector features disabled", "error", err.Error())
			return nil, func() {}, nil
		}
		return repo, func() { _ = repo.Close() }, nil
	case "", "none":
		return nil, func() {}, nil
	default:
		logger.Warn(ctx, "unknown vector backend, vector features disabled", "backend", cfg.Vector.Backend)
		return nil, func() {}, nil
	}
}

// ProvideRetrievalEngine 提供检索引擎
func ProvideRetrievalEngine(cfg *config.Config, embedder embedding.Embedder, store repository.VectorStore) *retrieval.Engine {
	return retrieval.NewEngine(&cfg.Vector, embedder, store)
}

// ProvideMemoryService 提供记忆层服务并在队列上注册处理器
func ProvideMemoryService(cfg *config.Config, graph *neo4j.GraphRepository, cache *redis.Cache, queue *messaging.Queue, engine *retrieval.Engine) *memory.Service {
	svc := memory.NewService(cfg, graph, cache, queue, engine)
	svc.RegisterProcessors(cfg.Messaging.Concurrency)
	queue.OnFailure(svc.OnJobFailure)
	return svc
}

// ProvideWorkflowClient 提供工作流引擎客户端
func ProvideWorkflowClient(cfg *config.Config) *workflow.Client {
	return workflow.NewClient(&cfg.Workflow)
}

// ProvideCallbackSender 提供回调发送器
func ProvideCallbackSender(cfg *config.Config) *callback.Sender {
	return callback.NewSender(&cfg.Callback)
}

// ProvideHealthHandler 提供健康检查处理器，向量后端为可选依赖
func ProvideHealthHandler(cfg *config.Config, orchestrator *generation.Orchestrator, rc *redis.Client, graph *neo4j.GraphRepository, store repository.VectorStore) *handler.HealthHandler {
	deps := []handler.Dependency{
		{Name: "redis", Checker: rc, Required: true},
		{Name: "neo4j", Checker: graph, Required: true},
	}
	if checker, ok := store.(handler.HealthChecker); ok && store != nil {
		deps = append(deps, handler.Dependency{Name: store.Backend(), Checker: checker})
	}
	return handler.NewHealthHandler(cfg.App.Version, orchestrator.Mode(), deps...)
}
