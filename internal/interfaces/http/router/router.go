// Package router 提供 HTTP 路由配置
package router

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"novel-orchestrator/internal/config"
	"novel-orchestrator/internal/interfaces/http/handler"
	"novel-orchestrator/internal/interfaces/http/middleware"
)

// Handlers 路由依赖的处理器
type Handlers struct {
	Health     *handler.HealthHandler
	Generation *handler.GenerationHandler
	Novel      *handler.NovelHandler
	AI         *handler.AIHandler
}

// Router HTTP 路由器
type Router struct {
	engine   *gin.Engine
	cfg      *config.Config
	handlers Handlers
	limiter  middleware.RateLimiter
}

// New 创建新的路由器
func New(cfg *config.Config, handlers Handlers, limiter middleware.RateLimiter) *Router {
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := &Router{
		engine:   gin.New(),
		cfg:      cfg,
		handlers: handlers,
		limiter:  limiter,
	}
	r.setupMiddleware()
	r.setupRoutes()
	return r
}

// Engine 返回 Gin Engine
func (r *Router) Engine() *gin.Engine {
	return r.engine
}

func (r *Router) setupMiddleware() {
	sec := r.cfg.Security

	r.engine.Use(middleware.Recovery())
	r.engine.Use(middleware.RequestID())

	if r.cfg.Observability.Tracing.Enabled {
		r.engine.Use(middleware.Trace(r.cfg.App.Name))
		r.engine.Use(middleware.TraceContext())
	}
	if r.cfg.Observability.Metrics.Enabled {
		r.engine.Use(middleware.Metrics(r.metricsPath()))
	}

	r.engine.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins: sec.CORS.AllowedOrigins,
		AllowedMethods: sec.CORS.AllowedMethods,
		AllowedHeaders: sec.CORS.AllowedHeaders,
	}))
	r.engine.Use(middleware.Auth(middleware.AuthConfig{
		Enabled:   sec.Auth.Enabled,
		Secret:    sec.Auth.Secret,
		Issuer:    sec.Auth.Issuer,
		SkipPaths: append(middleware.DefaultSkipPaths, r.metricsPath()),
	}))
	r.engine.Use(middleware.RateLimit(middleware.RateLimitConfig{
		Enabled:           sec.RateLimit.Enabled,
		RequestsPerWindow: sec.RateLimit.RequestsPerWindow,
		Window:            sec.RateLimit.Window,
		ClientHeader:      sec.RateLimit.ClientHeader,
		APIKeys:           sec.RateLimit.APIKeys,
	}, r.limiter))
	r.engine.Use(middleware.BodyLimit(sec.MaxBodyBytes))
	r.engine.Use(middleware.Sanitize())
}

func (r *Router) metricsPath() string {
	if p := r.cfg.Observability.Metrics.Path; p != "" {
		return p
	}
	return "/metrics"
}

func (r *Router) setupRoutes() {
	h := r.handlers

	r.engine.GET("/health", h.Health.Health)
	r.engine.GET("/ready", h.Health.Ready)
	r.engine.GET("/live", h.Health.Live)
	r.engine.GET("/novel-generation/health", h.Health.GenerationHealth)

	if r.cfg.Observability.Metrics.Enabled {
		r.engine.GET(r.metricsPath(), gin.WrapH(promhttp.Handler()))
	}

	r.engine.POST("/novel-generation", h.Generation.Generate)
	r.engine.POST("/novel-upload", h.Generation.Upload)

	v1 := r.engine.Group("/v1")
	{
		novels := v1.Group("/novels")
		{
			novels.POST("", h.Novel.CreateNovel)
			novels.GET("/:novelId", h.Novel.GetNovel)

			novels.POST("/:novelId/characters", h.Novel.CreateCharacter)
			novels.GET("/:novelId/characters/:characterId", h.Novel.GetCharacter)

			novels.POST("/:novelId/locations", h.Novel.CreateLocation)
			novels.GET("/:novelId/locations/:locationId", h.Novel.GetLocation)

			novels.GET("/:novelId/chapters", h.Novel.ListChapters)
			novels.PUT("/:novelId/chapters/:number", h.Novel.SaveChapter)
			novels.GET("/:novelId/chapters/:number", h.Novel.GetChapter)

			novels.PATCH("/:novelId/world-state", h.Novel.PatchWorldState)
			novels.GET("/:novelId/world-state", h.Novel.GetWorldState)

			novels.GET("/:novelId/context", h.Novel.GetContext)
			novels.GET("/:novelId/search", h.Novel.SearchEntities)
			novels.POST("/:novelId/semantic-search", h.Novel.SemanticSearch)
		}

		ai := v1.Group("/ai")
		{
			ai.POST("/generate/batch", h.AI.BatchGenerate)
			ai.POST("/evaluate", h.AI.Evaluate)
		}

		v1.GET("/jobs/:jobId", h.Novel.JobStatus)
	}
}
