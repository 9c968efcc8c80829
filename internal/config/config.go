// Package config 提供配置加载和管理功能
package config

import (
	"fmt"
	"time"
)

// Config 应用配置根结构
type Config struct {
	App           AppConfig           `yaml:"app" mapstructure:"app"`
	Server        ServerConfig        `yaml:"server" mapstructure:"server"`
	Graph         GraphConfig         `yaml:"graph" mapstructure:"graph"`
	Cache         CacheConfig         `yaml:"cache" mapstructure:"cache"`
	Vector        VectorConfig        `yaml:"vector" mapstructure:"vector"`
	LLM           LLMConfig           `yaml:"llm" mapstructure:"llm"`
	Embedding     EmbeddingConfig     `yaml:"embedding" mapstructure:"embedding"`
	Messaging     MessagingConfig     `yaml:"messaging" mapstructure:"messaging"`
	Generation    GenerationConfig    `yaml:"generation" mapstructure:"generation"`
	Workflow      WorkflowConfig      `yaml:"workflow" mapstructure:"workflow"`
	Callback      CallbackConfig      `yaml:"callback" mapstructure:"callback"`
	Upload        UploadConfig        `yaml:"upload" mapstructure:"upload"`
	Observability ObservabilityConfig `yaml:"observability" mapstructure:"observability"`
	Security      SecurityConfig      `yaml:"security" mapstructure:"security"`
}

// AppConfig 应用基础配置
type AppConfig struct {
	Name    string `yaml:"name" mapstructure:"name"`
	Version string `yaml:"version" mapstructure:"version"`
	Env     string `yaml:"env" mapstructure:"env"`
}

// IsDevelopment 是否为开发环境
func (c AppConfig) IsDevelopment() bool {
	return c.Env == "" || c.Env == "development" || c.Env == "dev"
}

// ServerConfig 服务器配置
type ServerConfig struct {
	HTTP HTTPServerConfig `yaml:"http" mapstructure:"http"`
}

// HTTPServerConfig HTTP 服务器配置
type HTTPServerConfig struct {
	Host         string        `yaml:"host" mapstructure:"host"`
	Port         int           `yaml:"port" mapstructure:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout"`
	// ShutdownTimeout 优雅关闭等待上限，包含未完成的异步生成
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
	// RunWorkers 在网关进程内同时运行后台任务处理器
	RunWorkers bool `yaml:"run_workers" mapstructure:"run_workers"`
}

// GraphConfig 图数据库配置
type GraphConfig struct {
	Neo4j Neo4jConfig `yaml:"neo4j" mapstructure:"neo4j"`
}

// Neo4jConfig Neo4j 配置
type Neo4jConfig struct {
	URI                   string        `yaml:"uri" mapstructure:"uri"`
	Username              string        `yaml:"username" mapstructure:"username"`
	Password              string        `yaml:"password" mapstructure:"password"`
	Database              string        `yaml:"database" mapstructure:"database"`
	MaxConnectionPoolSize int           `yaml:"max_connection_pool_size" mapstructure:"max_connection_pool_size"`
	ConnectTimeout        time.Duration `yaml:"connect_timeout" mapstructure:"connect_timeout"`
}

// CacheConfig 缓存配置
type CacheConfig struct {
	Redis RedisConfig `yaml:"redis" mapstructure:"redis"`
	TTL   TTLConfig   `yaml:"ttl" mapstructure:"ttl"`
	// OpTimeout 单次缓存操作超时
	OpTimeout time.Duration `yaml:"op_timeout" mapstructure:"op_timeout"`
}

// TTLConfig 按数据类别的缓存过期时间
type TTLConfig struct {
	Temp       time.Duration `yaml:"temp" mapstructure:"temp"`
	Entity     time.Duration `yaml:"entity" mapstructure:"entity"`
	Chapter    time.Duration `yaml:"chapter" mapstructure:"chapter"`
	WorldState time.Duration `yaml:"world_state" mapstructure:"world_state"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Host         string        `yaml:"host" mapstructure:"host"`
	Port         int           `yaml:"port" mapstructure:"port"`
	Password     string        `yaml:"password" mapstructure:"password"`
	DB           int           `yaml:"db" mapstructure:"db"`
	PoolSize     int           `yaml:"pool_size" mapstructure:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns" mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout" mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
}

// Addr 返回 host:port
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// VectorConfig 向量数据库配置
type VectorConfig struct {
	// Backend milvus | qdrant | none
	Backend         string        `yaml:"backend" mapstructure:"backend"`
	NamespacePrefix string        `yaml:"namespace_prefix" mapstructure:"namespace_prefix"`
	ChunkSize       int           `yaml:"chunk_size" mapstructure:"chunk_size"`
	ChunkOverlap    int           `yaml:"chunk_overlap" mapstructure:"chunk_overlap"`
	PreviewLength   int           `yaml:"preview_length" mapstructure:"preview_length"`
	OpTimeout       time.Duration `yaml:"op_timeout" mapstructure:"op_timeout"`
	Milvus          MilvusConfig  `yaml:"milvus" mapstructure:"milvus"`
	Qdrant          QdrantConfig  `yaml:"qdrant" mapstructure:"qdrant"`
}

// MilvusConfig Milvus 配置
type MilvusConfig struct {
	Host               string `yaml:"host" mapstructure:"host"`
	Port               int    `yaml:"port" mapstructure:"port"`
	User               string `yaml:"user" mapstructure:"user"`
	Password           string `yaml:"password" mapstructure:"password"`
	CollectionPrefix   string `yaml:"collection_prefix" mapstructure:"collection_prefix"`
	HNSWM              int    `yaml:"hnsw_m" mapstructure:"hnsw_m"`
	HNSWEfConstruction int    `yaml:"hnsw_ef_construction" mapstructure:"hnsw_ef_construction"`
	SearchEf           int    `yaml:"search_ef" mapstructure:"search_ef"`
}

// QdrantConfig Qdrant 配置
type QdrantConfig struct {
	Host       string `yaml:"host" mapstructure:"host"`
	Port       int    `yaml:"port" mapstructure:"port"`
	Collection string `yaml:"collection" mapstructure:"collection"`
}

// LLMConfig LLM 配置
type LLMConfig struct {
	DefaultProvider   string                    `yaml:"default_provider" mapstructure:"default_provider"`
	EvaluatorProvider string                    `yaml:"evaluator_provider" mapstructure:"evaluator_provider"`
	Providers         map[string]ProviderConfig `yaml:"providers" mapstructure:"providers"`
	BatchLimit        int                       `yaml:"batch_limit" mapstructure:"batch_limit"`
	BatchConcurrency  int                       `yaml:"batch_concurrency" mapstructure:"batch_concurrency"`
}

// ProviderConfig LLM 提供商配置
type ProviderConfig struct {
	// Kind eino | openai
	Kind           string        `yaml:"kind" mapstructure:"kind"`
	APIKey         string        `yaml:"api_key" mapstructure:"api_key"`
	BaseURL        string        `yaml:"base_url" mapstructure:"base_url"`
	Model          string        `yaml:"model" mapstructure:"model"`
	EmbeddingModel string        `yaml:"embedding_model" mapstructure:"embedding_model"`
	MaxTokens      int           `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature    float64       `yaml:"temperature" mapstructure:"temperature"`
	Timeout        time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// EmbeddingConfig Embedding 配置
type EmbeddingConfig struct {
	// Provider eino | openai | none
	Provider  string        `yaml:"provider" mapstructure:"provider"`
	APIKey    string        `yaml:"api_key" mapstructure:"api_key"`
	Endpoint  string        `yaml:"endpoint" mapstructure:"endpoint"`
	Model     string        `yaml:"model" mapstructure:"model"`
	Dimension int           `yaml:"dimension" mapstructure:"dimension"`
	BatchSize int           `yaml:"batch_size" mapstructure:"batch_size"`
	Timeout   time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// MessagingConfig 消息队列配置
type MessagingConfig struct {
	RedisStream RedisStreamConfig `yaml:"redis_stream" mapstructure:"redis_stream"`
	// Concurrency 每个队列的并发处理数
	Concurrency map[string]int `yaml:"concurrency" mapstructure:"concurrency"`
}

// RedisStreamConfig Redis Stream 配置
type RedisStreamConfig struct {
	MaxLen              int           `yaml:"max_len" mapstructure:"max_len"`
	ConsumerGroupPrefix string        `yaml:"consumer_group_prefix" mapstructure:"consumer_group_prefix"`
	BlockTimeout        time.Duration `yaml:"block_timeout" mapstructure:"block_timeout"`
	ClaimInterval       time.Duration `yaml:"claim_interval" mapstructure:"claim_interval"`
	RetryLimit          int           `yaml:"retry_limit" mapstructure:"retry_limit"`
	RetryBackoff        BackoffConfig `yaml:"retry_backoff" mapstructure:"retry_backoff"`
	JobStatusTTL        time.Duration `yaml:"job_status_ttl" mapstructure:"job_status_ttl"`
	DLQAlertThreshold   int64         `yaml:"dlq_alert_threshold" mapstructure:"dlq_alert_threshold"`
}

// BackoffConfig 退避配置
type BackoffConfig struct {
	Initial    time.Duration `yaml:"initial" mapstructure:"initial"`
	Max        time.Duration `yaml:"max" mapstructure:"max"`
	Multiplier float64       `yaml:"multiplier" mapstructure:"multiplier"`
}

// GenerationConfig 章节生成配置
type GenerationConfig struct {
	// Mode delegate | local
	Mode        string   `yaml:"mode" mapstructure:"mode"`
	Async       bool     `yaml:"async" mapstructure:"async"`
	MaxAttempts int      `yaml:"max_attempts" mapstructure:"max_attempts"`
	AcceptScore float64  `yaml:"accept_score" mapstructure:"accept_score"`
	Criteria    []string `yaml:"criteria" mapstructure:"criteria"`
	SimilarTopK int      `yaml:"similar_top_k" mapstructure:"similar_top_k"`
	// RunTimeout 本地编排单次运行的总超时
	RunTimeout time.Duration `yaml:"run_timeout" mapstructure:"run_timeout"`
}

// WorkflowConfig 外部工作流引擎委托配置
type WorkflowConfig struct {
	GenerationURL string        `yaml:"generation_url" mapstructure:"generation_url"`
	UploadURL     string        `yaml:"upload_url" mapstructure:"upload_url"`
	Token         string        `yaml:"token" mapstructure:"token"`
	JWTSecret     string        `yaml:"jwt_secret" mapstructure:"jwt_secret"`
	Timeout       time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// CallbackConfig 回调签名配置
type CallbackConfig struct {
	Secret  string        `yaml:"secret" mapstructure:"secret"`
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
	MaxSkew time.Duration `yaml:"max_skew" mapstructure:"max_skew"`
}

// UploadConfig 文档摄入配置
type UploadConfig struct {
	MaxChunks        int           `yaml:"max_chunks" mapstructure:"max_chunks"`
	MaxChunkSize     int           `yaml:"max_chunk_size" mapstructure:"max_chunk_size"`
	DefaultChunkSize int           `yaml:"default_chunk_size" mapstructure:"default_chunk_size"`
	DefaultOverlap   int           `yaml:"default_overlap" mapstructure:"default_overlap"`
	MaxContentBytes  int           `yaml:"max_content_bytes" mapstructure:"max_content_bytes"`
	FetchTimeout     time.Duration `yaml:"fetch_timeout" mapstructure:"fetch_timeout"`
	MaxFetchBytes    int64         `yaml:"max_fetch_bytes" mapstructure:"max_fetch_bytes"`
}

// ObservabilityConfig 可观测性配置
type ObservabilityConfig struct {
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`
	Tracing TracingConfig `yaml:"tracing" mapstructure:"tracing"`
	Metrics MetricsConfig `yaml:"metrics" mapstructure:"metrics"`
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// TracingConfig 追踪配置
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled" mapstructure:"enabled"`
	Endpoint   string  `yaml:"endpoint" mapstructure:"endpoint"`
	SampleRate float64 `yaml:"sample_rate" mapstructure:"sample_rate"`
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Path    string `yaml:"path" mapstructure:"path"`
}

// SecurityConfig 安全配置
type SecurityConfig struct {
	Auth         AuthConfig      `yaml:"auth" mapstructure:"auth"`
	RateLimit    RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`
	CORS         CORSConfig      `yaml:"cors" mapstructure:"cors"`
	MaxBodyBytes int64           `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
}

// AuthConfig 入站 JWT 鉴权配置
type AuthConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Secret  string `yaml:"secret" mapstructure:"secret"`
	Issuer  string `yaml:"issuer" mapstructure:"issuer"`
}

// RateLimitConfig 固定窗口限流配置
type RateLimitConfig struct {
	Enabled           bool          `yaml:"enabled" mapstructure:"enabled"`
	RequestsPerWindow int           `yaml:"requests_per_window" mapstructure:"requests_per_window"`
	Window            time.Duration `yaml:"window" mapstructure:"window"`
	ClientHeader      string        `yaml:"client_header" mapstructure:"client_header"`
	APIKeys           []string      `yaml:"api_keys" mapstructure:"api_keys"`
}

// CORSConfig CORS 配置
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods" mapstructure:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers" mapstructure:"allowed_headers"`
}

// Validate 校验配置的一致性
func (c *Config) Validate() error {
	if c.LLM.DefaultProvider != "" {
		if _, ok := c.LLM.Providers[c.LLM.DefaultProvider]; !ok {
			return fmt.Errorf("llm.default_provider %q is not defined in llm.providers", c.LLM.DefaultProvider)
		}
	}
	if c.LLM.EvaluatorProvider != "" {
		if _, ok := c.LLM.Providers[c.LLM.EvaluatorProvider]; !ok {
			return fmt.Errorf("llm.evaluator_provider %q is not defined in llm.providers", c.LLM.EvaluatorProvider)
		}
	}
	for name, p := range c.LLM.Providers {
		switch p.Kind {
		case "", "eino", "openai":
		default:
			return fmt.Errorf("llm.providers.%s: unknown kind %q", name, p.Kind)
		}
	}
	switch c.Vector.Backend {
	case "", "milvus", "qdrant", "none":
	default:
		return fmt.Errorf("vector.backend: unknown backend %q", c.Vector.Backend)
	}
	switch c.Generation.Mode {
	case "delegate", "local":
	default:
		return fmt.Errorf("generation.mode must be delegate or local, got %q", c.Generation.Mode)
	}
	if c.Generation.MaxAttempts <= 0 {
		return fmt.Errorf("generation.max_attempts must be positive")
	}
	if c.Vector.ChunkOverlap >= c.Vector.ChunkSize {
		return fmt.Errorf("vector.chunk_overlap must be smaller than vector.chunk_size")
	}
	if c.Callback.Secret == "" && !c.App.IsDevelopment() {
		return fmt.Errorf("callback.secret is required outside development")
	}
	return nil
}
