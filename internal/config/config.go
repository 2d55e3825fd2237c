// Package config 提供配置加载和管理功能
package config

import (
	"time"
)

// Config 应用配置根结构
type Config struct {
	App           AppConfig           `yaml:"app" mapstructure:"app"`
	Server        ServerConfig        `yaml:"server" mapstructure:"server"`
	Database      DatabaseConfig      `yaml:"database" mapstructure:"database"`
	Cache         CacheConfig         `yaml:"cache" mapstructure:"cache"`
	Vector        VectorConfig        `yaml:"vector" mapstructure:"vector"`
	LLM           LLMConfig           `yaml:"llm" mapstructure:"llm"`
	Embedding     EmbeddingConfig     `yaml:"embedding" mapstructure:"embedding"`
	Messaging     MessagingConfig     `yaml:"messaging" mapstructure:"messaging"`
	Observability ObservabilityConfig `yaml:"observability" mapstructure:"observability"`
	Security      SecurityConfig      `yaml:"security" mapstructure:"security"`

	Classifier ClassifierConfig `yaml:"classifier" mapstructure:"classifier"`
	Retrieval  RetrievalConfig  `yaml:"retrieval" mapstructure:"retrieval"`
	Reasoning  ReasoningConfig  `yaml:"reasoning" mapstructure:"reasoning"`
	Stream     StreamConfig     `yaml:"stream" mapstructure:"stream"`
	Registry   RegistryConfig   `yaml:"registry" mapstructure:"registry"`
}

// AppConfig 应用基础配置
type AppConfig struct {
	Name    string `yaml:"name" mapstructure:"name"`
	Version string `yaml:"version" mapstructure:"version"`
	Env     string `yaml:"env" mapstructure:"env"`
	// InstanceID 实例标识，写入会话/任务的 owner 字段；为空时启动时自动生成
	InstanceID string `yaml:"instance_id" mapstructure:"instance_id"`
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
	// PublicBaseURL 用于拼接返回给客户端的 stream_url
	PublicBaseURL string `yaml:"public_base_url" mapstructure:"public_base_url"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Postgres PostgresConfig `yaml:"postgres" mapstructure:"postgres"`
}

// PostgresConfig PostgreSQL 配置
type PostgresConfig struct {
	Host            string        `yaml:"host" mapstructure:"host"`
	Port            int           `yaml:"port" mapstructure:"port"`
	User            string        `yaml:"user" mapstructure:"user"`
	Password        string        `yaml:"password" mapstructure:"password"`
	Database        string        `yaml:"database" mapstructure:"database"`
	SSLMode         string        `yaml:"ssl_mode" mapstructure:"ssl_mode"`
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" mapstructure:"conn_max_idle_time"`
	LogLevel        string        `yaml:"log_level" mapstructure:"log_level"`
	// TextSearchConfig 全文检索使用的 regconfig（english/simple）
	TextSearchConfig string `yaml:"text_search_config" mapstructure:"text_search_config"`
}

// CacheConfig 缓存配置
type CacheConfig struct {
	Redis RedisConfig `yaml:"redis" mapstructure:"redis"`
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
	KeyPrefix    string        `yaml:"key_prefix" mapstructure:"key_prefix"`
}

// VectorConfig 向量数据库配置
type VectorConfig struct {
	Milvus MilvusConfig `yaml:"milvus" mapstructure:"milvus"`
}

// MilvusConfig Milvus 配置
type MilvusConfig struct {
	Host               string `yaml:"host" mapstructure:"host"`
	Port               int    `yaml:"port" mapstructure:"port"`
	User               string `yaml:"user" mapstructure:"user"`
	Password           string `yaml:"password" mapstructure:"password"`
	CollectionPrefix   string `yaml:"collection_prefix" mapstructure:"collection_prefix"`
	Dimension          int    `yaml:"dimension" mapstructure:"dimension"`
	HNSWM              int    `yaml:"hnsw_m" mapstructure:"hnsw_m"`
	HNSWEfConstruction int    `yaml:"hnsw_ef_construction" mapstructure:"hnsw_ef_construction"`
	SearchEf           int    `yaml:"search_ef" mapstructure:"search_ef"`
}

// LLMConfig LLM 配置
type LLMConfig struct {
	DefaultProvider string                    `yaml:"default_provider" mapstructure:"default_provider"`
	Providers       map[string]ProviderConfig `yaml:"providers" mapstructure:"providers"`
}

// ProviderConfig LLM 提供商配置
type ProviderConfig struct {
	APIKey      string        `yaml:"api_key" mapstructure:"api_key"`
	BaseURL     string        `yaml:"base_url" mapstructure:"base_url"`
	Model       string        `yaml:"model" mapstructure:"model"`
	MaxTokens   int           `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature float64       `yaml:"temperature" mapstructure:"temperature"`
	Timeout     time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// EmbeddingConfig Embedding 配置
type EmbeddingConfig struct {
	Provider  string        `yaml:"provider" mapstructure:"provider"`
	APIKey    string        `yaml:"api_key" mapstructure:"api_key"`
	Model     string        `yaml:"model" mapstructure:"model"`
	Dimension int           `yaml:"dimension" mapstructure:"dimension"`
	BatchSize int           `yaml:"batch_size" mapstructure:"batch_size"`
	Endpoint  string        `yaml:"endpoint" mapstructure:"endpoint"`
	Timeout   time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// MessagingConfig 消息队列配置
type MessagingConfig struct {
	RedisStream RedisStreamConfig `yaml:"redis_stream" mapstructure:"redis_stream"`
}

// RedisStreamConfig Redis Stream 配置
type RedisStreamConfig struct {
	MaxLen              int           `yaml:"max_len" mapstructure:"max_len"`
	ConsumerGroupPrefix string        `yaml:"consumer_group_prefix" mapstructure:"consumer_group_prefix"`
	BlockTimeout        time.Duration `yaml:"block_timeout" mapstructure:"block_timeout"`
	ClaimInterval       time.Duration `yaml:"claim_interval" mapstructure:"claim_interval"`
	RetryLimit          int           `yaml:"retry_limit" mapstructure:"retry_limit"`
	RetryBackoff        BackoffConfig `yaml:"retry_backoff" mapstructure:"retry_backoff"`
}

// BackoffConfig 退避配置
type BackoffConfig struct {
	Initial    time.Duration `yaml:"initial" mapstructure:"initial"`
	Max        time.Duration `yaml:"max" mapstructure:"max"`
	Multiplier float64       `yaml:"multiplier" mapstructure:"multiplier"`
}

// RetryConfig 外部调用重试配置
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts" mapstructure:"max_attempts"`
	Backoff     BackoffConfig `yaml:"backoff" mapstructure:"backoff"`
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
	JWT         JWTConfig         `yaml:"jwt" mapstructure:"jwt"`
	StreamToken StreamTokenConfig `yaml:"stream_token" mapstructure:"stream_token"`
	RateLimit   RateLimitConfig   `yaml:"rate_limit" mapstructure:"rate_limit"`
	CORS        CORSConfig        `yaml:"cors" mapstructure:"cors"`
}

// JWTConfig 外部身份服务签发的访问令牌校验配置
type JWTConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Secret  string `yaml:"secret" mapstructure:"secret"`
	Issuer  string `yaml:"issuer" mapstructure:"issuer"`
}

// StreamTokenConfig 流地址签名配置
type StreamTokenConfig struct {
	Enabled bool          `yaml:"enabled" mapstructure:"enabled"`
	Secret  string        `yaml:"secret" mapstructure:"secret"`
	TTL     time.Duration `yaml:"ttl" mapstructure:"ttl"`
}

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled" mapstructure:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
}

// CORSConfig CORS 配置
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods" mapstructure:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers" mapstructure:"allowed_headers"`
}

// ClassifierConfig 意图分类配置
type ClassifierConfig struct {
	// Mode rules | llm
	Mode         string        `yaml:"mode" mapstructure:"mode"`
	Provider     string        `yaml:"provider" mapstructure:"provider"`
	ModelVersion string        `yaml:"model_version" mapstructure:"model_version"`
	Timeout      time.Duration `yaml:"timeout" mapstructure:"timeout"`
	CacheTTL     time.Duration `yaml:"cache_ttl" mapstructure:"cache_ttl"`
}

// FusionWeights 融合权重
type FusionWeights struct {
	Semantic float64 `yaml:"semantic" mapstructure:"semantic"`
	Keyword  float64 `yaml:"keyword" mapstructure:"keyword"`
	// MetadataBoost 精确标签命中时的加分（加法）
	MetadataBoost float64 `yaml:"metadata_boost" mapstructure:"metadata_boost"`
}

// RetrievalConfig 混合检索配置
type RetrievalConfig struct {
	Weights FusionWeights `yaml:"weights" mapstructure:"weights"`
	// StrategyWeights 按策略覆盖权重（键为策略名）
	StrategyWeights map[string]FusionWeights `yaml:"strategy_weights" mapstructure:"strategy_weights"`
	TopK            int                      `yaml:"top_k" mapstructure:"top_k"`
	ChannelTopN     int                      `yaml:"channel_top_n" mapstructure:"channel_top_n"`
	ChannelTimeout  time.Duration            `yaml:"channel_timeout" mapstructure:"channel_timeout"`
	Retry           RetryConfig              `yaml:"retry" mapstructure:"retry"`
	ChunkRunes      int                      `yaml:"chunk_runes" mapstructure:"chunk_runes"`
	ChunkOverlap    int                      `yaml:"chunk_overlap" mapstructure:"chunk_overlap"`
}

// ReasoningConfig 推理链配置
type ReasoningConfig struct {
	Provider            string        `yaml:"provider" mapstructure:"provider"`
	MinEvidencePerIssue int           `yaml:"min_evidence_per_issue" mapstructure:"min_evidence_per_issue"`
	MinEvidenceScore    float64       `yaml:"min_evidence_score" mapstructure:"min_evidence_score"`
	StageTimeout        time.Duration `yaml:"stage_timeout" mapstructure:"stage_timeout"`
	StageAttempts       int           `yaml:"stage_attempts" mapstructure:"stage_attempts"`
	RetryBackoff        BackoffConfig `yaml:"retry_backoff" mapstructure:"retry_backoff"`
	ProviderRPS         float64       `yaml:"provider_rps" mapstructure:"provider_rps"`
	ProviderBurst       int           `yaml:"provider_burst" mapstructure:"provider_burst"`
	MaxEvidenceRunes    int           `yaml:"max_evidence_runes" mapstructure:"max_evidence_runes"`
}

// AdmissionMode 超限处理方式
const (
	AdmissionModeReject = "reject"
	AdmissionModeQueue  = "queue"
)

// StreamConfig 流式编排配置
type StreamConfig struct {
	MaxConcurrent    int           `yaml:"max_concurrent" mapstructure:"max_concurrent"`
	AdmissionMode    string        `yaml:"admission_mode" mapstructure:"admission_mode"`
	QueueSize        int           `yaml:"queue_size" mapstructure:"queue_size"`
	QueueTimeout     time.Duration `yaml:"queue_timeout" mapstructure:"queue_timeout"`
	MaxActivePerUser int           `yaml:"max_active_per_user" mapstructure:"max_active_per_user"`
	ChunkRunes       int           `yaml:"chunk_runes" mapstructure:"chunk_runes"`
	BufferTTL        time.Duration `yaml:"buffer_ttl" mapstructure:"buffer_ttl"`
	BufferMaxLen     int64         `yaml:"buffer_max_len" mapstructure:"buffer_max_len"`
	DisconnectGrace  time.Duration `yaml:"disconnect_grace" mapstructure:"disconnect_grace"`
	PollBlock        time.Duration `yaml:"poll_block" mapstructure:"poll_block"`
	HeartbeatEvery   time.Duration `yaml:"heartbeat_every" mapstructure:"heartbeat_every"`
}

// RegistryConfig 会话/任务注册表配置
type RegistryConfig struct {
	ReaperEnabled    bool          `yaml:"reaper_enabled" mapstructure:"reaper_enabled"`
	ReaperInterval   time.Duration `yaml:"reaper_interval" mapstructure:"reaper_interval"`
	OrphanTimeout    time.Duration `yaml:"orphan_timeout" mapstructure:"orphan_timeout"`
	SessionRetention time.Duration `yaml:"session_retention" mapstructure:"session_retention"`
	TaskRetention    time.Duration `yaml:"task_retention" mapstructure:"task_retention"`
	CleanupInterval  time.Duration `yaml:"cleanup_interval" mapstructure:"cleanup_interval"`
	SweepBatch       int           `yaml:"sweep_batch" mapstructure:"sweep_batch"`
}
