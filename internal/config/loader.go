// Package config 提供配置加载功能
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/viper"
)

// Load 加载配置文件
// 按优先级加载：默认配置 -> 环境配置 -> 环境变量
func Load() (*Config, error) {
	dir := os.Getenv("CONFIG_DIR")
	if dir == "" {
		dir = "configs"
	}
	return LoadFrom(dir)
}

// LoadFrom 从指定目录加载配置；config.yaml 缺失时仅使用默认值与环境变量
func LoadFrom(dir string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	// 1. 加载默认配置
	if err := loadConfigFile(v, filepath.Join(dir, "config.yaml"), true); err != nil {
		return nil, err
	}

	// 2. 加载环境特定配置
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}
	envFile := filepath.Join(dir, fmt.Sprintf("config.%s.yaml", env))
	if err := loadConfigFile(v, envFile, true); err != nil {
		return nil, err
	}

	// 3. 绑定环境变量 (直接覆盖)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// 设置默认值 (兜底)
	setDefaults(v)

	// 解析配置
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// loadConfigFile 读取文件，执行环境变量替换，并加载到 viper
func loadConfigFile(v *viper.Viper, path string, optional bool) error {
	content, err := os.ReadFile(path)
	if err != nil {
		if optional && os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	// 执行环境变量替换
	expanded := expandEnv(string(content))

	// 加载到 viper
	reader := strings.NewReader(expanded)
	if v.ConfigFileUsed() == "" {
		if err := v.ReadConfig(reader); err != nil {
			return fmt.Errorf("failed to read processed config %s: %w", path, err)
		}
		// 手动标记已加载文件，防止后续 ReadInConfig 报错
		v.SetConfigFile(path)
	} else {
		if err := v.MergeConfig(reader); err != nil {
			return fmt.Errorf("failed to merge processed config %s: %w", path, err)
		}
	}

	return nil
}

// envPattern 匹配 ${VAR} 或 ${VAR:default}
// g1: 变量名, g2: 默认值部分（含冒号）, g3: 默认值内容
var envPattern = regexp.MustCompile(`\${(\w+)(:([^}]*))?}`)

// expandEnv 替换字符串中的 ${VAR:default} 占位符
func expandEnv(s string) string {
	re := envPattern
	return re.ReplaceAllStringFunc(s, func(match string) string {
		submatch := re.FindStringSubmatch(match)
		key := submatch[1]
		hasDefault := submatch[2] != ""
		defVal := submatch[3]

		val, ok := os.LookupEnv(key)
		if ok {
			return val
		}
		if hasDefault {
			return defVal
		}
		return match // 保留原样以便识别未定义的变量
	})
}

// MustLoad 加载配置，失败时 panic
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// setDefaults 设置配置默认值
func setDefaults(v *viper.Viper) {
	// 应用默认值
	v.SetDefault("app.name", "legal-rag-api")
	v.SetDefault("app.version", "v0.0.0")
	v.SetDefault("app.env", "development")

	// HTTP 服务器默认值
	v.SetDefault("server.http.host", "0.0.0.0")
	v.SetDefault("server.http.port", 8080)
	v.SetDefault("server.http.read_timeout", "30s")
	// SSE 连接为长连接，写超时置 0 由流自身控制
	v.SetDefault("server.http.write_timeout", "0s")
	v.SetDefault("server.http.idle_timeout", "120s")

	// 数据库默认值
	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.user", "postgres")
	v.SetDefault("database.postgres.database", "legal_rag")
	v.SetDefault("database.postgres.ssl_mode", "disable")
	v.SetDefault("database.postgres.max_open_conns", 50)
	v.SetDefault("database.postgres.max_idle_conns", 10)
	v.SetDefault("database.postgres.conn_max_lifetime", "30m")
	v.SetDefault("database.postgres.conn_max_idle_time", "5m")
	v.SetDefault("database.postgres.log_level", "warn")
	v.SetDefault("database.postgres.text_search_config", "english")

	// Redis 默认值
	v.SetDefault("cache.redis.host", "localhost")
	v.SetDefault("cache.redis.port", 6379)
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("cache.redis.pool_size", 100)
	v.SetDefault("cache.redis.min_idle_conns", 10)
	v.SetDefault("cache.redis.dial_timeout", "5s")
	v.SetDefault("cache.redis.read_timeout", "3s")
	v.SetDefault("cache.redis.write_timeout", "3s")
	v.SetDefault("cache.redis.key_prefix", "legal")

	// Milvus 默认值
	v.SetDefault("vector.milvus.host", "localhost")
	v.SetDefault("vector.milvus.port", 19530)
	v.SetDefault("vector.milvus.collection_prefix", "legal")
	v.SetDefault("vector.milvus.dimension", 1024)
	v.SetDefault("vector.milvus.hnsw_m", 16)
	v.SetDefault("vector.milvus.hnsw_ef_construction", 200)
	v.SetDefault("vector.milvus.search_ef", 128)

	// LLM / Embedding 默认值
	v.SetDefault("llm.default_provider", "openrouter")
	v.SetDefault("embedding.provider", "openai")
	v.SetDefault("embedding.dimension", 1024)
	v.SetDefault("embedding.batch_size", 32)
	v.SetDefault("embedding.timeout", "15s")

	// 消息队列默认值
	v.SetDefault("messaging.redis_stream.max_len", 100000)
	v.SetDefault("messaging.redis_stream.consumer_group_prefix", "legal")
	v.SetDefault("messaging.redis_stream.block_timeout", "5s")
	v.SetDefault("messaging.redis_stream.claim_interval", "30s")
	v.SetDefault("messaging.redis_stream.retry_limit", 5)
	v.SetDefault("messaging.redis_stream.retry_backoff.initial", "1s")
	v.SetDefault("messaging.redis_stream.retry_backoff.max", "60s")
	v.SetDefault("messaging.redis_stream.retry_backoff.multiplier", 2.0)

	// 可观测性默认值
	v.SetDefault("observability.logging.level", "info")
	v.SetDefault("observability.logging.format", "json")
	v.SetDefault("observability.tracing.enabled", false)
	v.SetDefault("observability.tracing.endpoint", "localhost:4317")
	v.SetDefault("observability.tracing.sample_rate", 1.0)
	v.SetDefault("observability.metrics.enabled", true)
	v.SetDefault("observability.metrics.path", "/metrics")

	// 安全默认值
	v.SetDefault("security.jwt.enabled", false)
	v.SetDefault("security.jwt.issuer", "legal-identity")
	v.SetDefault("security.stream_token.enabled", false)
	v.SetDefault("security.stream_token.ttl", "60s")
	v.SetDefault("security.rate_limit.enabled", true)
	v.SetDefault("security.rate_limit.requests_per_minute", 120)

	// 意图分类默认值
	v.SetDefault("classifier.mode", "rules")
	v.SetDefault("classifier.model_version", "classify_intent_v1")
	v.SetDefault("classifier.timeout", "5s")
	v.SetDefault("classifier.cache_ttl", "24h")

	// 混合检索默认值
	v.SetDefault("retrieval.weights.semantic", 0.6)
	v.SetDefault("retrieval.weights.keyword", 0.3)
	v.SetDefault("retrieval.weights.metadata_boost", 0.1)
	v.SetDefault("retrieval.top_k", 8)
	v.SetDefault("retrieval.channel_top_n", 20)
	v.SetDefault("retrieval.channel_timeout", "8s")
	v.SetDefault("retrieval.retry.max_attempts", 3)
	v.SetDefault("retrieval.retry.backoff.initial", "200ms")
	v.SetDefault("retrieval.retry.backoff.max", "2s")
	v.SetDefault("retrieval.retry.backoff.multiplier", 2.0)
	v.SetDefault("retrieval.chunk_runes", 1200)
	v.SetDefault("retrieval.chunk_overlap", 120)

	// 推理链默认值
	v.SetDefault("reasoning.min_evidence_per_issue", 2)
	v.SetDefault("reasoning.min_evidence_score", 0.0)
	v.SetDefault("reasoning.stage_timeout", "45s")
	v.SetDefault("reasoning.stage_attempts", 2)
	v.SetDefault("reasoning.retry_backoff.initial", "500ms")
	v.SetDefault("reasoning.retry_backoff.max", "4s")
	v.SetDefault("reasoning.retry_backoff.multiplier", 2.0)
	v.SetDefault("reasoning.provider_rps", 5.0)
	v.SetDefault("reasoning.provider_burst", 5)
	v.SetDefault("reasoning.max_evidence_runes", 1500)

	// 流式编排默认值
	v.SetDefault("stream.max_concurrent", 32)
	v.SetDefault("stream.admission_mode", AdmissionModeReject)
	v.SetDefault("stream.queue_size", 64)
	v.SetDefault("stream.queue_timeout", "10s")
	v.SetDefault("stream.max_active_per_user", 3)
	v.SetDefault("stream.chunk_runes", 160)
	v.SetDefault("stream.buffer_ttl", "1h")
	v.SetDefault("stream.buffer_max_len", 10000)
	v.SetDefault("stream.disconnect_grace", "30s")
	v.SetDefault("stream.poll_block", "5s")
	v.SetDefault("stream.heartbeat_every", "10s")

	// 注册表默认值
	v.SetDefault("registry.reaper_enabled", true)
	v.SetDefault("registry.reaper_interval", "30s")
	v.SetDefault("registry.orphan_timeout", "2m")
	v.SetDefault("registry.session_retention", "1h")
	v.SetDefault("registry.task_retention", "24h")
	v.SetDefault("registry.cleanup_interval", "5m")
	v.SetDefault("registry.sweep_batch", 100)
}
