package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// IndexConfig 定义了 Milvus 集合中索引的配置。
type IndexConfig struct {
	IndexType string                 `yaml:"indexType"` // 索引类型 (例如: "IVF_FLAT", "HNSW")
	Params    map[string]interface{} `yaml:"params"`    // 索引参数 (例如: {"nlist": 128})
}

// MilvusConfig 定义了 Milvus 数据库的连接和集合配置。
// 度量方式固定为 COSINE，分块字段由向量索引代码定义。
type MilvusConfig struct {
	Address        string      `yaml:"address"`        // Milvus 服务地址
	CollectionName string      `yaml:"collectionName"` // 集合名称
	Description    string      `yaml:"description"`    // 集合描述
	Index          IndexConfig `yaml:"index"`          // 索引配置
}

// RedisConfig 定义了 Redis 数据库的连接配置。
type RedisConfig struct {
	Address  string `yaml:"address"`  // Redis 服务器地址 (例如: "localhost:6379")
	Password string `yaml:"password"` // Redis 密码
	DB       int    `yaml:"db"`       // Redis 数据库编号
}

// MySQLConfig 定义了 MySQL 数据库的连接配置。
type MySQLConfig struct {
	Address         string `yaml:"address"`         // MySQL 服务器地址
	Username        string `yaml:"username"`        // 用户名
	Password        string `yaml:"password"`        // 密码
	Database        string `yaml:"database"`        // 数据库名称
	MaxOpenConns    int    `yaml:"maxOpenConns"`    // 最大打开连接数
	MaxIdleConns    int    `yaml:"maxIdleConns"`    // 最大空闲连接数
	ConnMaxLifetime int    `yaml:"connMaxLifetime"` // 连接最大生命周期 (秒)
}

// MinIOConfig 定义了 MinIO 对象存储的连接配置。
type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`  // MinIO 服务端点
	AccessKey string `yaml:"accessKey"` // 访问密钥
	SecretKey string `yaml:"secretKey"` // Secret 密钥
	Bucket    string `yaml:"bucket"`    // 上传文件的存储桶
	Secure    bool   `yaml:"secure"`    // 是否使用HTTPS
}

// MongoConfig 定义了 MongoDB 数据库的连接配置。
type MongoConfig struct {
	Address    string `yaml:"address"`    // MongoDB 连接 URI
	Username   string `yaml:"username"`   // 用户名
	Password   string `yaml:"password"`   // 密码
	Database   string `yaml:"database"`   // 数据库名称
	Collection string `yaml:"collection"` // 查询日志集合
}

// KafkaConfig 定义了 Kafka 消息队列的连接配置。
type KafkaConfig struct {
	Brokers    []string `yaml:"brokers"`    // Kafka Broker 地址列表
	UsageTopic string   `yaml:"usageTopic"` // 用量事件主题
}

// DatabaseConfigs 包含所有外部存储的连接配置。
type DatabaseConfigs struct {
	Milvus  MilvusConfig `yaml:"milvus"`
	Redis   RedisConfig  `yaml:"redis"`
	MySQL   MySQLConfig  `yaml:"mysql"`
	MinIO   MinIOConfig  `yaml:"minio"`
	MongoDB MongoConfig  `yaml:"mongodb"`
	Kafka   KafkaConfig  `yaml:"kafka"`
}

// StorageConfig 为每个存储关注点选择后端。空值或 "memory" 表示进程内实现。
type StorageConfig struct {
	Registry string `yaml:"registry"` // "memory" 或 "mysql"
	Files    string `yaml:"files"`    // "memory" 或 "minio"
	Sessions string `yaml:"sessions"` // "memory" 或 "redis"
	QueryLog string `yaml:"queryLog"` // "" 或 "mongodb"
	Usage    string `yaml:"usage"`    // "" 或 "kafka"
}

// AppInfo 对应 'app' 部分，包含应用程序的基本信息。
type AppInfo struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"` // 例如: "development", "production"
}

// ServerConfig 定义了 HTTP 服务的监听配置。
type ServerConfig struct {
	Address         string `yaml:"address"`
	ShutdownTimeout string `yaml:"shutdownTimeout"`
}

// AuthConfig 用于配置认证方法和相关设置。
type AuthConfig struct {
	Method      string `yaml:"method"`      // "none" 或 "jwt"
	JwtSecret   string `yaml:"jwtSecret"`   // JWT 密钥
	DefaultUser string `yaml:"defaultUser"` // method 为 none 时使用的用户
}

// LoggerConfig 定义了日志记录器的配置。
type LoggerConfig struct {
	Level string `yaml:"level"` // 日志级别 (例如: "info", "debug", "warn", "error")
}

// ProviderRateLimit 定义了对单个外部提供商的共享令牌桶限流。
type ProviderRateLimit struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// EmbeddingConfig 定义了向量化提供商及客户端策略。
type EmbeddingConfig struct {
	Provider       string            `yaml:"provider"` // "openai", "gemini", "ollama", "huggingface"
	Model          string            `yaml:"model"`
	APIKey         string            `yaml:"apiKey"`
	BaseURL        string            `yaml:"baseURL"`
	BatchSize      int               `yaml:"batchSize"`
	MaxBatchBytes  int               `yaml:"maxBatchBytes"`
	Concurrency    int               `yaml:"concurrency"`
	Timeout        string            `yaml:"timeout"`
	MaxRetries     int               `yaml:"maxRetries"`
	InitialBackoff string            `yaml:"initialBackoff"`
	MaxBackoff     string            `yaml:"maxBackoff"`
	RateLimit      ProviderRateLimit `yaml:"rateLimit"`
}

// LLMConfig 定义了生成模型提供商及客户端策略。
type LLMConfig struct {
	Provider    string            `yaml:"provider"` // "openai", "gemini", "ollama"
	Model       string            `yaml:"model"`
	APIKey      string            `yaml:"apiKey"`
	BaseURL     string            `yaml:"baseURL"`
	Temperature float32           `yaml:"temperature"`
	MaxTokens   int               `yaml:"maxTokens"`
	Timeout     string            `yaml:"timeout"`
	RateLimit   ProviderRateLimit `yaml:"rateLimit"`
}

// ChunkingConfig 定义了分块策略，单位为 token（以空白分隔的词）。
type ChunkingConfig struct {
	TargetTokens  int `yaml:"targetTokens"`
	OverlapTokens int `yaml:"overlapTokens"`
	MinTokens     int `yaml:"minTokens"`
	MaxTokens     int `yaml:"maxTokens"`
	// Tokenizer 为 "words"（默认）或 tiktoken 编码名，例如 "cl100k_base"。
	Tokenizer string `yaml:"tokenizer"`
}

// RetrievalConfig 包含检索与回答的策略参数。
type RetrievalConfig struct {
	TopK                  int     `yaml:"topK"`
	CandidateMultiplier   int     `yaml:"candidateMultiplier"`
	MinScore              float64 `yaml:"minScore"`
	HistoryTurns          int     `yaml:"historyTurns"`
	MaxFollowUps          int     `yaml:"maxFollowUps"`
	NoEvidenceCeiling     float64 `yaml:"noEvidenceCeiling"`
	AnswerWithoutEvidence bool    `yaml:"answerWithoutEvidence"`
	SummaryCacheSize      int     `yaml:"summaryCacheSize"`
	SummaryMaxChunks      int     `yaml:"summaryMaxChunks"`
}

// VectorIndexConfig 选择向量索引后端。
type VectorIndexConfig struct {
	Backend    string `yaml:"backend"`    // "memory", "chromem", "milvus"
	Path       string `yaml:"path"`       // chromem 持久化目录，空表示仅内存
	Collection string `yaml:"collection"` // chromem 集合名称
	Dimension  int    `yaml:"dimension"`  // 0 表示由第一次写入决定
}

// UploadConfig 定义了上传校验规则。
type UploadConfig struct {
	AllowedExtensions []string `yaml:"allowedExtensions"`
	MaxBytes          int64    `yaml:"maxBytes"`
	UnidocLicenseKey  string   `yaml:"unidocLicenseKey"`
}

// MiddlewareConfig 包含所有中间件的配置。
type MiddlewareConfig struct {
	RateLimiter    RateLimiterConfig    `yaml:"rateLimiter"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuitBreaker"`
}

// RateLimiterConfig 定义了按客户端的令牌桶限流配置。
type RateLimiterConfig struct {
	Enabled     bool              `yaml:"enabled"`
	TokenBucket TokenBucketConfig `yaml:"tokenBucket"`
}

// TokenBucketConfig 定义了令牌桶算法的配置。
type TokenBucketConfig struct {
	Rate     float64 `yaml:"rate"` // 每秒速率
	Capacity int     `yaml:"capacity"`
}

// CircuitBreakerConfig 定义了熔断器的配置。
type CircuitBreakerConfig struct {
	Enabled          bool   `yaml:"enabled"`
	FailureThreshold uint32 `yaml:"failureThreshold"`
	SuccessThreshold uint32 `yaml:"successThreshold"`
	Timeout          string `yaml:"timeout"` // 例如: "30s"
}

// AppConfig 是整个 YAML 文件的根结构。
type AppConfig struct {
	App         AppInfo           `yaml:"app"`
	Server      ServerConfig      `yaml:"server"`
	Auth        AuthConfig        `yaml:"auth"`
	Logger      LoggerConfig      `yaml:"logger"`
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	LLM         LLMConfig         `yaml:"llm"`
	Chunking    ChunkingConfig    `yaml:"chunking"`
	Retrieval   RetrievalConfig   `yaml:"retrieval"`
	VectorIndex VectorIndexConfig `yaml:"vectorIndex"`
	Upload      UploadConfig      `yaml:"upload"`
	Storage     StorageConfig     `yaml:"storage"`
	Databases   DatabaseConfigs   `yaml:"databases"`
	Middleware  MiddlewareConfig  `yaml:"middleware"`
}

// LoadConfig 从指定路径加载并解析 YAML 配置文件，然后补全默认值、应用环境变量覆盖并校验。
func LoadConfig(path string) (*AppConfig, error) {
	yamlFile, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("无法读取 YAML 文件 '%s': %w", path, err)
	}
	return Parse(yamlFile)
}

// Parse 解析 YAML 内容。默认值在解码前填入，文件中显式写出的零值（如 minScore: 0）会被保留。
func Parse(data []byte) (*AppConfig, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("解析 YAML 文件失败: %w", err)
	}
	cfg.ApplyEnv(os.Getenv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default 返回一份只包含默认值的配置，所有存储都使用进程内实现。
func Default() *AppConfig {
	var cfg AppConfig
	cfg.applyDefaults()
	return &cfg
}

// applyDefaults 为零值字段填充默认值，在解码 YAML 之前调用。
func (c *AppConfig) applyDefaults() {
	setString(&c.App.Name, "brandbook-rag")
	setString(&c.Server.Address, ":8080")
	setString(&c.Server.ShutdownTimeout, "10s")
	setString(&c.Auth.Method, "none")
	setString(&c.Auth.DefaultUser, "default_user")
	setString(&c.Logger.Level, "info")

	setString(&c.Embedding.Provider, "openai")
	setString(&c.Embedding.Model, "text-embedding-3-small")
	setInt(&c.Embedding.BatchSize, 100)
	setInt(&c.Embedding.MaxBatchBytes, 256*1024)
	setInt(&c.Embedding.Concurrency, 2)
	setString(&c.Embedding.Timeout, "30s")
	setInt(&c.Embedding.MaxRetries, 4)
	setString(&c.Embedding.InitialBackoff, "500ms")
	setString(&c.Embedding.MaxBackoff, "8s")
	setFloat(&c.Embedding.RateLimit.RPS, 5)
	setInt(&c.Embedding.RateLimit.Burst, 5)

	setString(&c.LLM.Provider, "openai")
	setString(&c.LLM.Model, "gpt-4o-mini")
	if c.LLM.Temperature == 0 {
		c.LLM.Temperature = 0.1
	}
	setInt(&c.LLM.MaxTokens, 800)
	setString(&c.LLM.Timeout, "60s")
	setFloat(&c.LLM.RateLimit.RPS, 2)
	setInt(&c.LLM.RateLimit.Burst, 2)

	setInt(&c.Chunking.TargetTokens, 500)
	setInt(&c.Chunking.OverlapTokens, 50)
	setInt(&c.Chunking.MinTokens, 5)
	setInt(&c.Chunking.MaxTokens, 800)
	setString(&c.Chunking.Tokenizer, "words")

	setInt(&c.Retrieval.TopK, 5)
	setInt(&c.Retrieval.CandidateMultiplier, 2)
	setFloat(&c.Retrieval.MinScore, 0.3)
	setInt(&c.Retrieval.HistoryTurns, 6)
	setInt(&c.Retrieval.MaxFollowUps, 3)
	setFloat(&c.Retrieval.NoEvidenceCeiling, 0.3)
	setInt(&c.Retrieval.SummaryCacheSize, 128)
	setInt(&c.Retrieval.SummaryMaxChunks, 60)

	setString(&c.VectorIndex.Backend, "memory")
	setString(&c.VectorIndex.Collection, "playbook_chunks")

	if len(c.Upload.AllowedExtensions) == 0 {
		c.Upload.AllowedExtensions = []string{"pdf", "pptx", "ppt", "docx", "doc", "xlsx", "txt", "md", "html"}
	}
	if c.Upload.MaxBytes == 0 {
		c.Upload.MaxBytes = 50 * 1024 * 1024
	}

	setString(&c.Storage.Registry, "memory")
	setString(&c.Storage.Files, "memory")
	setString(&c.Storage.Sessions, "memory")
	setString(&c.Databases.Milvus.CollectionName, "playbook_chunks")
	setString(&c.Databases.Milvus.Index.IndexType, "HNSW")
	setString(&c.Databases.MinIO.Bucket, "playbooks")
	setString(&c.Databases.MongoDB.Database, "brandbook")
	setString(&c.Databases.MongoDB.Collection, "query_log")
	setString(&c.Databases.Kafka.UsageTopic, "rag_usage")

	if c.Middleware.RateLimiter.TokenBucket.Rate == 0 {
		// 每分钟 10 次
		c.Middleware.RateLimiter.TokenBucket.Rate = 10.0 / 60.0
	}
	setInt(&c.Middleware.RateLimiter.TokenBucket.Capacity, 10)
	if c.Middleware.CircuitBreaker.FailureThreshold == 0 {
		c.Middleware.CircuitBreaker.FailureThreshold = 5
	}
	if c.Middleware.CircuitBreaker.SuccessThreshold == 0 {
		c.Middleware.CircuitBreaker.SuccessThreshold = 1
	}
	setString(&c.Middleware.CircuitBreaker.Timeout, "30s")
}

// ApplyEnv 用环境变量覆盖敏感配置，getenv 通常是 os.Getenv。
func (c *AppConfig) ApplyEnv(getenv func(string) string) {
	keys := map[string]string{
		"openai":      getenv("OPENAI_API_KEY"),
		"gemini":      getenv("GEMINI_API_KEY"),
		"huggingface": getenv("HUGGINGFACE_API_KEY"),
	}
	if c.Embedding.APIKey == "" {
		c.Embedding.APIKey = keys[c.Embedding.Provider]
	}
	if c.LLM.APIKey == "" {
		c.LLM.APIKey = keys[c.LLM.Provider]
	}
	if v := getenv("JWT_SECRET"); v != "" {
		c.Auth.JwtSecret = v
	}
	if v := getenv("UNIDOC_LICENSE_API_KEY"); v != "" {
		c.Upload.UnidocLicenseKey = v
	}
}

// Validate 检查配置之间的约束。
func (c *AppConfig) Validate() error {
	for name, d := range map[string]string{
		"server.shutdownTimeout":            c.Server.ShutdownTimeout,
		"embedding.timeout":                 c.Embedding.Timeout,
		"embedding.initialBackoff":          c.Embedding.InitialBackoff,
		"embedding.maxBackoff":              c.Embedding.MaxBackoff,
		"llm.timeout":                       c.LLM.Timeout,
		"middleware.circuitBreaker.timeout": c.Middleware.CircuitBreaker.Timeout,
	} {
		if _, err := time.ParseDuration(d); err != nil {
			return fmt.Errorf("配置项 %s 不是合法的时长 %q: %w", name, d, err)
		}
	}
	for name, v := range map[string]int{
		"embedding.batchSize":           c.Embedding.BatchSize,
		"embedding.concurrency":         c.Embedding.Concurrency,
		"llm.maxTokens":                 c.LLM.MaxTokens,
		"chunking.targetTokens":         c.Chunking.TargetTokens,
		"retrieval.topK":                c.Retrieval.TopK,
		"retrieval.candidateMultiplier": c.Retrieval.CandidateMultiplier,
	} {
		if v <= 0 {
			return fmt.Errorf("配置项 %s 必须大于 0，当前为 %d", name, v)
		}
	}
	// 这两项允许显式写 0：不重试，不带历史对话。
	for name, v := range map[string]int{
		"embedding.maxRetries":   c.Embedding.MaxRetries,
		"retrieval.historyTurns": c.Retrieval.HistoryTurns,
	} {
		if v < 0 {
			return fmt.Errorf("配置项 %s 不能为负数，当前为 %d", name, v)
		}
	}
	if c.Chunking.OverlapTokens >= c.Chunking.TargetTokens {
		return fmt.Errorf("chunking.overlapTokens (%d) 必须小于 targetTokens (%d)", c.Chunking.OverlapTokens, c.Chunking.TargetTokens)
	}
	if c.Chunking.MaxTokens < c.Chunking.TargetTokens {
		return fmt.Errorf("chunking.maxTokens (%d) 不能小于 targetTokens (%d)", c.Chunking.MaxTokens, c.Chunking.TargetTokens)
	}
	if c.Retrieval.MinScore < 0 || c.Retrieval.MinScore > 1 {
		return fmt.Errorf("retrieval.minScore 必须位于 [0,1]，当前为 %v", c.Retrieval.MinScore)
	}
	switch strings.ToLower(c.Auth.Method) {
	case "none":
	case "jwt":
		if c.Auth.JwtSecret == "" {
			return fmt.Errorf("auth.method 为 jwt 时必须设置 jwtSecret")
		}
	default:
		return fmt.Errorf("不支持的认证方法: %s", c.Auth.Method)
	}
	switch c.VectorIndex.Backend {
	case "memory", "chromem":
	case "milvus":
		if c.VectorIndex.Dimension <= 0 {
			return fmt.Errorf("vectorIndex.backend 为 milvus 时必须设置 vectorIndex.dimension")
		}
	default:
		return fmt.Errorf("不支持的向量索引后端: %s", c.VectorIndex.Backend)
	}
	return nil
}

// Duration 解析一个已经校验过的时长字符串，解析失败时返回 fallback。
func Duration(value string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func setString(field *string, value string) {
	if strings.TrimSpace(*field) == "" {
		*field = value
	}
}

func setInt(field *int, value int) {
	if *field == 0 {
		*field = value
	}
}

func setFloat(field *float64, value float64) {
	if *field == 0 {
		*field = value
	}
}
