// Package config loads and freezes the pipeline's tunables. The
// security-relevant values have a hard-coded floor that an environment
// variable can raise but never lower
// (§6), following the teacher gateway's own layered-viper approach.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full, frozen tunable set. Load() returns a *Config that is
// never mutated again; there is no fsnotify-style hot reload, because §6
// requires configuration be frozen after startup (see DESIGN.md for why the
// teacher's fsnotify dependency is dropped here).
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Security   SecurityConfig   `mapstructure:"security"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	Conversation ConversationConfig `mapstructure:"conversation"`
	Models     ModelsConfig     `mapstructure:"models"`
	Context    ContextConfig    `mapstructure:"context"`
	Pipeline   PipelineConfig   `mapstructure:"pipeline"`
	Log        LogConfig        `mapstructure:"log"`
	Analytics  AnalyticsConfig  `mapstructure:"analytics"`
}

type ServerConfig struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	Mode              string        `mapstructure:"mode"` // debug, release
	CORSOrigins       []string      `mapstructure:"cors_origins"`
	TrustedProxies    []string      `mapstructure:"trusted_proxies"`
	MetricsEnabled    bool          `mapstructure:"metrics_enabled"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
}

type SecurityConfig struct {
	MaxInputLength  int           `mapstructure:"max_input_length"`
	MaxRequestBytes int64         `mapstructure:"max_request_bytes"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	SafeEmailAllowlist []string   `mapstructure:"safe_email_allowlist"`
}

type RateLimitConfig struct {
	PerIPPerMinute   int `mapstructure:"per_ip_per_minute"`
	PerIPPerHour     int `mapstructure:"per_ip_per_hour"`
	GlobalPerMinute  int `mapstructure:"global_per_minute"`
}

type ConversationConfig struct {
	MaxTurns         int           `mapstructure:"max_turns"`
	IdleTTL          time.Duration `mapstructure:"idle_ttl"`
	MaxHistoryTokens int           `mapstructure:"max_history_tokens"`
	MaxConversationIDLength int    `mapstructure:"max_conversation_id_length"`
	StorageDir       string        `mapstructure:"storage_dir"`
}

type ModelsConfig struct {
	OllamaURL          string        `mapstructure:"ollama_url"`
	ClassifierModel    string        `mapstructure:"classifier_model"`
	RouterModel        string        `mapstructure:"router_model"`
	GeneratorModel     string        `mapstructure:"generator_model"`
	VerifierModel      string        `mapstructure:"verifier_model"`
	EmbeddingModel     string        `mapstructure:"embedding_model"`
	ClassifierTimeout  time.Duration `mapstructure:"classifier_timeout"`
	GeneratorTimeout   time.Duration `mapstructure:"generator_timeout"`
	MaxRetries         int           `mapstructure:"max_retries"`
	RetryBaseWait      time.Duration `mapstructure:"retry_base_wait"`
}

type ContextConfig struct {
	RootDir          string  `mapstructure:"root_dir"`
	MaxBlobLength    int     `mapstructure:"max_blob_length"`
	InsufficientFloor int    `mapstructure:"insufficient_floor"`
	CacheDir         string  `mapstructure:"cache_dir"`
	CacheVersion     int     `mapstructure:"cache_version"`
	ChunkTargetChars int     `mapstructure:"chunk_target_chars"`
	ChunkOverlapChars int    `mapstructure:"chunk_overlap_chars"`
	OverviewChunks   int     `mapstructure:"overview_chunks"`
	TopK             int     `mapstructure:"top_k"`
	SimilarityFloor  float64 `mapstructure:"similarity_floor"`
	UseSemantic      bool    `mapstructure:"use_semantic"`
	ProjectNames     []string `mapstructure:"project_names"`
}

type PipelineConfig struct {
	UseCombinedClassifier bool `mapstructure:"use_combined_classifier"`
	SkipRevision          bool `mapstructure:"skip_revision"`
	UseFastSafetyCheck    bool `mapstructure:"use_fast_safety_check"`
	EnableStreaming       bool `mapstructure:"enable_streaming"`
	RevisionMinDraftChars int  `mapstructure:"revision_min_draft_chars"`
	RevisionMinAcceptChars int `mapstructure:"revision_min_accept_chars"`
	ToolMaxIterations     int  `mapstructure:"tool_max_iterations"`
	GroundingSimilarityFloor float64 `mapstructure:"grounding_similarity_floor"`
	GroundingMinFailingSentences int `mapstructure:"grounding_min_failing_sentences"`
	ContactStorageDir     string `mapstructure:"contact_storage_dir"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
	AuditPath  string `mapstructure:"audit_path"`
}

type AnalyticsConfig struct {
	Enabled      bool `mapstructure:"enabled"`
	AdminEnabled bool `mapstructure:"admin_enabled"`
}

// Hard floors that no environment variable or config file can undercut (§6).
const (
	floorMaxInputLength    = 100
	floorMaxRequestBytes   = 1024
	floorRequestTimeout    = 5 * time.Second
	floorPerIPPerMinute    = 1
	floorConversationTurns = 2
	floorIdleTTL           = 60 * time.Second
)

// Load builds the configuration by layering defaults, an optional config
// file, then environment variables (SENTRYCHAT_* via viper.AutomaticEnv),
// exactly the way the teacher gateway's infrastructure/config package layers
// its own sources — then clamps every security-relevant floor so a
// misconfigured environment cannot weaken the pipeline.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if path := strings.TrimSpace(os.Getenv("SENTRYCHAT_CONFIG")); path != "" {
		v.SetConfigFile(path)
	}
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	v.SetEnvPrefix("SENTRYCHAT")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	clampFloors(&cfg)
	return &cfg, nil
}

func clampFloors(cfg *Config) {
	if cfg.Security.MaxInputLength < floorMaxInputLength {
		cfg.Security.MaxInputLength = floorMaxInputLength
	}
	if cfg.Security.MaxRequestBytes < floorMaxRequestBytes {
		cfg.Security.MaxRequestBytes = floorMaxRequestBytes
	}
	if cfg.Security.RequestTimeout < floorRequestTimeout {
		cfg.Security.RequestTimeout = floorRequestTimeout
	}
	if cfg.RateLimit.PerIPPerMinute < floorPerIPPerMinute {
		cfg.RateLimit.PerIPPerMinute = floorPerIPPerMinute
	}
	if cfg.Conversation.MaxTurns < floorConversationTurns {
		cfg.Conversation.MaxTurns = floorConversationTurns
	}
	if cfg.Conversation.IdleTTL < floorIdleTTL {
		cfg.Conversation.IdleTTL = floorIdleTTL
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.cors_origins", []string{})
	v.SetDefault("server.trusted_proxies", []string{})
	v.SetDefault("server.metrics_enabled", false)
	v.SetDefault("server.shutdown_timeout", "30s")

	v.SetDefault("security.max_input_length", 2000)
	v.SetDefault("security.max_request_bytes", 8192)
	v.SetDefault("security.request_timeout", "30s")
	v.SetDefault("security.safe_email_allowlist", []string{})

	v.SetDefault("rate_limit.per_ip_per_minute", 10)
	v.SetDefault("rate_limit.per_ip_per_hour", 100)
	v.SetDefault("rate_limit.global_per_minute", 1000)

	v.SetDefault("conversation.max_turns", 10)
	v.SetDefault("conversation.idle_ttl", "30m")
	v.SetDefault("conversation.max_history_tokens", 4000)
	v.SetDefault("conversation.max_conversation_id_length", 100)
	v.SetDefault("conversation.storage_dir", "data/conversations")

	v.SetDefault("models.ollama_url", "http://localhost:11434")
	v.SetDefault("models.classifier_model", "qwen2.5:0.5b")
	v.SetDefault("models.router_model", "llama3.2:1b")
	v.SetDefault("models.generator_model", "mistral:7b")
	v.SetDefault("models.verifier_model", "qwen2.5:0.5b")
	v.SetDefault("models.embedding_model", "nomic-embed-text")
	v.SetDefault("models.classifier_timeout", "10s")
	v.SetDefault("models.generator_timeout", "60s")
	v.SetDefault("models.max_retries", 3)
	v.SetDefault("models.retry_base_wait", "500ms")

	v.SetDefault("context.root_dir", "context")
	v.SetDefault("context.max_blob_length", 12000)
	v.SetDefault("context.insufficient_floor", 200)
	v.SetDefault("context.cache_dir", "cache")
	v.SetDefault("context.cache_version", 1)
	v.SetDefault("context.chunk_target_chars", 800)
	v.SetDefault("context.chunk_overlap_chars", 150)
	v.SetDefault("context.overview_chunks", 2)
	v.SetDefault("context.top_k", 5)
	v.SetDefault("context.similarity_floor", 0.35)
	v.SetDefault("context.use_semantic", false)
	v.SetDefault("context.project_names", []string{"CAIRN", "ReOS", "RIVA", "Talking Rock"})

	v.SetDefault("pipeline.use_combined_classifier", true)
	v.SetDefault("pipeline.skip_revision", true)
	v.SetDefault("pipeline.use_fast_safety_check", true)
	v.SetDefault("pipeline.enable_streaming", true)
	v.SetDefault("pipeline.revision_min_draft_chars", 200)
	v.SetDefault("pipeline.revision_min_accept_chars", 50)
	v.SetDefault("pipeline.tool_max_iterations", 3)
	v.SetDefault("pipeline.grounding_similarity_floor", 0.5)
	v.SetDefault("pipeline.grounding_min_failing_sentences", 2)
	v.SetDefault("pipeline.contact_storage_dir", "data/contacts")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output_path", "stdout")
	v.SetDefault("log.audit_path", "data/audit.jsonl")

	v.SetDefault("analytics.enabled", true)
	v.SetDefault("analytics.admin_enabled", true)
}
