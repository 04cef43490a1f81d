package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string           `yaml:"environment" default:"development" validate:"required"`
	Server      ServerConfig     `yaml:"server"`
	Log         LogConfig        `yaml:"log"`
	Metrics     MetricsConfig    `yaml:"metrics"`
	LLM         LLMConfig        `yaml:"llm"`
	Gemini      GeminiConfig     `yaml:"gemini"`
	Claude      ClaudeConfig     `yaml:"claude"`
	Research    ResearchConfig   `yaml:"research"`
	Finnhub     FinnhubConfig    `yaml:"finnhub"`
	AllowList   AllowListConfig  `yaml:"allowlist"`
	Pricing     PricingConfig    `yaml:"pricing"`
	Pipeline    PipelineConfig   `yaml:"pipeline"`
	Kafka       KafkaConfig      `yaml:"kafka"`
	ClickHouse  ClickHouseConfig `yaml:"clickhouse"`
	Redis       RedisConfig      `yaml:"redis"`
}

type ServerConfig struct {
	Port            int           `yaml:"port" default:"8080" validate:"gte=1,lte=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout" default:"30s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" default:"180s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s"`

	// Analyze requests per second per client, with a burst of RateBurst.
	RateLimit float64 `yaml:"rate_limit" default:"0.5"`
	RateBurst int     `yaml:"rate_burst" default:"3"`
}

type LogConfig struct {
	Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" default:"json" validate:"oneof=json console"`
	Output string `yaml:"output" default:"stdout"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" default:"true"`
	Path    string `yaml:"path" default:"/metrics"`
}

// StageBudget bounds one LLM call.
type StageBudget struct {
	MaxTokens       int `yaml:"max_tokens" validate:"gte=64"`
	ReasoningBudget int `yaml:"reasoning_budget" validate:"gte=0"`
}

type LLMConfig struct {
	Provider string        `yaml:"provider" default:"gemini" validate:"oneof=gemini claude"`
	Model    string        `yaml:"model"`
	Timeout  time.Duration `yaml:"timeout" default:"90s"`

	// Stage 3 runs on a smaller reasoning budget than Stage 1; large thinking
	// budgets there tend to consume the whole completion allowance.
	Stage1 StageBudget `yaml:"stage1" default:"{\"MaxTokens\":2048,\"ReasoningBudget\":1024}"`
	Stage3 StageBudget `yaml:"stage3" default:"{\"MaxTokens\":2048,\"ReasoningBudget\":0}"`
	Retry  StageBudget `yaml:"retry" default:"{\"MaxTokens\":1200,\"ReasoningBudget\":0}"`
	Repair StageBudget `yaml:"repair" default:"{\"MaxTokens\":1600,\"ReasoningBudget\":0}"`
}

type GeminiConfig struct {
	APIKey      string  `yaml:"api_key"`
	Model       string  `yaml:"model" default:"gemini-2.5-flash"`
	Temperature float32 `yaml:"temperature" default:"0.2"`
	MaxRetries  int     `yaml:"max_retries" default:"2"`
}

type ClaudeConfig struct {
	APIKey      string  `yaml:"api_key"`
	Model       string  `yaml:"model" default:"claude-sonnet-4-5"`
	Temperature float32 `yaml:"temperature" default:"0.2"`
	MaxRetries  int     `yaml:"max_retries" default:"2"`
}

type ResearchConfig struct {
	Enabled   bool          `yaml:"enabled" default:"true"`
	Model     string        `yaml:"model" default:"gemini-2.5-flash"`
	MaxTokens int           `yaml:"max_tokens" default:"1024"`
	Timeout   time.Duration `yaml:"timeout" default:"60s"`
}

type FinnhubConfig struct {
	APIKey    string        `yaml:"api_key"`
	BaseURL   string        `yaml:"base_url" default:"https://finnhub.io/api/v1" validate:"url"`
	Timeout   time.Duration `yaml:"timeout" default:"10s"`
	RateLimit float64       `yaml:"rate_limit" default:"1"` // requests per second
	RateBurst int           `yaml:"rate_burst" default:"5"`
	CacheTTL  time.Duration `yaml:"cache_ttl" default:"2m"`
}

type AllowListConfig struct {
	Path string `yaml:"path" default:"config/instruments.yaml" validate:"required"`
}

// ModelPrice is USD per million tokens.
type ModelPrice struct {
	InputPerMTok  float64 `yaml:"input_per_mtok"`
	OutputPerMTok float64 `yaml:"output_per_mtok"`
}

type ResearchPrice struct {
	InputPerMTok  float64 `yaml:"input_per_mtok"`
	OutputPerMTok float64 `yaml:"output_per_mtok"`
	PerRequest    float64 `yaml:"per_request"`
}

type PricingConfig struct {
	Models   map[string]ModelPrice `yaml:"models"`
	Research ResearchPrice         `yaml:"research"`
}

type PipelineConfig struct {
	MarketDataChars   int           `yaml:"market_data_chars" default:"3600" validate:"gte=200"`
	SnippetChars      int           `yaml:"snippet_chars" default:"1400" validate:"gte=100"`
	MemoryChars       int           `yaml:"memory_chars" default:"2000" validate:"gte=100"`
	RankedQueries     int           `yaml:"ranked_queries" default:"2" validate:"gte=0,lte=2"`
	FallbackQueries   int           `yaml:"fallback_queries" default:"3" validate:"gte=0,lte=3"`
	NarrativeMetrics  bool          `yaml:"narrative_metrics" default:"true"`
	Stage2Concurrency int           `yaml:"stage2_concurrency" default:"6" validate:"gte=1"`
	Stage2Timeout     time.Duration `yaml:"stage2_timeout" default:"90s"`
}

type KafkaConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Brokers      []string      `yaml:"brokers"`
	ItemsTopic   string        `yaml:"items_topic" default:"signalforge.items"`
	ResultsTopic string        `yaml:"results_topic" default:"signalforge.results"`
	DLQTopic     string        `yaml:"dlq_topic" default:"signalforge.items.dlq"`
	GroupID      string        `yaml:"group_id" default:"signalforge-analyzer"`
	Workers      int           `yaml:"workers" default:"2" validate:"gte=1"`
	RetryMax     int           `yaml:"retry_max" default:"3"`
	BackoffMin   time.Duration `yaml:"backoff_min" default:"500ms"`
	BackoffMax   time.Duration `yaml:"backoff_max" default:"10s"`
	WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
}

type ClickHouseConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Host        string        `yaml:"host" default:"localhost"`
	Port        int           `yaml:"port" default:"9000"`
	Database    string        `yaml:"database" default:"signalforge"`
	User        string        `yaml:"user" default:"default"`
	Password    string        `yaml:"password"`
	Table       string        `yaml:"table" default:"analyses"`
	DialTimeout time.Duration `yaml:"dial_timeout" default:"5s"`
	ReadTimeout time.Duration `yaml:"read_timeout" default:"10s"`

	// InitSchema creates the analyses table and, when Kafka is enabled, the
	// Kafka engine table and materialized view that fill it from results_topic.
	InitSchema bool `yaml:"init_schema"`
}

type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host" default:"localhost"`
	Port     int    `yaml:"port" default:"6379"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix" default:"signalforge"`
}

var validate = validator.New()

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b, nil)
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b, os.Getenv)
}

// Parse decodes YAML bytes on top of the defaults, applies environment
// overrides when getenv is non-nil, and validates the result.
func Parse(b []byte, getenv func(string) string) (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if getenv != nil {
		c.applyEnv(getenv)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv("GEMINI_API_KEY"); v != "" {
		c.Gemini.APIKey = v
	}
	if v := getenv("ANTHROPIC_API_KEY"); v != "" {
		c.Claude.APIKey = v
	}
	if v := getenv("FINNHUB_API_KEY"); v != "" {
		c.Finnhub.APIKey = v
	}
	if v := getenv("LLM_PROVIDER"); v != "" {
		c.LLM.Provider = v
	}
	if v := getenv("LLM_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if v := getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := getenv("REDIS_ADDR"); v != "" {
		host, port, ok := strings.Cut(v, ":")
		c.Redis.Host = host
		if ok {
			if p, err := strconv.Atoi(port); err == nil {
				c.Redis.Port = p
			}
		}
	}
}

// Validate checks tag rules and cross-field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	switch c.LLM.Provider {
	case "gemini":
		if c.Gemini.APIKey == "" {
			return fmt.Errorf("gemini.api_key is required for provider gemini")
		}
	case "claude":
		if c.Claude.APIKey == "" {
			return fmt.Errorf("claude.api_key is required for provider claude")
		}
	}
	if c.Research.Enabled && c.Gemini.APIKey == "" {
		return fmt.Errorf("research requires gemini.api_key")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if c.LLM.Stage3.ReasoningBudget > c.LLM.Stage1.ReasoningBudget {
		return fmt.Errorf("llm.stage3.reasoning_budget must not exceed llm.stage1.reasoning_budget")
	}
	return nil
}

// ModelName returns the configured completion model for the active provider.
func (c *Config) ModelName() string {
	if c.LLM.Model != "" {
		return c.LLM.Model
	}
	if c.LLM.Provider == "claude" {
		return c.Claude.Model
	}
	return c.Gemini.Model
}
