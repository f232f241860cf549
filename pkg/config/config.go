package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string           `yaml:"environment"`
	Log         LogConfig        `yaml:"log"`
	Server      ServerConfig     `yaml:"server"`
	Metrics     MetricsConfig    `yaml:"metrics"`
	Backend     BackendConfig    `yaml:"backend"`
	Kafka       KafkaConfig      `yaml:"kafka"`
	ClickHouse  ClickHouseConfig `yaml:"clickhouse"`
	Redis       RedisConfig      `yaml:"redis"`
	Cache       CacheConfig      `yaml:"cache"`
	Upstream    UpstreamConfig   `yaml:"upstream"`
	Normalizer  NormalizerConfig `yaml:"normalizer"`
	Anomaly     AnomalyConfig    `yaml:"anomaly"`
	RateGate    RateGateConfig   `yaml:"rate_gate"`
}

type LogConfig struct {
	Level  string `yaml:"level" default:"info"`
	Format string `yaml:"format" default:"console"`
	Output string `yaml:"output" default:"stdout"`
}

type ServerConfig struct {
	Port            int           `yaml:"port" default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" default:"true"`
	Path    string `yaml:"path" default:"/metrics"`
}

// BackendConfig selects where normalized records go: kafka or clickhouse.
type BackendConfig struct {
	Type         string        `yaml:"type" default:"clickhouse"`
	BatchSize    int           `yaml:"batch_size" default:"100"`
	BatchTimeout time.Duration `yaml:"batch_timeout" default:"1s"`
}

type KafkaConfig struct {
	Brokers      []string `yaml:"brokers"`
	Topic        string   `yaml:"topic" default:"metrics.normalized"`
	RawTopic     string   `yaml:"raw_topic"`
	RequiredAcks int      `yaml:"required_acks" default:"-1"`
	Compression  string   `yaml:"compression" default:"snappy"`
	Producer     struct {
		MaxAttempts  int           `yaml:"max_attempts" default:"5"`
		Linger       time.Duration `yaml:"linger" default:"10ms"`
		BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
		BatchSize    int           `yaml:"batch_size" default:"100"`
		WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
		ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
		Async        bool          `yaml:"async"`
	} `yaml:"producer"`
	Consumer struct {
		GroupID    string        `yaml:"group_id" default:"stockwatchdog-normalizer"`
		Workers    int           `yaml:"workers" default:"4"`
		BufferSize int           `yaml:"buffer_size" default:"256"`
		RetryMax   int           `yaml:"retry_max" default:"3"`
		BackoffMin time.Duration `yaml:"backoff_min" default:"100ms"`
		BackoffMax time.Duration `yaml:"backoff_max" default:"5s"`
		DLQTopic   string        `yaml:"dlq_topic"`
		MinBytes   int           `yaml:"min_bytes" default:"1"`
		MaxBytes   int           `yaml:"max_bytes" default:"10485760"`
	} `yaml:"consumer"`
}

type ClickHouseConfig struct {
	Host             string        `yaml:"host" default:"localhost"`
	Port             int           `yaml:"port" default:"9000"`
	Database         string        `yaml:"database" default:"stockwatchdog"`
	User             string        `yaml:"user" default:"default"`
	Password         string        `yaml:"password"`
	UseHTTP          bool          `yaml:"use_http"`
	AsyncInsert      bool          `yaml:"async_insert"`
	WaitForAsync     bool          `yaml:"wait_for_async_insert"`
	DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
	ReadTimeout      time.Duration `yaml:"read_timeout" default:"30s"`
	WriteTimeout     time.Duration `yaml:"write_timeout" default:"30s"`
	MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
}

type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr" default:"localhost:6379"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix" default:"swd"`
}

// CacheConfig controls the record cache in front of the upstream API.
type CacheConfig struct {
	TTL        time.Duration `yaml:"ttl" default:"15m"`
	MaxEntries int           `yaml:"max_entries" default:"10000"`
}

type UpstreamConfig struct {
	Name     string        `yaml:"name" default:"yahoo_finance"`
	BaseURL  string        `yaml:"base_url"`
	APIKey   string        `yaml:"api_key"`
	Root     string        `yaml:"root"` // JSONPath of the quote object, empty for a flat body
	Timeout  time.Duration `yaml:"timeout" default:"10s"`
	Symbols  []string      `yaml:"symbols"`
	Interval time.Duration `yaml:"interval" default:"1h"`
	Priority string        `yaml:"priority" default:"low"`
}

type NormalizerConfig struct {
	Suffixes       []string `yaml:"suffixes" default:"[\".T\"]"`
	CodeLength     int      `yaml:"code_length" default:"4"`
	ProviderSuffix string   `yaml:"provider_suffix" default:".T"`
}

// AnomalyConfig holds plausibility thresholds. Rate bounds are in percent.
type AnomalyConfig struct {
	YieldMinPct        float64 `yaml:"yield_min_pct" default:"0"`
	YieldMaxPct        float64 `yaml:"yield_max_pct" default:"50"`
	CorrectionDivisor  float64 `yaml:"correction_divisor" default:"100"`
	PEAdvisoryMax      float64 `yaml:"pe_advisory_max" default:"1000"`
	PBMax              float64 `yaml:"pb_max" default:"50"`
	RateMinPct         float64 `yaml:"rate_min_pct" default:"-100"`
	RateMaxPct         float64 `yaml:"rate_max_pct" default:"100"`
	MarketCapTolerance float64 `yaml:"market_cap_tolerance" default:"0.1"`
	TurnoverSpike      float64 `yaml:"turnover_spike" default:"5"`
}

type BudgetConfig struct {
	Limit            int           `yaml:"limit" default:"100"`
	Window           time.Duration `yaml:"window" default:"1h"`
	ReservedFraction float64       `yaml:"reserved_fraction" default:"0.1"`
	CriticalFraction float64       `yaml:"critical_fraction" default:"0.2"`
	BackoffBase      time.Duration `yaml:"backoff_base" default:"1s"`
	BackoffMax       time.Duration `yaml:"backoff_max" default:"5m"`
	BurstLimit       int           `yaml:"burst_limit"`
	BurstWindow      time.Duration `yaml:"burst_window" default:"1m"`
}

// RateGateConfig holds the default budget and per-API budgets. A per-API
// entry starts as a copy of the default and only replaces the keys it sets,
// so an explicit zero (reserved_fraction: 0) is kept.
type RateGateConfig struct {
	Default BudgetConfig            `yaml:"default"`
	APIs    map[string]BudgetConfig `yaml:"apis"`
}

func (r *RateGateConfig) UnmarshalYAML(n *yaml.Node) error {
	var raw struct {
		Default yaml.Node            `yaml:"default"`
		APIs    map[string]yaml.Node `yaml:"apis"`
	}
	if err := n.Decode(&raw); err != nil {
		return err
	}
	if raw.Default.Kind != 0 {
		if err := raw.Default.Decode(&r.Default); err != nil {
			return fmt.Errorf("rate_gate.default: %w", err)
		}
	}
	if len(raw.APIs) == 0 {
		return nil
	}
	r.APIs = make(map[string]BudgetConfig, len(raw.APIs))
	for name, node := range raw.APIs {
		b := r.Default
		if err := node.Decode(&b); err != nil {
			return fmt.Errorf("rate_gate.apis.%s: %w", name, err)
		}
		r.APIs[name] = b
	}
	return nil
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse applies defaults, decodes b over them and validates the result.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	c.applyEnv(os.Getenv)
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv("UPSTREAM_API_KEY"); v != "" {
		c.Upstream.APIKey = v
	}
	if v := getenv("UPSTREAM_BASE_URL"); v != "" {
		c.Upstream.BaseURL = v
	}
	if v := getenv("SYMBOLS"); v != "" {
		c.Upstream.Symbols = strings.Split(v, ",")
	}
	if v := getenv("BACKEND"); v != "" {
		c.Backend.Type = v
	}
	if v := getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := getenv("KAFKA_TOPIC"); v != "" {
		c.Kafka.Topic = v
	}
	if v := getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
		c.Redis.Enabled = true
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Backend.Type != "kafka" && c.Backend.Type != "clickhouse" {
		return fmt.Errorf("backend.type must be 'kafka' or 'clickhouse', got '%s'", c.Backend.Type)
	}
	if c.Backend.Type == "kafka" && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when backend.type is kafka")
	}
	if c.Upstream.Name == "" {
		return fmt.Errorf("upstream.name is required")
	}
	if c.Normalizer.CodeLength <= 0 {
		return fmt.Errorf("normalizer.code_length must be positive")
	}
	if c.Anomaly.CorrectionDivisor <= 0 {
		return fmt.Errorf("anomaly.correction_divisor must be positive")
	}
	if c.Anomaly.YieldMaxPct <= c.Anomaly.YieldMinPct {
		return fmt.Errorf("anomaly.yield_max_pct must exceed yield_min_pct")
	}
	if c.Anomaly.RateMaxPct <= c.Anomaly.RateMinPct {
		return fmt.Errorf("anomaly.rate_max_pct must exceed rate_min_pct")
	}
	if err := c.RateGate.Default.validate("rate_gate.default"); err != nil {
		return err
	}
	for name, b := range c.RateGate.APIs {
		if err := b.validate("rate_gate.apis." + name); err != nil {
			return err
		}
	}
	return nil
}

func (b BudgetConfig) validate(path string) error {
	if b.Limit <= 0 {
		return fmt.Errorf("%s.limit must be positive", path)
	}
	if b.Window <= 0 {
		return fmt.Errorf("%s.window must be positive", path)
	}
	if b.ReservedFraction < 0 || b.CriticalFraction < b.ReservedFraction {
		return fmt.Errorf("%s: need 0 <= reserved_fraction <= critical_fraction", path)
	}
	if b.BackoffBase <= 0 || b.BackoffMax < b.BackoffBase {
		return fmt.Errorf("%s: need 0 < backoff_base <= backoff_max", path)
	}
	if b.BurstLimit < 0 {
		return fmt.Errorf("%s.burst_limit must not be negative", path)
	}
	if b.BurstLimit > 0 && (b.BurstWindow <= 0 || b.BurstWindow > b.Window) {
		return fmt.Errorf("%s: need 0 < burst_window <= window", path)
	}
	return nil
}
