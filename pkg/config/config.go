package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"MacroPull/pkg/util"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string          `yaml:"environment" default:"development" validate:"required,oneof=development staging production test"`
	Server      ServerConfig    `yaml:"server"`
	Log         LogConfig       `yaml:"log"`
	Metrics     MetricsConfig   `yaml:"metrics"`
	Cache       CacheConfig     `yaml:"cache"`
	Sources     SourcesConfig   `yaml:"sources"`
	Fallback    FallbackConfig  `yaml:"fallback"`
	Redis       RedisConfig     `yaml:"redis"`
	Kafka       KafkaConfig     `yaml:"kafka"`
	RateLimit   RateLimitConfig `yaml:"ratelimit"`
	WebSocket   WebSocketConfig `yaml:"websocket"`
}

type ServerConfig struct {
	Host            string        `yaml:"host" default:"0.0.0.0"`
	Port            int           `yaml:"port" default:"8080" validate:"gte=1,lte=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s" validate:"gt=0"`
	WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s" validate:"gt=0"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s" validate:"gt=0"`
	CORSOrigins     []string      `yaml:"cors_origins"`
}

type LogConfig struct {
	Level     string             `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
	Format    string             `yaml:"format" default:"json" validate:"oneof=json console"`
	Output    string             `yaml:"output" default:"stdout" validate:"required"`
	Collector LogCollectorConfig `yaml:"collector"`
}

// LogCollectorConfig controls aggregation of repeated warn/error entries.
// Entries are shipped to kafka.log_topic, so it only takes effect with
// kafka enabled.
type LogCollectorConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Interval  time.Duration `yaml:"interval" default:"30s" validate:"gt=0"`
	Threshold int           `yaml:"threshold" default:"100" validate:"gt=0"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" default:"true"`
	Path    string `yaml:"path" default:"/metrics" validate:"startswith=/"`
}

// CacheConfig controls the snapshot cache. With shared set, replicas
// exchange snapshots and a refresh lock through shared_backend: redis
// across processes, memory inside a single one.
type CacheConfig struct {
	TTL           time.Duration     `yaml:"ttl" default:"30s" validate:"gte=1s,lte=10m"`
	Shared        bool              `yaml:"shared"`
	SharedBackend string            `yaml:"shared_backend" default:"redis" validate:"oneof=redis memory"`
	LockWait      time.Duration     `yaml:"lock_wait" default:"2s" validate:"gte=0,lte=1m"`
	Memory        MemoryCacheConfig `yaml:"memory"`
}

type MemoryCacheConfig struct {
	MaxSize int           `yaml:"max_size" default:"64" validate:"gt=0"`
	Cleanup time.Duration `yaml:"cleanup" default:"1m" validate:"gt=0"`
}

type SourcesConfig struct {
	Timeout    time.Duration    `yaml:"timeout" default:"5s" validate:"gt=0"`
	UserAgent  string           `yaml:"user_agent" default:"Mozilla/5.0 (compatible; MacroPull/1.0)"`
	Eastmoney  EastmoneyConfig  `yaml:"eastmoney"`
	Chinamoney ChinamoneyConfig `yaml:"chinamoney"`
	Yahoo      YahooConfig      `yaml:"yahoo"`
}

type EastmoneyConfig struct {
	QuoteURL    string `yaml:"quote_url" default:"https://push2.eastmoney.com/api/qt/stock/get" validate:"url"`
	IndexSecID  string `yaml:"index_secid" default:"1.000001" validate:"required"`
	FlowURL     string `yaml:"flow_url" default:"https://datacenter-web.eastmoney.com/api/data/v1/get" validate:"url"`
	MutualType  string `yaml:"mutual_type" default:"005" validate:"required"`
	FlowDivisor string `yaml:"flow_divisor" default:"100" validate:"numeric"`
}

type ChinamoneyConfig struct {
	SpotURL string `yaml:"spot_url" default:"https://www.chinamoney.com.cn/r/cms/www/chinamoney/data/fx/rfx-sp-quot.json" validate:"url"`
	Pair    string `yaml:"pair" default:"USD/CNH" validate:"required"`
}

type YahooConfig struct {
	BaseURL string `yaml:"base_url" default:"https://query1.finance.yahoo.com" validate:"url"`
	Gold    string `yaml:"gold" default:"GC=F" validate:"required"`
	Silver  string `yaml:"silver" default:"SI=F" validate:"required"`
	Oil     string `yaml:"oil" default:"BZ=F" validate:"required"`
	VIX     string `yaml:"vix" default:"^VIX" validate:"required"`
}

// FallbackConfig overrides the built-in last-known-good table. Values are
// decimal strings keyed by field name; missing keys keep the built-in value.
type FallbackConfig struct {
	Mode    string            `yaml:"mode" default:"snapshot" validate:"oneof=snapshot field"`
	Version string            `yaml:"version"`
	Values  map[string]string `yaml:"values" validate:"omitempty,dive,keys,oneof=index_level index_change_pct offshore_rate gold silver oil vix net_flow,endkeys,required,numeric"`
}

type RedisConfig struct {
	Host         string        `yaml:"host" default:"localhost" validate:"required"`
	Port         int           `yaml:"port" default:"6379" validate:"gte=1,lte=65535"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db" validate:"gte=0"`
	PoolSize     int           `yaml:"pool_size" default:"10" validate:"gt=0"`
	MinIdleConns int           `yaml:"min_idle_conns" default:"2" validate:"gte=0"`
	PoolTimeout  time.Duration `yaml:"pool_timeout" default:"4s"`
	DialTimeout  time.Duration `yaml:"dial_timeout" default:"5s"`
	Prefix       string        `yaml:"prefix" default:"macropull"`
}

type KafkaConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Brokers      []string      `yaml:"brokers" default:"[\"localhost:9092\"]" validate:"required_if=Enabled true,dive,hostname_port"`
	Topic        string        `yaml:"topic" default:"macropull.snapshots" validate:"required"`
	LogTopic     string        `yaml:"log_topic" default:"macropull.logs" validate:"required"`
	ClientID     string        `yaml:"client_id" default:"macropull"`
	RequiredAcks int           `yaml:"required_acks" default:"1" validate:"oneof=-1 0 1"`
	Compression  string        `yaml:"compression" default:"snappy" validate:"oneof=none gzip snappy lz4 zstd"`
	MaxAttempts  int           `yaml:"max_attempts" default:"3" validate:"gt=0"`
	BatchTimeout time.Duration `yaml:"batch_timeout" default:"50ms"`
	WriteTimeout time.Duration `yaml:"write_timeout" default:"5s"`
	Async        bool          `yaml:"async"`
}

// RateLimitConfig sizes the per-client token bucket on /api. Buckets idle
// for expires_in are dropped.
type RateLimitConfig struct {
	Enabled      bool          `yaml:"enabled" default:"true"`
	Burst        int           `yaml:"burst" default:"20" validate:"gte=1"`
	RefillPerSec float64       `yaml:"refill_per_sec" default:"5" validate:"gt=0"`
	ExpiresIn    time.Duration `yaml:"expires_in" default:"3m" validate:"gt=0"`
}

type WebSocketConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

var validate = validator.New()

// Load reads a YAML file on top of the struct defaults and validates the
// result.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse is Load without the file.
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
	if err := c.applyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	if v := getenv("MACROPULL_ENV"); v != "" {
		c.Environment = v
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := getenv("CACHE_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("CACHE_TTL: %w", err)
		}
		c.Cache.TTL = d
	}
	if v := getenv("FALLBACK_MODE"); v != "" {
		c.Fallback.Mode = v
	}
	if v := getenv("REDIS_ADDR"); v != "" {
		host, port, err := net.SplitHostPort(v)
		if err != nil {
			return fmt.Errorf("REDIS_ADDR: %w", err)
		}
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("REDIS_ADDR port: %w", err)
		}
		c.Redis.Host, c.Redis.Port = host, p
	}
	if v := getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = util.SplitCSV(v)
	}
	if v := getenv("KAFKA_TOPIC"); v != "" {
		c.Kafka.Topic = v
	}
	return nil
}

// Validate checks struct rules and the few that span fields.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.Cache.Shared && c.Cache.LockWait >= c.Cache.TTL {
		return fmt.Errorf("cache.lock_wait (%s) must be shorter than cache.ttl (%s)", c.Cache.LockWait, c.Cache.TTL)
	}
	if c.Sources.Timeout >= c.Cache.TTL {
		return fmt.Errorf("sources.timeout (%s) must be shorter than cache.ttl (%s)", c.Sources.Timeout, c.Cache.TTL)
	}
	return nil
}
