package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// ConfigPathEnvVar points at an optional YAML file layered over the defaults.
const ConfigPathEnvVar = "CONFIG_PATH"

var defaultConfigPaths = []string{"config.yaml", "config.yml"}

// Config holds all runtime configuration for both binaries.
// Every field has a sensible default; only DATABASE_URL is required.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Broker   BrokerConfig   `koanf:"broker"`
	Source   SourceConfig   `koanf:"source"`
	LLM      LLMConfig      `koanf:"llm"`
	Consumer ConsumerConfig `koanf:"consumer"`
	Schedule ScheduleConfig `koanf:"schedule"`
	Log      LogConfig      `koanf:"log"`
}

type ServerConfig struct {
	HTTPPort        string        `koanf:"http_port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	// Update requests allowed per client IP per minute.
	UpdateRateLimit int `koanf:"update_rate_limit"`
}

type DatabaseConfig struct {
	URL      string `koanf:"url"`
	MaxConns int32  `koanf:"max_conns"`
	MinConns int32  `koanf:"min_conns"`
}

type BrokerConfig struct {
	URL string `koanf:"url"`
	// Embedded starts an in-process JetStream server and ignores URL.
	Embedded        bool          `koanf:"embedded"`
	StoreDir        string        `koanf:"store_dir"`
	QueueName       string        `koanf:"queue_name"`
	MaxLength       int64         `koanf:"max_length"`
	MessageTTL      time.Duration `koanf:"message_ttl"`
	DuplicateWindow time.Duration `koanf:"duplicate_window"`
	AckWait         time.Duration `koanf:"ack_wait"`
	FetchWait       time.Duration `koanf:"fetch_wait"`
}

type SourceConfig struct {
	BaseURL      string        `koanf:"base_url"`
	TokenURL     string        `koanf:"token_url"`
	ClientID     string        `koanf:"client_id"`
	ClientSecret string        `koanf:"client_secret"`
	UserAgent    string        `koanf:"user_agent"`
	Timeout      time.Duration `koanf:"timeout"`
	RatePerSec   float64       `koanf:"rate_per_sec"`
	// Candidates fetched per community before filtering.
	HotLimit int `koanf:"hot_limit"`
	// Survivors kept per community after ranking.
	ItemsPerCommunity int `koanf:"items_per_community"`
	TopComments       int `koanf:"top_comments"`
}

type LLMConfig struct {
	BaseURL         string        `koanf:"base_url"`
	APIKey          string        `koanf:"api_key"`
	Model           string        `koanf:"model"`
	Timeout         time.Duration `koanf:"timeout"`
	RatePerSec      float64       `koanf:"rate_per_sec"`
	BreakerFailures uint32        `koanf:"breaker_failures"`
	BreakerTimeout  time.Duration `koanf:"breaker_timeout"`
}

type ConsumerConfig struct {
	Workers        int           `koanf:"workers"`
	ReconnectDelay time.Duration `koanf:"reconnect_delay"`
	RequeueDelay   time.Duration `koanf:"requeue_delay"`
	// Zero keeps requeueing forever.
	MaxDeliveries int `koanf:"max_deliveries"`
	// Empty disables the consumer's Prometheus endpoint.
	MetricsPort string `koanf:"metrics_port"`
}

type ScheduleConfig struct {
	// Empty disables the scheduled refresh.
	Spec        string   `koanf:"spec"`
	Communities []string `koanf:"communities"`
	WindowHours int      `koanf:"window_hours"`
}

type LogConfig struct {
	Level       string `koanf:"level"`
	Development bool   `koanf:"development"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort:        "8080",
			ReadTimeout:     5 * time.Second,
			WriteTimeout:    5 * time.Minute,
			ShutdownTimeout: 30 * time.Second,
			UpdateRateLimit: 10,
		},
		Database: DatabaseConfig{
			MaxConns: 25,
			MinConns: 5,
		},
		Broker: BrokerConfig{
			URL:             "nats://127.0.0.1:4222",
			StoreDir:        "data/jetstream",
			QueueName:       "reddit_posts",
			MaxLength:       10000,
			MessageTTL:      24 * time.Hour,
			DuplicateWindow: 2 * time.Minute,
			AckWait:         5 * time.Minute,
			FetchWait:       5 * time.Second,
		},
		Source: SourceConfig{
			UserAgent:         "community-digest/1.0",
			Timeout:           15 * time.Second,
			RatePerSec:        1,
			HotLimit:          50,
			ItemsPerCommunity: 10,
			TopComments:       5,
		},
		LLM: LLMConfig{
			BaseURL:         "https://api.openai.com/v1",
			Model:           "gpt-4o-mini",
			Timeout:         60 * time.Second,
			RatePerSec:      2,
			BreakerFailures: 5,
			BreakerTimeout:  30 * time.Second,
		},
		Consumer: ConsumerConfig{
			Workers:        1,
			ReconnectDelay: 5 * time.Second,
			RequeueDelay:   10 * time.Second,
		},
		Schedule: ScheduleConfig{
			Communities: []string{},
			WindowHours: 24,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load layers struct defaults, an optional YAML file and environment variables,
// in that order of increasing priority, then validates the result.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	if err := splitList(k, "schedule.communities"); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate fails fast on settings no component can run with.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.Broker.QueueName == "" || strings.ContainsAny(c.Broker.QueueName, ". *>") {
		return fmt.Errorf("QUEUE_NAME %q is not a valid queue name", c.Broker.QueueName)
	}
	if c.Broker.MaxLength <= 0 {
		return fmt.Errorf("QUEUE_MAX_LENGTH must be positive")
	}
	if c.Broker.MessageTTL <= 0 {
		return fmt.Errorf("QUEUE_MESSAGE_TTL must be positive")
	}
	if c.Consumer.Workers < 1 {
		return fmt.Errorf("CONSUMER_WORKERS must be at least 1")
	}
	if c.Consumer.MaxDeliveries < 0 {
		return fmt.Errorf("MAX_DELIVERIES must not be negative")
	}
	if c.Source.ItemsPerCommunity < 1 || c.Source.HotLimit < c.Source.ItemsPerCommunity {
		return fmt.Errorf("SOURCE_HOT_LIMIT (%d) must be >= SOURCE_ITEMS_PER_COMMUNITY (%d) >= 1",
			c.Source.HotLimit, c.Source.ItemsPerCommunity)
	}
	if c.Schedule.Spec != "" && len(c.Schedule.Communities) == 0 {
		return fmt.Errorf("SCHEDULE_COMMUNITIES is required when SCHEDULE_SPEC is set")
	}
	return nil
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range defaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// splitList turns a comma-separated env value into a string slice.
// Values loaded from YAML are already slices and are left alone.
func splitList(k *koanf.Koanf, path string) error {
	s, ok := k.Get(path).(string)
	if !ok {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if err := k.Set(path, out); err != nil {
		return fmt.Errorf("set %s: %w", path, err)
	}
	return nil
}

var envMappings = map[string]string{
	"http_port":         "server.http_port",
	"read_timeout":      "server.read_timeout",
	"write_timeout":     "server.write_timeout",
	"shutdown_timeout":  "server.shutdown_timeout",
	"update_rate_limit": "server.update_rate_limit",

	"database_url": "database.url",
	"db_max_conns": "database.max_conns",
	"db_min_conns": "database.min_conns",

	"broker_url":             "broker.url",
	"broker_embedded":        "broker.embedded",
	"broker_store_dir":       "broker.store_dir",
	"queue_name":             "broker.queue_name",
	"queue_max_length":       "broker.max_length",
	"queue_message_ttl":      "broker.message_ttl",
	"queue_duplicate_window": "broker.duplicate_window",
	"queue_ack_wait":         "broker.ack_wait",
	"queue_fetch_wait":       "broker.fetch_wait",

	"source_base_url":            "source.base_url",
	"source_token_url":           "source.token_url",
	"reddit_client_id":           "source.client_id",
	"reddit_client_secret":       "source.client_secret",
	"reddit_user_agent":          "source.user_agent",
	"source_timeout":             "source.timeout",
	"source_rate_per_sec":        "source.rate_per_sec",
	"source_hot_limit":           "source.hot_limit",
	"source_items_per_community": "source.items_per_community",
	"source_top_comments":        "source.top_comments",

	"llm_base_url":         "llm.base_url",
	"llm_api_key":          "llm.api_key",
	"llm_model":            "llm.model",
	"llm_timeout":          "llm.timeout",
	"llm_rate_per_sec":     "llm.rate_per_sec",
	"llm_breaker_failures": "llm.breaker_failures",
	"llm_breaker_timeout":  "llm.breaker_timeout",

	"consumer_workers":      "consumer.workers",
	"reconnect_delay":       "consumer.reconnect_delay",
	"requeue_delay":         "consumer.requeue_delay",
	"max_deliveries":        "consumer.max_deliveries",
	"consumer_metrics_port": "consumer.metrics_port",

	"schedule_spec":         "schedule.spec",
	"schedule_communities":  "schedule.communities",
	"schedule_window_hours": "schedule.window_hours",

	"log_level":       "log.level",
	"log_development": "log.development",
}

// envTransformFunc maps flat variable names (DATABASE_URL) to koanf paths
// (database.url). Unknown variables map to "" and are skipped.
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
