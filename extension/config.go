package extension

import "time"

// Store drivers understood by the extension.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMongo    = "mongo"
)

// Notification backends understood by the extension.
const (
	NotifyNone  = ""
	NotifyRedis = "redis"
	NotifyKafka = "kafka"
)

// Config holds the licensor extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.licensor" or "licensor" keys).
type Config struct {
	// DisableRoutes prevents the HTTP handler from being built and provided.
	DisableRoutes bool `json:"disable_routes" mapstructure:"disable_routes" yaml:"disable_routes"`

	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// BasePath is the URL prefix for licensor routes (default: "/licensor").
	BasePath string `json:"base_path" mapstructure:"base_path" yaml:"base_path"`

	// StoreDriver selects how a grove.DB passed with WithGroveDB is wrapped
	// (postgres, sqlite or mongo). Without a grove.DB the memory store is used.
	StoreDriver string `json:"store_driver" mapstructure:"store_driver" yaml:"store_driver"`

	// DefaultRates overrides the per-device rate table given to accounts
	// created without their own (keys day1 through day60).
	DefaultRates map[string]int64 `json:"default_rates" mapstructure:"default_rates" yaml:"default_rates"`

	// MaxExtendRetries bounds the compare-and-swap loop of key expiry
	// extension (default: 5).
	MaxExtendRetries int `json:"max_extend_retries" mapstructure:"max_extend_retries" yaml:"max_extend_retries"`

	// Notify selects the balance notification backend (redis, kafka or empty).
	Notify string `json:"notify" mapstructure:"notify" yaml:"notify"`

	// RedisAddr is the redis address used when Notify is "redis".
	RedisAddr string `json:"redis_addr" mapstructure:"redis_addr" yaml:"redis_addr"`

	// RedisPrefix is the pub/sub channel prefix (default: "licensor:account").
	RedisPrefix string `json:"redis_prefix" mapstructure:"redis_prefix" yaml:"redis_prefix"`

	// KafkaBrokers lists the brokers used when Notify is "kafka".
	KafkaBrokers []string `json:"kafka_brokers" mapstructure:"kafka_brokers" yaml:"kafka_brokers"`

	// KafkaTopic is the topic notifications are written to
	// (default: "licensor.account-events").
	KafkaTopic string `json:"kafka_topic" mapstructure:"kafka_topic" yaml:"kafka_topic"`

	// NotifyBufferSize is the number of notifications queued before new
	// ones are dropped (default: 256).
	NotifyBufferSize int `json:"notify_buffer_size" mapstructure:"notify_buffer_size" yaml:"notify_buffer_size"`

	// NotifyTimeout bounds a single delivery to the backend (default: 5s).
	NotifyTimeout time.Duration `json:"notify_timeout" mapstructure:"notify_timeout" yaml:"notify_timeout"`

	// EnableMetrics registers the Prometheus metrics plugin.
	EnableMetrics bool `json:"enable_metrics" mapstructure:"enable_metrics" yaml:"enable_metrics"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		BasePath:         "/licensor",
		StoreDriver:      DriverMemory,
		MaxExtendRetries: 5,
		NotifyBufferSize: 256,
		NotifyTimeout:    5 * time.Second,
	}
}
