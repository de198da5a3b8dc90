package extension

import (
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/licensor"
	"github.com/xraph/licensor/api"
	"github.com/xraph/licensor/notify"
	"github.com/xraph/licensor/plugin"
	"github.com/xraph/licensor/store"
)

// Option configures the licensor Forge extension.
type Option func(*Extension)

// WithStore sets the store for the licensor engine. It takes precedence
// over WithGroveDB.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithGroveDB hands the extension a grove database. The store backend
// wrapping it is chosen by Config.StoreDriver.
func WithGroveDB(db *grove.DB, driver string) Option {
	return func(e *Extension) {
		e.groveDB = db
		e.config.StoreDriver = driver
	}
}

// WithLicensorOption passes a licensor.Option through to the underlying engine.
func WithLicensorOption(opt licensor.Option) Option {
	return func(e *Extension) {
		e.licensorOpts = append(e.licensorOpts, opt)
	}
}

// WithPlugin registers a licensor plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.licensorOpts = append(e.licensorOpts, licensor.WithPlugin(p))
	}
}

// WithSink sets the notification sink directly, bypassing Config.Notify.
func WithSink(s notify.Sink) Option {
	return func(e *Extension) {
		e.sink = s
	}
}

// WithAPIOption passes an api.Option through to the HTTP handler.
func WithAPIOption(opt api.Option) Option {
	return func(e *Extension) {
		e.apiOpts = append(e.apiOpts, opt)
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableRoutes prevents HTTP route registration.
func WithDisableRoutes() Option {
	return func(e *Extension) { e.config.DisableRoutes = true }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithBasePath sets the URL prefix for licensor routes.
func WithBasePath(path string) Option {
	return func(e *Extension) { e.config.BasePath = path }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}

// WithRedisNotify publishes balance notifications to redis at addr.
func WithRedisNotify(addr, prefix string) Option {
	return func(e *Extension) {
		e.config.Notify = NotifyRedis
		e.config.RedisAddr = addr
		e.config.RedisPrefix = prefix
	}
}

// WithKafkaNotify writes balance notifications to a kafka topic.
func WithKafkaNotify(brokers []string, topic string) Option {
	return func(e *Extension) {
		e.config.Notify = NotifyKafka
		e.config.KafkaBrokers = brokers
		e.config.KafkaTopic = topic
	}
}

// WithNotifyTimeout bounds a single notification delivery.
func WithNotifyTimeout(d time.Duration) Option {
	return func(e *Extension) { e.config.NotifyTimeout = d }
}

// WithMetrics registers the Prometheus metrics plugin.
func WithMetrics() Option {
	return func(e *Extension) { e.config.EnableMetrics = true }
}
