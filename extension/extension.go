// Package extension provides the Forge extension adapter for licensor.
//
// It implements the forge.Extension interface to integrate licensor
// into a Forge application with store selection, notification wiring,
// DI registration, and lifecycle management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.licensor" or "licensor" keys.
package extension

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	goredis "github.com/redis/go-redis/v9"
	"github.com/xraph/forge"
	"github.com/xraph/grove"
	"github.com/xraph/vessel"

	"github.com/xraph/licensor"
	"github.com/xraph/licensor/api"
	"github.com/xraph/licensor/notify"
	"github.com/xraph/licensor/notify/kafkanotify"
	"github.com/xraph/licensor/notify/redisnotify"
	"github.com/xraph/licensor/observability"
	"github.com/xraph/licensor/rate"
	"github.com/xraph/licensor/store"
	"github.com/xraph/licensor/store/memory"
	"github.com/xraph/licensor/store/mongo"
	"github.com/xraph/licensor/store/postgres"
	"github.com/xraph/licensor/store/sqlite"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "licensor"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "License key issuance and reseller credit ledger"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts licensor as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config       Config
	engine       *licensor.Licensor
	store        store.Store
	groveDB      *grove.DB
	sink         notify.Sink
	handler      http.Handler
	licensorOpts []licensor.Option
	apiOpts      []api.Option

	// closers release notification resources on Stop, in order.
	closers []io.Closer
}

// New creates a new licensor Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying Licensor instance.
// This is nil until Register is called.
func (e *Extension) Engine() *licensor.Licensor { return e.engine }

// Handler returns the HTTP API mounted under the configured base path, or
// nil when routes are disabled or Register has not run.
func (e *Extension) Handler() http.Handler { return e.handler }

// Register implements [forge.Extension]. It loads configuration, builds
// the store and notification sink, initializes the engine, and registers
// it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	if err := e.buildStore(); err != nil {
		return err
	}
	if err := e.buildSink(); err != nil {
		return err
	}

	eng := licensor.New(e.store, e.buildLicensorOpts()...)
	e.engine = eng

	if err := vessel.Provide(fapp.Container(), func() (*licensor.Licensor, error) {
		return e.engine, nil
	}); err != nil {
		return err
	}

	if e.config.DisableRoutes {
		return nil
	}

	h := api.New(eng, e.apiOpts...)
	mux := chi.NewRouter()
	mux.Mount(e.config.BasePath, h)
	e.handler = mux

	return vessel.Provide(fapp.Container(), func() (*api.Handler, error) {
		return h, nil
	})
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("licensor: extension not initialized")
	}

	if !e.config.DisableMigrate {
		if err := e.engine.Start(ctx); err != nil {
			return err
		}
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(_ context.Context) error {
	var errs []error
	if e.engine != nil {
		if err := e.engine.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	for _, c := range e.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	e.closers = nil
	e.MarkStopped()
	return errors.Join(errs...)
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("licensor: store not initialized")
	}
	return e.store.Ping(ctx)
}

// buildStore resolves the store: an explicit WithStore wins, then a grove
// database wrapped per StoreDriver, then the memory store.
func (e *Extension) buildStore() error {
	if e.store != nil {
		return nil
	}
	if e.groveDB == nil {
		if e.config.StoreDriver != DriverMemory && e.config.StoreDriver != "" {
			return fmt.Errorf("licensor: store driver %q needs a grove database (use WithGroveDB)", e.config.StoreDriver)
		}
		e.store = memory.New()
		return nil
	}

	switch strings.ToLower(e.config.StoreDriver) {
	case DriverPostgres, "pg":
		e.store = postgres.New(e.groveDB)
	case DriverSQLite:
		e.store = sqlite.New(e.groveDB)
	case DriverMongo, "mongodb":
		e.store = mongo.New(e.groveDB)
	default:
		return fmt.Errorf("licensor: unknown store driver %q", e.config.StoreDriver)
	}
	return nil
}

// buildSink wires the configured notification backend behind an
// asynchronous buffer so transports never block ledger writes.
func (e *Extension) buildSink() error {
	if e.sink != nil {
		return nil
	}

	var backend notify.Sink
	switch e.config.Notify {
	case NotifyNone:
		return nil
	case NotifyRedis:
		if e.config.RedisAddr == "" {
			return errors.New("licensor: redis notify requires redis_addr")
		}
		client := goredis.NewClient(&goredis.Options{Addr: e.config.RedisAddr})
		backend = redisnotify.New(client, e.config.RedisPrefix)
		e.closers = append(e.closers, client)
	case NotifyKafka:
		s, err := kafkanotify.New(e.config.KafkaBrokers, e.config.KafkaTopic)
		if err != nil {
			return err
		}
		backend = s
		e.closers = append(e.closers, s)
	default:
		return fmt.Errorf("licensor: unknown notify backend %q", e.config.Notify)
	}

	async := notify.NewAsync(backend,
		notify.WithBufferSize(e.config.NotifyBufferSize),
		notify.WithDeliveryTimeout(e.config.NotifyTimeout),
	)
	// Drain the buffer before the transport underneath it closes.
	e.closers = append([]io.Closer{async}, e.closers...)
	e.sink = async

	e.Logger().Info("licensor: notifications enabled",
		forge.F("backend", e.config.Notify),
	)
	return nil
}

// buildLicensorOpts constructs licensor.Option values from the resolved config.
func (e *Extension) buildLicensorOpts() []licensor.Option {
	opts := make([]licensor.Option, 0, len(e.licensorOpts)+4)

	if len(e.config.DefaultRates) > 0 {
		t := make(rate.Table, len(e.config.DefaultRates))
		for k, v := range e.config.DefaultRates {
			t[rate.Tier(k)] = v
		}
		opts = append(opts, licensor.WithDefaultRates(t))
	}
	if e.config.MaxExtendRetries > 0 {
		opts = append(opts, licensor.WithMaxExtendRetries(e.config.MaxExtendRetries))
	}
	if e.sink != nil {
		opts = append(opts, licensor.WithSink(e.sink))
	}
	if e.config.EnableMetrics {
		opts = append(opts, licensor.WithPlugin(
			observability.NewMetricsExtension(observability.NewPrometheusFactory(nil)),
		))
	}

	// Append any pass-through licensor options.
	opts = append(opts, e.licensorOpts...)

	return opts
}

// --- Config Loading (mirrors grove/shield extension pattern) ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	// Try loading from config file.
	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("licensor: configuration is required but not found in config files; " +
				"ensure 'extensions.licensor' or 'licensor' key exists in your config")
		}

		// Use programmatic config merged with defaults.
		e.config = mergeWithDefaults(programmaticConfig)
	} else {
		// Config loaded from YAML -- merge with programmatic options.
		e.config = mergeConfigurations(fileConfig, programmaticConfig)
	}

	if err := validateConfig(e.config); err != nil {
		return err
	}

	e.Logger().Debug("licensor: configuration loaded",
		forge.F("disable_routes", e.config.DisableRoutes),
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("base_path", e.config.BasePath),
		forge.F("store_driver", e.config.StoreDriver),
		forge.F("notify", e.config.Notify),
		forge.F("enable_metrics", e.config.EnableMetrics),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()
	var cfg Config

	for _, key := range []string{"extensions.licensor", "licensor"} {
		if !cm.IsSet(key) {
			continue
		}
		if err := cm.Bind(key, &cfg); err == nil {
			e.Logger().Debug("licensor: loaded config from file",
				forge.F("key", key),
			)
			return cfg, true
		}
		e.Logger().Warn("licensor: failed to bind config",
			forge.F("key", key),
			forge.F("error", "bind failed"),
		)
	}

	return Config{}, false
}

// validateConfig rejects rate tables with unknown tiers or negative
// rates before the engine sees them.
func validateConfig(cfg Config) error {
	t := make(rate.Table, len(cfg.DefaultRates))
	for k, v := range cfg.DefaultRates {
		t[rate.Tier(k)] = v
	}
	if err := t.Validate(); err != nil {
		return fmt.Errorf("licensor: default_rates: %w", err)
	}
	return nil
}

// mergeWithDefaults fills zero-valued fields with defaults.
func mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.BasePath == "" {
		cfg.BasePath = defaults.BasePath
	}
	if cfg.StoreDriver == "" {
		cfg.StoreDriver = defaults.StoreDriver
	}
	if cfg.MaxExtendRetries == 0 {
		cfg.MaxExtendRetries = defaults.MaxExtendRetries
	}
	if cfg.NotifyBufferSize == 0 {
		cfg.NotifyBufferSize = defaults.NotifyBufferSize
	}
	if cfg.NotifyTimeout == 0 {
		cfg.NotifyTimeout = defaults.NotifyTimeout
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence for most fields; programmatic values fill gaps.
func mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	// Programmatic bool flags override when true.
	if programmaticConfig.DisableRoutes {
		yamlConfig.DisableRoutes = true
	}
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}
	if programmaticConfig.EnableMetrics {
		yamlConfig.EnableMetrics = true
	}

	// String fields: YAML takes precedence.
	fill := func(dst *string, src string) {
		if *dst == "" && src != "" {
			*dst = src
		}
	}
	fill(&yamlConfig.BasePath, programmaticConfig.BasePath)
	fill(&yamlConfig.StoreDriver, programmaticConfig.StoreDriver)
	fill(&yamlConfig.Notify, programmaticConfig.Notify)
	fill(&yamlConfig.RedisAddr, programmaticConfig.RedisAddr)
	fill(&yamlConfig.RedisPrefix, programmaticConfig.RedisPrefix)
	fill(&yamlConfig.KafkaTopic, programmaticConfig.KafkaTopic)

	if len(yamlConfig.KafkaBrokers) == 0 {
		yamlConfig.KafkaBrokers = programmaticConfig.KafkaBrokers
	}
	if len(yamlConfig.DefaultRates) == 0 {
		yamlConfig.DefaultRates = programmaticConfig.DefaultRates
	}

	// Duration/int fields: YAML takes precedence, programmatic fills gaps.
	if yamlConfig.MaxExtendRetries == 0 {
		yamlConfig.MaxExtendRetries = programmaticConfig.MaxExtendRetries
	}
	if yamlConfig.NotifyBufferSize == 0 {
		yamlConfig.NotifyBufferSize = programmaticConfig.NotifyBufferSize
	}
	if yamlConfig.NotifyTimeout == 0 {
		yamlConfig.NotifyTimeout = programmaticConfig.NotifyTimeout
	}

	// Fill remaining zeros with defaults.
	return mergeWithDefaults(yamlConfig)
}
