package licensor

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/licensor/notify"
	"github.com/xraph/licensor/plugin"
	"github.com/xraph/licensor/rate"
	"github.com/xraph/licensor/store"
)

// Licensor is the license-key and credit engine.
type Licensor struct {
	store   store.Store
	plugins *plugin.Registry
	logger  *slog.Logger
	sink    notify.Sink
	now     func() time.Time

	// Configuration
	defaultRates     rate.Table
	maxExtendRetries int
}

// New creates a new Licensor instance.
func New(s store.Store, opts ...Option) *Licensor {
	l := &Licensor{
		store:            s,
		plugins:          plugin.NewRegistry(),
		logger:           slog.Default(),
		sink:             notify.Nop{},
		now:              time.Now,
		defaultRates:     rate.DefaultTable(),
		maxExtendRetries: 5,
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Option configures a Licensor instance.
type Option func(*Licensor)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Licensor) {
		l.logger = logger
		l.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(l *Licensor) {
		_ = l.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithSink sets the notification sink. A nil sink disables notifications.
func WithSink(s notify.Sink) Option {
	return func(l *Licensor) {
		if s == nil {
			s = notify.Nop{}
		}
		l.sink = s
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Licensor) {
		l.now = now
	}
}

// WithDefaultRates sets the rate table copied onto accounts created
// without one.
func WithDefaultRates(t rate.Table) Option {
	return func(l *Licensor) {
		l.defaultRates = t.Clone()
	}
}

// WithMaxExtendRetries bounds the compare-and-swap attempts made by
// ExtendExpiry.
func WithMaxExtendRetries(n int) Option {
	return func(l *Licensor) {
		if n > 0 {
			l.maxExtendRetries = n
		}
	}
}

// Store returns the underlying store.
func (l *Licensor) Store() store.Store { return l.store }

// Plugins returns the plugin registry.
func (l *Licensor) Plugins() *plugin.Registry { return l.plugins }

// Start migrates the store and initializes plugins.
func (l *Licensor) Start(ctx context.Context) error {
	// Migrate database
	if err := l.store.Migrate(ctx); err != nil {
		return err
	}

	// Initialize plugins
	l.plugins.EmitInit(ctx, l)

	l.logger.Info("licensor started",
		"plugins", l.plugins.Count(),
	)

	return nil
}

// Stop shuts down the Licensor and closes the store.
func (l *Licensor) Stop() error {
	ctx := context.Background()
	l.plugins.EmitShutdown(ctx)

	return l.store.Close()
}

func (l *Licensor) clock() time.Time {
	return l.now().UTC()
}
