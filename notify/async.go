package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrBufferFull is returned by Async.Notify when the buffer has no room.
var ErrBufferFull = errors.New("notify: buffer full")

// ErrClosed is returned by Async.Notify after Close.
var ErrClosed = errors.New("notify: sink closed")

// Async buffers events and delivers them to an inner sink from a single
// worker goroutine, so slow transports never block the caller. Events are
// dropped when the buffer is full.
type Async struct {
	next    Sink
	logger  *slog.Logger
	timeout time.Duration

	buffer chan Event
	stop   chan struct{}
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// AsyncOption configures an Async sink.
type AsyncOption func(*Async)

// WithBufferSize sets the number of events held before dropping.
func WithBufferSize(n int) AsyncOption {
	return func(a *Async) {
		if n > 0 {
			a.buffer = make(chan Event, n)
		}
	}
}

// WithLogger sets the logger used for delivery failures.
func WithLogger(logger *slog.Logger) AsyncOption {
	return func(a *Async) { a.logger = logger }
}

// WithDeliveryTimeout bounds each delivery to the inner sink.
func WithDeliveryTimeout(d time.Duration) AsyncOption {
	return func(a *Async) { a.timeout = d }
}

// NewAsync starts the delivery worker. Call Close to drain and stop it.
func NewAsync(next Sink, opts ...AsyncOption) *Async {
	a := &Async{
		next:    next,
		logger:  slog.Default(),
		timeout: 5 * time.Second,
		buffer:  make(chan Event, 1024),
		stop:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}

	a.wg.Add(1)
	go a.worker()
	return a
}

// Notify enqueues e without blocking.
func (a *Async) Notify(_ context.Context, e Event) error {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.closed {
		return ErrClosed
	}
	select {
	case a.buffer <- e:
		return nil
	default:
		return ErrBufferFull
	}
}

// Close stops accepting events, delivers what is buffered and waits for the
// worker to exit.
func (a *Async) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	close(a.stop)
	a.mu.Unlock()

	a.wg.Wait()
	return nil
}

func (a *Async) worker() {
	defer a.wg.Done()

	for {
		select {
		case <-a.stop:
			// Final drain
			for {
				select {
				case e := <-a.buffer:
					a.deliver(e)
				default:
					return
				}
			}

		case e := <-a.buffer:
			a.deliver(e)
		}
	}
}

func (a *Async) deliver(e Event) {
	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()

	if err := a.next.Notify(ctx, e); err != nil {
		a.logger.Warn("notification delivery failed",
			"type", e.Type,
			"account_id", e.AccountID.String(),
			"error", err,
		)
	}
}
