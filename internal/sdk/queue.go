package sdk

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// TransportError marks a transport-level delivery failure (connection
// refused, timeout, DNS). Only these are retried; a collector rejection is
// final.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return "transport: " + e.Err.Error() }

func (e *TransportError) Unwrap() error { return e.Err }

// Transport sends one event to the collector.
type Transport interface {
	Send(ctx context.Context, event Event) error
}

// QueueConfig tunes the delivery queue. Zero values take the defaults.
type QueueConfig struct {
	// RetryLimit bounds total delivery attempts per event, the first
	// included. Once reached the event is discarded.
	RetryLimit int
	// DrainInterval is how often the retry buffer is drained.
	DrainInterval time.Duration
	// SendTimeout bounds a single delivery attempt.
	SendTimeout time.Duration
}

// DefaultQueueConfig returns the production settings: 3 attempts, drained
// every 10 seconds.
func DefaultQueueConfig() QueueConfig {
	return QueueConfig{
		RetryLimit:    3,
		DrainInterval: 10 * time.Second,
		SendTimeout:   10 * time.Second,
	}
}

func (c QueueConfig) withDefaults() QueueConfig {
	d := DefaultQueueConfig()
	if c.RetryLimit <= 0 {
		c.RetryLimit = d.RetryLimit
	}
	if c.DrainInterval <= 0 {
		c.DrainInterval = d.DrainInterval
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = d.SendTimeout
	}
	return c
}

type pendingDelivery struct {
	event   Event
	attempt int
}

// DeliveryQueue attempts best-effort, bounded-retry delivery of events.
// Submit never blocks and never reports failure to the caller; detection
// must not be interrupted by delivery trouble. Delivery is at-most-once
// with no ordering guarantee between retried and fresh events.
type DeliveryQueue struct {
	transport Transport
	cfg       QueueConfig
	logger    *slog.Logger

	mu      sync.Mutex
	pending []pendingDelivery
}

// NewDeliveryQueue builds a queue over the given transport.
func NewDeliveryQueue(transport Transport, cfg QueueConfig, logger *slog.Logger) *DeliveryQueue {
	return &DeliveryQueue{
		transport: transport,
		cfg:       cfg.withDefaults(),
		logger:    logger.With("component", "sdk.queue"),
	}
}

// Submit sends the event immediately in the background. A transport failure
// places it in the retry buffer; everything else is swallowed.
func (q *DeliveryQueue) Submit(event Event) {
	go q.deliver(event, 1)
}

// Start runs the periodic drain until ctx is cancelled.
func (q *DeliveryQueue) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(q.cfg.DrainInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				q.drain()
			}
		}
	}()
}

func (q *DeliveryQueue) deliver(event Event, attempt int) {
	ctx, cancel := context.WithTimeout(context.Background(), q.cfg.SendTimeout)
	defer cancel()

	err := q.transport.Send(ctx, event)
	if err == nil {
		return
	}

	var transportErr *TransportError
	if !errors.As(err, &transportErr) {
		// The collector rejected the event; retrying would not help.
		q.logger.Warn("event rejected by collector", "event_type", string(event.Type), "error", err)
		return
	}
	if attempt >= q.cfg.RetryLimit {
		q.logger.Warn("event dropped after retry limit", "event_type", string(event.Type), "attempts", attempt, "error", err)
		return
	}
	q.logger.Debug("delivery failed, buffering for retry", "event_type", string(event.Type), "attempt", attempt, "error", err)
	q.mu.Lock()
	q.pending = append(q.pending, pendingDelivery{event: event, attempt: attempt})
	q.mu.Unlock()
}

// drain swaps out the retry buffer and re-attempts each item once. Failures
// from this pass re-enter the buffer through the same failure path as fresh
// submissions, so a concurrent drain never reprocesses them.
func (q *DeliveryQueue) drain() {
	q.mu.Lock()
	batch := q.pending
	q.pending = nil
	q.mu.Unlock()

	for _, p := range batch {
		q.deliver(p.event, p.attempt+1)
	}
}

func (q *DeliveryQueue) pendingCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
