// Package channel carries committed-state notification events from the
// lifecycle components to the dispatcher. State is saved before an event
// is emitted, so a full buffer can drop a notification but never a
// transition.
package channel

import (
	"context"
	"errors"
	"time"

	"github.com/tolkly/bookingd/internal/domain"
)

// ErrBufferFull is returned when an emit cannot be buffered within the
// emit timeout.
var ErrBufferFull = errors.New("event bus buffer full")

const defaultEmitTimeout = 100 * time.Millisecond

// MetricsSink defines the interface for recording event bus metrics.
// All methods must be non-blocking and fire-and-forget.
type MetricsSink interface {
	BufferSizeUpdate(size int)
	EmitError()
}

type Option func(*EventBus)

// WithEmitTimeout bounds how long Emit blocks on a full buffer.
func WithEmitTimeout(d time.Duration) Option {
	return func(b *EventBus) { b.emitTimeout = d }
}

// WithMetrics attaches a metrics sink to the bus.
func WithMetrics(sink MetricsSink) Option {
	return func(b *EventBus) { b.metrics = sink }
}

type EventBus struct {
	ch          chan domain.NotificationEvent
	emitTimeout time.Duration
	metrics     MetricsSink // optional, nil = disabled
}

func NewEventBus(buffer int, opts ...Option) *EventBus {
	b := &EventBus{
		ch:          make(chan domain.NotificationEvent, buffer),
		emitTimeout: defaultEmitTimeout,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *EventBus) Emit(ctx context.Context, event domain.NotificationEvent) error {
	select {
	case b.ch <- event:
		b.updateBufferSize()
		return nil
	default:
	}

	timer := time.NewTimer(b.emitTimeout)
	defer timer.Stop()

	select {
	case b.ch <- event:
		b.updateBufferSize()
		return nil
	case <-timer.C:
		b.recordEmitError()
		return ErrBufferFull
	case <-ctx.Done():
		b.recordEmitError()
		return ctx.Err()
	}
}

func (b *EventBus) updateBufferSize() {
	if b.metrics != nil {
		b.metrics.BufferSizeUpdate(len(b.ch))
	}
}

func (b *EventBus) recordEmitError() {
	if b.metrics != nil {
		b.metrics.EmitError()
	}
}

func (b *EventBus) Channel() <-chan domain.NotificationEvent {
	return b.ch
}
