// Package dispatch coalesces high-frequency room events (gifts, emoji) into
// batches before they are broadcast.
//
// Each (room, event type) pair owns a buffer that moves through
// Empty -> Accumulating -> Flushing -> Empty. The first buffered item arms a
// timer for the room's flush interval; reaching the batch size flushes in the
// enqueuing goroutine. Batches of one key are delivered in enqueue order.
package dispatch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/nmxmxh/ovasabi-live/pkg/metrics"
	"go.uber.org/zap"
)

// ErrClosed is returned by Enqueue after Close.
var ErrClosed = errors.New("dispatcher closed")

const (
	// DefaultMaxAge is how long an item may sit in a buffer before Sweep drops it.
	DefaultMaxAge = 60 * time.Second
	// timerDeliverTimeout bounds deliveries started by a flush timer.
	timerDeliverTimeout = 5 * time.Second
)

// Item is one buffered event.
type Item struct {
	Payload    interface{}
	EnqueuedAt time.Time
}

// Batch is the unit handed to the deliver function.
type Batch struct {
	RoomID  string
	Type    string
	Items   []Item
	Trigger string
}

// Payloads returns the buffered payloads in enqueue order.
func (b Batch) Payloads() []interface{} {
	out := make([]interface{}, len(b.Items))
	for i, it := range b.Items {
		out[i] = it.Payload
	}
	return out
}

// DeliverFunc publishes a flushed batch.
type DeliverFunc func(ctx context.Context, b Batch) error

type bufferKey struct {
	room string
	typ  string
}

// buffer locks: Dispatcher.mu before buffer.mu, deliverMu before buffer.mu.
type buffer struct {
	mu        sync.Mutex
	deliverMu sync.Mutex

	items []Item
	timer *time.Timer
	gen   uint64

	touched          bool
	emptyAtLastSweep bool
}

// Dispatcher batches events per (room, type).
type Dispatcher struct {
	mu      sync.Mutex
	buffers map[bufferKey]*buffer
	levels  map[string]Level
	closed  bool

	defaultLevel Level
	maxAge       time.Duration
	deliver      DeliverFunc
	now          func() time.Time
	log          *zap.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithDefaultLevel sets the level of rooms without an override.
func WithDefaultLevel(l Level) Option {
	return func(d *Dispatcher) {
		if _, ok := presets[l]; ok {
			d.defaultLevel = l
		}
	}
}

// WithMaxAge sets the age after which Sweep drops buffered items.
func WithMaxAge(age time.Duration) Option {
	return func(d *Dispatcher) {
		if age > 0 {
			d.maxAge = age
		}
	}
}

// WithClock replaces time.Now for item timestamps.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// New creates a dispatcher delivering flushed batches through deliver.
func New(deliver DeliverFunc, log *zap.Logger, opts ...Option) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	d := &Dispatcher{
		buffers:      make(map[bufferKey]*buffer),
		levels:       make(map[string]Level),
		defaultLevel: DefaultLevel,
		maxAge:       DefaultMaxAge,
		deliver:      deliver,
		now:          time.Now,
		log:          log.With(zap.String("module", "dispatcher")),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Enqueue buffers payload for (roomID, eventType). When the buffer reaches the
// room's batch size the batch is delivered before Enqueue returns and the
// delivery error, if any, is returned.
func (d *Dispatcher) Enqueue(ctx context.Context, roomID, eventType string, payload interface{}) error {
	k := bufferKey{room: roomID, typ: eventType}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrClosed
	}
	b, ok := d.buffers[k]
	if !ok {
		b = &buffer{}
		d.buffers[k] = b
		metrics.DispatcherKeys.Set(float64(len(d.buffers)))
	}
	preset := PresetFor(d.levelLocked(roomID))
	b.mu.Lock()
	d.mu.Unlock()

	b.items = append(b.items, Item{Payload: payload, EnqueuedAt: d.now()})
	b.touched = true

	if len(b.items) >= preset.BatchSize {
		b.mu.Unlock()
		return d.flush(ctx, k, b, metrics.TriggerSize, 0)
	}
	if len(b.items) == 1 {
		b.gen++
		gen := b.gen
		b.timer = time.AfterFunc(preset.FlushInterval, func() { d.onTimer(k, b, gen) })
	}
	b.mu.Unlock()
	return nil
}

// Flush delivers whatever is buffered for (roomID, eventType). An empty buffer
// is a no-op.
func (d *Dispatcher) Flush(ctx context.Context, roomID, eventType string) error {
	k := bufferKey{room: roomID, typ: eventType}
	d.mu.Lock()
	b, ok := d.buffers[k]
	d.mu.Unlock()
	if !ok {
		return nil
	}
	return d.flush(ctx, k, b, metrics.TriggerManual, 0)
}

func (d *Dispatcher) onTimer(k bufferKey, b *buffer, gen uint64) {
	ctx, cancel := context.WithTimeout(context.Background(), timerDeliverTimeout)
	defer cancel()
	if err := d.flush(ctx, k, b, metrics.TriggerTimer, gen); err != nil {
		d.log.Warn("Timed batch delivery failed",
			zap.String("room_id", k.room),
			zap.String("type", k.typ),
			zap.Error(err))
	}
}

// flush swaps the buffer out and delivers it. A non-zero gen makes the flush
// conditional on no other flush having happened since the timer was armed.
func (d *Dispatcher) flush(ctx context.Context, k bufferKey, b *buffer, trigger string, gen uint64) error {
	b.deliverMu.Lock()
	defer b.deliverMu.Unlock()

	b.mu.Lock()
	if gen != 0 && gen != b.gen {
		b.mu.Unlock()
		return nil
	}
	items := b.items
	b.items = nil
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.gen++
	b.mu.Unlock()

	if len(items) == 0 {
		return nil
	}
	metrics.BatchFlushes.WithLabelValues(k.typ, trigger).Inc()
	metrics.BatchSize.WithLabelValues(k.typ).Observe(float64(len(items)))
	d.log.Debug("Flushing batch",
		zap.String("room_id", k.room),
		zap.String("type", k.typ),
		zap.Int("count", len(items)),
		zap.String("trigger", trigger))

	return d.deliver(ctx, Batch{RoomID: k.room, Type: k.typ, Items: items, Trigger: trigger})
}

// SetActivityLevel overrides the level of roomID. Timers already armed keep
// their interval.
func (d *Dispatcher) SetActivityLevel(roomID string, level Level) error {
	if _, ok := presets[level]; !ok {
		_, err := ParseLevel(string(level))
		return err
	}
	d.mu.Lock()
	d.levels[roomID] = level
	d.mu.Unlock()
	d.log.Info("Room activity level changed", zap.String("room_id", roomID), zap.String("level", string(level)))
	return nil
}

// ActivityLevel returns the effective level of roomID.
func (d *Dispatcher) ActivityLevel(roomID string) Level {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.levelLocked(roomID)
}

func (d *Dispatcher) levelLocked(roomID string) Level {
	if l, ok := d.levels[roomID]; ok {
		return l
	}
	return d.defaultLevel
}

// Sweep drops items older than the max age and removes buffers that were
// already empty at the previous sweep and saw no enqueue since. It returns
// the number of discarded items.
func (d *Dispatcher) Sweep(now time.Time) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	discarded := 0
	for k, b := range d.buffers {
		b.mu.Lock()
		cut := 0
		for cut < len(b.items) && now.Sub(b.items[cut].EnqueuedAt) > d.maxAge {
			cut++
		}
		if cut > 0 {
			b.items = append([]Item(nil), b.items[cut:]...)
			discarded += cut
			metrics.BatchDiscarded.WithLabelValues(k.typ).Add(float64(cut))
			if len(b.items) == 0 && b.timer != nil {
				b.timer.Stop()
				b.timer = nil
				b.gen++
			}
		}

		empty := len(b.items) == 0
		// a buffer mid-delivery is never removed, so a later buffer for the
		// same key cannot overtake it
		if empty && b.emptyAtLastSweep && !b.touched && b.deliverMu.TryLock() {
			delete(d.buffers, k)
			b.deliverMu.Unlock()
		}
		b.emptyAtLastSweep = empty
		b.touched = false
		b.mu.Unlock()
	}
	metrics.DispatcherKeys.Set(float64(len(d.buffers)))

	if discarded > 0 {
		d.log.Warn("Discarded stale buffered events", zap.Int("count", discarded))
	}
	return discarded
}

// Close rejects further enqueues and delivers every pending batch.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	pending := make(map[bufferKey]*buffer, len(d.buffers))
	for k, b := range d.buffers {
		pending[k] = b
	}
	d.mu.Unlock()

	var errs []error
	for k, b := range pending {
		if err := d.flush(ctx, k, b, metrics.TriggerShutdown, 0); err != nil {
			errs = append(errs, err)
		}
	}
	d.log.Info("Dispatcher closed", zap.Int("buffers", len(pending)))
	return errors.Join(errs...)
}
