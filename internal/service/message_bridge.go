package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tejashwikalptaru/beatviz/internal/domain"
	"github.com/tejashwikalptaru/beatviz/internal/queue"
)

// BridgeCapacity is the number of changes the bridge buffers between drains.
const BridgeCapacity = 64

// ChangeListener receives relayed parameter changes on the draining goroutine.
type ChangeListener func(domain.ParameterChange)

// ListenerID identifies a registered ChangeListener.
type ListenerID string

type bridgeListener struct {
	id ListenerID
	fn ChangeListener
}

// MessageBridge relays parameter changes from the real-time audio context to listeners
// that must not run there. The audio side posts without blocking; a coordination
// goroutine calls Drain (or Run) to fan each change out to every listener in order.
type MessageBridge struct {
	logger *slog.Logger

	ring    *queue.SPSC[domain.ParameterChange]
	nextSeq atomic.Uint64
	dropped atomic.Uint64

	mu        sync.RWMutex
	listeners []bridgeListener
	idCounter uint64

	// serializes consumers so Drain and Run may be mixed
	drainMu sync.Mutex
}

// NewMessageBridge creates a bridge with BridgeCapacity slots.
func NewMessageBridge(logger *slog.Logger) *MessageBridge {
	return &MessageBridge{
		logger: logger.With(slog.String("component", "message_bridge")),
		ring:   queue.MustNew[domain.ParameterChange](BridgeCapacity),
	}
}

// PostFromAudioToMessage enqueues a change with the next sequence number.
// It never blocks; it returns false and drops the change when the bridge is full.
// Call it from one producer goroutine only.
func (b *MessageBridge) PostFromAudioToMessage(id domain.ParamID, value float32) bool {
	change := domain.ParameterChange{
		ID:       id,
		Value:    value,
		Sequence: b.nextSeq.Add(1) - 1,
	}
	if !b.ring.TryPush(change) {
		b.dropped.Add(1)
		return false
	}
	return true
}

// AddListener registers fn. Listeners are invoked in registration order.
func (b *MessageBridge) AddListener(fn ChangeListener) ListenerID {
	if fn == nil {
		panic("bridge listener cannot be nil")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.idCounter++
	id := ListenerID(fmt.Sprintf("listener-%d", b.idCounter))
	b.listeners = append(b.listeners, bridgeListener{id: id, fn: fn})
	return id
}

// RemoveListener unregisters a listener. Unknown IDs are ignored.
func (b *MessageBridge) RemoveListener(id ListenerID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if i := slices.IndexFunc(b.listeners, func(l bridgeListener) bool { return l.id == id }); i >= 0 {
		b.listeners = slices.Delete(slices.Clone(b.listeners), i, i+1)
	}
}

// Drain pops every pending change and hands each one to all listeners before moving on
// to the next. A panicking listener is logged and skipped. Returns the number of changes.
func (b *MessageBridge) Drain() int {
	b.drainMu.Lock()
	defer b.drainMu.Unlock()

	b.mu.RLock()
	listeners := b.listeners
	b.mu.RUnlock()

	n := 0
	var change domain.ParameterChange
	for b.ring.TryPop(&change) {
		n++
		for _, l := range listeners {
			b.notify(l, change)
		}
	}
	return n
}

func (b *MessageBridge) notify(l bridgeListener, change domain.ParameterChange) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("bridge listener panicked",
				slog.Any("panic", r),
				slog.String("listener", string(l.id)),
				slog.String("param", change.ID.String()),
				slog.Uint64("sequence", change.Sequence))
		}
	}()
	l.fn(change)
}

// Run drains the bridge every interval until ctx is done, then drains once more.
func (b *MessageBridge) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.Drain()
			return
		case <-ticker.C:
			b.Drain()
		}
	}
}

// Pending returns the number of undrained changes.
func (b *MessageBridge) Pending() int {
	return b.ring.NumAvailable()
}

// Dropped returns the number of changes rejected because the bridge was full.
func (b *MessageBridge) Dropped() uint64 {
	return b.dropped.Load()
}
