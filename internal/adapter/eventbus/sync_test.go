package eventbus

import (
	"bytes"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tejashwikalptaru/beatviz/internal/domain"
)

func TestNewSyncEventBus(t *testing.T) {
	bus := NewSyncEventBus()
	require.NotNil(t, bus)
	assert.Equal(t, 0, bus.SubscriberCount())
	assert.False(t, bus.closed)
}

func TestPublishSubscribe(t *testing.T) {
	bus := NewSyncEventBus()
	defer bus.Close()

	var received []domain.Event
	subID := bus.Subscribe(domain.EventPresetLoaded, func(e domain.Event) {
		received = append(received, e)
	})
	require.NotEmpty(t, subID)

	meta := domain.PresetMetadata{Name: "aurora", PaletteIndex: 3, RefCount: 1}
	bus.Publish(domain.NewPresetLoadedEvent("inst-1", "/p/aurora.milk", meta))

	// Other event types do not reach the handler
	bus.Publish(domain.NewWorkerStoppedEvent("inst-1", 10))

	require.Len(t, received, 1)
	e, ok := received[0].(domain.PresetLoadedEvent)
	require.True(t, ok)
	assert.Equal(t, "/p/aurora.milk", e.Path)
	assert.Equal(t, "aurora", e.Metadata.Name)
	assert.False(t, e.Timestamp().IsZero())
}

func TestPublish_SubscriptionOrder(t *testing.T) {
	bus := NewSyncEventBus()
	defer bus.Close()

	var order []string
	bus.SubscribeAll(func(domain.Event) { order = append(order, "all") })
	bus.Subscribe(domain.EventWorkerStarted, func(domain.Event) { order = append(order, "first") })
	bus.Subscribe(domain.EventWorkerStarted, func(domain.Event) { order = append(order, "second") })

	bus.Publish(domain.NewWorkerStartedEvent("inst", 640, 360))

	// Type handlers in subscription order, then wildcard handlers
	assert.Equal(t, []string{"first", "second", "all"}, order)
}

func TestUnsubscribe_KeepsOrder(t *testing.T) {
	bus := NewSyncEventBus()
	defer bus.Close()

	var order []int
	ids := make([]domain.SubscriptionID, 4)
	for i := range ids {
		i := i
		ids[i] = bus.Subscribe(domain.EventDiagnostics, func(domain.Event) { order = append(order, i) })
	}

	bus.Unsubscribe(ids[1])
	bus.Unsubscribe("does-not-exist")

	bus.Publish(domain.NewDiagnosticsEvent("inst", domain.PerformanceSample{}, 0, domain.QualityDecision{}))
	assert.Equal(t, []int{0, 2, 3}, order)
	assert.Equal(t, 3, bus.SubscriberCount())
}

func TestUnsubscribe_Wildcard(t *testing.T) {
	bus := NewSyncEventBus()
	defer bus.Close()

	var calls int
	id := bus.SubscribeAll(func(domain.Event) { calls++ })
	bus.Unsubscribe(id)

	bus.Publish(domain.NewWorkerStoppedEvent("inst", 0))
	assert.Zero(t, calls)
	assert.False(t, bus.HasSubscribers(domain.EventWorkerStopped))
}

func TestSubscribeFiltered(t *testing.T) {
	bus := NewSyncEventBus()
	defer bus.Close()

	var seen []string
	bus.SubscribeFiltered(domain.EventWorkerStopped,
		func(e domain.Event) bool { return e.(domain.WorkerStoppedEvent).InstanceID == "wanted" },
		func(e domain.Event) { seen = append(seen, e.(domain.WorkerStoppedEvent).InstanceID) })

	bus.Publish(domain.NewWorkerStoppedEvent("other", 1))
	bus.Publish(domain.NewWorkerStoppedEvent("wanted", 2))

	assert.Equal(t, []string{"wanted"}, seen)
}

func TestPublish_HandlerPanicIsRecovered(t *testing.T) {
	bus := NewSyncEventBus()
	defer bus.Close()

	var buf bytes.Buffer
	bus.SetLogger(slog.New(slog.NewTextHandler(&buf, nil)))

	var after bool
	bus.Subscribe(domain.EventPresetLoadFailed, func(domain.Event) { panic("boom") })
	bus.Subscribe(domain.EventPresetLoadFailed, func(domain.Event) { after = true })

	assert.NotPanics(t, func() {
		bus.Publish(domain.NewPresetLoadFailedEvent("inst", "/bad", domain.ErrInvalidPresetSource))
	})
	assert.True(t, after, "handlers after a panicking one still run")
	assert.Contains(t, buf.String(), "event handler panicked")
}

func TestHandlerMayUnsubscribeDuringPublish(t *testing.T) {
	bus := NewSyncEventBus()
	defer bus.Close()

	var calls int
	var id domain.SubscriptionID
	id = bus.Subscribe(domain.EventQualityChanged, func(domain.Event) {
		calls++
		bus.Unsubscribe(id)
	})

	ev := domain.NewQualityChangedEvent("inst", 1.0, domain.QualityDecision{Scale: 0.9}, 576, 324)
	bus.Publish(ev)
	bus.Publish(ev)
	assert.Equal(t, 1, calls)
}

func TestHasSubscribers(t *testing.T) {
	bus := NewSyncEventBus()
	defer bus.Close()

	assert.False(t, bus.HasSubscribers(domain.EventDiagnostics))
	bus.Subscribe(domain.EventDiagnostics, func(domain.Event) {})
	assert.True(t, bus.HasSubscribers(domain.EventDiagnostics))
	assert.False(t, bus.HasSubscribers(domain.EventPresetLoaded))

	bus.SubscribeAll(func(domain.Event) {})
	assert.True(t, bus.HasSubscribers(domain.EventPresetLoaded))
}

func TestClose(t *testing.T) {
	bus := NewSyncEventBus()

	var calls int
	bus.Subscribe(domain.EventWorkerStarted, func(domain.Event) { calls++ })

	require.NoError(t, bus.Close())
	assert.Error(t, bus.Close(), "second close reports an error")

	bus.Publish(domain.NewWorkerStartedEvent("inst", 1, 1))
	assert.Zero(t, calls)
	assert.Equal(t, 0, bus.SubscriberCount())

	assert.Panics(t, func() { bus.Subscribe(domain.EventWorkerStarted, func(domain.Event) {}) })
	assert.Panics(t, func() { bus.SubscribeAll(func(domain.Event) {}) })
}

func TestSubscribe_NilHandlerPanics(t *testing.T) {
	bus := NewSyncEventBus()
	defer bus.Close()

	assert.Panics(t, func() { bus.Subscribe(domain.EventWorkerStarted, nil) })
	assert.Panics(t, func() { bus.SubscribeAll(nil) })
}

func TestConcurrentPublishSubscribe(t *testing.T) {
	bus := NewSyncEventBus()
	defer bus.Close()

	var delivered atomic.Int64
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				id := bus.Subscribe(domain.EventParameterChanged, func(domain.Event) { delivered.Add(1) })
				if j%2 == 0 {
					bus.Unsubscribe(id)
				}
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				bus.Publish(domain.NewParameterChangedEvent(domain.ParameterChange{ID: domain.ParamShuffle, Value: 1}))
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 8*50, bus.SubscriberCount())
}
