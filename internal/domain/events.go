// Package domain defines events published by the render worker and coordination code.
// Events let diagnostics and persistence observe the pipeline without coupling to it.
package domain

import (
	"time"
)

// Event is the base interface for all events in the system.
// All events must implement this interface to be published via the event bus.
type Event interface {
	// Type returns the event type identifier
	Type() EventType

	// Timestamp returns when the event occurred
	Timestamp() time.Time
}

// EventType is a string identifier for different event types.
type EventType string

// Event type constants define all possible events in the system.
const (
	// Worker lifecycle events
	EventWorkerStarted EventType = "worker.started"
	EventWorkerStopped EventType = "worker.stopped"

	// Preset events
	EventPresetLoaded     EventType = "preset.loaded"
	EventPresetLoadFailed EventType = "preset.load_failed"

	// Control events
	EventParameterChanged EventType = "parameter.changed"

	// Performance events
	EventQualityChanged EventType = "quality.changed"
	EventDiagnostics    EventType = "diagnostics"
)

// EventHandler is a function that handles events.
type EventHandler func(event Event)

// SubscriptionID uniquely identifies an event subscription.
type SubscriptionID string

// baseEvent provides common event functionality.
// All concrete events should embed this struct.
type baseEvent struct {
	timestamp time.Time
}

// Timestamp returns when the event occurred.
func (e baseEvent) Timestamp() time.Time {
	return e.timestamp
}

// newBaseEvent creates a new base event with the current timestamp.
func newBaseEvent() baseEvent {
	return baseEvent{timestamp: time.Now()}
}

// WorkerStartedEvent is published from the worker goroutine once its renderer is initialized.
type WorkerStartedEvent struct {
	baseEvent
	InstanceID string
	Width      int
	Height     int
}

// Type returns the event type.
func (e WorkerStartedEvent) Type() EventType {
	return EventWorkerStarted
}

// NewWorkerStartedEvent creates a new WorkerStartedEvent.
func NewWorkerStartedEvent(instanceID string, width, height int) WorkerStartedEvent {
	return WorkerStartedEvent{
		baseEvent:  newBaseEvent(),
		InstanceID: instanceID,
		Width:      width,
		Height:     height,
	}
}

// WorkerStoppedEvent is published when the worker loop exits.
type WorkerStoppedEvent struct {
	baseEvent
	InstanceID     string
	FramesRendered uint64
}

// Type returns the event type.
func (e WorkerStoppedEvent) Type() EventType {
	return EventWorkerStopped
}

// NewWorkerStoppedEvent creates a new WorkerStoppedEvent.
func NewWorkerStoppedEvent(instanceID string, framesRendered uint64) WorkerStoppedEvent {
	return WorkerStoppedEvent{
		baseEvent:      newBaseEvent(),
		InstanceID:     instanceID,
		FramesRendered: framesRendered,
	}
}

// PresetLoadedEvent is published when a preset becomes active.
type PresetLoadedEvent struct {
	baseEvent
	InstanceID string
	Path       string
	Metadata   PresetMetadata
}

// Type returns the event type.
func (e PresetLoadedEvent) Type() EventType {
	return EventPresetLoaded
}

// NewPresetLoadedEvent creates a new PresetLoadedEvent.
func NewPresetLoadedEvent(instanceID, path string, meta PresetMetadata) PresetLoadedEvent {
	return PresetLoadedEvent{
		baseEvent:  newBaseEvent(),
		InstanceID: instanceID,
		Path:       path,
		Metadata:   meta,
	}
}

// PresetLoadFailedEvent is published when a preset could not be applied.
// The previously active preset stays in place.
type PresetLoadFailedEvent struct {
	baseEvent
	InstanceID string
	Path       string
	Error      error
}

// Type returns the event type.
func (e PresetLoadFailedEvent) Type() EventType {
	return EventPresetLoadFailed
}

// NewPresetLoadFailedEvent creates a new PresetLoadFailedEvent.
func NewPresetLoadFailedEvent(instanceID, path string, err error) PresetLoadFailedEvent {
	return PresetLoadFailedEvent{
		baseEvent:  newBaseEvent(),
		InstanceID: instanceID,
		Path:       path,
		Error:      err,
	}
}

// ParameterChangedEvent is published on the coordination goroutine when a change is relayed.
type ParameterChangedEvent struct {
	baseEvent
	Change ParameterChange
}

// Type returns the event type.
func (e ParameterChangedEvent) Type() EventType {
	return EventParameterChanged
}

// NewParameterChangedEvent creates a new ParameterChangedEvent.
func NewParameterChangedEvent(change ParameterChange) ParameterChangedEvent {
	return ParameterChangedEvent{
		baseEvent: newBaseEvent(),
		Change:    change,
	}
}

// QualityChangedEvent is published when the render resolution scale changes.
type QualityChangedEvent struct {
	baseEvent
	InstanceID string
	Previous   float64
	Decision   QualityDecision
	Width      int
	Height     int
}

// Type returns the event type.
func (e QualityChangedEvent) Type() EventType {
	return EventQualityChanged
}

// NewQualityChangedEvent creates a new QualityChangedEvent.
func NewQualityChangedEvent(instanceID string, previous float64, d QualityDecision, width, height int) QualityChangedEvent {
	return QualityChangedEvent{
		baseEvent:  newBaseEvent(),
		InstanceID: instanceID,
		Previous:   previous,
		Decision:   d,
		Width:      width,
		Height:     height,
	}
}

// DiagnosticsEvent carries the periodic performance summary. Advisory only.
type DiagnosticsEvent struct {
	baseEvent
	InstanceID   string
	Performance  PerformanceSample
	CacheHitRate float64
	Decision     QualityDecision
}

// Type returns the event type.
func (e DiagnosticsEvent) Type() EventType {
	return EventDiagnostics
}

// NewDiagnosticsEvent creates a new DiagnosticsEvent.
func NewDiagnosticsEvent(instanceID string, perf PerformanceSample, hitRate float64, d QualityDecision) DiagnosticsEvent {
	return DiagnosticsEvent{
		baseEvent:    newBaseEvent(),
		InstanceID:   instanceID,
		Performance:  perf,
		CacheHitRate: hitRate,
		Decision:     d,
	}
}
