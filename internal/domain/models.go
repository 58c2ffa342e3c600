// Package domain contains core models of the visualization pipeline with no external dependencies.
// This package defines the values that cross thread boundaries between the audio callback,
// the render worker and coordination code.
package domain

import (
	"fmt"
	"math"
	"time"
)

const (
	// WindowSize is the number of mono samples analyzed per snapshot.
	WindowSize = 1024

	// SpectrumBins is the number of magnitude bins carried by a snapshot (DC to just below Nyquist).
	SpectrumBins = WindowSize / 2

	// PaletteCount is the number of palettes a preset name can map to.
	PaletteCount = 5
)

// AnalysisSnapshot is the summary of one analyzed audio window.
// It is produced once per window on the audio thread and copied by value through
// the snapshot channel, so the spectrum is a fixed-size array rather than a slice.
type AnalysisSnapshot struct {
	// SamplePosition is the absolute sample index of the first sample in the window
	SamplePosition uint64

	// ShortTimeEnergy is the mean of squared mono samples over the window
	ShortTimeEnergy float32

	// HasSpectrum reports whether Spectrum holds magnitudes for this window
	HasSpectrum bool

	// Spectrum holds FFT magnitude bins, low to high frequency
	Spectrum [SpectrumBins]float32

	// BeatDetected is raised when energy spiked above the rolling average
	BeatDetected bool
}

// ParamID identifies a control-plane parameter.
type ParamID int

// Control-plane parameters. The set is fixed.
const (
	ParamBeatSensitivity ParamID = iota
	ParamTransitionDurationSeconds
	ParamShuffle
	ParamLockCurrentPreset
	ParamPresetIndex
	ParamTransitionStyle
	ParamQualityOverride

	paramCount
)

type paramSpec struct {
	name     string
	min, max float32
	discrete bool
}

var paramSpecs = [paramCount]paramSpec{
	ParamBeatSensitivity:           {"beatSensitivity", 0, 2, false},
	ParamTransitionDurationSeconds: {"transitionDurationSeconds", 0.1, 30, false},
	ParamShuffle:                   {"shuffle", 0, 1, true},
	ParamLockCurrentPreset:         {"lockCurrentPreset", 0, 1, true},
	ParamPresetIndex:               {"presetIndex", 0, 128, true},
	ParamTransitionStyle:           {"transitionStyle", 0, 2, true},
	ParamQualityOverride:           {"qualityOverride", 0, 3, true},
}

// AllParams returns every control-plane parameter in declaration order.
func AllParams() []ParamID {
	ids := make([]ParamID, 0, paramCount)
	for id := ParamID(0); id < paramCount; id++ {
		ids = append(ids, id)
	}
	return ids
}

// Valid reports whether id is one of the known parameters.
func (id ParamID) Valid() bool {
	return id >= 0 && id < paramCount
}

// String returns the control-plane name of the parameter.
func (id ParamID) String() string {
	if !id.Valid() {
		return fmt.Sprintf("param(%d)", int(id))
	}
	return paramSpecs[id].name
}

// Range returns the inclusive value range of the parameter.
func (id ParamID) Range() (lo, hi float32) {
	if !id.Valid() {
		return 0, 0
	}
	return paramSpecs[id].min, paramSpecs[id].max
}

// Clamp limits v to the parameter's range. Discrete parameters are rounded to the nearest step.
// NaN maps to the lower bound.
func (id ParamID) Clamp(v float32) float32 {
	if !id.Valid() {
		return v
	}
	s := paramSpecs[id]
	if v != v {
		return s.min
	}
	if s.discrete {
		v = float32(math.Round(float64(v)))
	}
	if v < s.min {
		return s.min
	}
	if v > s.max {
		return s.max
	}
	return v
}

// ParseParamID maps a control-plane name back to its ParamID.
func ParseParamID(name string) (ParamID, error) {
	for id := ParamID(0); id < paramCount; id++ {
		if paramSpecs[id].name == name {
			return id, nil
		}
	}
	return 0, NewValidationError("param", name, "unknown parameter")
}

// ParameterChange is a single control-plane update.
// Sequence is assigned at enqueue and strictly increases within one channel.
type ParameterChange struct {
	ID       ParamID
	Value    float32
	Sequence uint64
}

// PresetLoadRequest asks the worker to switch presets.
// Only the most recent unapplied request is acted on.
type PresetLoadRequest struct {
	Path string
}

// PresetMetadata is derived information about a preset shared across instances.
type PresetMetadata struct {
	// Name is the display name (file name without extension)
	Name string

	// PaletteIndex is a pure function of Name
	PaletteIndex int

	// SourceTimestamp is the source modification time when the entry was computed
	SourceTimestamp time.Time

	// RefCount is the number of active holders
	RefCount int
}

// PerformanceSample holds render timing and CPU figures for one evaluation.
type PerformanceSample struct {
	FrameTime    time.Duration
	FrameTimeEMA time.Duration
	FPS          float64
	FPSEMA       float64
	CPUPercent   float64
}

// QualityMode selects adaptive or fixed render quality.
type QualityMode int

const (
	// QualityAuto adapts the resolution scale to measured performance
	QualityAuto QualityMode = iota

	// QualityLow renders at half resolution
	QualityLow

	// QualityMedium renders at three-quarter resolution
	QualityMedium

	// QualityHigh renders at full resolution
	QualityHigh
)

// String returns a human-readable representation of the quality mode.
func (m QualityMode) String() string {
	switch m {
	case QualityAuto:
		return "auto"
	case QualityLow:
		return "low"
	case QualityMedium:
		return "medium"
	case QualityHigh:
		return "high"
	default:
		return "unknown"
	}
}

// ParseQualityMode maps a name ("auto", "low", "medium", "high") to a QualityMode.
func ParseQualityMode(name string) (QualityMode, error) {
	for m := QualityAuto; m <= QualityHigh; m++ {
		if m.String() == name {
			return m, nil
		}
	}
	return QualityAuto, NewValidationError("quality", name, "unknown quality mode")
}

// QualityDecision is the output of one quality controller evaluation.
type QualityDecision struct {
	// Scale is the render resolution scale, always within [0.5, 1.0]
	Scale float64

	// HighDetail enables expensive detail layers
	HighDetail bool

	// Particles enables particle effects
	Particles bool

	// Reason is a diagnostic rationale
	Reason string
}

// TransitionStyle selects how the renderer moves between presets.
type TransitionStyle int

const (
	TransitionCut TransitionStyle = iota
	TransitionFade
	TransitionZoom
)

// String returns a human-readable representation of the transition style.
func (s TransitionStyle) String() string {
	switch s {
	case TransitionCut:
		return "cut"
	case TransitionFade:
		return "fade"
	case TransitionZoom:
		return "zoom"
	default:
		return "unknown"
	}
}

// RenderParams are the live parameters the worker hands to the renderer.
type RenderParams struct {
	BeatSensitivity    float32
	TransitionDuration time.Duration
	Shuffle            bool
	LockCurrentPreset  bool
	PresetIndex        int
	TransitionStyle    TransitionStyle
	QualityOverride    QualityMode

	// Active preset
	PresetPath   string
	PresetName   string
	PaletteIndex int
}

// DefaultRenderParams returns the parameters a fresh worker starts with.
func DefaultRenderParams() RenderParams {
	return RenderParams{
		BeatSensitivity:    1.0,
		TransitionDuration: 5 * time.Second,
		TransitionStyle:    TransitionFade,
		QualityOverride:    QualityAuto,
	}
}

// RenderInput is everything the renderer receives for one frame.
type RenderInput struct {
	Snapshot     AnalysisSnapshot
	HaveSnapshot bool
	Params       RenderParams
	PCM          []float32
	Elapsed      time.Duration
	Decision     QualityDecision
}
