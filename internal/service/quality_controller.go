package service

import (
	"math"
	"sync"

	"github.com/tejashwikalptaru/beatviz/internal/domain"
)

// Scale limits and step of the quality control loop.
const (
	MinScale  = 0.5
	MaxScale  = 1.0
	ScaleStep = 0.1

	highDetailScale = 0.9
	particlesScale  = 0.6
)

// QualityConfig configures a QualityController.
type QualityConfig struct {
	TargetFPS float64 // clamped to [1, 240]
	FPSLow    float64 // step down below this
	FPSHigh   float64 // step up at or above this; at least FPSLow+1
	CPUHigh   float64 // step down at or above this percent
	CPURelax  float64 // step up only at or below this percent
	Mode      domain.QualityMode
}

// DefaultQualityConfig returns the controller defaults: 60 FPS target, 45/58 FPS and
// 80/50 CPU thresholds, automatic mode.
func DefaultQualityConfig() QualityConfig {
	return QualityConfig{
		TargetFPS: 60,
		FPSLow:    45,
		FPSHigh:   58,
		CPUHigh:   80,
		CPURelax:  50,
		Mode:      domain.QualityAuto,
	}
}

// QualityController is a hysteresis loop that trades render resolution for frame time.
// The scale moves by at most one step per evaluation and holds inside the dead zone
// between the low and high thresholds.
//
// All methods are safe for concurrent use.
type QualityController struct {
	mu    sync.Mutex
	cfg   QualityConfig
	scale float64
}

// NewQualityController creates a controller starting at full scale.
func NewQualityController(cfg QualityConfig) *QualityController {
	c := &QualityController{scale: MaxScale}
	c.cfg.Mode = cfg.Mode
	c.cfg.TargetFPS = clampFloat(cfg.TargetFPS, 1, 240)
	c.setFPSThresholds(cfg.FPSLow, cfg.FPSHigh)
	c.setCPUThresholds(cfg.CPUHigh, cfg.CPURelax)
	return c
}

// Evaluate feeds one performance sample through the loop and returns the decision.
// Only FPSEMA and CPUPercent steer the result; frame time is informational.
func (c *QualityController) Evaluate(sample domain.PerformanceSample) domain.QualityDecision {
	c.mu.Lock()
	defer c.mu.Unlock()

	var reason string
	if scale, ok := manualScale(c.cfg.Mode); ok {
		c.scale = scale
		reason = "manual override: " + c.cfg.Mode.String()
	} else {
		fps, cpu := sample.FPSEMA, sample.CPUPercent
		stepDown := (fps > 0 && fps < math.Min(c.cfg.FPSLow, 0.85*c.cfg.TargetFPS)) || cpu >= c.cfg.CPUHigh
		stepUp := fps >= math.Max(c.cfg.FPSHigh, 0.95*c.cfg.TargetFPS) && cpu <= c.cfg.CPURelax

		switch {
		case stepDown:
			c.scale = roundScale(math.Max(MinScale, c.scale-ScaleStep))
			reason = "auto: low FPS or high CPU"
		case stepUp:
			c.scale = roundScale(math.Min(MaxScale, c.scale+ScaleStep))
			reason = "auto: good FPS and relaxed CPU"
		default:
			reason = "auto: hold (within hysteresis)"
		}
	}

	return decisionFor(c.scale, reason)
}

// SetMode switches between automatic and fixed quality. The next Evaluate applies it.
func (c *QualityController) SetMode(mode domain.QualityMode) {
	if mode < domain.QualityAuto || mode > domain.QualityHigh {
		mode = domain.QualityAuto
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg.Mode = mode
}

// Mode returns the current quality mode.
func (c *QualityController) Mode() domain.QualityMode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg.Mode
}

// SetTargetFPS sets the frame rate target, clamped to [1, 240].
func (c *QualityController) SetTargetFPS(fps float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg.TargetFPS = clampFloat(fps, 1, 240)
}

// TargetFPS returns the frame rate target.
func (c *QualityController) TargetFPS() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg.TargetFPS
}

// SetFPSThresholds sets the step-down and step-up FPS thresholds.
// high is raised to low+1 when needed to keep a dead zone.
func (c *QualityController) SetFPSThresholds(low, high float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setFPSThresholds(low, high)
}

func (c *QualityController) setFPSThresholds(low, high float64) {
	c.cfg.FPSLow = low
	c.cfg.FPSHigh = math.Max(high, low+1)
}

// SetCPUThresholds sets the step-down and relax CPU percentages, each clamped to [0, 100].
func (c *QualityController) SetCPUThresholds(high, relax float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setCPUThresholds(high, relax)
}

func (c *QualityController) setCPUThresholds(high, relax float64) {
	c.cfg.CPUHigh = clampFloat(high, 0, 100)
	c.cfg.CPURelax = clampFloat(relax, 0, 100)
}

// Config returns a copy of the effective configuration.
func (c *QualityController) Config() QualityConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

// CurrentScale returns the scale chosen by the last evaluation.
func (c *QualityController) CurrentScale() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.scale
}

// Current returns the decision for the current scale without evaluating.
func (c *QualityController) Current() domain.QualityDecision {
	c.mu.Lock()
	defer c.mu.Unlock()
	return decisionFor(c.scale, "current")
}

func manualScale(mode domain.QualityMode) (float64, bool) {
	switch mode {
	case domain.QualityLow:
		return 0.5, true
	case domain.QualityMedium:
		return 0.75, true
	case domain.QualityHigh:
		return 1.0, true
	default:
		return 0, false
	}
}

func decisionFor(scale float64, reason string) domain.QualityDecision {
	return domain.QualityDecision{
		Scale:      scale,
		HighDetail: scale >= highDetailScale,
		Particles:  scale >= particlesScale,
		Reason:     reason,
	}
}

// roundScale snaps to two decimals so repeated ±0.1 steps land exactly on the thresholds.
func roundScale(v float64) float64 {
	return math.Round(v*100) / 100
}

func clampFloat(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}
