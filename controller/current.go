// Package controller implements the low-level PI current controller that
// turns a throttle command into a bridge duty cycle.
package controller

import (
	"sync"

	"drive-service/drive"
)

// Config holds the PI gains and limits.
type Config struct {
	Kp            float64 `yaml:"kp"`
	Ki            float64 `yaml:"ki"`
	IntegralLimit float64 `yaml:"integral_limit"` // duty points either side of neutral
	AmpsPerStep   float64 `yaml:"amps_per_step"`  // current setpoint per throttle step
}

// DefaultConfig are the gains the drive was tuned with.
var DefaultConfig = Config{
	Kp:            0.1,
	Ki:            0.05,
	IntegralLimit: drive.NeutralDuty,
	AmpsPerStep:   1.0,
}

// Current is a PI current controller. The integrator holds the duty offset
// from the neutral midpoint, so a reset integrator yields duty 50.
type Current struct {
	mu  sync.Mutex
	cfg Config

	integral  float64
	lastError float64
}

// NewCurrent creates a controller with cfg.
func NewCurrent(cfg Config) *Current {
	if cfg.IntegralLimit <= 0 || cfg.IntegralLimit > drive.NeutralDuty {
		cfg.IntegralLimit = drive.NeutralDuty
	}
	if cfg.AmpsPerStep <= 0 {
		cfg.AmpsPerStep = DefaultConfig.AmpsPerStep
	}
	return &Current{cfg: cfg}
}

// Update runs one step. In DutyMode the preset duty is held.
func (c *Current) Update(mode drive.CtrlType, throttle int16, measured float64) uint8 {
	c.mu.Lock()
	defer c.mu.Unlock()

	if mode == drive.DutyMode {
		c.lastError = 0
		return toDuty(drive.NeutralDuty + c.integral)
	}

	err := float64(throttle)*c.cfg.AmpsPerStep - measured
	c.lastError = err
	p := c.cfg.Kp * err

	// Conditional integration: hold the integrator while the output is
	// saturated in the direction of the error.
	next := clamp(c.integral+c.cfg.Ki*err, -c.cfg.IntegralLimit, c.cfg.IntegralLimit)
	out := drive.NeutralDuty + next + p
	if !(out > drive.MaxDuty && err > 0) && !(out < 0 && err < 0) {
		c.integral = next
	}

	out = drive.NeutralDuty + c.integral + p
	return toDuty(out)
}

// ResetIntegrator returns the controller to the neutral duty.
func (c *Current) ResetIntegrator() {
	c.mu.Lock()
	c.integral = 0
	c.lastError = 0
	c.mu.Unlock()
}

// PresetIntegrator seeds the integrator so the next output is duty.
func (c *Current) PresetIntegrator(duty uint8) {
	c.mu.Lock()
	c.integral = clamp(float64(duty)-drive.NeutralDuty, -c.cfg.IntegralLimit, c.cfg.IntegralLimit)
	c.mu.Unlock()
}

// Diagnostics is a snapshot of the controller state for telemetry.
type Diagnostics struct {
	Error    float64
	Integral float64
}

func (c *Current) Diagnostics() Diagnostics {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Diagnostics{Error: c.lastError, Integral: c.integral}
}

var _ drive.Controller = (*Current)(nil)

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func toDuty(v float64) uint8 {
	return uint8(clamp(v, 0, drive.MaxDuty) + 0.5)
}
