package controller

import (
	"testing"

	"drive-service/drive"
)

func TestCurrent_ResetIsNeutral(t *testing.T) {
	c := NewCurrent(DefaultConfig)
	c.PresetIntegrator(80)
	c.ResetIntegrator()
	if got := c.Update(drive.DutyMode, 0, 0); got != drive.NeutralDuty {
		t.Errorf("expected %d, got %d", drive.NeutralDuty, got)
	}
}

func TestCurrent_DutyModeHoldsPreset(t *testing.T) {
	c := NewCurrent(DefaultConfig)
	c.PresetIntegrator(73)
	for i := 0; i < 5; i++ {
		if got := c.Update(drive.DutyMode, 10, 3.0); got != 73 {
			t.Fatalf("iteration %d: expected 73, got %d", i, got)
		}
	}
}

func TestCurrent_PositiveErrorRaisesDuty(t *testing.T) {
	c := NewCurrent(DefaultConfig)
	c.PresetIntegrator(60)
	prev := c.Update(drive.CurrentMode, 5, 0)
	if prev <= 60 {
		t.Fatalf("expected duty above preset, got %d", prev)
	}
	for i := 0; i < 10; i++ {
		d := c.Update(drive.CurrentMode, 5, 0)
		if d < prev {
			t.Fatalf("duty decreased under constant positive error: %d -> %d", prev, d)
		}
		prev = d
	}
}

func TestCurrent_NegativeThrottleLowersDuty(t *testing.T) {
	c := NewCurrent(DefaultConfig)
	c.ResetIntegrator()
	if got := c.Update(drive.CurrentMode, -5, 0); got >= drive.NeutralDuty {
		t.Errorf("expected duty below neutral, got %d", got)
	}
}

func TestCurrent_OutputClamped(t *testing.T) {
	c := NewCurrent(Config{Kp: 50, Ki: 10, AmpsPerStep: 1})
	for i := 0; i < 100; i++ {
		if got := c.Update(drive.CurrentMode, 10, -100); got > drive.MaxDuty {
			t.Fatalf("duty %d out of range", got)
		}
	}
	if got := c.Update(drive.CurrentMode, 10, -100); got != drive.MaxDuty {
		t.Errorf("expected saturation at %d, got %d", drive.MaxDuty, got)
	}
	for i := 0; i < 100; i++ {
		c.Update(drive.CurrentMode, -10, 100)
	}
	if got := c.Update(drive.CurrentMode, -10, 100); got != 0 {
		t.Errorf("expected saturation at 0, got %d", got)
	}
}

func TestCurrent_AntiWindup(t *testing.T) {
	c := NewCurrent(Config{Kp: 1, Ki: 1, AmpsPerStep: 1})
	for i := 0; i < 1000; i++ {
		c.Update(drive.CurrentMode, 10, -100)
	}
	if d := c.Diagnostics(); d.Integral > drive.NeutralDuty {
		t.Errorf("integrator wound up to %f", d.Integral)
	}
	// Error reverses: output must leave saturation immediately.
	if got := c.Update(drive.CurrentMode, 0, 60); got >= drive.MaxDuty {
		t.Errorf("expected duty to drop after reversal, got %d", got)
	}
}
