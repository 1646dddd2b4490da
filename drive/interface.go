package drive

// Controller is the low-level current/PWM control law driven by the state
// machine. Implementations must not block.
type Controller interface {
	// Update runs one step of the control law and returns the new duty
	// cycle in the range 0..100.
	Update(mode CtrlType, throttle int16, measuredCurrent float64) uint8

	// ResetIntegrator zeroes the accumulated state so the output returns
	// to the neutral duty.
	ResetIntegrator()

	// PresetIntegrator seeds the accumulated state so the next output
	// starts at duty.
	PresetIntegrator(duty uint8)
}

// SynchFunc computes the synchronization duty for a car speed, target gear
// and battery voltage.
type SynchFunc func(carSpeed uint16, gear Gear, batteryVoltage float64) uint8
