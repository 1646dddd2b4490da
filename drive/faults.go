package drive

import "math"

// FaultStatus is a read-only view of the fault supervisor.
type FaultStatus struct {
	Strikes       uint8
	Latched       bool
	Timeout       uint16
	ClearAttempts uint8
	Permanent     bool
}

// FaultSupervisor debounces out-of-envelope readings into a latched major
// fault with a fixed cool-down and an escalation ceiling.
type FaultSupervisor struct {
	strikes       uint8
	latched       bool
	timeout       uint16
	clearAttempts uint8
}

// Evaluate runs one tick of the fault policy.
func (f *FaultSupervisor) Evaluate(powered bool, motorCurrent, batteryVoltage float64) FaultStatus {
	outOfEnvelope := powered &&
		(math.Abs(motorCurrent) >= MaxAmp || batteryVoltage > MaxVolt)

	switch {
	case !outOfEnvelope:
		f.strikes = 0
	case !f.latched:
		f.strikes++
		if f.strikes >= FaultStrikeLimit {
			f.latched = true
			f.timeout = FaultTimeoutTicks
			f.strikes = 0
			if f.clearAttempts < math.MaxUint8 {
				f.clearAttempts++
			}
		}
	}

	if f.timeout > 0 {
		f.timeout--
	} else if f.latched && f.clearAttempts <= FaultClearLimit {
		f.latched = false
	}

	return f.Status()
}

// Status returns the current supervisor state without advancing it.
func (f *FaultSupervisor) Status() FaultStatus {
	return FaultStatus{
		Strikes:       f.strikes,
		Latched:       f.latched,
		Timeout:       f.timeout,
		ClearAttempts: f.clearAttempts,
		Permanent:     f.latched && f.clearAttempts > FaultClearLimit,
	}
}

// Reset is the power-cycle equivalent. It is the only way out of a
// permanent latch.
func (f *FaultSupervisor) Reset() {
	*f = FaultSupervisor{}
}

// Fault identifies a condition reported to diagnostics.
type Fault uint32

const (
	FaultNone Fault = iota
	FaultSensorRange
	FaultOverTemperature
	FaultLinkLost
	FaultPermanentLatch
	FaultUnderVoltage
)

type FaultSeverity int

const (
	SeverityWarning FaultSeverity = iota
	SeverityCritical
)

type FaultConfig struct {
	Code        Fault
	Description string
	Severity    FaultSeverity
}

var faultConfigs = map[Fault]FaultConfig{
	FaultSensorRange:     {FaultSensorRange, "Motor over-current or battery over-voltage", SeverityCritical},
	FaultOverTemperature: {FaultOverTemperature, "Motor over-temperature", SeverityCritical},
	FaultLinkLost:        {FaultLinkLost, "Command link lost", SeverityWarning},
	FaultPermanentLatch:  {FaultPermanentLatch, "Repeated fault, reset required", SeverityCritical},
	FaultUnderVoltage:    {FaultUnderVoltage, "Board supply out of range", SeverityWarning},
}

// LastFault is the highest defined fault code.
const LastFault = FaultUnderVoltage

func GetFaultConfig(fault Fault) (FaultConfig, bool) {
	config, ok := faultConfigs[fault]
	return config, ok
}

// ActiveFaults derives the diagnostic fault set from a state record and
// the supervisor view.
func ActiveFaults(s *ModuleState, fs FaultStatus) map[Fault]bool {
	return map[Fault]bool{
		FaultSensorRange:     fs.Latched,
		FaultOverTemperature: s.MotorTemp >= MaxTemp,
		FaultLinkLost:        s.WatchdogCAN == 0,
		FaultPermanentLatch:  fs.Permanent,
		FaultUnderVoltage:    !s.Powered(),
	}
}
