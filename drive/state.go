package drive

// ModuleState is the record the supervisory tick evolves. It has a single
// owner; inputs are written before Advance and outputs read after it.
type ModuleState struct {
	MotorStatus MotorStatus
	CtrlType    CtrlType
	Powertrain  Powertrain
	MsgMode     MsgMode

	GearStatus   Gear
	GearRequired Gear

	// Measured inputs.
	MotorCurrent   float64
	BatteryCurrent float64
	BatteryVoltage float64
	MotorTemp      uint8
	Energy         float64
	CarSpeed       uint16
	MotorSpeed     uint16

	// Commanded inputs.
	AccelCmd    uint8
	BrakeCmd    uint8
	CANLinkSeen bool

	WatchdogCAN      uint16
	WatchdogThrottle uint16

	// Outputs.
	DutyCycle    uint8
	DriverEnable bool
	ThrottleCmd  int16
}

// NewModuleState returns the power-up record: Off, neutral duty, watchdogs
// at their ceilings.
func NewModuleState(pt Powertrain) *ModuleState {
	return &ModuleState{
		MotorStatus:      StatusOff,
		CtrlType:         CurrentMode,
		Powertrain:       pt,
		GearStatus:       Neutral,
		GearRequired:     Neutral,
		DutyCycle:        NeutralDuty,
		WatchdogCAN:      WatchdogCANReload,
		WatchdogThrottle: WatchdogThrottleReload,
	}
}

// Powered reports whether the board supply is in range for this snapshot.
func (s *ModuleState) Powered() bool {
	return BoardPowered(s.BatteryVoltage)
}

// Sensors are the values refreshed by the fast sampler.
type Sensors struct {
	MotorCurrent   float64
	BatteryCurrent float64
	BatteryVoltage float64
	MotorTemp      uint8
	Energy         float64
	CarSpeed       uint16
	MotorSpeed     uint16
}

// Commands are the values produced by the command link.
type Commands struct {
	Accel    uint8
	Brake    uint8
	LinkSeen bool
}

// ApplySensors copies a sensor snapshot into the record.
func (s *ModuleState) ApplySensors(in Sensors) {
	s.MotorCurrent = in.MotorCurrent
	s.BatteryCurrent = in.BatteryCurrent
	s.BatteryVoltage = in.BatteryVoltage
	s.MotorTemp = in.MotorTemp
	s.Energy = in.Energy
	s.CarSpeed = in.CarSpeed
	s.MotorSpeed = in.MotorSpeed
}

// ApplyCommands copies a command snapshot and the sensed gear into the record.
func (s *ModuleState) ApplyCommands(in Commands, gear Gear) {
	s.AccelCmd = in.Accel
	s.BrakeCmd = in.Brake
	s.CANLinkSeen = in.LinkSeen
	s.GearStatus = gear
}
