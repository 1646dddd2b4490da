package drive

// MotorStatus is the supervisory state of the motor drive.
type MotorStatus uint8

const (
	StatusOff MotorStatus = iota
	StatusIdle
	StatusAccel
	StatusBrake
	StatusEngage
	StatusFault
)

var statusNames = [...]string{
	StatusOff:    "off",
	StatusIdle:   "idle",
	StatusAccel:  "accel",
	StatusBrake:  "brake",
	StatusEngage: "engage",
	StatusFault:  "fault",
}

func (s MotorStatus) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return "unknown"
}

// Valid reports whether s is one of the defined states.
func (s MotorStatus) Valid() bool {
	return s <= StatusFault
}

// CtrlType selects the control law applied by the low-level controller.
type CtrlType uint8

const (
	CurrentMode CtrlType = iota
	DutyMode
)

func (c CtrlType) String() string {
	if c == DutyMode {
		return "duty"
	}
	return "current"
}

// Powertrain is fixed at startup and selects the transition subgraph.
type Powertrain uint8

const (
	BeltDrive Powertrain = iota
	GearedDrive
)

func (p Powertrain) String() string {
	if p == GearedDrive {
		return "geared"
	}
	return "belt"
}

// ParsePowertrain maps a configuration string onto a Powertrain.
func ParsePowertrain(s string) (Powertrain, bool) {
	switch s {
	case "belt":
		return BeltDrive, true
	case "geared", "gear":
		return GearedDrive, true
	}
	return BeltDrive, false
}

// Gear is a clutch position, observed or requested. Gear2 is the belt ratio.
type Gear uint8

const (
	Neutral Gear = iota
	Gear1
	Gear2
)

func (g Gear) String() string {
	switch g {
	case Gear1:
		return "gear1"
	case Gear2:
		return "gear2"
	}
	return "neutral"
}

// MsgMode names the command link in use. It does not influence the core.
type MsgMode uint8

const (
	MsgModeCAN MsgMode = iota
	MsgModeUART
)

func (m MsgMode) String() string {
	if m == MsgModeUART {
		return "uart"
	}
	return "can"
}

// Operating envelope and timer ceilings.
const (
	NeutralDuty = 50
	MaxDuty     = 100

	MinVolt          = 15.0
	MaxVolt          = 55.0
	PowerCeilingVolt = 100.0
	MaxAmp           = 15.0
	MaxTemp          = 100

	WatchdogCANReload      = 50
	WatchdogThrottleReload = 30
	DeadmanMargin          = 10

	FaultStrikeLimit  = 3
	FaultTimeoutTicks = 600
	FaultClearLimit   = 3
)

// BoardPowered reports whether the battery voltage is inside the range the
// power stage is designed for.
func BoardPowered(batteryVoltage float64) bool {
	return batteryVoltage >= MinVolt && batteryVoltage < PowerCeilingVolt
}

// ParseMsgMode maps a configuration string onto a MsgMode.
func ParseMsgMode(s string) (MsgMode, bool) {
	switch s {
	case "can":
		return MsgModeCAN, true
	case "uart", "serial":
		return MsgModeUART, true
	}
	return MsgModeCAN, false
}
