package drive

// Machine is the supervisory state machine. It carries the state that
// persists between ticks apart from ModuleState: the fault supervisor and
// the control mode saved on entry to Engage.
type Machine struct {
	ctrl   Controller
	synch  SynchFunc
	faults FaultSupervisor

	// savedCtrlType is recorded on entry to Engage and never restored.
	savedCtrlType CtrlType
}

// NewMachine returns a machine driving ctrl. A nil synch selects
// NewSynch(DefaultSynchConfig).
func NewMachine(ctrl Controller, synch SynchFunc) *Machine {
	if synch == nil {
		synch = NewSynch(DefaultSynchConfig)
	}
	return &Machine{ctrl: ctrl, synch: synch}
}

// Faults returns the fault supervisor view after the last Advance.
func (m *Machine) Faults() FaultStatus {
	return m.faults.Status()
}

// Reset clears the fault supervisor, including a permanent latch.
func (m *Machine) Reset() {
	m.faults.Reset()
}

// SavedCtrlType returns the control mode in force when Engage was last
// entered.
func (m *Machine) SavedCtrlType() CtrlType {
	return m.savedCtrlType
}

// Advance runs one supervisory tick over s. Inputs in s must be current;
// outputs in s are valid on return.
func (m *Machine) Advance(s *ModuleState) {
	prev := s.MotorStatus

	tickWatchdogs(s)
	powered := s.Powered()
	fs := m.faults.Evaluate(powered, s.MotorCurrent, s.BatteryVoltage)

	switch s.MotorStatus {
	case StatusOff:
		m.safeOutputs(s, true)
		if !linkLost(s) && powered {
			s.MotorStatus = StatusIdle
		}

	case StatusIdle:
		if s.Powertrain == GearedDrive {
			m.idleGeared(s)
		} else {
			m.idleBelt(s)
		}

	case StatusEngage:
		m.engageOutputs(s)
		confirmed := s.GearStatus == s.GearRequired && s.GearStatus != Neutral
		if s.BrakeCmd > 0 && confirmed {
			s.MotorStatus = StatusBrake
		}
		if s.AccelCmd > 0 && confirmed {
			s.MotorStatus = StatusAccel
		}
		if s.AccelCmd == 0 && s.BrakeCmd == 0 && throttleExpired(s) {
			s.MotorStatus = StatusIdle
		}

	case StatusAccel:
		if deadmanReleased(s) {
			s.AccelCmd = 0
		}
		m.runCurrent(s, int16(s.AccelCmd))
		if s.AccelCmd == 0 && throttleExpired(s) {
			s.MotorStatus = StatusIdle
		}
		if s.Powertrain == GearedDrive {
			if s.GearStatus == Neutral {
				s.MotorStatus = StatusEngage
			}
			if s.BrakeCmd > 0 && s.AccelCmd == 0 {
				s.MotorStatus = StatusBrake
			}
		}

	case StatusBrake:
		if deadmanReleased(s) {
			s.BrakeCmd = 0
		}
		m.runCurrent(s, -int16(s.BrakeCmd))
		if s.BrakeCmd == 0 && throttleExpired(s) {
			s.MotorStatus = StatusIdle
		}
		if s.Powertrain == GearedDrive {
			if s.GearStatus == Neutral {
				s.MotorStatus = StatusEngage
			}
			if s.BrakeCmd == 0 && s.AccelCmd > 0 {
				s.MotorStatus = StatusAccel
			}
		}

	case StatusFault:
		if !fs.Latched && s.MotorTemp < MaxTemp {
			s.MotorStatus = StatusIdle
		}
		m.safeOutputs(s, true)

	default:
		s.MotorStatus = StatusFault
	}

	switch s.MotorStatus {
	case StatusIdle, StatusAccel, StatusBrake, StatusEngage:
		if linkLost(s) || !powered {
			s.MotorStatus = StatusOff
		}
	}
	if fs.Latched || s.MotorTemp >= MaxTemp {
		s.MotorStatus = StatusFault
	}

	if s.MotorStatus != prev {
		m.enter(s)
	}
}

func (m *Machine) idleBelt(s *ModuleState) {
	m.safeOutputs(s, false)
	if s.BrakeCmd > 0 {
		m.synchronize(s, Gear2)
		s.MotorStatus = StatusBrake
	}
	if s.AccelCmd > 0 {
		m.synchronize(s, Gear2)
		s.MotorStatus = StatusAccel
	}
}

func (m *Machine) idleGeared(s *ModuleState) {
	if (s.AccelCmd > 0 || s.BrakeCmd > 0) && s.GearStatus == Neutral {
		s.MotorStatus = StatusEngage
	}
	m.safeOutputs(s, false)
}

// enter applies the entry action of the state s has just moved into.
func (m *Machine) enter(s *ModuleState) {
	switch s.MotorStatus {
	case StatusOff, StatusFault:
		m.safeOutputs(s, true)
	case StatusIdle:
		m.safeOutputs(s, false)
	case StatusEngage:
		m.savedCtrlType = s.CtrlType
		m.engageOutputs(s)
	case StatusAccel:
		s.CtrlType = CurrentMode
		s.ThrottleCmd = int16(s.AccelCmd)
	case StatusBrake:
		s.CtrlType = CurrentMode
		s.ThrottleCmd = -int16(s.BrakeCmd)
	}
}

// safeOutputs de-energizes the power stage. Off and Fault also drop the
// held commands.
func (m *Machine) safeOutputs(s *ModuleState, clearCmds bool) {
	s.DriverEnable = false
	s.GearRequired = Neutral
	m.ctrl.ResetIntegrator()
	s.DutyCycle = NeutralDuty
	s.ThrottleCmd = 0
	if clearCmds {
		s.AccelCmd = 0
		s.BrakeCmd = 0
	}
}

// synchronize enables the drivers at the duty matching the current car
// speed in gear and seeds the integrator with it.
func (m *Machine) synchronize(s *ModuleState, gear Gear) {
	s.DriverEnable = true
	s.DutyCycle = m.synch(s.CarSpeed, gear, s.BatteryVoltage)
	m.ctrl.PresetIntegrator(s.DutyCycle)
}

func (m *Machine) engageOutputs(s *ModuleState) {
	s.GearRequired = Gear1
	m.synchronize(s, Gear1)
	s.CtrlType = DutyMode
	s.ThrottleCmd = 0
	s.DutyCycle = m.ctrl.Update(DutyMode, 0, s.MotorCurrent)
}

func (m *Machine) runCurrent(s *ModuleState, throttle int16) {
	s.CtrlType = CurrentMode
	s.ThrottleCmd = throttle
	s.DutyCycle = m.ctrl.Update(CurrentMode, throttle, s.MotorCurrent)
}
