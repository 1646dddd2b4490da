// Package scheduler owns the module state and runs the supervisory tick.
package scheduler

import (
	"context"
	"sync/atomic"
	"time"

	"drive-service/drive"
	"drive-service/hardware"
)

const (
	DefaultPeriod        = 10 * time.Millisecond
	DefaultSensorTimeout = 100 * time.Millisecond
	DefaultStatusQueue   = 64
)

type Logger interface {
	Debug(format string, v ...interface{})
	Info(format string, v ...interface{})
	Warn(format string, v ...interface{})
	Error(format string, v ...interface{})
}

// SensorSource provides the latest sampled snapshot and when it was taken.
type SensorSource interface {
	Load() (drive.Sensors, time.Time)
}

// CommandSource provides the latest operator commands.
type CommandSource interface {
	Snapshot() drive.Commands
}

// Status is a copy of the module state published after every tick.
type Status struct {
	drive.ModuleState
	Faults   drive.FaultStatus
	Previous drive.MotorStatus
	Tick     uint64
	Time     time.Time
}

// Changed reports whether the tick moved the motor to a new state.
func (s Status) Changed() bool {
	return s.Previous != s.MotorStatus
}

type Config struct {
	Logger        Logger
	Machine       *drive.Machine
	State         *drive.ModuleState
	Sensors       SensorSource
	Commands      CommandSource
	Gear          hardware.GearSensor
	Outputs       hardware.Outputs
	Period        time.Duration
	SensorTimeout time.Duration
	StatusQueue   int
}

type Scheduler struct {
	log      Logger
	machine  *drive.Machine
	state    *drive.ModuleState
	sensors  SensorSource
	commands CommandSource
	gear     hardware.GearSensor
	outputs  hardware.Outputs
	period   time.Duration
	timeout  time.Duration

	status  chan Status
	reset   atomic.Bool
	ticks   uint64
	dropped atomic.Uint64

	sensorsStale bool
	gearErrors   int
	outputErrors int
}

func New(cfg Config) *Scheduler {
	if cfg.Period <= 0 {
		cfg.Period = DefaultPeriod
	}
	if cfg.SensorTimeout <= 0 {
		cfg.SensorTimeout = DefaultSensorTimeout
	}
	if cfg.StatusQueue <= 0 {
		cfg.StatusQueue = DefaultStatusQueue
	}
	return &Scheduler{
		log:      cfg.Logger,
		machine:  cfg.Machine,
		state:    cfg.State,
		sensors:  cfg.Sensors,
		commands: cfg.Commands,
		gear:     cfg.Gear,
		outputs:  cfg.Outputs,
		period:   cfg.Period,
		timeout:  cfg.SensorTimeout,
		status:   make(chan Status, cfg.StatusQueue),
	}
}

// Status returns the channel status copies are posted to. Copies are
// dropped when the consumer falls behind.
func (s *Scheduler) Status() <-chan Status {
	return s.status
}

// Dropped returns the number of status copies discarded so far.
func (s *Scheduler) Dropped() uint64 {
	return s.dropped.Load()
}

// RequestReset asks the next tick to clear the fault supervisor. Safe to
// call from any goroutine.
func (s *Scheduler) RequestReset() {
	s.reset.Store(true)
}

// Tick runs one supervisory step.
func (s *Scheduler) Tick(now time.Time) {
	s.ticks++

	sensors, at := s.sensors.Load()
	if at.IsZero() || now.Sub(at) > s.timeout {
		if !s.sensorsStale {
			s.log.Warn("Sensor snapshot stale (last update %v), treating board as unpowered", at)
			s.sensorsStale = true
		}
		sensors = drive.Sensors{}
	} else if s.sensorsStale {
		s.log.Info("Sensor snapshot fresh again")
		s.sensorsStale = false
	}

	gear, err := s.gear.ReadGear()
	if err != nil {
		s.gearErrors++
		if s.gearErrors == 1 || s.gearErrors%1000 == 0 {
			s.log.Error("Failed to read gear sensor (%d errors): %v", s.gearErrors, err)
		}
		gear = drive.Neutral
	}

	s.state.ApplySensors(sensors)
	s.state.ApplyCommands(s.commands.Snapshot(), gear)

	if s.reset.Swap(false) {
		s.machine.Reset()
		s.log.Info("Fault supervisor reset")
	}

	prev := s.state.MotorStatus
	s.machine.Advance(s.state)
	if s.state.MotorStatus != prev {
		s.log.Info("Motor state %s -> %s", prev, s.state.MotorStatus)
	}

	s.apply()

	st := Status{
		ModuleState: *s.state,
		Faults:      s.machine.Faults(),
		Previous:    prev,
		Tick:        s.ticks,
		Time:        now,
	}
	select {
	case s.status <- st:
	default:
		s.dropped.Add(1)
	}
}

// apply writes the outputs. Drivers are switched off before the duty
// returns to neutral and switched on only after the duty is set.
func (s *Scheduler) apply() {
	var errs []error
	if s.state.DriverEnable {
		errs = append(errs, s.outputs.SetDuty(s.state.DutyCycle))
		errs = append(errs, s.outputs.EnableDrivers(true))
	} else {
		errs = append(errs, s.outputs.EnableDrivers(false))
		errs = append(errs, s.outputs.SetDuty(s.state.DutyCycle))
	}
	errs = append(errs, s.outputs.RequestGear(s.state.GearRequired))

	for _, err := range errs {
		if err == nil {
			continue
		}
		s.outputErrors++
		if s.outputErrors == 1 || s.outputErrors%1000 == 0 {
			s.log.Error("Failed to apply outputs (%d errors): %v", s.outputErrors, err)
		}
	}
}

// Run ticks until ctx is cancelled, then leaves the power stage
// de-energized.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.period)
	defer ticker.Stop()

	s.log.Info("Supervisory loop started, period %v, powertrain %s", s.period, s.state.Powertrain)
	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			close(s.status)
			return
		case now := <-ticker.C:
			s.Tick(now)
		}
	}
}

func (s *Scheduler) shutdown() {
	if err := s.outputs.EnableDrivers(false); err != nil {
		s.log.Error("Failed to disable drivers on shutdown: %v", err)
	}
	if err := s.outputs.SetDuty(drive.NeutralDuty); err != nil {
		s.log.Error("Failed to reset duty on shutdown: %v", err)
	}
	if err := s.outputs.RequestGear(drive.Neutral); err != nil {
		s.log.Error("Failed to request neutral on shutdown: %v", err)
	}
	s.log.Info("Supervisory loop stopped after %d ticks", s.ticks)
}
