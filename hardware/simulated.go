package hardware

import (
	"sync"

	"drive-service/drive"
)

// Simulated keeps the outputs in memory. Its clutch follows the last
// request after EngageDelay reads, like a slow actuator.
type Simulated struct {
	mu sync.Mutex

	Duty         uint8
	DriversOn    bool
	Requested    drive.Gear
	Sensed       drive.Gear
	EngageDelay  int
	pendingReads int
	closed       bool
}

func NewSimulated(engageDelay int) *Simulated {
	return &Simulated{Duty: drive.NeutralDuty, EngageDelay: engageDelay}
}

func (s *Simulated) SetDuty(duty uint8) error {
	s.mu.Lock()
	s.Duty = duty
	s.mu.Unlock()
	return nil
}

func (s *Simulated) EnableDrivers(enable bool) error {
	s.mu.Lock()
	s.DriversOn = enable
	s.mu.Unlock()
	return nil
}

func (s *Simulated) RequestGear(gear drive.Gear) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gear != s.Requested {
		s.Requested = gear
		s.pendingReads = s.EngageDelay
	}
	return nil
}

func (s *Simulated) ReadGear() (drive.Gear, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Sensed != s.Requested {
		if s.pendingReads > 0 {
			s.pendingReads--
		} else {
			s.Sensed = s.Requested
		}
	}
	return s.Sensed, nil
}

// Snapshot returns the current outputs.
func (s *Simulated) Snapshot() (duty uint8, driversOn bool, gear drive.Gear) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Duty, s.DriversOn, s.Requested
}

func (s *Simulated) Close() error {
	s.mu.Lock()
	s.closed = true
	s.DriversOn = false
	s.mu.Unlock()
	return nil
}
