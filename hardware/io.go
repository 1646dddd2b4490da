// Package hardware applies the supervisory outputs to the power stage and
// reads back the clutch position.
package hardware

import (
	"fmt"
	"sync"

	"github.com/warthog618/go-gpiocdev"
	"go.uber.org/multierr"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"

	"drive-service/drive"
)

// Outputs drives the power stage.
type Outputs interface {
	SetDuty(duty uint8) error
	EnableDrivers(enable bool) error
	RequestGear(gear drive.Gear) error
	Close() error
}

// GearSensor reads the clutch position.
type GearSensor interface {
	ReadGear() (drive.Gear, error)
}

// Line names
const (
	LineDriverEnable = "driver_enable"
	LineGear1Request = "gear1_request"
	LineGear2Request = "gear2_request"
	LineGear1Sensed  = "gear1_sensed"
	LineGear2Sensed  = "gear2_sensed"
)

// LineMapping locates a GPIO line.
type LineMapping struct {
	Chip   string `yaml:"chip"`
	Offset int    `yaml:"offset"`
}

// Config maps the power stage onto GPIO lines and a PWM pin.
type Config struct {
	Lines        map[string]LineMapping `yaml:"lines"`
	PWMPin       string                 `yaml:"pwm_pin"`
	PWMFrequency int                    `yaml:"pwm_frequency"` // Hz
}

var DefaultConfig = Config{
	Lines: map[string]LineMapping{
		LineDriverEnable: {Chip: "gpiochip0", Offset: 17},
		LineGear1Request: {Chip: "gpiochip0", Offset: 22},
		LineGear2Request: {Chip: "gpiochip0", Offset: 23},
		LineGear1Sensed:  {Chip: "gpiochip0", Offset: 24},
		LineGear2Sensed:  {Chip: "gpiochip0", Offset: 25},
	},
	PWMPin:       "GPIO18",
	PWMFrequency: 20000,
}

var outputLines = []string{LineDriverEnable, LineGear1Request, LineGear2Request}
var inputLines = []string{LineGear1Sensed, LineGear2Sensed}

// LinuxIO drives GPIO character-device lines and a PWM-capable pin.
type LinuxIO struct {
	mu     sync.Mutex
	lines  map[string]*gpiocdev.Line
	values map[string]int
	pwm    gpio.PinOut
	freq   physic.Frequency
	duty   int
}

// OpenLinux requests every line in cfg. Outputs start low so the drivers
// are disabled and no gear is requested.
func OpenLinux(cfg Config) (*LinuxIO, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}

	io := &LinuxIO{
		lines:  make(map[string]*gpiocdev.Line),
		values: make(map[string]int),
		freq:   physic.Frequency(cfg.PWMFrequency) * physic.Hertz,
		duty:   -1,
	}

	for _, name := range outputLines {
		m, ok := cfg.Lines[name]
		if !ok {
			io.Close()
			return nil, fmt.Errorf("missing mapping for output %s", name)
		}
		line, err := gpiocdev.RequestLine(m.Chip, m.Offset,
			gpiocdev.AsOutput(0),
			gpiocdev.WithConsumer("drive-service"))
		if err != nil {
			io.Close()
			return nil, fmt.Errorf("failed to request output %s (%s:%d): %w", name, m.Chip, m.Offset, err)
		}
		io.lines[name] = line
		io.values[name] = 0
	}

	for _, name := range inputLines {
		m, ok := cfg.Lines[name]
		if !ok {
			io.Close()
			return nil, fmt.Errorf("missing mapping for input %s", name)
		}
		line, err := gpiocdev.RequestLine(m.Chip, m.Offset,
			gpiocdev.AsInput,
			gpiocdev.WithConsumer("drive-service"))
		if err != nil {
			io.Close()
			return nil, fmt.Errorf("failed to request input %s (%s:%d): %w", name, m.Chip, m.Offset, err)
		}
		io.lines[name] = line
	}

	pin := gpioreg.ByName(cfg.PWMPin)
	if pin == nil {
		io.Close()
		return nil, fmt.Errorf("PWM pin %s not found", cfg.PWMPin)
	}
	io.pwm = pin

	if err := io.SetDuty(drive.NeutralDuty); err != nil {
		io.Close()
		return nil, err
	}

	return io, nil
}

func (io *LinuxIO) write(name string, value int) error {
	if io.values[name] == value {
		return nil
	}
	line, ok := io.lines[name]
	if !ok {
		return fmt.Errorf("line %s not configured", name)
	}
	if err := line.SetValue(value); err != nil {
		return fmt.Errorf("failed to set %s: %w", name, err)
	}
	io.values[name] = value
	return nil
}

func (io *LinuxIO) SetDuty(duty uint8) error {
	io.mu.Lock()
	defer io.mu.Unlock()

	if int(duty) == io.duty {
		return nil
	}
	if duty > drive.MaxDuty {
		duty = drive.MaxDuty
	}
	if err := io.pwm.PWM(DutyToPWM(duty), io.freq); err != nil {
		return fmt.Errorf("failed to set PWM duty %d: %w", duty, err)
	}
	io.duty = int(duty)
	return nil
}

func (io *LinuxIO) EnableDrivers(enable bool) error {
	io.mu.Lock()
	defer io.mu.Unlock()
	return io.write(LineDriverEnable, boolToInt(enable))
}

func (io *LinuxIO) RequestGear(gear drive.Gear) error {
	io.mu.Lock()
	defer io.mu.Unlock()

	g1, g2 := GearLines(gear)
	return multierr.Combine(
		io.write(LineGear1Request, g1),
		io.write(LineGear2Request, g2),
	)
}

func (io *LinuxIO) ReadGear() (drive.Gear, error) {
	io.mu.Lock()
	defer io.mu.Unlock()

	g1, err := io.lines[LineGear1Sensed].Value()
	if err != nil {
		return drive.Neutral, fmt.Errorf("failed to read %s: %w", LineGear1Sensed, err)
	}
	g2, err := io.lines[LineGear2Sensed].Value()
	if err != nil {
		return drive.Neutral, fmt.Errorf("failed to read %s: %w", LineGear2Sensed, err)
	}
	return GearFromLines(g1, g2), nil
}

// Close de-energizes the outputs and releases every line.
func (io *LinuxIO) Close() error {
	io.mu.Lock()
	defer io.mu.Unlock()

	var err error
	if _, ok := io.lines[LineDriverEnable]; ok {
		err = multierr.Append(err, io.write(LineDriverEnable, 0))
	}
	if io.pwm != nil {
		err = multierr.Append(err, io.pwm.Halt())
	}
	for name, line := range io.lines {
		if cerr := line.Close(); cerr != nil {
			err = multierr.Append(err, fmt.Errorf("failed to close %s: %w", name, cerr))
		}
	}
	io.lines = map[string]*gpiocdev.Line{}
	return err
}

// DutyToPWM scales a 0..100 duty onto the periph duty range.
func DutyToPWM(duty uint8) gpio.Duty {
	return gpio.Duty(int64(gpio.DutyMax) * int64(duty) / drive.MaxDuty)
}

// GearLines encodes a gear request onto the two actuator lines.
func GearLines(gear drive.Gear) (g1, g2 int) {
	switch gear {
	case drive.Gear1:
		return 1, 0
	case drive.Gear2:
		return 0, 1
	}
	return 0, 0
}

// GearFromLines decodes the clutch position switches. Both switches closed
// is implausible and reads as neutral.
func GearFromLines(g1, g2 int) drive.Gear {
	switch {
	case g1 != 0 && g2 == 0:
		return drive.Gear1
	case g2 != 0 && g1 == 0:
		return drive.Gear2
	}
	return drive.Neutral
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
