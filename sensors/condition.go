// Package sensors samples the external ADC and speed pickups and turns the
// raw counts into the measured inputs of the supervisory tick.
package sensors

import (
	"math"
	"time"
)

// Calibration holds the analog front-end constants.
type Calibration struct {
	VRef                  float64 `yaml:"vref"`
	FullScale             float64 `yaml:"full_scale"`
	TransducerOffset      float64 `yaml:"transducer_offset"`      // V at zero current
	TransducerSensitivity float64 `yaml:"transducer_sensitivity"` // V per A
	MotorOffset           float64 `yaml:"motor_offset"`           // A
	BatteryOffset         float64 `yaml:"battery_offset"`         // A
	LowPass               float64 `yaml:"low_pass"`
	VoltageDivisor        float64 `yaml:"voltage_divisor"` // counts per V
	VoltageTrim           float64 `yaml:"voltage_trim"`
}

// DefaultCalibration matches Motor Drive V2.0 hardware.
var DefaultCalibration = Calibration{
	VRef:                  5.0,
	FullScale:             4096,
	TransducerOffset:      2.52,
	TransducerSensitivity: 0.0416,
	MotorOffset:           0.2,
	BatteryOffset:         0.2,
	LowPass:               0.1,
	VoltageDivisor:        66.1,
	VoltageTrim:           0.37,
}

func (c Calibration) volts(raw uint16) float64 {
	return float64(raw) * c.VRef / c.FullScale
}

// Current converts a hall transducer reading to amps. offset corrects the
// per-channel zero error.
func (c Calibration) Current(raw uint16, offset float64) float64 {
	return (c.volts(raw)-c.TransducerOffset)/c.TransducerSensitivity + offset
}

// Voltage converts the divided battery voltage reading to volts.
func (c Calibration) Voltage(raw uint16) float64 {
	return float64(raw)/c.VoltageDivisor - c.VoltageTrim
}

// Temperature converts an NTC divider reading to degrees Celsius using a
// three-segment linear approximation of the thermistor curve.
func (c Calibration) Temperature(raw uint16) uint8 {
	v := c.volts(raw)
	var t float64
	switch {
	case v <= 3.7:
		t = 20.0*v - 22.0
	case v <= 4.7:
		t = 55.5*v - 155.5
	default:
		t = 200.0*v - 840.0
	}
	return uint8(math.Min(math.Max(t, 0), math.MaxUint8))
}

// Conditioner keeps the filter and integrator state between samples.
type Conditioner struct {
	cal Calibration

	motorCurrent   float64
	batteryCurrent float64
	batteryVoltage float64
	motorTemp      uint8
	energy         float64
}

func NewConditioner(cal Calibration) *Conditioner {
	return &Conditioner{cal: cal}
}

func (c *Conditioner) lowPass(prev, next float64) float64 {
	return prev*(1-c.cal.LowPass) + c.cal.LowPass*next
}

// Update folds one set of raw registers into the conditioned values and
// integrates battery energy over dt.
func (c *Conditioner) Update(regs Registers, dt time.Duration) {
	c.motorCurrent = c.lowPass(c.motorCurrent, c.cal.Current(regs.MotorCurrent, c.cal.MotorOffset))
	c.batteryCurrent = c.lowPass(c.batteryCurrent, c.cal.Current(regs.BatteryCurrent, c.cal.BatteryOffset))
	c.batteryVoltage = c.cal.Voltage(regs.BatteryVoltage)
	c.motorTemp = c.cal.Temperature(regs.MotorTemp)
	c.energy += c.batteryVoltage * c.batteryCurrent * dt.Seconds()
}

func (c *Conditioner) MotorCurrent() float64   { return c.motorCurrent }
func (c *Conditioner) BatteryCurrent() float64 { return c.batteryCurrent }
func (c *Conditioner) BatteryVoltage() float64 { return c.batteryVoltage }
func (c *Conditioner) MotorTemp() uint8        { return c.motorTemp }
func (c *Conditioner) Energy() float64         { return c.energy }
