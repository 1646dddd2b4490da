package drive

import "math"

// SynchConfig describes the drivetrain used to compute the synchronization
// duty.
type SynchConfig struct {
	Gear1Ratio         float64 `yaml:"gear1_ratio"`         // motor turns per wheel turn in first gear
	Gear2Ratio         float64 `yaml:"gear2_ratio"`         // belt ratio
	MotorKV            float64 `yaml:"motor_kv"`            // rpm per volt
	WheelCircumference float64 `yaml:"wheel_circumference"` // metres
	DeadTimeBias       float64 `yaml:"dead_time_bias"`      // duty points added to overcome bridge dead time
}

// DefaultSynchConfig matches the reference vehicle.
var DefaultSynchConfig = SynchConfig{
	Gear1Ratio:         6.0,
	Gear2Ratio:         4.0,
	MotorKV:            40.0,
	WheelCircumference: 1.76,
	DeadTimeBias:       2.0,
}

// NewSynch returns a SynchFunc for cfg. The duty places the bridge output
// voltage at the back-EMF of a motor turning at the speed implied by the
// car speed (km/h) and gear ratio.
func NewSynch(cfg SynchConfig) SynchFunc {
	bias := cfg.DeadTimeBias
	if bias < 1 {
		bias = 1
	}
	return func(carSpeed uint16, gear Gear, batteryVoltage float64) uint8 {
		ratio := cfg.Gear2Ratio
		if gear == Gear1 {
			ratio = cfg.Gear1Ratio
		}

		var emf float64
		if cfg.WheelCircumference > 0 && cfg.MotorKV > 0 {
			wheelRPM := float64(carSpeed) / 3.6 / cfg.WheelCircumference * 60
			emf = wheelRPM * ratio / cfg.MotorKV
		}

		duty := float64(NeutralDuty) + bias
		if batteryVoltage > 0 {
			duty += NeutralDuty * emf / batteryVoltage
		}
		return uint8(math.Min(math.Max(math.Round(duty), 0), MaxDuty))
	}
}
